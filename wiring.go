package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	apihttp "guardduty-billing/internal/api/http"
	"guardduty-billing/internal/audit"
	billingapp "guardduty-billing/internal/billing/application"
	"guardduty-billing/internal/calendar"
	catalogapp "guardduty-billing/internal/catalog/application"
	catalog "guardduty-billing/internal/catalog/domain"
	catalogmemory "guardduty-billing/internal/catalog/infrastructure/memory"
	catalogsql "guardduty-billing/internal/catalog/infrastructure/sqldb"
	"guardduty-billing/internal/config"
	guard "guardduty-billing/internal/guard/domain"
	guardmemory "guardduty-billing/internal/guard/infrastructure/memory"
	guardsql "guardduty-billing/internal/guard/infrastructure/sqldb"
	incidentapp "guardduty-billing/internal/incident/application"
	incident "guardduty-billing/internal/incident/domain"
	incidentmemory "guardduty-billing/internal/incident/infrastructure/memory"
	incidentsql "guardduty-billing/internal/incident/infrastructure/sqldb"
	"guardduty-billing/internal/notify"
	"guardduty-billing/internal/observability/logger"
	"guardduty-billing/internal/observability/metrics"
	"guardduty-billing/internal/platform/database"
	"guardduty-billing/internal/platform/memstore"
	"guardduty-billing/internal/seed"
	settlementapp "guardduty-billing/internal/settlement/application"
	settlement "guardduty-billing/internal/settlement/domain"
	settlementmemory "guardduty-billing/internal/settlement/infrastructure/memory"
	settlementsql "guardduty-billing/internal/settlement/infrastructure/sqldb"
)

const serviceName = "guardduty-billing"

// backend groups the storage-facing ports of one persistence flavour.
type backend struct {
	db          *database.DB
	tx          database.Transactor
	codes       catalog.CodeSource
	rates       catalog.RateSource
	guards      guard.Directory
	incidents   incident.Repository
	settlements settlement.Repository
	holidays    calendar.Calendar
	audit       audit.Logger
}

func (b *backend) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	log, err := logger.New(logger.Config{Level: cfg.Log.Level, Development: cfg.Log.Development})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	zap.ReplaceGlobals(log)
	return log, nil
}

func isMemory(cfg *config.Config) bool {
	return strings.EqualFold(cfg.Database.Driver, "memory")
}

func openDatabase(ctx context.Context, cfg *config.Config) (*database.DB, error) {
	db, err := database.Open(cfg.Database.Driver, cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

// openBackend opens the configured store. The memory store is populated from
// seedData, since it has no other source of reference data.
func openBackend(ctx context.Context, cfg *config.Config, seedData *seed.Data, migrate bool, log *zap.Logger) (*backend, error) {
	var fileHolidays calendar.Calendar
	if cfg.Calendar.File != "" {
		static, err := calendar.LoadFile(cfg.Calendar.File)
		if err != nil {
			return nil, fmt.Errorf("calendar: %w", err)
		}
		log.Info("holiday calendar loaded", zap.String("file", cfg.Calendar.File), zap.Int("holidays", static.Len()))
		fileHolidays = static
	}

	if isMemory(cfg) {
		if seedData == nil {
			seedData = &seed.Data{}
		}
		store := memstore.New()
		snapshot := catalogmemory.NewSnapshot(seedData.Codes, seedData.Rates)
		metrics.Init(nil, log)
		return &backend{
			tx:          store,
			codes:       snapshot,
			rates:       snapshot,
			guards:      guardmemory.NewDirectory(seedData.Guards...),
			incidents:   incidentmemory.NewRepository(store),
			settlements: settlementmemory.NewRepository(store),
			holidays:    calendar.Chain{fileHolidays},
			audit:       audit.NewMemory(),
		}, nil
	}

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if migrate {
		applied, err := db.Migrate(ctx)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		if len(applied) > 0 {
			log.Info("migrations applied", zap.Strings("versions", applied))
		}
	}
	codes := catalogsql.NewCodeRepository(db)
	rates := catalogsql.NewRateRepository(db)
	guards := guardsql.NewRepository(db)
	if seedData != nil {
		if err := seed.Apply(ctx, db, seedData, codes, rates, guards); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	metrics.Init(db.DB, log)
	return &backend{
		db:          db,
		tx:          db,
		codes:       codes,
		rates:       rates,
		guards:      guards,
		incidents:   incidentsql.NewRepository(db),
		settlements: settlementsql.NewRepository(db),
		holidays:    calendar.Chain{fileHolidays, calendar.NewRepository(db)},
		audit:       audit.NewRepository(db),
	}, nil
}

func newPricer(cfg *config.Config, b *backend, log *zap.Logger) (*billingapp.Service, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	holidays := calendar.NewCached(b.holidays, cfg.Calendar.CacheTTL, nil)
	engine, err := billingapp.NewEngine(holidays, billingapp.WithLocation(loc))
	if err != nil {
		return nil, err
	}
	return billingapp.NewService(b.rates, engine, log)
}

func newNotifier(cfg *config.Config, log *zap.Logger) (*notify.Dispatcher, *notify.IncidentNotifier, error) {
	var channel notify.Channel = notify.NewLogChannel(log)
	if cfg.Notify.WebhookURL != "" {
		webhook, err := notify.NewWebhookChannel(cfg.Notify.WebhookURL)
		if err != nil {
			return nil, nil, err
		}
		channel = notify.NewMultiChannel(webhook, channel)
	}
	dispatcher, err := notify.NewDispatcher(channel,
		notify.WithQueueSize(cfg.Notify.QueueSize),
		notify.WithWorkers(cfg.Notify.Workers),
		notify.WithSendTimeout(cfg.Notify.Timeout),
		notify.WithLogger(log),
	)
	if err != nil {
		return nil, nil, err
	}
	template, err := notify.NewTemplate(cfg.Notify.Template)
	if err != nil {
		return nil, nil, fmt.Errorf("notify template: %w", err)
	}
	notifier, err := notify.NewIncidentNotifier(dispatcher, template, cfg.Notify.Supervisors, log)
	if err != nil {
		return nil, nil, err
	}
	return dispatcher, notifier, nil
}

func newHandler(cfg *config.Config, b *backend, notifier incidentapp.Notifier, log *zap.Logger) (*apihttp.Handler, error) {
	if b == nil {
		return nil, errors.New("wiring: nil backend")
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	modality, err := catalog.ParseModality(cfg.Business.DefaultModality)
	if err != nil {
		return nil, err
	}
	matcher, err := catalogapp.NewMatcher(b.codes)
	if err != nil {
		return nil, err
	}
	pricer, err := newPricer(cfg, b, log)
	if err != nil {
		return nil, err
	}
	incidents, err := incidentapp.NewService(b.tx, b.incidents, b.guards, b.codes, matcher,
		incidentapp.WithNotifier(notifier),
		incidentapp.WithLocation(loc),
		incidentapp.WithDefaultModality(modality),
		incidentapp.WithLogger(log),
	)
	if err != nil {
		return nil, err
	}
	generator, err := settlementapp.NewGenerator(b.tx, b.settlements, incidents.SettlementPort(), b.guards, b.codes, pricer,
		settlementapp.WithLocation(loc),
		settlementapp.WithLogger(log),
	)
	if err != nil {
		return nil, err
	}
	settlements, err := settlementapp.NewService(b.tx, b.settlements, nil, log)
	if err != nil {
		return nil, err
	}
	return apihttp.NewHandler(apihttp.Deps{
		Matcher:         matcher,
		Billing:         pricer,
		Incidents:       incidents,
		Generator:       generator,
		Settlements:     settlements,
		Audit:           b.audit,
		Location:        loc,
		DefaultModality: modality,
		Log:             log,
	})
}
