package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"guardduty-billing/internal/auth"
	billingapp "guardduty-billing/internal/billing/application"
	billing "guardduty-billing/internal/billing/domain"
	catalogsql "guardduty-billing/internal/catalog/infrastructure/sqldb"
	"guardduty-billing/internal/config"
	guardsql "guardduty-billing/internal/guard/infrastructure/sqldb"
	"guardduty-billing/internal/platform/civil"
	"guardduty-billing/internal/seed"
)

func newMigrateCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if isMemory(cfg) {
				return errors.New("migrate: the memory driver has no schema")
			}
			db, err := openDatabase(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close()
			applied, err := db.Migrate(cmd.Context())
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
				return nil
			}
			for _, v := range applied {
				fmt.Fprintln(cmd.OutOrStdout(), "applied", v)
			}
			return nil
		},
	}
}

func newSeedCommand(configPath *string) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load billing codes, rate tables and guards from YAML",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if isMemory(cfg) {
				return errors.New("seed: use serve --seed with the memory driver")
			}
			data, err := seed.LoadFile(file)
			if err != nil {
				return err
			}
			db, err := openDatabase(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := seed.Apply(cmd.Context(), db, data,
				catalogsql.NewCodeRepository(db), catalogsql.NewRateRepository(db), guardsql.NewRepository(db)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d codes, %d rates, %d guards\n", len(data.Codes), len(data.Rates), len(data.Guards))
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "seed document")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newSimulateCommand(configPath *string) *cobra.Command {
	var (
		seedFile string
		date     string
		start    string
		end      string
		kind     string
		rateID   string
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Price a time-of-day range against the rate catalog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			var seedData *seed.Data
			if seedFile != "" {
				if seedData, err = seed.LoadFile(seedFile); err != nil {
					return err
				}
			}
			day, err := civil.ParseDate(date)
			if err != nil {
				return errors.New("simulate: --date must be YYYY-MM-DD")
			}
			from, err := civil.ParseTimeOfDay(start)
			if err != nil {
				return err
			}
			to, err := civil.ParseTimeOfDay(end)
			if err != nil {
				return err
			}

			log := zap.NewNop()
			b, err := openBackend(cmd.Context(), cfg, seedData, false, log)
			if err != nil {
				return err
			}
			defer b.Close()
			pricer, err := newPricer(cfg, b, log)
			if err != nil {
				return err
			}
			quote, err := pricer.Simulate(cmd.Context(), billingapp.SimulateRequest{
				RateID:    rateID,
				Date:      day,
				Start:     from,
				End:       to,
				GuardKind: billing.GuardKind(kind),
			})
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(quote)
		},
	}
	cmd.Flags().StringVar(&seedFile, "seed", "", "YAML reference data (required with the memory driver)")
	cmd.Flags().StringVar(&date, "date", "", "guard date, YYYY-MM-DD")
	cmd.Flags().StringVar(&start, "start", "", "start time, HH:MM")
	cmd.Flags().StringVar(&end, "end", "", "end time, HH:MM; at or before start continues next day")
	cmd.Flags().StringVar(&kind, "kind", string(billing.GuardBoth), "guard kind: passive, active or both")
	cmd.Flags().StringVar(&rateID, "rate", "", "rate table id; empty selects the table covering the date")
	_ = cmd.MarkFlagRequired("date")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

func newTokenCommand(configPath *string) *cobra.Command {
	var (
		subject string
		role    string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token signed with auth.jwt_secret",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			normalized, ok := auth.NormalizeRole(role)
			if !ok {
				return fmt.Errorf("token: unknown role %q", role)
			}
			token, err := auth.IssueJWT([]byte(cfg.Auth.JWTSecret), subject, normalized, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "sub", "", "acting user id")
	cmd.Flags().StringVar(&role, "role", string(auth.RoleReporter), "reporter, supervisor or admin")
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("sub")
	return cmd
}
