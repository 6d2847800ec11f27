package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guardduty-billing/internal/auth"
)

const seedDocument = `
codes:
  - id: c-day
    code: D10
    kind: diurnal
    start: "06:00"
    end: "21:00"
    valid_from: 2025-01-01
rates:
  - id: rate-2025
    name: "2025"
    passive_guard_value: "100"
    active_hour_value: "20"
    nocturnal_surcharge_weekday: "5"
    nocturnal_surcharge_non_working: "7.5"
    valid_from: 2025-01-01
`

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func memoryEnv(t *testing.T) {
	t.Setenv("GUARDDUTY_DATABASE_DRIVER", "memory")
	t.Setenv("GUARDDUTY_AUTH_JWT_SECRET", "cli-secret")
}

func TestSimulateCommand(t *testing.T) {
	memoryEnv(t)
	seedPath := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(seedPath, []byte(seedDocument), 0o600))

	out, err := run(t, "simulate", "--seed", seedPath, "--date", "2025-03-18", "--start", "10:00", "--end", "11:30", "--kind", "active")
	require.NoError(t, err, out)
	var quote struct {
		RateID string          `json:"rate_id"`
		Total  decimal.Decimal `json:"total"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &quote))
	assert.Equal(t, "rate-2025", quote.RateID)
	assert.True(t, quote.Total.Equal(decimal.NewFromInt(40)), quote.Total.String())

	_, err = run(t, "simulate", "--seed", seedPath, "--date", "2024-03-18", "--start", "10:00", "--end", "11:30")
	assert.Error(t, err)
}

func TestTokenCommand(t *testing.T) {
	memoryEnv(t)
	out, err := run(t, "token", "--sub", "ana", "--role", "Supervisor")
	require.NoError(t, err, out)
	claims, err := auth.ParseJWT(strings.TrimSpace(out), []byte("cli-secret"))
	require.NoError(t, err)
	assert.Equal(t, "ana", claims.Subject)
	assert.Equal(t, "supervisor", claims.Role)

	_, err = run(t, "token", "--sub", "ana", "--role", "root")
	assert.Error(t, err)
}

func TestMigrateRejectsMemory(t *testing.T) {
	memoryEnv(t)
	_, err := run(t, "migrate")
	assert.Error(t, err)
}
