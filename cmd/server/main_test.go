package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"posreports/backend/internal/config"
)

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "short"})
	if err == nil {
		t.Fatalf("expected weak security config to be rejected")
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "0123456789abcdef0123456789abcdef"})
	if err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("LOG_LEVEL", "error")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	err := rootCmd.Execute()
	return out.String(), err
}

func TestReportCommandPrintsEnvelope(t *testing.T) {
	out, err := runCLI(t, "report", "sales", "--format", "json")
	require.NoError(t, err)

	var env struct {
		Kind string          `json:"kind"`
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &env))
	require.Equal(t, "sales", env.Kind)
}

func TestReportCommandWritesCSV(t *testing.T) {
	out, err := runCLI(t, "report", "vat", "--format", "csv")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out, "report,vat"), "unexpected csv output: %s", out)
}

func TestReportCommandRejectsUnknownKind(t *testing.T) {
	_, err := runCLI(t, "report", "payroll", "--format", "json")
	require.ErrorContains(t, err, "unknown report kind")
}

func TestMigrateRequiresDatabaseURL(t *testing.T) {
	_, err := runCLI(t, "migrate")
	require.ErrorContains(t, err, "DATABASE_URL")
}
