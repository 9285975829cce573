package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/npl-provision/export"
	"github.com/warp/npl-provision/provision"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "npl.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	// GIVEN: an empty config file
	path := writeConfig(t, "")

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "conventional", cfg.Provisioning.Portfolio)
	assert.Equal(t, string(provision.RateBasisCurrent), cfg.Provisioning.RateBasis)
	assert.Equal(t, provision.DefaultNormalPaidCode, cfg.Provisioning.NormalPaidCode)
	assert.Equal(t, []string{export.FormatCSV, export.FormatInterface}, cfg.Output.Formats)

	rr, err := cfg.RecoveryRate()
	require.NoError(t, err)
	assert.Nil(t, rr)
}

func TestLoad_FileAndEnvironment(t *testing.T) {
	path := writeConfig(t, `
database:
  driver: postgres
  dsn: postgres://file
provisioning:
  portfolio: islamic
  rate_basis: prior
  recovery_rate: "42.5"
output:
  formats: [csv, xlsx, xml]
scheduler:
  enabled: true
  spec: "0 6 1 * *"
`)
	// WHEN: the environment overrides one key
	t.Setenv("NPL_DATABASE_DSN", "postgres://env")

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)

	// THEN: the file and the environment both apply
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "postgres://env", cfg.Database.DSN)
	assert.Equal(t, "islamic", cfg.Provisioning.Portfolio)
	assert.Equal(t, "prior", cfg.Provisioning.RateBasis)
	assert.True(t, cfg.Scheduler.Enabled)
	assert.Contains(t, cfg.Output.Formats, export.FormatXLSX)

	rr, err := cfg.RecoveryRate()
	require.NoError(t, err)
	require.NotNil(t, rr)
	assert.Equal(t, "42.5", rr.String())
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(viper.New(), filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"driver", "database: {driver: oracle}"},
		{"log level", "logging: {level: loud}"},
		{"log format", "logging: {format: xml}"},
		{"rate basis", "provisioning: {rate_basis: next}"},
		{"recovery rate", "provisioning: {recovery_rate: forty}"},
		{"feed format", "feeds: {format: xls}"},
		{"output format", "output: {formats: [pdf]}"},
		{"cron spec", "scheduler: {enabled: true, spec: \"every month\"}"},
		{"notify without recipients", "notify: {enabled: true, smtp_host: mail, from: a@b.c}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(viper.New(), writeConfig(t, tt.yaml))
			assert.Error(t, err)
		})
	}
}
