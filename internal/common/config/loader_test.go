package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
database:
  postgres:
    host: db.internal
    database: platform
    user: dispatcher
notifications:
  senders:
    like:
      en:
        display_name: "Platform | Likes"
        address: likes@platform.example
  type_templates:
    like: like_notification
transports:
  tiers:
    - kind: dynamic-relay
      url: http://relay-a/send
    - kind: legacy-relay
      url: http://relay-b/send
      timeout: 1500
    - kind: ses
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFromFile_AppliesDefaults(t *testing.T) {
	cfg, err := LoadFromFile(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, "ar", cfg.Notifications.DefaultLanguage)
	assert.Equal(t, []string{"ar", "en"}, cfg.Notifications.SupportedLanguages)
	assert.Equal(t, "UTC", cfg.Notifications.Timezone)
	assert.Equal(t, []string{"timestamp"}, cfg.Notifications.TimestampVariables)
	assert.Equal(t, "email_logs", cfg.Notifications.DeliveryLog.Table)
	assert.Equal(t, 3000, cfg.Transports.DefaultTimeout)
	assert.Equal(t, 5000, cfg.Notifications.StoreTimeout)
	assert.Equal(t, 5000, cfg.Notifications.DeliveryLog.WriteTimeout)
	assert.Equal(t, 3000, cfg.Database.Elasticsearch.Timeout)
	assert.False(t, cfg.Notifications.LanguageFallback)

	require.Len(t, cfg.Transports.Tiers, 3)
	assert.Equal(t, "tier-1", cfg.Transports.Tiers[0].Name)
	assert.Equal(t, 3000, cfg.Transports.Tiers[0].Timeout)
	assert.Equal(t, 1500, cfg.Transports.Tiers[1].Timeout)
	assert.Equal(t, 0.6, cfg.Transports.Tiers[2].Breaker.FailureRatio)

	assert.Equal(t, "Platform | Likes", cfg.Notifications.Senders["like"]["en"].DisplayName)
	assert.Equal(t, "like_notification", cfg.Notifications.TypeTemplates["like"])
}

func TestLoadFromFile_Validation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name: "no tiers",
			body: `
database:
  postgres: {host: h, database: d, user: u}
`,
			wantErr: "transports.tiers must list at least one tier",
		},
		{
			name: "unknown kind",
			body: `
database:
  postgres: {host: h, database: d, user: u}
transports:
  tiers:
    - kind: carrier-pigeon
`,
			wantErr: `kind "carrier-pigeon" is not supported`,
		},
		{
			name: "relay without url",
			body: `
database:
  postgres: {host: h, database: d, user: u}
transports:
  tiers:
    - kind: legacy-relay
`,
			wantErr: "url is required for legacy-relay",
		},
		{
			name: "missing postgres host",
			body: `
transports:
  tiers:
    - kind: ses
`,
			wantErr: "database.postgres.host is required",
		},
		{
			name: "bad timezone",
			body: `
database:
  postgres: {host: h, database: d, user: u}
notifications:
  timezone: Mars/Olympus
transports:
  tiers:
    - kind: ses
`,
			wantErr: "notifications.timezone",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromFile(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadFromFile_ExpandsEnv(t *testing.T) {
	t.Setenv("TEST_RELAY_URL", "http://relay.from.env/send")
	body := `
database:
  postgres: {host: h, database: d, user: u}
transports:
  tiers:
    - kind: dynamic-relay
      url: ${TEST_RELAY_URL}
`
	cfg, err := LoadFromFile(writeConfig(t, body))
	require.NoError(t, err)
	assert.Equal(t, "http://relay.from.env/send", cfg.Transports.Tiers[0].URL)
}

func TestGetDuration(t *testing.T) {
	assert.Equal(t, 3*time.Second, GetDuration(3000))
}

func TestGetWorkerConfig_Fallback(t *testing.T) {
	cfg := &Config{}
	wc := GetWorkerConfig(cfg, "notification.send")
	assert.True(t, wc.Enabled)
	assert.Equal(t, 5, wc.MaxJobsActive)
}
