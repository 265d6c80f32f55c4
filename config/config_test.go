package config

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		wantErr bool
		check   func(*testing.T, *Config)
	}{
		{
			name: "default configuration",
			envVars: map[string]string{
				"ENVIRONMENT": "development",
			},
			wantErr: false,
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "development", cfg.Environment)
				assert.Equal(t, "0.0.0.0", cfg.Server.Host)
				assert.Equal(t, 8000, cfg.Server.Port)
				assert.False(t, cfg.Server.TLS.Enabled)
				assert.Equal(t, time.Duration(0), cfg.Server.WriteTimeout)
				assert.Equal(t, "localhost", cfg.Database.Host)
				assert.Equal(t, 5432, cfg.Database.Port)
				assert.Equal(t, 16, cfg.Database.MaxOpenConns)
				assert.Nil(t, cfg.AuditDatabase)
				assert.Equal(t, "config/rules.yaml", cfg.Policy.RulesPath)
				assert.Equal(t, "./data/documents", cfg.Storage.Path)
				assert.Equal(t, 1536, cfg.Retrieval.EmbeddingDim)
				assert.Equal(t, 5, cfg.Retrieval.Limit)
				assert.Equal(t, 200, cfg.Retrieval.ChunkSizeWords)
				assert.Equal(t, "gpt-3.5-turbo", cfg.Providers.OpenAI.Model)
				assert.Equal(t, 100, cfg.Alerts.BufferSize)
				assert.True(t, cfg.Jobs.Enabled)
				assert.Equal(t, "@daily", cfg.Jobs.BillingSchedule)
				assert.Equal(t, "@hourly", cfg.Jobs.SealSchedule)
				assert.False(t, cfg.Audit.RecordModelErrors)
				assert.Empty(t, cfg.Auth.JWTSecret)
				assert.Equal(t, 0.0, cfg.RateLimit.RequestsPerSecond)
			},
		},
		{
			name: "production configuration with provider",
			envVars: map[string]string{
				"ENVIRONMENT":    "production",
				"SERVER_PORT":    "9000",
				"DB_HOST":        "prod-db.example.com",
				"DB_PORT":        "5433",
				"OPENAI_API_KEY": "sk-xxxxx",
			},
			wantErr: false,
			check: func(t *testing.T, cfg *Config) {
				assert.True(t, cfg.IsProduction())
				assert.False(t, cfg.IsDevelopment())
				assert.Equal(t, 9000, cfg.Server.Port)
				assert.Equal(t, "prod-db.example.com", cfg.Database.Host)
				assert.Equal(t, 5433, cfg.Database.Port)
				assert.NotEmpty(t, cfg.Providers.OpenAI.APIKey)
			},
		},
		{
			name: "custom timeouts and pool settings",
			envVars: map[string]string{
				"SERVER_READ_TIMEOUT":  "60s",
				"SERVER_WRITE_TIMEOUT": "90s",
				"DB_MAX_OPEN_CONNS":    "50",
				"DB_MAX_IDLE_CONNS":    "10",
			},
			wantErr: false,
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 60*time.Second, cfg.Server.ReadTimeout)
				assert.Equal(t, 90*time.Second, cfg.Server.WriteTimeout)
				assert.Equal(t, 50, cfg.Database.MaxOpenConns)
				assert.Equal(t, 10, cfg.Database.MaxIdleConns)
			},
		},
		{
			name: "gateway overrides",
			envVars: map[string]string{
				"POLICY_RULES_PATH":  "/etc/gateway/rules.yaml",
				"EMBEDDING_DIM":      "8",
				"RETRIEVAL_LIMIT":    "3",
				"ALERT_BUFFER_SIZE":  "10",
				"JOBS_ENABLED":       "false",
				"SEAL_SCHEDULE":      "*/5 * * * *",
				"AUDIT_MODEL_ERRORS": "true",
				"AUTH_JWT_SECRET":    "s3cret",
				"RATE_LIMIT_RPS":     "2.5",
				"RATE_LIMIT_BURST":   "4",
			},
			wantErr: false,
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "/etc/gateway/rules.yaml", cfg.Policy.RulesPath)
				assert.Equal(t, 8, cfg.Retrieval.EmbeddingDim)
				assert.Equal(t, 3, cfg.Retrieval.Limit)
				assert.Equal(t, 10, cfg.Alerts.BufferSize)
				assert.False(t, cfg.Jobs.Enabled)
				assert.Equal(t, "*/5 * * * *", cfg.Jobs.SealSchedule)
				assert.True(t, cfg.Audit.RecordModelErrors)
				assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
				assert.Equal(t, 2.5, cfg.RateLimit.RequestsPerSecond)
				assert.Equal(t, 4, cfg.RateLimit.Burst)
			},
		},
		{
			name: "separate audit database",
			envVars: map[string]string{
				"DATABASE_URL":       "postgres://u:p@main:5432/app",
				"DATABASE_URL_AUDIT": "postgres://u:p@ledger:5432/audit",
			},
			wantErr: false,
			check: func(t *testing.T, cfg *Config) {
				require.NotNil(t, cfg.AuditDatabase)
				assert.Equal(t, "host=ledger port=5432 database=audit", cfg.AuditDatabase.LogString())
				assert.Equal(t, "postgres://u:p@main:5432/app", cfg.Database.DSN())
			},
		},
		{
			name: "observability configuration",
			envVars: map[string]string{
				"LOG_LEVEL":       "debug",
				"LOG_FORMAT":      "console",
				"METRICS_ENABLED": "false",
			},
			wantErr: false,
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "debug", cfg.Observability.LogLevel)
				assert.Equal(t, "console", cfg.Observability.LogFormat)
				assert.False(t, cfg.Observability.MetricsEnabled)
			},
		},
		{
			name: "PORT env var takes precedence over SERVER_PORT",
			envVars: map[string]string{
				"PORT":        "9443",
				"SERVER_PORT": "9000",
			},
			wantErr: false,
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 9443, cfg.Server.Port)
			},
		},
		{
			name: "production without any provider",
			envVars: map[string]string{
				"ENVIRONMENT": "production",
			},
			wantErr: true,
		},
		{
			name: "invalid log level",
			envVars: map[string]string{
				"LOG_LEVEL": "verbose",
			},
			wantErr: true,
		},
		{
			name: "invalid default org id",
			envVars: map[string]string{
				"DEFAULT_ORG_ID": "acme",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Clear environment
			os.Clearenv()

			// Set test environment variables
			for k, v := range tt.envVars {
				os.Setenv(k, v)
			}

			cfg, err := New(context.Background())

			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, cfg)

			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func validConfig() *Config {
	return &Config{
		Environment: "development",
		Database: DatabaseConfig{
			Host:     "localhost",
			User:     "user",
			Database: "db",
		},
		Retrieval: RetrievalConfig{
			EmbeddingDim:   1536,
			Limit:          5,
			ChunkSizeWords: 200,
		},
		Alerts: AlertsConfig{BufferSize: 100},
		Auth:   AuthConfig{DefaultOrgID: "00000000-0000-0000-0000-000000000000"},
		Observability: ObservabilityConfig{
			LogLevel: "info",
		},
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid development config",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "missing database host",
			mutate:  func(c *Config) { c.Database.Host = "" },
			wantErr: true,
			errMsg:  "database configuration required",
		},
		{
			name:    "missing database user",
			mutate:  func(c *Config) { c.Database.User = "" },
			wantErr: true,
			errMsg:  "database user is required",
		},
		{
			name:    "connection string skips field checks",
			mutate:  func(c *Config) { c.Database = DatabaseConfig{ConnectionString: "postgres://x"} },
			wantErr: false,
		},
		{
			name:    "zero embedding dimension",
			mutate:  func(c *Config) { c.Retrieval.EmbeddingDim = 0 },
			wantErr: true,
			errMsg:  "embedding dimension",
		},
		{
			name:    "zero alert buffer",
			mutate:  func(c *Config) { c.Alerts.BufferSize = 0 },
			wantErr: true,
			errMsg:  "alert buffer size",
		},
		{
			name:    "negative rate limit",
			mutate:  func(c *Config) { c.RateLimit.RequestsPerSecond = -1 },
			wantErr: true,
			errMsg:  "rate limit",
		},
		{
			name:    "missing log level",
			mutate:  func(c *Config) { c.Observability.LogLevel = "" },
			wantErr: true,
			errMsg:  "log level is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()

			if tt.wantErr {
				assert.Error(t, err)
				if tt.errMsg != "" {
					assert.Contains(t, err.Error(), tt.errMsg)
				}
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_IsProduction(t *testing.T) {
	tests := []struct {
		name        string
		environment string
		want        bool
	}{
		{"production", "production", true},
		{"prod", "prod", true},
		{"development", "development", false},
		{"staging", "staging", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Environment: tt.environment}
			assert.Equal(t, tt.want, cfg.IsProduction())
		})
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "testuser",
		Password: "testpass",
		Database: "testdb",
		SSLMode:  "disable",
	}

	expected := "host=localhost port=5432 user=testuser password=testpass dbname=testdb sslmode=disable"
	assert.Equal(t, expected, cfg.DSN())
	assert.NotContains(t, cfg.LogString(), "testpass")
}

func TestServerConfig_Address(t *testing.T) {
	cfg := ServerConfig{
		Host: "0.0.0.0",
		Port: 8000,
	}

	assert.Equal(t, "0.0.0.0:8000", cfg.Address())
}

func TestGetEnvAsFloat(t *testing.T) {
	tests := []struct {
		name         string
		value        string
		defaultValue float64
		want         float64
	}{
		{"valid float", "1.5", 0, 1.5},
		{"empty value", "", 2, 2},
		{"invalid float", "fast", 3, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			if tt.value != "" {
				os.Setenv("TEST_FLOAT", tt.value)
			}
			assert.Equal(t, tt.want, getEnvAsFloat("TEST_FLOAT", tt.defaultValue))
		})
	}
}

func TestGetEnvAsDuration(t *testing.T) {
	os.Clearenv()
	os.Setenv("TEST_DURATION", "250ms")
	assert.Equal(t, 250*time.Millisecond, getEnvAsDuration("TEST_DURATION", time.Second))

	os.Setenv("TEST_DURATION", "soon")
	assert.Equal(t, time.Second, getEnvAsDuration("TEST_DURATION", time.Second))
}
