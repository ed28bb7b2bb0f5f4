package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// loadFromViper mirrors the unmarshal step of Load without the global
// pflag state, so tests can exercise defaults, files, and env precedence.
func loadFromViper(t *testing.T, configure func(v *viper.Viper)) *Config {
	t.Helper()
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("MODELQL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	if configure != nil {
		configure(v)
	}

	var cfg Config
	err := v.UnmarshalExact(
		&cfg,
		viper.DecodeHook(
			mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
		),
	)
	require.NoError(t, err)
	return &cfg
}

func TestDefaults(t *testing.T) {
	cfg := loadFromViper(t, nil)

	assert.Equal(t, "model.yaml", cfg.Model.Path)
	assert.Equal(t, 3306, cfg.Database.Port)
	assert.Equal(t, "root", cfg.Database.User)
	assert.Equal(t, 25, cfg.Database.Pool.MaxOpen)
	assert.Equal(t, 5, cfg.Database.Pool.MaxIdle)
	assert.Equal(t, 5*time.Minute, cfg.Database.Pool.MaxLifetime)
	assert.Equal(t, "modelql", cfg.Observability.ServiceName)
	assert.Equal(t, "info", cfg.Observability.Logging.Level)
	assert.Equal(t, "json", cfg.Observability.Logging.Format)
	assert.Equal(t, 1.0, cfg.Observability.TraceSampleRatio)
	assert.False(t, cfg.Observability.TracingEnabled)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MODELQL_DATABASE_HOST", "db.internal")
	t.Setenv("MODELQL_DATABASE_POOL_MAX_OPEN", "50")
	t.Setenv("MODELQL_OBSERVABILITY_LOGGING_LEVEL", "debug")

	cfg := loadFromViper(t, nil)

	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 50, cfg.Database.Pool.MaxOpen)
	assert.Equal(t, "debug", cfg.Observability.Logging.Level)
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "modelql.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
model:
  path: /srv/app/schema.graphql
database:
  host: localhost
  user: app
  database: app
  connection_timeout: 30s
observability:
  tracing_enabled: true
  otlp:
    endpoint: collector:4317
`), 0o600))

	cfg := loadFromViper(t, func(v *viper.Viper) {
		v.SetConfigFile(path)
		require.NoError(t, v.ReadInConfig())
	})

	assert.Equal(t, "/srv/app/schema.graphql", cfg.Model.Path)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 30*time.Second, cfg.Database.ConnectionTimeout)
	assert.True(t, cfg.Observability.TracingEnabled)
	assert.Equal(t, "collector:4317", cfg.Observability.OTLP.Endpoint)
}

func TestDSNFromDiscreteFields(t *testing.T) {
	d := DatabaseConfig{
		Host:     "db.example.com",
		Port:     3306,
		User:     "app",
		Password: "secret",
		Database: "files",
	}
	assert.Equal(t,
		"app:secret@tcp(db.example.com:3306)/files?parseTime=true&loc=UTC",
		d.DSN())
}

func TestDSNNormalizesConnectionString(t *testing.T) {
	tests := []struct {
		name string
		dsn  string
		want string
	}{
		{
			name: "bare dsn gains parseTime and loc",
			dsn:  "app:secret@tcp(db:3306)/files",
			want: "app:secret@tcp(db:3306)/files?parseTime=true&loc=UTC",
		},
		{
			name: "existing params are appended to",
			dsn:  "app:secret@tcp(db:3306)/files?charset=utf8mb4",
			want: "app:secret@tcp(db:3306)/files?charset=utf8mb4&parseTime=true&loc=UTC",
		},
		{
			name: "already normalized is untouched",
			dsn:  "app:secret@tcp(db:3306)/files?parseTime=true&loc=Local",
			want: "app:secret@tcp(db:3306)/files?parseTime=true&loc=Local",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := DatabaseConfig{ConnectionString: tt.dsn}
			assert.Equal(t, tt.want, d.DSN())
		})
	}
}

func TestReadSecretFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "password")
	require.NoError(t, os.WriteFile(path, []byte("s3cret\n"), 0o600))

	got, err := readSecretFile(path)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", got)

	_, err = readSecretFile(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestValidateDefaultsNeedDatabase(t *testing.T) {
	cfg := loadFromViper(t, nil)
	result := cfg.Validate()

	require.True(t, result.HasErrors())
	assert.Contains(t, result.Error(), "no database connection configured")
}

func TestValidateAccepts(t *testing.T) {
	cfg := loadFromViper(t, nil)
	cfg.Database.Host = "localhost"
	cfg.Database.Database = "app"

	result := cfg.Validate()
	assert.False(t, result.HasErrors())
	assert.Empty(t, result.Warnings)
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *Config)
		message string
	}{
		{
			name:    "missing model path",
			mutate:  func(cfg *Config) { cfg.Model.Path = "" },
			message: "model.path",
		},
		{
			name:    "bad port",
			mutate:  func(cfg *Config) { cfg.Database.Port = 70000 },
			message: "invalid port 70000",
		},
		{
			name:    "missing user",
			mutate:  func(cfg *Config) { cfg.Database.User = "" },
			message: "database user is required",
		},
		{
			name:    "trace ratio out of range",
			mutate:  func(cfg *Config) { cfg.Observability.TraceSampleRatio = 1.5 },
			message: "invalid ratio 1.5",
		},
		{
			name:    "unknown log level",
			mutate:  func(cfg *Config) { cfg.Observability.Logging.Level = "verbose" },
			message: `unknown log level "verbose"`,
		},
		{
			name:    "unknown log format",
			mutate:  func(cfg *Config) { cfg.Observability.Logging.Format = "logfmt" },
			message: `unknown log format "logfmt"`,
		},
		{
			name: "tracing without endpoint",
			mutate: func(cfg *Config) {
				cfg.Observability.TracingEnabled = true
				cfg.Observability.OTLP.Endpoint = ""
			},
			message: "endpoint is required when tracing is enabled",
		},
		{
			name: "tracing with bad protocol",
			mutate: func(cfg *Config) {
				cfg.Observability.TracingEnabled = true
				cfg.Observability.OTLP.Protocol = "udp"
			},
			message: `unknown protocol "udp"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := loadFromViper(t, nil)
			cfg.Database.Host = "localhost"
			cfg.Database.Database = "app"
			tt.mutate(cfg)

			result := cfg.Validate()
			require.True(t, result.HasErrors())
			assert.Contains(t, result.Error(), tt.message)
		})
	}
}

func TestValidatePoolWarning(t *testing.T) {
	cfg := loadFromViper(t, nil)
	cfg.Database.Host = "localhost"
	cfg.Database.Database = "app"
	cfg.Database.Pool.MaxOpen = 5
	cfg.Database.Pool.MaxIdle = 10

	result := cfg.Validate()
	assert.False(t, result.HasErrors())
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0].String(), "max_idle exceeds max_open")
}

func TestMergeOTLPConfigs(t *testing.T) {
	base := OTLPConfig{
		Endpoint: "collector:4317",
		Protocol: "grpc",
		Insecure: true,
		Headers:  map[string]string{"x-tenant": "a"},
		Timeout:  10 * time.Second,
	}
	o := ObservabilityConfig{
		OTLP: base,
		Traces: &OTLPConfig{
			Endpoint: "traces:4318",
			Protocol: "http/protobuf",
			Headers:  map[string]string{"x-signal": "traces"},
		},
	}

	traces := o.GetTracesConfig()
	assert.Equal(t, "traces:4318", traces.Endpoint)
	assert.Equal(t, "http/protobuf", traces.Protocol)
	assert.Equal(t, 10*time.Second, traces.Timeout)
	assert.Equal(t, map[string]string{"x-tenant": "a", "x-signal": "traces"}, traces.Headers)

	logs := o.GetLogsConfig()
	assert.Equal(t, base.Endpoint, logs.Endpoint)
}
