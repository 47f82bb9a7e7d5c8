package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoadDefaultsForDevProfile(t *testing.T) {
	lookup := mapLookup(map[string]string{})
	cfg, err := Load("datawise-api", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != ProfileDev {
		t.Fatalf("Profile = %q, want %q", cfg.Profile, ProfileDev)
	}
	if cfg.HTTP.Address != ":8080" {
		t.Fatalf("HTTP.Address = %q", cfg.HTTP.Address)
	}
	if cfg.Observability.LogLevel != slog.LevelDebug {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if cfg.AI.Provider != ProviderGemini {
		t.Fatalf("AI.Provider = %q", cfg.AI.Provider)
	}
	if cfg.AI.MaxRetries != 3 {
		t.Fatalf("AI.MaxRetries = %d", cfg.AI.MaxRetries)
	}
	if cfg.AI.RetryBackoff != time.Second {
		t.Fatalf("AI.RetryBackoff = %s", cfg.AI.RetryBackoff)
	}
	if cfg.AI.MaxTokens != 2048 {
		t.Fatalf("AI.MaxTokens = %d", cfg.AI.MaxTokens)
	}
	if cfg.Query.RowCap != 10000 {
		t.Fatalf("Query.RowCap = %d", cfg.Query.RowCap)
	}
	if cfg.Query.Timeout != 30*time.Second {
		t.Fatalf("Query.Timeout = %s", cfg.Query.Timeout)
	}
	if cfg.Query.TableAlias != "data" {
		t.Fatalf("Query.TableAlias = %q", cfg.Query.TableAlias)
	}
	if cfg.Chat.WindowSize != 10 {
		t.Fatalf("Chat.WindowSize = %d", cfg.Chat.WindowSize)
	}
	if cfg.Chat.QueryContextEntries != 3 || cfg.Chat.ChatContextEntries != 5 {
		t.Fatalf("Chat context entries = %d/%d", cfg.Chat.QueryContextEntries, cfg.Chat.ChatContextEntries)
	}
	if !cfg.Metadata.Enabled {
		t.Fatal("Metadata.Enabled should default to true in dev")
	}
	if cfg.ObjectStore.Endpoint != "localhost:9000" {
		t.Fatalf("ObjectStore.Endpoint = %q", cfg.ObjectStore.Endpoint)
	}
	if cfg.Auth.Required {
		t.Fatal("Auth.Required should default to false in dev")
	}
	if cfg.Maintenance.IntegrityInterval != 30*time.Minute || cfg.Maintenance.DatasetLimit != 1000 {
		t.Fatalf("Maintenance = %#v", cfg.Maintenance)
	}
	// 3 attempts of 30s plus 1s and 2s of backoff per completion.
	if got := cfg.AI.CompletionBudget(); got != 93*time.Second {
		t.Fatalf("AI.CompletionBudget() = %s", got)
	}
	if got := cfg.TurnBudget(); got != 525*time.Second {
		t.Fatalf("TurnBudget() = %s", got)
	}
	if cfg.HTTP.WriteTimeout != 530*time.Second {
		t.Fatalf("HTTP.WriteTimeout = %s, want turn budget plus margin", cfg.HTTP.WriteTimeout)
	}
	if got := cfg.TurnTimeout(); got != 525*time.Second {
		t.Fatalf("TurnTimeout() = %s", got)
	}
}

func TestExplicitWriteTimeoutBoundsTurns(t *testing.T) {
	tests := []struct {
		writeTimeout string
		want         time.Duration
	}{
		{writeTimeout: "2m", want: 115 * time.Second},
		{writeTimeout: "4s", want: 2 * time.Second},
	}
	for _, tc := range tests {
		cfg, err := Load("datawise-api", mapLookup(map[string]string{"DATAWISE_HTTP_WRITE_TIMEOUT": tc.writeTimeout}))
		if err != nil {
			t.Fatalf("Load(%s) error = %v", tc.writeTimeout, err)
		}
		if got := cfg.TurnTimeout(); got != tc.want {
			t.Fatalf("TurnTimeout() with write timeout %s = %s, want %s", tc.writeTimeout, got, tc.want)
		}
	}
}

func TestLoadTestProfileDisablesPersistence(t *testing.T) {
	cfg, err := Load("datawise-api", mapLookup(map[string]string{"DATAWISE_PROFILE": "test"}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Metadata.Enabled {
		t.Fatal("Metadata.Enabled should default to false in test")
	}
	if cfg.Semantic.Enabled {
		t.Fatal("Semantic.Enabled should default to false in test")
	}
	if cfg.Maintenance.IntegrityInterval != 0 {
		t.Fatalf("Maintenance.IntegrityInterval = %s, want disabled in test", cfg.Maintenance.IntegrityInterval)
	}
	if cfg.Observability.LogLevel != slog.LevelWarn {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
}

func TestLoadProdProfileDefaults(t *testing.T) {
	lookup := mapLookup(map[string]string{"DATAWISE_PROFILE": "prod"})
	cfg, err := Load("datawise-api", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != ProfileProd {
		t.Fatalf("Profile = %q, want %q", cfg.Profile, ProfileProd)
	}
	if cfg.Observability.LogLevel != slog.LevelInfo {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if !cfg.ObjectStore.UseSSL {
		t.Fatal("ObjectStore.UseSSL should default to true in prod")
	}
	if cfg.ObjectStore.AutoCreateBucket {
		t.Fatal("ObjectStore.AutoCreateBucket should default to false in prod")
	}
	if !cfg.Auth.Required {
		t.Fatal("Auth.Required should default to true in prod")
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	lookup := mapLookup(map[string]string{
		"DATAWISE_PROFILE":                    "test",
		"DATAWISE_HTTP_ADDR":                  ":9999",
		"DATAWISE_HTTP_READ_TIMEOUT":          "2s",
		"DATAWISE_HTTP_MAX_UPLOAD_BYTES":      "1024",
		"DATAWISE_LOG_LEVEL":                  "error",
		"DATAWISE_METADATA_ENABLED":           "true",
		"DATAWISE_METADATA_DSN":               "postgres://example",
		"DATAWISE_METADATA_MAX_OPEN_CONNS":    "42",
		"DATAWISE_SERVICE_NAME":               "datawise-custom",
		"DATAWISE_OBJECTSTORE_BUCKET":         "datawise-prod",
		"DATAWISE_AI_PROVIDER":                "OpenAI",
		"DATAWISE_AI_BASE_URL":                "https://api.example.com",
		"DATAWISE_AI_API_KEY":                 "secret-key",
		"DATAWISE_AI_MODEL":                   "gpt-4o-mini",
		"DATAWISE_AI_TEMPERATURE":             "0.3",
		"DATAWISE_AI_TIMEOUT":                 "21s",
		"DATAWISE_AI_MAX_RETRIES":             "5",
		"DATAWISE_AI_RETRY_BACKOFF":           "250ms",
		"DATAWISE_QUERY_ROW_CAP":              "50",
		"DATAWISE_QUERY_TIMEOUT":              "5s",
		"DATAWISE_QUERY_TABLE_ALIAS":          "sales",
		"DATAWISE_CHAT_WINDOW_SIZE":           "4",
		"DATAWISE_CHAT_QUERY_CONTEXT_ENTRIES": "2",
		"DATAWISE_SEMANTIC_PATH":              "/tmp/history.db",
		"DATAWISE_AUTH_REQUIRED":              "true",
		"DATAWISE_AUTH_STATIC_KEYS":           "k1:analyst",
	})
	cfg, err := Load("datawise-api", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Service.Name != "datawise-custom" {
		t.Fatalf("Service.Name = %q", cfg.Service.Name)
	}
	if cfg.HTTP.Address != ":9999" {
		t.Fatalf("HTTP.Address = %q", cfg.HTTP.Address)
	}
	if cfg.HTTP.ReadTimeout != 2*time.Second {
		t.Fatalf("HTTP.ReadTimeout = %s", cfg.HTTP.ReadTimeout)
	}
	if cfg.HTTP.MaxUploadSize != 1024 {
		t.Fatalf("HTTP.MaxUploadSize = %d", cfg.HTTP.MaxUploadSize)
	}
	if cfg.Observability.LogLevel != slog.LevelError {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if !cfg.Metadata.Enabled || cfg.Metadata.DSN != "postgres://example" || cfg.Metadata.MaxOpenConns != 42 {
		t.Fatalf("Metadata = %#v", cfg.Metadata)
	}
	if cfg.ObjectStore.Bucket != "datawise-prod" {
		t.Fatalf("ObjectStore.Bucket = %q", cfg.ObjectStore.Bucket)
	}
	if cfg.AI.Provider != ProviderOpenAI {
		t.Fatalf("AI.Provider = %q", cfg.AI.Provider)
	}
	if cfg.AI.APIKey != "secret-key" || cfg.AI.Model != "gpt-4o-mini" {
		t.Fatalf("AI = %#v", cfg.AI)
	}
	if cfg.AI.Temperature != 0.3 {
		t.Fatalf("AI.Temperature = %f", cfg.AI.Temperature)
	}
	if cfg.AI.Timeout != 21*time.Second {
		t.Fatalf("AI.Timeout = %s", cfg.AI.Timeout)
	}
	if cfg.AI.MaxRetries != 5 || cfg.AI.RetryBackoff != 250*time.Millisecond {
		t.Fatalf("AI retry = %d/%s", cfg.AI.MaxRetries, cfg.AI.RetryBackoff)
	}
	if cfg.Query.RowCap != 50 || cfg.Query.Timeout != 5*time.Second || cfg.Query.TableAlias != "sales" {
		t.Fatalf("Query = %#v", cfg.Query)
	}
	if cfg.Chat.WindowSize != 4 || cfg.Chat.QueryContextEntries != 2 {
		t.Fatalf("Chat = %#v", cfg.Chat)
	}
	if cfg.Semantic.Path != "/tmp/history.db" {
		t.Fatalf("Semantic.Path = %q", cfg.Semantic.Path)
	}
	if !cfg.Auth.Required || cfg.Auth.StaticKeys != "k1:analyst" {
		t.Fatalf("Auth = %#v", cfg.Auth)
	}
}

func TestLoadErrorsOnInvalidValues(t *testing.T) {
	tests := []map[string]string{
		{"DATAWISE_PROFILE": "oops"},
		{"DATAWISE_HTTP_READ_TIMEOUT": "NaN"},
		{"DATAWISE_METADATA_MAX_OPEN_CONNS": "oops"},
		{"DATAWISE_AI_TEMPERATURE": "bad"},
		{"DATAWISE_AI_PROVIDER": "watson"},
		{"DATAWISE_AI_MAX_RETRIES": "0"},
		{"DATAWISE_QUERY_ROW_CAP": "0"},
		{"DATAWISE_QUERY_TABLE_ALIAS": " "},
		{"DATAWISE_CHAT_WINDOW_SIZE": "0"},
		{"DATAWISE_CHAT_MAX_SESSIONS": "0"},
		{"DATAWISE_METADATA_ENABLED": "not-bool"},
		{"DATAWISE_LOG_LEVEL": "verbose"},
		{"DATAWISE_AUTH_REQUIRED": "not-bool"},
		{"DATAWISE_MAINTENANCE_INTEGRITY_INTERVAL": "-1m"},
		{"DATAWISE_HTTP_WRITE_TIMEOUT": "-1s"},
	}
	for _, env := range tests {
		_, err := Load("datawise-api", mapLookup(env))
		if err == nil {
			t.Fatalf("Load() expected error for env %#v", env)
		}
	}
}

func mapLookup(values map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}
