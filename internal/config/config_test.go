package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/seanblong/docqa/internal/ai"
	"github.com/seanblong/docqa/internal/search"
	"github.com/seanblong/docqa/pkg/models"
	"github.com/spf13/pflag"
)

func TestSpecificationDefaults(t *testing.T) {
	clearTestEnv(t)
	withArgs(t)
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)

	cfg, err := Load("", fs)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	checks := []struct {
		name string
		got  any
		want any
	}{
		{"Provider", cfg.Provider, "stub"},
		{"Location", cfg.Location, "us-central1"},
		{"DataDir", cfg.DataDir, "data"},
		{"LedgerPath", cfg.LedgerPath, "processed_files.db"},
		{"Backend", cfg.Backend, BackendLocal},
		{"IndexDir", cfg.IndexDir, "index_db"},
		{"IndexName", cfg.IndexName, "documents"},
		{"ChunkSize", cfg.ChunkSize, 1000},
		{"ChunkOverlap", cfg.ChunkOverlap, 200},
		{"MinChunkLength", cfg.MinChunkLength, 100},
		{"TopK", cfg.TopK, 5},
		{"FileCategories", cfg.FileCategories, []string{"text_documents", "spreadsheets", "presentations"}},
		{"PromptStyle", cfg.PromptStyle, "standard"},
		{"ExcerptLength", cfg.ExcerptLength, 150},
		{"EmbedBatchSize", cfg.EmbedBatchSize, 32},
		{"EmbedMaxInFlight", cfg.EmbedMaxInFlight, 2},
		{"EmbedAttempts", cfg.EmbedAttempts, 3},
		{"EmbedTimeout", cfg.EmbedTimeout, Duration(30 * time.Second)},
		{"GenerateTimeout", cfg.GenerateTimeout, Duration(60 * time.Second)},
		{"LogLevel", cfg.LogLevel, "info"},
		{"Port", cfg.Port, 8080},
		{"Watch", cfg.Watch, false},
		{"SkipTLSVerify", cfg.SkipTLSVerify, false},
	}
	for _, c := range checks {
		if !reflect.DeepEqual(c.got, c.want) {
			t.Errorf("Expected %s %v, got %v", c.name, c.want, c.got)
		}
	}
	if cfg.Workers < 1 || cfg.Workers > 8 {
		t.Errorf("Expected Workers in [1,8], got %d", cfg.Workers)
	}
}

func TestLoadFromYAMLFile(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "test-config.yaml")

	yamlContent := `
provider: "openai"
providerApiKey: "test-api-key"
providerEmbedModel: "text-embedding-3-small"
providerGenerationModel: "gpt-4o-mini"
providerDim: 1536
dataDir: "/srv/docs"
ledgerPath: "/var/lib/docqa/ledger.db"
indexName: "handbook"
chunkSize: 800
chunkOverlap: 100
topK: 8
fileCategories: ["text_documents", "spreadsheets"]
promptStyle: "advanced"
embedTimeout: "45s"
generateTimeout: "2m"
embedRate: 4.5
logLevel: "debug"
watch: true
`
	if err := os.WriteFile(configFile, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("Failed to write test config file: %v", err)
	}

	clearTestEnv(t)
	withArgs(t)
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)

	cfg, err := Load(configFile, fs)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Provider != "openai" || cfg.APIKey != "test-api-key" || cfg.GenerateModel != "gpt-4o-mini" {
		t.Errorf("provider settings = %q %q %q", cfg.Provider, cfg.APIKey, cfg.GenerateModel)
	}
	if cfg.Dim != 1536 {
		t.Errorf("Expected Dim 1536, got %d", cfg.Dim)
	}
	if cfg.DataDir != "/srv/docs" || cfg.IndexName != "handbook" {
		t.Errorf("paths = %q %q", cfg.DataDir, cfg.IndexName)
	}
	if cfg.ChunkSize != 800 || cfg.ChunkOverlap != 100 || cfg.TopK != 8 {
		t.Errorf("chunking = %d/%d k=%d", cfg.ChunkSize, cfg.ChunkOverlap, cfg.TopK)
	}
	if !reflect.DeepEqual(cfg.FileCategories, []string{"text_documents", "spreadsheets"}) {
		t.Errorf("FileCategories = %v", cfg.FileCategories)
	}
	if cfg.EmbedTimeout != Duration(45*time.Second) || cfg.GenerateTimeout != Duration(2*time.Minute) {
		t.Errorf("timeouts = %v %v", cfg.EmbedTimeout, cfg.GenerateTimeout)
	}
	if cfg.EmbedRate != 4.5 || !cfg.Watch || cfg.PromptStyle != "advanced" {
		t.Errorf("EmbedRate=%v Watch=%v PromptStyle=%q", cfg.EmbedRate, cfg.Watch, cfg.PromptStyle)
	}
}

func TestLoadFromTOMLFile(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "docqa.toml")

	tomlContent := `
provider = "google"
providerProjectID = "my-project"
chunkSize = 1200
chunkOverlap = 300
fileCategories = ["spreadsheets"]
embedTimeout = "10s"
backend = "postgres"
database = "postgres://u:p@localhost:5432/docqa"
`
	if err := os.WriteFile(configFile, []byte(tomlContent), 0644); err != nil {
		t.Fatal(err)
	}

	clearTestEnv(t)
	withArgs(t)
	cfg, err := Load(configFile, pflag.NewFlagSet("test", pflag.ContinueOnError))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Provider != "google" || cfg.ProjectID != "my-project" {
		t.Errorf("provider = %q %q", cfg.Provider, cfg.ProjectID)
	}
	if cfg.ChunkSize != 1200 || cfg.ChunkOverlap != 300 {
		t.Errorf("chunking = %d/%d", cfg.ChunkSize, cfg.ChunkOverlap)
	}
	if cfg.EmbedTimeout != Duration(10*time.Second) {
		t.Errorf("EmbedTimeout = %v", cfg.EmbedTimeout)
	}
	if cfg.Backend != BackendPostgres || cfg.Database == "" {
		t.Errorf("backend = %q %q", cfg.Backend, cfg.Database)
	}
	if !reflect.DeepEqual(cfg.FileCategories, []string{"spreadsheets"}) {
		t.Errorf("FileCategories = %v", cfg.FileCategories)
	}
}

func TestLoadFromEnvironmentVariables(t *testing.T) {
	clearTestEnv(t)
	withArgs(t)

	envVars := map[string]string{
		"DOCQA_PROVIDER":                  "vertexai",
		"DOCQA_PROVIDER_API_KEY":          "env-api-key",
		"DOCQA_PROVIDER_EMBEDDING_MODEL":  "env-embed-model",
		"DOCQA_PROVIDER_GENERATION_MODEL": "env-gen-model",
		"DOCQA_PROVIDER_PROJECT_ID":       "env-project-id",
		"DOCQA_PROVIDER_LOCATION":         "europe-west1",
		"DOCQA_EMBED_DIM":                 "768",
		"DOCQA_DATA_DIR":                  "/env/docs",
		"DOCQA_LEDGER_PATH":               "/env/ledger.db",
		"DOCQA_INDEX_DIR":                 "/env/index",
		"DOCQA_INDEX_NAME":                "envindex",
		"DOCQA_CHUNK_SIZE":                "500",
		"DOCQA_CHUNK_OVERLAP":             "50",
		"DOCQA_MIN_CHUNK_LENGTH":          "20",
		"DOCQA_TOP_K":                     "3",
		"DOCQA_FILE_CATEGORIES":           "images,audio",
		"DOCQA_PROMPT_STYLE":              "advanced",
		"DOCQA_EMBED_TIMEOUT":             "5s",
		"DOCQA_EMBED_RATE":                "2",
		"DOCQA_WORKERS":                   "3",
		"DOCQA_LOG_LEVEL":                 "warn",
		"DOCQA_WATCH":                     "true",
		"DOCQA_SKIP_TLS_VERIFY":           "true",
	}
	for key, value := range envVars {
		t.Setenv(key, value)
	}

	cfg, err := Load("", pflag.NewFlagSet("test", pflag.ContinueOnError))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Provider != "vertexai" || cfg.APIKey != "env-api-key" || cfg.GenerateModel != "env-gen-model" {
		t.Errorf("provider = %q %q %q", cfg.Provider, cfg.APIKey, cfg.GenerateModel)
	}
	if cfg.Dim != 768 {
		t.Errorf("Expected Dim 768, got %d", cfg.Dim)
	}
	if cfg.DataDir != "/env/docs" || cfg.LedgerPath != "/env/ledger.db" || cfg.IndexDir != "/env/index" || cfg.IndexName != "envindex" {
		t.Errorf("paths = %+v", cfg)
	}
	if cfg.ChunkSize != 500 || cfg.ChunkOverlap != 50 || cfg.MinChunkLength != 20 || cfg.TopK != 3 {
		t.Errorf("chunking = %d/%d/%d k=%d", cfg.ChunkSize, cfg.ChunkOverlap, cfg.MinChunkLength, cfg.TopK)
	}
	if !reflect.DeepEqual(cfg.FileCategories, []string{"images", "audio"}) {
		t.Errorf("FileCategories = %v", cfg.FileCategories)
	}
	if cfg.EmbedTimeout != Duration(5*time.Second) || cfg.EmbedRate != 2 || cfg.Workers != 3 {
		t.Errorf("EmbedTimeout=%v EmbedRate=%v Workers=%d", cfg.EmbedTimeout, cfg.EmbedRate, cfg.Workers)
	}
	if cfg.LogLevel != "warn" || !cfg.Watch {
		t.Errorf("LogLevel=%q Watch=%v", cfg.LogLevel, cfg.Watch)
	}
	if !cfg.SkipTLSVerify || !cfg.ClientConfig().SkipTLSVerify {
		t.Errorf("SkipTLSVerify not applied from environment")
	}
}

func TestLoadFromFlags(t *testing.T) {
	clearTestEnv(t)
	withArgs(t,
		"--provider", "google",
		"--provider-api-key", "flag-api-key",
		"--embed-dim", "2048",
		"--data-dir", "/flag/docs",
		"--chunk-size", "1500",
		"--chunk-overlap", "250",
		"--top-k", "7",
		"--file-categories", "text_documents,images",
		"--prompt-style", "advanced",
		"--embed-timeout", "12s",
		"--generate-timeout", "90s",
		"--embed-rate", "1.5",
		"--watch",
		"--log-level", "error",
	)

	cfg, err := Load("", pflag.NewFlagSet("test", pflag.ContinueOnError))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Provider != "google" || cfg.APIKey != "flag-api-key" || cfg.Dim != 2048 {
		t.Errorf("provider = %q %q %d", cfg.Provider, cfg.APIKey, cfg.Dim)
	}
	if cfg.DataDir != "/flag/docs" || cfg.ChunkSize != 1500 || cfg.ChunkOverlap != 250 || cfg.TopK != 7 {
		t.Errorf("settings = %+v", cfg)
	}
	if !reflect.DeepEqual(cfg.FileCategories, []string{"text_documents", "images"}) {
		t.Errorf("FileCategories = %v", cfg.FileCategories)
	}
	if cfg.EmbedTimeout != Duration(12*time.Second) || cfg.GenerateTimeout != Duration(90*time.Second) {
		t.Errorf("timeouts = %v %v", cfg.EmbedTimeout, cfg.GenerateTimeout)
	}
	if cfg.EmbedRate != 1.5 || !cfg.Watch || cfg.LogLevel != "error" || cfg.PromptStyle != "advanced" {
		t.Errorf("EmbedRate=%v Watch=%v LogLevel=%q PromptStyle=%q", cfg.EmbedRate, cfg.Watch, cfg.LogLevel, cfg.PromptStyle)
	}
}

func TestConfigPrecedence(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "docqa.yaml")
	if err := os.WriteFile(configFile, []byte("provider: openai\ntopK: 9\nchunkSize: 900\n"), 0644); err != nil {
		t.Fatal(err)
	}

	clearTestEnv(t)
	t.Setenv("DOCQA_TOP_K", "4")
	t.Setenv("DOCQA_LOG_LEVEL", "debug")
	withArgs(t, "--top-k", "2")

	cfg, err := Load(configFile, pflag.NewFlagSet("test", pflag.ContinueOnError))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	// Flag beats env beats file beats default.
	if cfg.TopK != 2 {
		t.Errorf("Expected TopK 2 (flag), got %d", cfg.TopK)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("Expected LogLevel 'debug' (env), got %q", cfg.LogLevel)
	}
	if cfg.ChunkSize != 900 || cfg.Provider != "openai" {
		t.Errorf("Expected file values, got ChunkSize=%d Provider=%q", cfg.ChunkSize, cfg.Provider)
	}
	if cfg.ChunkOverlap != 200 {
		t.Errorf("Expected default ChunkOverlap 200, got %d", cfg.ChunkOverlap)
	}
}

func TestDotEnvFile(t *testing.T) {
	tmpDir := t.TempDir()
	chdir(t, tmpDir)
	if err := os.WriteFile(".env", []byte("DOCQA_INDEX_NAME=fromdotenv\nDOCQA_TOP_K=6\n"), 0644); err != nil {
		t.Fatal(err)
	}

	clearTestEnv(t)
	// Already-set variables win over .env.
	t.Setenv("DOCQA_TOP_K", "11")
	withArgs(t)

	cfg, err := Load("", pflag.NewFlagSet("test", pflag.ContinueOnError))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("DOCQA_INDEX_NAME") })

	if cfg.IndexName != "fromdotenv" {
		t.Errorf("Expected IndexName from .env, got %q", cfg.IndexName)
	}
	if cfg.TopK != 11 {
		t.Errorf("Expected TopK 11 from the environment, got %d", cfg.TopK)
	}
}

func TestAllAutoDiscoveryPaths(t *testing.T) {
	tmpDir := t.TempDir()
	chdir(t, tmpDir)

	if err := os.Mkdir("config", 0755); err != nil {
		t.Fatalf("Failed to create config directory: %v", err)
	}

	testCases := []struct {
		path     string
		content  string
		expected string
	}{
		{"config/docqa.yaml", `indexName: "config-docqa"`, "config-docqa"},
		{"config/config.yaml", `indexName: "config-config"`, "config-config"},
		{"./docqa.yaml", `indexName: "dot-docqa"`, "dot-docqa"},
		{"./config.yaml", `indexName: "dot-config"`, "dot-config"},
		{"./docqa.toml", `indexName = "dot-toml"`, "dot-toml"},
	}

	for i, tc := range testCases {
		t.Run(tc.path, func(t *testing.T) {
			for _, otherCase := range testCases {
				if err := os.Remove(otherCase.path); err != nil && !os.IsNotExist(err) {
					t.Logf("Failed to remove %s: %v", otherCase.path, err)
				}
			}
			if err := os.WriteFile(tc.path, []byte(tc.content), 0644); err != nil {
				t.Fatalf("Failed to write config file: %v", err)
			}

			clearTestEnv(t)
			withArgs(t)
			cfg, err := Load("", pflag.NewFlagSet("test", pflag.ContinueOnError))
			if err != nil {
				t.Fatalf("Load failed for %s: %v", tc.path, err)
			}
			if cfg.IndexName != tc.expected {
				t.Errorf("Test %d (%s): Expected IndexName %q, got %q", i, tc.path, tc.expected, cfg.IndexName)
			}
		})
	}
}

func TestConfigFileFromEnvironment(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "custom-config.yaml")
	if err := os.WriteFile(configFile, []byte(`indexName: "env-config"`), 0644); err != nil {
		t.Fatal(err)
	}

	clearTestEnv(t)
	t.Setenv("DOCQA_CONFIG", configFile)
	withArgs(t)

	cfg, err := Load("", pflag.NewFlagSet("test", pflag.ContinueOnError))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.IndexName != "env-config" {
		t.Errorf("Expected IndexName 'env-config' (from DOCQA_CONFIG), got %q", cfg.IndexName)
	}
}

func TestConfigFlagSelectsFile(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "flagged.yaml")
	if err := os.WriteFile(configFile, []byte(`indexName: "from-flag-file"`), 0644); err != nil {
		t.Fatal(err)
	}

	clearTestEnv(t)
	withArgs(t, "--config", configFile)
	t.Cleanup(func() { os.Unsetenv("DOCQA_CONFIG") })

	cfg, err := Load("", pflag.NewFlagSet("test", pflag.ContinueOnError))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.IndexName != "from-flag-file" {
		t.Errorf("Expected IndexName from --config file, got %q", cfg.IndexName)
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr error
		wantMsg string
	}{
		{
			name:    "overlap not below size",
			env:     map[string]string{"DOCQA_CHUNK_SIZE": "200", "DOCQA_CHUNK_OVERLAP": "200"},
			wantErr: models.ErrInvalidChunkConfig,
		},
		{
			name:    "zero size",
			env:     map[string]string{"DOCQA_CHUNK_SIZE": "0", "DOCQA_CHUNK_OVERLAP": "0"},
			wantErr: models.ErrInvalidChunkConfig,
		},
		{
			name:    "non-positive top-k",
			env:     map[string]string{"DOCQA_TOP_K": "0"},
			wantMsg: "top-k must be positive",
		},
		{
			name:    "unknown prompt style",
			env:     map[string]string{"DOCQA_PROMPT_STYLE": "poetic"},
			wantErr: models.ErrInvalidInput,
		},
		{
			name:    "unknown provider",
			env:     map[string]string{"DOCQA_PROVIDER": "acme"},
			wantMsg: "unsupported provider",
		},
		{
			name:    "bad log level",
			env:     map[string]string{"DOCQA_LOG_LEVEL": "chatty"},
			wantMsg: "invalid log level",
		},
		{
			name:    "postgres without url",
			env:     map[string]string{"DOCQA_BACKEND": "postgres", "DOCQA_DB_URL": "   "},
			wantMsg: "DOCQA_DB_URL is required",
		},
		{
			name:    "unknown backend",
			env:     map[string]string{"DOCQA_BACKEND": "s3"},
			wantMsg: "unknown backend",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearTestEnv(t)
			withArgs(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("", pflag.NewFlagSet("test", pflag.ContinueOnError))
			if err == nil {
				t.Fatal("Expected validation error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
			if tt.wantMsg != "" && !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("Expected error containing %q, got %v", tt.wantMsg, err)
			}
		})
	}
}

func TestInvalidYAMLFile(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "invalid.yaml")
	invalidYAML := `
provider: "test"
invalid: yaml: content: [
`
	if err := os.WriteFile(configFile, []byte(invalidYAML), 0644); err != nil {
		t.Fatalf("Failed to write invalid YAML file: %v", err)
	}

	clearTestEnv(t)
	withArgs(t)
	_, err := Load(configFile, pflag.NewFlagSet("test", pflag.ContinueOnError))
	if err == nil {
		t.Fatal("Expected error for invalid YAML file")
	}
	if !strings.Contains(err.Error(), "load config") {
		t.Errorf("Expected config load error, got: %v", err)
	}
}

func TestInvalidDurationInFile(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "bad.yaml")
	if err := os.WriteFile(configFile, []byte(`embedTimeout: "soon"`), 0644); err != nil {
		t.Fatal(err)
	}

	clearTestEnv(t)
	withArgs(t)
	if _, err := Load(configFile, pflag.NewFlagSet("test", pflag.ContinueOnError)); err == nil {
		t.Fatal("Expected error for unparsable duration")
	}
}

func TestNonExistentConfigFile(t *testing.T) {
	clearTestEnv(t)
	withArgs(t)

	_, err := Load("/non/existent/config.yaml", pflag.NewFlagSet("test", pflag.ContinueOnError))
	if err == nil {
		t.Fatal("Expected error for non-existent config file")
	}
	if !strings.Contains(err.Error(), "config file not found") {
		t.Errorf("Expected: config file not found, got: %v", err)
	}
}

func TestFileExists(t *testing.T) {
	tmpDir := t.TempDir()
	existingFile := filepath.Join(tmpDir, "existing.txt")
	if err := os.WriteFile(existingFile, []byte("test"), 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	if !fileExists(existingFile) {
		t.Error("fileExists should return true for existing file")
	}
	if fileExists(filepath.Join(tmpDir, "nonexistent.txt")) {
		t.Error("fileExists should return false for non-existent file")
	}
	if fileExists(tmpDir) {
		t.Error("fileExists should return false for directory")
	}
}

func TestInvalidFlagParsing(t *testing.T) {
	clearTestEnv(t)
	withArgs(t, "--embed-dim", "invalid-number")

	if _, err := Load("", pflag.NewFlagSet("test", pflag.ContinueOnError)); err == nil {
		t.Fatal("Expected error for invalid flag value")
	}
}

func TestEnvconfigProcessError(t *testing.T) {
	clearTestEnv(t)
	withArgs(t)
	t.Setenv("DOCQA_EMBED_DIM", "not-a-number")

	_, err := Load("", pflag.NewFlagSet("test", pflag.ContinueOnError))
	if err == nil {
		t.Fatal("Expected error for invalid integer in environment variable")
	}
	if !strings.Contains(err.Error(), "env override") {
		t.Errorf("Expected env override error, got %v", err)
	}
}

func TestCallerFlagsParsedWithConfig(t *testing.T) {
	clearTestEnv(t)
	withArgs(t, "--query", "what changed?", "--top-k", "4")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	query := fs.String("query", "", "question")

	cfg, err := Load("", fs)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if *query != "what changed?" || cfg.TopK != 4 {
		t.Errorf("query=%q TopK=%d", *query, cfg.TopK)
	}
}

func TestDerivedOptions(t *testing.T) {
	clearTestEnv(t)
	withArgs(t,
		"--provider", "gemini",
		"--embed-batch-size", "16",
		"--embed-attempts", "5",
		"--file-categories", "spreadsheets,bogus",
		"--excerpt-length", "80",
		"--prompt-style", "advanced",
		"--skip-tls-verify",
	)

	cfg, err := Load("", pflag.NewFlagSet("test", pflag.ContinueOnError))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	cc := cfg.ClientConfig()
	if cc.Provider != ai.ProviderVertexAI || cc.Temperature != ai.DefaultTemperature || cc.Location != "us-central1" || !cc.SkipTLSVerify {
		t.Errorf("ClientConfig() = %+v", cc)
	}

	gw := cfg.GatewayOptions()
	if gw.BatchSize != 16 || gw.MaxAttempts != 5 || gw.CallTimeout != 30*time.Second {
		t.Errorf("GatewayOptions() = %+v", gw)
	}

	if got := cfg.Categories(); !reflect.DeepEqual(got, []string{"spreadsheets"}) {
		t.Errorf("Categories() = %v", got)
	}
	io := cfg.IndexerOptions()
	if !io.Extensions["csv"] || io.Extensions["txt"] || io.Chunk.Size != 1000 {
		t.Errorf("IndexerOptions() = %+v", io)
	}

	so := cfg.SearchOptions()
	if so.TopK != 5 || so.Style != search.StyleAdvanced || so.ExcerptLength != 80 {
		t.Errorf("SearchOptions() = %+v", so)
	}
}

func TestAllFlagsAreBound(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	cfg := Specification{}
	bindFlags(fs, &cfg)

	expectedFlags := []string{
		"config", "provider", "provider-api-key", "provider-embedding-model",
		"provider-generation-model", "provider-project-id", "provider-location",
		"embed-dim", "data-dir", "ledger-path", "backend", "db-url", "index-dir",
		"index-name", "chunk-size", "chunk-overlap", "min-chunk-length", "top-k",
		"file-categories", "prompt-style", "excerpt-length", "workers",
		"embed-batch-size", "embed-max-in-flight", "embed-attempts", "embed-timeout",
		"embed-rate", "generate-timeout", "log-level", "port", "watch",
		"skip-tls-verify",
	}
	for _, flagName := range expectedFlags {
		if fs.Lookup(flagName) == nil {
			t.Errorf("Flag %q not found", flagName)
		}
	}
}

func TestDurationText(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte("1m30s")); err != nil {
		t.Fatal(err)
	}
	if time.Duration(d) != 90*time.Second || d.String() != "1m30s" {
		t.Errorf("Duration = %v", d)
	}
	if err := d.UnmarshalText([]byte("later")); err == nil {
		t.Error("expected parse error")
	}
}

// withArgs replaces os.Args for the duration of the test.
func withArgs(t *testing.T, args ...string) {
	t.Helper()
	orig := os.Args
	os.Args = append([]string{"test"}, args...)
	t.Cleanup(func() { os.Args = orig })
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	origWd, _ := os.Getwd()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Failed to change to %s: %v", dir, err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(origWd); err != nil {
			t.Logf("Failed to restore working directory: %v", err)
		}
	})
}

// Helper function to clear test environment variables
func clearTestEnv(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		if name, _, ok := strings.Cut(kv, "="); ok && strings.HasPrefix(name, "DOCQA_") {
			t.Setenv(name, "")
			if err := os.Unsetenv(name); err != nil {
				t.Logf("Failed to unset environment variable %s: %v", name, err)
			}
		}
	}
}
