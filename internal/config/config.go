package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog"
	"github.com/seanblong/docqa/internal/ai"
	"github.com/seanblong/docqa/internal/chunker"
	"github.com/seanblong/docqa/internal/discovery"
	"github.com/seanblong/docqa/internal/indexer"
	"github.com/seanblong/docqa/internal/search"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Backend names.
const (
	BackendLocal    = "local"
	BackendPostgres = "postgres"
)

type Specification struct {
	Provider      string `yaml:"provider" toml:"provider"`
	APIKey        string `yaml:"providerApiKey" toml:"providerApiKey" envconfig:"PROVIDER_API_KEY"`
	EmbedModel    string `yaml:"providerEmbedModel" toml:"providerEmbedModel" envconfig:"PROVIDER_EMBEDDING_MODEL"`
	GenerateModel string `yaml:"providerGenerationModel" toml:"providerGenerationModel" envconfig:"PROVIDER_GENERATION_MODEL"`
	ProjectID     string `yaml:"providerProjectID" toml:"providerProjectID" envconfig:"PROVIDER_PROJECT_ID"`
	Location      string `yaml:"providerLocation" toml:"providerLocation" envconfig:"PROVIDER_LOCATION"`
	Dim           int    `yaml:"providerDim" toml:"providerDim" envconfig:"EMBED_DIM"`
	SkipTLSVerify bool   `yaml:"skipTlsVerify" toml:"skipTlsVerify" split_words:"true"`

	DataDir    string `yaml:"dataDir" toml:"dataDir" split_words:"true"`
	LedgerPath string `yaml:"ledgerPath" toml:"ledgerPath" split_words:"true"`
	Backend    string `yaml:"backend" toml:"backend"`
	Database   string `yaml:"database" toml:"database" envconfig:"DB_URL"`
	IndexDir   string `yaml:"indexDir" toml:"indexDir" split_words:"true"`
	IndexName  string `yaml:"indexName" toml:"indexName" split_words:"true"`

	ChunkSize      int      `yaml:"chunkSize" toml:"chunkSize" split_words:"true"`
	ChunkOverlap   int      `yaml:"chunkOverlap" toml:"chunkOverlap" split_words:"true"`
	MinChunkLength int      `yaml:"minChunkLength" toml:"minChunkLength" split_words:"true"`
	TopK           int      `yaml:"topK" toml:"topK" envconfig:"TOP_K"`
	FileCategories []string `yaml:"fileCategories" toml:"fileCategories" split_words:"true"`
	PromptStyle    string   `yaml:"promptStyle" toml:"promptStyle" split_words:"true"`
	ExcerptLength  int      `yaml:"excerptLength" toml:"excerptLength" split_words:"true"`
	Workers        int      `yaml:"workers" toml:"workers"`

	EmbedBatchSize   int      `yaml:"embedBatchSize" toml:"embedBatchSize" split_words:"true"`
	EmbedMaxInFlight int      `yaml:"embedMaxInFlight" toml:"embedMaxInFlight" split_words:"true"`
	EmbedAttempts    int      `yaml:"embedAttempts" toml:"embedAttempts" split_words:"true"`
	EmbedTimeout     Duration `yaml:"embedTimeout" toml:"embedTimeout" split_words:"true"`
	EmbedRate        float64  `yaml:"embedRate" toml:"embedRate" split_words:"true"`
	GenerateTimeout  Duration `yaml:"generateTimeout" toml:"generateTimeout" split_words:"true"`

	LogLevel string `yaml:"logLevel" toml:"logLevel" split_words:"true"`
	Port     int    `yaml:"port" toml:"port"`
	Watch    bool   `yaml:"watch" toml:"watch"`

	flags *pflag.FlagSet `ignored:"true"`
}

const envPrefix = "DOCQA"

func (c *Specification) Usage() {
	fmt.Fprint(os.Stderr, c.flags.FlagUsages())
}

// Load => defaults < .env < YAML/TOML < env < flags.
// configPath may be ""; if so we auto-discover.
func Load(configPath string, fs *pflag.FlagSet) (Specification, error) {
	var cfg Specification

	// set defaults (lowest precedence)
	setDefaults(&cfg)

	// .env never overrides variables that are already set
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Specification{}, fmt.Errorf("load .env: %w", err)
	}

	bindFlags(fs, &cfg)

	// config file
	path := configPath
	if path == "" {
		if v := os.Getenv(envPrefix + "_CONFIG"); v != "" {
			path = v
		} else {
			for _, cand := range []string{
				"config/docqa.yaml",
				"config/config.yaml",
				"./docqa.yaml",
				"./config.yaml",
				"./docqa.toml",
			} {
				if fileExists(cand) {
					path = cand
					break
				}
			}
		}
	}

	if path != "" {
		if !fileExists(path) {
			return Specification{}, fmt.Errorf("config file not found: %s", path)
		}
		if err := loadFile(path, &cfg); err != nil {
			return Specification{}, fmt.Errorf("load config %s: %w", path, err)
		}
	}

	// env overrides config file
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return Specification{}, fmt.Errorf("env override: %w", err)
	}

	// flags override everything
	if err := fs.Parse(os.Args[1:]); err != nil {
		return Specification{}, err
	}
	applyChangedFlags(fs, &cfg)

	if strings.TrimSpace(cfg.LogLevel) == "" {
		cfg.LogLevel = "info"
	}
	if err := cfg.Validate(); err != nil {
		return Specification{}, err
	}
	return cfg, nil
}

// Validate checks the knobs that would otherwise fail deep inside a run.
func (c *Specification) Validate() error {
	if err := c.ChunkConfig().Validate(); err != nil {
		return err
	}
	if c.TopK <= 0 {
		return fmt.Errorf("top-k must be positive, got %d", c.TopK)
	}
	if _, err := search.ParsePromptStyle(c.PromptStyle); err != nil {
		return err
	}
	if _, err := ai.ParseProvider(c.Provider); err != nil {
		return err
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	switch c.Backend {
	case BackendLocal:
	case BackendPostgres:
		if strings.TrimSpace(c.Database) == "" {
			return fmt.Errorf("DOCQA_DB_URL is required for the postgres backend (env/file/flag)")
		}
	default:
		return fmt.Errorf("unknown backend %q (want %s or %s)", c.Backend, BackendLocal, BackendPostgres)
	}
	return nil
}

// ChunkConfig returns the chunker settings.
func (c *Specification) ChunkConfig() chunker.Config {
	return chunker.Config{Size: c.ChunkSize, Overlap: c.ChunkOverlap, MinLength: c.MinChunkLength}
}

// Categories returns the enabled file categories, dropping unknown names.
func (c *Specification) Categories() []string {
	return discovery.ResolveCategories(c.FileCategories)
}

// ClientConfig returns the model client settings.
func (c *Specification) ClientConfig() *ai.ClientConfig {
	provider, _ := ai.ParseProvider(c.Provider)
	return &ai.ClientConfig{
		APIKey:        c.APIKey,
		EmbedModel:    c.EmbedModel,
		GenerateModel: c.GenerateModel,
		Dim:           c.Dim,
		ProjectID:     c.ProjectID,
		Provider:      provider,
		Location:      c.Location,
		Temperature:   ai.DefaultTemperature,
		SkipTLSVerify: c.SkipTLSVerify,
	}
}

// GatewayOptions returns the batching and retry settings for model calls.
func (c *Specification) GatewayOptions() ai.GatewayOptions {
	opts := ai.DefaultGatewayOptions()
	opts.BatchSize = c.EmbedBatchSize
	opts.MaxInFlight = c.EmbedMaxInFlight
	opts.MaxAttempts = c.EmbedAttempts
	opts.CallTimeout = time.Duration(c.EmbedTimeout)
	opts.GenerateTimeout = time.Duration(c.GenerateTimeout)
	opts.RatePerSecond = c.EmbedRate
	return opts
}

// IndexerOptions returns the ingestion settings.
func (c *Specification) IndexerOptions() indexer.Options {
	return indexer.Options{
		DataDir:    c.DataDir,
		Extensions: discovery.EnabledExtensions(c.Categories()),
		Chunk:      c.ChunkConfig(),
		Workers:    c.Workers,
	}
}

// SearchOptions returns the retrieval settings.
func (c *Specification) SearchOptions() search.Options {
	return search.Options{
		TopK:          c.TopK,
		Style:         search.PromptStyle(c.PromptStyle),
		ExcerptLength: c.ExcerptLength,
	}
}

// ---------- helpers ----------

func loadFile(path string, into any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return toml.Unmarshal(b, into)
	}
	return yaml.Unmarshal(b, into)
}

func fileExists(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && !fi.IsDir()
}

func bindFlags(fs *pflag.FlagSet, c *Specification) {
	fs.String("config", "", "Path to config file (YAML or TOML)")

	// If --config is provided on the command line, capture it now so
	// config discovery (which runs before flags.Parse) can use it.
	for i, a := range os.Args {
		if a == "--config" {
			if i+1 < len(os.Args) && !strings.HasPrefix(os.Args[i+1], "-") {
				_ = os.Setenv(envPrefix+"_CONFIG", os.Args[i+1])
			}
		} else if strings.HasPrefix(a, "--config=") {
			parts := strings.SplitN(a, "=", 2)
			if len(parts) == 2 {
				_ = os.Setenv(envPrefix+"_CONFIG", parts[1])
			}
		}
	}

	fs.String("provider", c.Provider, "Provider (stub, openai, google)")
	fs.String("provider-api-key", c.APIKey, "Provider API key")
	fs.String("provider-embedding-model", c.EmbedModel, "Provider embedding model")
	fs.String("provider-generation-model", c.GenerateModel, "Provider generation model")
	fs.String("provider-project-id", c.ProjectID, "Provider project ID")
	fs.String("provider-location", c.Location, "Provider location/region")
	fs.Bool("skip-tls-verify", c.SkipTLSVerify, "Skip TLS certificate verification for provider calls")
	fs.Int("embed-dim", c.Dim, "Embedding dimensionality")

	fs.String("data-dir", c.DataDir, "Directory of documents to ingest")
	fs.String("ledger-path", c.LedgerPath, "Path of the processed-files ledger")
	fs.String("backend", c.Backend, "Storage backend (local|postgres)")
	fs.String("db-url", c.Database, "Database URL (DSN) for the postgres backend")
	fs.String("index-dir", c.IndexDir, "Directory holding local vector indexes")
	fs.String("index-name", c.IndexName, "Vector index name")

	fs.Int("chunk-size", c.ChunkSize, "Chunk size in characters")
	fs.Int("chunk-overlap", c.ChunkOverlap, "Overlap between consecutive chunks")
	fs.Int("min-chunk-length", c.MinChunkLength, "Chunks shorter than this are dropped")
	fs.Int("top-k", c.TopK, "Chunks retrieved per question")
	fs.StringSlice("file-categories", c.FileCategories, "Enabled file categories")
	fs.String("prompt-style", c.PromptStyle, "Answer prompt style (standard|advanced)")
	fs.Int("excerpt-length", c.ExcerptLength, "Characters of chunk text shown per source")
	fs.Int("workers", c.Workers, "Files processed concurrently")

	fs.Int("embed-batch-size", c.EmbedBatchSize, "Texts per embedding request")
	fs.Int("embed-max-in-flight", c.EmbedMaxInFlight, "Concurrent embedding requests")
	fs.Int("embed-attempts", c.EmbedAttempts, "Attempts per embedding request")
	fs.Duration("embed-timeout", time.Duration(c.EmbedTimeout), "Timeout per embedding request")
	fs.Float64("embed-rate", c.EmbedRate, "Embedding requests per second (0 = unlimited)")
	fs.Duration("generate-timeout", time.Duration(c.GenerateTimeout), "Timeout per generation request")

	fs.String("log-level", c.LogLevel, "Log level (debug|info|warn|error)")
	fs.Int("port", c.Port, "API server port")
	fs.Bool("watch", c.Watch, "Re-ingest when the data directory changes (API server)")

	// Used later for usage/help
	// create a shallow copy of fs (so Usage can be called safely without mutating caller)
	copied := pflag.NewFlagSet("temp", pflag.ContinueOnError)
	*copied = *fs
	c.flags = copied
}

func applyChangedFlags(fs *pflag.FlagSet, c *Specification) {
	setStr := func(name string, dst *string) {
		if fs.Changed(name) {
			v, _ := fs.GetString(name)
			*dst = v
		}
	}
	setInt := func(name string, dst *int) {
		if fs.Changed(name) {
			v, _ := fs.GetInt(name)
			*dst = v
		}
	}
	setBool := func(name string, dst *bool) {
		if fs.Changed(name) {
			v, _ := fs.GetBool(name)
			*dst = v
		}
	}
	setFloat := func(name string, dst *float64) {
		if fs.Changed(name) {
			v, _ := fs.GetFloat64(name)
			*dst = v
		}
	}
	setDur := func(name string, dst *Duration) {
		if fs.Changed(name) {
			v, _ := fs.GetDuration(name)
			*dst = Duration(v)
		}
	}
	setSlice := func(name string, dst *[]string) {
		if fs.Changed(name) {
			v, _ := fs.GetStringSlice(name)
			*dst = v
		}
	}

	// (We ignore --config here; it's for discovery.)
	setStr("provider", &c.Provider)
	setStr("provider-api-key", &c.APIKey)
	setStr("provider-embedding-model", &c.EmbedModel)
	setStr("provider-generation-model", &c.GenerateModel)
	setStr("provider-project-id", &c.ProjectID)
	setStr("provider-location", &c.Location)
	setBool("skip-tls-verify", &c.SkipTLSVerify)
	setInt("embed-dim", &c.Dim)

	setStr("data-dir", &c.DataDir)
	setStr("ledger-path", &c.LedgerPath)
	setStr("backend", &c.Backend)
	setStr("db-url", &c.Database)
	setStr("index-dir", &c.IndexDir)
	setStr("index-name", &c.IndexName)

	setInt("chunk-size", &c.ChunkSize)
	setInt("chunk-overlap", &c.ChunkOverlap)
	setInt("min-chunk-length", &c.MinChunkLength)
	setInt("top-k", &c.TopK)
	setSlice("file-categories", &c.FileCategories)
	setStr("prompt-style", &c.PromptStyle)
	setInt("excerpt-length", &c.ExcerptLength)
	setInt("workers", &c.Workers)

	setInt("embed-batch-size", &c.EmbedBatchSize)
	setInt("embed-max-in-flight", &c.EmbedMaxInFlight)
	setInt("embed-attempts", &c.EmbedAttempts)
	setDur("embed-timeout", &c.EmbedTimeout)
	setFloat("embed-rate", &c.EmbedRate)
	setDur("generate-timeout", &c.GenerateTimeout)

	setStr("log-level", &c.LogLevel)
	setInt("port", &c.Port)
	setBool("watch", &c.Watch)
}

func setDefaults(c *Specification) {
	gw := ai.DefaultGatewayOptions()

	c.Provider = "stub"
	c.Location = "us-central1"
	c.Dim = 0
	c.SkipTLSVerify = false

	c.DataDir = "data"
	c.LedgerPath = "processed_files.db"
	c.Backend = BackendLocal
	c.IndexDir = "index_db"
	c.IndexName = "documents"

	c.ChunkSize = chunker.DefaultSize
	c.ChunkOverlap = chunker.DefaultOverlap
	c.MinChunkLength = chunker.DefaultMinLength
	c.TopK = search.DefaultTopK
	c.FileCategories = append([]string(nil), discovery.DefaultCategories...)
	c.PromptStyle = string(search.StyleStandard)
	c.ExcerptLength = search.DefaultExcerptLength
	c.Workers = indexer.DefaultWorkers()

	c.EmbedBatchSize = gw.BatchSize
	c.EmbedMaxInFlight = gw.MaxInFlight
	c.EmbedAttempts = gw.MaxAttempts
	c.EmbedTimeout = Duration(gw.CallTimeout)
	c.EmbedRate = 0
	c.GenerateTimeout = Duration(gw.GenerateTimeout)

	c.LogLevel = "info"
	c.Port = 8080
	c.Watch = false
}
