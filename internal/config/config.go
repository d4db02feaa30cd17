package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Embedding defaults. The local method talks to an Ollama server, which serves
// the same MiniLM family the original local backend used.
const (
	DefaultChunkSize      = 8192
	DefaultIndexBatchSize = 32
	DefaultTopK           = 1
	DefaultEmbedMethod    = "ollama"
	DefaultFormatVersion  = "1"
)

// Config holds application configuration.
type Config struct {
	// ChunkSize is the maximum UTF-8 byte length of a stored chunk.
	ChunkSize int `json:"chunk_size"`

	// IndexBatchSize is the number of embeddings written per transaction.
	// A provider failure rolls back only the current batch.
	IndexBatchSize int `json:"index_batch_size"`

	// EmbedMethod selects the embedding provider: "ollama", "openai" or "hash".
	EmbedMethod string `json:"embed_method"`

	// EmbedModel overrides the provider's default model.
	EmbedModel string `json:"embed_model,omitempty"`

	// EmbedEndpoint overrides the provider's default base URL.
	EmbedEndpoint string `json:"embed_endpoint,omitempty"`

	// EmbedDimensions sets the vector size for providers that accept one
	// (hash, and OpenAI text-embedding-3 models). 0 means provider default.
	EmbedDimensions int `json:"embed_dimensions,omitempty"`

	// RequestsPerSecond throttles remote embedding calls. 0 disables throttling.
	RequestsPerSecond float64 `json:"requests_per_second,omitempty"`

	// DefaultTopK is the number of results returned by query when none is given.
	DefaultTopK int `json:"default_top_k"`

	// StripMarkdown converts .md/.markdown files to plain text before chunking.
	// Chunks then reconstruct the extracted text, not the raw file.
	StripMarkdown bool `json:"strip_markdown,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	DisabledTools []string `json:"disabled_tools,omitempty"`

	// S3 settings for publish/fetch.
	S3Bucket       string `json:"s3_bucket,omitempty"`
	S3Region       string `json:"s3_region,omitempty"`
	S3Endpoint     string `json:"s3_endpoint,omitempty"`
	S3Prefix       string `json:"s3_prefix,omitempty"`
	S3UsePathStyle bool   `json:"s3_use_path_style,omitempty"`

	// FormatVersion is written to index.json.
	FormatVersion string `json:"-"`

	// Secrets come from the environment only.
	OpenAIAPIKey      string `json:"-"`
	S3AccessKeyID     string `json:"-"`
	S3SecretAccessKey string `json:"-"`
	SentryDSN         string `json:"-"`
	SentryEnvironment string `json:"-"`
}

// envOverlay lists the settings that can be supplied through ARAG_* variables.
// Keys with an explicit tag also fall back to the unprefixed name
// (ARAG_OPENAI_API_KEY, then OPENAI_API_KEY).
type envOverlay struct {
	ChunkSize         int     `envconfig:"CHUNK_SIZE"`
	IndexBatchSize    int     `envconfig:"INDEX_BATCH_SIZE"`
	EmbedMethod       string  `envconfig:"EMBED_METHOD"`
	EmbedModel        string  `envconfig:"EMBED_MODEL"`
	EmbedEndpoint     string  `envconfig:"EMBED_ENDPOINT"`
	RequestsPerSecond float64 `envconfig:"REQUESTS_PER_SECOND"`
	S3Bucket          string  `envconfig:"S3_BUCKET"`
	S3Region          string  `envconfig:"S3_REGION"`
	S3Endpoint        string  `envconfig:"S3_ENDPOINT"`

	OpenAIAPIKey      string `envconfig:"OPENAI_API_KEY"`
	S3AccessKeyID     string `envconfig:"AWS_ACCESS_KEY_ID"`
	S3SecretAccessKey string `envconfig:"AWS_SECRET_ACCESS_KEY"`
	SentryDSN         string `envconfig:"SENTRY_DSN"`
	SentryEnvironment string `envconfig:"SENTRY_ENVIRONMENT"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		ChunkSize:      DefaultChunkSize,
		IndexBatchSize: DefaultIndexBatchSize,
		EmbedMethod:    DefaultEmbedMethod,
		DefaultTopK:    DefaultTopK,
		FormatVersion:  DefaultFormatVersion,
		S3Region:       "us-east-1",
	}
}

// Load loads configuration from baseDir/config.json and the environment.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.arag.
func Load(baseDir string) (*Config, error) {
	cfg, err := loadFile(filepath.Join(baseDir, "config.json"))
	if err != nil {
		return nil, err
	}
	return ApplyEnv(cfg)
}

// LoadWithRepo loads configuration from both global (~/.arag) and repo (.arag) directories,
// then applies the environment on top.
// Repo config is found by walking upward from startDir to find the nearest .arag/config.json.
// Repo config takes precedence for scalar values; arrays are merged (deduplicated).
// Either or both configs may be missing.
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(filepath.Join(globalDir, "config.json"))
	if err != nil {
		return nil, err
	}

	repoConfigPath := FindRepoConfig(startDir)
	repo, err := loadFileRaw(repoConfigPath)
	if err != nil {
		return nil, err
	}

	return ApplyEnv(Merge(Merge(DefaultConfig(), global), repo))
}

// ApplyEnv overlays ARAG_* environment variables (and a .env file in the
// working directory, if present) onto cfg.
func ApplyEnv(cfg *Config) (*Config, error) {
	_ = godotenv.Load()

	var env envOverlay
	if err := envconfig.Process("ARAG", &env); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}

	overlay := &Config{
		ChunkSize:         env.ChunkSize,
		IndexBatchSize:    env.IndexBatchSize,
		EmbedMethod:       env.EmbedMethod,
		EmbedModel:        env.EmbedModel,
		EmbedEndpoint:     env.EmbedEndpoint,
		RequestsPerSecond: env.RequestsPerSecond,
		S3Bucket:          env.S3Bucket,
		S3Region:          env.S3Region,
		S3Endpoint:        env.S3Endpoint,
		OpenAIAPIKey:      env.OpenAIAPIKey,
		S3AccessKeyID:     env.S3AccessKeyID,
		S3SecretAccessKey: env.S3SecretAccessKey,
		SentryDSN:         env.SentryDSN,
		SentryEnvironment: env.SentryEnvironment,
	}
	return Merge(cfg, overlay), nil
}

// FindRepoConfig walks upward from startDir to find the nearest .arag/config.json.
// Returns the path if found, or empty string if not found.
func FindRepoConfig(startDir string) string {
	dir := startDir
	for {
		configPath := filepath.Join(dir, ".arag", "config.json")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	if configPath == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", configPath, err)
	}

	return cfg, nil
}

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{
		ChunkSize:         firstInt(overlay.ChunkSize, base.ChunkSize),
		IndexBatchSize:    firstInt(overlay.IndexBatchSize, base.IndexBatchSize),
		EmbedMethod:       firstString(overlay.EmbedMethod, base.EmbedMethod),
		EmbedModel:        firstString(overlay.EmbedModel, base.EmbedModel),
		EmbedEndpoint:     firstString(overlay.EmbedEndpoint, base.EmbedEndpoint),
		EmbedDimensions:   firstInt(overlay.EmbedDimensions, base.EmbedDimensions),
		DefaultTopK:       firstInt(overlay.DefaultTopK, base.DefaultTopK),
		S3Bucket:          firstString(overlay.S3Bucket, base.S3Bucket),
		S3Region:          firstString(overlay.S3Region, base.S3Region),
		S3Endpoint:        firstString(overlay.S3Endpoint, base.S3Endpoint),
		S3Prefix:          firstString(overlay.S3Prefix, base.S3Prefix),
		FormatVersion:     firstString(overlay.FormatVersion, base.FormatVersion),
		OpenAIAPIKey:      firstString(overlay.OpenAIAPIKey, base.OpenAIAPIKey),
		S3AccessKeyID:     firstString(overlay.S3AccessKeyID, base.S3AccessKeyID),
		S3SecretAccessKey: firstString(overlay.S3SecretAccessKey, base.S3SecretAccessKey),
		SentryDSN:         firstString(overlay.SentryDSN, base.SentryDSN),
		SentryEnvironment: firstString(overlay.SentryEnvironment, base.SentryEnvironment),
	}

	result.RequestsPerSecond = overlay.RequestsPerSecond
	if result.RequestsPerSecond == 0 {
		result.RequestsPerSecond = base.RequestsPerSecond
	}

	// Booleans: overlay wins if true, else base
	result.StripMarkdown = base.StripMarkdown || overlay.StripMarkdown
	result.S3UsePathStyle = base.S3UsePathStyle || overlay.S3UsePathStyle

	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)

	return result
}

func firstInt(overlay, base int) int {
	if overlay != 0 {
		return overlay
	}
	return base
}

func firstString(overlay, base string) string {
	if strings.TrimSpace(overlay) != "" {
		return overlay
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range append(append([]string{}, a...), b...) {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
