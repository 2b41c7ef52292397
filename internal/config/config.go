// Package config loads the ingestion service configuration from an optional
// TOML or YAML file overlaid with environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/Lllllllleong/documentprovenance/internal/gcp"
	"gopkg.in/yaml.v3"
)

// EnvConfigFile names the optional configuration file.
const EnvConfigFile = "PROVENANCE_CONFIG"

const (
	CASKubo = "kubo"
	CASGCS  = "gcs"

	DatabaseFirestore = "firestore"
	DatabasePostgres  = "postgres"
	DatabaseBadger    = "badger"

	ExtractionTika   = "tika"
	ExtractionVertex = "vertex"
)

// Config holds every externally supplied setting.
type Config struct {
	ProjectID       string `toml:"project_id" yaml:"project_id"`
	ConfigurationID string `toml:"configuration_id" yaml:"configuration_id"`
	EventSource     string `toml:"event_source" yaml:"event_source"`
	AssetBaseURL    string `toml:"asset_base_url" yaml:"asset_base_url"`

	CASBackend string `toml:"cas_backend" yaml:"cas_backend"`
	IPFSURL    string `toml:"ipfs_url" yaml:"ipfs_url"`
	CASBucket  string `toml:"cas_bucket" yaml:"cas_bucket"`
	CASPrefix  string `toml:"cas_prefix" yaml:"cas_prefix"`

	DatabaseBackend      string `toml:"database_backend" yaml:"database_backend"`
	DatabaseURL          string `toml:"database_url" yaml:"database_url"`
	BadgerPath           string `toml:"badger_path" yaml:"badger_path"`
	FirestoreDatabase    string `toml:"firestore_database" yaml:"firestore_database"`
	DocumentsCollection  string `toml:"documents_collection" yaml:"documents_collection"`
	AssertionsCollection string `toml:"assertions_collection" yaml:"assertions_collection"`

	ExtractionBackend string        `toml:"extraction_backend" yaml:"extraction_backend"`
	TikaURL           string        `toml:"tika_url" yaml:"tika_url"`
	VertexAIRegion    string        `toml:"vertex_ai_region" yaml:"vertex_ai_region"`
	VertexModel       string        `toml:"vertex_model" yaml:"vertex_model"`
	ClientTimeout     time.Duration `toml:"client_timeout" yaml:"client_timeout"`

	WorkflowID       string `toml:"workflow_id" yaml:"workflow_id"`
	WorkflowLocation string `toml:"workflow_location" yaml:"workflow_location"`

	JoinPolicy     string `toml:"join_policy" yaml:"join_policy"`
	DocumentTiming string `toml:"document_timing" yaml:"document_timing"`
	BatchWorkers   int    `toml:"batch_workers" yaml:"batch_workers"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		EventSource:          "aws:s3",
		AssetBaseURL:         "https://assets.priorartarchive.org",
		CASBackend:           CASKubo,
		CASPrefix:            "cas",
		DatabaseBackend:      DatabaseFirestore,
		DocumentsCollection:  "documents",
		AssertionsCollection: "assertions",
		ExtractionBackend:    ExtractionTika,
		VertexAIRegion:       "us-central1",
		VertexModel:          "gemini-1.5-pro",
		ClientTimeout:        60 * time.Second,
		WorkflowLocation:     "us-central1",
		JoinPolicy:           "fail-fast",
		DocumentTiming:       "eager",
		BatchWorkers:         4,
	}
}

// Load reads the optional config file and then applies environment overrides.
func Load() (Config, error) {
	cfg := Default()
	if path := gcp.GetEnv(EnvConfigFile, ""); path != "" {
		if err := LoadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFile decodes path into cfg, choosing the format by extension.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}
	default:
		return fmt.Errorf("unsupported config file extension %q", filepath.Ext(path))
	}
	return nil
}

func applyEnv(cfg *Config) error {
	strs := []struct {
		key string
		dst *string
	}{
		{"PROJECT_ID", &cfg.ProjectID},
		{"CONFIGURATION_ID", &cfg.ConfigurationID},
		{"EVENT_SOURCE", &cfg.EventSource},
		{"ASSET_BASE_URL", &cfg.AssetBaseURL},
		{"CAS_BACKEND", &cfg.CASBackend},
		{"IPFS_URL", &cfg.IPFSURL},
		{"CAS_BUCKET", &cfg.CASBucket},
		{"CAS_PREFIX", &cfg.CASPrefix},
		{"DATABASE_BACKEND", &cfg.DatabaseBackend},
		{"DATABASE_URL", &cfg.DatabaseURL},
		{"BADGER_PATH", &cfg.BadgerPath},
		{"FIRESTORE_DATABASE", &cfg.FirestoreDatabase},
		{"DOCUMENTS_COLLECTION", &cfg.DocumentsCollection},
		{"ASSERTIONS_COLLECTION", &cfg.AssertionsCollection},
		{"EXTRACTION_BACKEND", &cfg.ExtractionBackend},
		{"TIKA_URL", &cfg.TikaURL},
		{"VERTEX_AI_REGION", &cfg.VertexAIRegion},
		{"VERTEX_MODEL", &cfg.VertexModel},
		{"WORKFLOW_ID", &cfg.WorkflowID},
		{"WORKFLOW_LOCATION", &cfg.WorkflowLocation},
		{"JOIN_POLICY", &cfg.JoinPolicy},
		{"DOCUMENT_TIMING", &cfg.DocumentTiming},
	}
	for _, s := range strs {
		*s.dst = gcp.GetEnv(s.key, *s.dst)
	}

	if raw := gcp.GetEnv("CLIENT_TIMEOUT", ""); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("CLIENT_TIMEOUT: %w", err)
		}
		cfg.ClientTimeout = d
	}
	if raw := gcp.GetEnv("BATCH_WORKERS", ""); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("BATCH_WORKERS: %w", err)
		}
		cfg.BatchWorkers = n
	}
	return nil
}

// Validate checks that the selected backends have what they need.
func (c Config) Validate() error {
	if c.ConfigurationID == "" {
		return fmt.Errorf("CONFIGURATION_ID must be set")
	}

	switch c.CASBackend {
	case CASKubo:
		if c.IPFSURL == "" {
			return fmt.Errorf("IPFS_URL must be set for the %s content store", CASKubo)
		}
	case CASGCS:
		if c.CASBucket == "" {
			return fmt.Errorf("CAS_BUCKET must be set for the %s content store", CASGCS)
		}
	default:
		return fmt.Errorf("unknown CAS_BACKEND %q", c.CASBackend)
	}

	switch c.DatabaseBackend {
	case DatabaseFirestore:
		if c.ProjectID == "" {
			return fmt.Errorf("PROJECT_ID must be set for the %s database", DatabaseFirestore)
		}
	case DatabasePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL must be set for the %s database", DatabasePostgres)
		}
	case DatabaseBadger:
		if c.BadgerPath == "" {
			return fmt.Errorf("BADGER_PATH must be set for the %s database", DatabaseBadger)
		}
	default:
		return fmt.Errorf("unknown DATABASE_BACKEND %q", c.DatabaseBackend)
	}

	switch c.ExtractionBackend {
	case ExtractionTika:
		if c.TikaURL == "" {
			return fmt.Errorf("TIKA_URL must be set for the %s extractor", ExtractionTika)
		}
	case ExtractionVertex:
		if c.ProjectID == "" {
			return fmt.Errorf("PROJECT_ID must be set for the %s extractor", ExtractionVertex)
		}
	default:
		return fmt.Errorf("unknown EXTRACTION_BACKEND %q", c.ExtractionBackend)
	}

	if c.BatchWorkers < 1 {
		return fmt.Errorf("BATCH_WORKERS must be at least 1")
	}
	return nil
}
