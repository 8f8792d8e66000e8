package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/cyclopcam/dbh"
)

type Config struct {
	Listen                string        `json:"listen"`                // eg ":8080"
	DB                    dbh.DBConfig  `json:"db"`                    // Analysis history database
	PreviewStorage        StorageConfig `json:"previewStorage"`        // Where annotated previews are written
	Inference             Inference     `json:"inference"`             // The model server
	TempPath              string        `json:"tempPath"`              // Path for temporary files (uploaded videos)
	FrameStride           int           `json:"frameStride"`           // Sample every Nth frame of a video
	FrameQuality          int           `json:"frameQuality"`          // JPEG quality of sampled frames
	MaxUploadMB           int           `json:"maxUploadMB"`           // Largest accepted upload
	MaxConcurrentAnalyses int           `json:"maxConcurrentAnalyses"` // Requests beyond this wait in line
	RateLimitPerMinute    int           `json:"rateLimitPerMinute"`    // Per client IP, on /api/analyze. Zero disables the limit.
	MaxHistory            int           `json:"maxHistory"`            // Oldest analyses beyond this count are purged. Zero keeps everything.
}

type Inference struct {
	URL            string `json:"url"`            // eg "http://localhost:8000"
	TimeoutSeconds int    `json:"timeoutSeconds"` // Per capability call
}

// One of the storage options may be configured (i.e. either 'filesystem' or 'gcs').
// If neither is configured, previews are not stored.
type StorageConfig struct {
	Filesystem *StorageConfigFS  `json:"filesystem"`
	GCS        *StorageConfigGCS `json:"gcs"`
}

type StorageConfigFS struct {
	Root string `json:"root"` // Path to the root of the filesystem
}

type StorageConfigGCS struct {
	Bucket string `json:"bucket"` // Name of the GCS bucket
}

func (s *StorageConfig) IsConfigured() bool {
	return s.Filesystem != nil || s.GCS != nil
}

// Timeout of each capability call
func (i *Inference) Timeout() time.Duration {
	return time.Duration(i.TimeoutSeconds) * time.Second
}

// MaxUploadBytes is MaxUploadMB in bytes
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) * 1024 * 1024
}

func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

// SetDefaults fills in every missing value
func (c *Config) SetDefaults() {
	if c.Listen == "" {
		c.Listen = ":8080"
	}
	if c.DB.Driver == "" {
		c.DB = dbh.MakeSqliteConfig("scenesolver.sqlite")
	}
	if c.Inference.URL == "" {
		c.Inference.URL = "http://localhost:8000"
	}
	if c.Inference.TimeoutSeconds <= 0 {
		c.Inference.TimeoutSeconds = 60
	}
	if c.TempPath == "" {
		c.TempPath = os.TempDir() + "/scenesolver"
	}
	if c.FrameStride <= 0 {
		c.FrameStride = 15
	}
	if c.FrameQuality <= 0 {
		c.FrameQuality = 85
	}
	if c.MaxUploadMB <= 0 {
		c.MaxUploadMB = 200
	}
	if c.MaxConcurrentAnalyses <= 0 {
		c.MaxConcurrentAnalyses = 2
	}
	if c.RateLimitPerMinute < 0 {
		c.RateLimitPerMinute = 0
	}
	if c.MaxHistory < 0 {
		c.MaxHistory = 0
	}
}

// Validate returns an error if the config cannot possibly work
func (c *Config) Validate() error {
	if c.FrameQuality > 100 {
		return fmt.Errorf("frameQuality must be between 1 and 100 (not %v)", c.FrameQuality)
	}
	if c.PreviewStorage.Filesystem != nil && c.PreviewStorage.GCS != nil {
		return fmt.Errorf("Only one of previewStorage.filesystem or previewStorage.gcs may be configured")
	}
	if c.PreviewStorage.Filesystem != nil && c.PreviewStorage.Filesystem.Root == "" {
		return fmt.Errorf("previewStorage.filesystem.root is empty")
	}
	if c.PreviewStorage.GCS != nil && c.PreviewStorage.GCS.Bucket == "" {
		return fmt.Errorf("previewStorage.gcs.bucket is empty")
	}
	return nil
}

// LoadConfig reads a JSON config file.
// If filename is empty, and scenesolver.json does not exist, then we return the default config.
func LoadConfig(filename string) (*Config, error) {
	explicit := filename != ""
	if filename == "" {
		filename = "scenesolver.json"
	}
	cfg := &Config{}
	raw, err := os.ReadFile(filename)
	if err != nil {
		if explicit || !os.IsNotExist(err) {
			return nil, fmt.Errorf("Error loading %v: %w", filename, err)
		}
	} else if err := json.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("Error loading as JSON %v: %w", filename, err)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("Invalid config %v: %w", filename, err)
	}
	return cfg, nil
}
