package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for tcm.
type Config struct {
	BaseDir  string         `toml:"base_dir"`
	LogDir   string         `toml:"log_dir"`
	Database DatabaseConfig `toml:"database"`
	Layout   LayoutConfig   `toml:"layout"`
	Sync     SyncConfig     `toml:"sync"`
	S3       S3Config       `toml:"s3"`
	Backup   BackupConfig   `toml:"backup"`
	API      APIConfig      `toml:"api"`
}

// DatabaseConfig represents configuration for the catalog database.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// LayoutConfig describes how a content tree is read.
type LayoutConfig struct {
	// TypeDepth is the depth of training-type folders: department,
	// sub-department, bucket, training type. Content lives below it.
	TypeDepth int `toml:"type_depth"`
	// LinkFile is the name of the sidecar file holding one URL per line.
	LinkFile string `toml:"link_file"`
	// OpaqueUnits makes every folder directly below a training-type folder
	// one resource instead of descending into it.
	OpaqueUnits bool `toml:"opaque_units"`
	// Placeholders records categorization folders as placeholder rows.
	Placeholders bool `toml:"placeholders"`
	// CountArchiveEntries records the number of entries inside .zip files.
	CountArchiveEntries bool     `toml:"count_archive_entries"`
	Ignore              []string `toml:"ignore"`
}

// SyncConfig holds sync orchestration settings.
type SyncConfig struct {
	// LockStaleAfter is a duration string; a sync lease older than this may be taken over.
	LockStaleAfter string `toml:"lock_stale_after"`
}

// LockStaleAfterDuration parses LockStaleAfter. An empty value yields 0.
func (c SyncConfig) LockStaleAfterDuration() (time.Duration, error) {
	if c.LockStaleAfter == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.LockStaleAfter)
	if err != nil {
		return 0, fmt.Errorf("invalid lock_stale_after %q: %w", c.LockStaleAfter, err)
	}
	return d, nil
}

// S3Config holds connection settings shared by S3 sources and S3 backups.
type S3Config struct {
	Region          string `toml:"region,omitempty"`
	Endpoint        string `toml:"endpoint,omitempty"`
	AccessKeyID     string `toml:"access_key_id,omitempty"`
	SecretAccessKey string `toml:"secret_access_key,omitempty"`
	UsePathStyle    bool   `toml:"use_path_style,omitempty"`
}

// BackupConfig represents configuration for post-sync database snapshots.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type BackupConfig struct {
	Type string `toml:"type"` // "", "filesystem", "s3" or "memory"; "" disables snapshots

	// FileSystem-specific fields (only used when Type == "filesystem")
	Dir  string `toml:"dir,omitempty"`
	Keep int    `toml:"keep,omitempty"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket string `toml:"s3_bucket,omitempty"`
	S3Prefix string `toml:"s3_prefix,omitempty"`

	Encrypt        bool   `toml:"encrypt"`
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// APIConfig configures `tcm serve`.
type APIConfig struct {
	Addr           string   `toml:"addr"`
	AllowedOrigins []string `toml:"allowed_origins"`
}

// NewConfig creates a new Config rooted at baseDir with default settings.
func NewConfig(baseDir string) *Config {
	return &Config{
		BaseDir: baseDir,
		LogDir:  filepath.Join(baseDir, "log"),
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "db"),
		},
		Layout: DefaultLayout(),
		Sync:   SyncConfig{LockStaleAfter: "1h"},
		Backup: BackupConfig{
			Type:           "filesystem",
			Dir:            filepath.Join(baseDir, "snapshots"),
			Keep:           20,
			PublicKeyPath:  filepath.Join(baseDir, "keys", "tcm.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "tcm.key"),
		},
		API: APIConfig{Addr: "127.0.0.1:8088"},
	}
}

// DefaultLayout returns the canonical four-level layout.
func DefaultLayout() LayoutConfig {
	return LayoutConfig{
		TypeDepth:           4,
		LinkFile:            "links.txt",
		OpaqueUnits:         true,
		CountArchiveEntries: true,
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader. Layout keys that are
// absent keep their defaults.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	cfg := Config{Layout: DefaultLayout()}
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
func writeToFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init writes cfg to path. It refuses to overwrite an existing file.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
