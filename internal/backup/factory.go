package backup

import (
	"context"
	"fmt"

	"tcm-go/internal/config"
	"tcm-go/internal/s3client"
)

// NewStoreFromConfig creates the Store selected by cfg.Type. An empty type
// disables snapshots and yields a nil Store.
func NewStoreFromConfig(ctx context.Context, cfg config.BackupConfig, s3cfg config.S3Config) (Store, error) {
	switch cfg.Type {
	case "":
		return nil, nil
	case "memory":
		return NewMemoryStore(), nil
	case "filesystem":
		if cfg.Dir == "" {
			return nil, fmt.Errorf("filesystem backup requires dir to be set")
		}
		store, err := NewFileSystemStore(cfg.Dir, cfg.Keep)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("s3 backup requires s3_bucket to be set")
		}
		client, err := s3client.New(ctx, s3cfg)
		if err != nil {
			return nil, err
		}
		return NewS3Store(client, cfg.S3Bucket, cfg.S3Prefix), nil
	default:
		return nil, fmt.Errorf("unknown backup type: %s", cfg.Type)
	}
}

// KeyPairFromConfig returns the key pair used to seal snapshots, or nil when
// encryption is off.
func KeyPairFromConfig(cfg config.BackupConfig) (*KeyPair, error) {
	if !cfg.Encrypt {
		return nil, nil
	}
	if cfg.PublicKeyPath == "" || cfg.PrivateKeyPath == "" {
		return nil, fmt.Errorf("encrypted backups require public_key_path and private_key_path")
	}
	return NewKeyPair(cfg), nil
}
