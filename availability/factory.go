// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package availability

import (
	"context"
	"errors"
	"fmt"

	flag "github.com/spf13/pflag"
)

type StorageConfig struct {
	Memory           bool                   `koanf:"memory"`
	LocalFileStorage LocalFileStorageConfig `koanf:"local-file-storage"`
	LocalDBStorage   LocalDBStorageConfig   `koanf:"local-db-storage"`
	PebbleStorage    PebbleStorageConfig    `koanf:"pebble-storage"`
	S3Storage        S3StorageServiceConfig `koanf:"s3-storage"`
	RedisCache       RedisConfig            `koanf:"redis-cache"`
	LocalCache       CacheConfig            `koanf:"local-cache"`
	BigCache         BigCacheConfig         `koanf:"big-cache"`
	Archiver         ArchiverConfig         `koanf:"archiver"`
}

var DefaultStorageConfig = StorageConfig{
	Memory:           false,
	LocalFileStorage: DefaultLocalFileStorageConfig,
	LocalDBStorage:   DefaultLocalDBStorageConfig,
	PebbleStorage:    DefaultPebbleStorageConfig,
	S3Storage:        DefaultS3StorageServiceConfig,
	RedisCache:       DefaultRedisConfig,
	LocalCache:       DefaultCacheConfig,
	BigCache:         DefaultBigCacheConfig,
	Archiver:         DefaultArchiverConfig,
}

func StorageConfigAddOptions(prefix string, f *flag.FlagSet) {
	f.Bool(prefix+".memory", DefaultStorageConfig.Memory, "keep payloads in process memory (for testing)")
	LocalFileStorageConfigAddOptions(prefix+".local-file-storage", f)
	LocalDBStorageConfigAddOptions(prefix+".local-db-storage", f)
	PebbleStorageConfigAddOptions(prefix+".pebble-storage", f)
	S3ConfigAddOptions(prefix+".s3-storage", f)
	RedisConfigAddOptions(prefix+".redis-cache", f)
	CacheConfigAddOptions(prefix+".local-cache", f)
	BigCacheConfigAddOptions(prefix+".big-cache", f)
	ArchiverConfigAddOptions(prefix+".archiver", f)
}

func (c *StorageConfig) Validate() error {
	if c.LocalFileStorage.Enable {
		if err := c.LocalFileStorage.Validate(); err != nil {
			return err
		}
	}
	if c.LocalCache.Enable && c.LocalCache.Capacity <= 0 {
		return fmt.Errorf("invalid local cache capacity %d", c.LocalCache.Capacity)
	}
	return nil
}

// Enabled reports whether any persistent or in-memory backend is
// configured.
func (c *StorageConfig) Enabled() bool {
	return c.Memory || c.LocalFileStorage.Enable || c.LocalDBStorage.Enable || c.PebbleStorage.Enable || c.S3Storage.Enable
}

var ErrNoStorageConfigured = errors.New("no payload storage backend enabled")

// CreateStorageService builds every enabled backend, groups them in a
// RedundantStorageService when there is more than one and wraps the result
// with the enabled caches. The local caches are outermost so they are
// tried first.
func CreateStorageService(ctx context.Context, config *StorageConfig) (StorageService, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	storageServices := make([]StorageService, 0, 5)
	closeAll := func() {
		for _, s := range storageServices {
			_ = s.Close(ctx)
		}
	}
	if config.Memory {
		storageServices = append(storageServices, NewMemoryStorageService())
	}
	if config.LocalFileStorage.Enable {
		s, err := NewLocalFileStorageService(config.LocalFileStorage)
		if err != nil {
			closeAll()
			return nil, err
		}
		storageServices = append(storageServices, s)
	}
	if config.LocalDBStorage.Enable {
		s, err := NewDBStorageService(ctx, config.LocalDBStorage)
		if err != nil {
			closeAll()
			return nil, err
		}
		storageServices = append(storageServices, s)
	}
	if config.PebbleStorage.Enable {
		s, err := NewPebbleStorageService(config.PebbleStorage)
		if err != nil {
			closeAll()
			return nil, err
		}
		storageServices = append(storageServices, s)
	}
	if config.S3Storage.Enable {
		s, err := NewS3StorageService(ctx, config.S3Storage)
		if err != nil {
			closeAll()
			return nil, err
		}
		storageServices = append(storageServices, s)
	}

	var storageService StorageService
	switch len(storageServices) {
	case 0:
		return nil, ErrNoStorageConfigured
	case 1:
		storageService = storageServices[0]
	default:
		storageService = NewRedundantStorageService(storageServices)
	}

	if config.RedisCache.Enable {
		s, err := NewRedisStorageService(config.RedisCache, storageService)
		if err != nil {
			closeAll()
			return nil, err
		}
		storageService = s
	}
	if config.BigCache.Enable {
		s, err := NewBigCacheStorageService(config.BigCache, storageService)
		if err != nil {
			_ = storageService.Close(ctx)
			return nil, err
		}
		storageService = s
	}
	if config.LocalCache.Enable {
		s, err := NewCacheStorageService(config.LocalCache, storageService)
		if err != nil {
			_ = storageService.Close(ctx)
			return nil, err
		}
		storageService = s
	}
	return storageService, nil
}
