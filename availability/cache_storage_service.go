// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/allegro/bigcache"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"
	lru "github.com/hashicorp/golang-lru/v2"
	flag "github.com/spf13/pflag"

	"github.com/rollups-settlement/settlement/util/pretty"
)

var (
	cacheHitCounter  = metrics.NewRegisteredCounter("settlement/availability/cache/hit", nil)
	cacheMissCounter = metrics.NewRegisteredCounter("settlement/availability/cache/miss", nil)
)

type CacheConfig struct {
	Enable   bool `koanf:"enable"`
	Capacity int  `koanf:"capacity"`
}

var DefaultCacheConfig = CacheConfig{
	Capacity: 20_000,
}

func CacheConfigAddOptions(prefix string, f *flag.FlagSet) {
	f.Bool(prefix+".enable", DefaultCacheConfig.Enable, "enable local in-memory caching of payloads")
	f.Int(prefix+".capacity", DefaultCacheConfig.Capacity, "maximum number of payloads to keep in the in-memory cache")
}

// CacheStorageService keeps the most recently used payloads of a base
// service in memory.
type CacheStorageService struct {
	baseStorageService StorageService
	config             CacheConfig
	cache              *lru.Cache[common.Hash, []byte]
}

func NewCacheStorageService(config CacheConfig, baseStorageService StorageService) (*CacheStorageService, error) {
	cache, err := lru.New[common.Hash, []byte](config.Capacity)
	if err != nil {
		return nil, err
	}
	return &CacheStorageService{
		baseStorageService: baseStorageService,
		config:             config,
		cache:              cache,
	}, nil
}

func (c *CacheStorageService) GetByHash(ctx context.Context, hash common.Hash) ([]byte, error) {
	if data, ok := c.cache.Get(hash); ok {
		cacheHitCounter.Inc(1)
		return common.CopyBytes(data), nil
	}
	cacheMissCounter.Inc(1)
	data, err := c.baseStorageService.GetByHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	c.cache.Add(hash, common.CopyBytes(data))
	return data, nil
}

func (c *CacheStorageService) Put(ctx context.Context, data []byte) error {
	if err := c.baseStorageService.Put(ctx, data); err != nil {
		return err
	}
	c.cache.Add(HashPayload(data), common.CopyBytes(data))
	return nil
}

func (c *CacheStorageService) Sync(ctx context.Context) error {
	return c.baseStorageService.Sync(ctx)
}

func (c *CacheStorageService) Close(ctx context.Context) error {
	c.cache.Purge()
	return c.baseStorageService.Close(ctx)
}

func (c *CacheStorageService) String() string {
	return fmt.Sprintf("CacheStorageService(%d, %v)", c.config.Capacity, c.baseStorageService)
}

func (c *CacheStorageService) HealthCheck(ctx context.Context) error {
	return c.baseStorageService.HealthCheck(ctx)
}

type BigCacheConfig struct {
	Enable     bool          `koanf:"enable"`
	Expiration time.Duration `koanf:"expiration"`
	MaxSizeMB  int           `koanf:"max-size-mb"`
}

var DefaultBigCacheConfig = BigCacheConfig{
	Expiration: time.Hour,
}

func BigCacheConfigAddOptions(prefix string, f *flag.FlagSet) {
	f.Bool(prefix+".enable", DefaultBigCacheConfig.Enable, "enable local in-memory caching of payloads with a time-based expiration")
	f.Duration(prefix+".expiration", DefaultBigCacheConfig.Expiration, "expiration time for payloads in the time-based cache")
	f.Int(prefix+".max-size-mb", DefaultBigCacheConfig.MaxSizeMB, "memory limit of the time-based cache in megabytes, 0 for no limit")
}

// BigCacheStorageService caches payloads of a base service for a fixed
// time after they were last written to the cache.
type BigCacheStorageService struct {
	baseStorageService StorageService
	config             BigCacheConfig
	bigCache           *bigcache.BigCache
}

func NewBigCacheStorageService(config BigCacheConfig, baseStorageService StorageService) (*BigCacheStorageService, error) {
	cacheConfig := bigcache.DefaultConfig(config.Expiration)
	cacheConfig.HardMaxCacheSize = config.MaxSizeMB
	bigCache, err := bigcache.NewBigCache(cacheConfig)
	if err != nil {
		return nil, err
	}
	return &BigCacheStorageService{
		baseStorageService: baseStorageService,
		config:             config,
		bigCache:           bigCache,
	}, nil
}

func (b *BigCacheStorageService) GetByHash(ctx context.Context, hash common.Hash) ([]byte, error) {
	data, err := b.bigCache.Get(string(hash.Bytes()))
	if err == nil {
		cacheHitCounter.Inc(1)
		return data, nil
	}
	cacheMissCounter.Inc(1)
	data, err = b.baseStorageService.GetByHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	b.cache(hash, data)
	return data, nil
}

// cache failures only cost a later base read.
func (b *BigCacheStorageService) cache(hash common.Hash, data []byte) {
	if err := b.bigCache.Set(string(hash.Bytes()), data); err != nil {
		log.Warn("failed to cache payload", "key", pretty.PrettyHash(hash), "size", len(data), "err", err)
	}
}

func (b *BigCacheStorageService) Put(ctx context.Context, data []byte) error {
	if err := b.baseStorageService.Put(ctx, data); err != nil {
		return err
	}
	b.cache(HashPayload(data), data)
	return nil
}

func (b *BigCacheStorageService) Sync(ctx context.Context) error {
	return b.baseStorageService.Sync(ctx)
}

func (b *BigCacheStorageService) Close(ctx context.Context) error {
	if err := b.bigCache.Close(); err != nil {
		return err
	}
	return b.baseStorageService.Close(ctx)
}

func (b *BigCacheStorageService) String() string {
	return fmt.Sprintf("BigCacheStorageService(%+v, %v)", b.config, b.baseStorageService)
}

func (b *BigCacheStorageService) HealthCheck(ctx context.Context) error {
	return b.baseStorageService.HealthCheck(ctx)
}
