// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package availability

import (
	"context"
	"errors"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	flag "github.com/spf13/pflag"

	"github.com/rollups-settlement/settlement/util/pretty"
)

type PebbleStorageConfig struct {
	Enable      bool   `koanf:"enable"`
	DataDir     string `koanf:"data-dir"`
	SyncWrites  bool   `koanf:"sync-writes"`
	CacheSizeMB int64  `koanf:"cache-size-mb"`
}

var DefaultPebbleStorageConfig = PebbleStorageConfig{
	CacheSizeMB: 64,
}

func PebbleStorageConfigAddOptions(prefix string, f *flag.FlagSet) {
	f.Bool(prefix+".enable", DefaultPebbleStorageConfig.Enable, "enable storage of payloads in a pebble database on the local filesystem")
	f.String(prefix+".data-dir", DefaultPebbleStorageConfig.DataDir, "directory in which to store the database, in memory when empty")
	f.Bool(prefix+".sync-writes", DefaultPebbleStorageConfig.SyncWrites, "sync every write to disk before acknowledging it")
	f.Int64(prefix+".cache-size-mb", DefaultPebbleStorageConfig.CacheSizeMB, "size of the pebble block cache in megabytes")
}

type PebbleStorageService struct {
	db        *pebble.DB
	dirPath   string
	writeOpts *pebble.WriteOptions
}

func NewPebbleStorageService(config PebbleStorageConfig) (*PebbleStorageService, error) {
	cache := pebble.NewCache(config.CacheSizeMB * 1024 * 1024)
	defer cache.Unref()
	options := &pebble.Options{
		Cache: cache,
	}
	if config.DataDir == "" {
		options.FS = vfs.NewMem()
	}
	db, err := pebble.Open(config.DataDir, options)
	if err != nil {
		return nil, err
	}
	writeOpts := pebble.NoSync
	if config.SyncWrites {
		writeOpts = pebble.Sync
	}
	return &PebbleStorageService{
		db:        db,
		dirPath:   config.DataDir,
		writeOpts: writeOpts,
	}, nil
}

func (p *PebbleStorageService) GetByHash(ctx context.Context, hash common.Hash) ([]byte, error) {
	log.Trace("availability.PebbleStorageService.GetByHash", "key", pretty.PrettyHash(hash), "this", p)
	value, closer, err := p.db.Get(hash.Bytes())
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	return common.CopyBytes(value), nil
}

func (p *PebbleStorageService) Put(ctx context.Context, data []byte) error {
	logPut("availability.PebbleStorageService.Put", data, p)
	return p.db.Set(HashPayload(data).Bytes(), data, p.writeOpts)
}

func (p *PebbleStorageService) Sync(ctx context.Context) error {
	return p.db.Flush()
}

func (p *PebbleStorageService) Close(ctx context.Context) error {
	return p.db.Close()
}

func (p *PebbleStorageService) String() string {
	return "PebbleDB(" + p.dirPath + ")"
}

func (p *PebbleStorageService) HealthCheck(ctx context.Context) error {
	return checkStorage(ctx, p)
}
