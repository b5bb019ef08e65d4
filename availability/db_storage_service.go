// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package availability

import (
	"context"
	"errors"
	"time"

	badger "github.com/dgraph-io/badger/v3"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	flag "github.com/spf13/pflag"

	"github.com/rollups-settlement/settlement/util/pretty"
	"github.com/rollups-settlement/settlement/util/stopwaiter"
)

type LocalDBStorageConfig struct {
	Enable         bool          `koanf:"enable"`
	DataDir        string        `koanf:"data-dir"`
	ValueLogGCFreq time.Duration `koanf:"value-log-gc-frequency"`
}

var DefaultLocalDBStorageConfig = LocalDBStorageConfig{
	ValueLogGCFreq: 5 * time.Minute,
}

func LocalDBStorageConfigAddOptions(prefix string, f *flag.FlagSet) {
	f.Bool(prefix+".enable", DefaultLocalDBStorageConfig.Enable, "enable storage of payloads in a badger database on the local filesystem")
	f.String(prefix+".data-dir", DefaultLocalDBStorageConfig.DataDir, "directory in which to store the database")
	f.Duration(prefix+".value-log-gc-frequency", DefaultLocalDBStorageConfig.ValueLogGCFreq, "how often to garbage collect the badger value log")
}

// DBStorageService stores payloads in a badger database. A background
// thread garbage collects the value log until the service is closed.
type DBStorageService struct {
	db         *badger.DB
	dirPath    string
	stopWaiter stopwaiter.StopWaiterSafe
}

func NewDBStorageService(ctx context.Context, config LocalDBStorageConfig) (*DBStorageService, error) {
	options := badger.DefaultOptions(config.DataDir).WithLogger(nil)
	if config.DataDir == "" {
		options = options.WithInMemory(true)
	}
	db, err := badger.Open(options)
	if err != nil {
		return nil, err
	}
	ret := &DBStorageService{
		db:      db,
		dirPath: config.DataDir,
	}
	if err := ret.stopWaiter.Start(ctx, ret); err != nil {
		return nil, err
	}
	err = ret.stopWaiter.LaunchThread(func(myCtx context.Context) {
		ticker := time.NewTicker(config.ValueLogGCFreq)
		defer ticker.Stop()
		defer func() {
			if err := ret.db.Close(); err != nil {
				log.Error("Failed to close DB", "err", err)
			}
		}()
		for {
			select {
			case <-ticker.C:
				// in-memory databases have no value log
				if config.DataDir == "" {
					continue
				}
				for db.RunValueLogGC(0.7) == nil {
					select {
					case <-myCtx.Done():
						return
					default:
					}
				}
			case <-myCtx.Done():
				return
			}
		}
	})
	if err != nil {
		return nil, err
	}
	return ret, nil
}

func (dbs *DBStorageService) GetByHash(ctx context.Context, hash common.Hash) ([]byte, error) {
	log.Trace("availability.DBStorageService.GetByHash", "key", pretty.PrettyHash(hash), "this", dbs)
	var ret []byte
	err := dbs.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(hash.Bytes())
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			ret = common.CopyBytes(val)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	return ret, err
}

func (dbs *DBStorageService) Put(ctx context.Context, data []byte) error {
	logPut("availability.DBStorageService.Put", data, dbs)
	return dbs.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(HashPayload(data).Bytes(), data))
	})
}

func (dbs *DBStorageService) Sync(ctx context.Context) error {
	if dbs.dirPath == "" {
		return nil
	}
	return dbs.db.Sync()
}

func (dbs *DBStorageService) Close(ctx context.Context) error {
	return dbs.stopWaiter.StopAndWait()
}

func (dbs *DBStorageService) String() string {
	return "BadgerDB(" + dbs.dirPath + ")"
}

func (dbs *DBStorageService) HealthCheck(ctx context.Context) error {
	return checkStorage(ctx, dbs)
}
