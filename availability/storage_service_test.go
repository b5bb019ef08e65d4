// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package availability

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/rollups-settlement/settlement/util/testhelpers"
)

func testStorageServiceRoundTrip(t *testing.T, storage StorageService) {
	t.Helper()
	ctx := context.Background()

	val1 := []byte("The first value")
	val1CorrectKey := HashPayload(val1)
	val2IncorrectKey := HashPayload(append(val1, 0))

	_, err := storage.GetByHash(ctx, val1CorrectKey)
	if !errors.Is(err, ErrNotFound) {
		Fail(t, "expected ErrNotFound before put, got", err)
	}
	Require(t, storage.Put(ctx, val1))
	_, err = storage.GetByHash(ctx, val2IncorrectKey)
	if !errors.Is(err, ErrNotFound) {
		Fail(t, "expected ErrNotFound for another key, got", err)
	}
	val, err := storage.GetByHash(ctx, val1CorrectKey)
	Require(t, err)
	if !bytes.Equal(val, val1) {
		Fail(t, "got", val, "want", val1)
	}

	big := testhelpers.RandomSlice(200_000)
	Require(t, storage.Put(ctx, big))
	val, err = storage.GetByHash(ctx, HashPayload(big))
	Require(t, err)
	if !bytes.Equal(val, big) {
		Fail(t, "large payload corrupted")
	}
	empty := []byte{}
	Require(t, storage.Put(ctx, empty))
	val, err = storage.GetByHash(ctx, HashPayload(empty))
	Require(t, err)
	if len(val) != 0 {
		Fail(t, "empty payload came back with", len(val), "bytes")
	}

	Require(t, storage.HealthCheck(ctx))
	Require(t, storage.Sync(ctx))
	Require(t, storage.Close(ctx))
}

func TestStorageServices(t *testing.T) {
	ctx := context.Background()
	testCases := []struct {
		desc   string
		create func(t *testing.T) StorageService
	}{
		{"memory", func(t *testing.T) StorageService { return NewMemoryStorageService() }},
		{"local file", func(t *testing.T) StorageService {
			s, err := NewLocalFileStorageService(LocalFileStorageConfig{Enable: true, DataDir: t.TempDir(), CompressionLevel: -1})
			Require(t, err)
			return s
		}},
		{"local file brotli", func(t *testing.T) StorageService {
			s, err := NewLocalFileStorageService(LocalFileStorageConfig{Enable: true, DataDir: t.TempDir(), CompressionLevel: 5})
			Require(t, err)
			return s
		}},
		{"badger", func(t *testing.T) StorageService {
			config := DefaultLocalDBStorageConfig
			config.DataDir = t.TempDir()
			s, err := NewDBStorageService(ctx, config)
			Require(t, err)
			return s
		}},
		{"badger in memory", func(t *testing.T) StorageService {
			s, err := NewDBStorageService(ctx, DefaultLocalDBStorageConfig)
			Require(t, err)
			return s
		}},
		{"pebble", func(t *testing.T) StorageService {
			config := DefaultPebbleStorageConfig
			config.DataDir = t.TempDir()
			config.SyncWrites = true
			s, err := NewPebbleStorageService(config)
			Require(t, err)
			return s
		}},
		{"pebble in memory", func(t *testing.T) StorageService {
			s, err := NewPebbleStorageService(DefaultPebbleStorageConfig)
			Require(t, err)
			return s
		}},
		{"redundant", func(t *testing.T) StorageService {
			return NewRedundantStorageService([]StorageService{NewMemoryStorageService(), NewMemoryStorageService()})
		}},
		{"lru cache", func(t *testing.T) StorageService {
			s, err := NewCacheStorageService(CacheConfig{Enable: true, Capacity: 2}, NewMemoryStorageService())
			Require(t, err)
			return s
		}},
		{"big cache", func(t *testing.T) StorageService {
			s, err := NewBigCacheStorageService(DefaultBigCacheConfig, NewMemoryStorageService())
			Require(t, err)
			return s
		}},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			testStorageServiceRoundTrip(t, tc.create(t))
		})
	}
}

func TestLocalFileLayout(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	plain, err := NewLocalFileStorageService(LocalFileStorageConfig{DataDir: dir, CompressionLevel: -1})
	Require(t, err)
	data := []byte("stored without compression")
	Require(t, plain.Put(ctx, data))
	hex := common.Bytes2Hex(HashPayload(data).Bytes())
	if _, err := os.Stat(filepath.Join(dir, byDataHash, hex[:2], hex[2:4], hex)); err != nil {
		Fail(t, "payload not at its trie path:", err)
	}

	// a compressing service reads what a plain one wrote and vice versa
	compressing, err := NewLocalFileStorageService(LocalFileStorageConfig{DataDir: dir, CompressionLevel: 11})
	Require(t, err)
	got, err := compressing.GetByHash(ctx, HashPayload(data))
	Require(t, err)
	if !bytes.Equal(got, data) {
		Fail(t, "plain payload unreadable by compressing service")
	}
	compressible := bytes.Repeat([]byte("abcd"), 10_000)
	Require(t, compressing.Put(ctx, compressible))
	hex = common.Bytes2Hex(HashPayload(compressible).Bytes())
	info, err := os.Stat(filepath.Join(dir, byDataHash, hex[:2], hex[2:4], hex+compressedSuffix))
	Require(t, err)
	if info.Size() >= int64(len(compressible)) {
		Fail(t, "payload was not compressed", info.Size())
	}
	got, err = plain.GetByHash(ctx, HashPayload(compressible))
	Require(t, err)
	if !bytes.Equal(got, compressible) {
		Fail(t, "compressed payload unreadable by plain service")
	}

	if _, err := NewLocalFileStorageService(LocalFileStorageConfig{DataDir: filepath.Join(dir, "missing")}); err == nil {
		Fail(t, "missing directory accepted")
	}
	if _, err := NewLocalFileStorageService(LocalFileStorageConfig{DataDir: dir, CompressionLevel: 12}); err == nil {
		Fail(t, "invalid compression level accepted")
	}
}

func TestLocalFileFailedPutLeavesNoFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	storage, err := NewLocalFileStorageService(LocalFileStorageConfig{DataDir: dir, CompressionLevel: -1})
	Require(t, err)
	data := []byte("blocked by a directory")
	hex := common.Bytes2Hex(HashPayload(data).Bytes())
	shard := filepath.Join(dir, byDataHash, hex[:2], hex[2:4])
	// a directory at the payload path makes the final rename fail
	Require(t, os.MkdirAll(filepath.Join(shard, hex, "occupied"), 0o700))

	if err := storage.Put(ctx, data); err == nil {
		Fail(t, "put over a directory succeeded")
	}
	entries, err := os.ReadDir(shard)
	Require(t, err)
	if len(entries) != 1 || entries[0].Name() != hex {
		var names []string
		for _, entry := range entries {
			names = append(names, entry.Name())
		}
		Fail(t, "failed put left files behind:", names)
	}
}

func TestBadgerPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	config := DefaultLocalDBStorageConfig
	config.DataDir = t.TempDir()
	s, err := NewDBStorageService(ctx, config)
	Require(t, err)
	data := testhelpers.RandomSlice(100)
	Require(t, s.Put(ctx, data))
	Require(t, s.Sync(ctx))
	Require(t, s.Close(ctx))

	reopened, err := NewDBStorageService(ctx, config)
	Require(t, err)
	defer reopened.Close(ctx)
	got, err := reopened.GetByHash(ctx, HashPayload(data))
	Require(t, err)
	if !bytes.Equal(got, data) {
		Fail(t, "payload lost across reopen")
	}
}

func TestClosedMemoryStorage(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorageService()
	Require(t, s.Close(ctx))
	if err := s.Put(ctx, []byte{1}); !errors.Is(err, ErrClosed) {
		Fail(t, "expected ErrClosed, got", err)
	}
}

func Require(t *testing.T, err error, printables ...interface{}) {
	t.Helper()
	testhelpers.RequireImpl(t, err, printables...)
}

func Fail(t *testing.T, printables ...interface{}) {
	t.Helper()
	testhelpers.FailImpl(t, printables...)
}
