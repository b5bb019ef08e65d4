// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package availability

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestCreateStorageService(t *testing.T) {
	ctx := context.Background()

	config := DefaultStorageConfig
	if _, err := CreateStorageService(ctx, &config); !errors.Is(err, ErrNoStorageConfigured) {
		Fail(t, "expected ErrNoStorageConfigured, got", err)
	}

	config.Memory = true
	single, err := CreateStorageService(ctx, &config)
	Require(t, err)
	if _, ok := single.(*MemoryStorageService); !ok {
		Fail(t, "unexpected service", single)
	}

	config.PebbleStorage.Enable = true
	config.LocalFileStorage.Enable = true
	config.LocalFileStorage.DataDir = t.TempDir()
	config.LocalCache.Enable = true
	config.BigCache.Enable = true
	layered, err := CreateStorageService(ctx, &config)
	Require(t, err)
	name := layered.String()
	for _, part := range []string{"CacheStorageService", "BigCacheStorageService", "RedundantStorageService", "MemoryStorageService", "PebbleDB", "LocalFileStorageService"} {
		if !strings.Contains(name, part) {
			Fail(t, "missing", part, "in", name)
		}
	}
	if !strings.HasPrefix(name, "CacheStorageService") {
		Fail(t, "local cache is not outermost:", name)
	}
	testStorageServiceRoundTrip(t, layered)
}

func TestCreateStorageServiceValidation(t *testing.T) {
	ctx := context.Background()
	config := DefaultStorageConfig
	config.Memory = true
	config.LocalCache.Enable = true
	config.LocalCache.Capacity = 0
	if _, err := CreateStorageService(ctx, &config); err == nil {
		Fail(t, "zero capacity cache accepted")
	}
	config = DefaultStorageConfig
	config.LocalFileStorage.Enable = true
	config.LocalFileStorage.DataDir = t.TempDir() + "/missing"
	if _, err := CreateStorageService(ctx, &config); err == nil {
		Fail(t, "missing data directory accepted")
	}
}
