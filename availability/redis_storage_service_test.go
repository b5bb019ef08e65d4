// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package availability

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/rollups-settlement/settlement/util/testhelpers"
)

func newTestRedisConfig(t *testing.T) (RedisConfig, *miniredis.Miniredis) {
	t.Helper()
	server, err := miniredis.Run()
	Require(t, err)
	t.Cleanup(server.Close)
	return RedisConfig{
		Enable:     true,
		Url:        "redis://" + server.Addr(),
		Expiration: time.Hour,
		KeyConfig:  testhelpers.RandomHash().Hex(),
	}, server
}

func TestRedisStorageService(t *testing.T) {
	ctx := context.Background()
	config, server := newTestRedisConfig(t)
	base := &countingStorageService{StorageService: NewMemoryStorageService()}
	redisService, err := NewRedisStorageService(config, base)
	Require(t, err)

	val1 := []byte("The first value")
	_, err = redisService.GetByHash(ctx, HashPayload(val1))
	if !errors.Is(err, ErrNotFound) {
		Fail(t, "expected ErrNotFound, got", err)
	}
	Require(t, redisService.Put(ctx, val1))
	base.reads = 0
	got, err := redisService.GetByHash(ctx, HashPayload(val1))
	Require(t, err)
	if !bytes.Equal(got, val1) || base.reads != 0 {
		Fail(t, "payload not served from redis", got, base.reads)
	}

	// tampered entries are ignored and replaced from the base service
	Require(t, server.Set(string(HashPayload(val1).Bytes()), "forged payload with a 32 byte tag......"))
	got, err = redisService.GetByHash(ctx, HashPayload(val1))
	Require(t, err)
	if !bytes.Equal(got, val1) || base.reads != 1 {
		Fail(t, "tampered entry was trusted", got, base.reads)
	}
	got, err = redisService.GetByHash(ctx, HashPayload(val1))
	Require(t, err)
	if !bytes.Equal(got, val1) || base.reads != 1 {
		Fail(t, "entry not re-cached after tampering", base.reads)
	}

	// entries signed with another key are not trusted either
	otherConfig := config
	otherConfig.KeyConfig = testhelpers.RandomHash().Hex()
	other, err := NewRedisStorageService(otherConfig, NewMemoryStorageService())
	Require(t, err)
	if _, err := other.GetByHash(ctx, HashPayload(val1)); !errors.Is(err, ErrNotFound) {
		Fail(t, "entry signed with another key trusted:", err)
	}

	Require(t, redisService.HealthCheck(ctx))
	Require(t, redisService.Close(ctx))
}

func TestRedisStorageServiceConfig(t *testing.T) {
	config, _ := newTestRedisConfig(t)
	config.KeyConfig = "not hex"
	if _, err := NewRedisStorageService(config, NewMemoryStorageService()); err == nil {
		Fail(t, "bad signing key accepted")
	}
	config.KeyConfig = testhelpers.RandomHash().Hex()
	config.Url = ""
	if _, err := NewRedisStorageService(config, NewMemoryStorageService()); err == nil {
		Fail(t, "empty url accepted")
	}
}
