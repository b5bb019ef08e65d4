// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package availability

import (
	"context"
	"crypto/hmac"
	"fmt"
	"regexp"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	flag "github.com/spf13/pflag"
	"golang.org/x/crypto/sha3"

	"github.com/rollups-settlement/settlement/util/pretty"
	"github.com/rollups-settlement/settlement/util/redisutil"
)

type RedisConfig struct {
	Enable     bool          `koanf:"enable"`
	Url        string        `koanf:"url"`
	Expiration time.Duration `koanf:"expiration"`
	KeyConfig  string        `koanf:"key-config"`
}

var DefaultRedisConfig = RedisConfig{
	Url:        "",
	Expiration: time.Hour,
	KeyConfig:  "",
}

func RedisConfigAddOptions(prefix string, f *flag.FlagSet) {
	f.Bool(prefix+".enable", DefaultRedisConfig.Enable, "enable Redis caching of payloads")
	f.String(prefix+".url", DefaultRedisConfig.Url, "Redis url")
	f.Duration(prefix+".expiration", DefaultRedisConfig.Expiration, "Redis expiration")
	f.String(prefix+".key-config", DefaultRedisConfig.KeyConfig, "Redis key config, 32 bytes of hex used to sign cached entries")
}

// RedisStorageService caches payloads of a base service in Redis. Entries
// are HMAC signed so a shared Redis cannot feed forged payloads back.
type RedisStorageService struct {
	baseStorageService StorageService
	redisConfig        RedisConfig
	signingKey         common.Hash
	client             redis.UniversalClient
}

var keyIsHexRegex = regexp.MustCompile("^(0x)?[a-fA-F0-9]{64}$")

func NewRedisStorageService(redisConfig RedisConfig, baseStorageService StorageService) (*RedisStorageService, error) {
	if !keyIsHexRegex.MatchString(redisConfig.KeyConfig) {
		return nil, errors.New("signing key file contents are not 32 bytes of hex")
	}
	client, err := redisutil.RedisClientFromURL(redisConfig.Url)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return nil, errors.New("redis url is empty")
	}
	return &RedisStorageService{
		baseStorageService: baseStorageService,
		redisConfig:        redisConfig,
		signingKey:         common.HexToHash(redisConfig.KeyConfig),
		client:             client,
	}, nil
}

func (rs *RedisStorageService) verifyMessageSignature(data []byte) ([]byte, error) {
	if len(data) < 32 {
		return nil, errors.New("data is too short to contain message signature")
	}
	message := data[:len(data)-32]
	mac := hmac.New(sha3.NewLegacyKeccak256, rs.signingKey[:])
	mac.Write(message)
	if !hmac.Equal(data[len(data)-32:], mac.Sum(nil)) {
		return nil, errors.New("HMAC signature doesn't match expected value(s)")
	}
	return message, nil
}

func (rs *RedisStorageService) getVerifiedData(ctx context.Context, hash common.Hash) ([]byte, error) {
	data, err := rs.client.Get(ctx, string(hash.Bytes())).Bytes()
	if err != nil {
		return nil, err
	}
	return rs.verifyMessageSignature(data)
}

func (rs *RedisStorageService) signMessage(message []byte) []byte {
	mac := hmac.New(sha3.NewLegacyKeccak256, rs.signingKey[:])
	mac.Write(message)
	return mac.Sum(common.CopyBytes(message))
}

func (rs *RedisStorageService) GetByHash(ctx context.Context, hash common.Hash) ([]byte, error) {
	log.Trace("availability.RedisStorageService.GetByHash", "key", pretty.PrettyHash(hash), "this", rs)
	ret, err := rs.getVerifiedData(ctx, hash)
	if err == nil {
		return ret, nil
	}
	if !errors.Is(err, redis.Nil) {
		log.Warn("ignoring bad redis cache entry", "key", pretty.PrettyHash(hash), "err", err)
	}
	ret, err = rs.baseStorageService.GetByHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	if err := rs.client.Set(ctx, string(hash.Bytes()), rs.signMessage(ret), rs.redisConfig.Expiration).Err(); err != nil {
		return nil, errors.Wrap(err, "caching payload in redis")
	}
	return ret, nil
}

func (rs *RedisStorageService) Put(ctx context.Context, value []byte) error {
	logPut("availability.RedisStorageService.Put", value, rs)
	if err := rs.baseStorageService.Put(ctx, value); err != nil {
		return err
	}
	return rs.client.Set(ctx, string(HashPayload(value).Bytes()), rs.signMessage(value), rs.redisConfig.Expiration).Err()
}

func (rs *RedisStorageService) Sync(ctx context.Context) error {
	return rs.baseStorageService.Sync(ctx)
}

func (rs *RedisStorageService) Close(ctx context.Context) error {
	if err := rs.client.Close(); err != nil {
		return err
	}
	return rs.baseStorageService.Close(ctx)
}

func (rs *RedisStorageService) String() string {
	return fmt.Sprintf("RedisStorageService(%s, %v)", rs.redisConfig.Url, rs.baseStorageService)
}

func (rs *RedisStorageService) HealthCheck(ctx context.Context) error {
	if err := rs.client.Ping(ctx).Err(); err != nil {
		return errors.Wrap(err, "pinging redis")
	}
	return rs.baseStorageService.HealthCheck(ctx)
}
