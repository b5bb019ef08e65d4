// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package redisutil

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/go-redis/redis/v8"
)

// RedisClientFromURL creates a new Redis client based on the provided URL.
// The URL scheme can be either `redis` or `redis+sentinel`; a sentinel URL
// has the form redis+sentinel://[:password@]host1:port1,host2:port2/master.
func RedisClientFromURL(redisUrl string) (redis.UniversalClient, error) {
	if redisUrl == "" {
		return nil, nil
	}
	u, err := url.Parse(redisUrl)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "redis+sentinel" {
		master := strings.Trim(u.Path, "/")
		if master == "" {
			return nil, fmt.Errorf("redis sentinel url %q has no master name", redisUrl)
		}
		options := &redis.FailoverOptions{
			MasterName:    master,
			SentinelAddrs: strings.Split(u.Host, ","),
		}
		if u.User != nil {
			options.Password, _ = u.User.Password()
		}
		return redis.NewFailoverClient(options), nil
	}
	redisOptions, err := redis.ParseURL(redisUrl)
	if err != nil {
		return nil, err
	}
	return redis.NewClient(redisOptions), nil
}
