// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package availability

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/rollups-settlement/settlement/util/pretty"
)

// RedundantStorageService replicates payloads across a small set of
// services. Reads race all replicas and return the first payload whose
// hash matches.
type RedundantStorageService struct {
	innerServices []StorageService
}

func NewRedundantStorageService(services []StorageService) *RedundantStorageService {
	return &RedundantStorageService{append([]StorageService{}, services...)}
}

type readResponse struct {
	data []byte
	err  error
}

func (r *RedundantStorageService) GetByHash(ctx context.Context, hash common.Hash) ([]byte, error) {
	log.Trace("availability.RedundantStorageService.GetByHash", "key", pretty.PrettyHash(hash), "this", r)
	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	resultChan := make(chan readResponse, len(r.innerServices))
	for _, serv := range r.innerServices {
		go func(s StorageService) {
			data, err := s.GetByHash(subCtx, hash)
			if err == nil && HashPayload(data) != hash {
				err = fmt.Errorf("%v returned data not matching hash %v", s, hash)
			}
			resultChan <- readResponse{data, err}
		}(serv)
	}
	var anyError error = ErrNotFound
	for pending := len(r.innerServices); pending > 0; pending-- {
		select {
		case resp := <-resultChan:
			if resp.err == nil {
				return resp.data, nil
			}
			if !errors.Is(resp.err, ErrNotFound) {
				anyError = resp.err
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, anyError
}

// forEach runs fn on every inner service concurrently and returns one of
// the errors, if any.
func (r *RedundantStorageService) forEach(fn func(StorageService) error) error {
	var wg sync.WaitGroup
	var errorMutex sync.Mutex
	var anyError error
	for _, serv := range r.innerServices {
		wg.Add(1)
		go func(s StorageService) {
			defer wg.Done()
			if err := fn(s); err != nil {
				errorMutex.Lock()
				anyError = err
				errorMutex.Unlock()
			}
		}(serv)
	}
	wg.Wait()
	return anyError
}

func (r *RedundantStorageService) Put(ctx context.Context, data []byte) error {
	logPut("availability.RedundantStorageService.Put", data, r)
	return r.forEach(func(s StorageService) error { return s.Put(ctx, data) })
}

func (r *RedundantStorageService) Sync(ctx context.Context) error {
	return r.forEach(func(s StorageService) error { return s.Sync(ctx) })
}

func (r *RedundantStorageService) Close(ctx context.Context) error {
	return r.forEach(func(s StorageService) error { return s.Close(ctx) })
}

func (r *RedundantStorageService) String() string {
	names := make([]string, 0, len(r.innerServices))
	for _, serv := range r.innerServices {
		names = append(names, serv.String())
	}
	return "RedundantStorageService(" + strings.Join(names, ",") + ")"
}

func (r *RedundantStorageService) HealthCheck(ctx context.Context) error {
	for _, storageService := range r.innerServices {
		if err := storageService.HealthCheck(ctx); err != nil {
			return err
		}
	}
	return nil
}
