// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package availability

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/rollups-settlement/settlement/util/pretty"
)

// MemoryStorageService keeps every payload in process memory. It is meant
// for tests and short-lived development nodes.
type MemoryStorageService struct {
	mutex    sync.RWMutex
	contents map[common.Hash][]byte
	closed   bool
}

func NewMemoryStorageService() *MemoryStorageService {
	return &MemoryStorageService{
		contents: make(map[common.Hash][]byte),
	}
}

func (m *MemoryStorageService) GetByHash(ctx context.Context, hash common.Hash) ([]byte, error) {
	log.Trace("availability.MemoryStorageService.GetByHash", "key", pretty.PrettyHash(hash), "this", m)
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	data, ok := m.contents[hash]
	if !ok {
		return nil, ErrNotFound
	}
	return common.CopyBytes(data), nil
}

func (m *MemoryStorageService) Put(ctx context.Context, data []byte) error {
	logPut("availability.MemoryStorageService.Put", data, m)
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.contents[HashPayload(data)] = common.CopyBytes(data)
	return nil
}

func (m *MemoryStorageService) Sync(ctx context.Context) error {
	return nil
}

func (m *MemoryStorageService) Close(ctx context.Context) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.closed = true
	return nil
}

func (m *MemoryStorageService) String() string {
	return "MemoryStorageService"
}

func (m *MemoryStorageService) HealthCheck(ctx context.Context) error {
	return checkStorage(ctx, m)
}
