// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

// Package availability keeps the raw payloads of accepted inputs so that
// anyone holding only an input's payload hash can fetch its contents.
package availability

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"

	"github.com/rollups-settlement/settlement/util/pretty"
)

var (
	ErrNotFound = errors.New("not found")
	ErrClosed   = errors.New("storage service closed")
)

// StorageService is a content-addressed payload store. Data is keyed by
// the keccak256 hash of its bytes.
type StorageService interface {
	GetByHash(ctx context.Context, hash common.Hash) ([]byte, error)
	Put(ctx context.Context, data []byte) error
	Sync(ctx context.Context) error
	Close(ctx context.Context) error
	fmt.Stringer
	HealthCheck(ctx context.Context) error
}

func HashPayload(data []byte) common.Hash {
	return crypto.Keccak256Hash(data)
}

func logPut(store string, data []byte, s StorageService) {
	if len(data) < 64 {
		log.Trace(store, "message", pretty.FirstFewBytes(data), "this", s)
	} else {
		log.Trace(store, "message", pretty.FirstFewBytes(data), "length", len(data), "this", s)
	}
}

// checkStorage stores and reads back a fixed payload.
func checkStorage(ctx context.Context, s StorageService) error {
	testData := []byte("Test-Data")
	if err := s.Put(ctx, testData); err != nil {
		return err
	}
	res, err := s.GetByHash(ctx, HashPayload(testData))
	if err != nil {
		return err
	}
	if !bytes.Equal(res, testData) {
		return errors.New("invalid GetByHash result")
	}
	return nil
}
