// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

// Package dapp executes the vouchers of an application once they are
// proven to belong to a claimed epoch, each at most once.
package dapp

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"
	"github.com/holiman/uint256"

	"github.com/rollups-settlement/settlement/history"
	"github.com/rollups-settlement/settlement/outputs"
)

var (
	vouchersExecutedCounter = metrics.NewRegisteredCounter("settlement/dapp/vouchers/executed", nil)
	vouchersFailedCounter   = metrics.NewRegisteredCounter("settlement/dapp/vouchers/failed", nil)
)

var (
	ErrVoucherReexecutionNotAllowed = errors.New("voucher re-execution not allowed")
	ErrVoucherDispatchFailed        = errors.New("voucher dispatch failed")
)

// Proof locates an output: Validity proves it belongs to an epoch and
// ClaimIndex names the claim that epoch was submitted under.
type Proof struct {
	Validity   outputs.OutputValidityProof `json:"validity"`
	ClaimIndex uint64                      `json:"claimIndex"`
}

// ClaimReader gives access to the claims of an application.
type ClaimReader interface {
	GetClaim(dapp common.Address, claimIndex uint64) (*history.Claim, error)
}

// VoucherExecuted is announced after a voucher was dispatched and marked.
type VoucherExecuted struct {
	Dapp        common.Address
	Position    uint256.Int
	InputIndex  uint64
	OutputIndex uint64
}

type Executor struct {
	dapp       common.Address
	claims     ClaimReader
	dispatcher VoucherDispatcher
	db         ethdb.Database

	// mutex makes the check, dispatch and mark of a voucher atomic.
	mutex               sync.Mutex
	voucherExecutedFeed event.Feed
}

func NewExecutor(raw ethdb.Database, dapp common.Address, claims ClaimReader, dispatcher VoucherDispatcher) *Executor {
	return &Executor{
		dapp:       dapp,
		claims:     claims,
		dispatcher: dispatcher,
		db:         rawdb.NewTable(raw, executorPrefix),
	}
}

func (e *Executor) Dapp() common.Address {
	return e.dapp
}

// locate checks that proof points into the claim it names and returns the
// claim's epoch hash and the absolute input index of the output.
func (e *Executor) locate(proof *Proof) (common.Hash, uint64, error) {
	claim, err := e.claims.GetClaim(e.dapp, proof.ClaimIndex)
	if err != nil {
		return common.Hash{}, 0, err
	}
	inputIndex, err := outputs.ValidateInputIndexRange(&proof.Validity, claim.FirstIndex, claim.LastIndex)
	if err != nil {
		return common.Hash{}, 0, err
	}
	return claim.EpochHash, inputIndex, nil
}

func voucherPosition(outputIndex, inputIndex uint64) (*uint256.Int, error) {
	return outputs.GetBitMaskPosition(uint256.NewInt(outputIndex), uint256.NewInt(inputIndex))
}

// ExecuteVoucher dispatches the voucher (destination, payload) if proof
// shows it was emitted in a claimed epoch and it was never executed
// before. The voucher is marked executed only when dispatch succeeds.
func (e *Executor) ExecuteVoucher(ctx context.Context, destination common.Address, payload []byte, proof *Proof) error {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	epochHash, inputIndex, err := e.locate(proof)
	if err != nil {
		return err
	}
	position, err := voucherPosition(proof.Validity.OutputIndexWithinInput, inputIndex)
	if err != nil {
		return err
	}
	executed, err := e.getBit(position)
	if err != nil {
		return err
	}
	if executed {
		return fmt.Errorf("%w: input %d output %d", ErrVoucherReexecutionNotAllowed, inputIndex, proof.Validity.OutputIndexWithinInput)
	}
	if err := outputs.ValidateVoucher(&proof.Validity, destination, payload, epochHash); err != nil {
		return err
	}
	if err := e.dispatcher.Dispatch(ctx, e.dapp, destination, payload); err != nil {
		vouchersFailedCounter.Inc(1)
		log.Warn("voucher dispatch failed", "dapp", e.dapp, "destination", destination, "input", inputIndex, "output", proof.Validity.OutputIndexWithinInput, "err", err)
		return fmt.Errorf("%w: %w", ErrVoucherDispatchFailed, err)
	}
	if err := e.setBit(position); err != nil {
		return err
	}
	vouchersExecutedCounter.Inc(1)
	log.Info("voucher executed", "dapp", e.dapp, "destination", destination, "input", inputIndex, "output", proof.Validity.OutputIndexWithinInput)
	e.voucherExecutedFeed.Send(VoucherExecuted{
		Dapp:        e.dapp,
		Position:    *position,
		InputIndex:  inputIndex,
		OutputIndex: proof.Validity.OutputIndexWithinInput,
	})
	return nil
}

// ValidateNotice returns nil when proof shows notice was emitted in a
// claimed epoch of the application.
func (e *Executor) ValidateNotice(notice []byte, proof *Proof) error {
	epochHash, _, err := e.locate(proof)
	if err != nil {
		return err
	}
	return outputs.ValidateNotice(&proof.Validity, notice, epochHash)
}

// WasVoucherExecuted reports whether the voucher at outputIndex of input
// inputIndex was executed.
func (e *Executor) WasVoucherExecuted(inputIndex, outputIndex uint64) (bool, error) {
	position, err := voucherPosition(outputIndex, inputIndex)
	if err != nil {
		return false, err
	}
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.getBit(position)
}

func (e *Executor) SubscribeVoucherExecuted(ch chan<- VoucherExecuted) event.Subscription {
	return e.voucherExecutedFeed.Subscribe(ch)
}

func (e *Executor) readBucket(key []byte) (*uint256.Int, error) {
	hasKey, err := e.db.Has(key)
	if err != nil {
		return nil, err
	}
	if !hasKey {
		return new(uint256.Int), nil
	}
	data, err := e.db.Get(key)
	if err != nil {
		return nil, err
	}
	return new(uint256.Int).SetBytes(data), nil
}

func (e *Executor) getBit(position *uint256.Int) (bool, error) {
	key, bit := bitmaskKey(e.dapp, position)
	bucket, err := e.readBucket(key)
	if err != nil {
		return false, err
	}
	return bucket.Rsh(bucket, bit).Uint64()&1 == 1, nil
}

func (e *Executor) setBit(position *uint256.Int) error {
	key, bit := bitmaskKey(e.dapp, position)
	bucket, err := e.readBucket(key)
	if err != nil {
		return err
	}
	bucket.Or(bucket, new(uint256.Int).Lsh(uint256.NewInt(1), bit))
	data := bucket.Bytes32()
	return e.db.Put(key, data[:])
}
