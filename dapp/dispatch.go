// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package dapp

import (
	"context"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
)

// VoucherDispatcher performs the call a voucher describes on behalf of an
// application. A returned error means the call did not happen.
type VoucherDispatcher interface {
	Dispatch(ctx context.Context, dapp common.Address, destination common.Address, payload []byte) error
}

// DispatcherFunc adapts an ordinary function to VoucherDispatcher.
type DispatcherFunc func(ctx context.Context, dapp common.Address, destination common.Address, payload []byte) error

func (f DispatcherFunc) Dispatch(ctx context.Context, dapp common.Address, destination common.Address, payload []byte) error {
	return f(ctx, dapp, destination, payload)
}

// CallDispatcher dry-runs vouchers against a chain with eth_call, as if
// sent by the application contract. It never changes chain state.
type CallDispatcher struct {
	caller ethereum.ContractCaller
}

func NewCallDispatcher(caller ethereum.ContractCaller) *CallDispatcher {
	return &CallDispatcher{caller: caller}
}

func (d *CallDispatcher) Dispatch(ctx context.Context, dapp common.Address, destination common.Address, payload []byte) error {
	msg := ethereum.CallMsg{
		From: dapp,
		To:   &destination,
		Data: payload,
	}
	result, err := d.caller.CallContract(ctx, msg, nil)
	if err != nil {
		return err
	}
	log.Debug("voucher call succeeded", "dapp", dapp, "destination", destination, "resultLen", len(result))
	return nil
}
