// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

// Package inputbox keeps the per-application, append-only lists of input
// hashes and announces every accepted input together with its payload.
package inputbox

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
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/rollups-settlement/settlement/inputs"
)

var (
	inputsAddedCounter    = metrics.NewRegisteredCounter("settlement/inputbox/added", nil)
	inputsRejectedCounter = metrics.NewRegisteredCounter("settlement/inputbox/rejected", nil)
	payloadSizeHistogram  = metrics.NewRegisteredHistogram("settlement/inputbox/payload/size", nil, metrics.NewExpDecaySample(1028, 0.015))
)

var ErrIndexOutOfRange = errors.New("input index out of range")

// InputAdded is the availability record of an accepted input. It carries
// the raw payload; only Hash is kept in the input box.
type InputAdded struct {
	Dapp           common.Address
	Index          uint64
	Sender         common.Address
	BlockNumber    uint64
	BlockTimestamp uint64
	Payload        []byte
	Hash           common.Hash
}

type InputBox struct {
	db     ethdb.Database
	blocks BlockContextReader
	// mutex serializes index assignment. feedMutex is taken before mutex
	// is released so announcements keep index order without holding up
	// the next submission's write.
	mutex          sync.Mutex
	feedMutex      sync.Mutex
	inputAddedFeed event.Feed
}

func NewInputBox(raw ethdb.Database, blocks BlockContextReader) *InputBox {
	return &InputBox{
		db:     rawdb.NewTable(raw, inputBoxPrefix),
		blocks: blocks,
	}
}

// AddInput appends the hash of payload to the input box of dapp and
// announces it. The new input's index is the number of inputs dapp had
// before the call. Nothing is written when an error is returned.
func (b *InputBox) AddInput(ctx context.Context, dapp common.Address, sender common.Address, payload []byte) (*InputAdded, error) {
	b.mutex.Lock()
	added, err := b.appendInput(ctx, dapp, sender, payload)
	if err != nil {
		b.mutex.Unlock()
		return nil, err
	}
	b.feedMutex.Lock()
	b.mutex.Unlock()
	defer b.feedMutex.Unlock()
	b.inputAddedFeed.Send(*added)
	return added, nil
}

func (b *InputBox) appendInput(ctx context.Context, dapp common.Address, sender common.Address, payload []byte) (*InputAdded, error) {
	block, err := b.blocks.BlockContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading block context: %w", err)
	}
	index, err := b.getNumberOfInputs(dapp)
	if err != nil {
		return nil, err
	}
	hash, err := inputs.ComputeEvmInputHash(sender, block.Number, block.Timestamp, index, payload)
	if err != nil {
		inputsRejectedCounter.Inc(1)
		return nil, err
	}

	batch := b.db.NewBatch()
	if err := batch.Put(inputHashKey(dapp, index), hash.Bytes()); err != nil {
		return nil, err
	}
	countData, err := rlp.EncodeToBytes(index + 1)
	if err != nil {
		return nil, err
	}
	if err := batch.Put(inputCountKey(dapp), countData); err != nil {
		return nil, err
	}
	if err := batch.Write(); err != nil {
		return nil, err
	}

	added := &InputAdded{
		Dapp:           dapp,
		Index:          index,
		Sender:         sender,
		BlockNumber:    block.Number,
		BlockTimestamp: block.Timestamp,
		Payload:        common.CopyBytes(payload),
		Hash:           hash,
	}
	inputsAddedCounter.Inc(1)
	payloadSizeHistogram.Update(int64(len(payload)))
	log.Debug("InputBox", "dapp", dapp, "index", index, "sender", sender, "block", block.Number, "hash", hash)
	return added, nil
}

func (b *InputBox) getNumberOfInputs(dapp common.Address) (uint64, error) {
	key := inputCountKey(dapp)
	hasKey, err := b.db.Has(key)
	if err != nil {
		return 0, err
	}
	if !hasKey {
		return 0, nil
	}
	data, err := b.db.Get(key)
	if err != nil {
		return 0, err
	}
	var count uint64
	if err := rlp.DecodeBytes(data, &count); err != nil {
		return 0, err
	}
	return count, nil
}

// GetNumberOfInputs returns how many inputs dapp has received. Unknown
// applications have an empty input box.
func (b *InputBox) GetNumberOfInputs(dapp common.Address) (uint64, error) {
	return b.getNumberOfInputs(dapp)
}

func (b *InputBox) GetInputHash(dapp common.Address, index uint64) (common.Hash, error) {
	count, err := b.getNumberOfInputs(dapp)
	if err != nil {
		return common.Hash{}, err
	}
	if index >= count {
		return common.Hash{}, fmt.Errorf("%w: index %d, dapp %v has %d inputs", ErrIndexOutOfRange, index, dapp, count)
	}
	data, err := b.db.Get(inputHashKey(dapp, index))
	if err != nil {
		return common.Hash{}, err
	}
	if len(data) != common.HashLength {
		return common.Hash{}, fmt.Errorf("corrupt input hash entry for dapp %v index %d", dapp, index)
	}
	return common.BytesToHash(data), nil
}

// SubscribeInputAdded delivers every accepted input, in index order, to ch.
// Inputs are stored before they are announced. A subscriber that stops
// receiving holds AddInput callers after their write, so ch must be
// drained continuously.
func (b *InputBox) SubscribeInputAdded(ch chan<- InputAdded) event.Subscription {
	return b.inputAddedFeed.Subscribe(ch)
}
