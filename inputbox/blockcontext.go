// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package inputbox

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
)

// BlockContext is the chain context an input is submitted in.
type BlockContext struct {
	Number    uint64
	Timestamp uint64
}

type BlockContextReader interface {
	BlockContext(ctx context.Context) (BlockContext, error)
}

// LocalBlockClock mints a new block for every submission. Timestamps come
// from the wall clock but never go backwards.
type LocalBlockClock struct {
	mutex         sync.Mutex
	number        uint64
	lastTimestamp uint64
	now           func() time.Time
}

func NewLocalBlockClock(firstBlock uint64) *LocalBlockClock {
	return &LocalBlockClock{
		number: firstBlock,
		now:    time.Now,
	}
}

func (c *LocalBlockClock) BlockContext(_ context.Context) (BlockContext, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	timestamp := uint64(c.now().Unix())
	if timestamp < c.lastTimestamp {
		timestamp = c.lastTimestamp
	}
	c.lastTimestamp = timestamp
	block := BlockContext{Number: c.number, Timestamp: timestamp}
	c.number++
	return block, nil
}

// HeaderReader is satisfied by *ethclient.Client.
type HeaderReader interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// HeaderBlockContextReader takes the block context from the latest header
// of a parent chain.
type HeaderBlockContextReader struct {
	client HeaderReader
}

func NewHeaderBlockContextReader(client HeaderReader) *HeaderBlockContextReader {
	return &HeaderBlockContextReader{client: client}
}

func (r *HeaderBlockContextReader) BlockContext(ctx context.Context) (BlockContext, error) {
	header, err := r.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return BlockContext{}, err
	}
	if header == nil || header.Number == nil || !header.Number.IsUint64() {
		return BlockContext{}, errors.New("parent chain returned an invalid latest header")
	}
	return BlockContext{Number: header.Number.Uint64(), Timestamp: header.Time}, nil
}
