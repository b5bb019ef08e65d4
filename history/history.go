// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

// Package history records the epoch claims made for each application.
// Claims are finalized on submission; disputing them is not handled here.
package history

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"
	"github.com/ethereum/go-ethereum/rlp"
)

var claimsSubmittedCounter = metrics.NewRegisteredCounter("settlement/history/claims", nil)

var (
	ErrInvalidInputIndices = errors.New("invalid input indices")
	ErrUnclaimedInputs     = errors.New("claim does not start right after the previous one")
	ErrInputsNotReceived   = errors.New("claim covers inputs that were not received")
	ErrClaimNotFound       = errors.New("claim not found")
	ErrNoInputCounter      = errors.New("history is not tracking received inputs")
)

// Claim states that the epoch made of inputs FirstIndex..LastIndex
// (inclusive) of an application ended with EpochHash.
type Claim struct {
	EpochHash  common.Hash
	FirstIndex uint64
	LastIndex  uint64
}

// Epoch is the epoch an application is accumulating inputs into. Index is
// the number of claims made so far, and the epoch holds the InputCount
// inputs received from FirstIndex on.
type Epoch struct {
	Index      uint64
	FirstIndex uint64
	InputCount uint64
}

// InputCounter reports how many inputs an application has received.
type InputCounter interface {
	GetNumberOfInputs(dapp common.Address) (uint64, error)
}

type History struct {
	db     ethdb.Database
	inputs InputCounter
	mutex  sync.Mutex
}

// NewHistory opens the claims registry stored in raw. When inputs is not
// nil, claims may only cover inputs it already holds.
func NewHistory(raw ethdb.Database, inputs InputCounter) *History {
	return &History{
		db:     rawdb.NewTable(raw, historyPrefix),
		inputs: inputs,
	}
}

// SubmitClaim appends claim to the claims of dapp and returns its index.
// Claims of an application cover consecutive, non-overlapping input ranges
// starting at input 0.
func (h *History) SubmitClaim(dapp common.Address, claim Claim) (uint64, error) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if claim.FirstIndex > claim.LastIndex {
		return 0, fmt.Errorf("%w: first %d > last %d", ErrInvalidInputIndices, claim.FirstIndex, claim.LastIndex)
	}
	count, err := h.numberOfClaims(dapp)
	if err != nil {
		return 0, err
	}
	var expectedFirst uint64
	if count > 0 {
		previous, err := h.getClaim(dapp, count-1)
		if err != nil {
			return 0, err
		}
		expectedFirst = previous.LastIndex + 1
	}
	if claim.FirstIndex != expectedFirst {
		return 0, fmt.Errorf("%w: first %d, expected %d", ErrUnclaimedInputs, claim.FirstIndex, expectedFirst)
	}
	if h.inputs != nil {
		received, err := h.inputs.GetNumberOfInputs(dapp)
		if err != nil {
			return 0, err
		}
		if claim.LastIndex >= received {
			return 0, fmt.Errorf("%w: last %d, %d inputs received", ErrInputsNotReceived, claim.LastIndex, received)
		}
	}

	claimData, err := rlp.EncodeToBytes(&claim)
	if err != nil {
		return 0, err
	}
	countData, err := rlp.EncodeToBytes(count + 1)
	if err != nil {
		return 0, err
	}
	batch := h.db.NewBatch()
	if err := batch.Put(claimKey(dapp, count), claimData); err != nil {
		return 0, err
	}
	if err := batch.Put(claimCountKey(dapp), countData); err != nil {
		return 0, err
	}
	if err := batch.Write(); err != nil {
		return 0, err
	}
	claimsSubmittedCounter.Inc(1)
	log.Info("claim submitted", "dapp", dapp, "claimIndex", count, "first", claim.FirstIndex, "last", claim.LastIndex, "epochHash", claim.EpochHash)
	return count, nil
}

func (h *History) numberOfClaims(dapp common.Address) (uint64, error) {
	key := claimCountKey(dapp)
	hasKey, err := h.db.Has(key)
	if err != nil || !hasKey {
		return 0, err
	}
	data, err := h.db.Get(key)
	if err != nil {
		return 0, err
	}
	var count uint64
	if err := rlp.DecodeBytes(data, &count); err != nil {
		return 0, err
	}
	return count, nil
}

func (h *History) getClaim(dapp common.Address, claimIndex uint64) (*Claim, error) {
	data, err := h.db.Get(claimKey(dapp, claimIndex))
	if err != nil {
		return nil, err
	}
	var claim Claim
	if err := rlp.DecodeBytes(data, &claim); err != nil {
		return nil, err
	}
	return &claim, nil
}

func (h *History) GetNumberOfClaims(dapp common.Address) (uint64, error) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.numberOfClaims(dapp)
}

func (h *History) GetClaim(dapp common.Address, claimIndex uint64) (*Claim, error) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	count, err := h.numberOfClaims(dapp)
	if err != nil {
		return nil, err
	}
	if claimIndex >= count {
		return nil, fmt.Errorf("%w: claim %d, dapp %v has %d claims", ErrClaimNotFound, claimIndex, dapp, count)
	}
	return h.getClaim(dapp, claimIndex)
}

// FindClaimByInputIndex returns the claim whose range contains inputIndex
// together with its claim index.
func (h *History) FindClaimByInputIndex(dapp common.Address, inputIndex uint64) (uint64, *Claim, error) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	count, err := h.numberOfClaims(dapp)
	if err != nil {
		return 0, nil, err
	}
	var searchErr error
	// claims are sorted by LastIndex
	found := sort.Search(int(count), func(i int) bool {
		if searchErr != nil {
			return true
		}
		claim, err := h.getClaim(dapp, uint64(i))
		if err != nil {
			searchErr = err
			return true
		}
		return claim.LastIndex >= inputIndex
	})
	if searchErr != nil {
		return 0, nil, searchErr
	}
	if uint64(found) >= count {
		return 0, nil, fmt.Errorf("%w: no claim covers input %d of dapp %v", ErrClaimNotFound, inputIndex, dapp)
	}
	claim, err := h.getClaim(dapp, uint64(found))
	if err != nil {
		return 0, nil, err
	}
	return uint64(found), claim, nil
}

// CurrentEpoch returns the open epoch of dapp: every input received after
// its last claim.
func (h *History) CurrentEpoch(dapp common.Address) (*Epoch, error) {
	if h.inputs == nil {
		return nil, ErrNoInputCounter
	}
	h.mutex.Lock()
	defer h.mutex.Unlock()
	count, err := h.numberOfClaims(dapp)
	if err != nil {
		return nil, err
	}
	epoch := &Epoch{Index: count}
	if count > 0 {
		last, err := h.getClaim(dapp, count-1)
		if err != nil {
			return nil, err
		}
		epoch.FirstIndex = last.LastIndex + 1
	}
	received, err := h.inputs.GetNumberOfInputs(dapp)
	if err != nil {
		return nil, err
	}
	if received > epoch.FirstIndex {
		epoch.InputCount = received - epoch.FirstIndex
	}
	return epoch, nil
}
