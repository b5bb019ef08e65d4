// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package merkle

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/rollups-settlement/settlement/canonical"
)

// SparseDrive is a drive of 2^logDrive bytes split into slots of 2^logLeaf
// bytes. Slots are filled from zero onwards with known sub-roots; the rest
// of the drive is pristine. It is used off-chain to build the sibling lists
// consumed by GetRootAfterReplacementInDrive.
type SparseDrive struct {
	logDrive canonical.Log2Size
	logLeaf  canonical.Log2Size
	// levels[0] holds the slot roots, levels[h] the non-pristine nodes h
	// levels above them.
	levels [][]common.Hash
}

func NewSparseDrive(logDrive, logLeaf canonical.Log2Size, leaves []common.Hash) (*SparseDrive, error) {
	if err := checkLog2Size(logLeaf); err != nil {
		return nil, err
	}
	if err := checkLog2Size(logDrive); err != nil {
		return nil, err
	}
	if logLeaf > logDrive {
		return nil, fmt.Errorf("%w: leaf %v larger than drive %v", ErrInvalidLog2Size, logLeaf, logDrive)
	}
	depth := uint64(logDrive - logLeaf)
	if depth < 64 && uint64(len(leaves)) > uint64(1)<<depth {
		return nil, fmt.Errorf("%w: %d slots in a drive of %d", ErrDataTooLarge, len(leaves), uint64(1)<<depth)
	}
	levels := make([][]common.Hash, depth+1)
	levels[0] = append([]common.Hash{}, leaves...)
	for h := uint64(0); h < depth; h++ {
		current := levels[h]
		next := make([]common.Hash, (len(current)+1)/2)
		for i := range next {
			left := current[2*i]
			right := pristineRoots[logLeaf+canonical.Log2Size(h)]
			if 2*i+1 < len(current) {
				right = current[2*i+1]
			}
			next[i] = hashPair(left, right)
		}
		levels[h+1] = next
	}
	return &SparseDrive{
		logDrive: logDrive,
		logLeaf:  logLeaf,
		levels:   levels,
	}, nil
}

func (d *SparseDrive) depth() uint64 {
	return uint64(d.logDrive - d.logLeaf)
}

func (d *SparseDrive) Len() uint64 {
	return uint64(len(d.levels[0]))
}

func (d *SparseDrive) Root() common.Hash {
	top := d.levels[d.depth()]
	if len(top) == 0 {
		return pristineRoots[d.logDrive]
	}
	return top[0]
}

// Leaf returns the sub-root stored in slot, pristine when never written.
func (d *SparseDrive) Leaf(slot uint64) common.Hash {
	if slot < d.Len() {
		return d.levels[0][slot]
	}
	return pristineRoots[d.logLeaf]
}

// Position returns the byte offset of slot inside the drive.
func (d *SparseDrive) Position(slot uint64) (uint64, error) {
	return canonical.IntraMemoryRangePosition(slot, d.logLeaf)
}

// Proof returns the siblings of slot ordered from the leaf up to the root.
func (d *SparseDrive) Proof(slot uint64) ([]common.Hash, error) {
	depth := d.depth()
	if depth < 64 && slot >= uint64(1)<<depth {
		return nil, fmt.Errorf("%w: slot %d of %d", ErrPositionOutOfDrive, slot, uint64(1)<<depth)
	}
	siblings := make([]common.Hash, depth)
	index := slot
	for h := uint64(0); h < depth; h++ {
		level := d.levels[h]
		sibling := index ^ 1
		if sibling < uint64(len(level)) {
			siblings[h] = level[sibling]
		} else {
			siblings[h] = pristineRoots[d.logLeaf+canonical.Log2Size(h)]
		}
		index >>= 1
	}
	return siblings, nil
}
