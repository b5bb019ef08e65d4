// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

// Package canonical holds the machine parameters every cooperating
// implementation must agree on for input hashes and output proofs to match.
package canonical

import (
	"errors"
	"fmt"
)

// Version names the parameter set below. Tools exchanging proofs should
// refuse to interoperate when their versions differ.
const Version = "v1"

// Log2Size is the base-2 logarithm of a power-of-two byte range.
type Log2Size uint64

const (
	// WordLog2Size is the size of a hashed machine word (8 bytes).
	WordLog2Size Log2Size = 3
	// KeccakLog2Size is the size of a keccak256 digest (32 bytes).
	KeccakLog2Size Log2Size = 5
	// MachineLog2Size is the size of the whole machine address space.
	MachineLog2Size Log2Size = 64

	InputMetadataLog2Size  Log2Size = 21
	EpochInputLog2Size     Log2Size = 37
	OutputMetadataLog2Size Log2Size = 21
	EpochOutputLog2Size    Log2Size = 37
)

// InputMaxSize bounds the length of an encoded input, header included.
const InputMaxSize = 1 << 21

var ErrPositionOverflow = errors.New("position does not fit in the machine address space")

func (s Log2Size) Uint64() uint64 {
	return uint64(s)
}

// Size returns the number of bytes in the range. It saturates at the
// largest uint64 for the full 64-bit machine.
func (s Log2Size) Size() uint64 {
	if s >= 64 {
		return ^uint64(0)
	}
	return uint64(1) << s
}

func (s Log2Size) String() string {
	return fmt.Sprintf("2^%d", uint64(s))
}

// IntraMemoryRangePosition returns the byte offset of the index-th
// element of size 2^log2Size inside a memory range.
func IntraMemoryRangePosition(index uint64, log2Size Log2Size) (uint64, error) {
	if log2Size >= 64 {
		if index != 0 {
			return 0, fmt.Errorf("%w: index %d of %v", ErrPositionOverflow, index, log2Size)
		}
		return 0, nil
	}
	position := index << log2Size
	if position>>log2Size != index {
		return 0, fmt.Errorf("%w: index %d of %v", ErrPositionOverflow, index, log2Size)
	}
	return position, nil
}

// MaxEntries returns how many elements of size 2^entry fit in a range of
// size 2^rangeSize.
func MaxEntries(rangeSize, entry Log2Size) uint64 {
	if entry > rangeSize {
		return 0
	}
	return Log2Size(rangeSize - entry).Size()
}
