// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

// Package merkle implements keccak256 binary Merkle trees over byte drives
// whose leaves are 8-byte machine words.
package merkle

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/rollups-settlement/settlement/canonical"
)

var (
	ErrInvalidLog2Size     = errors.New("log2 size out of range")
	ErrDataTooLarge        = errors.New("data is bigger than drive")
	ErrPositionNotAligned  = errors.New("position is not aligned")
	ErrPositionOutOfDrive  = errors.New("position is outside of drive")
	ErrProofLengthMismatch = errors.New("proof length does not match")
)

const (
	minLog2Size = canonical.WordLog2Size
	maxLog2Size = canonical.MachineLog2Size
)

// pristineRoots[i] is the root of an all-zero drive of 2^i bytes.
var pristineRoots [maxLog2Size + 1]common.Hash

func init() {
	pristineRoots[minLog2Size] = crypto.Keccak256Hash(make([]byte, minLog2Size.Size()))
	for i := minLog2Size + 1; i <= maxLog2Size; i++ {
		prev := pristineRoots[i-1]
		pristineRoots[i] = hashPair(prev, prev)
	}
}

func checkLog2Size(log2Size canonical.Log2Size) error {
	if log2Size < minLog2Size || log2Size > maxLog2Size {
		return fmt.Errorf("%w: %d not in [%d,%d]", ErrInvalidLog2Size, log2Size, minLog2Size, maxLog2Size)
	}
	return nil
}

func hashPair(left, right common.Hash) common.Hash {
	return crypto.Keccak256Hash(left.Bytes(), right.Bytes())
}

// PristineRoot returns the root of a drive of 2^log2Size zero bytes.
func PristineRoot(log2Size canonical.Log2Size) (common.Hash, error) {
	if err := checkLog2Size(log2Size); err != nil {
		return common.Hash{}, err
	}
	return pristineRoots[log2Size], nil
}

// HashWord hashes a single machine word, right-padding it with zeros.
func HashWord(word []byte) common.Hash {
	var padded [8]byte
	copy(padded[:], word)
	return crypto.Keccak256Hash(padded[:])
}

// GetMerkleRootFromBytes returns the root of a drive of 2^log2Size bytes
// that starts with data and is zero filled afterwards.
func GetMerkleRootFromBytes(data []byte, log2Size canonical.Log2Size) (common.Hash, error) {
	if err := checkLog2Size(log2Size); err != nil {
		return common.Hash{}, err
	}
	if log2Size < 64 && uint64(len(data)) > log2Size.Size() {
		return common.Hash{}, fmt.Errorf("%w: %d bytes in a drive of %v", ErrDataTooLarge, len(data), log2Size)
	}
	return rootOfRange(data, log2Size), nil
}

// rootOfRange requires len(data) <= 2^log2Size.
func rootOfRange(data []byte, log2Size canonical.Log2Size) common.Hash {
	if len(data) == 0 {
		return pristineRoots[log2Size]
	}
	if log2Size == minLog2Size {
		return HashWord(data)
	}
	half := (log2Size - 1).Size()
	if uint64(len(data)) <= half {
		return hashPair(rootOfRange(data, log2Size-1), pristineRoots[log2Size-1])
	}
	return hashPair(rootOfRange(data[:half], log2Size-1), rootOfRange(data[half:], log2Size-1))
}

// GetRootAfterReplacementInDrive returns the root a drive of
// 2^logSizeOfFullDrive bytes would have if the aligned range of
// 2^logSizeOfReplacement bytes at position had replacement as its root.
// siblings are ordered from the replaced range up to the root.
func GetRootAfterReplacementInDrive(
	position uint64,
	logSizeOfReplacement canonical.Log2Size,
	logSizeOfFullDrive canonical.Log2Size,
	replacement common.Hash,
	siblings []common.Hash,
) (common.Hash, error) {
	if err := checkLog2Size(logSizeOfReplacement); err != nil {
		return common.Hash{}, err
	}
	if err := checkLog2Size(logSizeOfFullDrive); err != nil {
		return common.Hash{}, err
	}
	if logSizeOfReplacement > logSizeOfFullDrive {
		return common.Hash{}, fmt.Errorf("%w: replacement %v larger than drive %v", ErrInvalidLog2Size, logSizeOfReplacement, logSizeOfFullDrive)
	}
	size := logSizeOfReplacement.Size()
	if position&(size-1) != 0 {
		return common.Hash{}, fmt.Errorf("%w: position %d, size %d", ErrPositionNotAligned, position, size)
	}
	if logSizeOfFullDrive < 64 && position >= logSizeOfFullDrive.Size() {
		return common.Hash{}, fmt.Errorf("%w: position %d, drive %v", ErrPositionOutOfDrive, position, logSizeOfFullDrive)
	}
	depth := uint64(logSizeOfFullDrive - logSizeOfReplacement)
	if uint64(len(siblings)) != depth {
		return common.Hash{}, fmt.Errorf("%w: have %d siblings, want %d", ErrProofLengthMismatch, len(siblings), depth)
	}
	root := replacement
	for i, sibling := range siblings {
		if position&(size<<uint(i)) == 0 {
			root = hashPair(root, sibling)
		} else {
			root = hashPair(sibling, root)
		}
	}
	return root, nil
}
