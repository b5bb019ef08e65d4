// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

// Package outputs verifies that an output was produced during an epoch by
// replaying its membership in the epoch's two nested output trees.
package outputs

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/rollups-settlement/settlement/canonical"
	"github.com/rollups-settlement/settlement/merkle"
)

var (
	ErrIncorrectEpochHash            = errors.New("incorrect epoch hash")
	ErrIncorrectOutputsEpochRootHash = errors.New("incorrect outputs epoch root hash")
	ErrIncorrectOutputHashesRootHash = errors.New("incorrect output hashes root hash")
	ErrInputIndexOutOfClaimBounds    = errors.New("input index out of claim bounds")
	ErrBitMaskComponentTooLarge      = errors.New("bit mask component does not fit in 128 bits")
)

// OutputValidityProof is the witness that an output belongs to an epoch.
type OutputValidityProof struct {
	InputIndexWithinEpoch            uint64        `json:"inputIndexWithinEpoch"`
	OutputIndexWithinInput           uint64        `json:"outputIndexWithinInput"`
	OutputHashesRootHash             common.Hash   `json:"outputHashesRootHash"`
	OutputsEpochRootHash             common.Hash   `json:"outputsEpochRootHash"`
	MachineStateHash                 common.Hash   `json:"machineStateHash"`
	OutputHashInOutputHashesSiblings []common.Hash `json:"outputHashInOutputHashesSiblings"`
	OutputHashesInEpochSiblings      []common.Hash `json:"outputHashesInEpochSiblings"`
}

// ComputeEpochHash ties the outputs of an epoch to the machine state after it.
func ComputeEpochHash(outputsEpochRootHash, machineStateHash common.Hash) common.Hash {
	return crypto.Keccak256Hash(outputsEpochRootHash.Bytes(), machineStateHash.Bytes())
}

// OutputLeaf returns the sub-root an output occupies in its input's output
// hashes drive. The drive's leaves are 8-byte words, so the 32-byte hash of
// the output is itself merkleized word by word.
func OutputLeaf(output []byte) common.Hash {
	// a 32-byte hash always fits a 32-byte drive
	leaf, _ := merkle.GetMerkleRootFromBytes(crypto.Keccak256(output), canonical.KeccakLog2Size)
	return leaf
}

// ValidateOutput returns nil only when output, as described by proof, is
// part of the epoch committed to by epochHash.
func ValidateOutput(proof *OutputValidityProof, output []byte, epochHash common.Hash) error {
	if ComputeEpochHash(proof.OutputsEpochRootHash, proof.MachineStateHash) != epochHash {
		return ErrIncorrectEpochHash
	}

	position, err := canonical.IntraMemoryRangePosition(proof.InputIndexWithinEpoch, canonical.KeccakLog2Size)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrIncorrectOutputsEpochRootHash, err)
	}
	epochRoot, err := merkle.GetRootAfterReplacementInDrive(
		position,
		canonical.KeccakLog2Size,
		canonical.EpochOutputLog2Size,
		proof.OutputHashesRootHash,
		proof.OutputHashesInEpochSiblings,
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrIncorrectOutputsEpochRootHash, err)
	}
	if epochRoot != proof.OutputsEpochRootHash {
		return ErrIncorrectOutputsEpochRootHash
	}

	merkleRootOfHashOfOutput := OutputLeaf(output)
	position, err = canonical.IntraMemoryRangePosition(proof.OutputIndexWithinInput, canonical.KeccakLog2Size)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrIncorrectOutputHashesRootHash, err)
	}
	outputHashesRoot, err := merkle.GetRootAfterReplacementInDrive(
		position,
		canonical.KeccakLog2Size,
		canonical.OutputMetadataLog2Size,
		merkleRootOfHashOfOutput,
		proof.OutputHashInOutputHashesSiblings,
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrIncorrectOutputHashesRootHash, err)
	}
	if outputHashesRoot != proof.OutputHashesRootHash {
		return ErrIncorrectOutputHashesRootHash
	}
	return nil
}

// ValidateInputIndexRange translates the epoch-relative input index of
// proof into an input box index and checks it lies in [firstInputIndex,
// lastInputIndex].
func ValidateInputIndexRange(proof *OutputValidityProof, firstInputIndex, lastInputIndex uint64) (uint64, error) {
	inputIndex := firstInputIndex + proof.InputIndexWithinEpoch
	if inputIndex < firstInputIndex || inputIndex > lastInputIndex {
		return 0, fmt.Errorf("%w: %d + %d not in [%d, %d]", ErrInputIndexOutOfClaimBounds, firstInputIndex, proof.InputIndexWithinEpoch, firstInputIndex, lastInputIndex)
	}
	return inputIndex, nil
}

// GetBitMaskPosition packs an output index and an input index into a
// single position: output * 2^128 + input.
func GetBitMaskPosition(outputIndex, inputIndex *uint256.Int) (*uint256.Int, error) {
	if outputIndex.BitLen() > 128 {
		return nil, fmt.Errorf("%w: output index %v", ErrBitMaskComponentTooLarge, outputIndex)
	}
	if inputIndex.BitLen() > 128 {
		return nil, fmt.Errorf("%w: input index %v", ErrBitMaskComponentTooLarge, inputIndex)
	}
	position := new(uint256.Int).Lsh(outputIndex, 128)
	return position.Or(position, inputIndex), nil
}
