// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package outputs

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/rollups-settlement/settlement/canonical"
	"github.com/rollups-settlement/settlement/merkle"
)

var ErrNoSuchOutput = errors.New("no such output in epoch")

// EpochOutputs rebuilds the output trees of a finished epoch so that
// validity proofs can be issued for any of its outputs.
type EpochOutputs struct {
	machineStateHash common.Hash
	outputs          [][][]byte
	// one output hashes drive per input, in input order
	outputHashes []*merkle.SparseDrive
	epoch        *merkle.SparseDrive
}

// NewEpochOutputs takes the outputs emitted by each input of the epoch,
// outputs[i][j] being the j-th output of the i-th input.
func NewEpochOutputs(outputs [][][]byte, machineStateHash common.Hash) (*EpochOutputs, error) {
	maxInputs := canonical.MaxEntries(canonical.EpochOutputLog2Size, canonical.KeccakLog2Size)
	if uint64(len(outputs)) > maxInputs {
		return nil, fmt.Errorf("%d inputs in an epoch of at most %d", len(outputs), maxInputs)
	}
	e := &EpochOutputs{
		machineStateHash: machineStateHash,
		outputs:          outputs,
		outputHashes:     make([]*merkle.SparseDrive, len(outputs)),
	}
	roots := make([]common.Hash, len(outputs))
	for i, inputOutputs := range outputs {
		leaves := make([]common.Hash, len(inputOutputs))
		for j, output := range inputOutputs {
			leaves[j] = OutputLeaf(output)
		}
		drive, err := merkle.NewSparseDrive(canonical.OutputMetadataLog2Size, canonical.KeccakLog2Size, leaves)
		if err != nil {
			return nil, fmt.Errorf("outputs of input %d: %w", i, err)
		}
		e.outputHashes[i] = drive
		roots[i] = drive.Root()
	}
	epoch, err := merkle.NewSparseDrive(canonical.EpochOutputLog2Size, canonical.KeccakLog2Size, roots)
	if err != nil {
		return nil, err
	}
	e.epoch = epoch
	return e, nil
}

func (e *EpochOutputs) NumInputs() uint64 {
	return uint64(len(e.outputs))
}

func (e *EpochOutputs) NumOutputs(inputIndexWithinEpoch uint64) uint64 {
	if inputIndexWithinEpoch >= e.NumInputs() {
		return 0
	}
	return uint64(len(e.outputs[inputIndexWithinEpoch]))
}

func (e *EpochOutputs) Output(inputIndexWithinEpoch, outputIndexWithinInput uint64) ([]byte, error) {
	if outputIndexWithinInput >= e.NumOutputs(inputIndexWithinEpoch) {
		return nil, fmt.Errorf("%w: input %d output %d", ErrNoSuchOutput, inputIndexWithinEpoch, outputIndexWithinInput)
	}
	return e.outputs[inputIndexWithinEpoch][outputIndexWithinInput], nil
}

func (e *EpochOutputs) OutputsEpochRootHash() common.Hash {
	return e.epoch.Root()
}

func (e *EpochOutputs) MachineStateHash() common.Hash {
	return e.machineStateHash
}

// EpochHash is the value a validator claims for this epoch.
func (e *EpochOutputs) EpochHash() common.Hash {
	return ComputeEpochHash(e.OutputsEpochRootHash(), e.machineStateHash)
}

// Proof builds the validity proof of one output of the epoch.
func (e *EpochOutputs) Proof(inputIndexWithinEpoch, outputIndexWithinInput uint64) (*OutputValidityProof, error) {
	if outputIndexWithinInput >= e.NumOutputs(inputIndexWithinEpoch) {
		return nil, fmt.Errorf("%w: input %d output %d", ErrNoSuchOutput, inputIndexWithinEpoch, outputIndexWithinInput)
	}
	outputHashes := e.outputHashes[inputIndexWithinEpoch]
	outputSiblings, err := outputHashes.Proof(outputIndexWithinInput)
	if err != nil {
		return nil, err
	}
	epochSiblings, err := e.epoch.Proof(inputIndexWithinEpoch)
	if err != nil {
		return nil, err
	}
	return &OutputValidityProof{
		InputIndexWithinEpoch:            inputIndexWithinEpoch,
		OutputIndexWithinInput:           outputIndexWithinInput,
		OutputHashesRootHash:             outputHashes.Root(),
		OutputsEpochRootHash:             e.epoch.Root(),
		MachineStateHash:                 e.machineStateHash,
		OutputHashInOutputHashesSiblings: outputSiblings,
		OutputHashesInEpochSiblings:      epochSiblings,
	}, nil
}
