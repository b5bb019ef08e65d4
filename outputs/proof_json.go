// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package outputs

import (
	"encoding/json"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// outputValidityProofJSON carries the proof indices as hex quantities, the
// way every other integer crosses the REST layer.
type outputValidityProofJSON struct {
	InputIndexWithinEpoch            *hexutil.Uint64 `json:"inputIndexWithinEpoch"`
	OutputIndexWithinInput           *hexutil.Uint64 `json:"outputIndexWithinInput"`
	OutputHashesRootHash             common.Hash     `json:"outputHashesRootHash"`
	OutputsEpochRootHash             common.Hash     `json:"outputsEpochRootHash"`
	MachineStateHash                 common.Hash     `json:"machineStateHash"`
	OutputHashInOutputHashesSiblings []common.Hash   `json:"outputHashInOutputHashesSiblings"`
	OutputHashesInEpochSiblings      []common.Hash   `json:"outputHashesInEpochSiblings"`
}

func (p OutputValidityProof) MarshalJSON() ([]byte, error) {
	inputIndex := hexutil.Uint64(p.InputIndexWithinEpoch)
	outputIndex := hexutil.Uint64(p.OutputIndexWithinInput)
	return json.Marshal(&outputValidityProofJSON{
		InputIndexWithinEpoch:            &inputIndex,
		OutputIndexWithinInput:           &outputIndex,
		OutputHashesRootHash:             p.OutputHashesRootHash,
		OutputsEpochRootHash:             p.OutputsEpochRootHash,
		MachineStateHash:                 p.MachineStateHash,
		OutputHashInOutputHashesSiblings: p.OutputHashInOutputHashesSiblings,
		OutputHashesInEpochSiblings:      p.OutputHashesInEpochSiblings,
	})
}

func (p *OutputValidityProof) UnmarshalJSON(input []byte) error {
	var dec outputValidityProofJSON
	if err := json.Unmarshal(input, &dec); err != nil {
		return err
	}
	if dec.InputIndexWithinEpoch == nil {
		return errors.New("missing required field 'inputIndexWithinEpoch' for OutputValidityProof")
	}
	if dec.OutputIndexWithinInput == nil {
		return errors.New("missing required field 'outputIndexWithinInput' for OutputValidityProof")
	}
	p.InputIndexWithinEpoch = uint64(*dec.InputIndexWithinEpoch)
	p.OutputIndexWithinInput = uint64(*dec.OutputIndexWithinInput)
	p.OutputHashesRootHash = dec.OutputHashesRootHash
	p.OutputsEpochRootHash = dec.OutputsEpochRootHash
	p.MachineStateHash = dec.MachineStateHash
	p.OutputHashInOutputHashesSiblings = dec.OutputHashInOutputHashesSiblings
	p.OutputHashesInEpochSiblings = dec.OutputHashesInEpochSiblings
	return nil
}
