// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package outputs

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/go-cmp/cmp"
	"github.com/holiman/uint256"

	"github.com/rollups-settlement/settlement/canonical"
	"github.com/rollups-settlement/settlement/merkle"
	"github.com/rollups-settlement/settlement/util/testhelpers"
)

func testEpoch(t *testing.T) *EpochOutputs {
	t.Helper()
	source := testhelpers.NewPseudoRandomDataSource(t, 7)
	outputs := [][][]byte{
		{source.GetData(10), source.GetData(100)},
		{},
		{source.GetData(0), source.GetData(33), source.GetData(64)},
		{source.GetData(1000)},
		{source.GetData(5)},
	}
	epoch, err := NewEpochOutputs(outputs, source.GetHash())
	Require(t, err)
	return epoch
}

func cloneProof(proof *OutputValidityProof) *OutputValidityProof {
	clone := *proof
	clone.OutputHashInOutputHashesSiblings = append([]common.Hash{}, proof.OutputHashInOutputHashesSiblings...)
	clone.OutputHashesInEpochSiblings = append([]common.Hash{}, proof.OutputHashesInEpochSiblings...)
	return &clone
}

func flipBit(h *common.Hash, bit uint) {
	h[bit/8%32] ^= 1 << (bit % 8)
}

func TestValidateEveryOutput(t *testing.T) {
	epoch := testEpoch(t)
	for i := uint64(0); i < epoch.NumInputs(); i++ {
		for j := uint64(0); j < epoch.NumOutputs(i); j++ {
			proof, err := epoch.Proof(i, j)
			Require(t, err)
			if len(proof.OutputHashInOutputHashesSiblings) != 16 || len(proof.OutputHashesInEpochSiblings) != 32 {
				Fail(t, "unexpected sibling counts", len(proof.OutputHashInOutputHashesSiblings), len(proof.OutputHashesInEpochSiblings))
			}
			output, err := epoch.Output(i, j)
			Require(t, err)
			Require(t, ValidateOutput(proof, output, epoch.EpochHash()), "input", i, "output", j)
		}
	}
	if _, err := epoch.Proof(1, 0); !errors.Is(err, ErrNoSuchOutput) {
		Fail(t, "expected ErrNoSuchOutput for an input without outputs, got", err)
	}
	if _, err := epoch.Proof(5, 0); !errors.Is(err, ErrNoSuchOutput) {
		Fail(t, "expected ErrNoSuchOutput past the last input, got", err)
	}
}

func TestSingleBitFlipsAreRejected(t *testing.T) {
	epoch := testEpoch(t)
	proof, err := epoch.Proof(2, 1)
	Require(t, err)
	output, err := epoch.Output(2, 1)
	Require(t, err)
	epochHash := epoch.EpochHash()

	type mutation struct {
		desc   string
		mutate func(p *OutputValidityProof, bit uint)
		want   error
	}
	mutations := []mutation{
		{"outputs epoch root", func(p *OutputValidityProof, bit uint) { flipBit(&p.OutputsEpochRootHash, bit) }, ErrIncorrectEpochHash},
		{"machine state", func(p *OutputValidityProof, bit uint) { flipBit(&p.MachineStateHash, bit) }, ErrIncorrectEpochHash},
		{"output hashes root", func(p *OutputValidityProof, bit uint) { flipBit(&p.OutputHashesRootHash, bit) }, ErrIncorrectOutputsEpochRootHash},
	}
	for k := range proof.OutputHashesInEpochSiblings {
		k := k
		mutations = append(mutations, mutation{"epoch sibling", func(p *OutputValidityProof, bit uint) {
			flipBit(&p.OutputHashesInEpochSiblings[k], bit)
		}, ErrIncorrectOutputsEpochRootHash})
	}
	for k := range proof.OutputHashInOutputHashesSiblings {
		k := k
		mutations = append(mutations, mutation{"output sibling", func(p *OutputValidityProof, bit uint) {
			flipBit(&p.OutputHashInOutputHashesSiblings[k], bit)
		}, ErrIncorrectOutputHashesRootHash})
	}

	all := []error{ErrIncorrectEpochHash, ErrIncorrectOutputsEpochRootHash, ErrIncorrectOutputHashesRootHash}
	for _, m := range mutations {
		for _, bit := range []uint{0, 7, 100, 255} {
			mutated := cloneProof(proof)
			m.mutate(mutated, bit)
			err := ValidateOutput(mutated, output, epochHash)
			matched := 0
			for _, candidate := range all {
				if errors.Is(err, candidate) {
					matched++
				}
			}
			if matched != 1 || !errors.Is(err, m.want) {
				t.Errorf("%s bit %d: got %v, want %v", m.desc, bit, err, m.want)
			}
		}
	}
}

func TestValidateOutputRejects(t *testing.T) {
	epoch := testEpoch(t)
	proof, err := epoch.Proof(0, 1)
	Require(t, err)
	output, err := epoch.Output(0, 1)
	Require(t, err)

	if err := ValidateOutput(proof, append([]byte{1}, output...), epoch.EpochHash()); !errors.Is(err, ErrIncorrectOutputHashesRootHash) {
		Fail(t, "tampered output accepted:", err)
	}
	if err := ValidateOutput(proof, output, common.Hash{}); !errors.Is(err, ErrIncorrectEpochHash) {
		Fail(t, "wrong epoch hash accepted:", err)
	}

	swapped := cloneProof(proof)
	swapped.OutputIndexWithinInput = 0
	if err := ValidateOutput(swapped, output, epoch.EpochHash()); !errors.Is(err, ErrIncorrectOutputHashesRootHash) {
		Fail(t, "wrong output index accepted:", err)
	}
	moved := cloneProof(proof)
	moved.InputIndexWithinEpoch = 3
	if err := ValidateOutput(moved, output, epoch.EpochHash()); !errors.Is(err, ErrIncorrectOutputsEpochRootHash) {
		Fail(t, "wrong input index accepted:", err)
	}
	outside := cloneProof(proof)
	outside.InputIndexWithinEpoch = 1 << 32
	if err := ValidateOutput(outside, output, epoch.EpochHash()); !errors.Is(err, ErrIncorrectOutputsEpochRootHash) || !errors.Is(err, merkle.ErrPositionOutOfDrive) {
		Fail(t, "input index outside of drive accepted:", err)
	}
	short := cloneProof(proof)
	short.OutputHashInOutputHashesSiblings = short.OutputHashInOutputHashesSiblings[:15]
	if err := ValidateOutput(short, output, epoch.EpochHash()); !errors.Is(err, ErrIncorrectOutputHashesRootHash) || !errors.Is(err, merkle.ErrProofLengthMismatch) {
		Fail(t, "short proof accepted:", err)
	}
}

func TestValidateVoucherAndNotice(t *testing.T) {
	destination := common.HexToAddress("0x00000000000000000000000000000000000000de")
	voucherPayload := []byte("transfer(...)")
	notice := []byte("hello")
	voucher, err := EncodeVoucher(destination, voucherPayload)
	Require(t, err)
	encodedNotice, err := EncodeNotice(notice)
	Require(t, err)

	epoch, err := NewEpochOutputs([][][]byte{{voucher}, {encodedNotice}}, common.Hash{1})
	Require(t, err)
	voucherProof, err := epoch.Proof(0, 0)
	Require(t, err)
	noticeProof, err := epoch.Proof(1, 0)
	Require(t, err)

	Require(t, ValidateVoucher(voucherProof, destination, voucherPayload, epoch.EpochHash()))
	Require(t, ValidateNotice(noticeProof, notice, epoch.EpochHash()))
	if err := ValidateVoucher(voucherProof, common.Address{}, voucherPayload, epoch.EpochHash()); err == nil {
		Fail(t, "voucher to another destination accepted")
	}
	if err := ValidateNotice(voucherProof, notice, epoch.EpochHash()); err == nil {
		Fail(t, "notice accepted with a voucher proof")
	}
}

func TestEncodeVoucherLayout(t *testing.T) {
	destination := common.HexToAddress("0x1111111111111111111111111111111111111111")
	encoded, err := EncodeVoucher(destination, []byte{0xab})
	Require(t, err)
	// address word, offset word, length word, one padded data word
	if len(encoded) != 4*32 {
		Fail(t, "unexpected voucher length", len(encoded))
	}
	if common.BytesToAddress(encoded[:32]) != destination {
		Fail(t, "destination not in first word")
	}
	if new(uint256.Int).SetBytes(encoded[32:64]).Uint64() != 64 {
		Fail(t, "unexpected payload offset")
	}
	empty, err := EncodeNotice(nil)
	Require(t, err)
	if len(empty) != 2*32 {
		Fail(t, "unexpected empty notice length", len(empty))
	}
}

func TestEmptyEpoch(t *testing.T) {
	epoch, err := NewEpochOutputs(nil, common.Hash{})
	Require(t, err)
	pristine, err := merkle.PristineRoot(canonical.EpochOutputLog2Size)
	Require(t, err)
	if epoch.OutputsEpochRootHash() != pristine {
		Fail(t, "empty epoch root is not pristine")
	}
	if epoch.EpochHash() != ComputeEpochHash(pristine, common.Hash{}) {
		Fail(t, "unexpected empty epoch hash")
	}
}

func TestProofJSON(t *testing.T) {
	epoch := testEpoch(t)
	proof, err := epoch.Proof(3, 0)
	Require(t, err)
	data, err := json.Marshal(proof)
	Require(t, err)
	var decoded OutputValidityProof
	Require(t, json.Unmarshal(data, &decoded))
	if diff := cmp.Diff(*proof, decoded); diff != "" {
		Fail(t, "proof changed through json:", diff)
	}

	var fields map[string]interface{}
	Require(t, json.Unmarshal(data, &fields))
	if fields["inputIndexWithinEpoch"] != "0x3" || fields["outputIndexWithinInput"] != "0x0" {
		Fail(t, "indices not encoded as hex quantities:", string(data))
	}
	var decimal OutputValidityProof
	if err := json.Unmarshal([]byte(`{"inputIndexWithinEpoch":3,"outputIndexWithinInput":"0x0"}`), &decimal); err == nil {
		Fail(t, "decimal index accepted")
	}
	if err := json.Unmarshal([]byte(`{"outputIndexWithinInput":"0x0"}`), &decimal); err == nil {
		Fail(t, "missing index accepted")
	}
}

func TestValidateInputIndexRange(t *testing.T) {
	testCases := []struct {
		desc        string
		within      uint64
		first, last uint64
		want        uint64
		wantErr     bool
	}{
		{desc: "first", within: 0, first: 10, last: 20, want: 10},
		{desc: "last", within: 10, first: 10, last: 20, want: 20},
		{desc: "one past last", within: 11, first: 10, last: 20, wantErr: true},
		{desc: "single input claim", within: 0, first: 5, last: 5, want: 5},
		{desc: "overflow", within: ^uint64(0), first: 2, last: ^uint64(0), wantErr: true},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			got, err := ValidateInputIndexRange(&OutputValidityProof{InputIndexWithinEpoch: tc.within}, tc.first, tc.last)
			if tc.wantErr {
				if !errors.Is(err, ErrInputIndexOutOfClaimBounds) {
					Fail(t, "expected ErrInputIndexOutOfClaimBounds, got", err)
				}
				return
			}
			Require(t, err)
			if got != tc.want {
				Fail(t, "got", got, "want", tc.want)
			}
		})
	}
}

func TestGetBitMaskPosition(t *testing.T) {
	seen := make(map[uint256.Int]struct{})
	max128 := new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 128), uint256.NewInt(1))
	components := []*uint256.Int{uint256.NewInt(0), uint256.NewInt(1), uint256.NewInt(2), uint256.NewInt(1 << 40), max128}
	for _, output := range components {
		for _, input := range components {
			position, err := GetBitMaskPosition(output, input)
			Require(t, err)
			if _, ok := seen[*position]; ok {
				Fail(t, "collision for", output, input)
			}
			seen[*position] = struct{}{}
			if !new(uint256.Int).Rsh(position, 128).Eq(output) {
				Fail(t, "output index not in upper half", output, position)
			}
			if !new(uint256.Int).And(position, max128).Eq(input) {
				Fail(t, "input index not in lower half", input, position)
			}
		}
	}
	position, err := GetBitMaskPosition(uint256.NewInt(1), uint256.NewInt(3))
	Require(t, err)
	want := new(uint256.Int).Add(new(uint256.Int).Lsh(uint256.NewInt(1), 128), uint256.NewInt(3))
	if !position.Eq(want) {
		Fail(t, "got", position, "want", want)
	}
	tooLarge := new(uint256.Int).Lsh(uint256.NewInt(1), 128)
	if _, err := GetBitMaskPosition(tooLarge, uint256.NewInt(0)); !errors.Is(err, ErrBitMaskComponentTooLarge) {
		Fail(t, "expected ErrBitMaskComponentTooLarge, got", err)
	}
	if _, err := GetBitMaskPosition(uint256.NewInt(0), tooLarge); !errors.Is(err, ErrBitMaskComponentTooLarge) {
		Fail(t, "expected ErrBitMaskComponentTooLarge, got", err)
	}
}

func Require(t *testing.T, err error, printables ...interface{}) {
	t.Helper()
	testhelpers.RequireImpl(t, err, printables...)
}

func Fail(t *testing.T, printables ...interface{}) {
	t.Helper()
	testhelpers.FailImpl(t, printables...)
}
