// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

// Package inputs defines the canonical encoding and hash of rollup inputs.
//
// An input is encoded as a call to EvmInput(address,uint256,uint256,uint256,bytes)
// carrying the sender, the block number and timestamp at submission, the
// input's index in its application's input box and the raw payload. The
// keccak256 of that encoding is the digest stored on-chain.
package inputs

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/rollups-settlement/settlement/canonical"
)

const EvmInputSignature = "EvmInput(address,uint256,uint256,uint256,bytes)"

var evmInputSelector = crypto.Keccak256([]byte(EvmInputSignature))[:4]

var (
	ErrInputSizeExceedsLimit = errors.New("input size exceeds limit")
	ErrUnknownSelector       = errors.New("encoded input has an unknown selector")
	ErrMalformedInput        = errors.New("malformed encoded input")
)

// HeaderSize is the length of the encoding of an empty payload: the
// selector, five head words and the payload length word.
const HeaderSize = 4 + 32*6

// MaxPayloadSize is the largest payload whose encoding still fits in
// canonical.InputMaxSize. Payloads are padded to 32-byte words.
const MaxPayloadSize = (canonical.InputMaxSize - HeaderSize) / 32 * 32

type EvmInput struct {
	Sender         common.Address
	BlockNumber    uint64
	BlockTimestamp uint64
	Index          uint64
	Payload        []byte
}

func EvmInputSelector() []byte {
	return common.CopyBytes(evmInputSelector)
}

// EncodeEvmInput returns the selector-tagged ABI encoding of an input.
func EncodeEvmInput(sender common.Address, blockNumber, blockTimestamp, index uint64, payload []byte) ([]byte, error) {
	if payload == nil {
		payload = []byte{}
	}
	packed, err := evmInputArguments.Pack(
		sender,
		new(big.Int).SetUint64(blockNumber),
		new(big.Int).SetUint64(blockTimestamp),
		new(big.Int).SetUint64(index),
		payload,
	)
	if err != nil {
		return nil, err
	}
	return append(EvmInputSelector(), packed...), nil
}

// ComputeEvmInputHash encodes the input and returns its keccak256. The size
// limit applies to the encoding, not to the payload alone.
func ComputeEvmInputHash(sender common.Address, blockNumber, blockTimestamp, index uint64, payload []byte) (common.Hash, error) {
	encoded, err := EncodeEvmInput(sender, blockNumber, blockTimestamp, index, payload)
	if err != nil {
		return common.Hash{}, err
	}
	if len(encoded) > canonical.InputMaxSize {
		return common.Hash{}, fmt.Errorf("%w: encoded size %d, limit %d", ErrInputSizeExceedsLimit, len(encoded), canonical.InputMaxSize)
	}
	return crypto.Keccak256Hash(encoded), nil
}

// DecodeEvmInput parses an encoding produced by EncodeEvmInput.
func DecodeEvmInput(encoded []byte) (*EvmInput, error) {
	if len(encoded) < 4 || !bytes.Equal(encoded[:4], evmInputSelector) {
		return nil, ErrUnknownSelector
	}
	values, err := evmInputArguments.Unpack(encoded[4:])
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedInput, err)
	}
	if len(values) != len(evmInputArguments) {
		return nil, fmt.Errorf("%w: got %d fields", ErrMalformedInput, len(values))
	}
	sender, ok := values[0].(common.Address)
	if !ok {
		return nil, fmt.Errorf("%w: sender", ErrMalformedInput)
	}
	var numbers [3]uint64
	for i := range numbers {
		value, ok := values[i+1].(*big.Int)
		if !ok || !value.IsUint64() {
			return nil, fmt.Errorf("%w: %s", ErrMalformedInput, evmInputArguments[i+1].Name)
		}
		numbers[i] = value.Uint64()
	}
	payload, ok := values[4].([]byte)
	if !ok {
		return nil, fmt.Errorf("%w: payload", ErrMalformedInput)
	}
	return &EvmInput{
		Sender:         sender,
		BlockNumber:    numbers[0],
		BlockTimestamp: numbers[1],
		Index:          numbers[2],
		Payload:        payload,
	}, nil
}

func (i *EvmInput) Encode() ([]byte, error) {
	return EncodeEvmInput(i.Sender, i.BlockNumber, i.BlockTimestamp, i.Index, i.Payload)
}

func (i *EvmInput) Hash() (common.Hash, error) {
	return ComputeEvmInputHash(i.Sender, i.BlockNumber, i.BlockTimestamp, i.Index, i.Payload)
}
