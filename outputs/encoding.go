// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package outputs

import (
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Like abi.NewType but panics if it fails for use in constants
func newStaticType(t string, internalType string, components []abi.ArgumentMarshaling) abi.Type {
	ty, err := abi.NewType(t, internalType, components)
	if err != nil {
		panic(err)
	}
	return ty
}

var (
	addressType = newStaticType("address", "", nil)
	bytesType   = newStaticType("bytes", "", nil)

	voucherArguments = abi.Arguments{{Name: "destination", Type: addressType}, {Name: "payload", Type: bytesType}}
	noticeArguments  = abi.Arguments{{Name: "notice", Type: bytesType}}
)

func nonNil(data []byte) []byte {
	if data == nil {
		return []byte{}
	}
	return data
}

// EncodeVoucher returns the bytes a voucher is hashed from.
func EncodeVoucher(destination common.Address, payload []byte) ([]byte, error) {
	return voucherArguments.Pack(destination, nonNil(payload))
}

// EncodeNotice returns the bytes a notice is hashed from.
func EncodeNotice(notice []byte) ([]byte, error) {
	return noticeArguments.Pack(nonNil(notice))
}

func ValidateVoucher(proof *OutputValidityProof, destination common.Address, payload []byte, epochHash common.Hash) error {
	encoded, err := EncodeVoucher(destination, payload)
	if err != nil {
		return err
	}
	return ValidateOutput(proof, encoded, epochHash)
}

func ValidateNotice(proof *OutputValidityProof, notice []byte, epochHash common.Hash) error {
	encoded, err := EncodeNotice(notice)
	if err != nil {
		return err
	}
	return ValidateOutput(proof, encoded, epochHash)
}
