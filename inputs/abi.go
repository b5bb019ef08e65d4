// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package inputs

import (
	"github.com/ethereum/go-ethereum/accounts/abi"
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
	uint256Type = newStaticType("uint256", "", nil)
	bytesType   = newStaticType("bytes", "", nil)
)

var evmInputArguments = abi.Arguments{
	{Name: "sender", Type: addressType},
	{Name: "blockNumber", Type: uint256Type},
	{Name: "blockTimestamp", Type: uint256Type},
	{Name: "index", Type: uint256Type},
	{Name: "payload", Type: bytesType},
}
