// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package inputbox

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
)

var (
	inputBoxPrefix   string = "\x01"      // the prefix for all input box keys
	inputHashPrefix  []byte = []byte("i") // maps an application and an input index to an input hash
	inputCountPrefix []byte = []byte("c") // maps an application to its number of inputs
)

func uint64ToBytes(x uint64) []byte {
	data := make([]byte, 8)
	binary.BigEndian.PutUint64(data, x)
	return data
}

func dappKey(prefix []byte, dapp common.Address) []byte {
	key := make([]byte, 0, len(prefix)+common.AddressLength)
	key = append(key, prefix...)
	return append(key, dapp.Bytes()...)
}

func inputHashKey(dapp common.Address, index uint64) []byte {
	return append(dappKey(inputHashPrefix, dapp), uint64ToBytes(index)...)
}

func inputCountKey(dapp common.Address) []byte {
	return dappKey(inputCountPrefix, dapp)
}
