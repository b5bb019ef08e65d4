// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package history

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
)

var (
	historyPrefix    string = "\x02"      // the prefix for all history keys
	claimPrefix      []byte = []byte("e") // maps an application and a claim index to an rlp-encoded claim
	claimCountPrefix []byte = []byte("n") // maps an application to its number of claims
)

func uint64ToBytes(x uint64) []byte {
	data := make([]byte, 8)
	binary.BigEndian.PutUint64(data, x)
	return data
}

func claimKey(dapp common.Address, index uint64) []byte {
	key := make([]byte, 0, len(claimPrefix)+common.AddressLength+8)
	key = append(key, claimPrefix...)
	key = append(key, dapp.Bytes()...)
	return append(key, uint64ToBytes(index)...)
}

func claimCountKey(dapp common.Address) []byte {
	return append(append([]byte{}, claimCountPrefix...), dapp.Bytes()...)
}
