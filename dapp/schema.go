// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package dapp

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	executorPrefix   string = "\x03"      // the prefix for all executor keys
	voucherBitPrefix []byte = []byte("v") // maps an application and a 256-bit bucket to its executed-voucher bits
)

// bitmaskKey returns the key of the bucket holding position together with
// the bit offset of position inside it.
func bitmaskKey(dapp common.Address, position *uint256.Int) ([]byte, uint) {
	bucket := new(uint256.Int).Rsh(position, 8).Bytes32()
	key := make([]byte, 0, len(voucherBitPrefix)+common.AddressLength+len(bucket))
	key = append(key, voucherBitPrefix...)
	key = append(key, dapp.Bytes()...)
	key = append(key, bucket[:]...)
	return key, uint(position.Uint64() & 0xff)
}
