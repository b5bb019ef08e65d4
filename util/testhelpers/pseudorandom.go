// Copyright 2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package testhelpers

import (
	"encoding/binary"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// PseudoRandomDataSource repeats the same sequence on every run.
type PseudoRandomDataSource struct {
	salt  common.Hash
	index uint64
}

// T param is to make sure it's only used in testing
func NewPseudoRandomDataSource(_ *testing.T, saltParam uint64) *PseudoRandomDataSource {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], saltParam)
	return &PseudoRandomDataSource{
		salt: crypto.Keccak256Hash([]byte{'s'}, buf[:]),
	}
}

func (r *PseudoRandomDataSource) GetHash() common.Hash {
	r.index++
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], r.index)
	return crypto.Keccak256Hash(r.salt[:], buf[:])
}

func (r *PseudoRandomDataSource) GetAddress() common.Address {
	return common.BytesToAddress(r.GetHash().Bytes()[:20])
}

func (r *PseudoRandomDataSource) GetUint64() uint64 {
	return binary.BigEndian.Uint64(r.GetHash().Bytes()[:8])
}

func (r *PseudoRandomDataSource) GetData(size int) []byte {
	data := make([]byte, 0, size+32)
	for len(data) < size {
		hash := r.GetHash()
		data = append(data, hash.Bytes()...)
	}
	return data[:size]
}
