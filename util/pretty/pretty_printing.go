// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

// Package pretty shortens byte strings for log lines.
package pretty

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

func FirstFewBytes(b []byte) string {
	if len(b) < 9 {
		return fmt.Sprintf("[% x]", b)
	}
	return fmt.Sprintf("[% x ... ]", b[:8])
}

func PrettyHash(hash common.Hash) string {
	return FirstFewBytes(hash.Bytes())
}
