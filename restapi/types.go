// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package restapi

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/rollups-settlement/settlement/dapp"
	"github.com/rollups-settlement/settlement/outputs"
)

type InputCountResponse struct {
	Count hexutil.Uint64 `json:"count"`
}

type InputHashResponse struct {
	Index hexutil.Uint64 `json:"index"`
	Hash  common.Hash    `json:"hash"`
}

type AddInputRequest struct {
	Sender  common.Address `json:"sender"`
	Payload hexutil.Bytes  `json:"payload"`
}

type InputAddedResponse struct {
	Dapp           common.Address `json:"dapp"`
	Index          hexutil.Uint64 `json:"index"`
	Sender         common.Address `json:"sender"`
	BlockNumber    hexutil.Uint64 `json:"blockNumber"`
	BlockTimestamp hexutil.Uint64 `json:"blockTimestamp"`
	Hash           common.Hash    `json:"hash"`
	PayloadHash    common.Hash    `json:"payloadHash"`
}

type PayloadResponse struct {
	Data hexutil.Bytes `json:"data"`
}

type ValidateOutputRequest struct {
	Proof     outputs.OutputValidityProof `json:"proof"`
	Output    hexutil.Bytes               `json:"output"`
	EpochHash common.Hash                 `json:"epochHash"`
}

type ValidateOutputResponse struct {
	Valid bool `json:"valid"`
}

type BitMaskPositionResponse struct {
	Position string `json:"position"`
}

type SubmitClaimRequest struct {
	EpochHash  common.Hash    `json:"epochHash"`
	FirstIndex hexutil.Uint64 `json:"firstIndex"`
	LastIndex  hexutil.Uint64 `json:"lastIndex"`
}

type ClaimResponse struct {
	ClaimIndex hexutil.Uint64 `json:"claimIndex"`
	EpochHash  common.Hash    `json:"epochHash"`
	FirstIndex hexutil.Uint64 `json:"firstIndex"`
	LastIndex  hexutil.Uint64 `json:"lastIndex"`
}

type EpochResponse struct {
	Index      hexutil.Uint64 `json:"index"`
	FirstIndex hexutil.Uint64 `json:"firstIndex"`
	InputCount hexutil.Uint64 `json:"inputCount"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type ExecuteVoucherRequest struct {
	Destination common.Address `json:"destination"`
	Payload     hexutil.Bytes  `json:"payload"`
	Proof       dapp.Proof     `json:"proof"`
}

type ValidateNoticeRequest struct {
	Notice hexutil.Bytes `json:"notice"`
	Proof  dapp.Proof    `json:"proof"`
}

type VoucherExecutedResponse struct {
	Executed bool `json:"executed"`
}
