// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package restapi

import (
	"errors"
	"net/http"

	"github.com/rollups-settlement/settlement/availability"
	"github.com/rollups-settlement/settlement/dapp"
	"github.com/rollups-settlement/settlement/history"
	"github.com/rollups-settlement/settlement/inputbox"
	"github.com/rollups-settlement/settlement/inputs"
	"github.com/rollups-settlement/settlement/merkle"
	"github.com/rollups-settlement/settlement/outputs"
)

var (
	errBadRequest      = errors.New("bad request")
	errUnknownExecutor = errors.New("no executor for application")
)

type errorKind struct {
	err    error
	name   string
	status int
}

// Most specific first: validation errors may wrap merkle errors.
var errorKinds = []errorKind{
	{errBadRequest, "bad-request", http.StatusBadRequest},
	{errUnknownExecutor, "unknown-application", http.StatusNotFound},
	{dapp.ErrVoucherReexecutionNotAllowed, "voucher-reexecution-not-allowed", http.StatusConflict},
	{dapp.ErrVoucherDispatchFailed, "voucher-dispatch-failed", http.StatusBadGateway},
	{inputs.ErrInputSizeExceedsLimit, "input-size-exceeds-limit", http.StatusRequestEntityTooLarge},
	{inputbox.ErrIndexOutOfRange, "index-out-of-range", http.StatusNotFound},
	{availability.ErrNotFound, "payload-not-found", http.StatusNotFound},
	{outputs.ErrIncorrectEpochHash, "incorrect-epoch-hash", http.StatusUnprocessableEntity},
	{outputs.ErrIncorrectOutputsEpochRootHash, "incorrect-outputs-epoch-root-hash", http.StatusUnprocessableEntity},
	{outputs.ErrIncorrectOutputHashesRootHash, "incorrect-output-hashes-root-hash", http.StatusUnprocessableEntity},
	{outputs.ErrInputIndexOutOfClaimBounds, "input-index-out-of-claim-bounds", http.StatusUnprocessableEntity},
	{outputs.ErrBitMaskComponentTooLarge, "bit-mask-component-too-large", http.StatusBadRequest},
	{merkle.ErrProofLengthMismatch, "proof-length-mismatch", http.StatusUnprocessableEntity},
	{history.ErrInvalidInputIndices, "invalid-input-indices", http.StatusConflict},
	{history.ErrUnclaimedInputs, "unclaimed-inputs", http.StatusConflict},
	{history.ErrInputsNotReceived, "inputs-not-received", http.StatusConflict},
	{history.ErrClaimNotFound, "claim-not-found", http.StatusNotFound},
	{history.ErrNoInputCounter, "epoch-unavailable", http.StatusServiceUnavailable},
}

func classify(err error) (string, int) {
	for _, kind := range errorKinds {
		if errors.Is(err, kind.err) {
			return kind.name, kind.status
		}
	}
	return "internal", http.StatusInternalServerError
}
