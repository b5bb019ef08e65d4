// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package restapi

import (
	"fmt"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"

	"github.com/rollups-settlement/settlement/availability"
	"github.com/rollups-settlement/settlement/history"
	"github.com/rollups-settlement/settlement/outputs"
)

func (h *Handler) getInputCount(w http.ResponseWriter, r *http.Request) {
	dapp, err := parseAddress(r.PathValue("dapp"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	count, err := h.inputs.GetNumberOfInputs(dapp)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, InputCountResponse{Count: hexutil.Uint64(count)})
}

func (h *Handler) getInputHash(w http.ResponseWriter, r *http.Request) {
	dapp, err := parseAddress(r.PathValue("dapp"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	index, err := parseUint64(r.PathValue("index"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	hash, err := h.inputs.GetInputHash(dapp, index)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, InputHashResponse{Index: hexutil.Uint64(index), Hash: hash})
}

func (h *Handler) addInput(w http.ResponseWriter, r *http.Request) {
	dapp, err := parseAddress(r.PathValue("dapp"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	var request AddInputRequest
	if err := decodeBody(r, &request); err != nil {
		writeError(w, r, err)
		return
	}
	added, err := h.inputs.AddInput(r.Context(), dapp, request.Sender, request.Payload)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, InputAddedResponse{
		Dapp:           added.Dapp,
		Index:          hexutil.Uint64(added.Index),
		Sender:         added.Sender,
		BlockNumber:    hexutil.Uint64(added.BlockNumber),
		BlockTimestamp: hexutil.Uint64(added.BlockTimestamp),
		Hash:           added.Hash,
		PayloadHash:    availability.HashPayload(added.Payload),
	})
}

func (h *Handler) getPayload(w http.ResponseWriter, r *http.Request) {
	encoded := r.PathValue("hash")
	decoded, err := hexutil.Decode(encoded)
	if err != nil || len(decoded) != common.HashLength {
		writeError(w, r, fmt.Errorf("%w: invalid hash %q", errBadRequest, encoded))
		return
	}
	data, err := h.storage.GetByHash(r.Context(), common.BytesToHash(decoded))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, PayloadResponse{Data: data})
}

func (h *Handler) validateOutput(w http.ResponseWriter, r *http.Request) {
	var request ValidateOutputRequest
	if err := decodeBody(r, &request); err != nil {
		writeError(w, r, err)
		return
	}
	if err := outputs.ValidateOutput(&request.Proof, request.Output, request.EpochHash); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, ValidateOutputResponse{Valid: true})
}

func parseUint256(value string) (*uint256.Int, error) {
	parsed, err := uint256.FromDecimal(value)
	if err != nil {
		parsed, err = uint256.FromHex(value)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: invalid number %q", errBadRequest, value)
	}
	return parsed, nil
}

func (h *Handler) getBitMaskPosition(w http.ResponseWriter, r *http.Request) {
	outputIndex, err := parseUint256(r.PathValue("output"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	inputIndex, err := parseUint256(r.PathValue("input"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	position, err := outputs.GetBitMaskPosition(outputIndex, inputIndex)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, BitMaskPositionResponse{Position: position.Dec()})
}

func claimResponse(claimIndex uint64, claim *history.Claim) ClaimResponse {
	return ClaimResponse{
		ClaimIndex: hexutil.Uint64(claimIndex),
		EpochHash:  claim.EpochHash,
		FirstIndex: hexutil.Uint64(claim.FirstIndex),
		LastIndex:  hexutil.Uint64(claim.LastIndex),
	}
}

func (h *Handler) getClaim(w http.ResponseWriter, r *http.Request) {
	dapp, err := parseAddress(r.PathValue("dapp"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	claimIndex, err := parseUint64(r.PathValue("index"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	claim, err := h.claims.GetClaim(dapp, claimIndex)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, claimResponse(claimIndex, claim))
}

func (h *Handler) submitClaim(w http.ResponseWriter, r *http.Request) {
	dapp, err := parseAddress(r.PathValue("dapp"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	var request SubmitClaimRequest
	if err := decodeBody(r, &request); err != nil {
		writeError(w, r, err)
		return
	}
	claim := history.Claim{
		EpochHash:  request.EpochHash,
		FirstIndex: uint64(request.FirstIndex),
		LastIndex:  uint64(request.LastIndex),
	}
	claimIndex, err := h.claims.SubmitClaim(dapp, claim)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, claimResponse(claimIndex, &claim))
}

func (h *Handler) getCurrentEpoch(w http.ResponseWriter, r *http.Request) {
	dapp, err := parseAddress(r.PathValue("dapp"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	epoch, err := h.claims.CurrentEpoch(dapp)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, EpochResponse{
		Index:      hexutil.Uint64(epoch.Index),
		FirstIndex: hexutil.Uint64(epoch.FirstIndex),
		InputCount: hexutil.Uint64(epoch.InputCount),
	})
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	if h.storage != nil {
		if err := h.storage.HealthCheck(r.Context()); err != nil {
			writeError(w, r, err)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) executorFor(r *http.Request) (OutputExecutor, error) {
	dappAddress, err := parseAddress(r.PathValue("dapp"))
	if err != nil {
		return nil, err
	}
	executor, ok := h.executors[dappAddress]
	if !ok {
		return nil, fmt.Errorf("%w: %v", errUnknownExecutor, dappAddress)
	}
	return executor, nil
}

func (h *Handler) executeVoucher(w http.ResponseWriter, r *http.Request) {
	executor, err := h.executorFor(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var request ExecuteVoucherRequest
	if err := decodeBody(r, &request); err != nil {
		writeError(w, r, err)
		return
	}
	if err := executor.ExecuteVoucher(r.Context(), request.Destination, request.Payload, &request.Proof); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, VoucherExecutedResponse{Executed: true})
}

func (h *Handler) wasVoucherExecuted(w http.ResponseWriter, r *http.Request) {
	executor, err := h.executorFor(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	inputIndex, err := parseUint64(r.PathValue("input"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	outputIndex, err := parseUint64(r.PathValue("output"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	executed, err := executor.WasVoucherExecuted(inputIndex, outputIndex)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, VoucherExecutedResponse{Executed: executed})
}

func (h *Handler) validateNotice(w http.ResponseWriter, r *http.Request) {
	executor, err := h.executorFor(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var request ValidateNoticeRequest
	if err := decodeBody(r, &request); err != nil {
		writeError(w, r, err)
		return
	}
	if err := executor.ValidateNotice(request.Notice, &request.Proof); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, ValidateOutputResponse{Valid: true})
}
