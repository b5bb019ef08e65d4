// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package dapp

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/holiman/uint256"

	"github.com/rollups-settlement/settlement/history"
	"github.com/rollups-settlement/settlement/outputs"
	"github.com/rollups-settlement/settlement/util/testhelpers"
)

type voucher struct {
	destination common.Address
	payload     []byte
}

type recordingDispatcher struct {
	calls []voucher
	err   error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, _ common.Address, destination common.Address, payload []byte) error {
	if d.err != nil {
		return d.err
	}
	d.calls = append(d.calls, voucher{destination, payload})
	return nil
}

type testSetup struct {
	db         ethdb.Database
	dapp       common.Address
	history    *history.History
	epoch      *outputs.EpochOutputs
	vouchers   map[[2]uint64]voucher
	notice     []byte
	dispatcher *recordingDispatcher
	executor   *Executor
}

// newTestSetup claims inputs 0..1 and 2..4 of an application. The second
// epoch has a voucher and a notice at input 2, nothing at input 3 and a
// voucher at input 4.
func newTestSetup(t *testing.T) *testSetup {
	t.Helper()
	s := &testSetup{
		db:         rawdb.NewMemoryDatabase(),
		dapp:       testhelpers.RandomAddress(),
		vouchers:   make(map[[2]uint64]voucher),
		notice:     []byte("a notice"),
		dispatcher: &recordingDispatcher{},
	}
	s.history = history.NewHistory(s.db, nil)
	s.vouchers[[2]uint64{0, 0}] = voucher{testhelpers.RandomAddress(), []byte("first")}
	s.vouchers[[2]uint64{2, 0}] = voucher{testhelpers.RandomAddress(), testhelpers.RandomSlice(100)}

	first, err := outputs.EncodeVoucher(s.vouchers[[2]uint64{0, 0}].destination, s.vouchers[[2]uint64{0, 0}].payload)
	Require(t, err)
	notice, err := outputs.EncodeNotice(s.notice)
	Require(t, err)
	last, err := outputs.EncodeVoucher(s.vouchers[[2]uint64{2, 0}].destination, s.vouchers[[2]uint64{2, 0}].payload)
	Require(t, err)
	s.epoch, err = outputs.NewEpochOutputs([][][]byte{{first, notice}, {}, {last}}, testhelpers.RandomHash())
	Require(t, err)

	_, err = s.history.SubmitClaim(s.dapp, history.Claim{EpochHash: testhelpers.RandomHash(), FirstIndex: 0, LastIndex: 1})
	Require(t, err)
	_, err = s.history.SubmitClaim(s.dapp, history.Claim{EpochHash: s.epoch.EpochHash(), FirstIndex: 2, LastIndex: 4})
	Require(t, err)
	s.executor = NewExecutor(s.db, s.dapp, s.history, s.dispatcher)
	return s
}

func (s *testSetup) proof(t *testing.T, input, output uint64) *Proof {
	t.Helper()
	validity, err := s.epoch.Proof(input, output)
	Require(t, err)
	return &Proof{Validity: *validity, ClaimIndex: 1}
}

func TestExecuteVoucherOnce(t *testing.T) {
	s := newTestSetup(t)
	ctx := context.Background()
	v := s.vouchers[[2]uint64{2, 0}]

	executed := make(chan VoucherExecuted, 1)
	sub := s.executor.SubscribeVoucherExecuted(executed)
	defer sub.Unsubscribe()

	Require(t, s.executor.ExecuteVoucher(ctx, v.destination, v.payload, s.proof(t, 2, 0)))
	if len(s.dispatcher.calls) != 1 || s.dispatcher.calls[0].destination != v.destination {
		Fail(t, "voucher was not dispatched", s.dispatcher.calls)
	}
	event := <-executed
	if event.InputIndex != 4 || event.OutputIndex != 0 || !event.Position.Eq(uint256.NewInt(4)) {
		Fail(t, "unexpected event", event)
	}

	wasExecuted, err := s.executor.WasVoucherExecuted(4, 0)
	Require(t, err)
	if !wasExecuted {
		Fail(t, "voucher not marked executed")
	}
	other, err := s.executor.WasVoucherExecuted(2, 0)
	Require(t, err)
	if other {
		Fail(t, "unrelated voucher marked executed")
	}

	err = s.executor.ExecuteVoucher(ctx, v.destination, v.payload, s.proof(t, 2, 0))
	if !errors.Is(err, ErrVoucherReexecutionNotAllowed) {
		Fail(t, "expected ErrVoucherReexecutionNotAllowed, got", err)
	}
	if len(s.dispatcher.calls) != 1 {
		Fail(t, "voucher dispatched twice")
	}
}

func TestExecutedBitsSurviveReopen(t *testing.T) {
	s := newTestSetup(t)
	v := s.vouchers[[2]uint64{0, 0}]
	Require(t, s.executor.ExecuteVoucher(context.Background(), v.destination, v.payload, s.proof(t, 0, 0)))

	reopened := NewExecutor(s.db, s.dapp, s.history, s.dispatcher)
	executed, err := reopened.WasVoucherExecuted(2, 0)
	Require(t, err)
	if !executed {
		Fail(t, "executed bit lost")
	}
	otherDapp := NewExecutor(s.db, testhelpers.RandomAddress(), s.history, s.dispatcher)
	executed, err = otherDapp.WasVoucherExecuted(2, 0)
	Require(t, err)
	if executed {
		Fail(t, "executed bit leaked to another application")
	}
}

func TestExecutedBitsAreIndependent(t *testing.T) {
	s := newTestSetup(t)
	high := new(uint256.Int).Lsh(uint256.NewInt(1), 128)
	set := []*uint256.Int{uint256.NewInt(1), uint256.NewInt(255), new(uint256.Int).Add(high, uint256.NewInt(3))}
	unset := []*uint256.Int{uint256.NewInt(0), uint256.NewInt(2), uint256.NewInt(254), uint256.NewInt(256), uint256.NewInt(257), high}
	for _, position := range set {
		Require(t, s.executor.setBit(position))
	}
	for _, position := range set {
		bit, err := s.executor.getBit(position)
		Require(t, err)
		if !bit {
			Fail(t, "bit", position.Dec(), "not set")
		}
	}
	for _, position := range unset {
		bit, err := s.executor.getBit(position)
		Require(t, err)
		if bit {
			Fail(t, "bit", position.Dec(), "set by a neighbour")
		}
	}
}

func TestFailedDispatchIsRetryable(t *testing.T) {
	s := newTestSetup(t)
	v := s.vouchers[[2]uint64{0, 0}]
	s.dispatcher.err = errors.New("reverted")
	err := s.executor.ExecuteVoucher(context.Background(), v.destination, v.payload, s.proof(t, 0, 0))
	if !errors.Is(err, ErrVoucherDispatchFailed) {
		Fail(t, "expected ErrVoucherDispatchFailed, got", err)
	}
	executed, err := s.executor.WasVoucherExecuted(2, 0)
	Require(t, err)
	if executed {
		Fail(t, "failed voucher marked executed")
	}
	s.dispatcher.err = nil
	Require(t, s.executor.ExecuteVoucher(context.Background(), v.destination, v.payload, s.proof(t, 0, 0)))
}

func TestExecuteVoucherRejects(t *testing.T) {
	s := newTestSetup(t)
	ctx := context.Background()
	v := s.vouchers[[2]uint64{0, 0}]

	if err := s.executor.ExecuteVoucher(ctx, v.destination, []byte("other"), s.proof(t, 0, 0)); !errors.Is(err, outputs.ErrIncorrectOutputHashesRootHash) {
		Fail(t, "tampered payload accepted:", err)
	}
	wrongClaim := s.proof(t, 0, 0)
	wrongClaim.ClaimIndex = 0
	if err := s.executor.ExecuteVoucher(ctx, v.destination, v.payload, wrongClaim); !errors.Is(err, outputs.ErrIncorrectEpochHash) {
		Fail(t, "proof accepted under another claim:", err)
	}
	missingClaim := s.proof(t, 0, 0)
	missingClaim.ClaimIndex = 2
	if err := s.executor.ExecuteVoucher(ctx, v.destination, v.payload, missingClaim); !errors.Is(err, history.ErrClaimNotFound) {
		Fail(t, "expected ErrClaimNotFound, got", err)
	}
	outOfRange := s.proof(t, 0, 0)
	outOfRange.Validity.InputIndexWithinEpoch = 3
	if err := s.executor.ExecuteVoucher(ctx, v.destination, v.payload, outOfRange); !errors.Is(err, outputs.ErrInputIndexOutOfClaimBounds) {
		Fail(t, "expected ErrInputIndexOutOfClaimBounds, got", err)
	}
	if len(s.dispatcher.calls) != 0 {
		Fail(t, "rejected vouchers were dispatched")
	}
}

func TestValidateNotice(t *testing.T) {
	s := newTestSetup(t)
	Require(t, s.executor.ValidateNotice(s.notice, s.proof(t, 0, 1)))
	if err := s.executor.ValidateNotice([]byte("another notice"), s.proof(t, 0, 1)); err == nil {
		Fail(t, "unknown notice accepted")
	}
}

type fakeCaller struct {
	msg ethereum.CallMsg
	err error
}

func (c *fakeCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	c.msg = msg
	return nil, c.err
}

func TestCallDispatcher(t *testing.T) {
	caller := &fakeCaller{}
	dispatcher := NewCallDispatcher(caller)
	dapp := testhelpers.RandomAddress()
	destination := testhelpers.RandomAddress()
	Require(t, dispatcher.Dispatch(context.Background(), dapp, destination, []byte{1, 2}))
	if caller.msg.From != dapp || caller.msg.To == nil || *caller.msg.To != destination {
		Fail(t, "unexpected call", caller.msg)
	}
	caller.err = errors.New("execution reverted")
	if err := dispatcher.Dispatch(context.Background(), dapp, destination, nil); err == nil {
		Fail(t, "revert not reported")
	}
}

func Require(t *testing.T, err error, printables ...interface{}) {
	t.Helper()
	testhelpers.RequireImpl(t, err, printables...)
}

func Fail(t *testing.T, printables ...interface{}) {
	t.Helper()
	testhelpers.FailImpl(t, printables...)
}
