// Package account implements one party's ledger row: a native-token deposit
// plus the combined schedule of every obligation locked against it.
package account

import (
	"errors"

	"github.com/xraph/flowledger/currency"
	"github.com/xraph/flowledger/schedule"
	"github.com/xraph/flowledger/types"
)

// ErrSettleExceedsAccrued reports a settlement that tried to drain more
// stable value than the account's obligations have accrued. Flow schedules
// are re-based in lockstep with the account schedule, and per-flow floor
// division never exceeds the account-level floor, so this is unreachable in
// a correct integration.
var ErrSettleExceedsAccrued = errors.New("account: settlement exceeds accrued obligations")

// Account is a single ledger row. Deposit is native-denominated Cash;
// PayableSchedule accrues the account's obligations in stable units.
//
// Accrued is the stable backlog already peeled off PayableSchedule but not
// yet settled: layering a new obligation re-bases the combined schedule, and
// the value accrued before the re-basing point lands here so it is never
// lost. Settlements drain Accrued before newly-accrued value.
//
// Accounts are created on first deposit and never destroyed; a zero-balance
// account is an idle row.
type Account struct {
	types.Entity
	ID              string            `json:"id"`
	Deposit         types.Cash        `json:"deposit"`
	Accrued         types.Amount      `json:"accrued"`
	PayableSchedule schedule.Schedule `json:"payable_schedule"`
}

// New returns an empty account row for the given identifier.
func New(accountID string) *Account {
	return &Account{
		Entity:          types.NewEntity(),
		ID:              accountID,
		PayableSchedule: schedule.Empty(),
	}
}

// Credit adds received Cash to the deposit. Unconditional: deposits have no
// failure mode.
func (a *Account) Credit(cash *types.Cash) {
	a.Deposit.Increase(cash)
	a.Touch()
}

// OwedAt returns the account's total stable-denominated obligations accrued
// up to nowMs: the unsettled backlog plus the schedule's accrual.
func (a *Account) OwedAt(nowMs uint64) (types.Amount, error) {
	value, err := a.PayableSchedule.ValueAt(nowMs)
	if err != nil {
		return 0, err
	}
	return a.Accrued + value, nil
}

// Withdrawable returns the native amount safely withdrawable at nowMs:
// deposit minus the converted obligations, floored at zero. The deposit
// itself never goes negative — an underwater account simply reports zero.
func (a *Account) Withdrawable(nowMs uint64, conv currency.Converter) (types.Amount, error) {
	owed, err := a.OwedAt(nowMs)
	if err != nil {
		return 0, err
	}

	deposit := a.Deposit.Peek()
	consumed := conv.ToNative(owed)
	if deposit <= consumed {
		return 0, nil
	}
	return deposit - consumed, nil
}

// LockSchedule merges a new obligation into the account. The value accrued
// by the existing schedule before the new obligation's start is drained
// into the backlog first, so summing the rates cannot recompute the elapsed
// interval at the blended rate.
func (a *Account) LockSchedule(s schedule.Schedule) error {
	drained, err := a.PayableSchedule.TakeValueThenAddRate(s)
	if err != nil {
		return err
	}
	a.Accrued += drained
	a.Touch()
	return nil
}

// Withdraw debits the Payable from the deposit after checking it against
// the withdrawable balance. On failure the account is untouched.
func (a *Account) Withdraw(nowMs uint64, conv currency.Converter, payable types.Payable) error {
	withdrawable, err := a.Withdrawable(nowMs, conv)
	if err != nil {
		return err
	}
	if withdrawable < payable.Peek() {
		return types.ErrInsufficientBalance
	}

	a.Deposit.PayUnchecked(payable)
	a.Touch()
	return nil
}

// PaySchedule settles an accrued obligation: it advances the schedule to
// nowMs, releases the settled stable amount from the account's obligations,
// and debits the native Payable from the deposit. Releasing first means the
// same interval is never charged twice; being called again at the same
// instant settles zero.
//
// The sufficiency check runs before any mutation, so a failed settlement
// leaves the account untouched.
func (a *Account) PaySchedule(nowMs uint64, conv currency.Converter, stable types.Amount, payable types.Payable) error {
	value, err := a.PayableSchedule.ValueAt(nowMs)
	if err != nil {
		return err
	}

	accrued := a.Accrued + value
	if stable > accrued {
		return ErrSettleExceedsAccrued
	}

	// Withdrawable after the settled amount is released from the
	// obligations; the deposit must cover the Payable on top of what the
	// remaining obligations reserve.
	remaining := conv.ToNative(accrued - stable)
	deposit := a.Deposit.Peek()
	if deposit < remaining || deposit-remaining < payable.Peek() {
		return types.ErrInsufficientBalance
	}

	a.PayableSchedule.StartMs = nowMs
	a.Accrued = accrued - stable
	a.Deposit.PayUnchecked(payable)
	a.Touch()
	return nil
}

// CoveredUntil returns the timestamp at which the deposit stops covering
// the account's obligations, schedule.Forever when the rate is zero and the
// backlog is covered.
func (a *Account) CoveredUntil(conv currency.Converter) uint64 {
	stableDeposit := conv.ToStable(a.Deposit.Peek())
	if stableDeposit <= a.Accrued {
		return a.PayableSchedule.StartMs
	}
	return a.PayableSchedule.TimeOfValue(stableDeposit - a.Accrued)
}
