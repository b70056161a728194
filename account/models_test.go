package account

import (
	"errors"
	"testing"

	"github.com/xraph/flowledger/currency"
	"github.com/xraph/flowledger/schedule"
	"github.com/xraph/flowledger/types"
)

func identity() currency.Converter {
	return currency.NewConverter()
}

func deposit(a *Account, amount types.Amount) {
	cash := types.NewCash(amount)
	a.Credit(&cash)
}

func TestCreditAccumulates(t *testing.T) {
	a := New("alice")
	deposit(a, 100)
	deposit(a, 50)

	if got := a.Deposit.Peek(); got != 150 {
		t.Fatalf("deposit = %d, want 150", got)
	}
}

func TestWithdrawableNoObligations(t *testing.T) {
	a := New("alice")
	deposit(a, 100)

	got, err := a.Withdrawable(schedule.MsPerMonth, identity())
	if err != nil {
		t.Fatal(err)
	}
	if got != 100 {
		t.Fatalf("withdrawable = %d, want 100", got)
	}
}

func TestWithdrawableAfterLock(t *testing.T) {
	a := New("alice")
	deposit(a, 100)
	if err := a.LockSchedule(schedule.New(0, 31)); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		nowMs uint64
		want  types.Amount
	}{
		{"at start", 0, 100},
		{"one month in", schedule.MsPerMonth, 69},
		{"underwater floors at zero", 10 * schedule.MsPerMonth, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := a.Withdrawable(tt.nowMs, identity())
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Fatalf("withdrawable = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestLockScheduleDrainsPriorAccrual(t *testing.T) {
	a := New("alice")
	deposit(a, 1000)
	if err := a.LockSchedule(schedule.New(0, 100)); err != nil {
		t.Fatal(err)
	}

	// A second obligation locked one month later. The first month at rate
	// 100 moves to the backlog instead of being recomputed at rate 150.
	if err := a.LockSchedule(schedule.New(schedule.MsPerMonth, 50)); err != nil {
		t.Fatal(err)
	}

	if a.Accrued != 100 {
		t.Fatalf("accrued = %d, want 100", a.Accrued)
	}
	if a.PayableSchedule.Rate != 150 {
		t.Fatalf("rate = %d, want 150", a.PayableSchedule.Rate)
	}

	owed, err := a.OwedAt(2 * schedule.MsPerMonth)
	if err != nil {
		t.Fatal(err)
	}
	if owed != 250 {
		t.Fatalf("owed = %d, want 250", owed)
	}
}

func TestWithdrawChecksWithdrawable(t *testing.T) {
	a := New("alice")
	deposit(a, 100)
	if err := a.LockSchedule(schedule.New(0, 31)); err != nil {
		t.Fatal(err)
	}

	// One month in 31 is owed, leaving 69 withdrawable.
	payable, _ := types.BorrowPayableCash(70)
	err := a.Withdraw(schedule.MsPerMonth, identity(), payable)
	if !errors.Is(err, types.ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}
	if got := a.Deposit.Peek(); got != 100 {
		t.Fatalf("failed withdraw mutated deposit: %d", got)
	}

	payable, _ = types.BorrowPayableCash(69)
	if err := a.Withdraw(schedule.MsPerMonth, identity(), payable); err != nil {
		t.Fatal(err)
	}
	if got := a.Deposit.Peek(); got != 31 {
		t.Fatalf("deposit = %d, want 31", got)
	}
}

func TestPayScheduleSettles(t *testing.T) {
	a := New("alice")
	deposit(a, 1000)
	if err := a.LockSchedule(schedule.New(0, 100)); err != nil {
		t.Fatal(err)
	}

	payable, cash := types.BorrowPayableCash(100)
	if err := a.PaySchedule(schedule.MsPerMonth, identity(), 100, payable); err != nil {
		t.Fatal(err)
	}
	if got := cash.Peek(); got != 100 {
		t.Fatalf("settled cash = %d, want 100", got)
	}
	if got := a.Deposit.Peek(); got != 900 {
		t.Fatalf("deposit = %d, want 900", got)
	}
	if a.Accrued != 0 {
		t.Fatalf("accrued = %d, want 0", a.Accrued)
	}

	// Settling again at the same instant releases nothing.
	owed, err := a.OwedAt(schedule.MsPerMonth)
	if err != nil {
		t.Fatal(err)
	}
	if owed != 0 {
		t.Fatalf("owed after settle = %d, want 0", owed)
	}
}

func TestPaySchedulePartialLeavesBacklog(t *testing.T) {
	a := New("alice")
	deposit(a, 1000)
	if err := a.LockSchedule(schedule.New(0, 100)); err != nil {
		t.Fatal(err)
	}

	// Settle only 40 of the 100 accrued over the first month.
	payable, _ := types.BorrowPayableCash(40)
	if err := a.PaySchedule(schedule.MsPerMonth, identity(), 40, payable); err != nil {
		t.Fatal(err)
	}
	if a.Accrued != 60 {
		t.Fatalf("accrued = %d, want 60", a.Accrued)
	}

	owed, err := a.OwedAt(2 * schedule.MsPerMonth)
	if err != nil {
		t.Fatal(err)
	}
	if owed != 160 {
		t.Fatalf("owed = %d, want 160", owed)
	}
}

func TestPayScheduleRejectsOverSettle(t *testing.T) {
	a := New("alice")
	deposit(a, 1000)
	if err := a.LockSchedule(schedule.New(0, 100)); err != nil {
		t.Fatal(err)
	}

	payable, _ := types.BorrowPayableCash(200)
	err := a.PaySchedule(schedule.MsPerMonth, identity(), 200, payable)
	if !errors.Is(err, ErrSettleExceedsAccrued) {
		t.Fatalf("err = %v, want ErrSettleExceedsAccrued", err)
	}
	if got := a.Deposit.Peek(); got != 1000 {
		t.Fatalf("failed settle mutated deposit: %d", got)
	}
}

func TestPayScheduleInsufficientDeposit(t *testing.T) {
	a := New("bob")
	deposit(a, 50)
	if err := a.LockSchedule(schedule.New(0, 100)); err != nil {
		t.Fatal(err)
	}

	payable, _ := types.BorrowPayableCash(100)
	err := a.PaySchedule(schedule.MsPerMonth, identity(), 100, payable)
	if !errors.Is(err, types.ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}
	if got := a.Deposit.Peek(); got != 50 {
		t.Fatalf("failed settle mutated deposit: %d", got)
	}
	if a.Accrued != 0 {
		t.Fatalf("failed settle mutated backlog: %d", a.Accrued)
	}
}

func TestPayScheduleWithConversion(t *testing.T) {
	conv := currency.NewConverter()
	// 2 stable per native.
	if err := conv.SetRate(2 * currency.Precision); err != nil {
		t.Fatal(err)
	}

	a := New("alice")
	deposit(a, 500) // worth 1000 stable
	if err := a.LockSchedule(schedule.New(0, 100)); err != nil {
		t.Fatal(err)
	}

	// 100 stable accrued costs 50 native.
	payable, _ := types.BorrowPayableCash(conv.ToNative(100))
	if err := a.PaySchedule(schedule.MsPerMonth, conv, 100, payable); err != nil {
		t.Fatal(err)
	}
	if got := a.Deposit.Peek(); got != 450 {
		t.Fatalf("deposit = %d, want 450", got)
	}
}

func TestCoveredUntil(t *testing.T) {
	a := New("alice")
	deposit(a, 310)
	if err := a.LockSchedule(schedule.New(0, 31)); err != nil {
		t.Fatal(err)
	}

	if got := a.CoveredUntil(identity()); got != 10*schedule.MsPerMonth {
		t.Fatalf("covered until %d, want %d", got, 10*schedule.MsPerMonth)
	}
}

func TestCoveredUntilZeroRate(t *testing.T) {
	a := New("alice")
	deposit(a, 100)

	if got := a.CoveredUntil(identity()); got != schedule.Forever {
		t.Fatalf("covered until %d, want Forever", got)
	}
}

func TestCoveredUntilBacklogExceedsDeposit(t *testing.T) {
	a := New("alice")
	deposit(a, 10)
	if err := a.LockSchedule(schedule.New(0, 100)); err != nil {
		t.Fatal(err)
	}
	if err := a.LockSchedule(schedule.New(schedule.MsPerMonth, 100)); err != nil {
		t.Fatal(err)
	}

	// Backlog of 100 already exceeds the 10 deposit; coverage ended at the
	// schedule's base point.
	if got := a.CoveredUntil(identity()); got != schedule.MsPerMonth {
		t.Fatalf("covered until %d, want %d", got, schedule.MsPerMonth)
	}
}
