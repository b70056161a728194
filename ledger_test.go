package flowledger_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	flowledger "github.com/xraph/flowledger"
	"github.com/xraph/flowledger/currency"
	"github.com/xraph/flowledger/fee"
	"github.com/xraph/flowledger/id"
	"github.com/xraph/flowledger/schedule"
	"github.com/xraph/flowledger/store"
	"github.com/xraph/flowledger/store/memory"
	"github.com/xraph/flowledger/types"
)

// flakyStore fails the next Apply and then recovers, modeling a backend
// dropping out mid-operation.
type flakyStore struct {
	*memory.Store
	failNext bool
}

var errStoreOffline = errors.New("store offline")

func (s *flakyStore) Apply(ctx context.Context, set *store.ChangeSet) error {
	if s.failNext {
		s.failNext = false
		return errStoreOffline
	}
	return s.Store.Apply(ctx, set)
}

func newTestLedger(t *testing.T, opts ...flowledger.Option) (*flowledger.Ledger, *memory.Store) {
	t.Helper()
	s := memory.NewStore()
	opts = append(opts, flowledger.WithLogger(slog.New(slog.DiscardHandler)))
	l := flowledger.New(s, opts...)
	if err := l.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	return l, s
}

// totalValue sums every account deposit and cluster pool. With the default
// no-op transfer hook no value leaves the system, so mutations must keep
// this constant.
func totalValue(t *testing.T, s *memory.Store) types.Amount {
	t.Helper()
	ctx := context.Background()

	var total types.Amount
	accounts, err := s.ListAccounts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for _, a := range accounts {
		total += a.Deposit.Peek()
	}
	clusters, err := s.ListClusters(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range clusters {
		total += c.Revenues.Peek()
	}
	return total
}

func TestDepositAndBalance(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	if err := l.Deposit(ctx, "alice", 500); err != nil {
		t.Fatal(err)
	}
	if err := l.Deposit(ctx, "alice", 250); err != nil {
		t.Fatal(err)
	}

	got, err := l.Balance(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if got != 750 {
		t.Fatalf("balance = %d, want 750", got)
	}
}

func TestWithdrawUnknownAccount(t *testing.T) {
	l, _ := newTestLedger(t)

	err := l.Withdraw(context.Background(), "nobody", 10, 0)
	if !errors.Is(err, flowledger.ErrAccountNotFound) {
		t.Fatalf("err = %v, want ErrAccountNotFound", err)
	}
}

func TestWithdrawInsufficientLeavesStateUntouched(t *testing.T) {
	l, s := newTestLedger(t)
	ctx := context.Background()

	if err := l.Deposit(ctx, "alice", 100); err != nil {
		t.Fatal(err)
	}

	err := l.Withdraw(ctx, "alice", 101, 0)
	if !errors.Is(err, flowledger.ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}

	a, err := s.GetAccount(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if got := a.Deposit.Peek(); got != 100 {
		t.Fatalf("failed withdraw changed deposit: %d", got)
	}
}

func TestWithdrawInvokesTransfer(t *testing.T) {
	var gotTo string
	var gotAmount types.Amount
	l, _ := newTestLedger(t, flowledger.WithTransferFunc(
		func(ctx context.Context, to string, amount types.Amount) error {
			gotTo, gotAmount = to, amount
			return nil
		}))
	ctx := context.Background()

	if err := l.Deposit(ctx, "alice", 100); err != nil {
		t.Fatal(err)
	}
	if err := l.Withdraw(ctx, "alice", 40, 0); err != nil {
		t.Fatal(err)
	}

	if gotTo != "alice" || gotAmount != 40 {
		t.Fatalf("transfer(%q, %d), want (alice, 40)", gotTo, gotAmount)
	}
	balance, err := l.Balance(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if balance != 60 {
		t.Fatalf("balance = %d, want 60", balance)
	}
}

func TestWithdrawTransferFailureAborts(t *testing.T) {
	transferErr := errors.New("chain unavailable")
	l, s := newTestLedger(t, flowledger.WithTransferFunc(
		func(ctx context.Context, to string, amount types.Amount) error {
			return transferErr
		}))
	ctx := context.Background()

	if err := l.Deposit(ctx, "alice", 100); err != nil {
		t.Fatal(err)
	}
	err := l.Withdraw(ctx, "alice", 40, 0)
	if !errors.Is(err, transferErr) {
		t.Fatalf("err = %v, want transfer error", err)
	}
	if !errors.Is(err, flowledger.ErrTransferFailed) {
		t.Fatalf("err = %v, want ErrTransferFailed", err)
	}

	a, err := s.GetAccount(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if got := a.Deposit.Peek(); got != 100 {
		t.Fatalf("aborted withdraw changed deposit: %d", got)
	}
}

func TestTransferBetweenAccounts(t *testing.T) {
	l, s := newTestLedger(t)
	ctx := context.Background()

	if err := l.Deposit(ctx, "alice", 100); err != nil {
		t.Fatal(err)
	}
	before := totalValue(t, s)

	if err := l.Transfer(ctx, "alice", "bob", 30, 0); err != nil {
		t.Fatal(err)
	}

	aliceBal, _ := l.Balance(ctx, "alice")
	bobBal, _ := l.Balance(ctx, "bob")
	if aliceBal != 70 || bobBal != 30 {
		t.Fatalf("balances = %d/%d, want 70/30", aliceBal, bobBal)
	}
	if after := totalValue(t, s); after != before {
		t.Fatalf("transfer changed total value: %d -> %d", before, after)
	}
}

func TestOpenFlowRequiresCluster(t *testing.T) {
	l, _ := newTestLedger(t)

	_, err := l.OpenFlow(context.Background(), "alice", id.NewClusterID(), 10, 0)
	if !errors.Is(err, flowledger.ErrClusterNotFound) {
		t.Fatalf("err = %v, want ErrClusterNotFound", err)
	}
}

func TestOpenFlowRejectsEmptyPayer(t *testing.T) {
	l, _ := newTestLedger(t)

	_, err := l.OpenFlow(context.Background(), "", id.NewClusterID(), 10, 0)
	if !errors.Is(err, flowledger.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func TestOpenFlowRejectsProviderPayer(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	c, err := l.CreateCluster(ctx, "manager", []string{"p1", "p2"})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := l.OpenFlow(ctx, "p2", c.ID, 10, 0); !errors.Is(err, flowledger.ErrSelfFlow) {
		t.Fatalf("err = %v, want ErrSelfFlow", err)
	}
}

func TestCreateClusterRejectsEmptyManager(t *testing.T) {
	l, _ := newTestLedger(t)

	_, err := l.CreateCluster(context.Background(), "", []string{"p1"})
	if !errors.Is(err, flowledger.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func TestFlowSettlement(t *testing.T) {
	l, s := newTestLedger(t)
	ctx := context.Background()

	c, err := l.CreateCluster(ctx, "manager", []string{"p1"})
	if err != nil {
		t.Fatal(err)
	}
	if err := l.Deposit(ctx, "alice", 1000); err != nil {
		t.Fatal(err)
	}
	before := totalValue(t, s)

	f, err := l.OpenFlow(ctx, "alice", c.ID, 100, 0)
	if err != nil {
		t.Fatal(err)
	}

	settled, err := l.SettleFlow(ctx, f.ID, schedule.MsPerMonth)
	if err != nil {
		t.Fatal(err)
	}
	if settled != 100 {
		t.Fatalf("settled = %d, want 100", settled)
	}

	balance, _ := l.Balance(ctx, "alice")
	if balance != 900 {
		t.Fatalf("payer balance = %d, want 900", balance)
	}
	got, err := l.GetCluster(ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Revenues.Peek() != 100 {
		t.Fatalf("cluster revenues = %d, want 100", got.Revenues.Peek())
	}
	if after := totalValue(t, s); after != before {
		t.Fatalf("settlement changed total value: %d -> %d", before, after)
	}

	// Settling again at the same instant collects nothing.
	settled, err = l.SettleFlow(ctx, f.ID, schedule.MsPerMonth)
	if err != nil {
		t.Fatal(err)
	}
	if settled != 0 {
		t.Fatalf("second settle = %d, want 0", settled)
	}
}

func TestFlowSettlementCappedAtCoverage(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	c, err := l.CreateCluster(ctx, "manager", []string{"p1"})
	if err != nil {
		t.Fatal(err)
	}
	// Deposit covers half a month at rate 100.
	if err := l.Deposit(ctx, "alice", 50); err != nil {
		t.Fatal(err)
	}
	f, err := l.OpenFlow(ctx, "alice", c.ID, 100, 0)
	if err != nil {
		t.Fatal(err)
	}

	settled, err := l.SettleFlow(ctx, f.ID, 2*schedule.MsPerMonth)
	if err != nil {
		t.Fatal(err)
	}
	if settled != 50 {
		t.Fatalf("settled = %d, want 50", settled)
	}

	balance, _ := l.Balance(ctx, "alice")
	if balance != 0 {
		t.Fatalf("payer balance = %d, want 0", balance)
	}

	// Topping up resumes settlement from where coverage ended.
	if err := l.Deposit(ctx, "alice", 1000); err != nil {
		t.Fatal(err)
	}
	settled, err = l.SettleFlow(ctx, f.ID, 2*schedule.MsPerMonth)
	if err != nil {
		t.Fatal(err)
	}
	if settled != 150 {
		t.Fatalf("settled after top-up = %d, want 150", settled)
	}
}

func TestIncreaseFlowRate(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	c, err := l.CreateCluster(ctx, "manager", []string{"p1"})
	if err != nil {
		t.Fatal(err)
	}
	if err := l.Deposit(ctx, "alice", 10_000); err != nil {
		t.Fatal(err)
	}
	f, err := l.OpenFlow(ctx, "alice", c.ID, 100, 0)
	if err != nil {
		t.Fatal(err)
	}

	// One month at rate 100, then raise by 50.
	if err := l.IncreaseFlowRate(ctx, f.ID, 50, schedule.MsPerMonth); err != nil {
		t.Fatal(err)
	}

	// The first month settled into the cluster at the old rate.
	got, err := l.GetCluster(ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Revenues.Peek() != 100 {
		t.Fatalf("revenues after raise = %d, want 100", got.Revenues.Peek())
	}

	// A second month accrues at the merged rate.
	settled, err := l.SettleFlow(ctx, f.ID, 2*schedule.MsPerMonth)
	if err != nil {
		t.Fatal(err)
	}
	if settled != 150 {
		t.Fatalf("settled = %d, want 150", settled)
	}
}

func TestIncreaseFlowRateWhileUnderfunded(t *testing.T) {
	l, s := newTestLedger(t)
	ctx := context.Background()

	c, err := l.CreateCluster(ctx, "manager", []string{"p1"})
	if err != nil {
		t.Fatal(err)
	}
	// Deposit covers half a month at rate 100; by the raise at two months
	// the payer owes far more than it holds.
	if err := l.Deposit(ctx, "alice", 50); err != nil {
		t.Fatal(err)
	}
	f, err := l.OpenFlow(ctx, "alice", c.ID, 100, 0)
	if err != nil {
		t.Fatal(err)
	}
	before := totalValue(t, s)

	if err := l.IncreaseFlowRate(ctx, f.ID, 50, 2*schedule.MsPerMonth); err != nil {
		t.Fatal(err)
	}

	// The raise settled the covered half month and drained the deposit.
	got, err := l.GetCluster(ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Revenues.Peek() != 50 {
		t.Fatalf("revenues after raise = %d, want 50", got.Revenues.Peek())
	}

	// The uncovered month and a half stays owed, not collectible yet.
	settled, err := l.SettleFlow(ctx, f.ID, 2*schedule.MsPerMonth)
	if err != nil {
		t.Fatal(err)
	}
	if settled != 0 {
		t.Fatalf("settled while broke = %d, want 0", settled)
	}

	// A top-up makes the whole debt collectible.
	if err := l.Deposit(ctx, "alice", 10_000); err != nil {
		t.Fatal(err)
	}
	settled, err = l.SettleFlow(ctx, f.ID, 2*schedule.MsPerMonth)
	if err != nil {
		t.Fatal(err)
	}
	if settled != 150 {
		t.Fatalf("settled after top-up = %d, want 150", settled)
	}

	got, err = l.GetCluster(ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Revenues.Peek() != 200 {
		t.Fatalf("revenues = %d, want 200", got.Revenues.Peek())
	}

	// Nothing is stranded: the settled debt is paid and the rest of the
	// deposit is free again.
	withdrawable, err := l.Withdrawable(ctx, "alice", 2*schedule.MsPerMonth)
	if err != nil {
		t.Fatal(err)
	}
	if withdrawable != 9_850 {
		t.Fatalf("withdrawable = %d, want 9850", withdrawable)
	}
	if after := totalValue(t, s); after != before+10_000 {
		t.Fatalf("value leaked: %d -> %d", before+10_000, after)
	}
}

func TestCoveredUntil(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	if err := l.Deposit(ctx, "alice", 100); err != nil {
		t.Fatal(err)
	}

	covered, err := l.CoveredUntil(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if covered != schedule.Forever {
		t.Fatalf("covered = %d, want Forever", covered)
	}

	c, err := l.CreateCluster(ctx, "manager", []string{"p1"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := l.OpenFlow(ctx, "alice", c.ID, 50, 0); err != nil {
		t.Fatal(err)
	}

	covered, err = l.CoveredUntil(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if covered != 2*schedule.MsPerMonth {
		t.Fatalf("covered = %d, want %d", covered, 2*schedule.MsPerMonth)
	}
}

func TestDistributeRevenues(t *testing.T) {
	l, s := newTestLedger(t)
	ctx := context.Background()

	if err := l.SetFeeConfig(ctx, fee.Config{
		NetworkFeeBP:           100,
		NetworkFeeDestination:  "treasury",
		ClusterManagementFeeBP: 200,
	}); err != nil {
		t.Fatal(err)
	}

	c, err := l.CreateCluster(ctx, "manager", []string{"p1", "p2", "p3"})
	if err != nil {
		t.Fatal(err)
	}
	if err := l.Deposit(ctx, "alice", 10_000); err != nil {
		t.Fatal(err)
	}
	f, err := l.OpenFlow(ctx, "alice", c.ID, 10_000, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := l.SettleFlow(ctx, f.ID, schedule.MsPerMonth); err != nil {
		t.Fatal(err)
	}
	before := totalValue(t, s)

	if err := l.DistributeRevenues(ctx, c.ID); err != nil {
		t.Fatal(err)
	}

	// 10000 gross: 100 network, then 198 management off the 9900
	// remainder, then 9702 split three ways.
	wantBalances := map[string]types.Amount{
		"treasury": 100,
		"manager":  198,
		"p1":       3_234,
		"p2":       3_234,
		"p3":       3_234,
	}
	for accountID, want := range wantBalances {
		got, err := l.Balance(ctx, accountID)
		if err != nil {
			t.Fatalf("%s: %v", accountID, err)
		}
		if got != want {
			t.Fatalf("%s balance = %d, want %d", accountID, got, want)
		}
	}

	got, err := l.GetCluster(ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Revenues.Peek() != 0 {
		t.Fatalf("residue = %d, want 0", got.Revenues.Peek())
	}
	if after := totalValue(t, s); after != before {
		t.Fatalf("distribution changed total value: %d -> %d", before, after)
	}
}

func TestDistributeRevenuesResidueStaysInPool(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	c, err := l.CreateCluster(ctx, "manager", []string{"p1", "p2", "p3"})
	if err != nil {
		t.Fatal(err)
	}
	if err := l.Deposit(ctx, "alice", 100); err != nil {
		t.Fatal(err)
	}
	f, err := l.OpenFlow(ctx, "alice", c.ID, 100, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := l.SettleFlow(ctx, f.ID, schedule.MsPerMonth); err != nil {
		t.Fatal(err)
	}

	if err := l.DistributeRevenues(ctx, c.ID); err != nil {
		t.Fatal(err)
	}

	// 100 into three shares of 33 leaves 1 in the pool.
	got, err := l.GetCluster(ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Revenues.Peek() != 1 {
		t.Fatalf("residue = %d, want 1", got.Revenues.Peek())
	}
	for _, p := range []string{"p1", "p2", "p3"} {
		bal, err := l.Balance(ctx, p)
		if err != nil {
			t.Fatal(err)
		}
		if bal != 33 {
			t.Fatalf("%s balance = %d, want 33", p, bal)
		}
	}
}

func TestSettleFlowPersistFailureChargesNothing(t *testing.T) {
	mem := memory.NewStore()
	fs := &flakyStore{Store: mem}
	l := flowledger.New(fs, flowledger.WithLogger(slog.New(slog.DiscardHandler)))
	ctx := context.Background()
	if err := l.Start(ctx); err != nil {
		t.Fatal(err)
	}

	c, err := l.CreateCluster(ctx, "manager", []string{"p1"})
	if err != nil {
		t.Fatal(err)
	}
	if err := l.Deposit(ctx, "alice", 1000); err != nil {
		t.Fatal(err)
	}
	f, err := l.OpenFlow(ctx, "alice", c.ID, 100, 0)
	if err != nil {
		t.Fatal(err)
	}

	fs.failNext = true
	if _, err := l.SettleFlow(ctx, f.ID, schedule.MsPerMonth); !errors.Is(err, errStoreOffline) {
		t.Fatalf("err = %v, want store failure", err)
	}

	// The failed settlement persisted nothing.
	balance, _ := l.Balance(ctx, "alice")
	if balance != 1000 {
		t.Fatalf("balance after failed settle = %d, want 1000", balance)
	}
	got, err := l.GetCluster(ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Revenues.Peek() != 0 {
		t.Fatalf("revenues after failed settle = %d, want 0", got.Revenues.Peek())
	}

	// The retry collects the month exactly once.
	settled, err := l.SettleFlow(ctx, f.ID, schedule.MsPerMonth)
	if err != nil {
		t.Fatal(err)
	}
	if settled != 100 {
		t.Fatalf("retried settle = %d, want 100", settled)
	}
	balance, _ = l.Balance(ctx, "alice")
	if balance != 900 {
		t.Fatalf("balance = %d, want 900", balance)
	}
}

func TestDistributeRevenuesPersistFailureKeepsPool(t *testing.T) {
	mem := memory.NewStore()
	fs := &flakyStore{Store: mem}
	l := flowledger.New(fs, flowledger.WithLogger(slog.New(slog.DiscardHandler)))
	ctx := context.Background()
	if err := l.Start(ctx); err != nil {
		t.Fatal(err)
	}

	c, err := l.CreateCluster(ctx, "manager", []string{"p1", "p2"})
	if err != nil {
		t.Fatal(err)
	}
	if err := l.Deposit(ctx, "alice", 100); err != nil {
		t.Fatal(err)
	}
	f, err := l.OpenFlow(ctx, "alice", c.ID, 100, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := l.SettleFlow(ctx, f.ID, schedule.MsPerMonth); err != nil {
		t.Fatal(err)
	}

	fs.failNext = true
	if err := l.DistributeRevenues(ctx, c.ID); !errors.Is(err, errStoreOffline) {
		t.Fatalf("err = %v, want store failure", err)
	}

	// Pool intact, no provider credited.
	got, err := l.GetCluster(ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Revenues.Peek() != 100 {
		t.Fatalf("pool after failed distribute = %d, want 100", got.Revenues.Peek())
	}

	// The retry pays each provider exactly once.
	if err := l.DistributeRevenues(ctx, c.ID); err != nil {
		t.Fatal(err)
	}
	for _, p := range []string{"p1", "p2"} {
		bal, err := l.Balance(ctx, p)
		if err != nil {
			t.Fatal(err)
		}
		if bal != 50 {
			t.Fatalf("%s balance = %d, want 50", p, bal)
		}
	}
}

func TestRepeatedDistributionResidueStaysBounded(t *testing.T) {
	l, s := newTestLedger(t)
	ctx := context.Background()

	c, err := l.CreateCluster(ctx, "manager", []string{"p1", "p2", "p3"})
	if err != nil {
		t.Fatal(err)
	}
	if err := l.Deposit(ctx, "alice", 10_000); err != nil {
		t.Fatal(err)
	}
	f, err := l.OpenFlow(ctx, "alice", c.ID, 100, 0)
	if err != nil {
		t.Fatal(err)
	}
	before := totalValue(t, s)

	// The residue folds back into the next round's pool instead of
	// compounding: it never reaches the provider count.
	for round := uint64(1); round <= 6; round++ {
		if _, err := l.SettleFlow(ctx, f.ID, round*schedule.MsPerMonth); err != nil {
			t.Fatal(err)
		}
		if err := l.DistributeRevenues(ctx, c.ID); err != nil {
			t.Fatal(err)
		}

		got, err := l.GetCluster(ctx, c.ID)
		if err != nil {
			t.Fatal(err)
		}
		if residue := got.Revenues.Peek(); residue >= 3 {
			t.Fatalf("round %d residue = %d, want < 3", round, residue)
		}
	}
	if after := totalValue(t, s); after != before {
		t.Fatalf("repeated distribution changed total value: %d -> %d", before, after)
	}
}

func TestDistributeRevenuesSkipsZeroShares(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	c, err := l.CreateCluster(ctx, "manager", []string{"p1", "p2", "p3"})
	if err != nil {
		t.Fatal(err)
	}
	if err := l.Deposit(ctx, "alice", 2); err != nil {
		t.Fatal(err)
	}
	f, err := l.OpenFlow(ctx, "alice", c.ID, 2, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := l.SettleFlow(ctx, f.ID, schedule.MsPerMonth); err != nil {
		t.Fatal(err)
	}

	// Two units across three providers: every share floors to zero, so
	// the pool holds and no provider gets an account row.
	if err := l.DistributeRevenues(ctx, c.ID); err != nil {
		t.Fatal(err)
	}

	got, err := l.GetCluster(ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Revenues.Peek() != 2 {
		t.Fatalf("pool = %d, want 2", got.Revenues.Peek())
	}
	for _, p := range []string{"p1", "p2", "p3"} {
		if _, err := l.Balance(ctx, p); !errors.Is(err, flowledger.ErrAccountNotFound) {
			t.Fatalf("%s: err = %v, want ErrAccountNotFound", p, err)
		}
	}
}

func TestExchangeRateAffectsSettlementPricing(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	// 2 stable per native: settling 100 stable costs 50 native.
	if err := l.SetExchangeRate(ctx, 2*currency.Precision); err != nil {
		t.Fatal(err)
	}

	c, err := l.CreateCluster(ctx, "manager", []string{"p1"})
	if err != nil {
		t.Fatal(err)
	}
	if err := l.Deposit(ctx, "alice", 500); err != nil {
		t.Fatal(err)
	}
	f, err := l.OpenFlow(ctx, "alice", c.ID, 100, 0)
	if err != nil {
		t.Fatal(err)
	}

	settled, err := l.SettleFlow(ctx, f.ID, schedule.MsPerMonth)
	if err != nil {
		t.Fatal(err)
	}
	if settled != 100 {
		t.Fatalf("settled = %d stable, want 100", settled)
	}
	balance, _ := l.Balance(ctx, "alice")
	if balance != 450 {
		t.Fatalf("payer balance = %d, want 450", balance)
	}
}

func TestSetExchangeRateRejectsZero(t *testing.T) {
	l, _ := newTestLedger(t)
	if err := l.SetExchangeRate(context.Background(), 0); err == nil {
		t.Fatal("zero rate accepted")
	}
}

func TestSetFeeConfigValidates(t *testing.T) {
	l, _ := newTestLedger(t)
	err := l.SetFeeConfig(context.Background(), fee.Config{NetworkFeeBP: types.BP + 1})
	if !errors.Is(err, fee.ErrInvalidRate) {
		t.Fatalf("err = %v, want ErrInvalidRate", err)
	}
}
