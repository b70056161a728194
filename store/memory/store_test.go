package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/xraph/flowledger/cluster"
	"github.com/xraph/flowledger/currency"
	"github.com/xraph/flowledger/fee"
	"github.com/xraph/flowledger/flow"
	"github.com/xraph/flowledger/id"
	"github.com/xraph/flowledger/store"
	"github.com/xraph/flowledger/types"
)

func TestGetOrCreateAccount(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	a, err := s.GetOrCreateAccount(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if a.ID != "alice" {
		t.Fatalf("id = %q, want alice", a.ID)
	}

	again, err := s.GetOrCreateAccount(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if again.CreatedAt != a.CreatedAt {
		t.Fatal("second call created a new account")
	}
}

func TestGetAccountNotFound(t *testing.T) {
	s := NewStore()
	_, err := s.GetAccount(context.Background(), "nobody")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestAccountSnapshotIsolation(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	a, err := s.GetOrCreateAccount(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}

	// Mutating the returned snapshot must not leak into the store until
	// Save.
	cash := types.NewCash(100)
	a.Credit(&cash)

	stored, err := s.GetAccount(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if got := stored.Deposit.Peek(); got != 0 {
		t.Fatalf("unsaved mutation leaked: deposit = %d", got)
	}

	if err := s.SaveAccount(ctx, a); err != nil {
		t.Fatal(err)
	}
	stored, err = s.GetAccount(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if got := stored.Deposit.Peek(); got != 100 {
		t.Fatalf("deposit = %d, want 100", got)
	}
}

func TestFlowLifecycle(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	clusterID := id.NewClusterID()
	f := flow.New(id.NewFlowID(), "alice", clusterID, 0, 10)
	if err := s.CreateFlow(ctx, f); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateFlow(ctx, f); !errors.Is(err, store.ErrAlreadyExists) {
		t.Fatalf("duplicate create: err = %v, want ErrAlreadyExists", err)
	}

	got, err := s.GetFlow(ctx, f.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Schedule.Rate != 10 {
		t.Fatalf("rate = %d, want 10", got.Schedule.Rate)
	}

	byCluster, err := s.ListFlowsByCluster(ctx, clusterID)
	if err != nil {
		t.Fatal(err)
	}
	if len(byCluster) != 1 {
		t.Fatalf("flows = %d, want 1", len(byCluster))
	}

	if err := s.SaveFlow(ctx, flow.New(id.NewFlowID(), "x", clusterID, 0, 1)); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("save of unknown flow: err = %v, want ErrNotFound", err)
	}
}

func TestClusterProvidersCopied(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	providers := []string{"p1", "p2"}
	c := cluster.New(id.NewClusterID(), "manager", providers)
	if err := s.CreateCluster(ctx, c); err != nil {
		t.Fatal(err)
	}

	providers[0] = "mutated"
	got, err := s.GetCluster(ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Providers[0] != "p1" {
		t.Fatal("provider slice aliased into the store")
	}

	if err := s.CreateCluster(ctx, c); !errors.Is(err, store.ErrAlreadyExists) {
		t.Fatalf("duplicate create: err = %v, want ErrAlreadyExists", err)
	}
}

func TestApplyWritesAllEntries(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	a, err := s.GetOrCreateAccount(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	clusterID := id.NewClusterID()
	c := cluster.New(clusterID, "manager", []string{"p1"})
	if err := s.CreateCluster(ctx, c); err != nil {
		t.Fatal(err)
	}
	f := flow.New(id.NewFlowID(), "alice", clusterID, 0, 10)
	if err := s.CreateFlow(ctx, f); err != nil {
		t.Fatal(err)
	}

	cash := types.NewCash(40)
	a.Credit(&cash)
	f.Schedule.StartMs = 99
	pool := types.NewCash(40)
	c.PutRevenue(&pool)

	var set store.ChangeSet
	set.PutFlow(f)
	set.PutAccount(a)
	set.PutCluster(c)
	if err := s.Apply(ctx, &set); err != nil {
		t.Fatal(err)
	}

	gotA, err := s.GetAccount(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if gotA.Deposit.Peek() != 40 {
		t.Fatalf("deposit = %d, want 40", gotA.Deposit.Peek())
	}
	gotF, err := s.GetFlow(ctx, f.ID)
	if err != nil {
		t.Fatal(err)
	}
	if gotF.Schedule.StartMs != 99 {
		t.Fatalf("flow start = %d, want 99", gotF.Schedule.StartMs)
	}
	gotC, err := s.GetCluster(ctx, clusterID)
	if err != nil {
		t.Fatal(err)
	}
	if gotC.Revenues.Peek() != 40 {
		t.Fatalf("revenues = %d, want 40", gotC.Revenues.Peek())
	}
}

func TestParams(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	cfg, err := s.GetFeeConfig(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if cfg != fee.DefaultConfig() {
		t.Fatalf("default fee config = %+v", cfg)
	}

	want := fee.Config{NetworkFeeBP: 100, NetworkFeeDestination: "treasury", ClusterManagementFeeBP: 200}
	if err := s.SetFeeConfig(ctx, want); err != nil {
		t.Fatal(err)
	}
	cfg, err = s.GetFeeConfig(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if cfg != want {
		t.Fatalf("fee config = %+v, want %+v", cfg, want)
	}

	conv, err := s.GetConverter(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if conv.StablePerNative != currency.Precision {
		t.Fatalf("default rate = %d, want identity", conv.StablePerNative)
	}
}
