package store

import (
	"context"
	"errors"

	"github.com/xraph/flowledger/account"
	"github.com/xraph/flowledger/cluster"
	"github.com/xraph/flowledger/currency"
	"github.com/xraph/flowledger/fee"
	"github.com/xraph/flowledger/flow"
	"github.com/xraph/flowledger/id"
)

// ErrNotFound is returned by Get methods when the entity does not exist.
// Backends wrap it so callers can test with errors.Is.
var ErrNotFound = errors.New("store: not found")

// ErrAlreadyExists is returned by Create methods when an entity with the
// same identifier is already stored.
var ErrAlreadyExists = errors.New("store: already exists")

// ChangeSet is an ordered group of entity writes persisted as one unit by
// Apply. SQL backends run it in a single transaction. Backends without
// multi-entity transactions write entries in the order they were added, so
// callers order entries to make a partial failure lose value to the ledger
// rather than mint it.
type ChangeSet struct {
	entries []any
}

// PutAccount appends an account write.
func (cs *ChangeSet) PutAccount(a *account.Account) { cs.entries = append(cs.entries, a) }

// PutFlow appends a flow write. Flows are upserted, so a ChangeSet can
// carry a newly created flow.
func (cs *ChangeSet) PutFlow(f *flow.Flow) { cs.entries = append(cs.entries, f) }

// PutCluster appends a cluster write.
func (cs *ChangeSet) PutCluster(c *cluster.Cluster) { cs.entries = append(cs.entries, c) }

// Entries returns the writes in insertion order. Each entry is an
// *account.Account, *flow.Flow or *cluster.Cluster.
func (cs *ChangeSet) Entries() []any { return cs.entries }

// Store is the unified storage interface for all ledger entities.
// Get methods return snapshots; mutations happen on the returned value and
// are persisted with the matching Save call. Backends never hand out
// aliased state.
//
// Monetary amounts are persisted as signed 64-bit integers. Values at or
// above 1<<63 survive the round trip bit-for-bit but render negative in
// backend-native queries; ledgers are expected to stay below that bound.
type Store interface {
	// Account methods
	GetAccount(ctx context.Context, accountID string) (*account.Account, error)
	GetOrCreateAccount(ctx context.Context, accountID string) (*account.Account, error)
	SaveAccount(ctx context.Context, a *account.Account) error
	ListAccounts(ctx context.Context) ([]*account.Account, error)

	// Flow methods
	CreateFlow(ctx context.Context, f *flow.Flow) error
	GetFlow(ctx context.Context, flowID id.FlowID) (*flow.Flow, error)
	SaveFlow(ctx context.Context, f *flow.Flow) error
	ListFlowsByCluster(ctx context.Context, clusterID id.ClusterID) ([]*flow.Flow, error)

	// Cluster methods
	CreateCluster(ctx context.Context, c *cluster.Cluster) error
	GetCluster(ctx context.Context, clusterID id.ClusterID) (*cluster.Cluster, error)
	SaveCluster(ctx context.Context, c *cluster.Cluster) error
	ListClusters(ctx context.Context) ([]*cluster.Cluster, error)

	// Apply persists a multi-entity mutation as one unit.
	Apply(ctx context.Context, set *ChangeSet) error

	// Protocol parameter methods
	GetFeeConfig(ctx context.Context) (fee.Config, error)
	SetFeeConfig(ctx context.Context, cfg fee.Config) error
	GetConverter(ctx context.Context) (currency.Converter, error)
	SetConverter(ctx context.Context, conv currency.Converter) error

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
