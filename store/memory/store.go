// Package memory provides an in-memory Store for tests and embedded use.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/xraph/flowledger/account"
	"github.com/xraph/flowledger/cluster"
	"github.com/xraph/flowledger/currency"
	"github.com/xraph/flowledger/fee"
	"github.com/xraph/flowledger/flow"
	"github.com/xraph/flowledger/id"
	"github.com/xraph/flowledger/store"
)

// Store is an in-memory implementation of store.Store. All methods copy on
// the way in and out, so callers can mutate returned values freely.
type Store struct {
	mu        sync.RWMutex
	accounts  map[string]*account.Account
	flows     map[id.FlowID]*flow.Flow
	clusters  map[id.ClusterID]*cluster.Cluster
	feeConfig fee.Config
	converter currency.Converter
}

// NewStore creates an empty in-memory store with a 1:1 exchange rate and
// zero fees.
func NewStore() *Store {
	return &Store{
		accounts:  make(map[string]*account.Account),
		flows:     make(map[id.FlowID]*flow.Flow),
		clusters:  make(map[id.ClusterID]*cluster.Cluster),
		feeConfig: fee.DefaultConfig(),
		converter: currency.NewConverter(),
	}
}

var _ store.Store = (*Store)(nil)

func copyAccount(a *account.Account) *account.Account {
	cp := *a
	return &cp
}

func copyFlow(f *flow.Flow) *flow.Flow {
	cp := *f
	return &cp
}

func copyCluster(c *cluster.Cluster) *cluster.Cluster {
	cp := *c
	cp.Providers = append([]string(nil), c.Providers...)
	return &cp
}

func (s *Store) GetAccount(_ context.Context, accountID string) (*account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[accountID]
	if !ok {
		return nil, fmt.Errorf("account %s: %w", accountID, store.ErrNotFound)
	}
	return copyAccount(a), nil
}

func (s *Store) GetOrCreateAccount(_ context.Context, accountID string) (*account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[accountID]
	if !ok {
		a = account.New(accountID)
		s.accounts[accountID] = copyAccount(a)
	}
	return copyAccount(a), nil
}

func (s *Store) SaveAccount(_ context.Context, a *account.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.accounts[a.ID] = copyAccount(a)
	return nil
}

func (s *Store) ListAccounts(_ context.Context) ([]*account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*account.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, copyAccount(a))
	}
	return out, nil
}

func (s *Store) CreateFlow(_ context.Context, f *flow.Flow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.flows[f.ID]; ok {
		return fmt.Errorf("flow %s: %w", f.ID, store.ErrAlreadyExists)
	}
	s.flows[f.ID] = copyFlow(f)
	return nil
}

func (s *Store) GetFlow(_ context.Context, flowID id.FlowID) (*flow.Flow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.flows[flowID]
	if !ok {
		return nil, fmt.Errorf("flow %s: %w", flowID, store.ErrNotFound)
	}
	return copyFlow(f), nil
}

func (s *Store) SaveFlow(_ context.Context, f *flow.Flow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.flows[f.ID]; !ok {
		return fmt.Errorf("flow %s: %w", f.ID, store.ErrNotFound)
	}
	s.flows[f.ID] = copyFlow(f)
	return nil
}

func (s *Store) ListFlowsByCluster(_ context.Context, clusterID id.ClusterID) ([]*flow.Flow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*flow.Flow
	for _, f := range s.flows {
		if f.ClusterID == clusterID {
			out = append(out, copyFlow(f))
		}
	}
	return out, nil
}

func (s *Store) CreateCluster(_ context.Context, c *cluster.Cluster) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.clusters[c.ID]; ok {
		return fmt.Errorf("cluster %s: %w", c.ID, store.ErrAlreadyExists)
	}
	s.clusters[c.ID] = copyCluster(c)
	return nil
}

func (s *Store) GetCluster(_ context.Context, clusterID id.ClusterID) (*cluster.Cluster, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.clusters[clusterID]
	if !ok {
		return nil, fmt.Errorf("cluster %s: %w", clusterID, store.ErrNotFound)
	}
	return copyCluster(c), nil
}

func (s *Store) SaveCluster(_ context.Context, c *cluster.Cluster) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.clusters[c.ID]; !ok {
		return fmt.Errorf("cluster %s: %w", c.ID, store.ErrNotFound)
	}
	s.clusters[c.ID] = copyCluster(c)
	return nil
}

func (s *Store) ListClusters(_ context.Context) ([]*cluster.Cluster, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*cluster.Cluster, 0, len(s.clusters))
	for _, c := range s.clusters {
		out = append(out, copyCluster(c))
	}
	return out, nil
}

// Apply writes every entry under one lock, so readers never observe a
// partially applied mutation.
func (s *Store) Apply(_ context.Context, set *store.ChangeSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, entry := range set.Entries() {
		switch e := entry.(type) {
		case *account.Account:
			s.accounts[e.ID] = copyAccount(e)
		case *flow.Flow:
			s.flows[e.ID] = copyFlow(e)
		case *cluster.Cluster:
			s.clusters[e.ID] = copyCluster(e)
		default:
			return fmt.Errorf("apply: unknown entry type %T", entry)
		}
	}
	return nil
}

func (s *Store) GetFeeConfig(_ context.Context) (fee.Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.feeConfig, nil
}

func (s *Store) SetFeeConfig(_ context.Context, cfg fee.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feeConfig = cfg
	return nil
}

func (s *Store) GetConverter(_ context.Context) (currency.Converter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.converter, nil
}

func (s *Store) SetConverter(_ context.Context, conv currency.Converter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.converter = conv
	return nil
}

func (s *Store) Migrate(_ context.Context) error { return nil }

func (s *Store) Ping(_ context.Context) error { return nil }

func (s *Store) Close() error { return nil }
