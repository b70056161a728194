// Package sqlite provides a SQLite-backed Store using database/sql over the
// pure-Go modernc driver. Suited to embedded and single-node deployments.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/xraph/flowledger/account"
	"github.com/xraph/flowledger/cluster"
	"github.com/xraph/flowledger/currency"
	"github.com/xraph/flowledger/fee"
	"github.com/xraph/flowledger/flow"
	"github.com/xraph/flowledger/id"
	"github.com/xraph/flowledger/schedule"
	"github.com/xraph/flowledger/store"
	"github.com/xraph/flowledger/types"
)

// Store is a SQLite implementation of store.Store.
type Store struct {
	db *sql.DB
}

// NewStore opens the database at path, ":memory:" for an ephemeral one.
func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// The driver is not safe for concurrent writers on one connection.
	db.SetMaxOpenConns(1)
	return &Store{db: db}, nil
}

var _ store.Store = (*Store)(nil)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS fl_accounts (
	id         TEXT PRIMARY KEY,
	deposit    INTEGER NOT NULL DEFAULT 0,
	accrued    INTEGER NOT NULL DEFAULT 0,
	rate       INTEGER NOT NULL DEFAULT 0,
	start_ms   INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS fl_flows (
	id           TEXT PRIMARY KEY,
	from_account TEXT NOT NULL,
	cluster_id   TEXT NOT NULL,
	accrued      INTEGER NOT NULL DEFAULT 0,
	rate         INTEGER NOT NULL DEFAULT 0,
	start_ms     INTEGER NOT NULL DEFAULT 0,
	created_at   TIMESTAMP NOT NULL,
	updated_at   TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS fl_flows_cluster_idx ON fl_flows (cluster_id);

CREATE TABLE IF NOT EXISTS fl_clusters (
	id         TEXT PRIMARY KEY,
	manager_id TEXT NOT NULL,
	providers  TEXT NOT NULL DEFAULT '[]',
	revenues   INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS fl_params (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// Migrate creates the ledger tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *Store) GetAccount(ctx context.Context, accountID string) (*account.Account, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, deposit, accrued, rate, start_ms, created_at, updated_at
		FROM fl_accounts WHERE id = ?`, accountID)
	return scanAccount(row)
}

func (s *Store) GetOrCreateAccount(ctx context.Context, accountID string) (*account.Account, error) {
	a, err := s.GetAccount(ctx, accountID)
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	a = account.New(accountID)
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO fl_accounts (id, deposit, accrued, rate, start_ms, created_at, updated_at)
		VALUES (?, 0, 0, 0, 0, ?, ?)
		ON CONFLICT (id) DO NOTHING`,
		a.ID, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}
	return s.GetAccount(ctx, accountID)
}

func (s *Store) SaveAccount(ctx context.Context, a *account.Account) error {
	return upsertAccount(ctx, s.db, a)
}

// execer covers *sql.DB and *sql.Tx so the upsert helpers serve both the
// single-entity saves and Apply's transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertAccount(ctx context.Context, ex execer, a *account.Account) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO fl_accounts (id, deposit, accrued, rate, start_ms, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			deposit = excluded.deposit,
			accrued = excluded.accrued,
			rate = excluded.rate,
			start_ms = excluded.start_ms,
			updated_at = excluded.updated_at`,
		a.ID, int64(a.Deposit.Peek()), int64(a.Accrued),
		int64(a.PayableSchedule.Rate), int64(a.PayableSchedule.StartMs),
		a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save account: %w", err)
	}
	return nil
}

func upsertFlow(ctx context.Context, ex execer, f *flow.Flow) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO fl_flows (id, from_account, cluster_id, accrued, rate, start_ms, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			accrued = excluded.accrued,
			rate = excluded.rate,
			start_ms = excluded.start_ms,
			updated_at = excluded.updated_at`,
		f.ID.String(), f.From, f.ClusterID.String(), int64(f.Accrued),
		int64(f.Schedule.Rate), int64(f.Schedule.StartMs),
		f.CreatedAt, f.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save flow: %w", err)
	}
	return nil
}

func upsertCluster(ctx context.Context, ex execer, c *cluster.Cluster) error {
	providers, err := json.Marshal(c.Providers)
	if err != nil {
		return fmt.Errorf("marshal providers: %w", err)
	}
	_, err = ex.ExecContext(ctx, `
		INSERT INTO fl_clusters (id, manager_id, providers, revenues, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			manager_id = excluded.manager_id,
			providers = excluded.providers,
			revenues = excluded.revenues,
			updated_at = excluded.updated_at`,
		c.ID.String(), c.ManagerID, string(providers), int64(c.Revenues.Peek()),
		c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save cluster: %w", err)
	}
	return nil
}

// Apply runs the change set in a single transaction.
func (s *Store) Apply(ctx context.Context, set *store.ChangeSet) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("apply: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	for _, entry := range set.Entries() {
		switch e := entry.(type) {
		case *account.Account:
			err = upsertAccount(ctx, tx, e)
		case *flow.Flow:
			err = upsertFlow(ctx, tx, e)
		case *cluster.Cluster:
			err = upsertCluster(ctx, tx, e)
		default:
			err = fmt.Errorf("apply: unknown entry type %T", entry)
		}
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) ListAccounts(ctx context.Context) ([]*account.Account, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, deposit, accrued, rate, start_ms, created_at, updated_at
		FROM fl_accounts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var out []*account.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) CreateFlow(ctx context.Context, f *flow.Flow) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO fl_flows (id, from_account, cluster_id, accrued, rate, start_ms, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`,
		f.ID.String(), f.From, f.ClusterID.String(), int64(f.Accrued),
		int64(f.Schedule.Rate), int64(f.Schedule.StartMs),
		f.CreatedAt, f.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create flow: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("flow %s: %w", f.ID, store.ErrAlreadyExists)
	}
	return nil
}

func (s *Store) GetFlow(ctx context.Context, flowID id.FlowID) (*flow.Flow, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, from_account, cluster_id, accrued, rate, start_ms, created_at, updated_at
		FROM fl_flows WHERE id = ?`, flowID.String())
	return scanFlow(row)
}

func (s *Store) SaveFlow(ctx context.Context, f *flow.Flow) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE fl_flows SET accrued = ?, rate = ?, start_ms = ?, updated_at = ?
		WHERE id = ?`,
		int64(f.Accrued), int64(f.Schedule.Rate), int64(f.Schedule.StartMs),
		f.UpdatedAt, f.ID.String())
	if err != nil {
		return fmt.Errorf("save flow: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("flow %s: %w", f.ID, store.ErrNotFound)
	}
	return nil
}

func (s *Store) ListFlowsByCluster(ctx context.Context, clusterID id.ClusterID) ([]*flow.Flow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, from_account, cluster_id, accrued, rate, start_ms, created_at, updated_at
		FROM fl_flows WHERE cluster_id = ? ORDER BY created_at`, clusterID.String())
	if err != nil {
		return nil, fmt.Errorf("list flows: %w", err)
	}
	defer rows.Close()

	var out []*flow.Flow
	for rows.Next() {
		f, err := scanFlow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *Store) CreateCluster(ctx context.Context, c *cluster.Cluster) error {
	providers, err := json.Marshal(c.Providers)
	if err != nil {
		return fmt.Errorf("marshal providers: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO fl_clusters (id, manager_id, providers, revenues, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`,
		c.ID.String(), c.ManagerID, string(providers), int64(c.Revenues.Peek()),
		c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create cluster: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("cluster %s: %w", c.ID, store.ErrAlreadyExists)
	}
	return nil
}

func (s *Store) GetCluster(ctx context.Context, clusterID id.ClusterID) (*cluster.Cluster, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, manager_id, providers, revenues, created_at, updated_at
		FROM fl_clusters WHERE id = ?`, clusterID.String())
	return scanCluster(row)
}

func (s *Store) SaveCluster(ctx context.Context, c *cluster.Cluster) error {
	providers, err := json.Marshal(c.Providers)
	if err != nil {
		return fmt.Errorf("marshal providers: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE fl_clusters SET manager_id = ?, providers = ?, revenues = ?, updated_at = ?
		WHERE id = ?`,
		c.ManagerID, string(providers), int64(c.Revenues.Peek()), c.UpdatedAt, c.ID.String())
	if err != nil {
		return fmt.Errorf("save cluster: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("cluster %s: %w", c.ID, store.ErrNotFound)
	}
	return nil
}

func (s *Store) ListClusters(ctx context.Context) ([]*cluster.Cluster, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, manager_id, providers, revenues, created_at, updated_at
		FROM fl_clusters ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list clusters: %w", err)
	}
	defer rows.Close()

	var out []*cluster.Cluster
	for rows.Next() {
		c, err := scanCluster(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

const (
	paramFeeConfig = "fee_config"
	paramConverter = "converter"
)

func (s *Store) GetFeeConfig(ctx context.Context) (fee.Config, error) {
	var cfg fee.Config
	if err := s.getParam(ctx, paramFeeConfig, &cfg); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fee.DefaultConfig(), nil
		}
		return fee.Config{}, err
	}
	return cfg, nil
}

func (s *Store) SetFeeConfig(ctx context.Context, cfg fee.Config) error {
	return s.setParam(ctx, paramFeeConfig, cfg)
}

func (s *Store) GetConverter(ctx context.Context) (currency.Converter, error) {
	var conv currency.Converter
	if err := s.getParam(ctx, paramConverter, &conv); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return currency.NewConverter(), nil
		}
		return currency.Converter{}, err
	}
	return conv, nil
}

func (s *Store) SetConverter(ctx context.Context, conv currency.Converter) error {
	return s.setParam(ctx, paramConverter, conv)
}

func (s *Store) getParam(ctx context.Context, key string, v any) error {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM fl_params WHERE key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("param %s: %w", key, store.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("get param %s: %w", key, err)
	}
	return json.Unmarshal([]byte(raw), v)
}

func (s *Store) setParam(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal param %s: %w", key, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO fl_params (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value`, key, string(raw))
	if err != nil {
		return fmt.Errorf("set param %s: %w", key, err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(row scanner) (*account.Account, error) {
	var a account.Account
	var deposit, accrued, rate, startMs int64
	err := row.Scan(&a.ID, &deposit, &accrued, &rate, &startMs, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account: %w", store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan account: %w", err)
	}
	a.Deposit = types.NewCash(types.Amount(deposit))
	a.Accrued = types.Amount(accrued)
	a.PayableSchedule = schedule.New(uint64(startMs), types.Amount(rate))
	return &a, nil
}

func scanFlow(row scanner) (*flow.Flow, error) {
	var f flow.Flow
	var rawID, rawCluster string
	var accrued, rate, startMs int64
	err := row.Scan(&rawID, &f.From, &rawCluster, &accrued, &rate, &startMs, &f.CreatedAt, &f.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("flow: %w", store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan flow: %w", err)
	}
	f.ID, err = id.ParseWithPrefix(rawID, id.PrefixFlow)
	if err != nil {
		return nil, fmt.Errorf("scan flow id: %w", err)
	}
	f.ClusterID, err = id.ParseWithPrefix(rawCluster, id.PrefixCluster)
	if err != nil {
		return nil, fmt.Errorf("scan flow cluster id: %w", err)
	}
	f.Accrued = types.Amount(accrued)
	f.Schedule = schedule.New(uint64(startMs), types.Amount(rate))
	return &f, nil
}

func scanCluster(row scanner) (*cluster.Cluster, error) {
	var c cluster.Cluster
	var rawID, providers string
	var revenues int64
	err := row.Scan(&rawID, &c.ManagerID, &providers, &revenues, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("cluster: %w", store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan cluster: %w", err)
	}
	c.ID, err = id.ParseWithPrefix(rawID, id.PrefixCluster)
	if err != nil {
		return nil, fmt.Errorf("scan cluster id: %w", err)
	}
	if err := json.Unmarshal([]byte(providers), &c.Providers); err != nil {
		return nil, fmt.Errorf("scan cluster providers: %w", err)
	}
	c.Revenues = types.NewCash(types.Amount(revenues))
	return &c, nil
}
