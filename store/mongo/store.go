// Package mongo provides a MongoDB-backed Store using the official driver.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

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

const (
	collAccounts = "fl_accounts"
	collFlows    = "fl_flows"
	collClusters = "fl_clusters"
	collParams   = "fl_params"
)

// Store is a MongoDB implementation of store.Store.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewStore connects to the given URI and uses the named database.
func NewStore(uri, database string) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	return &Store{client: client, db: client.Database(database)}, nil
}

// NewStoreFromClient wraps an existing client.
func NewStoreFromClient(client *mongo.Client, database string) *Store {
	return &Store{client: client, db: client.Database(database)}
}

var _ store.Store = (*Store)(nil)

type accountDoc struct {
	ID        string    `bson:"_id"`
	Deposit   int64     `bson:"deposit"`
	Accrued   int64     `bson:"accrued"`
	Rate      int64     `bson:"rate"`
	StartMs   int64     `bson:"start_ms"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

type flowDoc struct {
	ID        string    `bson:"_id"`
	From      string    `bson:"from_account"`
	ClusterID string    `bson:"cluster_id"`
	Accrued   int64     `bson:"accrued"`
	Rate      int64     `bson:"rate"`
	StartMs   int64     `bson:"start_ms"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

type clusterDoc struct {
	ID        string    `bson:"_id"`
	ManagerID string    `bson:"manager_id"`
	Providers []string  `bson:"providers"`
	Revenues  int64     `bson:"revenues"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

type paramDoc struct {
	Key   string `bson:"_id"`
	Value []byte `bson:"value"`
}

func toAccountDoc(a *account.Account) accountDoc {
	return accountDoc{
		ID:        a.ID,
		Deposit:   int64(a.Deposit.Peek()),
		Accrued:   int64(a.Accrued),
		Rate:      int64(a.PayableSchedule.Rate),
		StartMs:   int64(a.PayableSchedule.StartMs),
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

func fromAccountDoc(d accountDoc) *account.Account {
	a := &account.Account{
		ID:              d.ID,
		Deposit:         types.NewCash(types.Amount(d.Deposit)),
		Accrued:         types.Amount(d.Accrued),
		PayableSchedule: schedule.New(uint64(d.StartMs), types.Amount(d.Rate)),
	}
	a.CreatedAt = d.CreatedAt
	a.UpdatedAt = d.UpdatedAt
	return a
}

func toFlowDoc(f *flow.Flow) flowDoc {
	return flowDoc{
		ID:        f.ID.String(),
		From:      f.From,
		ClusterID: f.ClusterID.String(),
		Accrued:   int64(f.Accrued),
		Rate:      int64(f.Schedule.Rate),
		StartMs:   int64(f.Schedule.StartMs),
		CreatedAt: f.CreatedAt,
		UpdatedAt: f.UpdatedAt,
	}
}

func fromFlowDoc(d flowDoc) (*flow.Flow, error) {
	flowID, err := id.ParseWithPrefix(d.ID, id.PrefixFlow)
	if err != nil {
		return nil, fmt.Errorf("flow id: %w", err)
	}
	clusterID, err := id.ParseWithPrefix(d.ClusterID, id.PrefixCluster)
	if err != nil {
		return nil, fmt.Errorf("flow cluster id: %w", err)
	}
	f := &flow.Flow{
		ID:        flowID,
		From:      d.From,
		ClusterID: clusterID,
		Accrued:   types.Amount(d.Accrued),
		Schedule:  schedule.New(uint64(d.StartMs), types.Amount(d.Rate)),
	}
	f.CreatedAt = d.CreatedAt
	f.UpdatedAt = d.UpdatedAt
	return f, nil
}

func toClusterDoc(c *cluster.Cluster) clusterDoc {
	return clusterDoc{
		ID:        c.ID.String(),
		ManagerID: c.ManagerID,
		Providers: c.Providers,
		Revenues:  int64(c.Revenues.Peek()),
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

func fromClusterDoc(d clusterDoc) (*cluster.Cluster, error) {
	clusterID, err := id.ParseWithPrefix(d.ID, id.PrefixCluster)
	if err != nil {
		return nil, fmt.Errorf("cluster id: %w", err)
	}
	c := &cluster.Cluster{
		ID:        clusterID,
		ManagerID: d.ManagerID,
		Providers: d.Providers,
		Revenues:  types.NewCash(types.Amount(d.Revenues)),
	}
	c.CreatedAt = d.CreatedAt
	c.UpdatedAt = d.UpdatedAt
	return c, nil
}

func (s *Store) GetAccount(ctx context.Context, accountID string) (*account.Account, error) {
	var d accountDoc
	err := s.db.Collection(collAccounts).FindOne(ctx, bson.M{"_id": accountID}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("account %s: %w", accountID, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return fromAccountDoc(d), nil
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
	_, err = s.db.Collection(collAccounts).UpdateOne(ctx,
		bson.M{"_id": accountID},
		bson.M{"$setOnInsert": toAccountDoc(a)},
		options.UpdateOne().SetUpsert(true))
	if err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}
	return s.GetAccount(ctx, accountID)
}

func (s *Store) SaveAccount(ctx context.Context, a *account.Account) error {
	_, err := s.db.Collection(collAccounts).ReplaceOne(ctx,
		bson.M{"_id": a.ID}, toAccountDoc(a),
		options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save account: %w", err)
	}
	return nil
}

func (s *Store) ListAccounts(ctx context.Context) ([]*account.Account, error) {
	cur, err := s.db.Collection(collAccounts).Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer cur.Close(ctx)

	var out []*account.Account
	for cur.Next(ctx) {
		var d accountDoc
		if err := cur.Decode(&d); err != nil {
			return nil, fmt.Errorf("decode account: %w", err)
		}
		out = append(out, fromAccountDoc(d))
	}
	return out, cur.Err()
}

func (s *Store) CreateFlow(ctx context.Context, f *flow.Flow) error {
	_, err := s.db.Collection(collFlows).InsertOne(ctx, toFlowDoc(f))
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("flow %s: %w", f.ID, store.ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("create flow: %w", err)
	}
	return nil
}

func (s *Store) GetFlow(ctx context.Context, flowID id.FlowID) (*flow.Flow, error) {
	var d flowDoc
	err := s.db.Collection(collFlows).FindOne(ctx, bson.M{"_id": flowID.String()}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("flow %s: %w", flowID, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get flow: %w", err)
	}
	return fromFlowDoc(d)
}

func (s *Store) SaveFlow(ctx context.Context, f *flow.Flow) error {
	res, err := s.db.Collection(collFlows).ReplaceOne(ctx,
		bson.M{"_id": f.ID.String()}, toFlowDoc(f))
	if err != nil {
		return fmt.Errorf("save flow: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("flow %s: %w", f.ID, store.ErrNotFound)
	}
	return nil
}

func (s *Store) ListFlowsByCluster(ctx context.Context, clusterID id.ClusterID) ([]*flow.Flow, error) {
	cur, err := s.db.Collection(collFlows).Find(ctx, bson.M{"cluster_id": clusterID.String()})
	if err != nil {
		return nil, fmt.Errorf("list flows: %w", err)
	}
	defer cur.Close(ctx)

	var out []*flow.Flow
	for cur.Next(ctx) {
		var d flowDoc
		if err := cur.Decode(&d); err != nil {
			return nil, fmt.Errorf("decode flow: %w", err)
		}
		f, err := fromFlowDoc(d)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, cur.Err()
}

func (s *Store) CreateCluster(ctx context.Context, c *cluster.Cluster) error {
	_, err := s.db.Collection(collClusters).InsertOne(ctx, toClusterDoc(c))
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("cluster %s: %w", c.ID, store.ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("create cluster: %w", err)
	}
	return nil
}

func (s *Store) GetCluster(ctx context.Context, clusterID id.ClusterID) (*cluster.Cluster, error) {
	var d clusterDoc
	err := s.db.Collection(collClusters).FindOne(ctx, bson.M{"_id": clusterID.String()}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("cluster %s: %w", clusterID, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get cluster: %w", err)
	}
	return fromClusterDoc(d)
}

func (s *Store) SaveCluster(ctx context.Context, c *cluster.Cluster) error {
	res, err := s.db.Collection(collClusters).ReplaceOne(ctx,
		bson.M{"_id": c.ID.String()}, toClusterDoc(c))
	if err != nil {
		return fmt.Errorf("save cluster: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("cluster %s: %w", c.ID, store.ErrNotFound)
	}
	return nil
}

func (s *Store) ListClusters(ctx context.Context) ([]*cluster.Cluster, error) {
	cur, err := s.db.Collection(collClusters).Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("list clusters: %w", err)
	}
	defer cur.Close(ctx)

	var out []*cluster.Cluster
	for cur.Next(ctx) {
		var d clusterDoc
		if err := cur.Decode(&d); err != nil {
			return nil, fmt.Errorf("decode cluster: %w", err)
		}
		c, err := fromClusterDoc(d)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, cur.Err()
}

// Apply upserts the entries one by one in caller order. Multi-document
// transactions require a replica set, so a standalone deployment gets
// ordered writes instead: a failure mid-way leaves the entries before it
// applied and everything after it untouched.
func (s *Store) Apply(ctx context.Context, set *store.ChangeSet) error {
	for _, e := range set.Entries() {
		switch v := e.(type) {
		case *account.Account:
			if err := s.SaveAccount(ctx, v); err != nil {
				return err
			}
		case *flow.Flow:
			_, err := s.db.Collection(collFlows).ReplaceOne(ctx,
				bson.M{"_id": v.ID.String()}, toFlowDoc(v),
				options.Replace().SetUpsert(true))
			if err != nil {
				return fmt.Errorf("apply flow: %w", err)
			}
		case *cluster.Cluster:
			_, err := s.db.Collection(collClusters).ReplaceOne(ctx,
				bson.M{"_id": v.ID.String()}, toClusterDoc(v),
				options.Replace().SetUpsert(true))
			if err != nil {
				return fmt.Errorf("apply cluster: %w", err)
			}
		default:
			return fmt.Errorf("apply: unsupported entry %T", e)
		}
	}
	return nil
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
	var d paramDoc
	err := s.db.Collection(collParams).FindOne(ctx, bson.M{"_id": key}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("param %s: %w", key, store.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("get param %s: %w", key, err)
	}
	return bson.UnmarshalExtJSON(d.Value, false, v)
}

func (s *Store) setParam(ctx context.Context, key string, v any) error {
	raw, err := bson.MarshalExtJSON(v, false, false)
	if err != nil {
		return fmt.Errorf("marshal param %s: %w", key, err)
	}
	_, err = s.db.Collection(collParams).ReplaceOne(ctx,
		bson.M{"_id": key}, paramDoc{Key: key, Value: raw},
		options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("set param %s: %w", key, err)
	}
	return nil
}

// Migrate creates the index on flow cluster lookups.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.Collection(collFlows).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "cluster_id", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *Store) Close() error {
	return s.client.Disconnect(context.Background())
}
