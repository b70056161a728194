package flowledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/xraph/flowledger/account"
	"github.com/xraph/flowledger/cluster"
	"github.com/xraph/flowledger/currency"
	"github.com/xraph/flowledger/fee"
	"github.com/xraph/flowledger/flow"
	"github.com/xraph/flowledger/id"
	"github.com/xraph/flowledger/plugin"
	"github.com/xraph/flowledger/schedule"
	"github.com/xraph/flowledger/store"
	"github.com/xraph/flowledger/types"
)

// TransferFunc moves native tokens out of the ledger to an external
// destination. The ledger calls it after its own books balance; a returned
// error aborts the operation and no state is persisted.
type TransferFunc func(ctx context.Context, to string, amount types.Amount) error

// Ledger is the payment-streaming engine. All timestamps are caller
// supplied milliseconds, so the engine itself never reads the clock and
// replays deterministically.
type Ledger struct {
	store    store.Store
	plugins  *plugin.Registry
	logger   *slog.Logger
	transfer TransferFunc

	// Serializes read-modify-write cycles against the store.
	mu sync.Mutex
}

// New creates a new Ledger instance.
func New(s store.Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:   s,
		plugins: plugin.NewRegistry(),
		logger:  slog.Default(),
		transfer: func(ctx context.Context, to string, amount types.Amount) error {
			return nil
		},
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Option configures a Ledger instance.
type Option func(*Ledger)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
		l.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(l *Ledger) {
		_ = l.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithTransferFunc sets the outbound native token transfer hook.
func WithTransferFunc(fn TransferFunc) Option {
	return func(l *Ledger) {
		l.transfer = fn
	}
}

// Start migrates the store and initializes plugins.
func (l *Ledger) Start(ctx context.Context) error {
	if err := l.store.Migrate(ctx); err != nil {
		return err
	}

	l.plugins.EmitInit(ctx, l)
	l.logger.Info("flowledger started")
	return nil
}

// Stop shuts down the Ledger.
func (l *Ledger) Stop() error {
	ctx := context.Background()
	l.plugins.EmitShutdown(ctx)
	return l.store.Close()
}

// ──────────────────────────────────────────────────
// Balance Management
// ──────────────────────────────────────────────────

// Deposit credits received native tokens to an account, creating it on
// first use. Deposits cannot fail for balance reasons.
func (l *Ledger) Deposit(ctx context.Context, accountID string, amount types.Amount) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	a, err := l.store.GetOrCreateAccount(ctx, accountID)
	if err != nil {
		return err
	}

	cash := types.NewCash(amount)
	a.Credit(&cash)

	if err := l.store.SaveAccount(ctx, a); err != nil {
		return err
	}

	l.plugins.EmitDeposit(ctx, accountID, amount)
	l.logger.Debug("deposit", "account", accountID, "amount", amount)
	return nil
}

// Withdraw sends amount back to the account owner, leaving enough deposit
// to cover every obligation accrued up to nowMs.
func (l *Ledger) Withdraw(ctx context.Context, accountID string, amount types.Amount, nowMs uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	a, err := l.getAccount(ctx, accountID)
	if err != nil {
		return err
	}
	conv, err := l.store.GetConverter(ctx)
	if err != nil {
		return err
	}

	payable, _ := types.BorrowPayableCash(amount)
	if err := a.Withdraw(nowMs, conv, payable); err != nil {
		return err
	}

	if err := l.transfer(ctx, accountID, amount); err != nil {
		return fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}
	if err := l.store.SaveAccount(ctx, a); err != nil {
		return err
	}

	l.plugins.EmitWithdraw(ctx, accountID, amount)
	l.logger.Debug("withdraw", "account", accountID, "amount", amount)
	return nil
}

// Transfer moves amount between two ledger accounts. The sender's locked
// obligations stay covered; the receiver is created on first use.
func (l *Ledger) Transfer(ctx context.Context, fromID, toID string, amount types.Amount, nowMs uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	from, err := l.getAccount(ctx, fromID)
	if err != nil {
		return err
	}
	to, err := l.store.GetOrCreateAccount(ctx, toID)
	if err != nil {
		return err
	}
	conv, err := l.store.GetConverter(ctx)
	if err != nil {
		return err
	}

	payable, cash := types.BorrowPayableCash(amount)
	if err := from.Withdraw(nowMs, conv, payable); err != nil {
		return err
	}
	to.Credit(&cash)

	if err := l.store.SaveAccount(ctx, from); err != nil {
		return err
	}
	if err := l.store.SaveAccount(ctx, to); err != nil {
		return err
	}

	l.plugins.EmitTransfer(ctx, fromID, toID, amount)
	return nil
}

// Balance returns the account's gross deposit.
func (l *Ledger) Balance(ctx context.Context, accountID string) (types.Amount, error) {
	a, err := l.getAccount(ctx, accountID)
	if err != nil {
		return 0, err
	}
	return a.Deposit.Peek(), nil
}

// Withdrawable returns the native amount the account can withdraw at nowMs
// without breaking coverage of its obligations.
func (l *Ledger) Withdrawable(ctx context.Context, accountID string, nowMs uint64) (types.Amount, error) {
	a, err := l.getAccount(ctx, accountID)
	if err != nil {
		return 0, err
	}
	conv, err := l.store.GetConverter(ctx)
	if err != nil {
		return 0, err
	}
	return a.Withdrawable(nowMs, conv)
}

// CoveredUntil returns the timestamp at which the account's deposit stops
// covering its obligations, schedule.Forever when nothing is streaming.
func (l *Ledger) CoveredUntil(ctx context.Context, accountID string) (uint64, error) {
	a, err := l.getAccount(ctx, accountID)
	if err != nil {
		return 0, err
	}
	conv, err := l.store.GetConverter(ctx)
	if err != nil {
		return 0, err
	}
	return a.CoveredUntil(conv), nil
}

// ──────────────────────────────────────────────────
// Cluster Management
// ──────────────────────────────────────────────────

// CreateCluster registers a provider group under a manager.
func (l *Ledger) CreateCluster(ctx context.Context, managerID string, providers []string) (*cluster.Cluster, error) {
	if managerID == "" {
		return nil, fmt.Errorf("%w: empty manager id", ErrInvalidInput)
	}
	if len(providers) == 0 {
		return nil, ErrNoProviders
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	c := cluster.New(id.NewClusterID(), managerID, providers)
	if err := l.store.CreateCluster(ctx, c); err != nil {
		return nil, err
	}

	l.logger.Info("cluster created", "cluster", c.ID, "manager", managerID, "providers", len(providers))
	return c, nil
}

// GetCluster retrieves a cluster by ID.
func (l *Ledger) GetCluster(ctx context.Context, clusterID id.ClusterID) (*cluster.Cluster, error) {
	c, err := l.store.GetCluster(ctx, clusterID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrClusterNotFound
		}
		return nil, err
	}
	return c, nil
}

// ──────────────────────────────────────────────────
// Flow Lifecycle
// ──────────────────────────────────────────────────

// OpenFlow starts a payment stream from an account toward a cluster at the
// given stable rate per month. The payer account is created on first use
// and need not be funded yet; settlement collects only what the deposit
// covers. A cluster provider cannot stream to its own cluster.
func (l *Ledger) OpenFlow(ctx context.Context, fromID string, clusterID id.ClusterID, rate types.Amount, nowMs uint64) (*flow.Flow, error) {
	if fromID == "" {
		return nil, fmt.Errorf("%w: empty payer id", ErrInvalidInput)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	c, err := l.GetCluster(ctx, clusterID)
	if err != nil {
		return nil, err
	}
	if slices.Contains(c.Providers, fromID) {
		return nil, ErrSelfFlow
	}
	a, err := l.store.GetOrCreateAccount(ctx, fromID)
	if err != nil {
		return nil, err
	}

	if err := a.LockSchedule(schedule.New(nowMs, rate)); err != nil {
		return nil, err
	}

	f := flow.New(id.NewFlowID(), fromID, clusterID, nowMs, rate)
	if err := l.store.CreateFlow(ctx, f); err != nil {
		return nil, err
	}
	if err := l.store.SaveAccount(ctx, a); err != nil {
		return nil, err
	}

	l.plugins.EmitFlowOpened(ctx, f)
	l.logger.Info("flow opened", "flow", f.ID, "from", fromID, "cluster", clusterID, "rate", rate)
	return f, nil
}

// GetFlow retrieves a flow by ID.
func (l *Ledger) GetFlow(ctx context.Context, flowID id.FlowID) (*flow.Flow, error) {
	f, err := l.store.GetFlow(ctx, flowID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrFlowNotFound
		}
		return nil, err
	}
	return f, nil
}

// IncreaseFlowRate raises a flow's rate by extra from nowMs on. The value
// accrued at the old rate is settled into the cluster first, then the payer
// account locks the additional rate. Old-rate value the deposit cannot cover
// moves onto the flow's backlog and stays collectible.
func (l *Ledger) IncreaseFlowRate(ctx context.Context, flowID id.FlowID, extra types.Amount, nowMs uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := l.GetFlow(ctx, flowID)
	if err != nil {
		return err
	}
	a, err := l.getAccount(ctx, f.From)
	if err != nil {
		return err
	}
	conv, err := l.store.GetConverter(ctx)
	if err != nil {
		return err
	}
	oldRate := f.Schedule.Rate

	var set store.ChangeSet
	settled, err := l.settleFlow(ctx, f, a, conv, nowMs, &set)
	if err != nil {
		return err
	}

	if err := a.LockSchedule(schedule.New(nowMs, extra)); err != nil {
		return err
	}
	if err := f.IncreaseRate(nowMs, extra); err != nil {
		return err
	}
	set.PutAccount(a)

	if err := l.store.Apply(ctx, &set); err != nil {
		return err
	}

	if settled > 0 {
		l.plugins.EmitFlowSettled(ctx, f, settled)
	}
	l.plugins.EmitFlowRateChanged(ctx, f, oldRate, f.Schedule.Rate)
	return nil
}

// SettleFlow collects the value a flow accrued up to nowMs, debits the
// payer and credits the cluster's revenue pool. Settlement is capped at the
// payer's coverage horizon, so an underfunded account pays out exactly what
// its deposit covers and not more. Accrued value the deposit cannot cover
// yet stays parked on the flow and is collected after the next top-up.
func (l *Ledger) SettleFlow(ctx context.Context, flowID id.FlowID, nowMs uint64) (types.Amount, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := l.GetFlow(ctx, flowID)
	if err != nil {
		return 0, err
	}
	a, err := l.getAccount(ctx, f.From)
	if err != nil {
		return 0, err
	}
	conv, err := l.store.GetConverter(ctx)
	if err != nil {
		return 0, err
	}

	var set store.ChangeSet
	settled, err := l.settleFlow(ctx, f, a, conv, nowMs, &set)
	if err != nil {
		return 0, err
	}
	if err := l.store.Apply(ctx, &set); err != nil {
		return 0, err
	}

	if settled > 0 {
		l.plugins.EmitFlowSettled(ctx, f, settled)
	}
	return settled, nil
}

// settleFlow drains the flow up to nowMs and moves the value from the
// payer's deposit into the cluster pool, staging every touched entity on
// set. Entries go in flow, account, cluster order so a partial write on a
// backend without transactions loses value to the ledger instead of
// charging the payer twice. Caller holds l.mu and applies the set.
func (l *Ledger) settleFlow(ctx context.Context, f *flow.Flow, a *account.Account, conv currency.Converter, nowMs uint64, set *store.ChangeSet) (types.Amount, error) {
	// Cap at the payer's coverage end. Past that point the flow keeps
	// accruing debt on paper but settlement only collects what the
	// deposit covers.
	settleMs := nowMs
	if covered := a.CoveredUntil(conv); covered < settleMs {
		settleMs = covered
	}
	if settleMs < f.Schedule.StartMs {
		settleMs = f.Schedule.StartMs
	}

	settled, err := f.SettleUpTo(settleMs)
	if err != nil {
		return 0, err
	}
	set.PutFlow(f)
	if settled == 0 {
		return 0, nil
	}

	native := conv.ToNative(settled)
	payable, cash := types.BorrowPayableCash(native)
	if err := a.PaySchedule(settleMs, conv, settled, payable); err != nil {
		if errors.Is(err, types.ErrInsufficientBalance) {
			// The deposit no longer covers even the backlog carried
			// over from earlier rate changes. Park the value on the
			// flow; the next settlement after a top-up collects it.
			f.Defer(settled)
			return 0, nil
		}
		return 0, err
	}

	c, err := l.GetCluster(ctx, f.ClusterID)
	if err != nil {
		return 0, err
	}
	c.PutRevenue(&cash)
	set.PutAccount(a)
	set.PutCluster(c)

	l.logger.Debug("flow settled", "flow", f.ID, "stable", settled, "native", native)
	return settled, nil
}

// ──────────────────────────────────────────────────
// Revenue Distribution
// ──────────────────────────────────────────────────

// DistributeRevenues pays a cluster's pool out. Fees compound in a fixed
// order: the network fee comes off gross revenues, the cluster-management
// fee off the remainder, and what is left splits equally among providers.
// The sub-provider-count residue of the split stays in the pool.
func (l *Ledger) DistributeRevenues(ctx context.Context, clusterID id.ClusterID) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, err := l.GetCluster(ctx, clusterID)
	if err != nil {
		return err
	}
	if len(c.Providers) == 0 {
		return ErrNoProviders
	}
	cfg, err := l.store.GetFeeConfig(ctx)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	total := c.Revenues.Peek()

	networkFee, err := fee.Capture(cfg.NetworkFeeBP, &c.Revenues)
	if err != nil {
		return err
	}
	managementFee, err := fee.Capture(cfg.ClusterManagementFeeBP, &c.Revenues)
	if err != nil {
		return err
	}
	networkAmount := networkFee.Peek()
	managementAmount := managementFee.Peek()

	share, _ := fee.SplitEqual(c.Revenues.Peek(), len(c.Providers))

	// Payouts aggregate per recipient so an account holding several roles,
	// a manager doubling as provider say, is loaded and written once.
	// Zero payouts are skipped entirely: no account row, no event.
	payouts := make(map[string]*types.Cash)
	order := make([]string, 0, len(c.Providers)+2)
	stage := func(accountID string, cash *types.Cash) {
		if existing, ok := payouts[accountID]; ok {
			existing.Increase(cash)
			return
		}
		staged := types.NewCash(cash.Consume())
		payouts[accountID] = &staged
		order = append(order, accountID)
	}

	if !networkFee.IsZero() {
		stage(cfg.NetworkFeeDestination, &networkFee)
	}
	if !managementFee.IsZero() {
		stage(c.ManagerID, &managementFee)
	}
	if share > 0 {
		for _, providerID := range c.Providers {
			payable, cash := types.BorrowPayableCash(share)
			if err := c.Revenues.Pay(payable); err != nil {
				return err
			}
			stage(providerID, &cash)
		}
	}

	// The drained pool goes first: a partial write on a backend without
	// transactions must never leave both the pool and its payouts standing.
	var set store.ChangeSet
	set.PutCluster(c)

	credited := make(map[string]types.Amount, len(order))
	for _, accountID := range order {
		a, err := l.store.GetOrCreateAccount(ctx, accountID)
		if err != nil {
			return err
		}
		credited[accountID] = payouts[accountID].Peek()
		a.Credit(payouts[accountID])
		set.PutAccount(a)
	}

	if err := l.store.Apply(ctx, &set); err != nil {
		return err
	}

	if networkAmount > 0 {
		l.plugins.EmitFeeCaptured(ctx, "network", networkAmount)
	}
	if managementAmount > 0 {
		l.plugins.EmitFeeCaptured(ctx, "cluster_management", managementAmount)
	}
	for _, accountID := range order {
		l.plugins.EmitDeposit(ctx, accountID, credited[accountID])
	}
	l.plugins.EmitRevenuesDistributed(ctx, c, total)
	l.logger.Info("revenues distributed",
		"cluster", c.ID,
		"total", total,
		"providers", len(c.Providers),
		"residue", c.Revenues.Peek(),
	)
	return nil
}

// ──────────────────────────────────────────────────
// Protocol Parameters
// ──────────────────────────────────────────────────

// ExchangeRate returns the current converter.
func (l *Ledger) ExchangeRate(ctx context.Context) (currency.Converter, error) {
	return l.store.GetConverter(ctx)
}

// SetExchangeRate updates the stable-per-native rate. Already locked
// schedules keep their stable denomination; only the native cost of
// settling them moves.
func (l *Ledger) SetExchangeRate(ctx context.Context, stablePerNative types.Amount) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	conv, err := l.store.GetConverter(ctx)
	if err != nil {
		return err
	}
	oldRate := conv.StablePerNative

	if err := conv.SetRate(stablePerNative); err != nil {
		return err
	}
	if err := l.store.SetConverter(ctx, conv); err != nil {
		return err
	}

	l.plugins.EmitExchangeRateChanged(ctx, oldRate, stablePerNative)
	l.logger.Info("exchange rate changed", "old", oldRate, "new", stablePerNative)
	return nil
}

// FeeConfig returns the current fee configuration.
func (l *Ledger) FeeConfig(ctx context.Context) (fee.Config, error) {
	return l.store.GetFeeConfig(ctx)
}

// SetFeeConfig replaces the fee configuration after validating it.
func (l *Ledger) SetFeeConfig(ctx context.Context, cfg fee.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.store.SetFeeConfig(ctx, cfg)
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func (l *Ledger) getAccount(ctx context.Context, accountID string) (*account.Account, error) {
	a, err := l.store.GetAccount(ctx, accountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return a, nil
}
