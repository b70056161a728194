package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery for O(1) dispatch performance.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger

	// Type-cached plugin lists for efficient dispatch
	onInit                []OnInit
	onShutdown            []OnShutdown
	onDeposit             []OnDeposit
	onWithdraw            []OnWithdraw
	onTransfer            []OnTransfer
	onFlowOpened          []OnFlowOpened
	onFlowRateChanged     []OnFlowRateChanged
	onFlowSettled         []OnFlowSettled
	onFeeCaptured         []OnFeeCaptured
	onRevenuesDistributed []OnRevenuesDistributed
	onExchangeRateChanged []OnExchangeRateChanged
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger: slog.Default(),
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	// Type-switch to cache interfaces
	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnDeposit); ok {
		r.onDeposit = append(r.onDeposit, v)
	}
	if v, ok := p.(OnWithdraw); ok {
		r.onWithdraw = append(r.onWithdraw, v)
	}
	if v, ok := p.(OnTransfer); ok {
		r.onTransfer = append(r.onTransfer, v)
	}
	if v, ok := p.(OnFlowOpened); ok {
		r.onFlowOpened = append(r.onFlowOpened, v)
	}
	if v, ok := p.(OnFlowRateChanged); ok {
		r.onFlowRateChanged = append(r.onFlowRateChanged, v)
	}
	if v, ok := p.(OnFlowSettled); ok {
		r.onFlowSettled = append(r.onFlowSettled, v)
	}
	if v, ok := p.(OnFeeCaptured); ok {
		r.onFeeCaptured = append(r.onFeeCaptured, v)
	}
	if v, ok := p.(OnRevenuesDistributed); ok {
		r.onRevenuesDistributed = append(r.onRevenuesDistributed, v)
	}
	if v, ok := p.(OnExchangeRateChanged); ok {
		r.onExchangeRateChanged = append(r.onExchangeRateChanged, v)
	}

	r.logger.Info("plugin registered", "name", p.Name())
	return nil
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, ledger interface{}) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnInit(ctx, ledger)
		}); err != nil {
			r.logger.Warn("plugin OnInit failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnShutdown(ctx)
		}); err != nil {
			r.logger.Warn("plugin OnShutdown failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitDeposit emits a deposit event.
func (r *Registry) EmitDeposit(ctx context.Context, accountID string, amount uint64) {
	r.mu.RLock()
	plugins := r.onDeposit
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnDeposit(ctx, accountID, amount)
		}); err != nil {
			r.logger.Warn("plugin OnDeposit failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitWithdraw emits a withdrawal event.
func (r *Registry) EmitWithdraw(ctx context.Context, accountID string, amount uint64) {
	r.mu.RLock()
	plugins := r.onWithdraw
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnWithdraw(ctx, accountID, amount)
		}); err != nil {
			r.logger.Warn("plugin OnWithdraw failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitTransfer emits a transfer event.
func (r *Registry) EmitTransfer(ctx context.Context, fromID, toID string, amount uint64) {
	r.mu.RLock()
	plugins := r.onTransfer
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnTransfer(ctx, fromID, toID, amount)
		}); err != nil {
			r.logger.Warn("plugin OnTransfer failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitFlowOpened emits a flow opened event.
func (r *Registry) EmitFlowOpened(ctx context.Context, f interface{}) {
	r.mu.RLock()
	plugins := r.onFlowOpened
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnFlowOpened(ctx, f)
		}); err != nil {
			r.logger.Warn("plugin OnFlowOpened failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitFlowRateChanged emits a flow rate change event.
func (r *Registry) EmitFlowRateChanged(ctx context.Context, f interface{}, oldRate, newRate uint64) {
	r.mu.RLock()
	plugins := r.onFlowRateChanged
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnFlowRateChanged(ctx, f, oldRate, newRate)
		}); err != nil {
			r.logger.Warn("plugin OnFlowRateChanged failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitFlowSettled emits a flow settled event.
func (r *Registry) EmitFlowSettled(ctx context.Context, f interface{}, settled uint64) {
	r.mu.RLock()
	plugins := r.onFlowSettled
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnFlowSettled(ctx, f, settled)
		}); err != nil {
			r.logger.Warn("plugin OnFlowSettled failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitFeeCaptured emits a fee capture event.
func (r *Registry) EmitFeeCaptured(ctx context.Context, kind string, amount uint64) {
	r.mu.RLock()
	plugins := r.onFeeCaptured
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnFeeCaptured(ctx, kind, amount)
		}); err != nil {
			r.logger.Warn("plugin OnFeeCaptured failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitRevenuesDistributed emits a revenue distribution event.
func (r *Registry) EmitRevenuesDistributed(ctx context.Context, c interface{}, total uint64) {
	r.mu.RLock()
	plugins := r.onRevenuesDistributed
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnRevenuesDistributed(ctx, c, total)
		}); err != nil {
			r.logger.Warn("plugin OnRevenuesDistributed failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitExchangeRateChanged emits an exchange rate change event.
func (r *Registry) EmitExchangeRateChanged(ctx context.Context, oldRate, newRate uint64) {
	r.mu.RLock()
	plugins := r.onExchangeRateChanged
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnExchangeRateChanged(ctx, oldRate, newRate)
		}); err != nil {
			r.logger.Warn("plugin OnExchangeRateChanged failed", "plugin", p.Name(), "error", err)
		}
	}
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the settlement pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
