// Package audithook bridges ledger lifecycle events to an audit trail
// backend.
//
// It defines a local Recorder interface so the package does not import an
// audit backend directly. Callers inject a RecorderFunc adapter that
// bridges to their backend at wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/flowledger/plugin"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                = (*Extension)(nil)
	_ plugin.OnDeposit             = (*Extension)(nil)
	_ plugin.OnWithdraw            = (*Extension)(nil)
	_ plugin.OnTransfer            = (*Extension)(nil)
	_ plugin.OnFlowOpened          = (*Extension)(nil)
	_ plugin.OnFlowRateChanged     = (*Extension)(nil)
	_ plugin.OnFlowSettled         = (*Extension)(nil)
	_ plugin.OnFeeCaptured         = (*Extension)(nil)
	_ plugin.OnRevenuesDistributed = (*Extension)(nil)
	_ plugin.OnExchangeRateChanged = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
// It is defined locally so callers inject the concrete backend at wiring
// time instead of this package importing it.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges ledger lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Balance hooks
// ──────────────────────────────────────────────────

// OnDeposit implements plugin.OnDeposit.
func (e *Extension) OnDeposit(ctx context.Context, accountID string, amount uint64) error {
	return e.record(ctx, ActionDeposit, SeverityInfo, OutcomeSuccess,
		ResourceAccount, accountID, CategoryBalance, nil,
		"account_id", accountID,
		"amount", amount,
	)
}

// OnWithdraw implements plugin.OnWithdraw.
func (e *Extension) OnWithdraw(ctx context.Context, accountID string, amount uint64) error {
	return e.record(ctx, ActionWithdraw, SeverityInfo, OutcomeSuccess,
		ResourceAccount, accountID, CategoryBalance, nil,
		"account_id", accountID,
		"amount", amount,
	)
}

// OnTransfer implements plugin.OnTransfer.
func (e *Extension) OnTransfer(ctx context.Context, fromID, toID string, amount uint64) error {
	return e.record(ctx, ActionTransfer, SeverityInfo, OutcomeSuccess,
		ResourceAccount, fromID, CategoryBalance, nil,
		"from", fromID,
		"to", toID,
		"amount", amount,
	)
}

// ──────────────────────────────────────────────────
// Flow hooks
// ──────────────────────────────────────────────────

// OnFlowOpened implements plugin.OnFlowOpened.
func (e *Extension) OnFlowOpened(ctx context.Context, _ interface{}) error {
	return e.record(ctx, ActionFlowOpened, SeverityInfo, OutcomeSuccess,
		ResourceFlow, "", CategoryFlow, nil,
		"event", "flow_opened",
	)
}

// OnFlowRateChanged implements plugin.OnFlowRateChanged.
func (e *Extension) OnFlowRateChanged(ctx context.Context, _ interface{}, oldRate, newRate uint64) error {
	return e.record(ctx, ActionFlowRateChanged, SeverityInfo, OutcomeSuccess,
		ResourceFlow, "", CategoryFlow, nil,
		"old_rate", oldRate,
		"new_rate", newRate,
	)
}

// OnFlowSettled implements plugin.OnFlowSettled.
func (e *Extension) OnFlowSettled(ctx context.Context, _ interface{}, settled uint64) error {
	return e.record(ctx, ActionFlowSettled, SeverityInfo, OutcomeSuccess,
		ResourceFlow, "", CategoryFlow, nil,
		"settled", settled,
	)
}

// ──────────────────────────────────────────────────
// Revenue hooks
// ──────────────────────────────────────────────────

// OnFeeCaptured implements plugin.OnFeeCaptured.
func (e *Extension) OnFeeCaptured(ctx context.Context, kind string, amount uint64) error {
	return e.record(ctx, ActionFeeCaptured, SeverityInfo, OutcomeSuccess,
		ResourceCluster, "", CategoryRevenue, nil,
		"kind", kind,
		"amount", amount,
	)
}

// OnRevenuesDistributed implements plugin.OnRevenuesDistributed.
func (e *Extension) OnRevenuesDistributed(ctx context.Context, _ interface{}, total uint64) error {
	return e.record(ctx, ActionRevenuesDistributed, SeverityInfo, OutcomeSuccess,
		ResourceCluster, "", CategoryRevenue, nil,
		"total", total,
	)
}

// OnExchangeRateChanged implements plugin.OnExchangeRateChanged.
func (e *Extension) OnExchangeRateChanged(ctx context.Context, oldRate, newRate uint64) error {
	return e.record(ctx, ActionExchangeRateChanged, SeverityWarning, OutcomeSuccess,
		ResourceProtocol, "", CategoryProtocol, nil,
		"old_rate", oldRate,
		"new_rate", newRate,
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
