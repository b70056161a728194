// Package observability provides a metrics extension for the ledger that
// records lifecycle event counts and settlement volumes.
package observability

import (
	"context"

	"github.com/xraph/flowledger/plugin"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                = (*MetricsExtension)(nil)
	_ plugin.OnInit                = (*MetricsExtension)(nil)
	_ plugin.OnDeposit             = (*MetricsExtension)(nil)
	_ plugin.OnWithdraw            = (*MetricsExtension)(nil)
	_ plugin.OnTransfer            = (*MetricsExtension)(nil)
	_ plugin.OnFlowOpened          = (*MetricsExtension)(nil)
	_ plugin.OnFlowRateChanged     = (*MetricsExtension)(nil)
	_ plugin.OnFlowSettled         = (*MetricsExtension)(nil)
	_ plugin.OnFeeCaptured         = (*MetricsExtension)(nil)
	_ plugin.OnRevenuesDistributed = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as a Ledger plugin to automatically track settlement metrics.
type MetricsExtension struct {
	factory MetricFactory

	// Balance metrics
	Deposits       Counter
	DepositVolume  Histogram
	Withdrawals    Counter
	WithdrawVolume Histogram
	Transfers      Counter

	// Flow metrics
	FlowsOpened    Counter
	FlowRateRaises Counter
	FlowsSettled   Counter
	SettledVolume  Histogram

	// Revenue metrics
	FeesCaptured  Counter
	FeeVolume     Histogram
	Distributions Counter
	PayoutVolume  Histogram
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Use app.Metrics() in forge extensions.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		Deposits:       factory.Counter("flowledger.deposit.count"),
		DepositVolume:  factory.Histogram("flowledger.deposit.amount"),
		Withdrawals:    factory.Counter("flowledger.withdraw.count"),
		WithdrawVolume: factory.Histogram("flowledger.withdraw.amount"),
		Transfers:      factory.Counter("flowledger.transfer.count"),

		FlowsOpened:    factory.Counter("flowledger.flow.opened"),
		FlowRateRaises: factory.Counter("flowledger.flow.rate_raised"),
		FlowsSettled:   factory.Counter("flowledger.flow.settled"),
		SettledVolume:  factory.Histogram("flowledger.flow.settled_amount"),

		FeesCaptured:  factory.Counter("flowledger.fee.captured"),
		FeeVolume:     factory.Histogram("flowledger.fee.amount"),
		Distributions: factory.Counter("flowledger.distribution.count"),
		PayoutVolume:  factory.Histogram("flowledger.distribution.amount"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ interface{}) error {
	// No initialization needed
	return nil
}

// OnDeposit implements plugin.OnDeposit.
func (m *MetricsExtension) OnDeposit(_ context.Context, _ string, amount uint64) error {
	m.Deposits.Inc()
	m.DepositVolume.Observe(float64(amount))
	return nil
}

// OnWithdraw implements plugin.OnWithdraw.
func (m *MetricsExtension) OnWithdraw(_ context.Context, _ string, amount uint64) error {
	m.Withdrawals.Inc()
	m.WithdrawVolume.Observe(float64(amount))
	return nil
}

// OnTransfer implements plugin.OnTransfer.
func (m *MetricsExtension) OnTransfer(_ context.Context, _, _ string, _ uint64) error {
	m.Transfers.Inc()
	return nil
}

// OnFlowOpened implements plugin.OnFlowOpened.
func (m *MetricsExtension) OnFlowOpened(_ context.Context, _ interface{}) error {
	m.FlowsOpened.Inc()
	return nil
}

// OnFlowRateChanged implements plugin.OnFlowRateChanged.
func (m *MetricsExtension) OnFlowRateChanged(_ context.Context, _ interface{}, _, _ uint64) error {
	m.FlowRateRaises.Inc()
	return nil
}

// OnFlowSettled implements plugin.OnFlowSettled.
func (m *MetricsExtension) OnFlowSettled(_ context.Context, _ interface{}, settled uint64) error {
	m.FlowsSettled.Inc()
	m.SettledVolume.Observe(float64(settled))
	return nil
}

// OnFeeCaptured implements plugin.OnFeeCaptured.
func (m *MetricsExtension) OnFeeCaptured(_ context.Context, _ string, amount uint64) error {
	m.FeesCaptured.Inc()
	m.FeeVolume.Observe(float64(amount))
	return nil
}

// OnRevenuesDistributed implements plugin.OnRevenuesDistributed.
func (m *MetricsExtension) OnRevenuesDistributed(_ context.Context, _ interface{}, total uint64) error {
	m.Distributions.Inc()
	m.PayoutVolume.Observe(float64(total))
	return nil
}
