package audithook

// Action constants for audit events.
const (
	// Balance actions
	ActionDeposit  = "balance.deposit"
	ActionWithdraw = "balance.withdraw"
	ActionTransfer = "balance.transfer"

	// Flow actions
	ActionFlowOpened      = "flow.opened"
	ActionFlowRateChanged = "flow.rate_changed"
	ActionFlowSettled     = "flow.settled"

	// Revenue actions
	ActionFeeCaptured         = "fee.captured"
	ActionRevenuesDistributed = "revenues.distributed"
	ActionExchangeRateChanged = "exchange_rate.changed"
)

// Resource constants for audit events.
const (
	ResourceAccount  = "account"
	ResourceFlow     = "flow"
	ResourceCluster  = "cluster"
	ResourceProtocol = "protocol"
)

// Category constants for audit events.
const (
	CategoryBalance  = "balance"
	CategoryFlow     = "flow"
	CategoryRevenue  = "revenue"
	CategoryProtocol = "protocol"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
)
