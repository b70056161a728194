package flowledger

import (
	"github.com/xraph/flowledger/id"
	"github.com/xraph/flowledger/schedule"
	"github.com/xraph/flowledger/types"
)

// Re-export common types for convenience so users don't have to import the
// types package.

// Amount is re-exported from the types package.
type Amount = types.Amount

// Cash is re-exported from the types package.
type Cash = types.Cash

// Payable is re-exported from the types package.
type Payable = types.Payable

// Entity is re-exported from the types package.
type Entity = types.Entity

// Schedule is re-exported from the schedule package.
type Schedule = schedule.Schedule

// FlowID and ClusterID are re-exported from the id package.
type (
	FlowID    = id.FlowID
	ClusterID = id.ClusterID
)

// Re-export constructors
var (
	NewCash           = types.NewCash
	BorrowPayableCash = types.BorrowPayableCash
	NewEntity         = types.NewEntity
	NewFlowID         = id.NewFlowID
	NewClusterID      = id.NewClusterID
)

// Re-export schedule constants
const (
	MsPerMonth = schedule.MsPerMonth
	Forever    = schedule.Forever
)
