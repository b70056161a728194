// Package flow models a payment flow: a metered stream of stable-denominated
// value from a payer account toward a cluster's revenue pool.
package flow

import (
	"github.com/xraph/flowledger/id"
	"github.com/xraph/flowledger/schedule"
	"github.com/xraph/flowledger/types"
)

// Flow is one payer-to-cluster payment stream. Its schedule mirrors a slice
// of the payer account's combined schedule; both are advanced together so
// the flow can never claim value the account did not accrue.
//
// Accrued is the stable backlog the flow has already earned but not yet
// collected. A rate change re-bases the schedule and drains the old
// segment's value here; settlement that runs while the payer cannot pay
// defers its take here too. The next funded settlement collects it.
//
// Flows are never garbage collected. A closed deal is represented by a flow
// whose rate dropped to zero, keeping identifiers stable for settlement
// history.
type Flow struct {
	types.Entity
	ID        id.FlowID         `json:"id"`
	From      string            `json:"from"`
	ClusterID id.ClusterID      `json:"cluster_id"`
	Accrued   types.Amount      `json:"accrued"`
	Schedule  schedule.Schedule `json:"schedule"`
}

// New opens a flow streaming at the given stable rate from nowMs.
func New(flowID id.FlowID, from string, clusterID id.ClusterID, nowMs uint64, rate types.Amount) *Flow {
	return &Flow{
		Entity:    types.NewEntity(),
		ID:        flowID,
		From:      from,
		ClusterID: clusterID,
		Schedule:  schedule.New(nowMs, rate),
	}
}

// SettleUpTo drains and returns the stable value the flow has earned up to
// nowMs, backlog included, re-basing the schedule so the interval is never
// claimed twice.
func (f *Flow) SettleUpTo(nowMs uint64) (types.Amount, error) {
	value, err := f.Schedule.TakeValueAt(nowMs)
	if err != nil {
		return 0, err
	}
	settled := f.Accrued + value
	f.Accrued = 0
	f.Touch()
	return settled, nil
}

// Defer puts an uncollectible settlement back on the flow's backlog. The
// payer still owes it; a later settlement drains it once the deposit
// covers it.
func (f *Flow) Defer(stable types.Amount) {
	f.Accrued += stable
	f.Touch()
}

// IncreaseRate raises the flow's rate by extra starting at nowMs. The value
// accrued at the old rate moves onto the backlog so re-basing the schedule
// loses nothing.
func (f *Flow) IncreaseRate(nowMs uint64, extra types.Amount) error {
	drained, err := f.Schedule.TakeValueThenAddRate(schedule.New(nowMs, extra))
	if err != nil {
		return err
	}
	f.Accrued += drained
	f.Touch()
	return nil
}
