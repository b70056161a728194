// Package schedule implements a value that accrues at a constant rate over
// time: the unit of "money owed so far from a rent rate".
//
// A Schedule is a pure O(1) integer structure. Accrual is computed as
// floor(elapsed_ms * rate / MsPerMonth) with a 128-bit intermediate, so a
// computation loses at most rate/MsPerMonth units per millisecond to
// rounding — always in the ledger's favor, never over-charging.
package schedule

import (
	"errors"
	"fmt"
	"math"
	"math/bits"

	"github.com/xraph/flowledger/types"
)

// MsPerMonth is the accrual period: 31 days in milliseconds.
const MsPerMonth uint64 = 31 * 24 * 3600 * 1000

// Forever is the timestamp returned by TimeOfValue for a zero-rate schedule.
const Forever uint64 = math.MaxUint64

// ErrTimeInversion reports an accrual query at a time before the schedule's
// last re-basing point. Settlement always re-bases to "now", so hitting this
// means the caller let its clock move backwards — a caller bug, not a
// recoverable condition.
var ErrTimeInversion = errors.New("schedule: time before start of accrual")

// ErrOverflow reports that elapsed_ms * rate exceeded the 128-bit
// accumulator. Rates and lifetimes within the documented bounds (see
// ValueAt) never reach it.
var ErrOverflow = errors.New("schedule: arithmetic overflow")

// Schedule accrues Rate stable units per month starting at StartMs.
// The zero value is an empty schedule (no rate, epoch start).
type Schedule struct {
	Rate    types.Amount `json:"rate"`
	StartMs uint64       `json:"start_ms"`
}

// New creates a schedule accruing rate units per month from startMs.
func New(startMs uint64, rate types.Amount) Schedule {
	return Schedule{Rate: rate, StartMs: startMs}
}

// Empty returns a schedule that accrues nothing.
func Empty() Schedule { return Schedule{} }

// IsZero reports whether the schedule accrues nothing and was never based.
func (s Schedule) IsZero() bool { return s.Rate == 0 && s.StartMs == 0 }

// ValueAt returns the amount accrued between StartMs and nowMs.
//
// The full product elapsed*rate is carried in 128 bits before the division,
// so precision is never lost to intermediate truncation. The quotient must
// fit uint64: with a 64-bit rate this caps rate * elapsed at about
// 4.9e28 unit-milliseconds (rate times elapsed months below 2^64), which is
// far beyond any real deposit's coverage.
func (s Schedule) ValueAt(nowMs uint64) (types.Amount, error) {
	if nowMs < s.StartMs {
		return 0, fmt.Errorf("%w: now=%d start=%d", ErrTimeInversion, nowMs, s.StartMs)
	}

	elapsed := nowMs - s.StartMs
	hi, lo := bits.Mul64(elapsed, s.Rate)
	if hi >= MsPerMonth {
		return 0, fmt.Errorf("%w: elapsed=%d rate=%d", ErrOverflow, elapsed, s.Rate)
	}

	value, _ := bits.Div64(hi, lo, MsPerMonth)
	return value, nil
}

// TakeValueAt returns the amount accrued up to nowMs and re-bases the
// schedule to nowMs. Calling it twice with the same nowMs yields zero the
// second time: the same interval is never charged twice.
func (s *Schedule) TakeValueAt(nowMs uint64) (types.Amount, error) {
	value, err := s.ValueAt(nowMs)
	if err != nil {
		return 0, err
	}
	s.StartMs = nowMs
	return value, nil
}

// TakeValueThenAddRate settles this schedule up to other.StartMs, returns
// what had accrued, and merges other's rate in. The old debt must be drained
// before the rates are summed — otherwise the already-elapsed interval would
// be recomputed at the blended rate.
func (s *Schedule) TakeValueThenAddRate(other Schedule) (types.Amount, error) {
	value, err := s.TakeValueAt(other.StartMs)
	if err != nil {
		return 0, err
	}
	s.Rate += other.Rate
	return value, nil
}

// TimeOfValue returns the timestamp at which the given value will have
// accrued. Returns Forever when the rate is zero.
func (s Schedule) TimeOfValue(value types.Amount) uint64 {
	if s.Rate == 0 {
		return Forever
	}

	hi, lo := bits.Mul64(value, MsPerMonth)
	if hi >= s.Rate {
		return Forever
	}

	offset, _ := bits.Div64(hi, lo, s.Rate)
	if offset > math.MaxUint64-s.StartMs {
		return Forever
	}
	return s.StartMs + offset
}

// String formats the schedule for logs.
func (s Schedule) String() string {
	return fmt.Sprintf("Schedule(rate=%d/month, start=%dms)", s.Rate, s.StartMs)
}
