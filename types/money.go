// Package types provides common types used across flowledger.
package types

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Amount is a monetary value in the smallest unit of its denomination.
// Stable-denominated amounts (rents, fees) and native-denominated amounts
// (deposits, payouts) share this type; the currency package converts
// between the two. All arithmetic is integer-only — no floating point.
type Amount = uint64

// BasisPoints expresses a fee rate in 1/10,000ths.
type BasisPoints = uint64

// BP is the basis-point denominator (100%).
const BP BasisPoints = 10_000

// ErrInsufficientBalance is returned when a Payable exceeds the Cash it is
// paid from. Defined here so that Cash.Pay does not import upward; the root
// package re-exports it.
var ErrInsufficientBalance = errors.New("flowledger: insufficient balance")

// Cash represents value recognized as actually held by the ledger: it was
// taken from someone and must be credited to someone. Cash is move-only in
// spirit — every Cash must end in a balance field, a payout, or a Pay
// against a Payable. Consume and Increase zero their source so a value
// cannot be spent twice.
type Cash struct {
	Value Amount `json:"value"`
}

// Payable represents value recognized as owed: it was credited to someone
// and must be paid by someone. A Payable is eliminated only by being paid
// out of a Cash; it must be covered by Cash at all times to guarantee the
// custodial balance of the ledger.
type Payable struct {
	Value Amount `json:"value"`
}

// NewCash wraps an amount actually received as Cash. This is how external
// deposits enter the ledger's bookkeeping; inside the ledger, new value is
// manufactured only in matched pairs via BorrowPayableCash.
func NewCash(amount Amount) Cash { return Cash{Value: amount} }

// NewPayable wraps an amount as a bare Payable. Prefer BorrowPayableCash;
// a bare Payable is legitimate only when the matching value demonstrably
// leaves the ledger (an external payout).
func NewPayable(amount Amount) Payable { return Payable{Value: amount} }

// BorrowPayableCash manufactures a balanced Payable/Cash pair. This is the
// only legal way new value enters circulation inside the ledger: the Payable
// records that some account now owes the amount, the Cash that the amount is
// now available to a destination. The pair keeps the global Cash sum equal
// to the custodial balance.
func BorrowPayableCash(amount Amount) (Payable, Cash) {
	return Payable{Value: amount}, Cash{Value: amount}
}

// Peek returns the current value without consuming it.
func (c *Cash) Peek() Amount { return c.Value }

// Consume moves the value out, zeroing the Cash. The caller takes
// responsibility for crediting the returned amount somewhere.
func (c *Cash) Consume() Amount {
	v := c.Value
	c.Value = 0
	return v
}

// Increase credits another Cash into this one, consuming it.
func (c *Cash) Increase(other *Cash) {
	c.Value += other.Consume()
}

// Pay eliminates the Payable out of this Cash. It fails with
// ErrInsufficientBalance, leaving both values untouched, if the Payable
// exceeds the Cash.
func (c *Cash) Pay(p Payable) error {
	if c.Value < p.Value {
		return ErrInsufficientBalance
	}
	c.PayUnchecked(p)
	return nil
}

// PayUnchecked eliminates the Payable without a sufficiency check. Only for
// call sites that have already verified sufficiency through a withdrawable
// query, so hot paths avoid double-checking. Panics on underflow: reaching
// it unchecked is a caller bug, not a recoverable condition.
func (c *Cash) PayUnchecked(p Payable) {
	v := p.Consume()
	if c.Value < v {
		panic(fmt.Sprintf("types: unchecked pay of %d from cash %d", v, c.Value))
	}
	c.Value -= v
}

// IsZero reports whether the Cash holds no value.
func (c *Cash) IsZero() bool { return c.Value == 0 }

// String formats the Cash for logs.
func (c Cash) String() string { return fmt.Sprintf("Cash(%d)", c.Value) }

// MarshalJSON implements json.Marshaler.
func (c Cash) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Value Amount `json:"value"`
	}{Value: c.Value})
}

// Peek returns the owed value without consuming it.
func (p *Payable) Peek() Amount { return p.Value }

// Consume moves the owed value out, zeroing the Payable. Outside of
// Cash.Pay/PayUnchecked, consuming a Payable is legitimate only when the
// matching value provably left the ledger.
func (p *Payable) Consume() Amount {
	v := p.Value
	p.Value = 0
	return v
}

// String formats the Payable for logs.
func (p Payable) String() string { return fmt.Sprintf("Payable(%d)", p.Value) }
