// Package currency converts between the stable unit of account that rents
// and fees are denominated in, and the native settlement token that Cash
// moves in.
//
// The rate is a single fixed-point ratio. Both conversion directions use
// floor division, so they are not exact inverses: a round trip can lose up
// to one unit of the precision denominator. The asymmetry is intentional —
// rounding always favors the ledger.
package currency

import (
	"fmt"
	"math/bits"

	"github.com/xraph/flowledger/types"
)

// Precision is the fixed-point denominator of the exchange rate: the rate
// granularity is one part in ten million of the stable unit.
const Precision types.Amount = 10_000_000

// Converter holds how many stable units one Precision of native tokens is
// worth. The rate is mutated by a privileged caller and takes effect for
// all future conversions; schedules already locked in stable units are
// never repriced, only the conversion at the moment of settlement changes.
type Converter struct {
	// StablePerNative is the stable value of Precision native units.
	StablePerNative types.Amount `json:"stable_per_native"`
}

// NewConverter returns a converter at the 1:1 rate.
func NewConverter() Converter {
	return Converter{StablePerNative: Precision}
}

// SetRate replaces the exchange rate. stablePerNative is the stable value
// of Precision native units; a zero rate is rejected because it would make
// every stable obligation unpayable.
func (c *Converter) SetRate(stablePerNative types.Amount) error {
	if stablePerNative == 0 {
		return fmt.Errorf("currency: zero exchange rate")
	}
	c.StablePerNative = stablePerNative
	return nil
}

// Rate returns the current stable-per-native fixed-point rate.
func (c Converter) Rate() types.Amount { return c.StablePerNative }

// ToNative converts a stable amount to native tokens, flooring.
func (c Converter) ToNative(stable types.Amount) types.Amount {
	hi, lo := bits.Mul64(stable, Precision)
	if hi >= c.StablePerNative {
		// Saturate rather than wrap; callers bound amounts well below this.
		return ^types.Amount(0)
	}
	native, _ := bits.Div64(hi, lo, c.StablePerNative)
	return native
}

// ToStable converts a native amount to stable units, flooring.
func (c Converter) ToStable(native types.Amount) types.Amount {
	hi, lo := bits.Mul64(native, c.StablePerNative)
	if hi >= Precision {
		return ^types.Amount(0)
	}
	stable, _ := bits.Div64(hi, lo, Precision)
	return stable
}

// String formats the converter for logs.
func (c Converter) String() string {
	return fmt.Sprintf("Converter(%d stable per %d native)", c.StablePerNative, Precision)
}
