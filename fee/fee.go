// Package fee implements protocol fee capture and revenue splitting.
//
// Distributions apply fees in a fixed compounding order: the network fee is
// captured from gross revenues, the cluster-management fee from what
// remains, and the rest is split equally among providers. The order is part
// of the economic contract; changing it changes effective rates.
package fee

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/xraph/flowledger/types"
)

var (
	// ErrInvalidRate reports a fee rate above 100%.
	ErrInvalidRate = errors.New("fee: rate exceeds 10000 basis points")

	// ErrOverflow reports a fee computation outside the 64-bit range.
	ErrOverflow = errors.New("fee: arithmetic overflow")
)

// Config holds the protocol-wide fee parameters. Rates are in basis points
// of the amount they apply to.
type Config struct {
	NetworkFeeBP           types.BasisPoints `json:"network_fee_bp" yaml:"network_fee_bp"`
	NetworkFeeDestination  string            `json:"network_fee_destination" yaml:"network_fee_destination"`
	ClusterManagementFeeBP types.BasisPoints `json:"cluster_management_fee_bp" yaml:"cluster_management_fee_bp"`
}

// DefaultConfig returns a zero-fee configuration.
func DefaultConfig() Config {
	return Config{}
}

// ErrNoDestination reports a non-zero network fee with nowhere to send it.
var ErrNoDestination = errors.New("fee: network fee has no destination")

// Validate rejects rates above 100% and a network fee without a
// destination account. Captured fees must always land somewhere.
func (c Config) Validate() error {
	if c.NetworkFeeBP > types.BP {
		return fmt.Errorf("network fee %d: %w", c.NetworkFeeBP, ErrInvalidRate)
	}
	if c.ClusterManagementFeeBP > types.BP {
		return fmt.Errorf("cluster management fee %d: %w", c.ClusterManagementFeeBP, ErrInvalidRate)
	}
	if c.NetworkFeeBP > 0 && c.NetworkFeeDestination == "" {
		return ErrNoDestination
	}
	return nil
}

// Capture carves rateBP basis points out of revenues and returns the fee as
// its own Cash. The fee is floored, so capture always favors the pool.
func Capture(rateBP types.BasisPoints, revenues *types.Cash) (types.Cash, error) {
	if rateBP > types.BP {
		return types.Cash{}, fmt.Errorf("capture rate %d: %w", rateBP, ErrInvalidRate)
	}

	hi, lo := bits.Mul64(revenues.Peek(), rateBP)
	if hi >= types.BP {
		return types.Cash{}, ErrOverflow
	}
	amount, _ := bits.Div64(hi, lo, types.BP)

	// rateBP <= BP guarantees the fee fits in the pool.
	payable, cash := types.BorrowPayableCash(amount)
	revenues.PayUnchecked(payable)
	return cash, nil
}

// SplitEqual divides total into n equal floored shares. The residue, at
// most n-1, is what an equal split cannot place.
func SplitEqual(total types.Amount, n int) (share, residue types.Amount) {
	if n <= 0 {
		return 0, total
	}
	share = total / types.Amount(n)
	residue = total - share*types.Amount(n)
	return share, residue
}
