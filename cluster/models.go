// Package cluster models a provider group: the resource-side party that
// payment flows stream toward.
package cluster

import (
	"github.com/xraph/flowledger/id"
	"github.com/xraph/flowledger/types"
)

// Cluster is a managed group of providers sharing one revenue pool.
// Settled flow value lands in Revenues and stays there until a
// distribution pays it out.
type Cluster struct {
	types.Entity
	ID        id.ClusterID `json:"id"`
	ManagerID string       `json:"manager_id"`
	Providers []string     `json:"providers"`
	Revenues  types.Cash   `json:"revenues"`
}

// New creates a cluster under the given manager. The provider list is
// fixed at creation; distributions split revenues equally across it.
func New(clusterID id.ClusterID, managerID string, providers []string) *Cluster {
	return &Cluster{
		Entity:    types.NewEntity(),
		ID:        clusterID,
		ManagerID: managerID,
		Providers: providers,
	}
}

// PutRevenue adds settled flow value to the revenue pool.
func (c *Cluster) PutRevenue(cash *types.Cash) {
	c.Revenues.Increase(cash)
	c.Touch()
}
