package flowledger

import "github.com/xraph/flowledger/id"

// ID is the primary identifier type for all flowledger entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
