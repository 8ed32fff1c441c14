package tally

import (
	"github.com/xraph/tally/identity"
	"github.com/xraph/tally/types"
)

// Re-export common types for convenience so users don't have to import the
// types and identity packages.

// Money is re-exported from types package.
type Money = types.Money

// Entity is re-exported from types package.
type Entity = types.Entity

// Contact is re-exported from identity package.
type Contact = identity.Contact

// Re-export Money constructors
var (
	NZD  = types.NZD
	Zero = types.Zero
)

// Re-export Entity constructor
var NewEntity = types.NewEntity
