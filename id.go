package capacity

import "github.com/xraph/capacity/id"

// ID is the identifier type for engine-minted records.
type ID = id.ID
