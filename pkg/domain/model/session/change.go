package session

import "github.com/secmon-lab/agentrun/pkg/domain/types"

// OriginExternal marks changes made outside of any store in this process
const OriginExternal = "external"

// CatalogChange notifies that the catalog of Scope was written. Origin is the
// ID of the writing store or OriginExternal.
type CatalogChange struct {
	Scope  types.Scope `json:"scope"`
	Origin string      `json:"origin"`
}
