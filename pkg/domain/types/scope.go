package types

import "strings"

// Scope is the identity key one history catalog belongs to
type Scope string

// DefaultScope is used when no identity is configured
const DefaultScope Scope = "default"

func (x Scope) String() string {
	return string(x)
}

// Validate rejects scopes that cannot be used as storage keys
func (x Scope) Validate() bool {
	return ValidKeyPart(string(x))
}

// ValidKeyPart reports whether s can be embedded in a storage key
func ValidKeyPart(s string) bool {
	if s == "" || len(s) > 128 {
		return false
	}
	return !strings.ContainsAny(s, "/\\:. \t\n")
}

// CatalogKey is the storage key of the scope's session catalog
func (x Scope) CatalogKey() string {
	return "history_" + string(x)
}

// PreferenceKey is the storage key of one scalar preference of the scope
func (x Scope) PreferenceKey(name string) string {
	return "pref_" + string(x) + "_" + name
}
