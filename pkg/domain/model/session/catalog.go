package session

import (
	"encoding/json"

	"github.com/m-mizutani/goerr/v2"
)

// Catalog is the ordered list of sessions of one identity scope, most recent first
type Catalog []*Session

// Encode serializes the whole catalog
func (x Catalog) Encode() ([]byte, error) {
	if x == nil {
		x = Catalog{}
	}
	data, err := json.Marshal(x)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal catalog", goerr.V("count", len(x)))
	}
	return data, nil
}

// DecodeCatalog parses a serialized catalog. Empty input is an empty catalog.
// Sessions with a duplicated ID keep only the first occurrence.
func DecodeCatalog(data []byte) (Catalog, error) {
	if len(data) == 0 {
		return Catalog{}, nil
	}

	var raw Catalog
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal catalog", goerr.V("size", len(data)))
	}

	seen := make(map[string]struct{}, len(raw))
	catalog := make(Catalog, 0, len(raw))
	for _, s := range raw {
		if s == nil {
			continue
		}
		if _, ok := seen[s.ID.String()]; ok {
			continue
		}
		seen[s.ID.String()] = struct{}{}
		catalog = append(catalog, s)
	}
	return catalog, nil
}

// Clone deep copies every session of the catalog
func (x Catalog) Clone() Catalog {
	c := make(Catalog, len(x))
	for i, s := range x {
		c[i] = s.Clone()
	}
	return c
}

// Index returns the position of the session with the ID, or -1
func (x Catalog) Index(s *Session) int {
	for i, v := range x {
		if v.ID == s.ID {
			return i
		}
	}
	return -1
}
