package knowledge

import (
	"sort"

	"github.com/maidsafe/temp-safe-network-sub012/src/xor"
)

// PrefixMap caches the signed SAPs of sections by prefix. Inserting a SAP
// removes the SAPs of its ancestors, and SAPs of a descendant of a cached
// prefix are never replaced by an ancestor, so the cache stays a prefix tree:
// any two cached prefixes are disjoint.
type PrefixMap struct {
	sections map[xor.Prefix]SignedSAP
}

// NewPrefixMap ...
func NewPrefixMap() *PrefixMap {
	return &PrefixMap{sections: make(map[xor.Prefix]SignedSAP)}
}

// Insert adds s unless a descendant of its prefix is already cached. It
// reports whether the map changed.
func (m *PrefixMap) Insert(s SignedSAP) bool {
	p := s.SAP.Prefix
	if existing, ok := m.sections[p]; ok && existing.SAP.SectionKey() == s.SAP.SectionKey() {
		return false
	}
	for cached := range m.sections {
		if cached.IsExtensionOf(p) {
			return false
		}
	}
	for cached := range m.sections {
		if p.IsExtensionOf(cached) {
			delete(m.sections, cached)
		}
	}
	m.sections[p] = s
	return true
}

// Get ...
func (m *PrefixMap) Get(p xor.Prefix) (SignedSAP, bool) {
	s, ok := m.sections[p]
	return s, ok
}

// Remove drops the entries compatible with p, which we now cover ourselves.
func (m *PrefixMap) Remove(p xor.Prefix) {
	for cached := range m.sections {
		if cached.IsCompatible(p) {
			delete(m.sections, cached)
		}
	}
}

// Closest returns the SAP whose prefix is the longest match for name.
func (m *PrefixMap) Closest(name xor.Name) (SignedSAP, bool) {
	var best SignedSAP
	found := false
	for p, s := range m.sections {
		if !p.Matches(name) {
			continue
		}
		if !found || p.BitCount > best.SAP.Prefix.BitCount {
			best = s
			found = true
		}
	}
	return best, found
}

// ClosestByDistance returns the SAP whose prefix centre is the closest to
// name. It is used when no cached prefix matches.
func (m *PrefixMap) ClosestByDistance(name xor.Name) (SignedSAP, bool) {
	var best SignedSAP
	found := false
	for p, s := range m.sections {
		if !found || name.CmpDistance(p.Centre(), best.SAP.Prefix.Centre()) < 0 {
			best = s
			found = true
		}
	}
	return best, found
}

// All returns the cached SAPs ordered by prefix.
func (m *PrefixMap) All() []SignedSAP {
	res := make([]SignedSAP, 0, len(m.sections))
	for _, s := range m.sections {
		res = append(res, s)
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].SAP.Prefix.String() < res[j].SAP.Prefix.String()
	})
	return res
}

// Len ...
func (m *PrefixMap) Len() int {
	return len(m.sections)
}
