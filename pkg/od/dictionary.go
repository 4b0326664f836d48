package od

import (
	"sync"

	"github.com/canopen-go/master/pkg/errs"
	"github.com/canopen-go/master/pkg/value"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "od")

// Dictionary holds every entry known for one node: the address-keyed store
// plus the normalized-name index kept in lockstep with it. Every name in
// the index resolves to an entry carrying that same name.
type Dictionary struct {
	mu        sync.RWMutex
	byAddress map[Address]*Entry
	byName    map[string]Address
}

// NewDictionary returns an empty dictionary.
func NewDictionary() *Dictionary {
	return &Dictionary{
		byAddress: make(map[Address]*Entry),
		byName:    make(map[string]Address),
	}
}

// AddEntry registers a new entry. It fails with a *errs.CanopenError if
// either the address or the normalized name is already taken, leaving the
// dictionary unchanged.
func (d *Dictionary) AddEntry(addr Address, name string, t value.Type, access AccessType, readMethod ReadAccessMethod, writeMethod WriteAccessMethod) (*Entry, error) {
	normalized := Normalize(name)

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.byAddress[addr]; exists {
		return nil, errs.NewCanopenError("duplicate dictionary address %s", addr)
	}
	if _, exists := d.byName[normalized]; exists {
		return nil, errs.NewCanopenError("duplicate dictionary name %q", normalized)
	}

	e := newEntry(addr, normalized, t, access, readMethod, writeMethod)
	d.byAddress[addr] = e
	d.byName[normalized] = addr
	return e, nil
}

// HasEntryByName reports whether a normalized name is registered.
func (d *Dictionary) HasEntryByName(name string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.byName[Normalize(name)]
	return ok
}

// HasEntryByAddress reports whether an address is registered.
func (d *Dictionary) HasEntryByAddress(addr Address) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.byAddress[addr]
	return ok
}

// ByName looks an entry up by any case/punctuation variant of its name.
func (d *Dictionary) ByName(name string) (*Entry, error) {
	normalized := Normalize(name)
	d.mu.RLock()
	defer d.mu.RUnlock()
	addr, ok := d.byName[normalized]
	if !ok {
		return nil, &errs.UnknownEntry{Reference: name}
	}
	return d.byAddress[addr], nil
}

// ByAddress looks an entry up by (index, subindex).
func (d *Dictionary) ByAddress(addr Address) (*Entry, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.byAddress[addr]
	if !ok {
		return nil, &errs.UnknownEntry{Reference: addr.String()}
	}
	return e, nil
}

// Entries returns every entry, sorted by address, for diagnostics.
func (d *Dictionary) Entries() []*Entry {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*Entry, 0, len(d.byAddress))
	for _, e := range d.byAddress {
		out = append(out, e)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Address.Less(out[j-1].Address); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// Len returns the number of registered entries.
func (d *Dictionary) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.byAddress)
}
