package od

import (
	"sync"

	"github.com/canopen-go/master/pkg/value"
)

// Observer is notified after an entry's value changes. It must not block:
// registrants that need to do slow work (SDO calls, I/O) should hand off to
// a background task rather than run it inline.
type Observer func(value.Value)

// Entry is the unit stored in the dictionary: identity and static policy
// set at creation time, plus the mutable value and observer list updated
// as the device runs.
type Entry struct {
	Address Address
	Name    string // normalized
	Type    value.Type

	AccessType  AccessType
	ReadMethod  ReadAccessMethod
	WriteMethod WriteAccessMethod

	mu        sync.RWMutex
	current   value.Value
	observers map[int]Observer
	nextObsID int
	disabled  bool
}

// ObserverHandle identifies a registered Observer so it can later be
// removed, without requiring func values to be comparable.
type ObserverHandle int

// newEntry constructs an entry whose cached value stays invalid until the
// first successful read or write populates it.
func newEntry(addr Address, name string, t value.Type, access AccessType, readMethod ReadAccessMethod, writeMethod WriteAccessMethod) *Entry {
	return &Entry{
		Address:     addr,
		Name:        name,
		Type:        t,
		AccessType:  access,
		ReadMethod:  readMethod,
		WriteMethod: writeMethod,
		current:     value.Value{},
	}
}

// Value returns the entry's current cached value, which may be invalid if
// it has never been populated.
func (e *Entry) Value() value.Value {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.current
}

// Disabled reports whether the entry has been marked unreadable after a
// probe failure.
func (e *Entry) Disabled() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.disabled
}

// SetDisabled flips the disabled flag.
func (e *Entry) SetDisabled(disabled bool) {
	e.mu.Lock()
	e.disabled = disabled
	e.mu.Unlock()
}

// EffectiveReadMethod resolves ReadUseDefault to the entry's own default.
func (e *Entry) EffectiveReadMethod(requested ReadAccessMethod) ReadAccessMethod {
	if requested != ReadUseDefault {
		return requested
	}
	return e.ReadMethod
}

// EffectiveWriteMethod resolves WriteUseDefault to the entry's own default.
func (e *Entry) EffectiveWriteMethod(requested WriteAccessMethod) WriteAccessMethod {
	if requested != WriteUseDefault {
		return requested
	}
	return e.WriteMethod
}

// Set stores v as the entry's current value. It returns true if the value
// actually changed (by Value.Equal), which callers use to decide whether to
// fire observers. Observers themselves are returned rather than invoked
// here: the caller fires them after releasing any dictionary-wide lock it
// holds, per the no-deadlock-with-dictionary-mutation rule.
func (e *Entry) Set(v value.Value) (changed bool, observers []Observer) {
	e.mu.Lock()
	changed = !e.current.Equal(v)
	e.current = v
	if changed {
		for _, o := range e.observers {
			observers = append(observers, o)
		}
	}
	e.mu.Unlock()
	return changed, observers
}

// AddObserver registers o to be called (by the caller of Set, off any
// dictionary lock) whenever the entry's value changes. The returned handle
// is used to unregister it later.
func (e *Entry) AddObserver(o Observer) ObserverHandle {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.observers == nil {
		e.observers = make(map[int]Observer)
	}
	id := e.nextObsID
	e.nextObsID++
	e.observers[id] = o
	return ObserverHandle(id)
}

// RemoveObserver unregisters the observer identified by handle, used when
// tearing down a transmit PDO mapping.
func (e *Entry) RemoveObserver(handle ObserverHandle) {
	e.mu.Lock()
	delete(e.observers, int(handle))
	e.mu.Unlock()
}
