// Package pdo implements the Process Data Object mapping layer: receive
// mappings that demultiplex an 8-byte frame into dictionary entries, and
// transmit mappings that marshal entries into frames on a timer, on
// change, or on SYNC.
package pdo

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/canopen-go/master/pkg/errs"
	"github.com/canopen-go/master/pkg/od"
	"github.com/canopen-go/master/pkg/value"
)

var log = logrus.WithField("component", "pdo")

// COB-ID ranges for the pre-defined connection set (CiA 301).
const (
	TPDO1Base uint32 = 0x180
	TPDO2Base uint32 = 0x280
	TPDO3Base uint32 = 0x380
	TPDO4Base uint32 = 0x480
	RPDO1Base uint32 = 0x200
	RPDO2Base uint32 = 0x300
	RPDO3Base uint32 = 0x400
	RPDO4Base uint32 = 0x500
	SyncCobID uint32 = 0x080
)

// ReceiveMapping binds one (cob_id, entry, offset) triple.
type ReceiveMapping struct {
	CobID     uint32
	EntryName string
	Offset    uint8
}

// DispatchFunc handles one inbound frame payload for a registered mapping.
type DispatchFunc func(data []byte)

// ValidateMapping checks that a receive mapping's entry exists and that
// the entry's wire size fits in the frame at the mapped offset. Every
// registration path runs this, whether the dispatch is the default
// dictionary update or a user-supplied closure.
func ValidateMapping(dict *od.Dictionary, m ReceiveMapping) (*od.Entry, int, error) {
	entry, err := dict.ByName(m.EntryName)
	if err != nil {
		return nil, 0, err
	}
	size, ok := entry.Type.Size()
	if !ok {
		return nil, 0, &errs.MappingSize{Entry: m.EntryName, Offset: m.Offset, Size: -1}
	}
	if int(m.Offset)+size > 8 {
		return nil, 0, &errs.MappingSize{Entry: m.EntryName, Offset: m.Offset, Size: size}
	}
	return entry, size, nil
}

// NewDefaultDispatch builds the dictionary-updating closure used when no
// custom callback is supplied: invalid-type and short-payload frames are
// logged and dropped rather than raised, since the bus is lossy. The
// entry's value-changed observers are fired on their own goroutines, off
// the receive path.
func NewDefaultDispatch(dict *od.Dictionary, m ReceiveMapping) (DispatchFunc, error) {
	entry, size, err := ValidateMapping(dict, m)
	if err != nil {
		return nil, err
	}

	return func(data []byte) {
		if entry.Type == value.Invalid {
			log.WithField("entry", m.EntryName).Debug("skipping receive PDO for invalid-type entry")
			return
		}
		if len(data) < int(m.Offset)+size {
			log.WithFields(logrus.Fields{"entry": m.EntryName, "cob_id": m.CobID, "len": len(data)}).
				Debug("short PDO payload, dropping frame")
			return
		}
		v, err := value.FromBytes(entry.Type, data[m.Offset:int(m.Offset)+size])
		if err != nil {
			log.WithError(err).WithField("entry", m.EntryName).Debug("failed to decode receive PDO payload")
			return
		}
		_, observers := entry.Set(v)
		for _, o := range observers {
			go o(v)
		}
	}, nil
}

// Router is the Core's PDO dispatch table: COB-ID to the list of closures
// registered against it. Registration is exclusive; dispatch may run
// concurrently with other dispatches from a receive/worker path.
type Router struct {
	mu     sync.RWMutex
	routes map[uint32]map[int]DispatchFunc
	nextID int
}

// RouteHandle identifies a registered closure so a Device can unregister it
// on teardown.
type RouteHandle struct {
	cobID uint32
	id    int
}

// NewRouter returns an empty router.
func NewRouter() *Router {
	return &Router{routes: make(map[uint32]map[int]DispatchFunc)}
}

// Register adds fn to the list of closures invoked for cobID.
func (r *Router) Register(cobID uint32, fn DispatchFunc) RouteHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.routes[cobID] == nil {
		r.routes[cobID] = make(map[int]DispatchFunc)
	}
	id := r.nextID
	r.nextID++
	r.routes[cobID][id] = fn
	return RouteHandle{cobID: cobID, id: id}
}

// Unregister removes a closure previously returned by Register.
func (r *Router) Unregister(h RouteHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.routes[h.cobID], h.id)
}

// Dispatch invokes every closure registered for cobID with data. Called
// from the Core's receive thread; must stay fast, so it only copies the
// slice of closures under lock and calls them outside it.
func (r *Router) Dispatch(cobID uint32, data []byte) {
	r.mu.RLock()
	fns := make([]DispatchFunc, 0, len(r.routes[cobID]))
	for _, fn := range r.routes[cobID] {
		fns = append(fns, fn)
	}
	r.mu.RUnlock()
	for _, fn := range fns {
		fn(data)
	}
}
