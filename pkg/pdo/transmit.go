package pdo

import (
	"sync"
	"time"

	"github.com/canopen-go/master/pkg/can"
	"github.com/canopen-go/master/pkg/errs"
	"github.com/canopen-go/master/pkg/od"
	"github.com/canopen-go/master/pkg/value"
)

// TransmissionType selects how a TransmitMapping's frame gets emitted.
type TransmissionType uint8

const (
	Periodic TransmissionType = iota
	OnChange
	Sync
)

// Mapping binds one entry to its byte offset within a transmit frame.
type Mapping struct {
	EntryName string
	Offset    uint8
}

// Sender transmits a single CAN frame.
type Sender func(can.Frame) error

// TransmitMapping assembles and sends an 8-byte frame from a list of
// dictionary entries. Construction validates that every entry exists,
// fits in the frame, and that no two mappings overlap.
type TransmitMapping struct {
	CobID            uint32
	TransmissionType TransmissionType
	RepeatTime       time.Duration

	entries []*od.Entry
	offsets []uint8
	length  int
	send    Sender

	mu              sync.Mutex
	running         bool
	stop            chan struct{}
	done            chan struct{}
	observerHandles []observerReg
}

type observerReg struct {
	entry  *od.Entry
	handle od.ObserverHandle
}

// NewTransmitMapping validates mappings and wires up the behavior implied
// by transmissionType: ON_CHANGE registers value-changed observers,
// PERIODIC spawns a dedicated timer goroutine via Start, SYNC waits to be
// driven by OnSync.
func NewTransmitMapping(dict *od.Dictionary, cobID uint32, mappings []Mapping, transmissionType TransmissionType, repeatTime time.Duration, send Sender) (*TransmitMapping, error) {
	if err := validateNoOverlap(dict, cobID, mappings); err != nil {
		return nil, err
	}

	entries := make([]*od.Entry, len(mappings))
	offsets := make([]uint8, len(mappings))
	length := 0
	for i, m := range mappings {
		entry, err := dict.ByName(m.EntryName)
		if err != nil {
			return nil, err
		}
		size, ok := entry.Type.Size()
		if !ok {
			return nil, &errs.MappingSize{Entry: m.EntryName, Offset: m.Offset, Size: -1}
		}
		if int(m.Offset)+size > length {
			length = int(m.Offset) + size
		}
		entries[i] = entry
		offsets[i] = m.Offset
	}

	t := &TransmitMapping{
		CobID:            cobID,
		TransmissionType: transmissionType,
		RepeatTime:       repeatTime,
		entries:          entries,
		offsets:          offsets,
		length:           length,
		send:             send,
		stop:             make(chan struct{}),
		done:             make(chan struct{}),
	}

	switch transmissionType {
	case OnChange:
		t.registerOnChangeObservers()
	case Periodic:
		if repeatTime == 0 {
			log.WithField("cob_id", cobID).Warn("periodic transmit mapping configured with repeat_time=0, risks bus overload")
		}
	}

	return t, nil
}

func validateNoOverlap(dict *od.Dictionary, cobID uint32, mappings []Mapping) error {
	var occupied [8]bool
	for _, m := range mappings {
		entry, err := dict.ByName(m.EntryName)
		if err != nil {
			return err
		}
		size, ok := entry.Type.Size()
		if !ok {
			return &errs.MappingSize{Entry: m.EntryName, Offset: m.Offset, Size: -1}
		}
		if int(m.Offset)+size > 8 {
			return &errs.MappingSize{Entry: m.EntryName, Offset: m.Offset, Size: size}
		}
		for b := int(m.Offset); b < int(m.Offset)+size; b++ {
			if occupied[b] {
				return &errs.MappingOverlap{CobID: cobID}
			}
			occupied[b] = true
		}
	}
	return nil
}

func (t *TransmitMapping) registerOnChangeObservers() {
	for _, entry := range t.entries {
		handle := entry.AddObserver(func(value.Value) {
			if err := t.Send(); err != nil {
				log.WithError(err).WithField("cob_id", t.CobID).Warn("on-change transmit PDO send failed")
			}
		})
		t.observerHandles = append(t.observerHandles, observerReg{entry: entry, handle: handle})
	}
}

// assemble reads every entry's current value into a fresh frame. Bytes for
// entries that have never been set default to zero, matching the invalid
// Value's empty byte slice.
func (t *TransmitMapping) assemble() can.Frame {
	frame := can.Frame{ID: t.CobID, DLC: uint8(t.length)}
	for i, entry := range t.entries {
		v := entry.Value()
		copy(frame.Data[t.offsets[i]:], v.Bytes())
	}
	return frame
}

// Send assembles the current entry values into a frame and transmits it.
func (t *TransmitMapping) Send() error {
	return t.send(t.assemble())
}

// OnSync triggers a send for a SYNC-type mapping. No-op for other types.
func (t *TransmitMapping) OnSync() {
	if t.TransmissionType != Sync {
		return
	}
	if err := t.Send(); err != nil {
		log.WithError(err).WithField("cob_id", t.CobID).Warn("sync transmit PDO send failed")
	}
}

// Start launches the periodic timer goroutine. No-op for non-PERIODIC
// mappings.
func (t *TransmitMapping) Start() {
	if t.TransmissionType != Periodic {
		return
	}
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return
	}
	t.running = true
	t.mu.Unlock()

	go func() {
		defer close(t.done)
		// The first frame goes out immediately; the ticker paces every
		// one after it.
		if err := t.Send(); err != nil {
			log.WithError(err).WithField("cob_id", t.CobID).Warn("periodic transmit PDO send failed")
		}
		ticker := time.NewTicker(maxDuration(t.RepeatTime, time.Millisecond))
		defer ticker.Stop()
		for {
			select {
			case <-t.stop:
				return
			case <-ticker.C:
				if err := t.Send(); err != nil {
					log.WithError(err).WithField("cob_id", t.CobID).Warn("periodic transmit PDO send failed")
				}
			}
		}
	}()
}

func maxDuration(d, floor time.Duration) time.Duration {
	if d <= 0 {
		return floor
	}
	return d
}

// Close clears the running flag, joins the timer goroutine and unregisters
// every change observer.
func (t *TransmitMapping) Close() {
	t.mu.Lock()
	wasRunning := t.running
	t.running = false
	t.mu.Unlock()

	if wasRunning {
		close(t.stop)
		<-t.done
	}
	for _, reg := range t.observerHandles {
		reg.entry.RemoveObserver(reg.handle)
	}
}
