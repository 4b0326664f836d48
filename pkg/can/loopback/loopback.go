// Package loopback provides an in-process pkg/can.Bus with no network
// dependency, used to drive the master stack's own test suite without a
// real interface or a virtual-CAN broker.
package loopback

import (
	"errors"
	"sync"

	"github.com/canopen-go/master/pkg/can"
)

var errClosed = errors.New("loopback: bus is closed")

// Bus is a shared in-memory CAN segment. Every endpoint opened on the same
// Bus observes every frame sent by any endpoint, including its own unless
// SetReceiveOwn(false) is called — mirroring real CAN controllers, which loop
// transmitted frames back to local listeners by default.
type Bus struct {
	mu          sync.Mutex
	listeners   []can.FrameListener
	receiveOwn  bool
	connected   bool
}

// New creates a fresh loopback segment. Multiple *Endpoint values created
// with Open share the same segment and see each other's traffic.
func New() *Bus {
	return &Bus{receiveOwn: true}
}

// Open returns a new can.Bus handle onto this segment.
func (b *Bus) Open() *Endpoint {
	return &Endpoint{segment: b}
}

func (b *Bus) subscribe(l can.FrameListener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, l)
}

func (b *Bus) dispatch(from *Endpoint, frame can.Frame) {
	b.mu.Lock()
	listeners := append([]can.FrameListener(nil), b.listeners...)
	receiveOwn := b.receiveOwn
	b.mu.Unlock()
	for _, l := range listeners {
		if !receiveOwn && l == can.FrameListener(from) {
			continue
		}
		l.Handle(frame)
	}
}

// SetReceiveOwn controls whether Send loops a frame back to the sender's
// own subscription, matching real controllers' default of receiving their
// own transmissions unless explicitly suppressed.
func (b *Bus) SetReceiveOwn(receiveOwn bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.receiveOwn = receiveOwn
}

// Endpoint is one station's view of a loopback Bus; it implements can.Bus.
type Endpoint struct {
	segment  *Bus
	mu       sync.Mutex
	listener can.FrameListener
	closed   bool
}

func (e *Endpoint) Connect(...any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = false
	return nil
}

func (e *Endpoint) Disconnect() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

func (e *Endpoint) Send(frame can.Frame) error {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return errClosed
	}
	e.segment.dispatch(e, frame)
	return nil
}

func (e *Endpoint) Subscribe(listener can.FrameListener) error {
	e.mu.Lock()
	e.listener = listener
	e.mu.Unlock()
	e.segment.subscribe(e)
	return nil
}

// Handle lets Endpoint itself act as the FrameListener the segment compares
// against for ReceiveOwn suppression, forwarding to the real subscriber.
func (e *Endpoint) Handle(frame can.Frame) {
	e.mu.Lock()
	listener := e.listener
	e.mu.Unlock()
	if listener != nil {
		listener.Handle(frame)
	}
}
