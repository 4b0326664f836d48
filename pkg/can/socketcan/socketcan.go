// Package socketcan wraps brutella/can as a pkg/can.Bus implementation for
// real Linux SocketCAN hardware. This is the external CAN driver collaborator
// the master stack is built against; swap it out for any other can.Bus.
package socketcan

import (
	sockcan "github.com/brutella/can"

	"github.com/canopen-go/master/pkg/can"
)

func init() {
	can.RegisterInterface("socketcan", NewBus)
}

// Bus adapts a brutella/can socket to pkg/can.Bus.
type Bus struct {
	conn       *sockcan.Bus
	rxListener can.FrameListener
}

func (b *Bus) Connect(...any) error {
	go func() {
		// ConnectAndPublish blocks until the interface is closed; errors here
		// are only observable through the absence of further frames.
		_ = b.conn.ConnectAndPublish()
	}()
	return nil
}

func (b *Bus) Disconnect() error {
	return b.conn.Disconnect()
}

func (b *Bus) Send(frame can.Frame) error {
	return b.conn.Publish(sockcan.Frame{
		ID:     frame.ID,
		Length: frame.DLC,
		Flags:  frame.Flags,
		Data:   frame.Data,
	})
}

func (b *Bus) Subscribe(listener can.FrameListener) error {
	b.rxListener = listener
	// brutella/can has its own Handle(sockcan.Frame) callback shape; b itself
	// implements it below and re-dispatches into the pkg/can shape.
	b.conn.Subscribe(b)
	return nil
}

// Handle satisfies brutella/can's frame handler interface.
func (b *Bus) Handle(frame sockcan.Frame) {
	if b.rxListener == nil {
		return
	}
	b.rxListener.Handle(can.Frame{ID: frame.ID, DLC: frame.Length, Flags: frame.Flags, Data: frame.Data})
}

// NewBus opens a SocketCAN interface by name, e.g. "can0".
func NewBus(name string) (can.Bus, error) {
	conn, err := sockcan.NewBusForInterfaceWithName(name)
	if err != nil {
		return nil, err
	}
	return &Bus{conn: conn}, nil
}
