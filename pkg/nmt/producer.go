package nmt

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/canopen-go/master/pkg/can"
)

var log = logrus.WithField("component", "nmt")

// Sender transmits a single CAN frame.
type Sender func(can.Frame) error

// HeartbeatProducer owns a dedicated goroutine that emits a heartbeat frame
// for one device at a fixed interval until Stop is called.
type HeartbeatProducer struct {
	nodeID   uint8
	interval time.Duration
	send     Sender
	state    func() State

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

// NewHeartbeatProducer builds a producer for nodeID. stateFn is polled on
// each tick to get the current NMT state byte to publish.
func NewHeartbeatProducer(nodeID uint8, interval time.Duration, send Sender, stateFn func() State) *HeartbeatProducer {
	return &HeartbeatProducer{
		nodeID:   nodeID,
		interval: interval,
		send:     send,
		state:    stateFn,
	}
}

// Start launches the heartbeat goroutine. Calling Start twice without an
// intervening Stop is a no-op.
func (p *HeartbeatProducer) Start() {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	stop, done := p.stop, p.done
	p.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				frame := can.Frame{ID: HeartbeatCobID(p.nodeID), DLC: 1, Data: [8]byte{byte(p.state())}}
				if err := p.send(frame); err != nil {
					log.WithError(err).WithField("node", p.nodeID).Warn("heartbeat send failed")
				}
			}
		}
	}()
}

// Stop sets the terminating flag and joins the producer goroutine.
func (p *HeartbeatProducer) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	stop, done := p.stop, p.done
	p.mu.Unlock()

	close(stop)
	<-done
}
