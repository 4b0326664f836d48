// Package canopen is the master-side CANopen device abstraction: a Core
// bus facade shared by every Device bound to it, dispatching inbound
// frames to the SDO, PDO and NMT subsystems and serializing outbound
// sends.
package canopen

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/canopen-go/master/pkg/can"
	"github.com/canopen-go/master/pkg/nmt"
	"github.com/canopen-go/master/pkg/pdo"
)

var log = logrus.WithField("component", "core")

// COB-ID range boundaries from the pre-defined connection set.
const (
	sdoTxLow, sdoTxHigh = uint32(0x580), uint32(0x5FF)
	sdoRxLow, sdoRxHigh = uint32(0x600), uint32(0x67F)
	pdoLow, pdoHigh     = uint32(0x180), uint32(0x57F)
	heartbeatLow        = uint32(0x700)
	heartbeatHigh       = uint32(0x77F)
)

// SDOHandler receives inbound SDO response frames for one node.
type SDOHandler interface {
	Handle(can.Frame)
}

// Core owns the CAN driver and fans inbound frames out to the SDO, PDO and
// NMT subsystems by COB-ID range.
// Every Device created against a Core shares its driver, PDO router and
// heartbeat consumer. The receive path (onFrame) never runs user code
// directly: PDO dispatch and heartbeat observation are synchronous but
// cheap, and anything slower is pushed onto a background task by the
// downstream subsystem itself.
type Core struct {
	bus can.Bus

	sendMu sync.Mutex

	pdoRouter *pdo.Router
	Heartbeat *nmt.Consumer

	mu          sync.RWMutex
	sdoHandlers map[uint32]SDOHandler
	syncFns     []func()
}

// Config bundles the Core's process-wide timing knobs.
type Config struct {
	// SDOResponseTimeout bounds each individual SDO segment round trip.
	SDOResponseTimeout time.Duration
	// RepeatsOnSDOTimeout is the number of additional attempts issued
	// after the first timeout by the Device-level SDO wrappers.
	RepeatsOnSDOTimeout int
	// LivenessCheckInterval is how often the NMT liveness checker scans
	// every tracked node for a missed heartbeat.
	LivenessCheckInterval time.Duration
	// LivenessDeadThreshold is the dead-timeout as a multiple of
	// LivenessCheckInterval.
	LivenessDeadThreshold int
}

// DefaultConfig returns the stack's usual timing defaults: one second per
// SDO segment with two retries, and a 100ms liveness scan with a three
// interval dead threshold.
func DefaultConfig() Config {
	return Config{
		SDOResponseTimeout:    time.Second,
		RepeatsOnSDOTimeout:   2,
		LivenessCheckInterval: 100 * time.Millisecond,
		LivenessDeadThreshold: 3,
	}
}

// NewCore wraps bus with the dispatch and send-serialization machinery
// and starts the NMT liveness checker.
func NewCore(bus can.Bus, cfg Config) (*Core, error) {
	c := &Core{
		bus:         bus,
		pdoRouter:   pdo.NewRouter(),
		sdoHandlers: make(map[uint32]SDOHandler),
	}
	c.Heartbeat = nmt.NewConsumer(cfg.LivenessCheckInterval, cfg.LivenessDeadThreshold, func(f func()) { go f() })

	if err := bus.Connect(); err != nil {
		return nil, err
	}
	if err := bus.Subscribe(can.FrameListenerFunc(c.onFrame)); err != nil {
		return nil, err
	}
	c.Heartbeat.Start()
	return c, nil
}

// Send transmits frame, serialized behind the Core's send mutex: the
// single shared resource every SDO call, PDO transmitter and NMT command
// contends for.
func (c *Core) Send(frame can.Frame) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	return c.bus.Send(frame)
}

// PDORouter exposes the receive-PDO dispatch table Devices register
// mappings into.
func (c *Core) PDORouter() *pdo.Router { return c.pdoRouter }

// RegisterSDOHandler attaches h to receive every frame with the given
// COB-ID (a node's 0x580+id server-to-client channel).
func (c *Core) RegisterSDOHandler(cobID uint32, h SDOHandler) {
	c.mu.Lock()
	c.sdoHandlers[cobID] = h
	c.mu.Unlock()
}

// UnregisterSDOHandler removes a previously registered handler.
func (c *Core) UnregisterSDOHandler(cobID uint32) {
	c.mu.Lock()
	delete(c.sdoHandlers, cobID)
	c.mu.Unlock()
}

// OnSync registers fn to run whenever a SYNC frame (COB-ID 0x080) arrives,
// used to drive SYNC-type transmit PDO mappings.
func (c *Core) OnSync(fn func()) {
	c.mu.Lock()
	c.syncFns = append(c.syncFns, fn)
	c.mu.Unlock()
}

// Close stops the liveness checker and disconnects the underlying bus.
func (c *Core) Close() error {
	c.Heartbeat.Stop()
	return c.bus.Disconnect()
}

// onFrame classifies and dispatches one inbound frame. This is the
// module's single receive thread: it must stay fast and never run
// arbitrary user code inline.
func (c *Core) onFrame(frame can.Frame) {
	id := frame.Identifier()
	switch {
	case id == pdo.SyncCobID:
		c.mu.RLock()
		fns := append([]func(){}, c.syncFns...)
		c.mu.RUnlock()
		for _, fn := range fns {
			fn()
		}
	case id >= sdoTxLow && id <= sdoTxHigh:
		c.mu.RLock()
		h, ok := c.sdoHandlers[id]
		c.mu.RUnlock()
		if ok {
			h.Handle(frame)
		}
	case id >= heartbeatLow && id <= heartbeatHigh:
		nodeID := uint8(id - heartbeatLow)
		c.Heartbeat.Handle(nodeID, time.Now())
	case id >= pdoLow && id <= pdoHigh:
		c.pdoRouter.Dispatch(id, frame.Data[:frame.DLC])
	default:
		log.WithField("cob_id", id).Trace("unclassified frame, dropped")
	}
}
