// Package device implements the per-node object dictionary aggregate: the
// dictionary and name index, SDO-backed accessors with retry, the receive
// and transmit PDO lists, remote PDO reconfiguration, and the
// profile operations/constants tables.
package device

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	canopen "github.com/canopen-go/master"
	"github.com/canopen-go/master/pkg/config"
	"github.com/canopen-go/master/pkg/errs"
	"github.com/canopen-go/master/pkg/nmt"
	"github.com/canopen-go/master/pkg/od"
	"github.com/canopen-go/master/pkg/pdo"
	"github.com/canopen-go/master/pkg/sdo"
	"github.com/canopen-go/master/pkg/value"
)

var log = logrus.WithField("component", "device")

// Operation is a profile-installed callable, dispatched by Execute.
type Operation func(d *Device, arg value.Value) (value.Value, error)

type receiveRegistration struct {
	mapping pdo.ReceiveMapping
	handle  pdo.RouteHandle
}

// Device is the per-node aggregate: it owns the
// dictionary, the name index (via Dictionary), the operations and
// constants tables, the receive and transmit PDO lists, and the heartbeat
// producer.
type Device struct {
	core   *canopen.Core
	nodeID uint8
	cfg    canopen.Config

	dict         *od.Dictionary
	sdoClient    *sdo.Client
	configurator *config.NodeConfigurator

	opMu       sync.RWMutex
	operations map[string]Operation
	constants  map[string]value.Value

	rpdoMu   sync.Mutex
	rpdos    []receiveRegistration
	tpdoMu   sync.Mutex
	tpdos    []*pdo.TransmitMapping

	heartbeat *nmt.HeartbeatProducer
	stateMu   sync.Mutex
	state     nmt.State

	sleep func(time.Duration) // overridable in tests, per the injectable-clock design note
}

// New binds a Device to core for the given node ID. The dictionary starts
// empty; populate it with AddEntry calls or an EDS loader before Start.
func New(core *canopen.Core, nodeID uint8, cfg canopen.Config) *Device {
	d := &Device{
		core:       core,
		nodeID:     nodeID,
		cfg:        cfg,
		dict:       od.NewDictionary(),
		operations: make(map[string]Operation),
		constants:  make(map[string]value.Value),
		state:      nmt.StateInitializing,
		sleep:      time.Sleep,
	}
	d.sdoClient = sdo.NewClient(nodeID, core.Send, cfg.SDOResponseTimeout)
	d.configurator = config.NewNodeConfigurator(d.sdoClient)
	core.RegisterSDOHandler(d.sdoClient.CobIDRx(), d.sdoClient)
	return d
}

// Configurator exposes the communication-profile helpers (identity,
// heartbeat, SYNC, PDO communication and mapping records) for this node.
// These go straight over SDO and need no dictionary entries.
func (d *Device) Configurator() *config.NodeConfigurator { return d.configurator }

// NodeID returns the bound CANopen node ID.
func (d *Device) NodeID() uint8 { return d.nodeID }

// Dictionary exposes the object dictionary for direct inspection or EDS
// population.
func (d *Device) Dictionary() *od.Dictionary { return d.dict }

func (d *Device) currentState() nmt.State {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	return d.state
}

func (d *Device) setState(s nmt.State) {
	d.stateMu.Lock()
	d.state = s
	d.stateMu.Unlock()
}

// Start sets the local NMT state to operational, launches the heartbeat
// producer and then sends NMT start_node. It installs no profile
// operations or constants; those are registered with AddOperation and
// AddConstant. EDS loading is never triggered here: it is externally driven.
func (d *Device) Start(heartbeatInterval time.Duration) error {
	d.setState(nmt.StateOperational)
	d.heartbeat = nmt.NewHeartbeatProducer(d.nodeID, heartbeatInterval, d.core.Send, d.currentState)
	d.heartbeat.Start()
	return d.core.Send(nmt.CommandFrame(nmt.StartNode, d.nodeID))
}

// Close stops the heartbeat producer, unregisters every receive PDO
// callback from the Core's dispatcher, and tears down every transmit PDO
// mapping.
func (d *Device) Close() {
	if d.heartbeat != nil {
		d.heartbeat.Stop()
	}

	d.rpdoMu.Lock()
	rpdos := d.rpdos
	d.rpdos = nil
	d.rpdoMu.Unlock()
	for _, r := range rpdos {
		d.core.PDORouter().Unregister(r.handle)
	}

	d.tpdoMu.Lock()
	tpdos := d.tpdos
	d.tpdos = nil
	d.tpdoMu.Unlock()
	for _, t := range tpdos {
		t.Close()
	}
}

// AddEntry registers a new dictionary entry, deriving the default
// read/write access methods from the slave-side access type.
func (d *Device) AddEntry(index uint16, subindex uint8, name string, t value.Type, access od.AccessType) (*od.Entry, error) {
	var readMethod od.ReadAccessMethod
	var writeMethod od.WriteAccessMethod
	switch access {
	case od.ReadOnly, od.Constant:
		readMethod, writeMethod = od.ReadSDO, od.WriteUseDefault
	case od.WriteOnly:
		readMethod, writeMethod = od.ReadUseDefault, od.WriteSDO
	default:
		readMethod, writeMethod = od.ReadSDO, od.WriteSDO
	}
	return d.dict.AddEntry(od.Address{Index: index, Subindex: subindex}, name, t, access, readMethod, writeMethod)
}

// HasEntry reports whether name is registered.
func (d *Device) HasEntry(name string) bool { return d.dict.HasEntryByName(name) }

// HasEntryAt reports whether (index, subindex) is registered.
func (d *Device) HasEntryAt(index uint16, subindex uint8) bool {
	return d.dict.HasEntryByAddress(od.Address{Index: index, Subindex: subindex})
}

// GetEntryType returns name's declared type.
func (d *Device) GetEntryType(name string) (value.Type, error) {
	e, err := d.dict.ByName(name)
	if err != nil {
		return value.Invalid, err
	}
	return e.Type, nil
}

// GetEntry returns name's current value, refreshing it via SDO first when
// the effective read access resolves to sdo. It never blocks waiting for a
// PDO to arrive.
func (d *Device) GetEntry(name string, access od.ReadAccessMethod) (value.Value, error) {
	e, err := d.dict.ByName(name)
	if err != nil {
		return value.Value{}, err
	}

	effective := e.EffectiveReadMethod(access)
	if effective != od.ReadSDO {
		return e.Value(), nil
	}

	v, err := d.GetEntryViaSDO(e.Address.Index, e.Address.Subindex, e.Type)
	if err != nil {
		return value.Value{}, err
	}
	changed, observers := e.Set(v)
	if changed {
		for _, o := range observers {
			o(v)
		}
	}
	return v, nil
}

// SetEntry validates v's type, stores it, fires value-changed observers if
// it changed, and issues an SDO download when the effective write access
// resolves to sdo. The local entry is updated before the download
// completes and is NOT rolled back on SDO failure.
func (d *Device) SetEntry(name string, v value.Value, access od.WriteAccessMethod) error {
	e, err := d.dict.ByName(name)
	if err != nil {
		return err
	}
	if v.Type() != e.Type {
		return &errs.WrongType{Reference: name, Expected: e.Type, Got: v.Type()}
	}

	changed, observers := e.Set(v)
	if changed {
		for _, o := range observers {
			o(v)
		}
	}

	effective := e.EffectiveWriteMethod(access)
	if effective != od.WriteSDO {
		return nil
	}
	return d.SetEntryViaSDO(e.Address.Index, e.Address.Subindex, v)
}

// Execute dispatches a profile operation by name.
func (d *Device) Execute(name string, arg value.Value) (value.Value, error) {
	d.opMu.RLock()
	op, ok := d.operations[name]
	d.opMu.RUnlock()
	if !ok {
		return value.Value{}, &errs.UnknownOperation{Name: name}
	}
	return op(d, arg)
}

// AddOperation installs a profile operation under name.
func (d *Device) AddOperation(name string, op Operation) {
	d.opMu.Lock()
	d.operations[name] = op
	d.opMu.Unlock()
}

// Constant returns a registered constant by name.
func (d *Device) Constant(name string) (value.Value, error) {
	d.opMu.RLock()
	defer d.opMu.RUnlock()
	v, ok := d.constants[name]
	if !ok {
		return value.Value{}, &errs.UnknownConstant{Name: name}
	}
	return v, nil
}

// AddConstant installs a named constant.
func (d *Device) AddConstant(name string, v value.Value) {
	d.opMu.Lock()
	d.constants[name] = v
	d.opMu.Unlock()
}
