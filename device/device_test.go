package device

import (
	"encoding/binary"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	canopen "github.com/canopen-go/master"
	"github.com/canopen-go/master/pkg/can"
	"github.com/canopen-go/master/pkg/can/loopback"
	"github.com/canopen-go/master/pkg/errs"
	"github.com/canopen-go/master/pkg/od"
	"github.com/canopen-go/master/pkg/pdo"
	"github.com/canopen-go/master/pkg/value"
)

// fakeSlave answers SDO requests addressed to one node with a
// caller-supplied responder, simulating the remote object dictionary
// side of the protocol for tests.
type fakeSlave struct {
	endpoint can.Bus
	nodeID   uint8
	mu       sync.Mutex
	respond  func(req can.Frame) (can.Frame, bool)
}

func newFakeSlave(t *testing.T, segment *loopback.Bus, nodeID uint8, respond func(req can.Frame) (can.Frame, bool)) *fakeSlave {
	t.Helper()
	s := &fakeSlave{endpoint: segment.Open(), nodeID: nodeID, respond: respond}
	require.NoError(t, s.endpoint.Connect())
	require.NoError(t, s.endpoint.Subscribe(can.FrameListenerFunc(s.handle)))
	return s
}

func (s *fakeSlave) handle(frame can.Frame) {
	if frame.Identifier() != 0x600+uint32(s.nodeID) {
		return
	}
	s.mu.Lock()
	respond := s.respond
	s.mu.Unlock()
	resp, ok := respond(frame)
	if !ok {
		return
	}
	resp.ID = 0x580 + uint32(s.nodeID)
	resp.DLC = 8
	_ = s.endpoint.Send(resp)
}

func newTestDevice(t *testing.T) (*Device, *canopen.Core, *loopback.Bus) {
	t.Helper()
	segment := loopback.New()
	endpoint := segment.Open()
	cfg := canopen.DefaultConfig()
	cfg.SDOResponseTimeout = 50 * time.Millisecond
	cfg.RepeatsOnSDOTimeout = 2
	cfg.LivenessCheckInterval = 20 * time.Millisecond
	core, err := canopen.NewCore(endpoint, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { core.Close() })

	d := New(core, 0x01, cfg)
	t.Cleanup(d.Close)
	return d, core, segment
}

// TestGetEntryViaSDOExpedited reads the device type object over expedited SDO.
func TestGetEntryViaSDOExpedited(t *testing.T) {
	d, _, segment := newTestDevice(t)
	_, err := d.AddEntry(0x1000, 0, "device_type", value.Uint32, od.ReadOnly)
	require.NoError(t, err)

	newFakeSlave(t, segment, d.NodeID(), func(req can.Frame) (can.Frame, bool) {
		if req.Data != [8]byte{0x40, 0x00, 0x10, 0x00, 0, 0, 0, 0} {
			return can.Frame{}, false
		}
		return can.Frame{Data: [8]byte{0x43, 0x00, 0x10, 0x00, 0x92, 0x01, 0x02, 0x00}}, true
	})

	v, err := d.GetEntry("device_type", od.ReadSDO)
	require.NoError(t, err)
	u, err := v.AsUint64()
	require.NoError(t, err)
	assert.EqualValues(t, 0x00020192, u)
}

// TestSetEntryViaSDORetryExhaustion checks the optimistic local update
// survives an SDO download that never gets a response.
func TestSetEntryViaSDORetryExhaustion(t *testing.T) {
	d, _, _ := newTestDevice(t)
	_, err := d.AddEntry(0x6040, 0, "controlword", value.Uint16, od.ReadWrite)
	require.NoError(t, err)

	err = d.SetEntry("controlword", value.FromUint16(0x000F), od.WriteSDO)
	require.Error(t, err)

	v, getErr := d.GetEntry("controlword", od.ReadCache)
	require.NoError(t, getErr)
	u, _ := v.AsUint64()
	assert.EqualValues(t, 0x000F, u, "local value not rolled back on SDO failure")
}

func TestAddEntryDuplicateRejected(t *testing.T) {
	d, _, _ := newTestDevice(t)
	_, err := d.AddEntry(0x6040, 0, "controlword", value.Uint16, od.ReadWrite)
	require.NoError(t, err)
	_, err = d.AddEntry(0x6040, 0, "other", value.Uint16, od.ReadWrite)
	assert.Error(t, err)
}

func TestReceivePDOWiredThroughCore(t *testing.T) {
	d, _, segment := newTestDevice(t)
	_, err := d.AddEntry(0x6044, 0, "velocity_actual_value", value.Int32, od.ReadOnly)
	require.NoError(t, err)

	require.NoError(t, d.AddReceivePDOMapping(0x181, "velocity_actual_value", 0))

	other := segment.Open()
	require.NoError(t, other.Connect())
	require.NoError(t, other.Send(can.Frame{ID: 0x181, DLC: 8, Data: [8]byte{0xE8, 0x03, 0, 0, 0, 0, 0, 0}}))

	time.Sleep(10 * time.Millisecond)
	v, err := d.GetEntry("velocity_actual_value", od.ReadCache)
	require.NoError(t, err)
	got, _ := v.AsInt64()
	assert.EqualValues(t, 1000, got)
}

// TestAddReceivePDOMappingFuncValidated checks the custom-closure form
// runs the same mapping validation as the default form and that the
// closure replaces the dictionary update.
func TestAddReceivePDOMappingFuncValidated(t *testing.T) {
	d, _, segment := newTestDevice(t)
	_, err := d.AddEntry(0x6041, 0, "statusword", value.Uint16, od.ReadOnly)
	require.NoError(t, err)

	err = d.AddReceivePDOMappingFunc(0x181, "statusword", 7, func([]byte) {})
	var mappingErr *errs.MappingSize
	assert.ErrorAs(t, err, &mappingErr)
	err = d.AddReceivePDOMappingFunc(0x181, "no_such_entry", 0, func([]byte) {})
	var unknown *errs.UnknownEntry
	assert.ErrorAs(t, err, &unknown)

	var mu sync.Mutex
	var got []byte
	require.NoError(t, d.AddReceivePDOMappingFunc(0x181, "statusword", 4, func(data []byte) {
		mu.Lock()
		got = append([]byte{}, data...)
		mu.Unlock()
	}))

	other := segment.Open()
	require.NoError(t, other.Connect())
	require.NoError(t, other.Send(can.Frame{ID: 0x181, DLC: 8, Data: [8]byte{0, 0, 0, 0, 0x37, 0x02, 0, 0}}))

	time.Sleep(10 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []byte{0, 0, 0, 0, 0x37, 0x02, 0, 0}, got)

	// The custom closure replaced the dictionary update entirely.
	v, err := d.GetEntry("statusword", od.ReadCache)
	require.NoError(t, err)
	assert.False(t, v.IsValid())
}

// TestGetEntryFromCacheIgnoresDisabled checks that an entry disabled by a
// failed probe sweep still serves its cached value: disabled only skips
// the probe and is marked in the diagnostic dump, it never poisons reads.
func TestGetEntryFromCacheIgnoresDisabled(t *testing.T) {
	d, _, _ := newTestDevice(t)
	_, err := d.AddEntry(0x6041, 0, "statusword", value.Uint16, od.ReadOnly)
	require.NoError(t, err)

	entry, err := d.Dictionary().ByName("statusword")
	require.NoError(t, err)
	entry.Set(value.FromUint16(0x0237))
	entry.SetDisabled(true)

	v, err := d.GetEntry("statusword", od.ReadCache)
	require.NoError(t, err)
	u, _ := v.AsUint64()
	assert.EqualValues(t, 0x0237, u)
}

func TestTransmitPDOWiredThroughCore(t *testing.T) {
	d, _, segment := newTestDevice(t)
	_, err := d.AddEntry(0x60FF, 0, "target_velocity", value.Int32, od.ReadWrite)
	require.NoError(t, err)

	var mu sync.Mutex
	var frames []can.Frame
	observer := segment.Open()
	require.NoError(t, observer.Connect())
	require.NoError(t, observer.Subscribe(can.FrameListenerFunc(func(f can.Frame) {
		if f.Identifier() != 0x201 {
			return
		}
		mu.Lock()
		frames = append(frames, f)
		mu.Unlock()
	})))

	_, err = d.AddTransmitPDOMapping(0x201, []pdo.Mapping{{EntryName: "target_velocity", Offset: 0}}, pdo.Periodic, 20*time.Millisecond)
	require.NoError(t, err)

	require.NoError(t, d.SetEntry("target_velocity", value.FromInt32(500), od.WritePDO))
	time.Sleep(90 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, frames)
	got := int32(binary.LittleEndian.Uint32(frames[len(frames)-1].Data[0:4]))
	assert.EqualValues(t, 500, got)
}

// TestMapTPDOInDeviceSequence checks the
// exact write order of a remote TPDO1 remap.
func TestMapTPDOInDeviceSequence(t *testing.T) {
	d, _, segment := newTestDevice(t)

	var mu sync.Mutex
	var writes [][4]byte
	cobID := uint32(0x182)

	newFakeSlave(t, segment, d.NodeID(), func(req can.Frame) (can.Frame, bool) {
		mu.Lock()
		writes = append(writes, [4]byte{req.Data[1], req.Data[2], req.Data[3], req.Data[0]})
		mu.Unlock()

		index := binary.LittleEndian.Uint16(req.Data[1:3])
		switch {
		case index == 0x1800 && req.Data[3] == 1 && req.Data[0]&0xE0 == 0x40:
			// upload request for current COB-ID
			resp := can.Frame{Data: [8]byte{0x43, 0x00, 0x18, 0x01}}
			binary.LittleEndian.PutUint32(resp.Data[4:8], cobID)
			return resp, true
		default:
			return can.Frame{Data: [8]byte{0x60, req.Data[1], req.Data[2], req.Data[3]}}, true
		}
	})

	err := d.MapTPDOInDevice(PDO1, []uint32{0x60640020, 0x60410010}, 255, nil, nil)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(writes), 7)

	assertIndex := func(i int, index uint16, sub byte) {
		got := binary.LittleEndian.Uint16(writes[i][0:2])
		assert.Equal(t, index, got, "write %d index", i)
		assert.Equal(t, sub, writes[i][2], "write %d subindex", i)
	}
	assertIndex(0, 0x1800, 1) // read current cob-id
	assertIndex(1, 0x1800, 1) // disable (set bit31), write back
	assertIndex(2, 0x1A00, 0) // clear mapping count
	assertIndex(3, 0x1A00, 1)
	assertIndex(4, 0x1A00, 2)
	assertIndex(5, 0x1A00, 0) // set mapping count = 2
	assertIndex(6, 0x1800, 2) // transmit type
	assertIndex(7, 0x1800, 1) // re-enable (clear bit31)
}
