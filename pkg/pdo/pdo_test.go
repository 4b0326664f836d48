package pdo

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canopen-go/master/pkg/can"
	"github.com/canopen-go/master/pkg/errs"
	"github.com/canopen-go/master/pkg/od"
	"github.com/canopen-go/master/pkg/value"
)

func newTestDict(t *testing.T) *od.Dictionary {
	t.Helper()
	d := od.NewDictionary()
	_, err := d.AddEntry(od.Address{Index: 0x6044, Subindex: 0}, "velocity_actual_value", value.Int32, od.ReadOnly, od.ReadPDO, od.WriteUseDefault)
	require.NoError(t, err)
	_, err = d.AddEntry(od.Address{Index: 0x6041, Subindex: 0}, "statusword", value.Uint16, od.ReadOnly, od.ReadPDO, od.WriteUseDefault)
	require.NoError(t, err)
	_, err = d.AddEntry(od.Address{Index: 0x60FF, Subindex: 0}, "target_velocity", value.Int32, od.ReadWrite, od.ReadCache, od.WriteUseDefault)
	require.NoError(t, err)
	_, err = d.AddEntry(od.Address{Index: 0x6040, Subindex: 0}, "controlword", value.Uint16, od.ReadWrite, od.ReadCache, od.WriteUseDefault)
	require.NoError(t, err)
	return d
}

// TestReceiveDemux splits one frame across two mappings on the same COB-ID.
func TestReceiveDemux(t *testing.T) {
	dict := newTestDict(t)
	router := NewRouter()

	velocityDispatch, err := NewDefaultDispatch(dict, ReceiveMapping{CobID: 0x181, EntryName: "velocity_actual_value", Offset: 0})
	require.NoError(t, err)
	statusDispatch, err := NewDefaultDispatch(dict, ReceiveMapping{CobID: 0x181, EntryName: "statusword", Offset: 4})
	require.NoError(t, err)
	router.Register(0x181, velocityDispatch)
	router.Register(0x181, statusDispatch)

	router.Dispatch(0x181, []byte{0xE8, 0x03, 0x00, 0x00, 0x37, 0x02, 0, 0})

	velocity, err := dict.ByName("velocity_actual_value")
	require.NoError(t, err)
	v, err := velocity.Value().AsInt64()
	require.NoError(t, err)
	assert.EqualValues(t, 1000, v)

	status, err := dict.ByName("statusword")
	require.NoError(t, err)
	s, err := status.Value().AsUint64()
	require.NoError(t, err)
	assert.EqualValues(t, 0x0237, s)
}

func TestReceiveDispatchDropsShortPayload(t *testing.T) {
	dict := newTestDict(t)
	dispatch, err := NewDefaultDispatch(dict, ReceiveMapping{CobID: 0x181, EntryName: "velocity_actual_value", Offset: 4})
	require.NoError(t, err)

	assert.NotPanics(t, func() { dispatch([]byte{0, 0, 0, 0, 0}) })
	velocity, _ := dict.ByName("velocity_actual_value")
	assert.False(t, velocity.Value().IsValid())
}

func TestReceiveMappingBoundary(t *testing.T) {
	dict := od.NewDictionary()
	_, err := dict.AddEntry(od.Address{Index: 0x2000, Subindex: 0}, "byte_field", value.Uint8, od.ReadOnly, od.ReadPDO, od.WriteUseDefault)
	require.NoError(t, err)

	_, err = NewDefaultDispatch(dict, ReceiveMapping{CobID: 0x181, EntryName: "byte_field", Offset: 7})
	assert.NoError(t, err)

	_, err = NewDefaultDispatch(dict, ReceiveMapping{CobID: 0x181, EntryName: "byte_field", Offset: 8})
	var mappingErr *errs.MappingSize
	assert.ErrorAs(t, err, &mappingErr)
}

func TestTransmitMappingOverlapRejected(t *testing.T) {
	dict := newTestDict(t)
	_, err := NewTransmitMapping(dict, 0x201, []Mapping{
		{EntryName: "target_velocity", Offset: 0},
		{EntryName: "controlword", Offset: 2},
	}, Periodic, 50*time.Millisecond, func(can.Frame) error { return nil })
	var overlapErr *errs.MappingOverlap
	assert.ErrorAs(t, err, &overlapErr)
}

// TestPeriodicTransmit checks the timer-driven emitter and its payload.
func TestPeriodicTransmit(t *testing.T) {
	dict := newTestDict(t)

	var mu sync.Mutex
	var frames []can.Frame
	sender := func(f can.Frame) error {
		mu.Lock()
		frames = append(frames, f)
		mu.Unlock()
		return nil
	}

	mapping, err := NewTransmitMapping(dict, 0x201, []Mapping{
		{EntryName: "target_velocity", Offset: 0},
		{EntryName: "controlword", Offset: 4},
	}, Periodic, 20*time.Millisecond, sender)
	require.NoError(t, err)

	targetVelocity, _ := dict.ByName("target_velocity")
	targetVelocity.Set(value.FromInt32(500))
	controlword, _ := dict.ByName("controlword")
	controlword.Set(value.FromUint16(0x000F))

	mapping.Start()
	time.Sleep(120 * time.Millisecond)
	mapping.Close()

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(frames), 3)
	want := [8]byte{0xF4, 0x01, 0x00, 0x00, 0x0F, 0x00, 0, 0}
	assert.Equal(t, want, frames[0].Data)
	assert.EqualValues(t, 0x201, frames[0].ID)
}

// TestPeriodicTransmitSendsImmediately checks the first frame goes out at
// Start rather than one full repeat period later.
func TestPeriodicTransmitSendsImmediately(t *testing.T) {
	dict := newTestDict(t)

	var mu sync.Mutex
	sends := 0
	sender := func(can.Frame) error {
		mu.Lock()
		sends++
		mu.Unlock()
		return nil
	}

	mapping, err := NewTransmitMapping(dict, 0x201, []Mapping{{EntryName: "target_velocity", Offset: 0}}, Periodic, time.Second, sender)
	require.NoError(t, err)

	mapping.Start()
	time.Sleep(50 * time.Millisecond)
	mapping.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, sends)
}

func TestOnChangeTransmit(t *testing.T) {
	dict := newTestDict(t)

	var mu sync.Mutex
	sends := 0
	sender := func(can.Frame) error {
		mu.Lock()
		sends++
		mu.Unlock()
		return nil
	}

	mapping, err := NewTransmitMapping(dict, 0x181, []Mapping{{EntryName: "statusword", Offset: 0}}, OnChange, 0, sender)
	require.NoError(t, err)
	defer mapping.Close()

	status, _ := dict.ByName("statusword")
	_, observers := status.Set(value.FromUint16(0x02))
	for _, o := range observers {
		o(status.Value())
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, sends)
}
