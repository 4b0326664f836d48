package config

import (
	"encoding/binary"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canopen-go/master/pkg/can"
	"github.com/canopen-go/master/pkg/sdo"
)

// objectStore emulates the reserved-object area of a slave's dictionary:
// expedited uploads read from it, expedited downloads write to it.
type objectStore struct {
	mu      sync.Mutex
	objects map[[3]byte][]byte
}

func key(index uint16, sub uint8) [3]byte {
	return [3]byte{byte(index), byte(index >> 8), sub}
}

func (s *objectStore) set(index uint16, sub uint8, data []byte) {
	s.mu.Lock()
	s.objects[key(index, sub)] = data
	s.mu.Unlock()
}

func (s *objectStore) get(index uint16, sub uint8) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.objects[key(index, sub)]
}

func newStoreBackedConfigurator(t *testing.T, nodeID uint8) (*NodeConfigurator, *objectStore) {
	t.Helper()
	store := &objectStore{objects: make(map[[3]byte][]byte)}

	var client *sdo.Client
	client = sdo.NewClient(nodeID, func(req can.Frame) error {
		index := binary.LittleEndian.Uint16(req.Data[1:3])
		sub := req.Data[3]
		resp := can.Frame{ID: sdo.BaseServerToClient + uint32(nodeID), DLC: 8}

		switch req.Data[0] & 0xE0 {
		case 0x40: // upload initiate
			data := store.get(index, sub)
			if data == nil {
				resp.Data = [8]byte{0x80, req.Data[1], req.Data[2], sub}
				binary.LittleEndian.PutUint32(resp.Data[4:8], 0x06020000)
				break
			}
			resp.Data[0] = 0x40 | 0x03 | byte(4-len(data))<<2
			resp.Data[1], resp.Data[2], resp.Data[3] = req.Data[1], req.Data[2], sub
			copy(resp.Data[4:], data)
		case 0x20: // download initiate, expedited
			n := 4 - int(req.Data[0]>>2&0x03)
			data := make([]byte, n)
			copy(data, req.Data[4:4+n])
			store.set(index, sub, data)
			resp.Data = [8]byte{0x60, req.Data[1], req.Data[2], sub}
		default:
			t.Fatalf("unexpected sdo request 0x%02x", req.Data[0])
		}
		go client.Handle(resp)
		return nil
	}, 100*time.Millisecond)

	return NewNodeConfigurator(client), store
}

func TestReadIdentity(t *testing.T) {
	conf, store := newStoreBackedConfigurator(t, 0x10)
	store.set(0x1018, 1, []byte{0x2C, 0x01, 0x00, 0x00})
	store.set(0x1018, 2, []byte{0x01, 0x00, 0x00, 0x00})
	store.set(0x1018, 3, []byte{0x02, 0x00, 0x01, 0x00})
	store.set(0x1018, 4, []byte{0x78, 0x56, 0x34, 0x12})

	identity, err := conf.ReadIdentity()
	require.NoError(t, err)
	assert.EqualValues(t, 0x12C, identity.VendorID)
	assert.EqualValues(t, 1, identity.ProductCode)
	assert.EqualValues(t, 0x10002, identity.RevisionNumber)
	assert.EqualValues(t, 0x12345678, identity.SerialNumber)
}

func TestHeartbeatPeriodRoundTrip(t *testing.T) {
	conf, _ := newStoreBackedConfigurator(t, 0x11)

	require.NoError(t, conf.WriteHeartbeatPeriod(500))
	period, err := conf.ReadHeartbeatPeriod()
	require.NoError(t, err)
	assert.EqualValues(t, 500, period)
}

func TestDisableEnablePDO(t *testing.T) {
	conf, store := newStoreBackedConfigurator(t, 0x12)
	store.set(0x1400, 1, []byte{0x01, 0x02, 0x00, 0x00}) // RPDO1 cob-id 0x201

	require.NoError(t, conf.DisablePDO(1))
	cobID := binary.LittleEndian.Uint32(store.get(0x1400, 1))
	assert.EqualValues(t, 0x80000201, cobID)
	enabled, err := conf.ReadEnabledPDO(1)
	require.NoError(t, err)
	assert.False(t, enabled)

	require.NoError(t, conf.EnablePDO(1))
	cobID = binary.LittleEndian.Uint32(store.get(0x1400, 1))
	assert.EqualValues(t, 0x201, cobID)
}

func TestWriteMappingsTPDO(t *testing.T) {
	conf, store := newStoreBackedConfigurator(t, 0x13)

	mappings := []PDOMappingParameter{
		{Index: 0x6064, Subindex: 0, LengthBits: 32},
		{Index: 0x6041, Subindex: 0, LengthBits: 16},
	}
	require.NoError(t, conf.WriteMappings(MinTpdoNumber, mappings))

	assert.Equal(t, []byte{2}, store.get(0x1A00, 0))
	assert.EqualValues(t, 0x60640020, binary.LittleEndian.Uint32(store.get(0x1A00, 1)))
	assert.EqualValues(t, 0x60410010, binary.LittleEndian.Uint32(store.get(0x1A00, 2)))

	got, err := conf.ReadMappings(MinTpdoNumber)
	require.NoError(t, err)
	assert.Equal(t, mappings, got)
}
