package nmt

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canopen-go/master/pkg/can"
)

func TestCommandFrame(t *testing.T) {
	f := CommandFrame(ResetCommunication, 5)
	assert.EqualValues(t, 0x000, f.ID)
	assert.EqualValues(t, 2, f.DLC)
	assert.Equal(t, [8]byte{0x82, 0x05}, f.Data)
}

func TestHeartbeatCobID(t *testing.T) {
	assert.EqualValues(t, 0x701, HeartbeatCobID(1))
	assert.EqualValues(t, 0x77F, HeartbeatCobID(0x7F))
}

func TestHeartbeatProducerEmitsState(t *testing.T) {
	var mu sync.Mutex
	var frames []can.Frame
	send := func(f can.Frame) error {
		mu.Lock()
		frames = append(frames, f)
		mu.Unlock()
		return nil
	}

	producer := NewHeartbeatProducer(1, 15*time.Millisecond, send, func() State { return StateOperational })
	producer.Start()
	time.Sleep(60 * time.Millisecond)
	producer.Stop()

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, frames)
	assert.EqualValues(t, 0x701, frames[0].ID)
	assert.EqualValues(t, 1, frames[0].DLC)
	assert.Equal(t, byte(StateOperational), frames[0].Data[0])
}

// TestLivenessTransitions checks that
// the first heartbeat fires device-alive, and losing heartbeats drives the
// node through TO_BE_KILLED into DEAD, firing device-dead exactly once.
func TestLivenessTransitions(t *testing.T) {
	var mu sync.Mutex
	var aliveCount, deadCount int

	consumer := NewConsumer(30*time.Millisecond, 3, func(f func()) { go f() })
	consumer.OnAlive(func(nodeID uint8) {
		mu.Lock()
		aliveCount++
		mu.Unlock()
	})
	consumer.OnDead(func(nodeID uint8) {
		mu.Lock()
		deadCount++
		mu.Unlock()
	})
	consumer.Start()
	defer consumer.Stop()

	consumer.Handle(1, time.Now())
	time.Sleep(10 * time.Millisecond)

	mu.Lock()
	require.Equal(t, 1, aliveCount)
	mu.Unlock()

	// Stop sending heartbeats; wait past the dead deadline (3 * 30ms) plus
	// checker jitter for both the TO_BE_KILLED and DEAD ticks to land.
	time.Sleep(200 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, deadCount)
	assert.Equal(t, Dead, consumer.LivenessOf(1))
}

func TestSecondObservationAfterDeathFiresAliveAgain(t *testing.T) {
	var mu sync.Mutex
	aliveCount := 0
	consumer := NewConsumer(20*time.Millisecond, 2, func(f func()) { go f() })
	consumer.OnAlive(func(uint8) {
		mu.Lock()
		aliveCount++
		mu.Unlock()
	})
	consumer.Start()
	defer consumer.Stop()

	consumer.Handle(2, time.Now())
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, Dead, consumer.LivenessOf(2))

	consumer.Handle(2, time.Now())
	time.Sleep(10 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, aliveCount)
}
