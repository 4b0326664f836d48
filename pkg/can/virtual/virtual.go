// Package virtual implements a TCP-backed pkg/can.Bus for exercising the
// master stack against a remote virtual-CAN broker without real hardware.
// See https://github.com/windelbouwman/virtualcan for the wire protocol.
// Unlike a local socket, the broker link can drop mid-session; a lost
// connection is redialled with capped exponential backoff instead of
// silently killing the subscription.
package virtual

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/canopen-go/master/pkg/can"
)

func init() {
	can.RegisterInterface("virtual", NewBus)
	can.RegisterInterface("virtualcan", NewBus)
}

// Redial pacing after a lost broker connection.
const (
	redialBackoffInitial = 50 * time.Millisecond
	redialBackoffMax     = 2 * time.Second
)

// Bus is a client connection to a virtualcan broker.
type Bus struct {
	mu            sync.Mutex
	channel       string
	conn          net.Conn
	receiveOwn    bool
	frameListener can.FrameListener
	stopChan      chan struct{}
	wg            sync.WaitGroup
	isRunning     bool
}

func NewBus(channel string) (can.Bus, error) {
	return &Bus{channel: channel, stopChan: make(chan struct{})}, nil
}

func serializeFrame(frame can.Frame) ([]byte, error) {
	buffer := new(bytes.Buffer)
	if err := binary.Write(buffer, binary.BigEndian, frame); err != nil {
		return nil, err
	}
	payload := buffer.Bytes()
	out := make([]byte, 4, 4+len(payload))
	binary.BigEndian.PutUint32(out, uint32(len(payload)))
	return append(out, payload...), nil
}

func deserializeFrame(buffer []byte) (*can.Frame, error) {
	var frame can.Frame
	if err := binary.Read(bytes.NewBuffer(buffer), binary.BigEndian, &frame); err != nil {
		return nil, err
	}
	return &frame, nil
}

// Connect dials the broker, e.g. "localhost:18000".
func (b *Bus) Connect(...any) error {
	conn, err := b.dial()
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.conn = conn
	b.mu.Unlock()
	return nil
}

func (b *Bus) dial() (net.Conn, error) {
	conn, err := net.Dial("tcp", b.channel)
	if err != nil {
		return nil, err
	}
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		if err := tcpConn.SetNoDelay(true); err != nil {
			conn.Close()
			return nil, err
		}
	}
	return conn, nil
}

// Disconnect stops the receive loop (including an in-progress redial) and
// closes the broker connection.
func (b *Bus) Disconnect() error {
	b.mu.Lock()
	running := b.isRunning
	b.mu.Unlock()
	if running {
		close(b.stopChan)
		b.wg.Wait()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn != nil {
		return b.conn.Close()
	}
	return nil
}

func (b *Bus) Send(frame can.Frame) error {
	if b.receiveOwn && b.frameListener != nil {
		b.frameListener.Handle(frame)
	} else if b.conn == nil {
		return errors.New("virtual: no active connection, abort send")
	}
	if b.conn == nil {
		return nil
	}
	frameBytes, err := serializeFrame(frame)
	if err != nil {
		return err
	}
	_ = b.conn.SetWriteDeadline(time.Now().Add(10 * time.Millisecond))
	_, err = b.conn.Write(frameBytes)
	return err
}

func (b *Bus) Subscribe(listener can.FrameListener) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frameListener = listener
	if b.isRunning {
		return nil
	}
	b.wg.Add(1)
	b.isRunning = true
	b.stopChan = make(chan struct{})
	go b.receiveLoop()
	return nil
}

// recv reads one frame off the wire, blocking up to 200ms.
func (b *Bus) recv() (*can.Frame, error) {
	if b.conn == nil {
		return nil, fmt.Errorf("virtual: no active connection, abort receive")
	}
	_ = b.conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	header := make([]byte, 4)
	n, err := b.conn.Read(header)
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return nil, err
	}
	if n < 4 || err != nil {
		return nil, fmt.Errorf("virtual: short header read %d/%d: %w", n, 4, err)
	}
	length := binary.BigEndian.Uint32(header)
	payload := make([]byte, length)
	_ = b.conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	n, err = b.conn.Read(payload)
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return nil, err
	}
	if n != int(length) || err != nil {
		return nil, fmt.Errorf("virtual: short frame read %d/%d", n, length)
	}
	return deserializeFrame(payload)
}

func (b *Bus) receiveLoop() {
	defer func() {
		b.mu.Lock()
		b.isRunning = false
		b.mu.Unlock()
		b.wg.Done()
	}()
	for {
		select {
		case <-b.stopChan:
			return
		default:
			if !b.mu.TryLock() {
				continue
			}
			frame, err := b.recv()
			switch {
			case isTimeout(err):
				// no message, this is expected
			case err != nil:
				log.WithError(err).Warn("[CAN][virtual] connection lost, redialling")
				if b.conn != nil {
					_ = b.conn.Close()
					b.conn = nil
				}
				b.mu.Unlock()
				if !b.redial() {
					return
				}
				continue
			case b.frameListener != nil:
				b.frameListener.Handle(*frame)
			}
			b.mu.Unlock()
		}
	}
}

// redial re-establishes the broker connection, doubling the wait between
// attempts up to redialBackoffMax. Returns false if Disconnect was called
// while waiting.
func (b *Bus) redial() bool {
	backoff := redialBackoffInitial
	for {
		select {
		case <-b.stopChan:
			return false
		case <-time.After(backoff):
		}
		if backoff < redialBackoffMax {
			backoff *= 2
		}
		if backoff > redialBackoffMax {
			backoff = redialBackoffMax
		}
		conn, err := b.dial()
		if err != nil {
			log.WithError(err).Debug("[CAN][virtual] redial failed")
			continue
		}
		b.mu.Lock()
		b.conn = conn
		b.mu.Unlock()
		log.Info("[CAN][virtual] reconnected to broker")
		return true
	}
}

func isTimeout(err error) bool {
	netErr, ok := err.(net.Error)
	return ok && netErr.Timeout()
}

// SetReceiveOwn controls loopback of locally sent frames to local listeners.
func (b *Bus) SetReceiveOwn(receiveOwn bool) {
	b.receiveOwn = receiveOwn
}
