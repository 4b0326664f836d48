package sdo

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/canopen-go/master/pkg/can"
	"github.com/canopen-go/master/pkg/errs"
	"github.com/canopen-go/master/pkg/value"
)

// Sender transmits a single CAN frame. The Core Bus Facade supplies this,
// already serialized behind its own send mutex.
type Sender func(can.Frame) error

// Client drives one node's SDO channel: expedited and segmented upload and
// download, each serialized behind a mutex since the protocol allows only
// one outstanding transaction per direction. Handle is called by the Core
// dispatcher on its receive thread and must never block: it only ever
// writes to a depth-1 channel that the in-flight request is waiting on.
type Client struct {
	nodeID   uint8
	cobIDTx  uint32 // client -> server (0x600+node)
	cobIDRx  uint32 // server -> client (0x580+node)
	send     Sender
	timeout  time.Duration
	log      *logrus.Entry

	mu       sync.Mutex
	pending  chan can.Frame
}

// NewClient builds an SDO client for nodeID. timeout bounds each individual
// segment round trip, not the transfer as a whole.
func NewClient(nodeID uint8, send Sender, timeout time.Duration) *Client {
	return &Client{
		nodeID:  nodeID,
		cobIDTx: BaseClientToServer + uint32(nodeID),
		cobIDRx: BaseServerToClient + uint32(nodeID),
		send:    send,
		timeout: timeout,
		log:     logrus.WithField("component", "sdo").WithField("node", nodeID),
		pending: make(chan can.Frame, 1),
	}
}

// CobIDRx is the COB-ID this client should be registered against in the
// Core's SDO dispatch table.
func (c *Client) CobIDRx() uint32 { return c.cobIDRx }

// Handle delivers an inbound SDO response frame. Never blocks: a frame
// arriving with no transaction in flight, or arriving after the waiter gave
// up, is dropped (at most one such frame is held, and it is discarded
// before the next request is sent).
func (c *Client) Handle(frame can.Frame) {
	select {
	case c.pending <- frame:
	default:
		c.log.Debug("dropped sdo frame with no in-flight transaction")
	}
}

func (c *Client) roundTrip(ctx context.Context, req can.Frame) (can.Frame, error) {
	select {
	case <-c.pending:
	default:
	}
	if err := c.send(req); err != nil {
		return can.Frame{}, fmt.Errorf("sdo: send: %w", err)
	}
	deadline, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	select {
	case resp := <-c.pending:
		if resp.Data[0]&0xE0 == csAbort {
			code := AbortCode(binary.LittleEndian.Uint32(resp.Data[4:8]))
			return can.Frame{}, &errs.SdoError{Kind: errs.SdoAbort, AbortCode: uint32(code), Message: code.Error()}
		}
		return resp, nil
	case <-deadline.Done():
		return can.Frame{}, &errs.SdoError{Kind: errs.SdoResponseTimeout, Message: "no response within segment timeout", Underlying: deadline.Err()}
	}
}

// Upload performs an expedited or segmented read of the object at index,
// subindex and decodes the result as t. A single call holds the client's
// transaction mutex for its whole duration.
func (c *Client) Upload(ctx context.Context, index uint16, subindex uint8, t value.Type) (value.Value, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	req := can.Frame{ID: c.cobIDTx, DLC: 8}
	req.Data[0] = ccsUploadInitiate
	binary.LittleEndian.PutUint16(req.Data[1:3], index)
	req.Data[3] = subindex

	resp, err := c.roundTrip(ctx, req)
	if err != nil {
		return value.Value{}, err
	}
	if resp.Data[0]&0x02 != 0 {
		// expedited: data length encoded in bits 2-3 when indicated, else full 4 bytes
		n := 4
		if resp.Data[0]&0x01 != 0 {
			n = 4 - int((resp.Data[0]>>2)&0x03)
		}
		return value.FromBytes(t, resp.Data[4:4+n])
	}

	// segmented: byte 0 bit0 indicates size-in-data was supplied in bytes 4-7.
	toggle := byte(0)
	var data []byte
	for {
		seg := can.Frame{ID: c.cobIDTx, DLC: 8}
		seg.Data[0] = ccsUploadSegment | toggle
		segResp, err := c.roundTrip(ctx, seg)
		if err != nil {
			return value.Value{}, err
		}
		n := 7 - int((segResp.Data[0]>>1)&0x07)
		data = append(data, segResp.Data[1:1+n]...)
		if segResp.Data[0]&0x01 != 0 {
			break
		}
		toggle ^= toggleBit
	}
	return value.FromBytes(t, data)
}

// Download performs an expedited or segmented write of v to (index,
// subindex).
func (c *Client) Download(ctx context.Context, index uint16, subindex uint8, v value.Value) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data := v.Bytes()
	if len(data) <= 4 {
		req := can.Frame{ID: c.cobIDTx, DLC: 8}
		n := len(data)
		req.Data[0] = ccsDownloadInitiate | 0x02 | 0x01 | byte(4-n)<<2
		binary.LittleEndian.PutUint16(req.Data[1:3], index)
		req.Data[3] = subindex
		copy(req.Data[4:4+n], data)
		_, err := c.roundTrip(ctx, req)
		return err
	}

	initReq := can.Frame{ID: c.cobIDTx, DLC: 8}
	initReq.Data[0] = ccsDownloadInitiate | 0x01
	binary.LittleEndian.PutUint16(initReq.Data[1:3], index)
	initReq.Data[3] = subindex
	binary.LittleEndian.PutUint32(initReq.Data[4:8], uint32(len(data)))
	if _, err := c.roundTrip(ctx, initReq); err != nil {
		return err
	}

	toggle := byte(0)
	for offset := 0; offset < len(data); offset += 7 {
		chunk := data[offset:]
		last := false
		if len(chunk) > 7 {
			chunk = chunk[:7]
		} else {
			last = true
		}
		seg := can.Frame{ID: c.cobIDTx, DLC: 8}
		cs := ccsDownloadSegment | toggle | byte(7-len(chunk))<<1
		if last {
			cs |= 0x01
		}
		seg.Data[0] = cs
		copy(seg.Data[1:1+len(chunk)], chunk)
		if _, err := c.roundTrip(ctx, seg); err != nil {
			return err
		}
		toggle ^= toggleBit
	}
	return nil
}
