package sdo

import (
	"context"

	"github.com/canopen-go/master/pkg/value"
)

// Typed convenience wrappers around Upload and Download, used by the
// configuration helpers in pkg/config to read and write the reserved
// communication-profile objects (0x1000..0x1FFF) without a dictionary.

func (c *Client) ReadUint8(index uint16, subindex uint8) (uint8, error) {
	v, err := c.Upload(context.Background(), index, subindex, value.Uint8)
	if err != nil {
		return 0, err
	}
	u, err := v.AsUint64()
	return uint8(u), err
}

func (c *Client) ReadUint16(index uint16, subindex uint8) (uint16, error) {
	v, err := c.Upload(context.Background(), index, subindex, value.Uint16)
	if err != nil {
		return 0, err
	}
	u, err := v.AsUint64()
	return uint16(u), err
}

func (c *Client) ReadUint32(index uint16, subindex uint8) (uint32, error) {
	v, err := c.Upload(context.Background(), index, subindex, value.Uint32)
	if err != nil {
		return 0, err
	}
	u, err := v.AsUint64()
	return uint32(u), err
}

// ReadString reads a visible-string object, e.g. the manufacturer device
// name at 0x1008.
func (c *Client) ReadString(index uint16, subindex uint8) (string, error) {
	v, err := c.Upload(context.Background(), index, subindex, value.VisibleString)
	if err != nil {
		return "", err
	}
	return v.AsString()
}

func (c *Client) WriteUint8(index uint16, subindex uint8, data uint8) error {
	return c.Download(context.Background(), index, subindex, value.FromUint8(data))
}

func (c *Client) WriteUint16(index uint16, subindex uint8, data uint16) error {
	return c.Download(context.Background(), index, subindex, value.FromUint16(data))
}

func (c *Client) WriteUint32(index uint16, subindex uint8, data uint32) error {
	return c.Download(context.Background(), index, subindex, value.FromUint32(data))
}
