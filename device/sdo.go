package device

import (
	"context"
	"errors"

	"github.com/canopen-go/master/pkg/errs"
	"github.com/canopen-go/master/pkg/value"
)

// GetEntryViaSDO issues an SDO upload of (index, subindex), retrying on
// timeout up to RepeatsOnSDOTimeout additional times. A non-timeout
// SDO error (an abort code) propagates immediately without retry.
func (d *Device) GetEntryViaSDO(index uint16, subindex uint8, t value.Type) (value.Value, error) {
	var lastErr error
	attempts := d.cfg.RepeatsOnSDOTimeout + 1
	for i := 0; i < attempts; i++ {
		v, err := d.sdoClient.Upload(context.Background(), index, subindex, t)
		if err == nil {
			return v, nil
		}
		var sdoErr *errs.SdoError
		if !errors.As(err, &sdoErr) || sdoErr.Kind != errs.SdoResponseTimeout {
			return value.Value{}, err
		}
		lastErr = err
		if i < attempts-1 {
			d.sleep(d.cfg.SDOResponseTimeout)
		}
	}
	return value.Value{}, &errs.SdoError{Kind: errs.SdoResponseTimeout, Message: "sdo upload exhausted retries", Underlying: lastErr}
}

// SetEntryViaSDO issues an SDO download of v to (index, subindex), with the
// same retry policy as GetEntryViaSDO.
func (d *Device) SetEntryViaSDO(index uint16, subindex uint8, v value.Value) error {
	var lastErr error
	attempts := d.cfg.RepeatsOnSDOTimeout + 1
	for i := 0; i < attempts; i++ {
		err := d.sdoClient.Download(context.Background(), index, subindex, v)
		if err == nil {
			return nil
		}
		var sdoErr *errs.SdoError
		if !errors.As(err, &sdoErr) || sdoErr.Kind != errs.SdoResponseTimeout {
			return err
		}
		lastErr = err
		if i < attempts-1 {
			d.sleep(d.cfg.SDOResponseTimeout)
		}
	}
	return &errs.SdoError{Kind: errs.SdoResponseTimeout, Message: "sdo download exhausted retries", Underlying: lastErr}
}
