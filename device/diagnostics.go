package device

import (
	"fmt"
	"io"

	"github.com/canopen-go/master/pkg/value"
)

// ReadCompleteDictionary attempts an SDO read of every registered entry
// and disables (see Entry.SetDisabled) any entry whose read fails, so
// later sweeps skip it rather than retrying a slave object that is known
// to be absent. GetEntry and SetEntry do not consult the flag.
func (d *Device) ReadCompleteDictionary() {
	for _, entry := range d.dict.Entries() {
		if entry.Disabled() {
			continue
		}
		if _, err := d.GetEntryViaSDO(entry.Address.Index, entry.Address.Subindex, entry.Type); err != nil {
			log.WithError(err).WithField("address", entry.Address).Debug("disabling unreadable dictionary entry")
			entry.SetDisabled(true)
		}
	}
}

// GetDeviceProfileNumber reads (0x1000, 0) via SDO and returns the device
// profile number encoded in its lower 16 bits, per CiA 301's device type
// object. Callers use it to pick the profile operations and constants to
// install before Start.
func (d *Device) GetDeviceProfileNumber() (uint16, error) {
	v, err := d.GetEntryViaSDO(0x1000, 0, value.Uint32)
	if err != nil {
		return 0, err
	}
	deviceType, err := v.AsUint64()
	if err != nil {
		return 0, err
	}
	return uint16(deviceType & 0xFFFF), nil
}

// Dump writes every dictionary entry's address, name, type and current
// value to w, in address order.
func (d *Device) Dump(w io.Writer) {
	for _, entry := range d.dict.Entries() {
		status := ""
		if entry.Disabled() {
			status = " (disabled)"
		}
		fmt.Fprintf(w, "%s %-32s %-14s %s%s\n", entry.Address, entry.Name, entry.Type, entry.Value(), status)
	}
}
