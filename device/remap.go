package device

import "github.com/canopen-go/master/pkg/value"

// PDO numbers 1..4, used to select the communication/mapping parameter
// record index for remote reconfiguration.
const (
	PDO1 = iota
	PDO2
	PDO3
	PDO4
)

const cobIDDisableBit uint32 = 1 << 31

// remapOptions carries the optional inhibit time and event timer writes.
// A nil pointer means "do not write this parameter".
type remapOptions struct {
	inhibitTime *uint16
	eventTimer  *uint16 // TPDO only
}

// MapTPDOInDevice rewrites the slave's TPDO communication and mapping
// parameter records via SDO. entriesToMap are packed 32-bit
// mapping records (index<<16 | subindex<<8 | bit_length). Any SDO failure
// aborts the remainder and propagates.
func (d *Device) MapTPDOInDevice(tpdoNo int, entriesToMap []uint32, transmitType uint8, inhibitTime, eventTimer *uint16) error {
	commIndex := uint16(0x1800 + tpdoNo)
	mappingIndex := uint16(0x1A00 + tpdoNo)
	return d.remapPDO(commIndex, mappingIndex, entriesToMap, transmitType, remapOptions{inhibitTime: inhibitTime, eventTimer: eventTimer})
}

// MapRPDOInDevice is the RPDO analogue of MapTPDOInDevice. The slave has no
// event timer parameter for RPDOs, so eventTimer is always omitted.
func (d *Device) MapRPDOInDevice(rpdoNo int, entriesToMap []uint32, transmitType uint8, inhibitTime *uint16) error {
	commIndex := uint16(0x1400 + rpdoNo)
	mappingIndex := uint16(0x1600 + rpdoNo)
	return d.remapPDO(commIndex, mappingIndex, entriesToMap, transmitType, remapOptions{inhibitTime: inhibitTime})
}

// remapPDO rewrites one PDO's communication and mapping records in the
// strict order slaves require: disable the COB-ID (bit 31), zero the
// mapping count, write the mappings, restore the count, write the
// communication parameters, then re-enable the COB-ID.
func (d *Device) remapPDO(commIndex, mappingIndex uint16, entriesToMap []uint32, transmitType uint8, opts remapOptions) error {
	cobIDValue, err := d.GetEntryViaSDO(commIndex, 1, value.Uint32)
	if err != nil {
		return err
	}
	cobID, err := cobIDValue.AsUint64()
	if err != nil {
		return err
	}

	if err := d.SetEntryViaSDO(commIndex, 1, value.FromUint32(uint32(cobID)|cobIDDisableBit)); err != nil {
		return err
	}

	if err := d.SetEntryViaSDO(mappingIndex, 0, value.FromUint8(0)); err != nil {
		return err
	}
	for i, entry := range entriesToMap {
		if err := d.SetEntryViaSDO(mappingIndex, uint8(i+1), value.FromUint32(entry)); err != nil {
			return err
		}
	}
	if err := d.SetEntryViaSDO(mappingIndex, 0, value.FromUint8(uint8(len(entriesToMap)))); err != nil {
		return err
	}

	if err := d.SetEntryViaSDO(commIndex, 2, value.FromUint8(transmitType)); err != nil {
		return err
	}
	if opts.inhibitTime != nil {
		if err := d.SetEntryViaSDO(commIndex, 3, value.FromUint16(*opts.inhibitTime)); err != nil {
			return err
		}
	}
	if opts.eventTimer != nil {
		if err := d.SetEntryViaSDO(commIndex, 5, value.FromUint16(*opts.eventTimer)); err != nil {
			return err
		}
	}

	return d.SetEntryViaSDO(commIndex, 1, value.FromUint32(uint32(cobID)&^cobIDDisableBit))
}
