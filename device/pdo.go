package device

import (
	"time"

	"github.com/canopen-go/master/pkg/pdo"
)

// AddReceivePDOMapping registers a dispatch closure with the Core's PDO
// router for cobID. The default closure updates the named dictionary entry
// directly, bypassing SDO.
func (d *Device) AddReceivePDOMapping(cobID uint32, entryName string, offset uint8) error {
	mapping := pdo.ReceiveMapping{CobID: cobID, EntryName: entryName, Offset: offset}
	dispatch, err := pdo.NewDefaultDispatch(d.dict, mapping)
	if err != nil {
		return err
	}
	return d.addReceivePDO(mapping, dispatch)
}

// AddReceivePDOMappingFunc registers a user-supplied closure in place of
// the default dictionary-updating dispatch. The mapping is validated the
// same way as the default form; only the dispatch behavior differs. The
// closure runs on its own goroutine with a copy of the payload, never on
// the Core's receive path.
func (d *Device) AddReceivePDOMappingFunc(cobID uint32, entryName string, offset uint8, fn pdo.DispatchFunc) error {
	mapping := pdo.ReceiveMapping{CobID: cobID, EntryName: entryName, Offset: offset}
	if _, _, err := pdo.ValidateMapping(d.dict, mapping); err != nil {
		return err
	}
	return d.addReceivePDO(mapping, func(data []byte) {
		payload := append([]byte(nil), data...)
		go fn(payload)
	})
}

func (d *Device) addReceivePDO(mapping pdo.ReceiveMapping, dispatch pdo.DispatchFunc) error {
	handle := d.core.PDORouter().Register(mapping.CobID, dispatch)
	d.rpdoMu.Lock()
	d.rpdos = append(d.rpdos, receiveRegistration{mapping: mapping, handle: handle})
	d.rpdoMu.Unlock()
	return nil
}

// AddTransmitPDOMapping validates mappings and wires the transmit mapping
// into the device's transmit list, starting its periodic timer or
// registering its change observers as appropriate.
func (d *Device) AddTransmitPDOMapping(cobID uint32, mappings []pdo.Mapping, transmissionType pdo.TransmissionType, repeatTime time.Duration) (*pdo.TransmitMapping, error) {
	mapping, err := pdo.NewTransmitMapping(d.dict, cobID, mappings, transmissionType, repeatTime, d.core.Send)
	if err != nil {
		return nil, err
	}
	if transmissionType == pdo.Sync {
		d.core.OnSync(mapping.OnSync)
	}
	mapping.Start()

	d.tpdoMu.Lock()
	d.tpdos = append(d.tpdos, mapping)
	d.tpdoMu.Unlock()
	return mapping, nil
}
