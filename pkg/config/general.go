package config

// Identity is the content of the identity object (0x1018).
type Identity struct {
	VendorID       uint32
	ProductCode    uint32
	RevisionNumber uint32
	SerialNumber   uint32
}

// ManufacturerInformation groups the manufacturer string objects
// (0x1008..0x100A).
type ManufacturerInformation struct {
	ManufacturerDeviceName      string
	ManufacturerHardwareVersion string
	ManufacturerSoftwareVersion string
}

// ReadIdentity reads the identity object (0x1018, mandatory).
func (conf *NodeConfigurator) ReadIdentity() (*Identity, error) {
	// Vendor ID is the only mandatory field
	vendorID, err := conf.client.ReadUint32(0x1018, 1)
	if err != nil {
		return nil, err
	}
	productCode, _ := conf.client.ReadUint32(0x1018, 2)
	revisionNumber, _ := conf.client.ReadUint32(0x1018, 3)
	serialNumber, _ := conf.client.ReadUint32(0x1018, 4)
	return &Identity{
		VendorID:       vendorID,
		ProductCode:    productCode,
		RevisionNumber: revisionNumber,
		SerialNumber:   serialNumber,
	}, nil
}

// ReadManufacturerDeviceName reads the device name string (0x1008).
func (conf *NodeConfigurator) ReadManufacturerDeviceName() (string, error) {
	return conf.client.ReadString(0x1008, 0)
}

// ReadManufacturerHardwareVersion reads the hardware version string (0x1009).
func (conf *NodeConfigurator) ReadManufacturerHardwareVersion() (string, error) {
	return conf.client.ReadString(0x1009, 0)
}

// ReadManufacturerSoftwareVersion reads the software version string (0x100A).
func (conf *NodeConfigurator) ReadManufacturerSoftwareVersion() (string, error) {
	return conf.client.ReadString(0x100A, 0)
}

// ReadManufacturerInformation reads all three manufacturer strings. Absent
// optional objects come back empty rather than failing the whole read.
func (conf *NodeConfigurator) ReadManufacturerInformation() ManufacturerInformation {
	info := ManufacturerInformation{}
	info.ManufacturerDeviceName, _ = conf.ReadManufacturerDeviceName()
	info.ManufacturerHardwareVersion, _ = conf.ReadManufacturerHardwareVersion()
	info.ManufacturerSoftwareVersion, _ = conf.ReadManufacturerSoftwareVersion()
	return info
}
