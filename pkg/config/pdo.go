package config

import (
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/canopen-go/master/pkg/errs"
	"github.com/canopen-go/master/pkg/sdo"
)

// PDO numbering: RPDOs are 1..512, TPDOs 513..1024, matching the layout of
// the communication-profile area (0x1400.. for RPDO, 0x1800.. for TPDO).
const (
	MinPdoNumber  uint16 = 1
	MaxRpdoNumber uint16 = 512
	MinTpdoNumber uint16 = MaxRpdoNumber + 1
	MaxPdoNumber  uint16 = 1024

	maxMappedEntries uint8 = 8

	entryRPDOCommunicationStart uint16 = 0x1400
	entryRPDOMappingStart       uint16 = 0x1600
	entryTPDOCommunicationStart uint16 = 0x1800
	entryTPDOMappingStart       uint16 = 0x1A00
)

// PDOMappingParameter is one decoded 32-bit mapping record: the object
// being mapped and its length in bits.
type PDOMappingParameter struct {
	Index      uint16
	Subindex   uint8
	LengthBits uint8
}

// PDOConfigurationParameter holds one PDO's full configuration.
type PDOConfigurationParameter struct {
	CanID            uint16
	TransmissionType uint8
	InhibitTime      uint16
	EventTimer       uint16
	Mappings         []PDOMappingParameter
}

func pdoKind(pdoNb uint16) string {
	if pdoNb <= MaxRpdoNumber {
		return "RPDO"
	}
	return "TPDO"
}

func mappingIndex(pdoNb uint16) uint16 {
	if pdoNb <= MaxRpdoNumber {
		return entryRPDOMappingStart + pdoNb - 1
	}
	return entryTPDOMappingStart + pdoNb - MinTpdoNumber
}

func communicationIndex(pdoNb uint16) uint16 {
	if pdoNb <= MaxRpdoNumber {
		return entryRPDOCommunicationStart + pdoNb - 1
	}
	return entryTPDOCommunicationStart + pdoNb - MinTpdoNumber
}

// ReadCobIdPDO reads a PDO's raw COB-ID entry, including the valid and RTR
// flag bits.
func (conf *NodeConfigurator) ReadCobIdPDO(pdoNb uint16) (uint32, error) {
	return conf.client.ReadUint32(communicationIndex(pdoNb), 1)
}

// ReadEnabledPDO reports whether a PDO is enabled (bit 31 of its COB-ID
// entry cleared).
func (conf *NodeConfigurator) ReadEnabledPDO(pdoNb uint16) (bool, error) {
	cobID, err := conf.ReadCobIdPDO(pdoNb)
	if err != nil {
		return false, err
	}
	return cobID>>31&0b1 == 0, nil
}

func (conf *NodeConfigurator) ReadTransmissionType(pdoNb uint16) (uint8, error) {
	return conf.client.ReadUint8(communicationIndex(pdoNb), 2)
}

func (conf *NodeConfigurator) ReadInhibitTime(pdoNb uint16) (uint16, error) {
	return conf.client.ReadUint16(communicationIndex(pdoNb), 3)
}

func (conf *NodeConfigurator) ReadEventTimer(pdoNb uint16) (uint16, error) {
	return conf.client.ReadUint16(communicationIndex(pdoNb), 5)
}

func (conf *NodeConfigurator) ReadNbMappings(pdoNb uint16) (uint8, error) {
	return conf.client.ReadUint8(mappingIndex(pdoNb), 0)
}

// ReadMappings reads and decodes a PDO's active mapping records.
func (conf *NodeConfigurator) ReadMappings(pdoNb uint16) ([]PDOMappingParameter, error) {
	nbMappings, err := conf.ReadNbMappings(pdoNb)
	if err != nil {
		return nil, err
	}
	mappings := make([]PDOMappingParameter, 0, nbMappings)
	for i := uint8(1); i <= nbMappings; i++ {
		rawMap, err := conf.client.ReadUint32(mappingIndex(pdoNb), i)
		if err != nil {
			return nil, err
		}
		mappings = append(mappings, PDOMappingParameter{
			Index:      uint16(rawMap >> 16),
			Subindex:   uint8(rawMap >> 8),
			LengthBits: uint8(rawMap),
		})
	}
	return mappings, nil
}

// ReadConfigurationPDO reads the configuration of a single PDO.
func (conf *NodeConfigurator) ReadConfigurationPDO(pdoNb uint16) (PDOConfigurationParameter, error) {
	pdoConf := PDOConfigurationParameter{}
	cobID, err := conf.ReadCobIdPDO(pdoNb)
	if err != nil {
		return pdoConf, err
	}
	pdoConf.CanID = uint16(cobID & 0x7FF)
	pdoConf.TransmissionType, err = conf.ReadTransmissionType(pdoNb)
	if err != nil {
		return pdoConf, err
	}
	// Inhibit time and event timer are optional
	pdoConf.InhibitTime, _ = conf.ReadInhibitTime(pdoNb)
	pdoConf.EventTimer, _ = conf.ReadEventTimer(pdoNb)
	pdoConf.Mappings, err = conf.ReadMappings(pdoNb)
	log.WithFields(logrus.Fields{"type": pdoKind(pdoNb), "pdo": pdoNb}).Debug("read pdo configuration")
	return pdoConf, err
}

// ReadConfigurationRangePDO reads a consecutive range of PDO
// configurations, stopping early at the first PDO the node reports as
// nonexistent.
func (conf *NodeConfigurator) ReadConfigurationRangePDO(pdoStartNb, pdoEndNb uint16) ([]PDOConfigurationParameter, error) {
	if pdoStartNb < MinPdoNumber || pdoEndNb > MaxPdoNumber || pdoStartNb > pdoEndNb {
		return nil, errors.New("config: pdo range is incorrect")
	}
	pdos := make([]PDOConfigurationParameter, 0)
	for pdoNb := pdoStartNb; pdoNb <= pdoEndNb; pdoNb++ {
		pdoConf, err := conf.ReadConfigurationPDO(pdoNb)
		if isAbortNotExist(err) {
			log.WithFields(logrus.Fields{"type": pdoKind(pdoNb), "pdo": pdoNb}).Debug("no more pdo")
			break
		}
		if err != nil {
			return pdos, err
		}
		pdos = append(pdos, pdoConf)
	}
	return pdos, nil
}

// ReadConfigurationAllPDO reads the node's complete PDO configuration,
// returning RPDO and TPDO configurations in two separate lists.
func (conf *NodeConfigurator) ReadConfigurationAllPDO() (rpdos, tpdos []PDOConfigurationParameter, err error) {
	rpdos, err = conf.ReadConfigurationRangePDO(MinPdoNumber, MaxRpdoNumber)
	if err != nil {
		return rpdos, tpdos, err
	}
	tpdos, err = conf.ReadConfigurationRangePDO(MinTpdoNumber, MaxPdoNumber)
	return rpdos, tpdos, err
}

func isAbortNotExist(err error) bool {
	var sdoErr *errs.SdoError
	return errors.As(err, &sdoErr) &&
		sdoErr.Kind == errs.SdoAbort &&
		sdoErr.AbortCode == uint32(sdo.AbortNotExist)
}

// DisablePDO sets bit 31 of a PDO's COB-ID entry.
func (conf *NodeConfigurator) DisablePDO(pdoNb uint16) error {
	cobID, err := conf.ReadCobIdPDO(pdoNb)
	if err != nil {
		return err
	}
	return conf.client.WriteUint32(communicationIndex(pdoNb), 1, cobID|1<<31)
}

// EnablePDO clears bit 31 of a PDO's COB-ID entry.
func (conf *NodeConfigurator) EnablePDO(pdoNb uint16) error {
	cobID, err := conf.ReadCobIdPDO(pdoNb)
	if err != nil {
		return err
	}
	return conf.client.WriteUint32(communicationIndex(pdoNb), 1, cobID&^(uint32(1)<<31))
}

// WriteCanIdPDO changes the 11-bit CAN identifier inside a PDO's COB-ID
// entry, leaving the flag bits untouched. The PDO should be disabled first.
func (conf *NodeConfigurator) WriteCanIdPDO(pdoNb uint16, canID uint16) error {
	cobID, err := conf.ReadCobIdPDO(pdoNb)
	if err != nil {
		return err
	}
	cobID &= 0xFFFFF800
	cobID |= uint32(canID)
	return conf.client.WriteUint32(communicationIndex(pdoNb), 1, cobID)
}

func (conf *NodeConfigurator) WriteTransmissionType(pdoNb uint16, transType uint8) error {
	return conf.client.WriteUint8(communicationIndex(pdoNb), 2, transType)
}

func (conf *NodeConfigurator) WriteInhibitTime(pdoNb uint16, inhibitTime uint16) error {
	return conf.client.WriteUint16(communicationIndex(pdoNb), 3, inhibitTime)
}

func (conf *NodeConfigurator) WriteEventTimer(pdoNb uint16, eventTimer uint16) error {
	return conf.client.WriteUint16(communicationIndex(pdoNb), 5, eventTimer)
}

// ClearMappings zeroes a PDO's mapping count and every mapping record.
func (conf *NodeConfigurator) ClearMappings(pdoNb uint16) error {
	idx := mappingIndex(pdoNb)
	if err := conf.client.WriteUint8(idx, 0, 0); err != nil {
		return err
	}
	for i := uint8(1); i <= maxMappedEntries; i++ {
		if err := conf.client.WriteUint32(idx, i, 0); err != nil {
			return err
		}
	}
	return nil
}

// WriteMappings replaces a PDO's mapping records with the given list, in
// order, clearing the current mapping first.
func (conf *NodeConfigurator) WriteMappings(pdoNb uint16, mappings []PDOMappingParameter) error {
	idx := mappingIndex(pdoNb)
	if err := conf.ClearMappings(pdoNb); err != nil {
		return err
	}
	for sub, mapping := range mappings {
		rawMap := uint32(mapping.Index)<<16 | uint32(mapping.Subindex)<<8 | uint32(mapping.LengthBits)
		if err := conf.client.WriteUint32(idx, uint8(sub)+1, rawMap); err != nil {
			return err
		}
	}
	return conf.client.WriteUint8(idx, 0, uint8(len(mappings)))
}

// WriteConfigurationPDO updates a PDO's whole configuration: identifier,
// timing and mappings.
func (conf *NodeConfigurator) WriteConfigurationPDO(pdoNb uint16, pdoConf PDOConfigurationParameter) error {
	log.WithFields(logrus.Fields{"type": pdoKind(pdoNb), "pdo": pdoNb}).Debug("updating pdo configuration")
	if err := conf.WriteCanIdPDO(pdoNb, pdoConf.CanID); err != nil {
		return err
	}
	if err := conf.WriteTransmissionType(pdoNb, pdoConf.TransmissionType); err != nil {
		return err
	}
	if err := conf.WriteEventTimer(pdoNb, pdoConf.EventTimer); err != nil {
		return err
	}
	if err := conf.WriteInhibitTime(pdoNb, pdoConf.InhibitTime); err != nil {
		return err
	}
	return conf.WriteMappings(pdoNb, pdoConf.Mappings)
}
