package config

import "time"

const (
	entryCobIdSYNC                  uint16 = 0x1005
	entryCommunicationCyclePeriod   uint16 = 0x1006
	entrySynchronousWindowLength    uint16 = 0x1007
	entrySynchronousCounterOverflow uint16 = 0x1019
)

func (conf *NodeConfigurator) ReadCobIdSYNC() (uint32, error) {
	return conf.client.ReadUint32(entryCobIdSYNC, 0)
}

func (conf *NodeConfigurator) ReadCounterOverflow() (uint8, error) {
	return conf.client.ReadUint8(entrySynchronousCounterOverflow, 0)
}

func (conf *NodeConfigurator) ReadCommunicationPeriod() (time.Duration, error) {
	period, err := conf.client.ReadUint32(entryCommunicationCyclePeriod, 0)
	if err != nil {
		return 0, err
	}
	return time.Duration(period) * time.Millisecond, nil
}

func (conf *NodeConfigurator) ReadWindowLengthPdos() (time.Duration, error) {
	period, err := conf.client.ReadUint32(entrySynchronousWindowLength, 0)
	if err != nil {
		return 0, err
	}
	return time.Duration(period) * time.Millisecond, nil
}

// ProducerEnableSYNC makes the node a SYNC producer by setting bit 30 of
// the SYNC COB-ID entry. Changing the COB-ID is not allowed while already
// producing, so the current value is read first.
func (conf *NodeConfigurator) ProducerEnableSYNC() error {
	cobID, err := conf.ReadCobIdSYNC()
	if err != nil {
		return err
	}
	return conf.client.WriteUint32(entryCobIdSYNC, 0, cobID|1<<30)
}

// ProducerDisableSYNC clears bit 30 of the SYNC COB-ID entry.
func (conf *NodeConfigurator) ProducerDisableSYNC() error {
	cobID, err := conf.ReadCobIdSYNC()
	if err != nil {
		return err
	}
	return conf.client.WriteUint32(entryCobIdSYNC, 0, cobID&^(uint32(1)<<30))
}

// WriteCanIdSYNC changes the SYNC identifier. SYNC production should be
// disabled before changing this.
func (conf *NodeConfigurator) WriteCanIdSYNC(canID uint16) error {
	return conf.client.WriteUint32(entryCobIdSYNC, 0, uint32(canID))
}

// WriteCounterOverflow updates the SYNC counter overflow value. The
// communication period should be 0 before changing this.
func (conf *NodeConfigurator) WriteCounterOverflow(counter uint8) error {
	return conf.client.WriteUint8(entrySynchronousCounterOverflow, 0, counter)
}

func (conf *NodeConfigurator) WriteCommunicationPeriod(period time.Duration) error {
	return conf.client.WriteUint32(entryCommunicationCyclePeriod, 0, uint32(period.Milliseconds()))
}

func (conf *NodeConfigurator) WriteWindowLengthPdos(period time.Duration) error {
	return conf.client.WriteUint32(entrySynchronousWindowLength, 0, uint32(period.Milliseconds()))
}
