package config

const entryCobIdTIME uint16 = 0x1012

func (conf *NodeConfigurator) ReadCobIdTIME() (uint32, error) {
	return conf.client.ReadUint32(entryCobIdTIME, 0)
}

// ProducerEnableTIME makes the node a TIME producer (bit 30 of the TIME
// COB-ID entry).
func (conf *NodeConfigurator) ProducerEnableTIME() error {
	cobID, err := conf.ReadCobIdTIME()
	if err != nil {
		return err
	}
	return conf.client.WriteUint32(entryCobIdTIME, 0, cobID|1<<30)
}

func (conf *NodeConfigurator) ProducerDisableTIME() error {
	cobID, err := conf.ReadCobIdTIME()
	if err != nil {
		return err
	}
	return conf.client.WriteUint32(entryCobIdTIME, 0, cobID&^(uint32(1)<<30))
}

// ConsumerEnableTIME makes the node consume TIME frames (bit 31 of the
// TIME COB-ID entry).
func (conf *NodeConfigurator) ConsumerEnableTIME() error {
	cobID, err := conf.ReadCobIdTIME()
	if err != nil {
		return err
	}
	return conf.client.WriteUint32(entryCobIdTIME, 0, cobID|1<<31)
}

func (conf *NodeConfigurator) ConsumerDisableTIME() error {
	cobID, err := conf.ReadCobIdTIME()
	if err != nil {
		return err
	}
	return conf.client.WriteUint32(entryCobIdTIME, 0, cobID&^(uint32(1)<<31))
}
