package config

const (
	entryConsumerHeartbeatTime uint16 = 0x1016
	entryProducerHeartbeatTime uint16 = 0x1017
)

// MonitoredNode is one entry of the consumer heartbeat object (0x1016):
// the node being monitored and the period within which its heartbeat is
// expected, in milliseconds.
type MonitoredNode struct {
	NodeID   uint8
	PeriodMs uint16
}

// ReadMaxMonitorable reads how many consumer heartbeat entries the node
// supports.
func (conf *NodeConfigurator) ReadMaxMonitorable() (uint8, error) {
	return conf.client.ReadUint8(entryConsumerHeartbeatTime, 0)
}

// ReadMonitoredNodes reads the node's full consumer heartbeat table.
func (conf *NodeConfigurator) ReadMonitoredNodes() ([]MonitoredNode, error) {
	nbMonitored, err := conf.ReadMaxMonitorable()
	if err != nil {
		return nil, err
	}
	monitored := make([]MonitoredNode, 0, nbMonitored)
	for i := uint8(1); i <= nbMonitored; i++ {
		periodAndID, err := conf.client.ReadUint32(entryConsumerHeartbeatTime, i)
		if err != nil {
			return monitored, err
		}
		monitored = append(monitored, MonitoredNode{
			NodeID:   uint8(periodAndID >> 16),
			PeriodMs: uint16(periodAndID),
		})
	}
	return monitored, nil
}

// WriteMonitoredNode adds or updates a consumer heartbeat entry. index
// needs to be between 1 and the maximum number of monitorable nodes.
func (conf *NodeConfigurator) WriteMonitoredNode(index uint8, nodeID uint8, periodMs uint16) error {
	periodAndID := uint32(nodeID)<<16 | uint32(periodMs)
	return conf.client.WriteUint32(entryConsumerHeartbeatTime, index, periodAndID)
}

// ReadHeartbeatPeriod reads the node's producer heartbeat period in
// milliseconds (0x1017).
func (conf *NodeConfigurator) ReadHeartbeatPeriod() (uint16, error) {
	return conf.client.ReadUint16(entryProducerHeartbeatTime, 0)
}

// WriteHeartbeatPeriod updates the node's producer heartbeat period in
// milliseconds.
func (conf *NodeConfigurator) WriteHeartbeatPeriod(periodMs uint16) error {
	return conf.client.WriteUint16(entryProducerHeartbeatTime, 0, periodMs)
}
