// Package nmt implements CANopen Network Management: command emission,
// heartbeat production, and heartbeat-based liveness tracking of remote
// nodes.
package nmt

import "github.com/canopen-go/master/pkg/can"

// Command is an NMT service command, sent as the second byte of a command
// frame on COB-ID 0x000.
type Command uint8

const (
	StartNode            Command = 0x01
	StopNode             Command = 0x02
	EnterPreoperational  Command = 0x80
	ResetNode            Command = 0x81
	ResetCommunication   Command = 0x82
)

// CobIDCommand is the fixed COB-ID for every NMT command frame.
const CobIDCommand uint32 = 0x000

// BroadcastNode addresses every node on the bus.
const BroadcastNode uint8 = 0

// CommandFrame builds the 2-byte NMT command frame for targetNode (0 to
// broadcast).
func CommandFrame(cmd Command, targetNode uint8) can.Frame {
	return can.Frame{
		ID:  CobIDCommand,
		DLC: 2,
		Data: [8]byte{byte(cmd), targetNode},
	}
}

// State is the one-byte NMT state carried in heartbeat frames.
type State uint8

const (
	StateInitializing  State = 0x00
	StateStopped       State = 0x04
	StateOperational   State = 0x05
	StateSleep         State = 0x50
	StateStandby       State = 0x60
	StatePreoperational State = 0x7F
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateStopped:
		return "stopped"
	case StateOperational:
		return "operational"
	case StateSleep:
		return "sleep"
	case StateStandby:
		return "standby"
	case StatePreoperational:
		return "preoperational"
	default:
		return "unknown"
	}
}

// HeartbeatCobID returns the COB-ID a node emits its heartbeat on.
func HeartbeatCobID(nodeID uint8) uint32 { return 0x700 + uint32(nodeID) }
