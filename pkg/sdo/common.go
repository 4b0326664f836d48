// Package sdo implements the CiA 301 Service Data Object request/response
// engine: expedited and segmented upload/download, with per-segment
// timeout. The client blocks the calling goroutine, since the protocol
// permits only one outstanding transaction per node and direction.
package sdo

import "fmt"

// AbortCode is the 32-bit SDO abort code carried in an abort frame.
type AbortCode uint32

const (
	AbortToggleBit         AbortCode = 0x05030000
	AbortTimeout           AbortCode = 0x05040000
	AbortCmd               AbortCode = 0x05040001
	AbortOutOfMem          AbortCode = 0x05040005
	AbortUnsupportedAccess AbortCode = 0x06010000
	AbortWriteOnly         AbortCode = 0x06010001
	AbortReadOnly          AbortCode = 0x06010002
	AbortNotExist          AbortCode = 0x06020000
	AbortNoMap             AbortCode = 0x06040041
	AbortMapLen            AbortCode = 0x06040042
	AbortParamIncompat     AbortCode = 0x06040043
	AbortDeviceIncompat    AbortCode = 0x06040047
	AbortHardware          AbortCode = 0x06060000
	AbortTypeMismatch      AbortCode = 0x06070010
	AbortDataLong          AbortCode = 0x06070012
	AbortDataShort         AbortCode = 0x06070013
	AbortSubUnknown        AbortCode = 0x06090011
	AbortInvalidValue      AbortCode = 0x06090030
	AbortGeneral           AbortCode = 0x08000000
)

var abortDescriptions = map[AbortCode]string{
	AbortToggleBit:         "toggle bit not altered",
	AbortTimeout:           "SDO protocol timed out",
	AbortCmd:               "command specifier not valid or unknown",
	AbortOutOfMem:          "out of memory",
	AbortUnsupportedAccess: "unsupported access to an object",
	AbortWriteOnly:         "attempt to read a write only object",
	AbortReadOnly:          "attempt to write a read only object",
	AbortNotExist:          "object does not exist in the object dictionary",
	AbortNoMap:             "object cannot be mapped to the PDO",
	AbortMapLen:            "num and len of object to be mapped exceeds PDO length",
	AbortParamIncompat:     "general parameter incompatibility",
	AbortDeviceIncompat:    "general internal incompatibility in device",
	AbortHardware:          "access failed due to hardware error",
	AbortTypeMismatch:      "data type does not match, length does not match",
	AbortDataLong:          "data type does not match, length too high",
	AbortDataShort:         "data type does not match, length too short",
	AbortSubUnknown:        "sub index does not exist",
	AbortInvalidValue:      "invalid value for parameter",
	AbortGeneral:           "general error",
}

func (a AbortCode) Error() string {
	if desc, ok := abortDescriptions[a]; ok {
		return fmt.Sprintf("sdo abort 0x%08x: %s", uint32(a), desc)
	}
	return fmt.Sprintf("sdo abort 0x%08x", uint32(a))
}

// Command specifiers, byte 0 of every SDO frame.
const (
	ccsDownloadInitiate byte = 1 << 5
	ccsDownloadSegment  byte = 0 << 5
	ccsUploadInitiate   byte = 2 << 5
	ccsUploadSegment    byte = 3 << 5
	csAbort             byte = 4 << 5

	scsDownloadInitiate byte = 3 << 5
	scsDownloadSegment  byte = 1 << 5
	scsUploadInitiate   byte = 2 << 5
	scsUploadSegment    byte = 0 << 5

	toggleBit byte = 1 << 4
)

// BaseClientToServer and BaseServerToClient are the COB-ID offsets added to
// a node ID to get the master-to-slave and slave-to-master SDO channels.
const (
	BaseClientToServer uint32 = 0x600
	BaseServerToClient uint32 = 0x580
)
