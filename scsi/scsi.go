package scsi

// SCSI status codes (SAM-5).
const (
	StatusGood           uint8 = 0x00
	StatusCheckCondition uint8 = 0x02
	StatusBusy           uint8 = 0x08
	StatusTaskSetFull    uint8 = 0x28
)

// Sense keys (SPC-4).
const (
	SenseNoSense        uint8 = 0x0
	SenseRecoveredError uint8 = 0x1
	SenseNotReady       uint8 = 0x2
	SenseMediumError    uint8 = 0x3
	SenseHardwareError  uint8 = 0x4
	SenseIllegalRequest uint8 = 0x5
	SenseUnitAttention  uint8 = 0x6
	SenseDataProtect    uint8 = 0x7
	SenseAbortedCommand uint8 = 0xB
)

// Additional sense codes (SPC-4).
const (
	ASCNoAdditionalInfo         uint8 = 0x00
	ASCWriteFault               uint8 = 0x03
	ASCUnrecoveredReadError     uint8 = 0x11
	ASCParameterListLengthError uint8 = 0x1A
	ASCInvalidCommand           uint8 = 0x20
	ASCLogicalBlockOutOfRange   uint8 = 0x21
	ASCInvalidFieldInCDB        uint8 = 0x24
	ASCInvalidFieldInParamList  uint8 = 0x26
	ASCWriteProtected           uint8 = 0x27
	ASCMediumNotPresent         uint8 = 0x3A
	ASCInternalTargetFailure    uint8 = 0x44
)

// SenseKeyName returns a human-readable sense key name for log output.
func SenseKeyName(key uint8) string {
	switch key {
	case SenseNoSense:
		return "NO SENSE"
	case SenseRecoveredError:
		return "RECOVERED ERROR"
	case SenseNotReady:
		return "NOT READY"
	case SenseMediumError:
		return "MEDIUM ERROR"
	case SenseHardwareError:
		return "HARDWARE ERROR"
	case SenseIllegalRequest:
		return "ILLEGAL REQUEST"
	case SenseUnitAttention:
		return "UNIT ATTENTION"
	case SenseDataProtect:
		return "DATA PROTECT"
	case SenseAbortedCommand:
		return "ABORTED COMMAND"
	default:
		return "RESERVED"
	}
}
