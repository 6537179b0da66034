package scsi

import (
	"encoding/binary"
	"fmt"
)

// Status is the per-request result block carried in a transact response.
//
// A zero Status reports full success (SCSI GOOD). Failure paths populate it
// through [SetSense] or [SetSenseWithInformation] so that sense formatting
// is centralized and deterministic.
type Status struct {
	ScsiStatus       uint8  // SCSI status code (StatusGood, StatusCheckCondition, ...)
	SenseKey         uint8  // Sense key (bits 0-3)
	ASC              uint8  // Additional sense code
	ASCQ             uint8  // Additional sense code qualifier
	Information      uint64 // Information field
	InformationValid bool   // Information field contains a valid value
}

// IsGood returns true if the status reports success.
func (s *Status) IsGood() bool {
	return s.ScsiStatus == StatusGood
}

// Reset clears the status to report success.
func (s *Status) Reset() {
	*s = Status{}
}

// String returns a compact representation for trace logging.
func (s *Status) String() string {
	if s.IsGood() {
		return "GOOD"
	}
	if s.InformationValid {
		return fmt.Sprintf("status=%#02x key=%s asc=%#02x ascq=%#02x info=%#x",
			s.ScsiStatus, SenseKeyName(s.SenseKey), s.ASC, s.ASCQ, s.Information)
	}
	return fmt.Sprintf("status=%#02x key=%s asc=%#02x ascq=%#02x",
		s.ScsiStatus, SenseKeyName(s.SenseKey), s.ASC, s.ASCQ)
}

// SetSense populates status with CHECK CONDITION and the given sense key
// and additional sense code. The information field is left untouched.
func SetSense(status *Status, senseKey, asc uint8) {
	status.ScsiStatus = StatusCheckCondition
	status.SenseKey = senseKey & 0x0F
	status.ASC = asc
}

// SetSenseWithInformation populates status like [SetSense] and additionally
// stores the given information value and marks it valid.
func SetSenseWithInformation(status *Status, senseKey, asc uint8, information uint64) {
	SetSense(status, senseKey, asc)
	status.Information = information
	status.InformationValid = true
}

// FixedSenseSize is the size of a fixed-format sense data block in bytes.
const FixedSenseSize = 18

// MarshalSenseTo writes fixed-format sense data (SPC-4 descriptor 0x70) for
// the status to buf. Returns the number of bytes written, or 0 if buf is
// too small.
func (s *Status) MarshalSenseTo(buf []byte) int {
	if len(buf) < FixedSenseSize {
		return 0
	}

	for i := 0; i < FixedSenseSize; i++ {
		buf[i] = 0
	}

	buf[0] = 0x70 // Current errors, fixed format
	if s.InformationValid {
		buf[0] |= 0x80 // VALID bit
		// Fixed format carries only the low 32 bits of information
		binary.BigEndian.PutUint32(buf[3:7], uint32(s.Information))
	}
	buf[2] = s.SenseKey & 0x0F
	buf[7] = 10 // Additional sense length for fixed format
	buf[12] = s.ASC
	buf[13] = s.ASCQ

	return FixedSenseSize
}
