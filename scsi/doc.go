// Package scsi defines the SCSI status and sense model used by storage
// units to report per-request results to the controller.
//
// A [Status] block carries the SCSI status code and, for CHECK CONDITION,
// the sense key, additional sense code, and an optional 64-bit information
// field. The [SetSense] and [SetSenseWithInformation] helpers are the single
// place sense data is constructed, so all failure paths format it
// identically:
//
//	if lba+count > disk.BlockCount() {
//	    scsi.SetSenseWithInformation(status,
//	        scsi.SenseIllegalRequest, scsi.ASCLogicalBlockOutOfRange, lba)
//	    return false
//	}
package scsi
