// Package kdev implements the transaction channel over the kernel-resident
// virtual SCSI controller's control device (Linux).
//
// The control device accepts three ioctls: provision, which registers the
// storage unit described by a [channel.StorageUnitParams] record and
// returns its bus/target/lun address; transact, which exchanges one
// response/request pair per call; and shutdown, which unblocks pending
// transact calls during teardown.
//
// Any device identity that is not a "pipe:" form selects this transport,
// and the empty identity opens [channel.DefaultDeviceName]:
//
//	import _ "github.com/ardnew/softscsi/unit/channel/kdev"
//
//	ch, err := channel.Open("", params)
package kdev
