// Package pipe implements the transaction channel over a pair of named
// pipes (FIFOs), allowing a storage unit to be serviced by an out-of-process
// controller instead of the kernel control device.
//
// The storage unit owns a directory containing two FIFOs:
//
//	<dir>/request   controller -> unit (transact requests)
//	<dir>/response  unit -> controller (provisioning record, then responses)
//
// Device identities of the form "pipe:<dir>" select this transport:
//
//	import _ "github.com/ardnew/softscsi/unit/channel/pipe"
//
//	ch, err := channel.Open("pipe:/run/softscsi/unit0", params)
//
// Frames are [type, length(4)] headers followed by the serialized
// request/response and its data payload. The provisioning record is written
// as the first frame on the response FIFO so a late-attaching controller
// learns the unit's geometry before any responses.
package pipe
