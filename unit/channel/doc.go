// Package channel defines the transaction channel between a storage unit
// dispatcher and the virtual SCSI controller that feeds it requests.
//
// A [Channel] carries transactions: the dispatcher sends the previous
// operation's [Response] and receives the next [Request] in a single
// blocking [Channel.Transact] call. Implementations must be safe for
// concurrent Transact calls from multiple dispatcher workers, each
// operating on its own request/response pair.
//
// Transports are selected by the form of the device identity string and
// register themselves with [Register], in the manner of database/sql
// drivers:
//
//	import _ "github.com/ardnew/softscsi/unit/channel/pipe"
//
//	ch, err := channel.Open("pipe:/run/softscsi/unit0", params)
//
// An empty identity opens [DefaultDeviceName] via the kernel device
// transport.
//
// # Wire Format
//
// Requests, responses, unmap descriptors, and provisioning parameters are
// fixed-size little-endian structures with MarshalTo/Parse codecs. The
// reserved padding in each layout must be preserved when extending the
// contract so existing controllers and units remain compatible.
package channel
