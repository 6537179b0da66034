// Package unit implements user-mode SCSI storage units: virtual block
// devices serviced by this process and exposed to a host storage stack
// through a kernel-resident virtual controller (or a named-pipe stand-in).
//
// # Architecture
//
// A [StorageUnit] ties together four pieces:
//
//   - [Params] fix the unit's geometry, identity, and feature flags
//   - [Interface] is the capability table of storage operations the
//     embedding application supplies (Read/Write/Flush/Unmap)
//   - a [channel.Channel] carries transactions to and from the controller
//   - the dispatcher pulls requests, invokes the capability table, and
//     pushes back responses with SCSI status/sense
//
// # Dispatcher
//
// StartDispatcher spawns a fixed pool of workers. Each worker loops
// through one blocking transact call per iteration: the previous
// operation's response is piggy-backed onto the fetch of the next request,
// so a loaded unit costs one channel round trip per operation. Workers
// never share request/response state; the only cross-worker state is the
// sticky dispatcher error (first error wins, set exactly once) and the
// debug-log flag.
//
// # Lifecycle
//
//	u, err := unit.New("pipe:/run/softscsi/unit0", params, intf)
//	if err != nil { ... }
//	if err := u.StartDispatcher(0); err != nil { ... }
//	...
//	u.ShutdownDispatcher()
//	u.WaitDispatcher()
//	u.Close()
//
// ShutdownDispatcher tears down the channel, which promptly unblocks
// workers waiting in transact. WaitDispatcher blocks until every worker
// has stopped. Close releases the channel and must only be called after
// the dispatcher has fully stopped.
//
// # Operation Context
//
// Interface callbacks may retrieve the in-flight transaction via
// [GetOperationContext] on the context they were invoked with, without it
// being threaded through the backend's own signatures.
package unit
