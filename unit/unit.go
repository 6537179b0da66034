package unit

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/ardnew/softscsi/pkg"
	"github.com/ardnew/softscsi/unit/channel"
)

// Debug-log flag bits for [StorageUnit.SetDebugLog].
const (
	// DebugLogTransact traces every request and response at debug level.
	DebugLogTransact uint32 = 1 << 0
)

// StorageUnit is a virtual block device serviced by this process.
//
// A unit is created with [New], serviced by [StorageUnit.StartDispatcher],
// torn down with [StorageUnit.ShutdownDispatcher] followed by
// [StorageUnit.WaitDispatcher], and released with [StorageUnit.Close].
type StorageUnit struct {
	// UserContext is an opaque slot for embedder state, never touched by
	// the storage stack. Set it before starting the dispatcher.
	UserContext any

	params Params
	intf   *Interface
	ch     channel.Channel

	debugLog      atomic.Uint32
	dispatcherErr atomic.Pointer[error]

	mutex       sync.Mutex // Guards lifecycle state below
	started     bool
	threadCount int
	group       *errgroup.Group
	cancel      context.CancelFunc

	shutdownOnce sync.Once
	waitOnce     sync.Once
	stopped      chan struct{}
}

// New creates a storage unit: it validates params and the capability
// table, opens a transaction channel for the given device identity, and
// provisions the unit on it. The identity may be a kernel control device
// path, empty for [channel.DefaultDeviceName], or "pipe:<dir>" for the
// named-pipe transport.
//
// The caller retains ownership of intf and must keep it alive for the
// unit's lifetime.
func New(deviceIdentity string, params Params, intf *Interface) (*StorageUnit, error) {
	params = params.normalized()
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if err := intf.validate(); err != nil {
		return nil, err
	}

	wire := params.wire()
	ch, err := channel.Open(deviceIdentity, &wire)
	if err != nil {
		return nil, err
	}

	u := &StorageUnit{
		params:  params,
		intf:    intf,
		ch:      ch,
		stopped: make(chan struct{}),
	}

	pkg.LogInfo(pkg.ComponentUnit, "storage unit created",
		"identity", deviceIdentity,
		"btl", ch.Btl(),
		"blocks", params.BlockCount,
		"blockLength", params.BlockLength)

	return u, nil
}

// Params returns the unit's immutable configuration.
func (u *StorageUnit) Params() Params {
	return u.params
}

// Btl returns the bus/target/lun address the controller assigned to the
// unit at provisioning.
func (u *StorageUnit) Btl() uint32 {
	return u.ch.Btl()
}

// SetDebugLog sets the debug-log flags (DebugLog*). Traces are emitted
// through the pkg logging layer at debug level. Safe to call at any time.
func (u *StorageUnit) SetDebugLog(flags uint32) {
	u.debugLog.Store(flags)
}

// DispatcherError returns the sticky dispatcher error, or nil if no
// channel or infrastructure failure has occurred. Per-request backend
// failures are reported through SCSI sense and never surface here.
func (u *StorageUnit) DispatcherError() error {
	if p := u.dispatcherErr.Load(); p != nil {
		return *p
	}
	return nil
}

// SetDispatcherError latches err as the dispatcher error. The first
// non-nil error wins; later calls are ignored. A nil err is a no-op.
func (u *StorageUnit) SetDispatcherError(err error) {
	if err == nil {
		return
	}
	u.dispatcherErr.CompareAndSwap(nil, &err)
}

// SendResponse sends a response outside the dispatcher loop, for
// operations completed asynchronously. The response's data payload, if
// any, is taken from dataBuf[:rsp.DataLength].
func (u *StorageUnit) SendResponse(rsp *channel.Response, dataBuf []byte) error {
	return u.ch.Transact(context.Background(), rsp, nil, dataBuf)
}

// ShutdownDispatcher signals channel teardown so blocked workers unblock
// promptly. It is idempotent and does not block; follow with
// [StorageUnit.WaitDispatcher] to wait for workers to stop.
func (u *StorageUnit) ShutdownDispatcher() {
	u.shutdownOnce.Do(func() {
		u.mutex.Lock()
		cancel := u.cancel
		u.mutex.Unlock()
		if cancel != nil {
			cancel()
		}
		if err := u.ch.Close(); err != nil {
			pkg.LogWarn(pkg.ComponentUnit, "channel close", "error", err)
		}
		pkg.LogInfo(pkg.ComponentUnit, "dispatcher shutdown signaled")
	})
}

// WaitDispatcher blocks until every worker has stopped. It is idempotent
// and safe for concurrent callers; it returns immediately if the
// dispatcher was never started. Check [StorageUnit.DispatcherError] after
// it returns.
func (u *StorageUnit) WaitDispatcher() {
	u.waitOnce.Do(func() {
		u.mutex.Lock()
		group := u.group
		u.mutex.Unlock()
		if group != nil {
			group.Wait()
		}
		close(u.stopped)
	})
	<-u.stopped
}

// Close releases the unit's channel resources. The dispatcher must have
// fully stopped (ShutdownDispatcher + WaitDispatcher) first; Close
// returns [pkg.ErrBusy] while workers are still active.
func (u *StorageUnit) Close() error {
	u.mutex.Lock()
	started := u.started
	u.mutex.Unlock()

	if started {
		select {
		case <-u.stopped:
		default:
			return pkg.ErrBusy
		}
	}

	err := u.ch.Close()
	pkg.LogInfo(pkg.ComponentUnit, "storage unit closed")
	return err
}
