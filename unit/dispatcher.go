package unit

import (
	"context"
	"errors"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/ardnew/softscsi/pkg"
	"github.com/ardnew/softscsi/scsi"
	"github.com/ardnew/softscsi/unit/channel"
)

// defaultThreadCount selects the worker count for threadCount = 0.
func defaultThreadCount() int {
	n := runtime.NumCPU()
	if n < 2 {
		n = 2
	}
	return n
}

// StartDispatcher spawns threadCount workers, each running the blocking
// receive/dispatch/respond loop against the unit's channel. A threadCount
// of 0 selects a default based on available parallelism. StartDispatcher
// fails with [pkg.ErrAlreadyStarted] if the dispatcher is already running.
func (u *StorageUnit) StartDispatcher(threadCount int) error {
	if threadCount < 0 {
		return pkg.ErrInvalidParameter
	}
	if threadCount == 0 {
		threadCount = defaultThreadCount()
	}

	u.mutex.Lock()
	defer u.mutex.Unlock()

	if u.started {
		return pkg.ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(context.Background())
	group := new(errgroup.Group)
	for id := 0; id < threadCount; id++ {
		id := id
		group.Go(func() error {
			return u.worker(ctx, id)
		})
	}

	u.started = true
	u.threadCount = threadCount
	u.group = group
	u.cancel = cancel

	pkg.LogInfo(pkg.ComponentDispatcher, "dispatcher started",
		"workers", threadCount)

	return nil
}

// ThreadCount returns the number of workers the dispatcher was started
// with, or 0 if it has not been started.
func (u *StorageUnit) ThreadCount() int {
	u.mutex.Lock()
	defer u.mutex.Unlock()
	return u.threadCount
}

// worker is one dispatcher thread: receive, dispatch, respond, repeat.
// The previous iteration's response is piggy-backed onto the next transact
// call. An end of channel or cancellation stops the worker cleanly; any
// other transact error is latched first-error-wins and stops this worker
// only.
func (u *StorageUnit) worker(ctx context.Context, id int) error {
	var (
		req     channel.Request
		rsp     channel.Response
		pending *channel.Response
		descs   []channel.UnmapDescriptor
	)
	dataBuf := make([]byte, u.params.MaxTransferLength)

	pkg.LogDebug(pkg.ComponentDispatcher, "worker started", "worker", id)
	defer pkg.LogDebug(pkg.ComponentDispatcher, "worker stopped", "worker", id)

	for {
		err := u.ch.Transact(ctx, pending, &req, dataBuf)
		pending = nil
		if err != nil {
			if errors.Is(err, pkg.ErrChannelClosed) || errors.Is(err, context.Canceled) {
				return nil
			}
			u.SetDispatcherError(err)
			pkg.LogError(pkg.ComponentDispatcher, "transact failed",
				"worker", id,
				"error", err)
			return err
		}

		if u.debugLog.Load()&DebugLogTransact != 0 {
			pkg.LogDebug(pkg.ComponentDispatcher, "request",
				"worker", id,
				"hint", req.Hint,
				"op", req.Kind.String(),
				"block", req.BlockAddress,
				"count", req.BlockCount,
				"fua", req.ForceUnitAccess)
		}

		rsp = channel.Response{Hint: req.Hint}
		descs = u.dispatch(ctx, &req, &rsp, dataBuf, descs)

		if u.debugLog.Load()&DebugLogTransact != 0 {
			pkg.LogDebug(pkg.ComponentDispatcher, "response",
				"worker", id,
				"hint", rsp.Hint,
				"status", rsp.Status.String(),
				"dataLength", rsp.DataLength)
		}

		pending = &rsp
	}
}

// dispatch decodes one request, invokes the matching capability, and
// populates the response. The unmap descriptor slice is returned so its
// backing array can be reused across iterations.
func (u *StorageUnit) dispatch(ctx context.Context, req *channel.Request,
	rsp *channel.Response, dataBuf []byte, descs []channel.UnmapDescriptor,
) []channel.UnmapDescriptor {
	opctx := OperationContext{Request: req, Response: rsp, DataBuffer: dataBuf}
	ctx = withOperationContext(ctx, &opctx)
	status := &rsp.Status
	var ok bool

	switch req.Kind {
	case channel.KindRead:
		if u.intf.Read == nil {
			rejectUnbound(req, status)
			break
		}
		length, fits := u.transferLength(req.BlockCount, len(dataBuf))
		if !fits {
			scsi.SetSenseWithInformation(status,
				scsi.SenseIllegalRequest, scsi.ASCInvalidFieldInCDB, req.BlockAddress)
			break
		}
		ok = u.intf.Read(ctx, u, dataBuf[:length], req.BlockAddress, req.BlockCount,
			req.ForceUnitAccess, status)
		guardStatus(ok, status)
		if ok && status.IsGood() {
			rsp.DataLength = uint32(length)
		}

	case channel.KindWrite:
		if u.intf.Write == nil {
			rejectUnbound(req, status)
			break
		}
		length, fits := u.transferLength(req.BlockCount, len(dataBuf))
		if !fits || uint32(length) != req.DataLength {
			scsi.SetSenseWithInformation(status,
				scsi.SenseIllegalRequest, scsi.ASCInvalidFieldInCDB, req.BlockAddress)
			break
		}
		ok = u.intf.Write(ctx, u, dataBuf[:length], req.BlockAddress, req.BlockCount,
			req.ForceUnitAccess, status)
		guardStatus(ok, status)

	case channel.KindFlush:
		if u.intf.Flush == nil {
			rejectUnbound(req, status)
			break
		}
		guardStatus(u.intf.Flush(ctx, u, req.BlockAddress, req.BlockCount, status), status)

	case channel.KindUnmap:
		if u.intf.Unmap == nil {
			rejectUnbound(req, status)
			break
		}
		if req.BlockCount == 0 {
			// Empty descriptor list: success without a callback
			break
		}
		if int(req.DataLength) > len(dataBuf) {
			scsi.SetSense(status, scsi.SenseIllegalRequest, scsi.ASCParameterListLengthError)
			break
		}
		descs, ok = channel.ParseUnmapDescriptors(dataBuf[:req.DataLength], req.BlockCount, descs)
		if !ok {
			scsi.SetSense(status, scsi.SenseIllegalRequest, scsi.ASCParameterListLengthError)
			break
		}
		guardStatus(u.intf.Unmap(ctx, u, descs, status), status)

	default:
		pkg.LogWarn(pkg.ComponentDispatcher, "unrecognized opcode",
			"hint", req.Hint,
			"kind", uint8(req.Kind))
		scsi.SetSense(status, scsi.SenseIllegalRequest, scsi.ASCInvalidCommand)
	}

	return descs
}

// rejectUnbound answers an operation with no bound capability.
func rejectUnbound(req *channel.Request, status *scsi.Status) {
	pkg.LogDebug(pkg.ComponentDispatcher, "operation not bound",
		"hint", req.Hint,
		"op", req.Kind.String(),
		"error", pkg.ErrNotSupported)
	scsi.SetSense(status, scsi.SenseIllegalRequest, scsi.ASCInvalidCommand)
}

// guardStatus enforces the callback contract: a callback that signals
// failure without populating status must not be reported to the
// controller as success.
func guardStatus(ok bool, status *scsi.Status) {
	if !ok && status.IsGood() {
		scsi.SetSense(status, scsi.SenseHardwareError, scsi.ASCInternalTargetFailure)
	}
}

// transferLength converts a block count to a byte length, rejecting
// transfers that exceed the worker's data buffer.
func (u *StorageUnit) transferLength(blockCount uint32, bufLen int) (int, bool) {
	length := uint64(blockCount) * uint64(u.params.BlockLength)
	if length > uint64(bufLen) {
		return 0, false
	}
	return int(length), true
}
