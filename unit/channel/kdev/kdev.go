//go:build linux

package kdev

import (
	"context"
	"encoding/binary"
	"sync"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/ardnew/softscsi/pkg"
	"github.com/ardnew/softscsi/unit/channel"
)

func init() {
	channel.Register(channel.SchemeDevice, Open)
}

// Control device ioctl command numbers ('S' type, _IOWR encoding).
var (
	ioctlProvision = iowr('S', 0x80, channel.StorageUnitParamsSize+4)
	ioctlTransact  = iowr('S', 0x81, transactHeaderSize)
	ioctlShutdown  = iowr('S', 0x82, 4)
)

// Transact buffer layout: flags (4) + response (32) + request (32) + data.
const (
	transactFlagResponseValid = 1 << 0 // Buffer carries an outgoing response
	transactFlagRequestWanted = 1 << 1 // Caller wants the next request

	transactHeaderSize = 4 + channel.ResponseSize + channel.RequestSize

	responseOffset = 4
	requestOffset  = 4 + channel.ResponseSize
	dataOffset     = transactHeaderSize
)

// Device implements channel.Channel over the kernel control device.
type Device struct {
	path string
	fd   int
	btl  uint32

	maxTransfer uint32
	buffers     sync.Pool // Per-call transact buffers

	closeCh   chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// Open opens the control device at path and provisions the storage unit
// described by params.
func Open(path string, params *channel.StorageUnitParams) (channel.Channel, error) {
	fd, err := unix.Open(path, unix.O_RDWR, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}

	d := &Device{
		path:        path,
		fd:          fd,
		maxTransfer: params.MaxTransferLength,
		closeCh:     make(chan struct{}),
	}
	d.buffers.New = func() any {
		buf := make([]byte, dataOffset+int(d.maxTransfer))
		return &buf
	}

	if err := d.provision(params); err != nil {
		unix.Close(fd)
		return nil, err
	}

	pkg.LogInfo(pkg.ComponentChannel, "control device open",
		"path", path,
		"btl", d.btl)

	return d, nil
}

// provision registers the unit with the controller and records the assigned
// bus/target/lun address.
func (d *Device) provision(params *channel.StorageUnitParams) error {
	var buf [channel.StorageUnitParamsSize + 4]byte
	if params.MarshalTo(buf[:]) == 0 {
		return pkg.ErrBufferTooSmall
	}

	if err := d.ioctl(ioctlProvision, buf[:]); err != nil {
		return errors.Wrap(err, "provision")
	}

	d.btl = binary.LittleEndian.Uint32(buf[channel.StorageUnitParamsSize:])
	return nil
}

// Btl returns the bus/target/lun address assigned at provisioning.
func (d *Device) Btl() uint32 {
	return d.btl
}

// Transact exchanges one response/request pair with the controller in a
// single ioctl. The call blocks in the kernel until a request is available;
// Close issues the shutdown ioctl, which fails pending transact calls and
// is reported here as [pkg.ErrChannelClosed]. The context is checked before
// entering the kernel but cannot interrupt a transact in progress.
func (d *Device) Transact(ctx context.Context, rsp *channel.Response, req *channel.Request, dataBuf []byte) error {
	select {
	case <-d.closeCh:
		return pkg.ErrChannelClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	bufp := d.buffers.Get().(*[]byte)
	defer d.buffers.Put(bufp)
	buf := *bufp

	var flags uint32
	if rsp != nil {
		if uint64(rsp.DataLength) > uint64(len(dataBuf)) {
			return pkg.ErrBufferTooSmall
		}
		flags |= transactFlagResponseValid
		rsp.MarshalTo(buf[responseOffset:])
		copy(buf[dataOffset:], dataBuf[:rsp.DataLength])
	}
	if req != nil {
		flags |= transactFlagRequestWanted
	}
	binary.LittleEndian.PutUint32(buf[0:4], flags)

	if err := d.ioctl(ioctlTransact, buf); err != nil {
		select {
		case <-d.closeCh:
			return pkg.ErrChannelClosed
		default:
		}
		return errors.Wrap(err, "transact")
	}

	if req != nil {
		if !channel.ParseRequest(buf[requestOffset:], req) {
			return errors.Wrap(pkg.ErrProtocol, "bad request signature")
		}
		if uint64(req.DataLength) > uint64(len(dataBuf)) {
			return errors.Wrapf(pkg.ErrBufferTooSmall, "payload %d bytes", req.DataLength)
		}
		copy(dataBuf[:req.DataLength], buf[dataOffset:])
	}

	return nil
}

// Close shuts the unit down at the controller and closes the control
// device, unblocking pending Transact calls.
func (d *Device) Close() error {
	d.closeOnce.Do(func() {
		close(d.closeCh)

		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], d.btl)
		// Best effort: the controller may already be gone
		d.ioctl(ioctlShutdown, buf[:])

		d.closeErr = unix.Close(d.fd)
		pkg.LogInfo(pkg.ComponentChannel, "control device closed", "path", d.path)
	})
	return d.closeErr
}

// ioctl issues cmd against the control device with buf as the argument.
func (d *Device) ioctl(cmd uintptr, buf []byte) error {
	for {
		_, _, errno := unix.Syscall(unix.SYS_IOCTL,
			uintptr(d.fd), cmd, uintptr(unsafe.Pointer(&buf[0])))
		if errno == 0 {
			return nil
		}
		if errno == unix.EINTR {
			continue
		}
		return errno
	}
}

// iowr encodes a read/write ioctl command number (asm-generic encoding).
func iowr(typ, nr, size uintptr) uintptr {
	const (
		iocWrite = 1
		iocRead  = 2

		nrshift   = 0
		typeshift = 8
		sizeshift = 16
		dirshift  = 30
	)
	return (iocRead|iocWrite)<<dirshift | size<<sizeshift | typ<<typeshift | nr<<nrshift
}

// Compile-time interface check
var _ channel.Channel = (*Device)(nil)
