package pipe

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"golang.org/x/sys/unix"

	"github.com/ardnew/softscsi/pkg"
	"github.com/ardnew/softscsi/unit/channel"
)

// FIFO file names inside the unit directory.
const (
	fifoRequest  = "request"
	fifoResponse = "response"
)

// Frame types for the pipe protocol (shared with controller implementations).
const (
	FrameProvision = 0x01 // StorageUnitParams record
	FrameRequest   = 0x02 // Transact request
	FrameResponse  = 0x03 // Transact response
)

// FrameHeaderSize is the size of a frame header: type (1) + length (4).
const FrameHeaderSize = 5

// pollInterval bounds how long a blocked read waits before re-checking for
// cancellation or teardown.
const pollInterval = 100 * time.Millisecond

func init() {
	channel.Register(channel.SchemePipe, Open)
}

// Pipe implements channel.Channel over a FIFO pair.
type Pipe struct {
	dir string

	requestRead   *os.File // Unit reads requests from the controller
	responseWrite *os.File // Unit writes provisioning and responses

	readMutex  sync.Mutex // Serializes whole request frames across workers
	writeMutex sync.Mutex // Serializes whole response frames across workers

	closeCh   chan struct{}
	closeOnce sync.Once

	// Reusable frame scratch buffers, guarded by the respective mutex
	readBuf  [FrameHeaderSize + channel.RequestSize]byte
	writeBuf [FrameHeaderSize + channel.ResponseSize]byte
}

// Open creates the unit directory and FIFO pair under dir, writes the
// provisioning record, and returns the channel. The directory is removed
// again on Close.
func Open(dir string, params *channel.StorageUnitParams) (channel.Channel, error) {
	if dir == "" {
		return nil, errors.Wrap(pkg.ErrInvalidParameter, "empty pipe directory")
	}

	p := &Pipe{
		dir:     dir,
		closeCh: make(chan struct{}),
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create unit dir")
	}

	if err := createFIFO(dir, fifoRequest); err != nil {
		p.cleanup()
		return nil, err
	}
	if err := createFIFO(dir, fifoResponse); err != nil {
		p.cleanup()
		return nil, err
	}

	// O_RDWR keeps the FIFOs open without a peer so neither open nor the
	// provisioning write blocks before a controller attaches.
	var err error
	p.requestRead, err = openFIFO(dir, fifoRequest)
	if err != nil {
		p.cleanup()
		return nil, err
	}
	p.responseWrite, err = openFIFO(dir, fifoResponse)
	if err != nil {
		p.cleanup()
		return nil, err
	}

	if err := p.writeProvision(params); err != nil {
		p.cleanup()
		return nil, err
	}

	pkg.LogInfo(pkg.ComponentChannel, "pipe channel open",
		"dir", dir,
		"blocks", params.BlockCount,
		"blockLength", params.BlockLength)

	return p, nil
}

// Btl returns 0: the pipe transport has no bus addressing.
func (p *Pipe) Btl() uint32 {
	return 0
}

// Transact sends rsp (if non-nil) and then blocks for the next request into
// req and dataBuf (if non-nil).
func (p *Pipe) Transact(ctx context.Context, rsp *channel.Response, req *channel.Request, dataBuf []byte) error {
	select {
	case <-p.closeCh:
		return pkg.ErrChannelClosed
	default:
	}

	if rsp != nil {
		if err := p.writeResponse(rsp, dataBuf); err != nil {
			return err
		}
	}

	if req != nil {
		if err := p.readRequest(ctx, req, dataBuf); err != nil {
			return err
		}
	}

	return nil
}

// Close tears down the channel, unblocking pending Transact calls, and
// removes the unit directory.
func (p *Pipe) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.closeCh)
		err = p.cleanup()
		pkg.LogInfo(pkg.ComponentChannel, "pipe channel closed", "dir", p.dir)
	})
	return err
}

// Dir returns the unit directory path.
func (p *Pipe) Dir() string {
	return p.dir
}

// cleanup closes both FIFOs and removes the unit directory.
func (p *Pipe) cleanup() error {
	var err error
	if p.requestRead != nil {
		err = multierr.Append(err, p.requestRead.Close())
		p.requestRead = nil
	}
	if p.responseWrite != nil {
		err = multierr.Append(err, p.responseWrite.Close())
		p.responseWrite = nil
	}
	err = multierr.Append(err, os.RemoveAll(p.dir))
	return err
}

// writeProvision writes the provisioning record as the first response frame.
func (p *Pipe) writeProvision(params *channel.StorageUnitParams) error {
	var buf [FrameHeaderSize + channel.StorageUnitParamsSize]byte
	putFrameHeader(buf[:], FrameProvision, channel.StorageUnitParamsSize)
	if params.MarshalTo(buf[FrameHeaderSize:]) == 0 {
		return pkg.ErrBufferTooSmall
	}

	p.writeMutex.Lock()
	defer p.writeMutex.Unlock()
	return writeFull(p.responseWrite, buf[:])
}

// writeResponse writes one response frame: header, serialized response,
// then dataBuf[:rsp.DataLength]. The whole frame is written under the
// write mutex so concurrent workers never interleave payloads.
func (p *Pipe) writeResponse(rsp *channel.Response, dataBuf []byte) error {
	if uint64(rsp.DataLength) > uint64(len(dataBuf)) {
		return pkg.ErrBufferTooSmall
	}

	p.writeMutex.Lock()
	defer p.writeMutex.Unlock()

	putFrameHeader(p.writeBuf[:], FrameResponse, channel.ResponseSize+rsp.DataLength)
	if rsp.MarshalTo(p.writeBuf[FrameHeaderSize:]) == 0 {
		return pkg.ErrBufferTooSmall
	}

	if err := writeFull(p.responseWrite, p.writeBuf[:]); err != nil {
		return errors.Wrap(p.teardownErr(err), "write response")
	}
	if rsp.DataLength > 0 {
		if err := writeFull(p.responseWrite, dataBuf[:rsp.DataLength]); err != nil {
			return errors.Wrap(p.teardownErr(err), "write response data")
		}
	}
	return nil
}

// teardownErr maps FIFO errors caused by Close to [pkg.ErrChannelClosed]
// and passes genuine transport failures through unchanged.
func (p *Pipe) teardownErr(err error) error {
	select {
	case <-p.closeCh:
		return pkg.ErrChannelClosed
	default:
	}
	if errors.Is(err, os.ErrClosed) {
		return pkg.ErrChannelClosed
	}
	return err
}

// readRequest blocks for one request frame, filling req and dataBuf.
func (p *Pipe) readRequest(ctx context.Context, req *channel.Request, dataBuf []byte) error {
	p.readMutex.Lock()
	defer p.readMutex.Unlock()

	for {
		header := p.readBuf[:FrameHeaderSize]
		if err := p.readFull(ctx, header); err != nil {
			return err
		}

		frameType, frameLen := parseFrameHeader(header)
		if frameType != FrameRequest {
			pkg.LogWarn(pkg.ComponentChannel, "unexpected frame", "type", frameType)
			if err := p.discard(ctx, frameLen); err != nil {
				return err
			}
			continue
		}
		if frameLen < channel.RequestSize {
			return errors.Wrapf(pkg.ErrShortFrame, "request frame %d bytes", frameLen)
		}

		if err := p.readFull(ctx, p.readBuf[FrameHeaderSize:FrameHeaderSize+channel.RequestSize]); err != nil {
			return err
		}
		if !channel.ParseRequest(p.readBuf[FrameHeaderSize:], req) {
			return errors.Wrap(pkg.ErrProtocol, "bad request signature")
		}

		payload := frameLen - channel.RequestSize
		if payload != req.DataLength {
			return errors.Wrapf(pkg.ErrProtocol, "payload %d != data length %d", payload, req.DataLength)
		}
		if uint64(payload) > uint64(len(dataBuf)) {
			return errors.Wrapf(pkg.ErrBufferTooSmall, "payload %d bytes", payload)
		}
		if payload > 0 {
			if err := p.readFull(ctx, dataBuf[:payload]); err != nil {
				return err
			}
		}
		return nil
	}
}

// discard drains n payload bytes after an unrecognized frame header.
func (p *Pipe) discard(ctx context.Context, n uint32) error {
	var scratch [256]byte
	for n > 0 {
		chunk := uint32(len(scratch))
		if n < chunk {
			chunk = n
		}
		if err := p.readFull(ctx, scratch[:chunk]); err != nil {
			return err
		}
		n -= chunk
	}
	return nil
}

// readFull reads exactly len(buf) bytes from the request FIFO, re-checking
// for cancellation and teardown between deadline-bounded reads.
func (p *Pipe) readFull(ctx context.Context, buf []byte) error {
	total := 0
	for total < len(buf) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.closeCh:
			return pkg.ErrChannelClosed
		default:
		}

		p.requestRead.SetReadDeadline(time.Now().Add(pollInterval))
		n, err := p.requestRead.Read(buf[total:])
		if n > 0 {
			total += n
		}
		if err != nil {
			if os.IsTimeout(err) {
				continue
			}
			// Close tears the FIFO down under a blocked reader; that is
			// clean teardown, not a transport failure
			return p.teardownErr(err)
		}
	}
	return nil
}

// writeFull writes all of data to the response FIFO.
func writeFull(f *os.File, data []byte) error {
	written := 0
	for written < len(data) {
		n, err := f.Write(data[written:])
		if n > 0 {
			written += n
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// putFrameHeader writes a frame header to buf.
func putFrameHeader(buf []byte, frameType byte, length uint32) {
	buf[0] = frameType
	buf[1] = byte(length)
	buf[2] = byte(length >> 8)
	buf[3] = byte(length >> 16)
	buf[4] = byte(length >> 24)
}

// parseFrameHeader reads a frame header from buf.
func parseFrameHeader(buf []byte) (frameType byte, length uint32) {
	return buf[0], uint32(buf[1]) | uint32(buf[2])<<8 | uint32(buf[3])<<16 | uint32(buf[4])<<24
}

// createFIFO creates a named pipe inside the unit directory.
func createFIFO(dir, name string) error {
	path := filepath.Join(dir, name)
	os.Remove(path)
	if err := unix.Mkfifo(path, 0o666); err != nil {
		return errors.Wrapf(err, "mkfifo %s", name)
	}
	return nil
}

// openFIFO opens a named pipe without blocking for a peer.
func openFIFO(dir, name string) (*os.File, error) {
	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_RDWR|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", name)
	}
	return f, nil
}

// Compile-time interface check
var _ channel.Channel = (*Pipe)(nil)
