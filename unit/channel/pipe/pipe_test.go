package pipe

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/ardnew/softscsi/pkg"
	"github.com/ardnew/softscsi/scsi"
	"github.com/ardnew/softscsi/unit"
	"github.com/ardnew/softscsi/unit/channel"
)

// controller drives the FIFO pair from the other end, standing in for the
// virtual SCSI controller.
type controller struct {
	t            *testing.T
	requestWrite *os.File
	responseRead *os.File
}

func attachController(t *testing.T, dir string) *controller {
	t.Helper()

	reqW, err := os.OpenFile(filepath.Join(dir, "request"), os.O_RDWR|unix.O_NONBLOCK, 0)
	if err != nil {
		t.Fatalf("open request fifo: %v", err)
	}
	rspR, err := os.OpenFile(filepath.Join(dir, "response"), os.O_RDWR|unix.O_NONBLOCK, 0)
	if err != nil {
		reqW.Close()
		t.Fatalf("open response fifo: %v", err)
	}

	c := &controller{t: t, requestWrite: reqW, responseRead: rspR}
	t.Cleanup(func() {
		c.requestWrite.Close()
		c.responseRead.Close()
	})
	return c
}

func (c *controller) readFrame() (byte, []byte) {
	c.t.Helper()

	var header [FrameHeaderSize]byte
	c.responseRead.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, err := io.ReadFull(c.responseRead, header[:]); err != nil {
		c.t.Fatalf("read frame header: %v", err)
	}
	frameType, frameLen := parseFrameHeader(header[:])

	payload := make([]byte, frameLen)
	if _, err := io.ReadFull(c.responseRead, payload); err != nil {
		c.t.Fatalf("read frame payload: %v", err)
	}
	return frameType, payload
}

func (c *controller) writeRequest(req *channel.Request, data []byte) {
	c.t.Helper()

	frame := make([]byte, FrameHeaderSize+channel.RequestSize+len(data))
	putFrameHeader(frame, FrameRequest, channel.RequestSize+uint32(len(data)))
	if req.MarshalTo(frame[FrameHeaderSize:]) == 0 {
		c.t.Fatal("marshal request")
	}
	copy(frame[FrameHeaderSize+channel.RequestSize:], data)

	if _, err := c.requestWrite.Write(frame); err != nil {
		c.t.Fatalf("write request frame: %v", err)
	}
}

func testParams() channel.StorageUnitParams {
	p := channel.StorageUnitParams{
		BlockCount:        1024,
		BlockLength:       512,
		MaxTransferLength: 64 * 1024,
	}
	copy(p.ProductID[:], "PipeTest        ")
	return p
}

func TestOpenWritesProvision(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "unit0")
	params := testParams()

	ch, err := Open(dir, &params)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer ch.Close()

	c := attachController(t, dir)

	frameType, payload := c.readFrame()
	if frameType != FrameProvision {
		t.Fatalf("frame type = %#02x, want FrameProvision", frameType)
	}
	var got channel.StorageUnitParams
	if !channel.ParseStorageUnitParams(payload, &got) {
		t.Fatal("provision payload did not parse")
	}
	if got.BlockCount != params.BlockCount || got.BlockLength != params.BlockLength {
		t.Errorf("provisioned geometry = %d x %d, want %d x %d",
			got.BlockCount, got.BlockLength, params.BlockCount, params.BlockLength)
	}

	if btl := ch.Btl(); btl != 0 {
		t.Errorf("Btl() = %d, want 0", btl)
	}
	if got := ch.(*Pipe).Dir(); got != dir {
		t.Errorf("Dir() = %q, want %q", got, dir)
	}
}

func TestTransactRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "unit0")
	params := testParams()

	ch, err := Open(dir, &params)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer ch.Close()

	c := attachController(t, dir)
	c.readFrame() // provision

	writeData := make([]byte, 512)
	for i := range writeData {
		writeData[i] = byte(i)
	}
	sent := channel.Request{
		Hint:       1,
		Kind:       channel.KindWrite,
		BlockCount: 1,
		DataLength: 512,
	}
	c.writeRequest(&sent, writeData)

	var req channel.Request
	dataBuf := make([]byte, params.MaxTransferLength)
	if err := ch.Transact(context.Background(), nil, &req, dataBuf); err != nil {
		t.Fatalf("Transact: %v", err)
	}
	if req.Hint != sent.Hint || req.Kind != sent.Kind || req.DataLength != sent.DataLength {
		t.Errorf("received request = %+v, want %+v", req, sent)
	}
	for i := 0; i < 512; i++ {
		if dataBuf[i] != byte(i) {
			t.Fatalf("payload byte %d = %#02x, want %#02x", i, dataBuf[i], byte(i))
		}
	}

	// Piggy-back the response while fetching the next request
	rsp := channel.Response{Hint: req.Hint}
	scsi.SetSense(&rsp.Status, scsi.SenseIllegalRequest, scsi.ASCInvalidCommand)
	next := channel.Request{Hint: 2, Kind: channel.KindFlush}
	c.writeRequest(&next, nil)
	if err := ch.Transact(context.Background(), &rsp, &req, dataBuf); err != nil {
		t.Fatalf("Transact with response: %v", err)
	}
	if req.Hint != 2 || req.Kind != channel.KindFlush {
		t.Errorf("second request = %+v, want flush hint 2", req)
	}

	frameType, payload := c.readFrame()
	if frameType != FrameResponse {
		t.Fatalf("frame type = %#02x, want FrameResponse", frameType)
	}
	var gotRsp channel.Response
	if !channel.ParseResponse(payload, &gotRsp) {
		t.Fatal("response payload did not parse")
	}
	if gotRsp.Hint != 1 {
		t.Errorf("response hint = %d, want 1", gotRsp.Hint)
	}
	if gotRsp.Status.SenseKey != scsi.SenseIllegalRequest {
		t.Errorf("response sense key = %#02x, want ILLEGAL REQUEST", gotRsp.Status.SenseKey)
	}
}

func TestTransactResponseData(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "unit0")
	params := testParams()

	ch, err := Open(dir, &params)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer ch.Close()

	c := attachController(t, dir)
	c.readFrame() // provision

	dataBuf := make([]byte, params.MaxTransferLength)
	for i := 0; i < 1024; i++ {
		dataBuf[i] = byte(i % 251)
	}
	rsp := channel.Response{Hint: 9, DataLength: 1024}
	if err := ch.Transact(context.Background(), &rsp, nil, dataBuf); err != nil {
		t.Fatalf("Transact send-only: %v", err)
	}

	frameType, payload := c.readFrame()
	if frameType != FrameResponse {
		t.Fatalf("frame type = %#02x, want FrameResponse", frameType)
	}
	if len(payload) != channel.ResponseSize+1024 {
		t.Fatalf("frame length = %d, want %d", len(payload), channel.ResponseSize+1024)
	}
	for i, b := range payload[channel.ResponseSize:] {
		if b != byte(i%251) {
			t.Fatalf("payload byte %d = %#02x, want %#02x", i, b, byte(i%251))
		}
	}
}

func TestTransactUnblocksOnClose(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "unit0")
	params := testParams()

	ch, err := Open(dir, &params)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		var req channel.Request
		errCh <- ch.Transact(context.Background(), nil, &req, make([]byte, 512))
	}()

	time.Sleep(50 * time.Millisecond)
	if err := ch.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	select {
	case err := <-errCh:
		if !errors.Is(err, pkg.ErrChannelClosed) {
			t.Errorf("Transact error = %v, want ErrChannelClosed", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Transact did not unblock after Close")
	}

	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("unit dir still present after Close: %v", err)
	}
}

func TestTransactUnblocksOnCancel(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "unit0")
	params := testParams()

	ch, err := Open(dir, &params)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer ch.Close()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		var req channel.Request
		errCh <- ch.Transact(ctx, nil, &req, make([]byte, 512))
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Transact error = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Transact did not unblock after cancel")
	}
}

func TestCleanShutdownOverPipe(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "unit0")

	u, err := unit.New("pipe:"+dir, unit.Params{
		BlockCount:  1024,
		BlockLength: 512,
	}, &unit.Interface{
		Version: unit.InterfaceVersion,
		Flush: func(context.Context, *unit.StorageUnit, uint64, uint32, *scsi.Status) bool {
			return true
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := u.StartDispatcher(2); err != nil {
		t.Fatalf("StartDispatcher: %v", err)
	}

	// Let the workers block in the FIFO read before tearing down
	time.Sleep(50 * time.Millisecond)
	u.ShutdownDispatcher()

	done := make(chan struct{})
	go func() {
		u.WaitDispatcher()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("workers did not stop after shutdown")
	}

	if err := u.DispatcherError(); err != nil {
		t.Errorf("DispatcherError() = %v, want nil after clean shutdown", err)
	}
	if err := u.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestOpenEmptyDir(t *testing.T) {
	if _, err := Open("", &channel.StorageUnitParams{}); !errors.Is(err, pkg.ErrInvalidParameter) {
		t.Errorf("Open(\"\") error = %v, want ErrInvalidParameter", err)
	}
}
