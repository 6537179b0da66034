package unit

import (
	"context"
	"sync"
	"testing"

	"github.com/ardnew/softscsi/pkg"
	"github.com/ardnew/softscsi/scsi"
	"github.com/ardnew/softscsi/unit/channel"
)

// mockRequest is one request fed to the dispatcher by a test.
type mockRequest struct {
	req  channel.Request
	data []byte
}

// mockResponse is one response captured from the dispatcher.
type mockResponse struct {
	rsp  channel.Response
	data []byte
}

// mockChannel implements channel.Channel for dispatcher tests. Requests
// are fed through the requests channel and responses are captured on the
// responses channel.
type mockChannel struct {
	params    channel.StorageUnitParams
	btl       uint32
	requests  chan mockRequest
	responses chan mockResponse

	transactErr error // Injected infrastructure failure, returned once

	errMutex  sync.Mutex
	closeCh   chan struct{}
	closeOnce sync.Once
}

func newMockChannel() *mockChannel {
	return &mockChannel{
		btl:       0x00010203,
		requests:  make(chan mockRequest, 128),
		responses: make(chan mockResponse, 128),
		closeCh:   make(chan struct{}),
	}
}

func (m *mockChannel) Transact(ctx context.Context, rsp *channel.Response, req *channel.Request, dataBuf []byte) error {
	select {
	case <-m.closeCh:
		return pkg.ErrChannelClosed
	default:
	}

	if rsp != nil {
		data := make([]byte, rsp.DataLength)
		copy(data, dataBuf[:rsp.DataLength])
		m.responses <- mockResponse{rsp: *rsp, data: data}
	}

	if req == nil {
		return nil
	}

	m.errMutex.Lock()
	err := m.transactErr
	m.transactErr = nil
	m.errMutex.Unlock()
	if err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-m.closeCh:
		return pkg.ErrChannelClosed
	case in := <-m.requests:
		*req = in.req
		copy(dataBuf, in.data)
		return nil
	}
}

func (m *mockChannel) Btl() uint32 {
	return m.btl
}

func (m *mockChannel) Close() error {
	m.closeOnce.Do(func() { close(m.closeCh) })
	return nil
}

func (m *mockChannel) closed() bool {
	select {
	case <-m.closeCh:
		return true
	default:
		return false
	}
}

var (
	mockMutex sync.Mutex
	nextMock  *mockChannel
)

func init() {
	channel.Register(channel.SchemeDevice, func(identity string, params *channel.StorageUnitParams) (channel.Channel, error) {
		mockMutex.Lock()
		defer mockMutex.Unlock()
		nextMock.params = *params
		return nextMock, nil
	})
}

// newTestUnit creates a storage unit backed by a fresh mock channel.
func newTestUnit(t *testing.T, params Params, intf *Interface) (*StorageUnit, *mockChannel) {
	t.Helper()

	mockMutex.Lock()
	nextMock = newMockChannel()
	mock := nextMock
	mockMutex.Unlock()

	u, err := New("/dev/mock", params, intf)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return u, mock
}

// testParams returns a small but valid unit configuration.
func testParams() Params {
	return Params{
		BlockCount:        1024,
		BlockLength:       512,
		ProductID:         "MockDisk",
		MaxTransferLength: 64 * 1024,
	}
}

// nopInterface returns a capability table whose operations all succeed.
func nopInterface() *Interface {
	return &Interface{
		Version: InterfaceVersion,
		Read: func(context.Context, *StorageUnit, []byte, uint64, uint32, bool, *scsi.Status) bool {
			return true
		},
		Write: func(context.Context, *StorageUnit, []byte, uint64, uint32, bool, *scsi.Status) bool {
			return true
		},
		Flush: func(context.Context, *StorageUnit, uint64, uint32, *scsi.Status) bool {
			return true
		},
		Unmap: func(context.Context, *StorageUnit, []channel.UnmapDescriptor, *scsi.Status) bool {
			return true
		},
	}
}
