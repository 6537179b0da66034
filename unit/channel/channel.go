package channel

import (
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/ardnew/softscsi/pkg"
)

// DefaultDeviceName is the kernel control device opened when the device
// identity string is empty.
const DefaultDeviceName = "/dev/softscsi"

// Transport schemes recognized in device identity strings.
const (
	SchemeDevice = "dev"  // kernel control device path
	SchemePipe   = "pipe" // named-pipe directory, "pipe:<dir>"
)

// Channel is a transport to the virtual SCSI controller servicing one
// storage unit.
//
// Transact is the only data-path primitive. Passing a non-nil rsp sends the
// previous operation's response; passing a non-nil req then blocks until
// the next request arrives and fills req in place. Write payloads and unmap
// descriptors are received into dataBuf, and read payloads are sent from
// dataBuf[:rsp.DataLength]. Either rsp or req may be nil to send-only or
// fetch-only.
//
// Transact returns [pkg.ErrChannelClosed] once the channel is torn down;
// blocked calls must unblock promptly after Close.
type Channel interface {
	Transact(ctx context.Context, rsp *Response, req *Request, dataBuf []byte) error

	// Btl returns the bus/target/lun address the controller assigned to
	// the unit at provisioning.
	Btl() uint32

	// Close tears down the channel, unblocking pending Transact calls.
	// Close is idempotent.
	Close() error
}

// Opener opens a transport for the given identity and provisions the
// storage unit described by params on it.
type Opener func(identity string, params *StorageUnitParams) (Channel, error)

var (
	transportMutex sync.RWMutex
	transports     = make(map[string]Opener)
)

// Register makes a transport available under the given scheme.
// It panics if the scheme is already registered.
func Register(scheme string, open Opener) {
	transportMutex.Lock()
	defer transportMutex.Unlock()
	if _, dup := transports[scheme]; dup {
		panic("channel: Register called twice for scheme " + scheme)
	}
	transports[scheme] = open
}

// Open opens a channel for the given device identity and provisions the
// unit described by params.
//
// The identity selects the transport: "pipe:<dir>" opens the named-pipe
// transport on the given directory, any other non-empty string is a kernel
// control device path, and an empty identity opens [DefaultDeviceName].
func Open(identity string, params *StorageUnitParams) (Channel, error) {
	scheme := SchemeDevice
	if identity == "" {
		identity = DefaultDeviceName
	} else if rest, ok := strings.CutPrefix(identity, SchemePipe+":"); ok {
		scheme, identity = SchemePipe, rest
	}

	transportMutex.RLock()
	open, ok := transports[scheme]
	transportMutex.RUnlock()
	if !ok {
		return nil, errors.Wrapf(pkg.ErrNoTransport, "scheme %q", scheme)
	}

	return open(identity, params)
}
