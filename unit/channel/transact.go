package channel

import (
	"encoding/binary"

	"github.com/ardnew/softscsi/scsi"
)

// Kind identifies the operation a request asks the storage unit to perform.
type Kind uint8

// Request kinds.
const (
	KindReserved Kind = iota // Unused; catches zeroed frames
	KindRead
	KindWrite
	KindFlush
	KindUnmap
)

// String returns the operation name.
func (k Kind) String() string {
	switch k {
	case KindRead:
		return "read"
	case KindWrite:
		return "write"
	case KindFlush:
		return "flush"
	case KindUnmap:
		return "unmap"
	default:
		return "reserved"
	}
}

// Wire signatures for transact frames.
const (
	RequestSignature  uint32 = 0x51525053 // "SPRQ"
	ResponseSignature uint32 = 0x53525053 // "SPRS"
	ParamsSignature   uint32 = 0x4D525053 // "SPRM"
)

// Request flag bits.
const (
	RequestFlagForceUnitAccess uint8 = 1 << 0 // Flush to media after the operation
)

// Request is one operation delivered by the controller.
//
// BlockAddress and BlockCount address the operation for Read, Write, and
// Flush. For Unmap, BlockCount carries the number of [UnmapDescriptor]
// entries in the data payload instead. DataLength is the number of payload
// bytes accompanying the request (write data or unmap descriptors).
type Request struct {
	Hint            uint64 // Controller-assigned id, echoed in the response
	Kind            Kind   // Requested operation
	BlockAddress    uint64 // Starting block
	BlockCount      uint32 // Block count, or unmap descriptor count
	ForceUnitAccess bool   // Flush to media after the operation
	DataLength      uint32 // Payload bytes accompanying the request
}

// RequestSize is the size of a serialized request in bytes.
const RequestSize = 32

// ParseRequest parses a serialized request from data.
// Returns false if data is too short or the signature is invalid.
func ParseRequest(data []byte, out *Request) bool {
	if len(data) < RequestSize {
		return false
	}
	if binary.LittleEndian.Uint32(data[0:4]) != RequestSignature {
		return false
	}

	out.Hint = binary.LittleEndian.Uint64(data[4:12])
	out.Kind = Kind(data[12])
	out.ForceUnitAccess = data[13]&RequestFlagForceUnitAccess != 0
	// data[14:16] reserved
	out.BlockAddress = binary.LittleEndian.Uint64(data[16:24])
	out.BlockCount = binary.LittleEndian.Uint32(data[24:28])
	out.DataLength = binary.LittleEndian.Uint32(data[28:32])

	return true
}

// MarshalTo writes the serialized request to buf.
// Returns the number of bytes written, or 0 if buf is too small.
func (r *Request) MarshalTo(buf []byte) int {
	if len(buf) < RequestSize {
		return 0
	}

	binary.LittleEndian.PutUint32(buf[0:4], RequestSignature)
	binary.LittleEndian.PutUint64(buf[4:12], r.Hint)
	buf[12] = uint8(r.Kind)
	buf[13] = 0
	if r.ForceUnitAccess {
		buf[13] = RequestFlagForceUnitAccess
	}
	buf[14], buf[15] = 0, 0
	binary.LittleEndian.PutUint64(buf[16:24], r.BlockAddress)
	binary.LittleEndian.PutUint32(buf[24:28], r.BlockCount)
	binary.LittleEndian.PutUint32(buf[28:32], r.DataLength)

	return RequestSize
}

// Response is the paired result for one request.
//
// DataLength is the number of payload bytes accompanying the response
// (read data), taken from the dispatcher's data buffer.
type Response struct {
	Hint       uint64      // Echo of the request hint
	Status     scsi.Status // Per-request result
	DataLength uint32      // Payload bytes accompanying the response
}

// ResponseSize is the size of a serialized response in bytes.
const ResponseSize = 32

// ParseResponse parses a serialized response from data.
// Returns false if data is too short or the signature is invalid.
func ParseResponse(data []byte, out *Response) bool {
	if len(data) < ResponseSize {
		return false
	}
	if binary.LittleEndian.Uint32(data[0:4]) != ResponseSignature {
		return false
	}

	out.Hint = binary.LittleEndian.Uint64(data[4:12])
	out.Status.ScsiStatus = data[12]
	out.Status.SenseKey = data[13]
	out.Status.ASC = data[14]
	out.Status.ASCQ = data[15]
	out.Status.InformationValid = data[16] != 0
	// data[17:20] reserved
	out.Status.Information = binary.LittleEndian.Uint64(data[20:28])
	out.DataLength = binary.LittleEndian.Uint32(data[28:32])

	return true
}

// MarshalTo writes the serialized response to buf.
// Returns the number of bytes written, or 0 if buf is too small.
func (r *Response) MarshalTo(buf []byte) int {
	if len(buf) < ResponseSize {
		return 0
	}

	binary.LittleEndian.PutUint32(buf[0:4], ResponseSignature)
	binary.LittleEndian.PutUint64(buf[4:12], r.Hint)
	buf[12] = r.Status.ScsiStatus
	buf[13] = r.Status.SenseKey
	buf[14] = r.Status.ASC
	buf[15] = r.Status.ASCQ
	buf[16] = 0
	if r.Status.InformationValid {
		buf[16] = 1
	}
	buf[17], buf[18], buf[19] = 0, 0, 0
	binary.LittleEndian.PutUint64(buf[20:28], r.Status.Information)
	binary.LittleEndian.PutUint32(buf[28:32], r.DataLength)

	return ResponseSize
}

// UnmapDescriptor is one block range of a batched deallocation request.
type UnmapDescriptor struct {
	BlockAddress uint64 // Starting block
	BlockCount   uint32 // Number of blocks
}

// UnmapDescriptorSize is the size of a serialized unmap descriptor in bytes.
const UnmapDescriptorSize = 16

// MarshalTo writes the serialized descriptor to buf.
// Returns the number of bytes written, or 0 if buf is too small.
func (d *UnmapDescriptor) MarshalTo(buf []byte) int {
	if len(buf) < UnmapDescriptorSize {
		return 0
	}

	binary.LittleEndian.PutUint64(buf[0:8], d.BlockAddress)
	binary.LittleEndian.PutUint32(buf[8:12], d.BlockCount)
	binary.LittleEndian.PutUint32(buf[12:16], 0)

	return UnmapDescriptorSize
}

// ParseUnmapDescriptors parses count descriptors from data, appending them
// to out (which may be nil or reused across calls). Returns false if data
// is too short for count descriptors. Ranges are forwarded in order and
// unmodified; overlapping or duplicate ranges are not coalesced.
func ParseUnmapDescriptors(data []byte, count uint32, out []UnmapDescriptor) ([]UnmapDescriptor, bool) {
	if uint64(len(data)) < uint64(count)*UnmapDescriptorSize {
		return out, false
	}

	out = out[:0]
	for i := uint32(0); i < count; i++ {
		off := int(i) * UnmapDescriptorSize
		out = append(out, UnmapDescriptor{
			BlockAddress: binary.LittleEndian.Uint64(data[off : off+8]),
			BlockCount:   binary.LittleEndian.Uint32(data[off+8 : off+12]),
		})
	}

	return out, true
}
