package channel

import "encoding/binary"

// StorageUnitParams is the provisioning record a transport delivers to the
// controller when a channel is opened. It fixes the unit's geometry,
// identity, and feature flags for the lifetime of the channel.
type StorageUnitParams struct {
	Guid                 [16]byte // Unit identity/serial
	BlockCount           uint64   // Total addressable blocks
	BlockLength          uint32   // Block size in bytes
	ProductID            [16]byte // INQUIRY product identification (ASCII)
	ProductRevisionLevel [4]byte  // INQUIRY product revision (ASCII)
	DeviceType           uint8    // SCSI peripheral device type (0 = direct access)
	Flags                uint32   // Feature flags (ParamFlag*)
	MaxTransferLength    uint32   // Largest data payload per request in bytes
}

// Feature flag bits for StorageUnitParams.Flags.
const (
	ParamFlagWriteProtected uint32 = 1 << 0
	ParamFlagCacheSupported uint32 = 1 << 1
	ParamFlagUnmapSupported uint32 = 1 << 2
	ParamFlagEjectDisabled  uint32 = 1 << 3
)

// StorageUnitParamsSize is the size of serialized params in bytes.
const StorageUnitParamsSize = 64

// WriteProtected reports whether the unit rejects writes.
func (p *StorageUnitParams) WriteProtected() bool {
	return p.Flags&ParamFlagWriteProtected != 0
}

// UnmapSupported reports whether the unit accepts unmap requests.
func (p *StorageUnitParams) UnmapSupported() bool {
	return p.Flags&ParamFlagUnmapSupported != 0
}

// ParseStorageUnitParams parses serialized params from data.
// Returns false if data is too short or the signature is invalid.
func ParseStorageUnitParams(data []byte, out *StorageUnitParams) bool {
	if len(data) < StorageUnitParamsSize {
		return false
	}
	if binary.LittleEndian.Uint32(data[0:4]) != ParamsSignature {
		return false
	}

	copy(out.Guid[:], data[4:20])
	out.BlockCount = binary.LittleEndian.Uint64(data[20:28])
	out.BlockLength = binary.LittleEndian.Uint32(data[28:32])
	copy(out.ProductID[:], data[32:48])
	copy(out.ProductRevisionLevel[:], data[48:52])
	out.DeviceType = data[52]
	// data[53:56] reserved
	out.Flags = binary.LittleEndian.Uint32(data[56:60])
	out.MaxTransferLength = binary.LittleEndian.Uint32(data[60:64])

	return true
}

// MarshalTo writes the serialized params to buf.
// Returns the number of bytes written, or 0 if buf is too small.
func (p *StorageUnitParams) MarshalTo(buf []byte) int {
	if len(buf) < StorageUnitParamsSize {
		return 0
	}

	binary.LittleEndian.PutUint32(buf[0:4], ParamsSignature)
	copy(buf[4:20], p.Guid[:])
	binary.LittleEndian.PutUint64(buf[20:28], p.BlockCount)
	binary.LittleEndian.PutUint32(buf[28:32], p.BlockLength)
	copy(buf[32:48], p.ProductID[:])
	copy(buf[48:52], p.ProductRevisionLevel[:])
	buf[52] = p.DeviceType
	buf[53], buf[54], buf[55] = 0, 0, 0
	binary.LittleEndian.PutUint32(buf[56:60], p.Flags)
	binary.LittleEndian.PutUint32(buf[60:64], p.MaxTransferLength)

	return StorageUnitParamsSize
}
