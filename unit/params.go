package unit

import (
	"math/bits"

	"github.com/pkg/errors"

	"github.com/ardnew/softscsi/pkg"
	"github.com/ardnew/softscsi/unit/channel"
)

// Block size and transfer limits.
const (
	MinBlockLength = 512       // Smallest supported block size
	MaxBlockLength = 64 * 1024 // Largest supported block size

	// DefaultMaxTransferLength is used when Params.MaxTransferLength is 0.
	DefaultMaxTransferLength = 64 * 1024

	// MaxTransferLimit caps the data payload of a single request.
	MaxTransferLimit = 16 * 1024 * 1024
)

// Params is the immutable configuration of a storage unit, fixed at
// creation.
type Params struct {
	Guid                 [16]byte // Unit identity/serial (zero is allowed)
	BlockCount           uint64   // Total addressable blocks; must be non-zero
	BlockLength          uint32   // Block size in bytes; power of two in [MinBlockLength, MaxBlockLength]
	ProductID            string   // INQUIRY product identification; at most 16 ASCII characters
	ProductRevisionLevel string   // INQUIRY product revision; at most 4 ASCII characters
	WriteProtected       bool     // Unit rejects writes
	CacheSupported       bool     // Unit honors flush semantics
	UnmapSupported       bool     // Unit accepts unmap requests
	EjectDisabled        bool     // Medium removal is locked out
	MaxTransferLength    uint32   // Largest payload per request; 0 selects DefaultMaxTransferLength
}

// normalized returns a copy of p with defaults applied.
func (p Params) normalized() Params {
	if p.MaxTransferLength == 0 {
		p.MaxTransferLength = DefaultMaxTransferLength
	}
	return p
}

// Validate checks p for a supported configuration. Defaults are not
// applied; callers normally validate through [New], which does both.
func (p *Params) Validate() error {
	if p.BlockCount == 0 {
		return errors.Wrap(pkg.ErrInvalidParameter, "block count is zero")
	}
	if p.BlockLength < MinBlockLength || p.BlockLength > MaxBlockLength ||
		bits.OnesCount32(p.BlockLength) != 1 {
		return errors.Wrapf(pkg.ErrInvalidParameter, "block length %d", p.BlockLength)
	}
	if len(p.ProductID) > 16 {
		return errors.Wrapf(pkg.ErrInvalidParameter, "product id %q too long", p.ProductID)
	}
	if len(p.ProductRevisionLevel) > 4 {
		return errors.Wrapf(pkg.ErrInvalidParameter, "product revision %q too long", p.ProductRevisionLevel)
	}
	if p.MaxTransferLength != 0 {
		if p.MaxTransferLength < p.BlockLength || p.MaxTransferLength%p.BlockLength != 0 {
			return errors.Wrapf(pkg.ErrInvalidParameter,
				"max transfer length %d not a multiple of block length %d",
				p.MaxTransferLength, p.BlockLength)
		}
		if p.MaxTransferLength > MaxTransferLimit {
			return errors.Wrapf(pkg.ErrInvalidParameter, "max transfer length %d", p.MaxTransferLength)
		}
	}
	return nil
}

// wire converts p to the provisioning record sent to the controller.
func (p *Params) wire() channel.StorageUnitParams {
	w := channel.StorageUnitParams{
		Guid:              p.Guid,
		BlockCount:        p.BlockCount,
		BlockLength:       p.BlockLength,
		MaxTransferLength: p.MaxTransferLength,
	}
	padString(w.ProductID[:], p.ProductID)
	padString(w.ProductRevisionLevel[:], p.ProductRevisionLevel)
	if p.WriteProtected {
		w.Flags |= channel.ParamFlagWriteProtected
	}
	if p.CacheSupported {
		w.Flags |= channel.ParamFlagCacheSupported
	}
	if p.UnmapSupported {
		w.Flags |= channel.ParamFlagUnmapSupported
	}
	if p.EjectDisabled {
		w.Flags |= channel.ParamFlagEjectDisabled
	}
	return w
}

// padString fills dst with s, space-padded or truncated to len(dst).
func padString(dst []byte, s string) {
	for i := range dst {
		if i < len(s) {
			dst[i] = s[i]
		} else {
			dst[i] = ' '
		}
	}
}
