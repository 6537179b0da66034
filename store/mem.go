package store

import (
	"io"
	"sync"
)

// MemDisk implements Disk using an in-memory buffer.
type MemDisk struct {
	data           []byte
	blockLength    uint32
	writeProtected bool
	mutex          sync.RWMutex
}

// NewMemDisk creates an in-memory disk of blockCount blocks of
// blockLength bytes each, zero-filled.
func NewMemDisk(blockCount uint64, blockLength uint32) *MemDisk {
	return &MemDisk{
		data:        make([]byte, blockCount*uint64(blockLength)),
		blockLength: blockLength,
	}
}

// BlockCount returns the number of blocks.
func (m *MemDisk) BlockCount() uint64 {
	return uint64(len(m.data)) / uint64(m.blockLength)
}

// BlockLength returns the block size.
func (m *MemDisk) BlockLength() uint32 {
	return m.blockLength
}

// ReadBlocks reads blocks from memory.
func (m *MemDisk) ReadBlocks(blockAddress uint64, blockCount uint32, buf []byte) error {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	offset, length, err := m.extent(blockAddress, blockCount, len(buf))
	if err != nil {
		return err
	}
	copy(buf, m.data[offset:offset+length])
	return nil
}

// WriteBlocks writes blocks to memory.
func (m *MemDisk) WriteBlocks(blockAddress uint64, blockCount uint32, buf []byte) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	offset, length, err := m.extent(blockAddress, blockCount, len(buf))
	if err != nil {
		return err
	}
	copy(m.data[offset:offset+length], buf)
	return nil
}

// Flush is a no-op for memory disks.
func (m *MemDisk) Flush() error {
	return nil
}

// Unmap zero-fills the addressed blocks.
func (m *MemDisk) Unmap(blockAddress uint64, blockCount uint32) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	offset := blockAddress * uint64(m.blockLength)
	length := uint64(blockCount) * uint64(m.blockLength)
	if offset+length > uint64(len(m.data)) {
		return io.EOF
	}
	clear(m.data[offset : offset+length])
	return nil
}

// WriteProtected returns whether the disk rejects writes.
func (m *MemDisk) WriteProtected() bool {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.writeProtected
}

// SetWriteProtected sets the write-protect flag.
func (m *MemDisk) SetWriteProtected(writeProtected bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.writeProtected = writeProtected
}

// Close is a no-op for memory disks.
func (m *MemDisk) Close() error {
	return nil
}

func (m *MemDisk) extent(blockAddress uint64, blockCount uint32, bufLen int) (uint64, uint64, error) {
	offset := blockAddress * uint64(m.blockLength)
	length := uint64(blockCount) * uint64(m.blockLength)
	if offset+length > uint64(len(m.data)) {
		return 0, 0, io.EOF
	}
	if uint64(bufLen) < length {
		return 0, 0, io.ErrShortBuffer
	}
	return offset, length, nil
}
