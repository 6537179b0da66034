package store

import (
	"io"
	"os"
	"sync"
)

// FileDisk implements Disk using a regular file as backing media.
type FileDisk struct {
	file           *os.File
	size           uint64
	blockLength    uint32
	writeProtected bool
	mutex          sync.RWMutex
}

// NewFileDisk opens path as a file-backed disk. A blockCount of 0 sizes
// the disk from the existing file; otherwise the file is extended (never
// shrunk) to hold blockCount blocks. If writeProtected is true, the file
// is opened read-only.
func NewFileDisk(path string, blockCount uint64, blockLength uint32, writeProtected bool) (*FileDisk, error) {
	flags := os.O_RDWR | os.O_CREATE
	if writeProtected {
		flags = os.O_RDONLY
	}

	file, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, err
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	size := uint64(stat.Size())

	if want := blockCount * uint64(blockLength); want > size {
		if writeProtected {
			file.Close()
			return nil, io.ErrUnexpectedEOF
		}
		if err := file.Truncate(int64(want)); err != nil {
			file.Close()
			return nil, err
		}
		size = want
	}

	return &FileDisk{
		file:           file,
		size:           size,
		blockLength:    blockLength,
		writeProtected: writeProtected,
	}, nil
}

// BlockCount returns the number of blocks.
func (f *FileDisk) BlockCount() uint64 {
	return f.size / uint64(f.blockLength)
}

// BlockLength returns the block size.
func (f *FileDisk) BlockLength() uint32 {
	return f.blockLength
}

// ReadBlocks reads blocks from the file.
func (f *FileDisk) ReadBlocks(blockAddress uint64, blockCount uint32, buf []byte) error {
	f.mutex.RLock()
	defer f.mutex.RUnlock()

	offset, length, err := f.extent(blockAddress, blockCount, len(buf))
	if err != nil {
		return err
	}
	_, err = f.file.ReadAt(buf[:length], offset)
	return err
}

// WriteBlocks writes blocks to the file.
func (f *FileDisk) WriteBlocks(blockAddress uint64, blockCount uint32, buf []byte) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if f.writeProtected {
		return os.ErrPermission
	}
	offset, length, err := f.extent(blockAddress, blockCount, len(buf))
	if err != nil {
		return err
	}
	_, err = f.file.WriteAt(buf[:length], offset)
	return err
}

// Flush commits file writes to disk.
func (f *FileDisk) Flush() error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if f.writeProtected {
		return nil
	}
	return f.file.Sync()
}

// Unmap deallocates the addressed blocks. Where the platform supports
// hole punching the file becomes sparse; otherwise the range is
// zero-filled.
func (f *FileDisk) Unmap(blockAddress uint64, blockCount uint32) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if f.writeProtected {
		return os.ErrPermission
	}
	offset := int64(blockAddress * uint64(f.blockLength))
	length := int64(blockCount) * int64(f.blockLength)
	if uint64(offset)+uint64(length) > f.size {
		return io.EOF
	}
	return punchHole(f.file, offset, length)
}

// WriteProtected returns whether the disk rejects writes.
func (f *FileDisk) WriteProtected() bool {
	return f.writeProtected
}

// Close closes the underlying file.
func (f *FileDisk) Close() error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if f.file != nil {
		err := f.file.Close()
		f.file = nil
		return err
	}
	return nil
}

func (f *FileDisk) extent(blockAddress uint64, blockCount uint32, bufLen int) (int64, int, error) {
	offset := blockAddress * uint64(f.blockLength)
	length := uint64(blockCount) * uint64(f.blockLength)
	if offset+length > f.size {
		return 0, 0, io.EOF
	}
	if uint64(bufLen) < length {
		return 0, 0, io.ErrShortBuffer
	}
	return int64(offset), int(length), nil
}
