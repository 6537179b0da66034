package store

import "os"

const zeroChunkSize = 64 * 1024

// zeroFill overwrites the byte range with zeros in fixed-size chunks.
func zeroFill(file *os.File, offset, length int64) error {
	zeros := make([]byte, zeroChunkSize)
	for length > 0 {
		n := int64(len(zeros))
		if n > length {
			n = length
		}
		if _, err := file.WriteAt(zeros[:n], offset); err != nil {
			return err
		}
		offset += n
		length -= n
	}
	return nil
}
