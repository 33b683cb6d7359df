package evtbuilder

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrGrouping is returned when a built event record is inconsistent. The
// stream cannot be resynchronised after it.
var ErrGrouping = errors.New("corrupted built event")

const batchSizeBytes = 4

// ReadBatch reads one built event record: a little endian uint32 with the
// record size in bytes, itself included, followed by the fragments. It
// returns io.EOF at a clean end of stream.
func ReadBatch(r io.Reader) ([]byte, error) {
	var sizeBinary [batchSizeBytes]byte
	if _, err := io.ReadFull(r, sizeBinary[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("%w: reading size: %w", ErrGrouping, err)
	}
	size := binary.LittleEndian.Uint32(sizeBinary[:])
	if size < batchSizeBytes {
		return nil, fmt.Errorf("%w: record size %d", ErrGrouping, size)
	}
	// the buffer grows with the bytes actually read, a corrupted size
	// cannot reserve more memory than the stream holds
	var data bytes.Buffer
	if _, err := io.CopyN(&data, r, int64(size-batchSizeBytes)); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("%w: record of %d bytes: %w", ErrGrouping, size, err)
	}
	return data.Bytes(), nil
}

// EncodeBatch frames fragments as a built event record.
func EncodeBatch(fragments ...[]byte) []byte {
	size := batchSizeBytes
	for _, fragment := range fragments {
		size += len(fragment)
	}
	data := make([]byte, batchSizeBytes, size)
	binary.LittleEndian.PutUint32(data, uint32(size))
	for _, fragment := range fragments {
		data = append(data, fragment...)
	}
	return data
}
