package evtbuilder

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// FragmentHeader precedes every fragment payload in a trigger batch.
type FragmentHeader struct {
	Timestamp   uint64
	SourceID    uint32
	PayloadSize uint32
	Barrier     uint32
}

var fragmentHeaderSize = binary.Size(FragmentHeader{})

// Fragment is one decoded front-end record. It is not modified after
// decoding.
type Fragment struct {
	Source    SystemTag
	SourceID  uint32
	Barrier   uint32
	Address   uint32
	Crate     int
	Slot      int
	Channel   int
	Timestamp uint64
	Charge    uint32
	CFDTime   uint16
	CFDFail   bool
	// Pixie-16 specific fields
	Clock        uint64
	OutOfRange   bool
	ExtTimestamp uint64
	EnergySums   []uint32
	QDCSums      []uint32
	Trace        []uint16
	// GRETINA decomposed hit, nil for other systems
	Gretina *GretinaPayload
	Payload []byte
}

// Time is the header timestamp refined by the Pixie-16 constant fraction
// discriminator, in ns. Without a valid CFD it is the timestamp.
func (f Fragment) Time() float64 {
	if !f.Source.UsesDDAS() || f.CFDFail {
		return float64(f.Timestamp)
	}
	return float64(f.Timestamp) + float64(f.CFDTime)/ddasCFDScale*ddasClockTick
}

// FragmentDecoder turns raw fragments into typed Fragments. It only reads
// its source table, so one decoder can be shared between goroutines.
type FragmentDecoder struct {
	sources map[uint32]SystemTag
}

func NewFragmentDecoder(sources []SourceConfig) (*FragmentDecoder, error) {
	decoder := &FragmentDecoder{sources: make(map[uint32]SystemTag, len(sources))}
	for _, source := range sources {
		tag, err := ParseSystemTag(source.System)
		if err != nil {
			return nil, fmt.Errorf("source %d: %w", source.SourceID, err)
		}
		decoder.sources[source.SourceID] = tag
	}
	return decoder, nil
}

// Decode parses the fragment at the beginning of data. It returns the
// number of bytes the fragment occupies. When the payload cannot be decoded
// the size is still returned so the caller can skip it; a size of zero
// means the framing itself is broken.
func (d *FragmentDecoder) Decode(data []byte) (Fragment, int, error) {
	var fragment Fragment
	if len(data) < fragmentHeaderSize {
		return fragment, 0, malformed("%d bytes left, header needs %d", len(data), fragmentHeaderSize)
	}

	var header FragmentHeader
	headerReader := bytes.NewReader(data[:fragmentHeaderSize])
	if err := binary.Read(headerReader, binary.LittleEndian, &header); err != nil {
		return fragment, 0, fmt.Errorf("%w: %w", ErrMalformedFragment, err)
	}

	size := fragmentHeaderSize + int(header.PayloadSize)
	if int(header.PayloadSize) > len(data)-fragmentHeaderSize {
		return fragment, 0, malformed("payload of %d bytes overruns buffer of %d", header.PayloadSize, len(data))
	}

	fragment.SourceID = header.SourceID
	fragment.Timestamp = header.Timestamp
	fragment.Barrier = header.Barrier
	fragment.Payload = data[fragmentHeaderSize:size]

	source, ok := d.sources[header.SourceID]
	if !ok {
		return fragment, size, fmt.Errorf("%w: id %d", ErrUnknownSource, header.SourceID)
	}
	fragment.Source = source

	var err error
	switch {
	case source == SystemGretina:
		err = decodeGretinaPayload(fragment.Payload, &fragment)
	case source.UsesDDAS():
		err = decodeDDASPayload(fragment.Payload, &fragment)
	default:
		err = fmt.Errorf("%w: no payload decoder for %v", ErrUnknownSource, source)
	}
	if err != nil {
		return fragment, size, err
	}
	fragment.Address = MakeAddress(fragment.Source, fragment.Crate, fragment.Slot, fragment.Channel)

	if configuration.Verbosity > 3 {
		message := fmt.Sprintf("Fragment source=%v address=0x%08x ts=%d charge=%d",
			fragment.Source, fragment.Address, fragment.Timestamp, fragment.Charge)
		logger.Info(message, "fragment")
	}
	return fragment, size, nil
}

// DecodeAll decodes consecutive fragments from data. Fragments with a
// broken payload are handed to skip and left out of the result. The
// returned error is only set when the framing is broken, in which case the
// fragments decoded so far are still returned.
func (d *FragmentDecoder) DecodeAll(data []byte, skip func(Fragment, error)) ([]Fragment, error) {
	fragments := make([]Fragment, 0, 8)
	position := 0
	for position < len(data) {
		fragment, nRead, err := d.Decode(data[position:])
		if nRead == 0 {
			return fragments, fmt.Errorf("fragment at offset %d: %w", position, err)
		}
		position += nRead
		if err != nil {
			if skip != nil {
				skip(fragment, err)
			}
			continue
		}
		fragments = append(fragments, fragment)
	}
	return fragments, nil
}

// EncodeFragment is the inverse of Decode for the framing. It is used by
// tools producing test files.
func EncodeFragment(header FragmentHeader, payload []byte) []byte {
	header.PayloadSize = uint32(len(payload))
	buffer := new(bytes.Buffer)
	binary.Write(buffer, binary.LittleEndian, header)
	buffer.Write(payload)
	return buffer.Bytes()
}
