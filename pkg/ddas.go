package evtbuilder

import (
	"bytes"
	"encoding/binary"
)

// Pixie-16 list-mode channel record. The first four words are always
// present, optional header words follow in the order energy sums, QDC sums,
// external timestamp; trace samples are packed two per word.
const (
	ddasBaseHeaderWords = 4
	ddasEnergySumWords  = 4
	ddasQDCSumWords     = 8
	ddasExtTSWords      = 2
)

// The 15 bit CFD value is a fraction of one 10 ns clock tick.
const (
	ddasClockTick = 10.0
	ddasCFDScale  = 1 << 15
)

// DDASChannel is the content of one Pixie-16 channel record.
type DDASChannel struct {
	Crate        int
	Slot         int
	Channel      int
	Clock        uint64
	CFDTime      uint16
	CFDFail      bool
	Energy       uint16
	OutOfRange   bool
	EnergySums   []uint32
	QDCSums      []uint32
	ExtTimestamp uint64
	HasExtTS     bool
	Trace        []uint16
}

func ddasOptionalWords(extra uint32) (sums bool, qdc bool, ext bool, ok bool) {
	switch extra {
	case 0:
		return false, false, false, true
	case ddasExtTSWords:
		return false, false, true, true
	case ddasEnergySumWords:
		return true, false, false, true
	case ddasEnergySumWords + ddasExtTSWords:
		return true, false, true, true
	case ddasQDCSumWords:
		return false, true, false, true
	case ddasQDCSumWords + ddasExtTSWords:
		return false, true, true, true
	case ddasEnergySumWords + ddasQDCSumWords:
		return true, true, false, true
	case ddasEnergySumWords + ddasQDCSumWords + ddasExtTSWords:
		return true, true, true, true
	}
	return false, false, false, false
}

func decodeDDASPayload(payload []byte, fragment *Fragment) error {
	channel, err := DecodeDDAS(payload)
	if err != nil {
		return err
	}
	fragment.Crate = channel.Crate
	fragment.Slot = channel.Slot
	fragment.Channel = channel.Channel
	fragment.Clock = channel.Clock
	fragment.Charge = uint32(channel.Energy)
	fragment.CFDTime = channel.CFDTime
	fragment.CFDFail = channel.CFDFail
	fragment.OutOfRange = channel.OutOfRange
	fragment.EnergySums = channel.EnergySums
	fragment.QDCSums = channel.QDCSums
	fragment.ExtTimestamp = channel.ExtTimestamp
	fragment.Trace = channel.Trace
	return nil
}

// DecodeDDAS parses a single Pixie-16 channel record.
func DecodeDDAS(payload []byte) (DDASChannel, error) {
	var channel DDASChannel
	if len(payload) < ddasBaseHeaderWords*4 || len(payload)%4 != 0 {
		return channel, malformed("DDAS payload of %d bytes", len(payload))
	}
	nWords := uint32(len(payload) / 4)
	word := func(i uint32) uint32 {
		return binary.LittleEndian.Uint32(payload[4*i:])
	}

	w0 := word(0)
	channel.Channel = int(w0 & 0xf)
	channel.Slot = int((w0 >> 4) & 0xf)
	channel.Crate = int((w0 >> 8) & 0xf)
	headerLength := (w0 >> 12) & 0x1f
	eventLength := (w0 >> 17) & 0x3fff
	if headerLength < ddasBaseHeaderWords || eventLength < headerLength || eventLength > nWords {
		return channel, malformed("DDAS header length %d, event length %d, payload words %d",
			headerLength, eventLength, nWords)
	}
	hasSums, hasQDC, hasExt, ok := ddasOptionalWords(headerLength - ddasBaseHeaderWords)
	if !ok {
		return channel, malformed("DDAS header length %d", headerLength)
	}

	w2 := word(2)
	channel.Clock = uint64(word(1)) | uint64(w2&0xffff)<<32
	channel.CFDTime = uint16((w2 >> 16) & 0x7fff)
	channel.CFDFail = w2>>31 == 1

	w3 := word(3)
	channel.Energy = uint16(w3 & 0xffff)
	traceLength := (w3 >> 16) & 0x7fff
	channel.OutOfRange = w3>>31 == 1

	position := uint32(ddasBaseHeaderWords)
	if hasSums {
		channel.EnergySums = make([]uint32, ddasEnergySumWords)
		for i := range channel.EnergySums {
			channel.EnergySums[i] = word(position)
			position++
		}
	}
	if hasQDC {
		channel.QDCSums = make([]uint32, ddasQDCSumWords)
		for i := range channel.QDCSums {
			channel.QDCSums[i] = word(position)
			position++
		}
	}
	if hasExt {
		channel.HasExtTS = true
		channel.ExtTimestamp = uint64(word(position)) | uint64(word(position+1)&0xffff)<<32
		position += ddasExtTSWords
	}

	traceWords := eventLength - headerLength
	if traceLength > 2*traceWords {
		return channel, malformed("DDAS trace of %d samples in %d words", traceLength, traceWords)
	}
	if traceLength > 0 {
		channel.Trace = make([]uint16, traceLength)
		for i := uint32(0); i < traceLength; i++ {
			w := word(headerLength + i/2)
			if i%2 == 0 {
				channel.Trace[i] = uint16(w & 0xffff)
			} else {
				channel.Trace[i] = uint16(w >> 16)
			}
		}
	}
	return channel, nil
}

// EncodeDDAS builds the Pixie-16 record for channel.
func EncodeDDAS(channel DDASChannel) []byte {
	headerLength := uint32(ddasBaseHeaderWords)
	if len(channel.EnergySums) > 0 {
		headerLength += ddasEnergySumWords
	}
	if len(channel.QDCSums) > 0 {
		headerLength += ddasQDCSumWords
	}
	if channel.HasExtTS {
		headerLength += ddasExtTSWords
	}
	traceWords := uint32(len(channel.Trace)+1) / 2
	eventLength := headerLength + traceWords

	words := make([]uint32, 0, eventLength)
	w0 := uint32(channel.Channel&0xf) | uint32(channel.Slot&0xf)<<4 | uint32(channel.Crate&0xf)<<8 |
		(headerLength&0x1f)<<12 | (eventLength&0x3fff)<<17
	w2 := uint32(channel.Clock>>32)&0xffff | uint32(channel.CFDTime&0x7fff)<<16
	if channel.CFDFail {
		w2 |= 1 << 31
	}
	w3 := uint32(channel.Energy) | (uint32(len(channel.Trace))&0x7fff)<<16
	if channel.OutOfRange {
		w3 |= 1 << 31
	}
	words = append(words, w0, uint32(channel.Clock), w2, w3)
	if len(channel.EnergySums) > 0 {
		sums := make([]uint32, ddasEnergySumWords)
		copy(sums, channel.EnergySums)
		words = append(words, sums...)
	}
	if len(channel.QDCSums) > 0 {
		sums := make([]uint32, ddasQDCSumWords)
		copy(sums, channel.QDCSums)
		words = append(words, sums...)
	}
	if channel.HasExtTS {
		words = append(words, uint32(channel.ExtTimestamp), uint32(channel.ExtTimestamp>>32)&0xffff)
	}
	for i := 0; i < len(channel.Trace); i += 2 {
		w := uint32(channel.Trace[i])
		if i+1 < len(channel.Trace) {
			w |= uint32(channel.Trace[i+1]) << 16
		}
		words = append(words, w)
	}

	buffer := new(bytes.Buffer)
	binary.Write(buffer, binary.LittleEndian, words)
	return buffer.Bytes()
}
