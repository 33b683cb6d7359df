package evtbuilder

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDecoder(t *testing.T) *FragmentDecoder {
	t.Helper()
	decoder, err := NewFragmentDecoder(testSources())
	require.NoError(t, err)
	return decoder
}

func TestDDASRoundTrip(t *testing.T) {
	channels := []DDASChannel{
		{Crate: 1, Slot: 2, Channel: 3, Clock: 0x1234_5678_9abc, Energy: 4321, CFDTime: 77},
		{Crate: 15, Slot: 15, Channel: 15, Clock: 1, Energy: 65535, CFDFail: true, OutOfRange: true,
			EnergySums: []uint32{1, 2, 3, 4}},
		{Crate: 0, Slot: 5, Channel: 9, Clock: 99, Energy: 10,
			QDCSums: []uint32{1, 2, 3, 4, 5, 6, 7, 8}, HasExtTS: true, ExtTimestamp: 0xabcd_0000_0001},
		{Crate: 2, Slot: 3, Channel: 4, Clock: 5, Energy: 6,
			EnergySums: []uint32{9, 9, 9, 9}, QDCSums: []uint32{1, 2, 3, 4, 5, 6, 7, 8},
			HasExtTS: true, ExtTimestamp: 42, Trace: []uint16{100, 200, 300}},
	}
	for _, channel := range channels {
		decoded, err := DecodeDDAS(EncodeDDAS(channel))
		require.NoError(t, err)
		assert.Equal(t, channel, decoded)
	}
}

func TestDecodeDDASMalformed(t *testing.T) {
	payload := EncodeDDAS(DDASChannel{Crate: 1, Slot: 2, Channel: 3, Trace: []uint16{1, 2, 3, 4}})

	tests := map[string][]byte{
		"empty":       nil,
		"short":       payload[:12],
		"unaligned":   payload[:17],
		"truncated":   payload[:len(payload)-4],
		"header size": func() []byte {
			broken := append([]byte(nil), payload...)
			// header length 5 is not a valid combination of optional words
			broken[1] = (broken[1] & 0x0f) | 5<<4
			return broken
		}(),
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeDDAS(data)
			assert.ErrorIs(t, err, ErrMalformedFragment)
		})
	}
}

func TestDecodeDDASFragment(t *testing.T) {
	decoder := newTestDecoder(t)
	data := ddasFragment(65, 123456, DDASChannel{Crate: 1, Slot: 2, Channel: 3, Clock: 777, Energy: 900, CFDTime: 12})

	fragment, n, err := decoder.Decode(data)

	require.NoError(t, err)
	assert.Equal(t, len(data), n)
	assert.Equal(t, SystemJanus, fragment.Source)
	assert.Equal(t, uint64(123456), fragment.Timestamp)
	assert.Equal(t, uint32(900), fragment.Charge)
	assert.Equal(t, uint16(12), fragment.CFDTime)
	assert.Equal(t, uint64(777), fragment.Clock)
	assert.Equal(t, MakeAddress(SystemJanus, 1, 2, 3), fragment.Address)
	assert.Equal(t, 1, fragment.Crate)
	assert.Equal(t, 2, fragment.Slot)
	assert.Equal(t, 3, fragment.Channel)
}

func TestDecodeGretinaFragment(t *testing.T) {
	decoder := newTestDecoder(t)
	data := gretinaFragment(5000, 22, 1332.5)

	fragment, n, err := decoder.Decode(data)

	require.NoError(t, err)
	assert.Equal(t, fragmentHeaderSize+gretinaPayloadSize, n)
	require.NotNil(t, fragment.Gretina)
	assert.Equal(t, SystemGretina, fragment.Source)
	assert.Equal(t, 5, fragment.Crate)
	assert.Equal(t, 2, fragment.Slot)
	assert.Equal(t, gretinaCoreChannel, fragment.Channel)
	assert.Equal(t, float32(1332.5), fragment.Gretina.TotE)
	assert.Equal(t, 5, fragment.Gretina.Hole())
	assert.Equal(t, 2, fragment.Gretina.Crystal())
}

func TestDecodeGretinaBadCrystal(t *testing.T) {
	decoder := newTestDecoder(t)
	payload := EncodeGretinaPayload(GretinaPayload{CrystalID: NumCrystals})
	data := EncodeFragment(FragmentHeader{SourceID: 1}, payload)

	_, n, err := decoder.Decode(data)

	assert.ErrorIs(t, err, ErrMalformedFragment)
	assert.Equal(t, len(data), n, "the fragment can still be skipped")
}

func TestDecodeFraming(t *testing.T) {
	decoder := newTestDecoder(t)
	data := ddasFragment(70, 1, DDASChannel{Energy: 1})

	_, n, err := decoder.Decode(data[:10])
	assert.ErrorIs(t, err, ErrMalformedFragment)
	assert.Zero(t, n)

	_, n, err = decoder.Decode(data[:len(data)-1])
	assert.ErrorIs(t, err, ErrMalformedFragment)
	assert.Zero(t, n)
}

func TestDecodeUnknownSource(t *testing.T) {
	decoder := newTestDecoder(t)
	data := ddasFragment(99, 1, DDASChannel{Energy: 1})

	fragment, n, err := decoder.Decode(data)

	assert.ErrorIs(t, err, ErrUnknownSource)
	assert.Equal(t, len(data), n)
	assert.Equal(t, uint32(99), fragment.SourceID)
}

func TestNewFragmentDecoderRejectsUnknownSystem(t *testing.T) {
	_, err := NewFragmentDecoder([]SourceConfig{{SourceID: 1, System: "PLASTIC"}})
	assert.Error(t, err)
}

func TestDecodeAll(t *testing.T) {
	decoder := newTestDecoder(t)
	data := append([]byte(nil), ddasFragment(70, 10, DDASChannel{Energy: 1})...)
	data = append(data, ddasFragment(99, 20, DDASChannel{Energy: 2})...)
	data = append(data, gretinaFragment(30, 4, 100)...)

	var skipped []error
	fragments, err := decoder.DecodeAll(data, func(fragment Fragment, err error) {
		skipped = append(skipped, err)
	})

	require.NoError(t, err)
	require.Len(t, fragments, 2)
	assert.Equal(t, uint64(10), fragments[0].Timestamp)
	assert.Equal(t, uint64(30), fragments[1].Timestamp)
	require.Len(t, skipped, 1)
	assert.True(t, errors.Is(skipped[0], ErrUnknownSource))

	// trailing garbage stops decoding but keeps what was read
	fragments, err = decoder.DecodeAll(append(data, 1, 2, 3), nil)
	assert.ErrorIs(t, err, ErrMalformedFragment)
	assert.Len(t, fragments, 2)
}

func TestSystemTags(t *testing.T) {
	tag, err := ParseSystemTag("janus")
	require.NoError(t, err)
	assert.Equal(t, SystemJanus, tag)

	tag, err = ParseSystemTag("70")
	require.NoError(t, err)
	assert.Equal(t, SystemSun, tag)

	_, err = ParseSystemTag("3")
	assert.Error(t, err)

	assert.Equal(t, "Unknown", SystemTag(3).String())
	assert.True(t, SystemSega.UsesDDAS())
	assert.False(t, SystemGretina.UsesDDAS())

	system, crate, slot, channel := SplitAddress(MakeAddress(SystemLenda, 1, 12, 15))
	assert.Equal(t, SystemLenda, system)
	assert.Equal(t, []int{1, 12, 15}, []int{crate, slot, channel})
}

func TestFragmentTime(t *testing.T) {
	fragment := Fragment{Source: SystemSega, Timestamp: 1000, CFDTime: 1 << 14}
	assert.InDelta(t, 1005, fragment.Time(), 1e-9)

	fragment.CFDFail = true
	assert.InDelta(t, 1000, fragment.Time(), 1e-9)

	gretina := Fragment{Source: SystemGretina, Timestamp: 1000, CFDTime: 1 << 14}
	assert.InDelta(t, 1000, gretina.Time(), 1e-9)
}
