package evtbuilder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resolved(timestamp uint64, charge uint32, channel Channel) ResolvedFragment {
	return ResolvedFragment{
		Fragment: Fragment{Timestamp: timestamp, Charge: charge, Address: channel.Address},
		Channel:  channel,
	}
}

func lendaChannel(group string, bar int) Channel {
	return Channel{System: SystemLenda, Subsystem: group, ArrayPosition: bar}
}

func TestLendaBuilder(t *testing.T) {
	useConfiguration(t, DefaultConfiguration())
	builder := NewLendaBuilder(nil, LendaParams{TDiff: 50, ChargeThresh: 100})
	fragments := []ResolvedFragment{
		resolved(1000, 500, lendaChannel(LendaTop, 3)),
		resolved(1020, 450, lendaChannel(LendaBottom, 3)),
		resolved(1000, 600, lendaChannel(LendaTop, 4)),
		// outside the window
		resolved(1100, 600, lendaChannel(LendaBottom, 4)),
		// below threshold
		resolved(1000, 50, lendaChannel(LendaTop, 5)),
		resolved(1000, 500, lendaChannel(LendaBottom, 5)),
		resolved(990, 800, lendaChannel(LendaReference, 0)),
		resolved(900, 800, lendaChannel("LEX", 0)),
	}

	lenda, ok := builder.Build(fragments).(*Lenda)
	require.True(t, ok)

	assert.Len(t, lenda.Top, 3)
	assert.Len(t, lenda.Bottom, 3)
	assert.Len(t, lenda.Reference, 1)
	assert.Equal(t, 7, lenda.Size())
	assert.Equal(t, uint64(990), lenda.Timestamp())
	require.Len(t, lenda.Bars, 1)
	assert.Equal(t, 3, lenda.Bars[0].Bar())
	assert.InDelta(t, 450, lenda.Bars[0].Bottom.Charge, 1e-9)
}

func TestMatchLendaBarsUsesBottomOnce(t *testing.T) {
	top := []LendaHit{{Bar: 1, Timestamp: 100, Charge: 10}, {Bar: 1, Timestamp: 105, Charge: 20}}
	bottom := []LendaHit{{Bar: 1, Timestamp: 102, Charge: 15}}

	bars := MatchLendaBars(top, bottom, DefaultLendaParams())

	require.Len(t, bars, 1)
	assert.InDelta(t, 10, bars[0].Top.Charge, 1e-9)
}

func segaChannel(detector, segment int) Channel {
	return Channel{System: SystemSega, Subsystem: "SEGA", ArrayPosition: detector, Segment: segment}
}

func TestSegaBuilder(t *testing.T) {
	builder := NewSegaBuilder(nil, 100)
	fragments := []ResolvedFragment{
		resolved(1010, 40, segaChannel(2, 5)),
		resolved(1000, 1000, segaChannel(2, 0)),
		resolved(1020, 700, segaChannel(2, 6)),
		resolved(5000, 300, segaChannel(7, 0)),
		// a second core of detector 7 starts a new hit
		resolved(9000, 200, segaChannel(7, 0)),
	}

	sega, ok := builder.Build(fragments).(*Sega)
	require.True(t, ok)

	require.Len(t, sega.Hits, 3)
	first := sega.Hits[0]
	assert.Equal(t, 2, first.Detector)
	assert.True(t, first.HasCore)
	assert.Equal(t, uint64(1000), first.Timestamp)
	assert.InDelta(t, 1000, first.Energy, 1e-9)
	assert.Len(t, first.Segments, 2)
	assert.Equal(t, 6, first.MainSegment())

	assert.Equal(t, 7, sega.Hits[1].Detector)
	assert.Empty(t, sega.Hits[1].Segments)
	assert.Equal(t, uint64(9000), sega.Hits[2].Timestamp)
	assert.Equal(t, uint64(1000), sega.Timestamp())
	assert.Equal(t, 3, sega.Size())
}

func TestSingleChannelBuilder(t *testing.T) {
	calibration, err := NewChannelMap(nil, []CalibrationEntry{{Source: "SUN", Crate: 0, Slot: 2, Channel: 1, EnergyGain: 2}})
	require.NoError(t, err)
	channel := Channel{Address: MakeAddress(SystemSun, 0, 2, 1), System: SystemSun, ArrayPosition: 1}

	sun, ok := NewSingleChannelBuilder(SystemSun, calibration).Build([]ResolvedFragment{
		resolved(20, 100, channel),
		resolved(10, 50, Channel{System: SystemSun, ArrayPosition: 2}),
	}).(*Sun)
	require.True(t, ok)
	assert.InDelta(t, 250, sun.Sum(), 1e-9)
	assert.Equal(t, uint64(10), sun.Timestamp())

	ddas, ok := NewSingleChannelBuilder(SystemCaesar, nil).Build([]ResolvedFragment{resolved(1, 5, Channel{})}).(*DDASDetector)
	require.True(t, ok)
	assert.Equal(t, SystemCaesar, ddas.System())
	assert.Equal(t, 1, ddas.Size())
}

func TestGretinaBuilder(t *testing.T) {
	useConfiguration(t, DefaultConfiguration())
	decoder := newTestDecoder(t)
	good, _, err := decoder.Decode(gretinaFragment(1000, 22, 662))
	require.NoError(t, err)
	failedPayload := GretinaPayload{CrystalID: 23, TotE: 100, Pad: 4}
	failed, _, err := decoder.Decode(EncodeFragment(FragmentHeader{SourceID: 1, Timestamp: 900}, EncodeGretinaPayload(failedPayload)))
	require.NoError(t, err)

	builder := NewGretinaBuilder(nil, nil, defaultAddback)
	gretina, ok := builder.Build([]ResolvedFragment{{Fragment: good}, {Fragment: failed}, {Fragment: Fragment{}}}).(*Gretina)
	require.True(t, ok)

	require.Len(t, gretina.Hits, 1)
	hit := gretina.Hits[0]
	assert.Equal(t, 5, hit.Hole())
	assert.Equal(t, 2, hit.Crystal())
	assert.InDelta(t, 662, hit.Energy, 1e-3)
	assert.Len(t, hit.Points, 1)
	position, ok := hit.FirstInteraction()
	require.True(t, ok)
	assert.InDelta(t, 3, position.Z, 1e-9)
	assert.Equal(t, uint64(1000), gretina.Timestamp())
	assert.Len(t, gretina.Addback(), 1)
}

func TestSegaBuilderUsesCFDTime(t *testing.T) {
	core := resolved(1000, 1000, segaChannel(2, 0))
	core.Source = SystemSega
	core.CFDTime = 1 << 13
	segment := resolved(1010, 500, segaChannel(2, 3))
	segment.Source = SystemSega
	segment.CFDTime = 1 << 14
	segment.CFDFail = true

	sega, ok := NewSegaBuilder(nil, 100).Build([]ResolvedFragment{core, segment}).(*Sega)
	require.True(t, ok)

	require.Len(t, sega.Hits, 1)
	assert.InDelta(t, 1002.5, sega.Hits[0].Time, 1e-9)
	require.Len(t, sega.Hits[0].Segments, 1)
	assert.InDelta(t, 1010, sega.Hits[0].Segments[0].Time, 1e-9)
}
