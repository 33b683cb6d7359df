package evtbuilder

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testChannelMap(t *testing.T) *ChannelMap {
	t.Helper()
	entries := []ChannelMappingEntry{
		{Source: "JANUS", Crate: 1, Slot: 2, Channel: 0, ArrayPosition: 1, Segment: 3, Subposition: "F"},
		{Source: "JANUS", Crate: 1, Slot: 3, Channel: 0, ArrayPosition: 1, Segment: 10, Subposition: "B"},
	}
	for channel := 0; channel < 8; channel++ {
		entries = append(entries, ChannelMappingEntry{Source: "SUN", Crate: 0, Slot: 2, Channel: channel, ArrayPosition: channel})
	}
	channelMap, err := NewChannelMap(entries, nil)
	require.NoError(t, err)
	return channelMap
}

func newTestRouter(t *testing.T, metrics *Metrics, assembler *EventAssembler) *FragmentRouter {
	t.Helper()
	channelMap := testChannelMap(t)
	if assembler == nil {
		assembler = NewDefaultAssembler(DefaultConfiguration(), channelMap, nil, metrics)
	}
	return NewFragmentRouter(newTestDecoder(t), channelMap, assembler, metrics, 2)
}

func sunFragment(timestamp uint64, channel int, energy uint16) []byte {
	return ddasFragment(70, timestamp, DDASChannel{Slot: 2, Channel: channel, Energy: energy})
}

func concat(parts ...[]byte) []byte {
	data := make([]byte, 0)
	for _, part := range parts {
		data = append(data, part...)
	}
	return data
}

func TestRouteRaw(t *testing.T) {
	useRecordingLogger(t)
	useConfiguration(t, DefaultConfiguration())
	metrics := NewMetrics(prometheus.NewRegistry())
	router := newTestRouter(t, metrics, nil)

	data := concat(
		sunFragment(1010, 1, 300),
		ddasFragment(65, 1005, DDASChannel{Crate: 1, Slot: 2, Energy: 5000}),
		ddasFragment(65, 1020, DDASChannel{Crate: 1, Slot: 3, Energy: 4800}),
		gretinaFragment(1000, 22, 662),
		// unmapped SUN channel
		ddasFragment(70, 1030, DDASChannel{Slot: 9, Channel: 1, Energy: 10}),
		// unknown source
		ddasFragment(99, 1040, DDASChannel{Energy: 10}),
		// broken DDAS payload
		EncodeFragment(FragmentHeader{SourceID: 70, Timestamp: 1050}, []byte{1, 2, 3, 4}),
	)

	event, err := router.RouteRaw(7, data)

	require.NoError(t, err)
	assert.Equal(t, uint64(7), event.Number)
	assert.Equal(t, uint64(1000), event.Timestamp)
	assert.Equal(t, 7, event.Fragments)
	assert.Equal(t, 3, event.Dropped)

	require.NotNil(t, event.Sun())
	assert.InDelta(t, 300, event.Sun().Sum(), 1e-9)
	require.NotNil(t, event.Janus())
	require.Len(t, event.Janus().Hits, 1)
	assert.Equal(t, 3, event.Janus().Hits[0].Ring)
	assert.Equal(t, 10, event.Janus().Hits[0].Sector)
	require.NotNil(t, event.Gretina())
	require.Len(t, event.Gretina().Hits, 1)
	assert.Equal(t, 22, event.Gretina().Hits[0].CrystalID)
	assert.Nil(t, event.Lenda())
	assert.True(t, event.HasDetectors())

	assert.InDelta(t, 5, testutil.ToFloat64(metrics.FragmentsDecoded), 1e-9)
	assert.InDelta(t, 2, testutil.ToFloat64(metrics.FragmentsMalformed), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.FragmentsUnresolved.WithLabelValues("SUN")), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.HitsBuilt.WithLabelValues("JANUS")), 1e-9)
}

func TestRouteRawBrokenFraming(t *testing.T) {
	useRecordingLogger(t)
	router := newTestRouter(t, nil, nil)
	data := concat(sunFragment(1000, 1, 300), []byte{1, 2, 3})

	event, err := router.RouteRaw(1, data)

	require.NoError(t, err)
	assert.Equal(t, 1, event.Dropped)
	assert.Equal(t, 1, event.Sun().Size())
}

func TestRouteUnknownChannelDiagnosticsAreBounded(t *testing.T) {
	recorder := useRecordingLogger(t)
	metrics := NewMetrics(prometheus.NewRegistry())
	router := newTestRouter(t, metrics, nil)

	for i := 0; i < 5; i++ {
		data := ddasFragment(70, 1000, DDASChannel{Slot: 9, Channel: i, Energy: 10})
		event, err := router.RouteRaw(uint64(i), data)
		require.NoError(t, err)
		assert.Equal(t, 1, event.Dropped)
		assert.False(t, event.HasDetectors())
	}

	assert.Equal(t, 2, recorder.errorCount())
	assert.InDelta(t, 5, testutil.ToFloat64(metrics.FragmentsUnresolved.WithLabelValues("SUN")), 1e-9)
}

func TestRouteWithoutBuilder(t *testing.T) {
	useRecordingLogger(t)
	assembler := NewEventAssembler(false, nil, NewSingleChannelBuilder(SystemSun, nil))
	router := newTestRouter(t, nil, assembler)

	data := concat(
		sunFragment(1000, 1, 300),
		ddasFragment(65, 1000, DDASChannel{Crate: 1, Slot: 2, Energy: 5000}),
	)
	event, err := router.RouteRaw(1, data)

	require.NoError(t, err)
	assert.Equal(t, 1, event.Dropped)
	assert.Nil(t, event.Janus())
	assert.Equal(t, 1, event.Sun().Size())
}

type panickingBuilder struct{}

func (panickingBuilder) System() SystemTag {
	return SystemCaesar
}

func (panickingBuilder) Build([]ResolvedFragment) Detector {
	panic("corrupted trace")
}

func TestAssembleKeepsSystemsWhenABuilderFails(t *testing.T) {
	for _, parallel := range []bool{false, true} {
		assembler := NewEventAssembler(parallel, nil, NewSingleChannelBuilder(SystemSun, nil), panickingBuilder{})
		event := NewAssembledEvent(1)
		partitions := map[SystemTag][]ResolvedFragment{
			SystemSun:    {{Fragment: Fragment{Charge: 10, Timestamp: 5}}},
			SystemCaesar: {{Fragment: Fragment{Charge: 20, Timestamp: 6}}},
		}

		unhandled, err := assembler.Assemble(event, partitions)

		assert.ErrorContains(t, err, "corrupted trace")
		assert.Empty(t, unhandled)
		require.Contains(t, event.Detectors, SystemSun)
		assert.NotContains(t, event.Detectors, SystemCaesar)
		assert.Equal(t, uint64(5), event.Sun().Timestamp())
	}
}

func TestAssembleParallelMatchesSequential(t *testing.T) {
	useConfiguration(t, DefaultConfiguration())
	channelMap := testChannelMap(t)
	decoder := newTestDecoder(t)
	data := concat(
		sunFragment(1010, 1, 300),
		sunFragment(1011, 2, 400),
		ddasFragment(65, 1005, DDASChannel{Crate: 1, Slot: 2, Energy: 5000}),
		ddasFragment(65, 1020, DDASChannel{Crate: 1, Slot: 3, Energy: 4800}),
		gretinaFragment(1000, 22, 662),
	)

	config := DefaultConfiguration()
	sequential := NewFragmentRouter(decoder, channelMap, NewDefaultAssembler(config, channelMap, nil, nil), nil, 1)
	config.Parallel = true
	parallel := NewFragmentRouter(decoder, channelMap, NewDefaultAssembler(config, channelMap, nil, nil), nil, 1)

	expected, err := sequential.RouteRaw(3, data)
	require.NoError(t, err)
	actual, err := parallel.RouteRaw(3, data)
	require.NoError(t, err)

	assert.Equal(t, expected.Sun(), actual.Sun())
	assert.Equal(t, expected.Janus(), actual.Janus())
	assert.Equal(t, expected.Gretina().Hits, actual.Gretina().Hits)
	assert.Equal(t, expected.Dropped, actual.Dropped)
}

func TestDefaultAssemblerBuilders(t *testing.T) {
	assembler := NewDefaultAssembler(DefaultConfiguration(), nil, nil, nil)
	for _, tag := range []SystemTag{SystemGretina, SystemJanus, SystemLenda, SystemSega, SystemSun, SystemDDAS, SystemJanusDDAS, SystemCaesar} {
		builder, ok := assembler.Builder(tag)
		require.True(t, ok, tag.String())
		assert.Equal(t, tag, builder.System())
	}
	_, ok := assembler.Builder(SystemS800)
	assert.False(t, ok)
}
