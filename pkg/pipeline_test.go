package evtbuilder

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func feed(batches []RawBatch) <-chan RawBatch {
	in := make(chan RawBatch)
	go func() {
		defer close(in)
		for _, batch := range batches {
			in <- batch
		}
	}()
	return in
}

func collect(out <-chan *AssembledEvent) <-chan []*AssembledEvent {
	done := make(chan []*AssembledEvent, 1)
	go func() {
		events := make([]*AssembledEvent, 0)
		for event := range out {
			events = append(events, event)
		}
		done <- events
	}()
	return done
}

func TestPipelinePreservesOrder(t *testing.T) {
	useRecordingLogger(t)
	useConfiguration(t, DefaultConfiguration())
	metrics := NewMetrics(prometheus.NewRegistry())
	router := newTestRouter(t, metrics, nil)

	batches := make([]RawBatch, 0, 100)
	for i := 0; i < 100; i++ {
		batch := RawBatch{Number: uint64(i)}
		// every tenth trigger only has an unmapped channel
		if i%10 == 0 {
			batch.Data = ddasFragment(70, uint64(i), DDASChannel{Slot: 9, Energy: 10})
		} else {
			batch.Data = sunFragment(uint64(1000+i), i%8, uint16(i))
		}
		batches = append(batches, batch)
	}

	pipeline := NewPipeline(router, 4, 2, metrics)
	assert.Equal(t, StateIdle, pipeline.State())
	out := make(chan *AssembledEvent)
	events := collect(out)

	require.NoError(t, pipeline.Run(context.Background(), feed(batches), out))

	result := <-events
	require.Len(t, result, 90)
	previous := -1
	for _, event := range result {
		assert.Greater(t, int(event.Number), previous)
		assert.NotZero(t, event.Number%10)
		assert.InDelta(t, float64(event.Number), event.Sun().Sum(), 1e-9)
		previous = int(event.Number)
	}
	assert.Equal(t, StateFinished, pipeline.State())
	assert.Equal(t, "Finished", pipeline.State().String())
	assert.InDelta(t, 90, testutil.ToFloat64(metrics.EventsAssembled), 1e-9)
	assert.InDelta(t, 10, testutil.ToFloat64(metrics.EventsEmpty), 1e-9)
}

func TestPipelineEmptyInput(t *testing.T) {
	pipeline := NewPipeline(newTestRouter(t, nil, nil), 2, 1, nil)
	out := make(chan *AssembledEvent)
	events := collect(out)

	require.NoError(t, pipeline.Run(context.Background(), feed(nil), out))

	assert.Empty(t, <-events)
	assert.Equal(t, StateFinished, pipeline.State())
}

func TestPipelineRecoversFromPanic(t *testing.T) {
	recorder := useRecordingLogger(t)
	metrics := NewMetrics(prometheus.NewRegistry())
	// routing through a nil router panics inside the worker
	pipeline := NewPipeline(nil, 1, 1, metrics)
	out := make(chan *AssembledEvent)
	events := collect(out)

	batches := []RawBatch{{Number: 1, Data: sunFragment(1000, 1, 10)}}
	require.NoError(t, pipeline.Run(context.Background(), feed(batches), out))

	assert.Empty(t, <-events)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.EventsFailed), 1e-9)
	assert.Equal(t, 1, recorder.errorCount())
}

func TestPipelineCancel(t *testing.T) {
	pipeline := NewPipeline(newTestRouter(t, nil, nil), 2, 1, nil)
	ctx, cancel := context.WithCancel(context.Background())
	in := make(chan RawBatch)
	out := make(chan *AssembledEvent)
	events := collect(out)

	errs := make(chan error, 1)
	go func() {
		errs <- pipeline.Run(ctx, in, out)
	}()
	cancel()

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("pipeline did not stop after cancel")
	}
	assert.Empty(t, <-events)
	assert.Equal(t, StateFinished, pipeline.State())
}

func TestPipelineStateTransitions(t *testing.T) {
	useRecordingLogger(t)
	pipeline := NewPipeline(newTestRouter(t, nil, nil), 1, 1, nil)
	in := make(chan RawBatch)
	out := make(chan *AssembledEvent)
	errs := make(chan error, 1)
	go func() {
		errs <- pipeline.Run(context.Background(), in, out)
	}()

	inState := func(state PipelineState) func() bool {
		return func() bool {
			return pipeline.State() == state
		}
	}

	for i := 0; i < 3; i++ {
		in <- RawBatch{Number: uint64(i), Data: sunFragment(uint64(1000+i), 1, 10)}
		// emission blocks on the unbuffered output while dispatching
		require.Eventually(t, inState(StateDispatching), 5*time.Second, time.Millisecond)
		event := <-out
		assert.Equal(t, uint64(i), event.Number)
		require.Eventually(t, inState(StateIdle), 5*time.Second, time.Millisecond)
	}

	close(in)
	require.NoError(t, <-errs)
	assert.Equal(t, StateFinished, pipeline.State())
}

func TestPipelineStateOnlyMovesForward(t *testing.T) {
	pipeline := NewPipeline(nil, 1, 1, nil)

	pipeline.accumulate()
	assert.Equal(t, StateAccumulating, pipeline.State())
	pipeline.beginDispatch()
	assert.Equal(t, StateDispatching, pipeline.State())
	// a batch received while dispatching does not rewind the state
	pipeline.accumulate()
	assert.Equal(t, StateDispatching, pipeline.State())
	pipeline.endDispatch()
	assert.Equal(t, StateIdle, pipeline.State())
	// emitting from Idle passes through Accumulating first
	pipeline.beginDispatch()
	assert.Equal(t, StateDispatching, pipeline.State())
}
