package evtbuilder

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// PipelineState follows Idle -> Accumulating -> Dispatching -> Idle and
// ends in Finished. The reception stage only moves Idle to Accumulating,
// the emission stage owns every other transition, so an observer never sees
// the states out of order.
type PipelineState int32

const (
	StateIdle PipelineState = iota
	StateAccumulating
	StateDispatching
	StateFinished
)

func (s PipelineState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateAccumulating:
		return "Accumulating"
	case StateDispatching:
		return "Dispatching"
	case StateFinished:
		return "Finished"
	default:
		return "Unknown"
	}
}

// RawBatch is the raw data of one trigger as produced by the reader.
type RawBatch struct {
	Number uint64
	Data   []byte
}

type sequencedBatch struct {
	seq   uint64
	batch RawBatch
}

type sequencedEvent struct {
	seq   uint64
	event *AssembledEvent
}

// Pipeline turns a stream of raw batches into assembled events. Batches are
// routed by a pool of workers and re-sequenced, so events leave in the
// order their batches arrived.
type Pipeline struct {
	router    *FragmentRouter
	workers   int
	queueSize int
	metrics   *Metrics
	state     atomic.Int32
}

func NewPipeline(router *FragmentRouter, workers int, queueSize int, metrics *Metrics) *Pipeline {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Pipeline{
		router:    router,
		workers:   workers,
		queueSize: queueSize,
		metrics:   metrics,
	}
}

func (p *Pipeline) State() PipelineState {
	return PipelineState(p.state.Load())
}

func (p *Pipeline) setState(state PipelineState) {
	p.state.Store(int32(state))
}

// accumulate marks that a batch was received. It only leaves Idle.
func (p *Pipeline) accumulate() {
	p.state.CompareAndSwap(int32(StateIdle), int32(StateAccumulating))
}

// beginDispatch is called by the emission stage before an event is sent.
// Only that stage leaves Accumulating, so the store cannot overwrite a
// newer state.
func (p *Pipeline) beginDispatch() {
	p.accumulate()
	p.setState(StateDispatching)
}

func (p *Pipeline) endDispatch() {
	p.setState(StateIdle)
}

// Run reads batches from in until it is closed, then drains the workers and
// closes out. Events without any detector hits are not emitted. Run returns
// early with the context error if ctx is cancelled.
func (p *Pipeline) Run(ctx context.Context, in <-chan RawBatch, out chan<- *AssembledEvent) error {
	defer close(out)
	p.setState(StateIdle)

	group, ctx := errgroup.WithContext(ctx)
	jobs := make(chan sequencedBatch, p.queueSize)
	results := make(chan sequencedEvent, p.queueSize)

	group.Go(func() error {
		defer close(jobs)
		return p.dispatch(ctx, in, jobs)
	})

	var workers sync.WaitGroup
	for id := 0; id < p.workers; id++ {
		workers.Add(1)
		group.Go(func() error {
			defer workers.Done()
			return p.worker(ctx, id, jobs, results)
		})
	}
	group.Go(func() error {
		workers.Wait()
		close(results)
		return nil
	})

	group.Go(func() error {
		return p.emit(ctx, results, out)
	})

	err := group.Wait()
	p.setState(StateFinished)
	if configuration.Verbosity > 0 {
		logger.Info("Pipeline finished", "pipeline")
	}
	return err
}

func (p *Pipeline) dispatch(ctx context.Context, in <-chan RawBatch, jobs chan<- sequencedBatch) error {
	var seq uint64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case batch, ok := <-in:
			if !ok {
				return nil
			}
			p.accumulate()
			select {
			case jobs <- sequencedBatch{seq: seq, batch: batch}:
			case <-ctx.Done():
				return ctx.Err()
			}
			seq++
		}
	}
}

func (p *Pipeline) worker(ctx context.Context, id int, jobs <-chan sequencedBatch, results chan<- sequencedEvent) error {
	for job := range jobs {
		if configuration.Verbosity > 2 {
			message := fmt.Sprintf("Worker %d processing event %d", id, job.batch.Number)
			logger.Info(message, "pipeline")
		}
		event := p.process(id, job.batch)
		select {
		case results <- sequencedEvent{seq: job.seq, event: event}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// process returns nil when the event has to be discarded.
func (p *Pipeline) process(id int, batch RawBatch) (event *AssembledEvent) {
	defer func() {
		if r := recover(); r != nil {
			errMessage := fmt.Errorf("worker %d recovered from panic on event %d: %v", id, batch.Number, r)
			logger.Error(errMessage.Error())
			p.metrics.EventsFailed.Inc()
			event = nil
		}
	}()

	event, err := p.router.RouteRaw(batch.Number, batch.Data)
	if err != nil {
		// the systems that were built are still delivered
		logger.Error(fmt.Sprintf("incomplete event %d: %v", batch.Number, err))
		p.metrics.EventsFailed.Inc()
	}
	return event
}

// emit forwards results in sequence order.
func (p *Pipeline) emit(ctx context.Context, results <-chan sequencedEvent, out chan<- *AssembledEvent) error {
	pending := make(map[uint64]*AssembledEvent)
	var next uint64
	for result := range results {
		pending[result.seq] = result.event
		for {
			event, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			next++
			if event == nil {
				continue
			}
			if !event.HasDetectors() {
				p.metrics.EventsEmpty.Inc()
				continue
			}
			p.beginDispatch()
			select {
			case out <- event:
				p.metrics.EventsAssembled.Inc()
			case <-ctx.Done():
				return ctx.Err()
			}
			p.endDispatch()
		}
	}
	return nil
}
