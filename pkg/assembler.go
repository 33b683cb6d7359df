package evtbuilder

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
)

// EventAssembler owns one HitBuilder per detector system for the whole run
// and fills an AssembledEvent with their output.
type EventAssembler struct {
	builders map[SystemTag]HitBuilder
	parallel bool
	metrics  *Metrics
}

func NewEventAssembler(parallel bool, metrics *Metrics, builders ...HitBuilder) *EventAssembler {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	assembler := &EventAssembler{
		builders: make(map[SystemTag]HitBuilder, len(builders)),
		parallel: parallel,
		metrics:  metrics,
	}
	for _, builder := range builders {
		assembler.builders[builder.System()] = builder
	}
	return assembler
}

// NewDefaultAssembler creates the builders of every supported system from
// the configuration.
func NewDefaultAssembler(config Configuration, calibrator Calibrator, neighbors NeighborTable, metrics *Metrics) *EventAssembler {
	addback := AddbackParams{Depth: config.AddbackDepth, TimeGate: config.AddbackTimeGate}
	builders := []HitBuilder{
		NewGretinaBuilder(calibrator, neighbors, addback),
		NewJanusBuilder(calibrator, config.Janus),
		NewLendaBuilder(calibrator, config.Lenda),
		NewSegaBuilder(calibrator, config.SegaWindow),
		NewSingleChannelBuilder(SystemSun, calibrator),
		NewSingleChannelBuilder(SystemDDAS, calibrator),
		NewSingleChannelBuilder(SystemJanusDDAS, calibrator),
		NewSingleChannelBuilder(SystemCaesar, calibrator),
	}
	return NewEventAssembler(config.Parallel, metrics, builders...)
}

// Builder returns the builder registered for tag.
func (a *EventAssembler) Builder(tag SystemTag) (HitBuilder, bool) {
	builder, ok := a.builders[tag]
	return builder, ok
}

type buildResult struct {
	tag      SystemTag
	detector Detector
}

// build runs one builder, turning a panic into an error.
func (a *EventAssembler) build(builder HitBuilder, fragments []ResolvedFragment) (detector Detector, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v builder recovered from panic: %v", builder.System(), r)
		}
	}()
	return builder.Build(fragments), nil
}

// Assemble runs the builders of every system present in partitions and
// stores the resulting detectors in event. Partitions without a builder are
// returned so the caller can report them. With parallel enabled the
// builders of one event run concurrently; all of them finish before
// Assemble returns. A builder failure leaves its system out of the event
// and is reported in the returned error, the other systems are kept.
func (a *EventAssembler) Assemble(event *AssembledEvent, partitions map[SystemTag][]ResolvedFragment) ([]SystemTag, error) {
	start := time.Now()
	tags := make([]SystemTag, 0, len(partitions))
	for tag := range partitions {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool {
		return tags[i] < tags[j]
	})

	unhandled := make([]SystemTag, 0)
	jobs := make([]SystemTag, 0, len(tags))
	for _, tag := range tags {
		if _, ok := a.builders[tag]; ok {
			jobs = append(jobs, tag)
		} else {
			unhandled = append(unhandled, tag)
		}
	}

	results := make([]buildResult, len(jobs))
	errs := make([]error, len(jobs))
	var group errgroup.Group
	for i, tag := range jobs {
		run := func() error {
			results[i].tag = tag
			results[i].detector, errs[i] = a.build(a.builders[tag], partitions[tag])
			return nil
		}
		if a.parallel {
			group.Go(run)
		} else {
			run()
		}
	}
	group.Wait()

	for _, result := range results {
		if result.detector == nil {
			continue
		}
		event.Detectors[result.tag] = result.detector
		a.metrics.HitsBuilt.WithLabelValues(result.tag.String()).Add(float64(result.detector.Size()))
	}
	a.metrics.BuildDuration.Observe(time.Since(start).Seconds())
	return unhandled, errors.Join(errs...)
}
