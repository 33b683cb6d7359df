package evtbuilder

import (
	"errors"
	"fmt"

	"golang.org/x/time/rate"
)

// FragmentRouter resolves the fragments of a trigger, splits them per
// detector system and hands them to the assembler. Fragments that cannot
// be decoded or resolved are dropped; diagnostics about them are printed a
// bounded number of times per run.
type FragmentRouter struct {
	decoder   *FragmentDecoder
	channels  *ChannelMap
	assembler *EventAssembler
	metrics   *Metrics

	unknownChannels rate.Sometimes
	badFragments    rate.Sometimes
	noBuilder       rate.Sometimes
}

func NewFragmentRouter(decoder *FragmentDecoder, channels *ChannelMap, assembler *EventAssembler, metrics *Metrics, diagnosticLimit int) *FragmentRouter {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &FragmentRouter{
		decoder:         decoder,
		channels:        channels,
		assembler:       assembler,
		metrics:         metrics,
		unknownChannels: rate.Sometimes{First: diagnosticLimit},
		badFragments:    rate.Sometimes{First: diagnosticLimit},
		noBuilder:       rate.Sometimes{First: diagnosticLimit},
	}
}

// Route builds the event made of fragments.
func (r *FragmentRouter) Route(number uint64, fragments []Fragment) (*AssembledEvent, error) {
	event := NewAssembledEvent(number)
	event.Fragments = len(fragments)
	partitions := make(map[SystemTag][]ResolvedFragment)
	for _, fragment := range fragments {
		event.Timestamp = minTimestamp(event.Timestamp, fragment.Timestamp)
		channel, ok := r.channels.Resolve(fragment.Source, fragment.Crate, fragment.Slot, fragment.Channel)
		if !ok {
			event.Dropped++
			r.metrics.FragmentsUnresolved.WithLabelValues(fragment.Source.String()).Inc()
			r.unknownChannels.Do(func() {
				err := fmt.Errorf("%w: %v (crate, slot, channel) = (%d, %d, %d), address 0x%08x",
					ErrUnknownChannel, fragment.Source, fragment.Crate, fragment.Slot, fragment.Channel, fragment.Address)
				logger.Error(err.Error())
			})
			continue
		}
		partitions[channel.System] = append(partitions[channel.System], ResolvedFragment{Fragment: fragment, Channel: channel})
	}

	if configuration.Verbosity > 2 {
		message := fmt.Sprintf("Event %d: %d fragments, %d systems, %d dropped",
			number, len(fragments), len(partitions), event.Dropped)
		logger.Info(message, "router")
	}

	unhandled, err := r.assembler.Assemble(event, partitions)
	for _, tag := range unhandled {
		event.Dropped += len(partitions[tag])
		r.noBuilder.Do(func() {
			logger.Error(fmt.Sprintf("no hit builder for %v, dropping %d fragments", tag, len(partitions[tag])))
		})
	}
	if err != nil {
		return event, fmt.Errorf("event %d: %w", number, err)
	}
	return event, nil
}

// RouteRaw decodes a raw trigger batch and routes it. Fragments with a
// broken payload are skipped; when the framing itself is broken the rest of
// the batch is lost but the fragments before it are still used.
func (r *FragmentRouter) RouteRaw(number uint64, data []byte) (*AssembledEvent, error) {
	malformed := 0
	fragments, framingErr := r.decoder.DecodeAll(data, func(fragment Fragment, err error) {
		malformed++
		r.reportBadFragment(number, err)
	})
	if framingErr != nil {
		malformed++
		r.reportBadFragment(number, framingErr)
	}
	r.metrics.FragmentsDecoded.Add(float64(len(fragments)))
	r.metrics.FragmentsMalformed.Add(float64(malformed))

	event, err := r.Route(number, fragments)
	event.Dropped += malformed
	event.Fragments += malformed
	return event, err
}

func (r *FragmentRouter) reportBadFragment(number uint64, err error) {
	r.badFragments.Do(func() {
		kind := "malformed fragment"
		if errors.Is(err, ErrUnknownSource) {
			kind = "fragment from unknown source"
		}
		logger.Error(fmt.Sprintf("event %d: skipping %s: %v", number, kind, err))
	})
}
