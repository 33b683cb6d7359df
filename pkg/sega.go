package evtbuilder

type SegaSegmentHit struct {
	Address   uint32
	Segment   int
	Timestamp uint64
	Time      float64
	Charge    float64
	Energy    float64
	Trace     []uint16
}

// SegaHit is one germanium detector: the central contact (core) and the
// outer segments that fired with it.
type SegaHit struct {
	Address    uint32
	Detector   int
	Timestamp  uint64
	Time       float64
	CFDTime    uint16
	CFDFail    bool
	HasCore    bool
	Charge     float64
	Energy     float64
	EnergySums []uint32
	Trace      []uint16
	Segments   []SegaSegmentHit
}

// MainSegment returns the segment with the largest charge, 0 without
// segments.
func (h SegaHit) MainSegment() int {
	main := 0
	largest := 0.0
	for _, segment := range h.Segments {
		if segment.Charge > largest {
			largest = segment.Charge
			main = segment.Segment
		}
	}
	return main
}

type Sega struct {
	Hits      []SegaHit
	timestamp uint64
}

func (s *Sega) System() SystemTag {
	return SystemSega
}

func (s *Sega) Size() int {
	return len(s.Hits)
}

func (s *Sega) Timestamp() uint64 {
	return s.timestamp
}

type SegaBuilder struct {
	calibrator Calibrator
	// segment to core window in ns
	window float64
}

func NewSegaBuilder(calibrator Calibrator, window float64) *SegaBuilder {
	return &SegaBuilder{calibrator: calibratorOrRaw(calibrator), window: window}
}

func (b *SegaBuilder) System() SystemTag {
	return SystemSega
}

func (b *SegaBuilder) Build(fragments []ResolvedFragment) Detector {
	sega := &Sega{}
	for _, fragment := range fragments {
		detector := fragment.Channel.ArrayPosition
		segment := fragment.Channel.Segment
		charge := float64(fragment.Charge)
		energy := b.calibrator.CalibrateEnergy(fragment.Address, charge, fragment.Timestamp)
		hitTime := b.calibrator.CalibrateTime(fragment.Address, fragment.Time(), fragment.Timestamp)

		hit := b.findHit(sega, detector, segment, fragment.Timestamp)
		if hit == nil {
			sega.Hits = append(sega.Hits, SegaHit{Detector: detector})
			hit = &sega.Hits[len(sega.Hits)-1]
		}

		if segment == 0 {
			hit.Address = fragment.Address
			hit.Timestamp = fragment.Timestamp
			hit.Time = hitTime
			hit.CFDTime = fragment.CFDTime
			hit.CFDFail = fragment.CFDFail
			hit.HasCore = true
			hit.Charge = charge
			hit.Energy = energy
			hit.EnergySums = fragment.EnergySums
			hit.Trace = fragment.Trace
		} else {
			if !hit.HasCore {
				hit.Timestamp = fragment.Timestamp
				hit.Time = hitTime
				hit.CFDTime = fragment.CFDTime
			}
			hit.Segments = append(hit.Segments, SegaSegmentHit{
				Address:   fragment.Address,
				Segment:   segment,
				Timestamp: fragment.Timestamp,
				Time:      hitTime,
				Charge:    charge,
				Energy:    energy,
				Trace:     fragment.Trace,
			})
		}
		sega.timestamp = minTimestamp(sega.timestamp, fragment.Timestamp)
	}
	return sega
}

// findHit returns the hit of detector a new channel belongs to: a core joins
// the first hit still missing its core, a segment joins the first hit
// inside the time window.
func (b *SegaBuilder) findHit(sega *Sega, detector, segment int, timestamp uint64) *SegaHit {
	for i := range sega.Hits {
		hit := &sega.Hits[i]
		if hit.Detector != detector {
			continue
		}
		if segment == 0 {
			if !hit.HasCore {
				return hit
			}
			continue
		}
		if withinWindow(hit.Timestamp, timestamp, b.window) {
			return hit
		}
	}
	return nil
}
