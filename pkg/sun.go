package evtbuilder

// SingleChannelHit is a DDAS channel with no further reconstruction.
type SingleChannelHit struct {
	Address   uint32
	Detector  int
	Segment   int
	Timestamp uint64
	Time      float64
	CFDTime   uint16
	Charge    float64
	Energy    float64
	Trace     []uint16
}

// Sun is the SuN total absorption spectrometer, one hit per segment.
type Sun struct {
	Hits      []SingleChannelHit
	timestamp uint64
}

func (s *Sun) System() SystemTag {
	return SystemSun
}

func (s *Sun) Size() int {
	return len(s.Hits)
}

func (s *Sun) Timestamp() uint64 {
	return s.timestamp
}

// Sum returns the total calibrated energy deposited in the event.
func (s *Sun) Sum() float64 {
	sum := 0.0
	for _, hit := range s.Hits {
		sum += hit.Energy
	}
	return sum
}

// DDASDetector collects channels of any other DDAS system.
type DDASDetector struct {
	Tag       SystemTag
	Hits      []SingleChannelHit
	timestamp uint64
}

func (d *DDASDetector) System() SystemTag {
	return d.Tag
}

func (d *DDASDetector) Size() int {
	return len(d.Hits)
}

func (d *DDASDetector) Timestamp() uint64 {
	return d.timestamp
}

// SingleChannelBuilder builds one hit per resolved channel. It serves SuN
// and the DDAS systems without a dedicated builder.
type SingleChannelBuilder struct {
	tag        SystemTag
	calibrator Calibrator
}

func NewSingleChannelBuilder(tag SystemTag, calibrator Calibrator) *SingleChannelBuilder {
	return &SingleChannelBuilder{tag: tag, calibrator: calibratorOrRaw(calibrator)}
}

func (b *SingleChannelBuilder) System() SystemTag {
	return b.tag
}

func (b *SingleChannelBuilder) Build(fragments []ResolvedFragment) Detector {
	hits := make([]SingleChannelHit, 0, len(fragments))
	var timestamp uint64
	for _, fragment := range fragments {
		charge := float64(fragment.Charge)
		hits = append(hits, SingleChannelHit{
			Address:   fragment.Address,
			Detector:  fragment.Channel.ArrayPosition,
			Segment:   fragment.Channel.Segment,
			Timestamp: fragment.Timestamp,
			Time:      b.calibrator.CalibrateTime(fragment.Address, fragment.Time(), fragment.Timestamp),
			CFDTime:   fragment.CFDTime,
			Charge:    charge,
			Energy:    b.calibrator.CalibrateEnergy(fragment.Address, charge, fragment.Timestamp),
			Trace:     fragment.Trace,
		})
		timestamp = minTimestamp(timestamp, fragment.Timestamp)
	}
	if b.tag == SystemSun {
		return &Sun{Hits: hits, timestamp: timestamp}
	}
	return &DDASDetector{Tag: b.tag, Hits: hits, timestamp: timestamp}
}
