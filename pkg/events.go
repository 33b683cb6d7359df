package evtbuilder

// Detector is the per-event hit collection built for one system.
type Detector interface {
	System() SystemTag
	// Size is the number of reconstructed hits.
	Size() int
	// Timestamp is the smallest hit timestamp, zero when empty.
	Timestamp() uint64
}

// HitBuilder reconstructs the hits of one detector system from the
// fragments of a single trigger. A builder may be reused for every event of
// a run but keeps no per-event state.
type HitBuilder interface {
	System() SystemTag
	Build(fragments []ResolvedFragment) Detector
}

// ResolvedFragment is a fragment together with its channel map entry.
type ResolvedFragment struct {
	Fragment
	Channel Channel
}

// AssembledEvent groups the detectors built from one trigger.
type AssembledEvent struct {
	Number    uint64
	Timestamp uint64
	Fragments int
	Dropped   int
	Detectors map[SystemTag]Detector
}

func NewAssembledEvent(number uint64) *AssembledEvent {
	return &AssembledEvent{
		Number:    number,
		Detectors: make(map[SystemTag]Detector),
	}
}

// HasDetectors reports whether at least one detector produced hits.
func (e *AssembledEvent) HasDetectors() bool {
	for _, detector := range e.Detectors {
		if detector.Size() > 0 {
			return true
		}
	}
	return false
}

func (e *AssembledEvent) Gretina() *Gretina {
	detector, _ := e.Detectors[SystemGretina].(*Gretina)
	return detector
}

func (e *AssembledEvent) Janus() *Janus {
	detector, _ := e.Detectors[SystemJanus].(*Janus)
	return detector
}

func (e *AssembledEvent) Lenda() *Lenda {
	detector, _ := e.Detectors[SystemLenda].(*Lenda)
	return detector
}

func (e *AssembledEvent) Sega() *Sega {
	detector, _ := e.Detectors[SystemSega].(*Sega)
	return detector
}

func (e *AssembledEvent) Sun() *Sun {
	detector, _ := e.Detectors[SystemSun].(*Sun)
	return detector
}

// minTimestamp keeps the smallest non-zero timestamp.
func minTimestamp(current uint64, candidate uint64) uint64 {
	if current == 0 || (candidate != 0 && candidate < current) {
		return candidate
	}
	return current
}
