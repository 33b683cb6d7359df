package evtbuilder

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Front-ends report overflowing charges above janusOverflowCharge with an
// offset of janusOverflowOffset; folding makes them negative.
const (
	janusOverflowCharge = 60000
	janusOverflowOffset = 70000
)

// S3 detector geometry in cm.
const (
	janusOuterDiameter = 7.0
	janusInnerDiameter = 2.2
	janusPhiOffset     = 1.5 * math.Pi
	janusUpstreamZ     = -3.2
	janusDownstreamZ   = 2.8
)

func foldJanusCharge(charge uint32) float64 {
	if charge > janusOverflowCharge {
		return float64(charge) - janusOverflowOffset
	}
	return float64(charge)
}

// Janus holds the ring and sector hits of the two S3 detectors together with
// their combined hits.
type Janus struct {
	Rings     []StripHit
	Sectors   []StripHit
	Hits      []CombinedStripHit
	params    StripMatchParams
	timestamp uint64
}

func (j *Janus) System() SystemTag {
	return SystemJanus
}

func (j *Janus) Size() int {
	return len(j.Hits)
}

func (j *Janus) Timestamp() uint64 {
	return j.timestamp
}

// Position returns the centre of the ring/sector pixel of hit. Sectors of
// the upstream detector run in the opposite direction.
func (j *Janus) Position(hit CombinedStripHit) r3.Vec {
	nRing := j.params.NRing
	nSector := j.params.NSector
	if nRing <= 0 || nSector <= 0 {
		return r3.Vec{}
	}
	ringWidth := (janusOuterDiameter - janusInnerDiameter) * 0.5 / float64(nRing)
	radius := janusInnerDiameter/2 + ringWidth*(float64(hit.Ring-1)+0.5)

	phi := 2 * math.Pi / float64(nSector) * float64(hit.Sector-1)
	z := janusDownstreamZ
	if !hit.IsDownstream() {
		phi = -phi
		z = janusUpstreamZ
	}
	phi += janusPhiOffset
	return r3.Vec{X: math.Cos(phi) * radius, Y: math.Sin(phi) * radius, Z: z}
}

type JanusBuilder struct {
	calibrator Calibrator
	params     StripMatchParams
}

func NewJanusBuilder(calibrator Calibrator, params StripMatchParams) *JanusBuilder {
	return &JanusBuilder{calibrator: calibratorOrRaw(calibrator), params: params}
}

func (b *JanusBuilder) System() SystemTag {
	return SystemJanus
}

func (b *JanusBuilder) Build(fragments []ResolvedFragment) Detector {
	janus := &Janus{params: b.params}
	for _, fragment := range fragments {
		charge := foldJanusCharge(fragment.Charge)
		hit := StripHit{
			Address:   fragment.Address,
			Module:    fragment.Channel.ArrayPosition,
			Strip:     fragment.Channel.Segment,
			Timestamp: fragment.Timestamp,
			Charge:    charge,
			Energy:    b.calibrator.CalibrateEnergy(fragment.Address, charge, fragment.Timestamp),
		}
		janus.timestamp = minTimestamp(janus.timestamp, hit.Timestamp)
		if fragment.Channel.IsFront() {
			janus.Rings = append(janus.Rings, hit)
		} else {
			janus.Sectors = append(janus.Sectors, hit)
		}
	}
	janus.Hits = MatchStrips(janus.Rings, janus.Sectors, b.params)
	if configuration.Verbosity > 2 {
		message := fmt.Sprintf("Janus: %d rings, %d sectors, %d hits", len(janus.Rings), len(janus.Sectors), len(janus.Hits))
		logger.Info(message, "janus")
	}
	return janus
}
