package evtbuilder

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"
)

type InteractionPoint struct {
	Position      r3.Vec
	Energy        float64
	Segment       int
	SegmentEnergy float64
}

// GretinaHit is one crystal of a GRETINA event.
type GretinaHit struct {
	Address     uint32
	CrystalID   int
	Timestamp   uint64
	Time        float64
	RawEnergy   float64
	Energy      float64
	CoreCharges [4]int32
	T0          float64
	Chisq       float64
	Points      []InteractionPoint
}

func (h GretinaHit) Hole() int {
	return h.CrystalID / 4
}

func (h GretinaHit) Crystal() int {
	return h.CrystalID % 4
}

// FirstInteraction returns the position of the first interaction point.
func (h GretinaHit) FirstInteraction() (r3.Vec, bool) {
	if len(h.Points) == 0 {
		return r3.Vec{}, false
	}
	return h.Points[0].Position, true
}

// Gretina holds the crystal hits of one event. The addback list is built on
// first request and cached; it is not safe for concurrent use.
type Gretina struct {
	Hits      []GretinaHit
	timestamp uint64

	neighbors    NeighborTable
	params       AddbackParams
	addback      []AddbackHit
	addbackBuilt bool
}

func (g *Gretina) System() SystemTag {
	return SystemGretina
}

func (g *Gretina) Size() int {
	return len(g.Hits)
}

func (g *Gretina) Timestamp() uint64 {
	return g.timestamp
}

// Addback returns the clustered hits of the event.
func (g *Gretina) Addback() []AddbackHit {
	if !g.addbackBuilt {
		g.addback = ClusterAddback(g.Hits, g.params, g.neighbors)
		g.addbackBuilt = true
	}
	return g.addback
}

// ResetAddback drops the cached addback list, for instance after changing
// the parameters with SetAddbackParams.
func (g *Gretina) ResetAddback() {
	g.addback = nil
	g.addbackBuilt = false
}

func (g *Gretina) SetAddbackParams(params AddbackParams) {
	g.params = params
	g.ResetAddback()
}

// GretinaBuilder turns decomposed crystal fragments into a Gretina
// detector.
type GretinaBuilder struct {
	calibrator Calibrator
	neighbors  NeighborTable
	params     AddbackParams
}

func NewGretinaBuilder(calibrator Calibrator, neighbors NeighborTable, params AddbackParams) *GretinaBuilder {
	return &GretinaBuilder{
		calibrator: calibratorOrRaw(calibrator),
		neighbors:  neighbors,
		params:     params,
	}
}

func (b *GretinaBuilder) System() SystemTag {
	return SystemGretina
}

func (b *GretinaBuilder) Build(fragments []ResolvedFragment) Detector {
	gretina := &Gretina{
		Hits:      make([]GretinaHit, 0, len(fragments)),
		neighbors: b.neighbors,
		params:    b.params,
	}
	for _, fragment := range fragments {
		payload := fragment.Gretina
		if payload == nil {
			continue
		}
		if payload.DecompositionFailed() {
			if configuration.Verbosity > 2 {
				message := fmt.Sprintf("Skipping crystal %d, decomposition pad %d", payload.CrystalID, payload.Pad)
				logger.Info(message, "gretina")
			}
			continue
		}
		hit := b.newHit(fragment)
		gretina.timestamp = minTimestamp(gretina.timestamp, hit.Timestamp)
		gretina.Hits = append(gretina.Hits, hit)
	}
	return gretina
}

func (b *GretinaBuilder) newHit(fragment ResolvedFragment) GretinaHit {
	payload := fragment.Gretina
	address := fragment.Address
	hit := GretinaHit{
		Address:     address,
		CrystalID:   int(payload.CrystalID),
		Timestamp:   fragment.Timestamp,
		RawEnergy:   float64(payload.TotE),
		CoreCharges: payload.CoreE,
		T0:          float64(payload.T0),
		Chisq:       float64(payload.Chisq),
	}
	hit.Energy = b.calibrator.CalibrateEnergy(address, hit.RawEnergy, hit.Timestamp)
	hit.Time = b.calibrator.CalibrateTime(address, float64(hit.Timestamp)+hit.T0, hit.Timestamp)

	nPoints := min(int(payload.Num), MaxInteractionPoints)
	hit.Points = make([]InteractionPoint, nPoints)
	for i := 0; i < nPoints; i++ {
		point := payload.Intpts[i]
		hit.Points[i] = InteractionPoint{
			Position:      r3.Vec{X: float64(point.X), Y: float64(point.Y), Z: float64(point.Z)},
			Energy:        float64(point.E),
			Segment:       int(point.Seg),
			SegmentEnergy: float64(point.SegEner),
		}
	}
	return hit
}
