package evtbuilder

import "sort"

// StripMatchParams controls how ring and sector hits of a double-sided
// strip detector are paired.
type StripMatchParams struct {
	// TDiff is the coincidence window in ns.
	TDiff float64 `json:"tdiff"`
	// EWin is the energy balance factor: a pair is accepted when each side
	// times EWin stays below the other side.
	EWin float64 `json:"ewin"`
	// Charge thresholds for downstream and upstream detectors.
	DThresh float64 `json:"dthresh"`
	UThresh float64 `json:"uthresh"`
	// Addback merges adjacent strips of the same side.
	Addback bool `json:"addback"`
	// MultiHit resolves one strip shared by two hits on the other side.
	MultiHit bool `json:"multihit"`
	// EBuild balances calibrated energies instead of raw charges.
	EBuild  bool `json:"ebuild"`
	NRing   int  `json:"nring"`
	NSector int  `json:"nsector"`
}

func DefaultStripMatchParams() StripMatchParams {
	return StripMatchParams{
		TDiff:   100,
		EWin:    0.9,
		DThresh: 400,
		UThresh: 400,
		NRing:   24,
		NSector: 32,
	}
}

// StripHit is a single ring (front) or sector (back) hit.
type StripHit struct {
	Address   uint32
	Module    int
	Strip     int
	Timestamp uint64
	Charge    float64
	Energy    float64
}

// IsDownstream is true for every detector but the upstream one (module 0).
func (h StripHit) IsDownstream() bool {
	return h.Module > 0
}

// CombinedStripHit is a ring/sector pair. Energy and Charge come from the
// strip that carries the hit, BackCharge is the balancing value seen on the
// other side.
type CombinedStripHit struct {
	Address    uint32
	Module     int
	Ring       int
	Sector     int
	Energy     float64
	Charge     float64
	BackCharge float64
	Timestamp  uint64
	Multi      bool
}

func (h CombinedStripHit) IsDownstream() bool {
	return h.Module > 0
}

type stripSide struct {
	hits []StripHit
	used []bool
}

type stripMatcher struct {
	params  StripMatchParams
	rings   stripSide
	sectors stripSide
	result  []CombinedStripHit
}

func (m *stripMatcher) threshold(hit StripHit) float64 {
	if hit.IsDownstream() {
		return m.params.DThresh
	}
	return m.params.UThresh
}

func (m *stripMatcher) value(hit StripHit) float64 {
	if m.params.EBuild {
		return hit.Energy
	}
	return hit.Charge
}

func (m *stripMatcher) coincident(a, b StripHit) bool {
	return a.Module == b.Module && withinWindow(a.Timestamp, b.Timestamp, m.params.TDiff)
}

func (m *stripMatcher) balanced(a, b float64) bool {
	return a*m.params.EWin < b && b*m.params.EWin < a
}

func (m *stripMatcher) ringsAdjacent(a, b int) bool {
	return absDiff(a, b) == 1
}

func (m *stripMatcher) sectorsAdjacent(a, b int) bool {
	d := absDiff(a, b)
	return d == 1 || (m.params.NSector > 2 && d == m.params.NSector-1)
}

func (m *stripMatcher) prepare(hits []StripHit, adjacent func(a, b int) bool) stripSide {
	side := stripSide{
		hits: append([]StripHit(nil), hits...),
		used: make([]bool, len(hits)),
	}
	sort.SliceStable(side.hits, func(i, j int) bool {
		a, b := side.hits[i], side.hits[j]
		if a.Module != b.Module {
			return a.Module < b.Module
		}
		if a.Strip != b.Strip {
			return a.Strip < b.Strip
		}
		return a.Timestamp < b.Timestamp
	})
	for i, hit := range side.hits {
		if hit.Charge < m.threshold(hit) {
			side.used[i] = true
		}
	}
	if !m.params.Addback {
		return side
	}
	for i := range side.hits {
		if side.used[i] {
			continue
		}
		for j := i + 1; j < len(side.hits); j++ {
			if side.used[j] {
				continue
			}
			if !m.coincident(side.hits[i], side.hits[j]) || !adjacent(side.hits[i].Strip, side.hits[j].Strip) {
				continue
			}
			side.hits[i].Charge += side.hits[j].Charge
			side.hits[i].Energy += side.hits[j].Energy
			side.used[j] = true
		}
	}
	return side
}

func (m *stripMatcher) matchPairs() {
	for i, ring := range m.rings.hits {
		if m.rings.used[i] {
			continue
		}
		for j, sector := range m.sectors.hits {
			if m.sectors.used[j] || !m.coincident(ring, sector) {
				continue
			}
			if !m.balanced(m.value(ring), m.value(sector)) {
				continue
			}
			m.result = append(m.result, CombinedStripHit{
				Address:    ring.Address,
				Module:     ring.Module,
				Ring:       ring.Strip,
				Sector:     sector.Strip,
				Energy:     ring.Energy,
				Charge:     ring.Charge,
				BackCharge: m.value(sector),
				Timestamp:  ring.Timestamp,
			})
			m.rings.used[i] = true
			m.sectors.used[j] = true
			break
		}
	}
}

// matchShared looks for one strip of single whose value is shared by two
// non adjacent strips of pairs. makeHit builds the output from the single
// strip, one of the pair strips and the share of the single strip value.
func (m *stripMatcher) matchShared(single, pairs *stripSide, adjacent func(a, b int) bool,
	makeHit func(single, pair StripHit, share float64) CombinedStripHit) {
	for i, hit := range single.hits {
		if single.used[i] {
			continue
		}
	search:
		for j := range pairs.hits {
			if pairs.used[j] || !m.coincident(hit, pairs.hits[j]) {
				continue
			}
			for k := j + 1; k < len(pairs.hits); k++ {
				if pairs.used[k] || !m.coincident(hit, pairs.hits[k]) {
					continue
				}
				first, second := pairs.hits[j], pairs.hits[k]
				if adjacent(first.Strip, second.Strip) {
					continue
				}
				vFirst, vSecond := m.value(first), m.value(second)
				sum := vFirst + vSecond
				if sum <= 0 || !m.balanced(m.value(hit), sum) {
					continue
				}
				vSingle := m.value(hit)
				m.result = append(m.result,
					makeHit(hit, first, vSingle*vFirst/sum),
					makeHit(hit, second, vSingle*vSecond/sum))
				single.used[i] = true
				pairs.used[j] = true
				pairs.used[k] = true
				break search
			}
		}
	}
}

// MatchStrips pairs front (ring) and back (sector) hits of the strip
// detectors. Hits below threshold are ignored; every remaining hit is used
// in at most one combined hit.
func MatchStrips(front, back []StripHit, params StripMatchParams) []CombinedStripHit {
	m := &stripMatcher{params: params}
	m.rings = m.prepare(front, m.ringsAdjacent)
	m.sectors = m.prepare(back, m.sectorsAdjacent)
	m.result = make([]CombinedStripHit, 0, min(len(front), len(back)))
	if len(m.rings.hits) == 0 || len(m.sectors.hits) == 0 {
		return m.result
	}

	m.matchPairs()
	if !params.MultiHit {
		return m.result
	}

	// One ring, two sectors: the sectors carry the hits.
	m.matchShared(&m.rings, &m.sectors, m.sectorsAdjacent, func(ring, sector StripHit, share float64) CombinedStripHit {
		return CombinedStripHit{
			Address:    sector.Address,
			Module:     sector.Module,
			Ring:       ring.Strip,
			Sector:     sector.Strip,
			Energy:     sector.Energy,
			Charge:     sector.Charge,
			BackCharge: share,
			Timestamp:  sector.Timestamp,
			Multi:      true,
		}
	})
	// One sector, two rings: the rings carry the hits.
	m.matchShared(&m.sectors, &m.rings, m.ringsAdjacent, func(sector, ring StripHit, share float64) CombinedStripHit {
		return CombinedStripHit{
			Address:    ring.Address,
			Module:     ring.Module,
			Ring:       ring.Strip,
			Sector:     sector.Strip,
			Energy:     ring.Energy,
			Charge:     ring.Charge,
			BackCharge: share,
			Timestamp:  ring.Timestamp,
			Multi:      true,
		}
	})
	return m.result
}
