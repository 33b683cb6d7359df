package evtbuilder

import (
	"math"
	"sort"
)

// Addback depth codes of an AddbackHit.
const (
	AddbackSingle   = 0
	AddbackPair     = 1
	AddbackTriangle = 2
	AddbackComplex  = 3
)

type AddbackParams struct {
	// Depth bounds the neighbour search: Depth-1 hops away from the seed
	// crystal. Values below 2 disable merging.
	Depth int
	// TimeGate in ns, neighbouring crystals must fire closer than this.
	// Zero or negative disables the check.
	TimeGate float64
}

// AddbackHit is a gamma-ray candidate made of one or more crystal hits.
type AddbackHit struct {
	Energy     float64
	CrystalIDs []int
	Depth      int
	Points     []InteractionPoint
	Timestamp  uint64
	Time       float64
	Address    uint32
	// Members indexes the crystal hits of the event that were combined
	Members []int
}

// Multiplicity returns the number of crystals combined in the hit.
func (a AddbackHit) Multiplicity() int {
	return len(a.CrystalIDs)
}

type addbackClusterer struct {
	hits      []GretinaHit
	neighbors NeighborTable
	params    AddbackParams
	consumed  []bool
}

func (c *addbackClusterer) related(a, b int) bool {
	if !c.neighbors.IsNeighbor(c.hits[a].CrystalID, c.hits[b].CrystalID) {
		return false
	}
	if c.params.TimeGate > 0 && math.Abs(c.hits[a].Time-c.hits[b].Time) >= c.params.TimeGate {
		return false
	}
	return true
}

// search returns the unconsumed hits reachable from seed within the
// configured number of hops, ordered like order.
func (c *addbackClusterer) search(seed int, order []int) []int {
	hops := c.params.Depth - 1
	if hops <= 0 {
		return nil
	}
	found := make(map[int]bool)
	frontier := []int{seed}
	for hop := 0; hop < hops && len(frontier) > 0; hop++ {
		next := make([]int, 0)
		for _, from := range frontier {
			for _, candidate := range order {
				if candidate == seed || c.consumed[candidate] || found[candidate] {
					continue
				}
				if c.related(from, candidate) {
					found[candidate] = true
					next = append(next, candidate)
				}
			}
		}
		frontier = next
	}

	result := make([]int, 0, len(found))
	for _, index := range order {
		if found[index] {
			result = append(result, index)
		}
	}
	return result
}

func (c *addbackClusterer) single(index int, depth int) AddbackHit {
	return c.merge([]int{index}, depth)
}

func (c *addbackClusterer) merge(members []int, depth int) AddbackHit {
	first := c.hits[members[0]]
	hit := AddbackHit{
		Depth:      depth,
		Timestamp:  first.Timestamp,
		Time:       first.Time,
		Address:    first.Address,
		CrystalIDs: make([]int, 0, len(members)),
		Members:    append([]int(nil), members...),
		Points:     make([]InteractionPoint, 0, len(first.Points)),
	}
	for _, index := range members {
		member := c.hits[index]
		hit.Energy += member.Energy
		hit.CrystalIDs = append(hit.CrystalIDs, member.CrystalID)
		for _, point := range member.Points {
			if len(hit.Points) >= MaxInteractionPoints {
				break
			}
			hit.Points = append(hit.Points, point)
		}
	}
	return hit
}

// ClusterAddback combines neighbouring crystal hits. Hits are visited in
// decreasing energy; each seed collects the still unused hits within reach
// and is emitted alone, as a pair, as a closed triangle, or, for any other
// topology, together with its partners as separate hits flagged
// AddbackComplex. Energy and hit count are conserved and every crystal
// hit ends up in exactly one AddbackHit.
func ClusterAddback(hits []GretinaHit, params AddbackParams, neighbors NeighborTable) []AddbackHit {
	if len(hits) == 0 {
		return []AddbackHit{}
	}
	if neighbors == nil {
		neighbors = &CrystalAdjacency{}
	}
	order := make([]int, len(hits))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return hits[order[a]].Energy > hits[order[b]].Energy
	})

	clusterer := &addbackClusterer{
		hits:      hits,
		neighbors: neighbors,
		params:    params,
		consumed:  make([]bool, len(hits)),
	}

	result := make([]AddbackHit, 0, len(hits))
	for _, seed := range order {
		if clusterer.consumed[seed] {
			continue
		}
		clusterer.consumed[seed] = true
		partners := clusterer.search(seed, order)
		for _, partner := range partners {
			clusterer.consumed[partner] = true
		}

		switch {
		case len(partners) == 0:
			result = append(result, clusterer.single(seed, AddbackSingle))
		case len(partners) == 1:
			result = append(result, clusterer.merge([]int{seed, partners[0]}, AddbackPair))
		case len(partners) == 2 && clusterer.related(seed, partners[0]) &&
			clusterer.related(seed, partners[1]) && clusterer.related(partners[0], partners[1]):
			result = append(result, clusterer.merge([]int{seed, partners[0], partners[1]}, AddbackTriangle))
		default:
			result = append(result, clusterer.single(seed, AddbackComplex))
			for _, partner := range partners {
				result = append(result, clusterer.single(partner, AddbackComplex))
			}
		}
	}
	return result
}
