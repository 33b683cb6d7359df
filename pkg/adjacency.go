package evtbuilder

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sync"
)

// NumCrystals is the number of crystal positions in the GRETINA shell.
const NumCrystals = 124

// NeighborTable answers whether two crystals touch.
type NeighborTable interface {
	IsNeighbor(a, b int) bool
}

// CrystalAdjacency is a symmetric neighbour relation between crystal ids.
// A crystal is never its own neighbour.
type CrystalAdjacency struct {
	pairs [NumCrystals][NumCrystals]bool
}

func NewCrystalAdjacency(pairs [][2]int) (*CrystalAdjacency, error) {
	adjacency := &CrystalAdjacency{}
	for _, pair := range pairs {
		a, b := pair[0], pair[1]
		if !validCrystal(a) || !validCrystal(b) {
			return nil, fmt.Errorf("crystal pair (%d, %d) out of range", a, b)
		}
		if a == b {
			continue
		}
		adjacency.pairs[a][b] = true
		adjacency.pairs[b][a] = true
	}
	return adjacency, nil
}

func validCrystal(id int) bool {
	return id >= 0 && id < NumCrystals
}

// ReadCrystalAdjacency parses a whitespace separated NumCrystals x
// NumCrystals matrix of 0/1 flags. Asymmetric entries are joined.
func ReadCrystalAdjacency(r io.Reader) (*CrystalAdjacency, error) {
	scanner := bufio.NewScanner(r)
	scanner.Split(bufio.ScanWords)

	pairs := make([][2]int, 0, 4*NumCrystals)
	n := 0
	for scanner.Scan() {
		if n >= NumCrystals*NumCrystals {
			return nil, fmt.Errorf("adjacency matrix has more than %d entries", NumCrystals*NumCrystals)
		}
		switch scanner.Text() {
		case "0":
		case "1":
			pairs = append(pairs, [2]int{n / NumCrystals, n % NumCrystals})
		default:
			return nil, fmt.Errorf("adjacency entry %d: invalid value %q", n, scanner.Text())
		}
		n++
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if n != NumCrystals*NumCrystals {
		return nil, fmt.Errorf("adjacency matrix has %d entries, want %d", n, NumCrystals*NumCrystals)
	}
	return NewCrystalAdjacency(pairs)
}

func LoadCrystalAdjacency(filename string) (*CrystalAdjacency, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, &ErrOpenFile{Filename: filename, Err: err}
	}
	defer file.Close()
	adjacency, err := ReadCrystalAdjacency(file)
	if err != nil {
		return nil, &ErrLoadTable{Table: filename, Err: err}
	}
	return adjacency, nil
}

// IsNeighbor is false for unknown ids and for a nil table.
func (c *CrystalAdjacency) IsNeighbor(a, b int) bool {
	if c == nil || !validCrystal(a) || !validCrystal(b) {
		return false
	}
	return c.pairs[a][b]
}

// Count returns the number of neighbour pairs.
func (c *CrystalAdjacency) Count() int {
	if c == nil {
		return 0
	}
	count := 0
	for a := 0; a < NumCrystals; a++ {
		for b := a + 1; b < NumCrystals; b++ {
			if c.pairs[a][b] {
				count++
			}
		}
	}
	return count
}

var (
	crystalAdjacency     *CrystalAdjacency
	crystalAdjacencyOnce sync.Once
)

// GetCrystalAdjacency loads the adjacency file named in the configuration
// on first use.
func GetCrystalAdjacency() *CrystalAdjacency {
	crystalAdjacencyOnce.Do(func() {
		crystalAdjacency = loadCrystalAdjacencyOrEmpty(configuration.AdjacencyFile)
	})
	return crystalAdjacency
}

// loadCrystalAdjacencyOrEmpty never fails: without a readable file no
// crystal has neighbours and addback degrades to single hits.
func loadCrystalAdjacencyOrEmpty(filename string) *CrystalAdjacency {
	if filename == "" {
		logger.Error("no crystal adjacency file configured, addback disabled")
		return &CrystalAdjacency{}
	}
	adjacency, err := LoadCrystalAdjacency(filename)
	if err != nil {
		logger.Error(fmt.Sprintf("%v, addback disabled", err))
		return &CrystalAdjacency{}
	}
	if configuration.Verbosity > 0 {
		message := fmt.Sprintf("Crystal adjacency read from %s: %d pairs", filename, adjacency.Count())
		logger.Info(message, "adjacency")
	}
	return adjacency
}
