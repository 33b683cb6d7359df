package evtbuilder

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
)

// Subposition codes for double-sided strip detectors.
const (
	SubpositionFront = "F"
	SubpositionBack  = "B"
)

// Channel is the logical identity of one electronics channel.
type Channel struct {
	Address       uint32
	System        SystemTag
	Subsystem     string
	ArrayPosition int
	Segment       int
	Subposition   string
}

// IsFront reports whether the channel reads a ring of a strip detector.
func (c Channel) IsFront() bool {
	return strings.EqualFold(c.Subposition, SubpositionFront)
}

// ChannelMappingEntry is one row of the channel map, as stored in the
// database or in a channel map file.
type ChannelMappingEntry struct {
	Source        string `db:"Source" toml:"source"`
	Crate         int    `db:"Crate" toml:"crate"`
	Slot          int    `db:"Slot" toml:"slot"`
	Channel       int    `db:"Channel" toml:"channel"`
	Subsystem     string `db:"Subsystem" toml:"subsystem"`
	ArrayPosition int    `db:"ArrayPosition" toml:"array_position"`
	Segment       int    `db:"Segment" toml:"segment"`
	Subposition   string `db:"Subposition" toml:"subposition"`
}

// CalibrationEntry holds the energy polynomial and time offset of a channel.
type CalibrationEntry struct {
	Source       string  `db:"Source" toml:"source"`
	Crate        int     `db:"Crate" toml:"crate"`
	Slot         int     `db:"Slot" toml:"slot"`
	Channel      int     `db:"Channel" toml:"channel"`
	EnergyOffset float64 `db:"EnergyOffset" toml:"energy_offset"`
	EnergyGain   float64 `db:"EnergyGain" toml:"energy_gain"`
	EnergyQuad   float64 `db:"EnergyQuad" toml:"energy_quad"`
	TimeOffset   float64 `db:"TimeOffset" toml:"time_offset"`
}

// ChannelMapFile is the layout of the TOML channel map used when no
// database is available.
type ChannelMapFile struct {
	Channels     []ChannelMappingEntry `toml:"channel"`
	Calibrations []CalibrationEntry    `toml:"calibration"`
}

// ChannelMap resolves electronics coordinates into logical channels and
// calibrates their values. It is read-only once built.
type ChannelMap struct {
	channels     map[uint32]Channel
	calibrations map[uint32]Calibration
}

func NewChannelMap(entries []ChannelMappingEntry, calibrations []CalibrationEntry) (*ChannelMap, error) {
	channelMap := &ChannelMap{
		channels:     make(map[uint32]Channel, len(entries)),
		calibrations: make(map[uint32]Calibration, len(calibrations)),
	}
	for _, entry := range entries {
		source, err := ParseSystemTag(entry.Source)
		if err != nil {
			return nil, fmt.Errorf("channel (%d, %d, %d): %w", entry.Crate, entry.Slot, entry.Channel, err)
		}
		address := MakeAddress(source, entry.Crate, entry.Slot, entry.Channel)
		if _, ok := channelMap.channels[address]; ok {
			return nil, fmt.Errorf("duplicated channel 0x%08x", address)
		}
		subsystem := entry.Subsystem
		if subsystem == "" {
			subsystem = source.String()
		}
		channelMap.channels[address] = Channel{
			Address:       address,
			System:        source,
			Subsystem:     strings.ToUpper(subsystem),
			ArrayPosition: entry.ArrayPosition,
			Segment:       entry.Segment,
			Subposition:   strings.ToUpper(entry.Subposition),
		}
	}
	for _, entry := range calibrations {
		source, err := ParseSystemTag(entry.Source)
		if err != nil {
			return nil, fmt.Errorf("calibration (%d, %d, %d): %w", entry.Crate, entry.Slot, entry.Channel, err)
		}
		address := MakeAddress(source, entry.Crate, entry.Slot, entry.Channel)
		channelMap.calibrations[address] = Calibration{
			Coefficients: []float64{entry.EnergyOffset, entry.EnergyGain, entry.EnergyQuad},
			TimeOffset:   entry.TimeOffset,
		}
	}
	return channelMap, nil
}

// Resolve looks up a channel by its electronics coordinates. GRETINA
// crystals are self describing and resolve without an explicit entry.
func (m *ChannelMap) Resolve(source SystemTag, crate, slot, channel int) (Channel, bool) {
	address := MakeAddress(source, crate, slot, channel)
	if m != nil {
		if resolved, ok := m.channels[address]; ok {
			return resolved, true
		}
	}
	if source == SystemGretina && channel == gretinaCoreChannel {
		crystalID := 4*crate + slot
		if slot < 4 && crystalID < NumCrystals {
			return Channel{
				Address:       address,
				System:        SystemGretina,
				Subsystem:     SystemGretina.String(),
				ArrayPosition: crystalID,
			}, true
		}
	}
	return Channel{}, false
}

// ResolveAddress looks up a channel by its packed address.
func (m *ChannelMap) ResolveAddress(address uint32) (Channel, bool) {
	return m.Resolve(SplitAddress(address))
}

// Len returns the number of explicit channel entries.
func (m *ChannelMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.channels)
}

// Addresses returns the explicit channel addresses in increasing order.
func (m *ChannelMap) Addresses() []uint32 {
	addresses := make([]uint32, 0, m.Len())
	if m == nil {
		return addresses
	}
	for address := range m.channels {
		addresses = append(addresses, address)
	}
	sort.Slice(addresses, func(i, j int) bool {
		return addresses[i] < addresses[j]
	})
	return addresses
}

func (m *ChannelMap) calibration(address uint32) (Calibration, bool) {
	if m == nil {
		return Calibration{}, false
	}
	calibration, ok := m.calibrations[address]
	return calibration, ok
}

// CalibrateEnergy applies the energy polynomial of the channel. Channels
// without calibration return the raw charge.
func (m *ChannelMap) CalibrateEnergy(address uint32, charge float64, timestamp uint64) float64 {
	calibration, ok := m.calibration(address)
	if !ok {
		return charge
	}
	return calibration.Energy(charge)
}

// CalibrateTime applies the time offset of the channel.
func (m *ChannelMap) CalibrateTime(address uint32, time float64, timestamp uint64) float64 {
	calibration, ok := m.calibration(address)
	if !ok {
		return time
	}
	return time + calibration.TimeOffset
}

// LoadChannelMapFile reads a TOML channel map.
func LoadChannelMapFile(filename string) (*ChannelMap, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, &ErrOpenFile{Filename: filename, Err: err}
	}
	var file ChannelMapFile
	if _, err := toml.Decode(string(data), &file); err != nil {
		return nil, &ErrLoadTable{Table: "channel map file", Err: err}
	}
	if configuration.Verbosity > 0 {
		message := fmt.Sprintf("Channel map read from %s: %d channels, %d calibrations",
			filename, len(file.Channels), len(file.Calibrations))
		logger.Info(message, "channelMap")
	}
	channelMap, err := NewChannelMap(file.Channels, file.Calibrations)
	if err != nil {
		return nil, &ErrLoadTable{Table: "channel map file", Err: err}
	}
	return channelMap, nil
}

var (
	channelMap     *ChannelMap
	channelMapErr  error
	channelMapOnce sync.Once
)

// InitChannelMap builds the process wide channel map with build. Only the
// first call runs build; later calls return the same result.
func InitChannelMap(build func() (*ChannelMap, error)) (*ChannelMap, error) {
	channelMapOnce.Do(func() {
		channelMap, channelMapErr = build()
		if channelMapErr != nil {
			logger.Error(fmt.Sprintf("error building channel map: %v", channelMapErr))
		}
	})
	return channelMap, channelMapErr
}

// GetChannelMap returns the process wide channel map, nil before
// InitChannelMap succeeded.
func GetChannelMap() *ChannelMap {
	return channelMap
}
