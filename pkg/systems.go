package evtbuilder

import (
	"fmt"
	"strings"
)

// SystemTag identifies the detector system that produced a fragment. The
// numeric values are the ones written by the front-ends and used as the
// top byte of a channel address.
type SystemTag int

const (
	SystemUnknown   SystemTag = 0
	SystemGretina   SystemTag = 1
	SystemMode3     SystemTag = 2
	SystemFastScint SystemTag = 4
	SystemS800      SystemTag = 5
	SystemBank88    SystemTag = 8
	SystemLenda     SystemTag = 21
	SystemDDAS      SystemTag = 25
	SystemSega      SystemTag = 64
	SystemJanus     SystemTag = 65
	SystemJanusDDAS SystemTag = 66
	SystemSun       SystemTag = 70
	SystemCaesar    SystemTag = 80
)

var systemNames = map[SystemTag]string{
	SystemGretina:   "GRETINA",
	SystemMode3:     "MODE3",
	SystemFastScint: "FASTSCINT",
	SystemS800:      "S800",
	SystemBank88:    "BANK88",
	SystemLenda:     "LENDA",
	SystemDDAS:      "DDAS",
	SystemSega:      "SEGA",
	SystemJanus:     "JANUS",
	SystemJanusDDAS: "JANUS_DDAS",
	SystemSun:       "SUN",
	SystemCaesar:    "CAESAR",
}

func (s SystemTag) String() string {
	if name, ok := systemNames[s]; ok {
		return name
	}
	return "Unknown"
}

// ParseSystemTag accepts either the system name (case insensitive) or its
// numeric value.
func ParseSystemTag(name string) (SystemTag, error) {
	upper := strings.ToUpper(strings.TrimSpace(name))
	for tag, tagName := range systemNames {
		if tagName == upper {
			return tag, nil
		}
	}
	var value int
	if _, err := fmt.Sscanf(upper, "%d", &value); err == nil {
		if _, ok := systemNames[SystemTag(value)]; ok {
			return SystemTag(value), nil
		}
	}
	return SystemUnknown, fmt.Errorf("unknown detector system %q", name)
}

// UsesDDAS reports whether fragments of this system carry a Pixie-16
// list-mode payload.
func (s SystemTag) UsesDDAS() bool {
	switch s {
	case SystemLenda, SystemDDAS, SystemSega, SystemJanus, SystemJanusDDAS, SystemSun, SystemCaesar:
		return true
	}
	return false
}

// MakeAddress packs a channel identity into the 32 bit address used by the
// channel map and the calibration tables.
func MakeAddress(system SystemTag, crate, slot, channel int) uint32 {
	return uint32(system)<<24 | uint32(crate&0xff)<<16 | uint32(slot&0xff)<<8 | uint32(channel&0xff)
}

// SplitAddress is the inverse of MakeAddress.
func SplitAddress(address uint32) (system SystemTag, crate, slot, channel int) {
	system = SystemTag(address >> 24)
	crate = int(address>>16) & 0xff
	slot = int(address>>8) & 0xff
	channel = int(address) & 0xff
	return
}
