package evtbuilder

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// MaxInteractionPoints is the number of decomposed interaction points a
// GRETINA crystal can report.
const MaxInteractionPoints = 16

// Channel number reported for the crystal central contact.
const gretinaCoreChannel = 9

type GretinaInteractionPoint struct {
	X       float32
	Y       float32
	Z       float32
	E       float32
	Seg     int32
	SegEner float32
}

// GretinaPayload is the decomposed crystal record written by the signal
// decomposition stage.
type GretinaPayload struct {
	Type      int32
	CrystalID int32
	Num       int32
	TotE      float32
	CoreE     [4]int32
	Timestamp int64
	TrigTime  int64
	T0        float32
	Cfd       float32
	Chisq     float32
	NormChisq float32
	Baseline  float32
	Prestep   float32
	Poststep  float32
	Pad       int32
	Intpts    [MaxInteractionPoints]GretinaInteractionPoint
}

var gretinaPayloadSize = binary.Size(GretinaPayload{})

// Hole returns the GRETINA module (quad) housing the crystal.
func (p *GretinaPayload) Hole() int {
	return int(p.CrystalID) / 4
}

// Crystal returns the crystal position inside its module.
func (p *GretinaPayload) Crystal() int {
	return int(p.CrystalID) % 4
}

// DecompositionFailed reports pad codes marking a crystal whose signal
// decomposition did not converge.
func (p *GretinaPayload) DecompositionFailed() bool {
	switch p.Pad {
	case 2, 3, 4, 6:
		return true
	}
	return false
}

func decodeGretinaPayload(payload []byte, fragment *Fragment) error {
	if len(payload) < gretinaPayloadSize {
		return malformed("GRETINA payload of %d bytes, need %d", len(payload), gretinaPayloadSize)
	}
	var mode2 GretinaPayload
	reader := bytes.NewReader(payload[:gretinaPayloadSize])
	if err := binary.Read(reader, binary.LittleEndian, &mode2); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedFragment, err)
	}
	if mode2.CrystalID < 0 || int(mode2.CrystalID) >= NumCrystals {
		return malformed("GRETINA crystal id %d", mode2.CrystalID)
	}
	if mode2.Num < 0 {
		return malformed("GRETINA interaction point count %d", mode2.Num)
	}
	fragment.Gretina = &mode2
	fragment.Crate = mode2.Hole()
	fragment.Slot = mode2.Crystal()
	fragment.Channel = gretinaCoreChannel
	return nil
}

// EncodeGretinaPayload serialises a decomposed crystal record.
func EncodeGretinaPayload(payload GretinaPayload) []byte {
	buffer := new(bytes.Buffer)
	binary.Write(buffer, binary.LittleEndian, payload)
	return buffer.Bytes()
}
