package evtbuilder

import "fmt"

// LENDA channel groups as named in the channel map.
const (
	LendaTop       = "LET"
	LendaBottom    = "LEB"
	LendaReference = "LER"
)

type LendaParams struct {
	// TDiff is the top/bottom coincidence window in ns.
	TDiff float64 `json:"tdiff"`
	// ChargeThresh rejects bar ends below this charge.
	ChargeThresh float64 `json:"charge_thresh"`
}

func DefaultLendaParams() LendaParams {
	return LendaParams{TDiff: 1000}
}

type LendaHit struct {
	Address   uint32
	Bar       int
	Segment   int
	Timestamp uint64
	Time      float64
	CFDTime   uint16
	CFDFail   bool
	Charge    float64
	Energy    float64
	Trace     []uint16
}

// LendaBar is a top/bottom coincidence on one bar. The top hit carries the
// data of the bar.
type LendaBar struct {
	Top    LendaHit
	Bottom LendaHit
}

func (b LendaBar) Bar() int {
	return b.Top.Bar
}

type Lenda struct {
	Top       []LendaHit
	Bottom    []LendaHit
	Reference []LendaHit
	Bars      []LendaBar
	timestamp uint64
}

func (l *Lenda) System() SystemTag {
	return SystemLenda
}

func (l *Lenda) Size() int {
	return len(l.Top) + len(l.Bottom) + len(l.Reference)
}

func (l *Lenda) Timestamp() uint64 {
	return l.timestamp
}

type LendaBuilder struct {
	calibrator Calibrator
	params     LendaParams
}

func NewLendaBuilder(calibrator Calibrator, params LendaParams) *LendaBuilder {
	return &LendaBuilder{calibrator: calibratorOrRaw(calibrator), params: params}
}

func (b *LendaBuilder) System() SystemTag {
	return SystemLenda
}

func (b *LendaBuilder) Build(fragments []ResolvedFragment) Detector {
	lenda := &Lenda{}
	for _, fragment := range fragments {
		charge := float64(fragment.Charge)
		hit := LendaHit{
			Address:   fragment.Address,
			Bar:       fragment.Channel.ArrayPosition,
			Segment:   fragment.Channel.Segment,
			Timestamp: fragment.Timestamp,
			Time:      b.calibrator.CalibrateTime(fragment.Address, fragment.Time(), fragment.Timestamp),
			CFDTime:   fragment.CFDTime,
			CFDFail:   fragment.CFDFail,
			Charge:    charge,
			Energy:    b.calibrator.CalibrateEnergy(fragment.Address, charge, fragment.Timestamp),
			Trace:     fragment.Trace,
		}
		switch fragment.Channel.Subsystem {
		case LendaTop:
			lenda.Top = append(lenda.Top, hit)
		case LendaBottom:
			lenda.Bottom = append(lenda.Bottom, hit)
		case LendaReference:
			lenda.Reference = append(lenda.Reference, hit)
		default:
			if configuration.Verbosity > 1 {
				message := fmt.Sprintf("LENDA channel 0x%08x has unknown group %q", fragment.Address, fragment.Channel.Subsystem)
				logger.Info(message, "lenda")
			}
			continue
		}
		lenda.timestamp = minTimestamp(lenda.timestamp, hit.Timestamp)
	}
	lenda.Bars = MatchLendaBars(lenda.Top, lenda.Bottom, b.params)
	return lenda
}

// MatchLendaBars pairs each top hit with the first unused bottom hit of the
// same bar inside the coincidence window.
func MatchLendaBars(top, bottom []LendaHit, params LendaParams) []LendaBar {
	bars := make([]LendaBar, 0, min(len(top), len(bottom)))
	used := make([]bool, len(bottom))
	for _, topHit := range top {
		if topHit.Charge < params.ChargeThresh {
			continue
		}
		for j, bottomHit := range bottom {
			if used[j] || bottomHit.Bar != topHit.Bar || bottomHit.Charge < params.ChargeThresh {
				continue
			}
			if !withinWindow(topHit.Timestamp, bottomHit.Timestamp, params.TDiff) {
				continue
			}
			bars = append(bars, LendaBar{Top: topHit, Bottom: bottomHit})
			used[j] = true
			break
		}
	}
	return bars
}
