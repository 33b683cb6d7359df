package evtbuilder

import (
	"sync"
	"testing"
)

type recordingLogger struct {
	mu     sync.Mutex
	infos  []string
	errors []string
}

func (l *recordingLogger) Info(message string, module string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.infos = append(l.infos, module+": "+message)
}

func (l *recordingLogger) Error(message string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, message)
}

func (l *recordingLogger) errorCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.errors)
}

// useRecordingLogger installs a recording logger for the duration of t.
func useRecordingLogger(t *testing.T) *recordingLogger {
	t.Helper()
	recorder := &recordingLogger{}
	SetLogger(recorder)
	t.Cleanup(func() {
		SetLogger(nil)
	})
	return recorder
}

// useConfiguration replaces the package configuration for the duration of t.
func useConfiguration(t *testing.T, config Configuration) {
	t.Helper()
	previous := GetConfiguration()
	SetConfiguration(config)
	t.Cleanup(func() {
		SetConfiguration(previous)
	})
}

func gretinaHit(crystal int, energy float64) GretinaHit {
	return GretinaHit{
		CrystalID: crystal,
		Energy:    energy,
		RawEnergy: energy,
		Timestamp: 1000,
		Time:      1000,
	}
}

func testSources() []SourceConfig {
	return []SourceConfig{
		{SourceID: 1, System: "GRETINA"},
		{SourceID: 21, System: "LENDA"},
		{SourceID: 64, System: "SEGA"},
		{SourceID: 65, System: "JANUS"},
		{SourceID: 70, System: "SUN"},
	}
}

func ddasFragment(sourceID uint32, timestamp uint64, channel DDASChannel) []byte {
	return EncodeFragment(FragmentHeader{Timestamp: timestamp, SourceID: sourceID}, EncodeDDAS(channel))
}

func gretinaFragment(timestamp uint64, crystal int32, energy float32) []byte {
	payload := GretinaPayload{CrystalID: crystal, TotE: energy, Num: 1, Timestamp: int64(timestamp)}
	payload.Intpts[0] = GretinaInteractionPoint{X: 1, Y: 2, Z: 3, E: energy}
	return EncodeFragment(FragmentHeader{Timestamp: timestamp, SourceID: 1}, EncodeGretinaPayload(payload))
}
