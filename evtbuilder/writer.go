package main

import (
	"errors"
	"fmt"

	hdf5 "github.com/jmbenlloch/go-hdf5"
	evtbuilder "github.com/next-exp/evtbuilder_go/pkg"
)

// Writer stores the reconstructed hits of every event in an HDF5 file, one
// table per hit type. Rows carry the event number to join them.
type Writer struct {
	File         *hdf5.File
	Filename     string
	Groups       []*hdf5.Group
	EventTable   *table
	CrystalTable *table
	AddbackTable *table
	JanusTable   *table
	LendaTable   *table
	SegaTable    *table
	ChannelTable *table
	EvtCounter   int
}

func NewWriter(filename string, compression int) (*Writer, error) {
	file, err := hdf5.CreateFile(filename, hdf5.F_ACC_TRUNC)
	if err != nil {
		return nil, &evtbuilder.ErrOpenFile{Filename: filename, Err: err}
	}
	writer := &Writer{File: file, Filename: filename}

	groups := make(map[string]*hdf5.Group)
	for _, name := range []string{"Run", "Gretina", "Janus", "Lenda", "Sega", "DDAS"} {
		group, err := createGroup(file, name)
		if err != nil {
			writer.Close()
			return nil, err
		}
		groups[name] = group
		writer.Groups = append(writer.Groups, group)
	}

	tables := []struct {
		target   **table
		group    string
		name     string
		datatype interface{}
	}{
		{&writer.EventTable, "Run", "events", EventDataHDF5{}},
		{&writer.CrystalTable, "Gretina", "crystals", CrystalHDF5{}},
		{&writer.AddbackTable, "Gretina", "addback", AddbackHDF5{}},
		{&writer.JanusTable, "Janus", "hits", JanusHDF5{}},
		{&writer.LendaTable, "Lenda", "bars", LendaHDF5{}},
		{&writer.SegaTable, "Sega", "hits", SegaHDF5{}},
		{&writer.ChannelTable, "DDAS", "channels", ChannelHDF5{}},
	}
	for _, t := range tables {
		created, err := createTable(groups[t.group], t.name, t.datatype, compression)
		if err != nil {
			writer.Close()
			return nil, err
		}
		*t.target = created
	}
	return writer, nil
}

func (w *Writer) WriteEvent(event *evtbuilder.AssembledEvent) error {
	number := int64(event.Number)
	var errs []error
	errs = append(errs, writeEntryToTable(w.EventTable, EventDataHDF5{
		evt_number: number,
		timestamp:  event.Timestamp,
		fragments:  int32(event.Fragments),
		dropped:    int32(event.Dropped),
	}))

	if gretina := event.Gretina(); gretina != nil {
		errs = append(errs, w.writeGretina(number, gretina)...)
	}
	if janus := event.Janus(); janus != nil {
		errs = append(errs, w.writeJanus(number, janus))
	}
	if lenda := event.Lenda(); lenda != nil {
		errs = append(errs, w.writeLenda(number, lenda))
	}
	if sega := event.Sega(); sega != nil {
		errs = append(errs, w.writeSega(number, sega))
	}
	errs = append(errs, w.writeSingleChannels(number, event))
	w.EvtCounter++
	return errors.Join(errs...)
}

func (w *Writer) writeGretina(number int64, gretina *evtbuilder.Gretina) []error {
	crystals := make([]CrystalHDF5, len(gretina.Hits))
	for i, hit := range gretina.Hits {
		crystals[i] = CrystalHDF5{
			evt_number: number,
			crystal:    int32(hit.CrystalID),
			energy:     hit.Energy,
			raw_energy: hit.RawEnergy,
			timestamp:  hit.Timestamp,
			t0:         hit.T0,
			npoints:    int32(len(hit.Points)),
		}
	}

	addback := gretina.Addback()
	rows := make([]AddbackHDF5, len(addback))
	for i, hit := range addback {
		row := AddbackHDF5{
			evt_number:   number,
			energy:       hit.Energy,
			crystal:      int32(hit.CrystalIDs[0]),
			multiplicity: int32(hit.Multiplicity()),
			depth:        int32(hit.Depth),
			timestamp:    hit.Timestamp,
		}
		if len(hit.Points) > 0 {
			position := hit.Points[0].Position
			row.x, row.y, row.z = position.X, position.Y, position.Z
		}
		rows[i] = row
	}
	return []error{
		writeArrayToTable(w.CrystalTable, &crystals),
		writeArrayToTable(w.AddbackTable, &rows),
	}
}

func (w *Writer) writeJanus(number int64, janus *evtbuilder.Janus) error {
	rows := make([]JanusHDF5, len(janus.Hits))
	for i, hit := range janus.Hits {
		position := janus.Position(hit)
		var multi int8
		if hit.Multi {
			multi = 1
		}
		rows[i] = JanusHDF5{
			evt_number:  number,
			module:      int32(hit.Module),
			ring:        int32(hit.Ring),
			sector:      int32(hit.Sector),
			energy:      hit.Energy,
			charge:      hit.Charge,
			back_charge: hit.BackCharge,
			timestamp:   hit.Timestamp,
			multi:       multi,
			x:           position.X,
			y:           position.Y,
			z:           position.Z,
		}
	}
	return writeArrayToTable(w.JanusTable, &rows)
}

func (w *Writer) writeLenda(number int64, lenda *evtbuilder.Lenda) error {
	rows := make([]LendaHDF5, len(lenda.Bars))
	for i, bar := range lenda.Bars {
		rows[i] = LendaHDF5{
			evt_number:    number,
			bar:           int32(bar.Bar()),
			top_charge:    bar.Top.Charge,
			bottom_charge: bar.Bottom.Charge,
			energy:        bar.Top.Energy,
			timestamp:     bar.Top.Timestamp,
			dt:            int64(bar.Top.Timestamp) - int64(bar.Bottom.Timestamp),
		}
	}
	return writeArrayToTable(w.LendaTable, &rows)
}

func (w *Writer) writeSega(number int64, sega *evtbuilder.Sega) error {
	rows := make([]SegaHDF5, len(sega.Hits))
	for i, hit := range sega.Hits {
		var core int8
		if hit.HasCore {
			core = 1
		}
		rows[i] = SegaHDF5{
			evt_number:   number,
			detector:     int32(hit.Detector),
			energy:       hit.Energy,
			charge:       hit.Charge,
			core:         core,
			nsegments:    int32(len(hit.Segments)),
			main_segment: int32(hit.MainSegment()),
			timestamp:    hit.Timestamp,
		}
	}
	return writeArrayToTable(w.SegaTable, &rows)
}

func (w *Writer) writeSingleChannels(number int64, event *evtbuilder.AssembledEvent) error {
	rows := make([]ChannelHDF5, 0)
	appendHits := func(system evtbuilder.SystemTag, hits []evtbuilder.SingleChannelHit) {
		for _, hit := range hits {
			rows = append(rows, ChannelHDF5{
				evt_number: number,
				system:     int32(system),
				address:    hit.Address,
				detector:   int32(hit.Detector),
				segment:    int32(hit.Segment),
				energy:     hit.Energy,
				charge:     hit.Charge,
				timestamp:  hit.Timestamp,
			})
		}
	}
	for system, detector := range event.Detectors {
		switch d := detector.(type) {
		case *evtbuilder.Sun:
			appendHits(system, d.Hits)
		case *evtbuilder.DDASDetector:
			appendHits(system, d.Hits)
		}
	}
	return writeArrayToTable(w.ChannelTable, &rows)
}

func (w *Writer) Close() error {
	if configuration.Verbosity > 0 {
		logger.Info(fmt.Sprintf("Closing file %s after %d events", w.Filename, w.EvtCounter), "writer")
	}
	var errs []error
	tables := map[string]*table{
		"events":   w.EventTable,
		"crystals": w.CrystalTable,
		"addback":  w.AddbackTable,
		"janus":    w.JanusTable,
		"lenda":    w.LendaTable,
		"sega":     w.SegaTable,
		"channels": w.ChannelTable,
	}
	for name, t := range tables {
		if t == nil {
			continue
		}
		if err := t.dataset.Close(); err != nil {
			errs = append(errs, fmt.Errorf("error closing %s table: %w", name, err))
		}
	}
	for _, group := range w.Groups {
		if err := group.Close(); err != nil {
			errs = append(errs, fmt.Errorf("error closing group: %w", err))
		}
	}
	if err := w.File.Close(); err != nil {
		errs = append(errs, fmt.Errorf("error closing file: %w", err))
	}
	return errors.Join(errs...)
}
