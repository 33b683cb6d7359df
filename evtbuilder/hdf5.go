package main

import (
	"fmt"

	hdf5 "github.com/jmbenlloch/go-hdf5"
)

type EventDataHDF5 struct {
	evt_number int64
	timestamp  uint64
	fragments  int32
	dropped    int32
}

type CrystalHDF5 struct {
	evt_number int64
	crystal    int32
	energy     float64
	raw_energy float64
	timestamp  uint64
	t0         float64
	npoints    int32
}

type AddbackHDF5 struct {
	evt_number   int64
	energy       float64
	crystal      int32
	multiplicity int32
	depth        int32
	timestamp    uint64
	x            float64
	y            float64
	z            float64
}

type JanusHDF5 struct {
	evt_number  int64
	module      int32
	ring        int32
	sector      int32
	energy      float64
	charge      float64
	back_charge float64
	timestamp   uint64
	multi       int8
	x           float64
	y           float64
	z           float64
}

type LendaHDF5 struct {
	evt_number    int64
	bar           int32
	top_charge    float64
	bottom_charge float64
	energy        float64
	timestamp     uint64
	dt            int64
}

type SegaHDF5 struct {
	evt_number   int64
	detector     int32
	energy       float64
	charge       float64
	core         int8
	nsegments    int32
	main_segment int32
	timestamp    uint64
}

type ChannelHDF5 struct {
	evt_number int64
	system     int32
	address    uint32
	detector   int32
	segment    int32
	energy     float64
	charge     float64
	timestamp  uint64
}

// ErrCreateGroup represents an error when creating a group.
type ErrCreateGroup struct {
	GroupName string
	Err       error
}

func (e *ErrCreateGroup) Error() string {
	return fmt.Sprintf("error creating group %q: %v", e.GroupName, e.Err)
}

// ErrCreateTable represents an error when creating a table.
type ErrCreateTable struct {
	TableName string
	Err       error
}

func (e *ErrCreateTable) Error() string {
	return fmt.Sprintf("error creating table %q: %v", e.TableName, e.Err)
}

// table is an extensible one dimensional dataset of compound rows.
type table struct {
	dataset *hdf5.Dataset
	rows    uint
}

func createGroup(file *hdf5.File, groupName string) (*hdf5.Group, error) {
	g, err := file.CreateGroup(groupName)
	if err != nil {
		return nil, &ErrCreateGroup{GroupName: groupName, Err: err}
	}
	return g, nil
}

func createTable(group *hdf5.Group, name string, datatype interface{}, compression int) (*table, error) {
	dims := []uint{0}
	unlimitedDims := -1 // H5S_UNLIMITED is -1L
	maxDims := []uint{uint(unlimitedDims)}
	fileSpace, err := hdf5.CreateSimpleDataspace(dims, maxDims)
	if err != nil {
		return nil, &ErrCreateTable{TableName: name, Err: err}
	}
	defer fileSpace.Close()

	plist, err := hdf5.NewPropList(hdf5.P_DATASET_CREATE)
	if err != nil {
		return nil, &ErrCreateTable{TableName: name, Err: err}
	}
	defer plist.Close()

	chunks := []uint{32768}
	if err := plist.SetChunk(chunks); err != nil {
		return nil, &ErrCreateTable{TableName: name, Err: err}
	}
	if compression > 0 {
		if err := plist.SetDeflate(compression); err != nil {
			return nil, &ErrCreateTable{TableName: name, Err: err}
		}
	}

	dtype, err := hdf5.NewDatatypeFromValue(datatype)
	if err != nil {
		return nil, &ErrCreateTable{TableName: name, Err: err}
	}

	dset, err := group.CreateDatasetWith(name, dtype, fileSpace, plist)
	if err != nil {
		return nil, &ErrCreateTable{TableName: name, Err: err}
	}
	return &table{dataset: dset}, nil
}

// writeArrayToTable appends data at the end of t.
func writeArrayToTable[T any](t *table, data *[]T) error {
	length := uint(len(*data))
	if length == 0 {
		return nil
	}
	dims := []uint{length}
	dataspace, err := hdf5.CreateSimpleDataspace(dims, nil)
	if err != nil {
		return fmt.Errorf("error creating memory space: %w", err)
	}
	defer dataspace.Close()

	newsize := []uint{t.rows + length}
	if err := t.dataset.Resize(newsize); err != nil {
		return fmt.Errorf("error extending table: %w", err)
	}
	filespace := t.dataset.Space()
	defer filespace.Close()

	start := []uint{t.rows}
	count := []uint{length}
	if err := filespace.SelectHyperslab(start, nil, count, nil); err != nil {
		return fmt.Errorf("error selecting rows: %w", err)
	}
	if err := t.dataset.WriteSubset(data, dataspace, filespace); err != nil {
		return fmt.Errorf("error writing rows: %w", err)
	}
	t.rows += length
	return nil
}

func writeEntryToTable[T any](t *table, data T) error {
	array := []T{data}
	return writeArrayToTable(t, &array)
}
