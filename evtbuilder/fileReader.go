package main

import (
	"bufio"
	"fmt"
	"io"
	"os"

	evtbuilder "github.com/next-exp/evtbuilder_go/pkg"
)

type FileReader struct {
	File     *os.File
	reader   *bufio.Reader
	EvtCount int
}

func NewFileReader(file *os.File) *FileReader {
	return &FileReader{File: file, reader: bufio.NewReaderSize(file, 1<<20), EvtCount: -1}
}

// getNextBatch returns the next built event to process, honouring the skip
// and max_events settings. io.EOF marks the end of the run.
func (f *FileReader) getNextBatch() (evtbuilder.RawBatch, error) {
	for {
		data, err := evtbuilder.ReadBatch(f.reader)
		if err != nil {
			return evtbuilder.RawBatch{}, err
		}
		f.EvtCount++
		if f.EvtCount >= configuration.Skip+configuration.MaxEvents {
			if VerbosityLevel > 0 {
				logger.Info("Max events reached", "fileReader")
			}
			return evtbuilder.RawBatch{}, io.EOF
		}
		if f.EvtCount < configuration.Skip {
			if VerbosityLevel > 1 {
				message := fmt.Sprintf("Skipping event %d", f.EvtCount)
				logger.Info(message, "fileReader")
			}
			continue
		}
		if VerbosityLevel > 1 {
			message := fmt.Sprintf("Reading event %d (%d bytes)", f.EvtCount, len(data))
			logger.Info(message, "fileReader")
		}
		return evtbuilder.RawBatch{Number: uint64(f.EvtCount), Data: data}, nil
	}
}
