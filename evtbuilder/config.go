package main

import (
	"encoding/json"
	"fmt"
	"os"

	evtbuilder "github.com/next-exp/evtbuilder_go/pkg"
)

func LoadConfiguration(filename string) (evtbuilder.Configuration, error) {
	config := evtbuilder.DefaultConfiguration()

	data, err := os.ReadFile(filename)
	if err != nil {
		return config, err
	}
	// sources given in the file replace the default table
	if err := json.Unmarshal(data, &config); err != nil {
		return config, err
	}
	if config.NumWorkers < 1 {
		config.NumWorkers = 1
	}
	if config.QueueSize < 1 {
		config.QueueSize = 1
	}
	return config, nil
}

func printConfiguration(config evtbuilder.Configuration, logger Logger) {
	logger.Info(fmt.Sprintf("File in: %s", config.FileIn), "config")
	logger.Info(fmt.Sprintf("File out: %s", config.FileOut), "config")
	logger.Info(fmt.Sprintf("Write data: %t", config.WriteData), "config")
	logger.Info(fmt.Sprintf("Compression level: %d", config.CompressionLevel), "config")
	logger.Info(fmt.Sprintf("Skip: %d", config.Skip), "config")
	logger.Info(fmt.Sprintf("Max events: %d", config.MaxEvents), "config")
	logger.Info(fmt.Sprintf("Verbosity: %d", config.Verbosity), "config")
	logger.Info(fmt.Sprintf("No DB: %t", config.NoDB), "config")
	if config.NoDB {
		logger.Info(fmt.Sprintf("Channel map file: %s", config.ChannelMapFile), "config")
	} else {
		logger.Info(fmt.Sprintf("DB driver: %s", config.DBDriver), "config")
		logger.Info(fmt.Sprintf("Host: %s", config.Host), "config")
		logger.Info(fmt.Sprintf("DB name: %s", config.DBName), "config")
		logger.Info(fmt.Sprintf("DB path: %s", config.DBPath), "config")
	}
	logger.Info(fmt.Sprintf("Run number: %d", config.RunNumber), "config")
	logger.Info(fmt.Sprintf("Adjacency file: %s", config.AdjacencyFile), "config")
	for _, source := range config.Sources {
		logger.Info(fmt.Sprintf("Source %d: %s", source.SourceID, source.System), "config")
	}
	logger.Info(fmt.Sprintf("Number of workers: %d", config.NumWorkers), "config")
	logger.Info(fmt.Sprintf("Queue size: %d", config.QueueSize), "config")
	logger.Info(fmt.Sprintf("Parallel: %t", config.Parallel), "config")
	logger.Info(fmt.Sprintf("Diagnostic limit: %d", config.DiagnosticLimit), "config")
	logger.Info(fmt.Sprintf("Metrics address: %s", config.MetricsAddress), "config")
	logger.Info(fmt.Sprintf("Addback depth: %d", config.AddbackDepth), "config")
	logger.Info(fmt.Sprintf("Addback time gate: %.1f ns", config.AddbackTimeGate), "config")
	logger.Info(fmt.Sprintf("Janus: %+v", config.Janus), "config")
	logger.Info(fmt.Sprintf("Lenda: %+v", config.Lenda), "config")
	logger.Info(fmt.Sprintf("SeGA window: %.1f ns", config.SegaWindow), "config")
}
