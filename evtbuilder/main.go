package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	evtbuilder "github.com/next-exp/evtbuilder_go/pkg"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

var configuration evtbuilder.Configuration

var (
	logger         Logger
	VerbosityLevel int
)

func init() {
	opts := &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}
	handlerStdOut := NewHandler(os.Stdout, opts)
	handlerStdErr := slog.NewJSONHandler(os.Stderr, opts)
	logger = Logger{
		InfoLog:  slog.New(handlerStdOut),
		ErrorLog: slog.New(handlerStdErr),
	}
}

func main() {
	configFilename := flag.String("config", "", "Configuration file path")
	flag.Parse()

	var err error
	configuration, err = LoadConfiguration(*configFilename)
	if err != nil {
		message := fmt.Errorf("Error reading configuration file: %w", err)
		logger.Error(message.Error())
		os.Exit(1)
	}
	evtbuilder.SetConfiguration(configuration)
	evtbuilder.SetLogger(logger)

	VerbosityLevel = configuration.Verbosity
	if VerbosityLevel > 0 {
		message := fmt.Sprintf("Reading configuration file: %s", *configFilename)
		logger.Info(message, "main")
		printConfiguration(configuration, logger)
	}

	if err := run(); err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}
}

func loadChannelMap() (*evtbuilder.ChannelMap, error) {
	if configuration.NoDB {
		return evtbuilder.LoadChannelMapFile(configuration.ChannelMapFile)
	}
	dbConn, err := evtbuilder.ConnectToDatabase(configuration)
	if err != nil {
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}
	defer dbConn.Close()
	return evtbuilder.LoadChannelMapFromDB(dbConn, configuration.RunNumber)
}

func serveMetrics(reg *prometheus.Registry) {
	if configuration.MetricsAddress == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	go func() {
		if err := http.ListenAndServe(configuration.MetricsAddress, mux); err != nil {
			logger.Error(fmt.Sprintf("metrics server stopped: %v", err))
		}
	}()
}

func run() error {
	start := time.Now()
	reg := prometheus.NewRegistry()
	metrics := evtbuilder.NewMetrics(reg)
	serveMetrics(reg)

	channelMap, err := evtbuilder.InitChannelMap(loadChannelMap)
	if err != nil {
		return fmt.Errorf("error loading channel map: %w", err)
	}
	if VerbosityLevel > 0 {
		message := fmt.Sprintf("Channel map with %d channels", channelMap.Len())
		logger.Info(message, "main")
	}

	fragmentDecoder, err := evtbuilder.NewFragmentDecoder(configuration.Sources)
	if err != nil {
		return fmt.Errorf("error in sources table: %w", err)
	}
	assembler := evtbuilder.NewDefaultAssembler(configuration, channelMap, evtbuilder.GetCrystalAdjacency(), metrics)
	router := evtbuilder.NewFragmentRouter(fragmentDecoder, channelMap, assembler, metrics, configuration.DiagnosticLimit)
	pipeline := evtbuilder.NewPipeline(router, configuration.NumWorkers, configuration.QueueSize, metrics)

	file, err := os.Open(configuration.FileIn)
	if err != nil {
		return &evtbuilder.ErrOpenFile{Filename: configuration.FileIn, Err: err}
	}
	defer file.Close()
	fileReader := NewFileReader(file)

	var writer *Writer
	if configuration.WriteData {
		writer, err = NewWriter(configuration.FileOut, configuration.CompressionLevel)
		if err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	batches := make(chan evtbuilder.RawBatch, configuration.QueueSize)
	events := make(chan *evtbuilder.AssembledEvent, configuration.QueueSize)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return sendBatchesToPipeline(ctx, fileReader, batches)
	})
	group.Go(func() error {
		return pipeline.Run(ctx, batches, events)
	})
	group.Go(func() error {
		return processEvents(events, writer)
	})
	err = group.Wait()

	if writer != nil {
		if closeErr := writer.Close(); closeErr != nil {
			err = errors.Join(err, closeErr)
		}
	}
	if VerbosityLevel > 0 {
		message := fmt.Sprintf("Total time: %d ms", time.Since(start).Milliseconds())
		logger.Info(message, "main")
	}
	return err
}

// sendBatchesToPipeline feeds the pipeline until the file ends. A corrupted
// record stops the run.
func sendBatchesToPipeline(ctx context.Context, fileReader *FileReader, batches chan<- evtbuilder.RawBatch) error {
	defer close(batches)
	for {
		batch, err := fileReader.getNextBatch()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("error reading event %d: %w", fileReader.EvtCount+1, err)
		}
		select {
		case batches <- batch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func processEvents(events <-chan *evtbuilder.AssembledEvent, writer *Writer) error {
	evtsProcessed := 0
	for event := range events {
		if VerbosityLevel > 1 {
			message := fmt.Sprintf("Processed event %d with %d systems", event.Number, len(event.Detectors))
			logger.Info(message, "writer")
		}
		if writer != nil {
			if err := writer.WriteEvent(event); err != nil {
				logger.Error(fmt.Errorf("error writing event %d: %w", event.Number, err).Error())
			}
		}
		evtsProcessed++
	}
	if VerbosityLevel > 0 {
		message := fmt.Sprintf("Total events written: %d", evtsProcessed)
		logger.Info(message, "main")
	}
	return nil
}
