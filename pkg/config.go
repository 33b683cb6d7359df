package evtbuilder

type SourceConfig struct {
	SourceID uint32 `json:"source_id"`
	System   string `json:"system"`
}

type Configuration struct {
	MaxEvents        int              `json:"max_events"`
	Skip             int              `json:"skip"`
	Verbosity        int              `json:"verbosity"`
	FileIn           string           `json:"file_in"`
	FileOut          string           `json:"file_out"`
	WriteData        bool             `json:"write_data"`
	CompressionLevel int              `json:"compression_level"`
	NoDB             bool             `json:"no_db"`
	DBDriver         string           `json:"db_driver"`
	Host             string           `json:"host"`
	User             string           `json:"user"`
	Passwd           string           `json:"pass"`
	DBName           string           `json:"dbname"`
	DBPath           string           `json:"db_path"`
	RunNumber        int              `json:"run_number"`
	ChannelMapFile   string           `json:"channel_map_file"`
	AdjacencyFile    string           `json:"adjacency_file"`
	Sources          []SourceConfig   `json:"sources"`
	NumWorkers       int              `json:"num_workers"`
	QueueSize        int              `json:"queue_size"`
	Parallel         bool             `json:"parallel"`
	DiagnosticLimit  int              `json:"diagnostic_limit"`
	MetricsAddress   string           `json:"metrics_address"`
	AddbackDepth     int              `json:"addback_depth"`
	AddbackTimeGate  float64          `json:"addback_time_gate"`
	Janus            StripMatchParams `json:"janus"`
	Lenda            LendaParams      `json:"lenda"`
	SegaWindow       float64          `json:"sega_window"`
}

// DefaultConfiguration holds the values used for every field the
// configuration file leaves out.
func DefaultConfiguration() Configuration {
	return Configuration{
		MaxEvents:        1000000000,
		Skip:             0,
		Verbosity:        0,
		WriteData:        true,
		CompressionLevel: 4,
		NoDB:             false,
		DBDriver:         "mysql",
		Host:             "localhost",
		User:             "reader",
		Passwd:           "readonly",
		DBName:           "CHANNELS",
		RunNumber:        0,
		NumWorkers:       1,
		QueueSize:        64,
		Parallel:         false,
		DiagnosticLimit:  10,
		AddbackDepth:     3,
		AddbackTimeGate:  50,
		Janus:            DefaultStripMatchParams(),
		Lenda:            DefaultLendaParams(),
		SegaWindow:       2000,
		Sources: []SourceConfig{
			{SourceID: 1, System: "GRETINA"},
			{SourceID: 21, System: "LENDA"},
			{SourceID: 64, System: "SEGA"},
			{SourceID: 65, System: "JANUS"},
			{SourceID: 70, System: "SUN"},
		},
	}
}

var configuration = DefaultConfiguration()

func GetConfiguration() Configuration {
	return configuration
}

func SetConfiguration(config Configuration) {
	configuration = config
}
