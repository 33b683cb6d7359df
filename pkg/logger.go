package evtbuilder

type Logger interface {
	Info(message string, module string)
	Error(string)
}

var logger Logger = silentLogger{}

func SetLogger(l Logger) {
	if l == nil {
		l = silentLogger{}
	}
	logger = l
}

// silentLogger is used until the executable installs its own logger.
type silentLogger struct{}

func (silentLogger) Info(message string, module string) {}
func (silentLogger) Error(message string)               {}
