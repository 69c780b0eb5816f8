package log

// LoggerConfig configures the process logger.
type LoggerConfig struct {
	Level   string          `mapstructure:"level" yaml:"level"`
	Pattern string          `mapstructure:"pattern" yaml:"pattern"`
	Time    string          `mapstructure:"time" yaml:"time"`
	File    FileAppenderOpt `mapstructure:"file" yaml:"file"`
}

const (
	DefaultPattern = "%time [%level] %caller %field: %msg%n"
	DefaultTime    = "2006-01-02 15:04:05.000"
)
