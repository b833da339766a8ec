package config

type LogConfig struct {
	LogLevel   string `json:"logLevel,omitempty" env:"LOG_LEVEL"`
	LogHandler string `json:"logHandler,omitempty" env:"LOG_HANDLER"`
}

func NewLogConfig() *LogConfig {
	return &LogConfig{
		LogLevel:   "info",
		LogHandler: "default",
	}
}
