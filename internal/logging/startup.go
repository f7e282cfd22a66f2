package logging

import (
	"os"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// StartupLogger collects process identity, directories, feature flags and
// configuration, then emits a single structured zerolog event summarising
// how the process was started.
type StartupLogger struct {
	name         string
	version      string
	initDuration time.Duration

	dirs     map[string]string
	features map[string]bool
	config   map[string]string
}

// NewStartupLogger creates a StartupLogger for the given command name
// (e.g. "serve", "run").
func NewStartupLogger(name string) *StartupLogger {
	return &StartupLogger{
		name:     name,
		dirs:     make(map[string]string),
		features: make(map[string]bool),
		config:   make(map[string]string),
	}
}

// Version sets the build version baked into the binary.
func (s *StartupLogger) Version(v string) *StartupLogger {
	s.version = v
	return s
}

// Dir registers a filesystem location used by the process.
func (s *StartupLogger) Dir(label, path string) *StartupLogger {
	s.dirs[label] = path
	return s
}

// Feature registers a boolean feature flag (e.g. "s3Publish").
func (s *StartupLogger) Feature(name string, enabled bool) *StartupLogger {
	s.features[name] = enabled
	return s
}

// Config registers a non-sensitive configuration key-value pair.
// Never pass tokens here.
func (s *StartupLogger) Config(key, value string) *StartupLogger {
	s.config[key] = value
	return s
}

// InitDuration records how long startup wiring took.
func (s *StartupLogger) InitDuration(d time.Duration) *StartupLogger {
	s.initDuration = d
	return s
}

// EnvOrDefault returns the value of the named environment variable, or
// defaultVal if the variable is empty or unset.
func EnvOrDefault(envVar, defaultVal string) string {
	if v := os.Getenv(envVar); v != "" {
		return v
	}
	return defaultVal
}

// Log emits a single structured INFO log event with all collected information.
func (s *StartupLogger) Log() {
	evt := log.Info()

	process := zerolog.Dict().
		Str("name", s.name).
		Int("pid", os.Getpid()).
		Str("goVersion", runtime.Version()).
		Str("arch", runtime.GOARCH).
		Int("cpus", runtime.NumCPU()).
		Str("logLevel", os.Getenv("ARTFRAME_LOG_LEVEL"))
	if s.version != "" {
		process = process.Str("version", s.version)
	}
	evt = evt.Dict("process", process)

	if len(s.dirs) > 0 {
		evt = evt.Dict("dirs", dictFromMap(s.dirs))
	}

	if len(s.features) > 0 {
		d := zerolog.Dict()
		for k, v := range s.features {
			d = d.Bool(k, v)
		}
		evt = evt.Dict("features", d)
	}

	if len(s.config) > 0 {
		evt = evt.Dict("config", dictFromMap(s.config))
	}

	if s.initDuration > 0 {
		evt = evt.Dur("initDuration", s.initDuration)
	}

	evt.Msg("Startup complete")
}

// dictFromMap converts a map[string]string into a zerolog.Event (Dict).
func dictFromMap(m map[string]string) *zerolog.Event {
	d := zerolog.Dict()
	for k, v := range m {
		d = d.Str(k, v)
	}
	return d
}
