package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

const (
	traceLogLevel = "TRACE"
	debugLogLevel = "DEBUG"
	infoLogLevel  = "INFO"
	warnLogLevel  = "WARN"
	errorLogLevel = "ERROR"

	// DefaultPollInterval is how often the watched files are stat'ed.
	DefaultPollInterval = 50 * time.Millisecond
)

var logLevels = map[string]struct{}{
	traceLogLevel: {},
	debugLogLevel: {},
	infoLogLevel:  {},
	warnLogLevel:  {},
	errorLogLevel: {},
}

var descriptorExts = map[string]struct{}{
	".json": {},
	".yaml": {},
	".yml":  {},
	".toml": {},
}

// Config configures the live reload.
type Config struct {
	// The program to launch and watch.
	AppFile string `json:"appFile" yaml:"appFile" toml:"appFile"`
	// Watch every file below the directory of AppFile.
	TrackFolder bool `json:"trackFolder" yaml:"trackFolder" toml:"trackFolder"`
	// Watched paths containing one of these substrings are dropped.
	ExcludeFiles []string `json:"excludeFiles" yaml:"excludeFiles" toml:"excludeFiles"`
	// Watched paths matching one of these globs are dropped.
	ExcludePatterns []string `json:"excludePatterns" yaml:"excludePatterns" toml:"excludePatterns"`
	// Extra paths to watch.
	ExtraIncludeFiles []string `json:"extraIncludeFiles" yaml:"extraIncludeFiles" toml:"extraIncludeFiles"`
	// The argv prefix used to launch AppFile, e.g. ["python3", "-u"].
	// AppFile is executed directly when empty.
	Command []string `json:"command" yaml:"command" toml:"command"`
	// Arguments passed to AppFile.
	Args []string `json:"args" yaml:"args" toml:"args"`
	// Time between two checks of the watched files, e.g. "50ms".
	PollInterval string `json:"pollInterval" yaml:"pollInterval" toml:"pollInterval"`
	// The log level to use
	LogLevel string `json:"logLevel" yaml:"logLevel" toml:"logLevel"`
	// Use filesystem notifications to check sooner than the next poll.
	Notify *bool `json:"notify" yaml:"notify" toml:"notify"`

	interval time.Duration
}

// IsDescriptor reports whether path names a descriptor file rather than a program.
func IsDescriptor(path string) bool {
	_, ok := descriptorExts[strings.ToLower(filepath.Ext(path))]
	return ok
}

// ForTarget returns the configuration for running a program without descriptor.
func ForTarget(path string) Config {
	return Config{AppFile: path}
}

// ParseFromFile reads a descriptor file. The format is picked by its extension.
// The returned config isn't validated yet.
func ParseFromFile(path string) (Config, error) {
	var c Config

	fileBytes, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(fileBytes, &c)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(fileBytes, &c)
	case ".toml":
		_, err = toml.Decode(string(fileBytes), &c)
	default:
		return c, fmt.Errorf("unsupported descriptor extension %q", filepath.Ext(path))
	}
	if err != nil {
		return c, fmt.Errorf("decode %s: %w", path, err)
	}

	if strings.TrimSpace(c.AppFile) == "" {
		c.AppFile = path
	}

	return c, nil
}

// Validate cleans the config and fills in the defaults.
func (c *Config) Validate() error {
	c.AppFile = strings.TrimSpace(c.AppFile)
	if c.AppFile == "" {
		return fmt.Errorf("appFile is empty")
	}

	appFile, err := filepath.Abs(c.AppFile)
	if err != nil {
		return fmt.Errorf("can't resolve appFile %s: %w", c.AppFile, err)
	}
	c.AppFile = appFile

	includes := make([]string, 0, len(c.ExtraIncludeFiles))
	for _, p := range c.ExtraIncludeFiles {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("can't resolve extra include %s: %w", p, err)
		}
		includes = append(includes, abs)
	}
	c.ExtraIncludeFiles = includes

	// Empty substrings would exclude everything.
	c.ExcludeFiles = nonEmpty(c.ExcludeFiles)
	c.ExcludePatterns = nonEmpty(c.ExcludePatterns)
	c.Command = nonEmpty(c.Command)

	c.PollInterval = strings.TrimSpace(c.PollInterval)
	if c.PollInterval == "" {
		c.interval = DefaultPollInterval
	} else {
		d, err := time.ParseDuration(c.PollInterval)
		if err != nil {
			return fmt.Errorf("pollInterval: %w", err)
		}
		if d <= 0 {
			return fmt.Errorf("pollInterval must be positive, got %s", d)
		}
		c.interval = d
	}

	c.LogLevel = strings.ToUpper(strings.TrimSpace(c.LogLevel))
	if c.LogLevel == "" {
		c.LogLevel = infoLogLevel
	} else if _, ok := logLevels[c.LogLevel]; !ok {
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}

	if c.Notify == nil {
		notify := true
		c.Notify = &notify
	}

	return nil
}

// Interval returns the validated poll interval.
func (c Config) Interval() time.Duration {
	if c.interval <= 0 {
		return DefaultPollInterval
	}
	return c.interval
}

// NotifyEnabled reports whether filesystem notifications should be used.
func (c Config) NotifyEnabled() bool {
	return c.Notify == nil || *c.Notify
}

// LaunchArgv is the full command line of the child.
func (c Config) LaunchArgv() []string {
	argv := make([]string, 0, len(c.Command)+1+len(c.Args))
	argv = append(argv, c.Command...)
	argv = append(argv, c.AppFile)
	argv = append(argv, c.Args...)
	return argv
}

func nonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
