/*
	Package config loads the TOML configuration of a pipeline run.

	[run]
	processes = 4
	gpus = 0
	max_frames_multiple = 16
	out_dir = "out"

	[chunking]
	ceiling = "1 MB"
	spread = false

	[store]
	engine = "hdf5"    # hdf5, dist, blob or memory
	path = "out/store"
	compression = "snappy"
	cache = "64 MB"

	[logging]
	logfile = "tomoflow.log"
	max_log_size = 100
	max_log_age = 30

	[kafka]
	servers = ["localhost:9092"]
	topic = "tomoflow"

	Relative paths are taken relative to the directory of the TOML file.
*/
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/dustin/go-humanize"

	"github.com/janelia-flyem/tomoflow/chunking"
	"github.com/janelia-flyem/tomoflow/tomo"
	"github.com/janelia-flyem/tomoflow/transport"
)

const (
	// DefaultMaxFramesMultiple is the frames per group used for plugins that
	// let the framework choose.
	DefaultMaxFramesMultiple = 16

	// DefaultOutDir receives the outputs of a run when no directory is given.
	DefaultOutDir = "out"
)

// RunConfig holds worker settings.
type RunConfig struct {
	Processes         int
	GPUs              int    `toml:"gpus"`
	MaxFramesMultiple int    `toml:"max_frames_multiple"`
	OutDir            string `toml:"out_dir"`

	// Checkpoint writes a checkpoint into OutDir after every stage.
	Checkpoint bool

	// Preview restricts the input dataset, one "start:stop:step" entry per
	// dimension.
	Preview []string
}

// ChunkingConfig holds the chunk size budget.
type ChunkingConfig struct {
	Ceiling string
	Spread  bool
}

// KafkaConfig describes kafka servers receiving run progress events.
type KafkaConfig struct {
	Servers    []string
	Topic      string
	BufferSize int `toml:"buffer_size"`
}

// Available returns true if events should be sent to kafka.
func (kc KafkaConfig) Available() bool {
	return len(kc.Servers) != 0
}

type storeConfig map[string]interface{}

// Config is the configuration of a run.
type Config struct {
	Run      RunConfig
	Chunking ChunkingConfig
	Store    storeConfig
	Logging  tomo.LogConfig
	Kafka    KafkaConfig

	location string
	content  string
}

// Default returns the configuration used without a TOML file.
func Default() *Config {
	return &Config{
		Run: RunConfig{
			Processes:         1,
			MaxFramesMultiple: DefaultMaxFramesMultiple,
			OutDir:            DefaultOutDir,
		},
		Store: storeConfig{"engine": transport.HDF5.String()},
	}
}

// Load reads a TOML configuration file.  Settings missing from the file keep
// their defaults.
func Load(filename string) (*Config, error) {
	if filename == "" {
		return nil, fmt.Errorf("no TOML configuration file provided")
	}
	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	c := Default()
	if _, err := toml.Decode(string(content), c); err != nil {
		return nil, fmt.Errorf("could not decode TOML config: %v", err)
	}
	c.location = filename
	c.content = string(content)
	tomo.Infof("tomlConfig: %v\n", *c)
	if err := c.convertPathsToAbsolute(filename); err != nil {
		return nil, fmt.Errorf("could not convert relative paths to absolute paths in TOML config: %v", err)
	}
	return c, c.Validate()
}

// Some settings in the TOML can be given as relative paths.
// This function converts them in-place to absolute paths,
// assuming the given paths were relative to the TOML file's own directory.
func (c *Config) convertPathsToAbsolute(configPath string) error {
	var err error

	configDir := filepath.Dir(configPath)

	// [run].out_dir
	if c.Run.OutDir != "" {
		c.Run.OutDir, err = tomo.ConvertToAbsolute(c.Run.OutDir, configDir)
		if err != nil {
			return fmt.Errorf("Error converting out_dir setting to absolute path")
		}
	}

	// [logging].logfile
	if c.Logging.Logfile != "" {
		c.Logging.Logfile, err = tomo.ConvertToAbsolute(c.Logging.Logfile, configDir)
		if err != nil {
			return fmt.Errorf("Error converting logfile setting to absolute path")
		}
	}

	// [store].path
	if p, ok := c.Store["path"]; ok {
		path, ok := p.(string)
		if !ok {
			return fmt.Errorf("Don't understand path setting for store")
		}
		if c.Store["path"], err = tomo.ConvertToAbsolute(path, configDir); err != nil {
			return fmt.Errorf("Error converting store.path to absolute path: %q", path)
		}
	}
	return nil
}

// Validate checks settings that can be checked without opening anything.
func (c *Config) Validate() error {
	if c.Run.Processes < 1 {
		return fmt.Errorf("run.processes must be positive, got %d", c.Run.Processes)
	}
	if c.Run.GPUs < 0 {
		return fmt.Errorf("run.gpus cannot be negative")
	}
	if c.Run.MaxFramesMultiple < 1 {
		return fmt.Errorf("run.max_frames_multiple must be positive, got %d", c.Run.MaxFramesMultiple)
	}
	if _, err := c.ChunkCalculator(); err != nil {
		return err
	}
	if _, _, err := c.Transport(); err != nil {
		return err
	}
	return nil
}

// Location returns the TOML file the configuration came from, if any.
func (c *Config) Location() string {
	return c.location
}

// Content returns the raw TOML.
func (c *Config) Content() string {
	return c.content
}

// ChunkCalculator returns the chunk shape calculator for the run.
func (c *Config) ChunkCalculator() (chunking.Calculator, error) {
	calc := chunking.NewCalculator(c.Run.Processes)
	calc.Spread = c.Chunking.Spread
	if c.Chunking.Ceiling != "" {
		n, err := humanize.ParseBytes(c.Chunking.Ceiling)
		if err != nil {
			return calc, fmt.Errorf("bad chunking.ceiling %q: %v", c.Chunking.Ceiling, err)
		}
		if n == 0 {
			return calc, fmt.Errorf("chunking.ceiling must be positive")
		}
		calc.Ceiling = n
	}
	return calc, nil
}

// SetEngine overrides the store engine.
func (c *Config) SetEngine(kind transport.Kind) {
	if c.Store == nil {
		c.Store = storeConfig{}
	}
	c.Store["engine"] = kind.String()
}

// Transport returns the store engine and its settings.  The hdf5 engine
// writes into the output directory unless a path is given.
func (c *Config) Transport() (transport.Kind, tomo.Config, error) {
	settings := tomo.NewConfig()
	for k, v := range c.Store {
		settings.Set(k, v)
	}
	engine, _, err := settings.GetString("engine")
	if err != nil {
		return transport.HDF5, nil, err
	}
	if engine == "" {
		engine = transport.HDF5.String()
	}
	kind, err := transport.ParseKind(engine)
	if err != nil {
		return kind, nil, err
	}
	if _, found := settings["path"]; !found && (kind == transport.HDF5 || kind == transport.Dist) {
		dir := c.Run.OutDir
		if kind == transport.Dist {
			dir = filepath.Join(dir, "store")
		}
		settings.Set("path", dir)
	}
	return kind, settings, nil
}

func (c *Config) String() string {
	kind, _, _ := c.Transport()
	return fmt.Sprintf("%d processes, %d GPUs, store %s, output %s",
		c.Run.Processes, c.Run.GPUs, kind, c.Run.OutDir)
}

// Summary lists settings one per line for logging.
func (c *Config) Summary() string {
	var lines []string
	lines = append(lines, fmt.Sprintf("processes: %d", c.Run.Processes))
	lines = append(lines, fmt.Sprintf("gpus: %d", c.Run.GPUs))
	lines = append(lines, fmt.Sprintf("max frames multiple: %d", c.Run.MaxFramesMultiple))
	lines = append(lines, fmt.Sprintf("output directory: %s", c.Run.OutDir))
	if c.Run.Checkpoint {
		lines = append(lines, "checkpoint after every stage")
	}
	if len(c.Run.Preview) != 0 {
		lines = append(lines, fmt.Sprintf("input preview: %s", strings.Join(c.Run.Preview, ", ")))
	}
	if calc, err := c.ChunkCalculator(); err == nil {
		lines = append(lines, fmt.Sprintf("chunk budget: %s", tomo.Bytes(calc.Budget())))
	}
	if c.Kafka.Available() {
		lines = append(lines, fmt.Sprintf("kafka: %s on %v", c.Kafka.Topic, c.Kafka.Servers))
	}
	return strings.Join(lines, "\n")
}
