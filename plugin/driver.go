package plugin

import (
	"fmt"
	"strings"

	"github.com/janelia-flyem/tomoflow/pattern"
)

// Driver is how a plugin is executed by the worker ranks of a stage.
type Driver uint8

const (
	// CPU plugins run on every rank.
	CPU Driver = iota

	// GPU plugins run on one rank per available device.
	GPU

	// MultiThreaded plugins run on a single rank that may use all cores.
	MultiThreaded
)

func (d Driver) String() string {
	switch d {
	case CPU:
		return "cpu"
	case GPU:
		return "gpu"
	case MultiThreaded:
		return "multithreaded"
	default:
		return fmt.Sprintf("unknown driver %d", uint8(d))
	}
}

// ParseDriver returns the driver with the given name.
func ParseDriver(s string) (Driver, error) {
	switch strings.ToLower(s) {
	case "cpu", "":
		return CPU, nil
	case "gpu":
		return GPU, nil
	case "multithreaded", "threaded":
		return MultiThreaded, nil
	default:
		return CPU, fmt.Errorf("unknown plugin driver %q", s)
	}
}

// Ranks returns how many of procs worker ranks execute a plugin with this
// driver when gpus devices are available.
func (d Driver) Ranks(procs, gpus int) int {
	if procs < 1 {
		return 1
	}
	switch d {
	case GPU:
		if gpus < 1 {
			gpus = 1
		}
		if gpus < procs {
			return gpus
		}
		return procs
	case MultiThreaded:
		return 1
	default:
		return procs
	}
}

// Kernel is the kind of processing a plugin performs.  It decides which
// pattern outputs default to.
type Kernel uint8

const (
	Filter Kernel = iota
	TimeseriesCorrection
	Reconstruction
)

// kernelOutputs maps each kernel to its output pattern rule.
var kernelOutputs = [...]func(in string) string{
	Filter:               func(in string) string { return in },
	TimeseriesCorrection: func(string) string { return pattern.Projection },
	Reconstruction:       func(string) string { return pattern.VolumeXZ },
}

var kernelNames = [...]string{"filter", "timeseries_correction", "reconstruction"}

func (k Kernel) String() string {
	if int(k) < len(kernelNames) {
		return kernelNames[k]
	}
	return fmt.Sprintf("unknown kernel %d", uint8(k))
}

// OutputPattern returns the output pattern for input read with pattern in.
func (k Kernel) OutputPattern(in string) string {
	if int(k) < len(kernelOutputs) {
		return kernelOutputs[k](in)
	}
	return in
}
