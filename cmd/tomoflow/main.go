// Command-line interface to the tomoflow pipeline runner.
// Runs a process list over an input dataset: tomoflow <input> <process_list.json> <out_dir>

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/janelia-flyem/tomoflow/config"
	"github.com/janelia-flyem/tomoflow/dataset"
	"github.com/janelia-flyem/tomoflow/plugin/builtin"
	"github.com/janelia-flyem/tomoflow/process"
	"github.com/janelia-flyem/tomoflow/runner"
	"github.com/janelia-flyem/tomoflow/tomo"
	"github.com/janelia-flyem/tomoflow/transport"
)

var (
	// Display usage if true.
	showHelp = flag.Bool("help", false, "")

	// Run in verbose mode if true.
	runVerbose = flag.Bool("verbose", false, "")

	// TOML configuration file.
	configFile = flag.String("config", "", "")

	// Number of worker ranks; overrides the configuration.
	processes = flag.Int("processes", 0, "")

	// Number of GPUs; overrides the configuration.
	gpus = flag.Int("gpus", -1, "")

	// Storage engine; overrides the configuration.
	engine = flag.String("engine", "", "")

	// Input preview, one start:stop:step entry per dimension separated by commas.
	preview = flag.String("preview", "", "")

	// Resume from the checkpoint in the output directory.
	resume = flag.Bool("resume", false, "")

	// Address to serve prometheus metrics on.  Leave unset for none.
	metricsAddress = flag.String("metrics", "", "")

	// Profile CPU usage using standard gotest system.
	cpuprofile = flag.String("cpuprofile", "", "")
)

const helpMessage = `
tomoflow runs a list of processing plugins over tomography datasets

Usage: tomoflow [options] <input> <process_list.json> <out_dir>
       tomoflow [options] version

      -config     =string   TOML configuration file.
      -processes  =number   Number of worker ranks per stage.
      -gpus       =number   Number of GPUs available to GPU plugins.
      -engine     =string   Storage engine: hdf5, dist, blob or memory.
      -preview    =string   Input preview, e.g. "0:end:4,:,mid" for every fourth
                            projection of the central slice.
      -resume     (flag)    Resume from the checkpoint in <out_dir>.
      -metrics    =string   Address to serve prometheus metrics, e.g. ":9100".
      -cpuprofile =string   Write CPU profile to this file.
      -verbose    (flag)    Run in verbose mode.
  -h, -help       (flag)    Show help message

The input is an HDF5 file written by tomoflow, or "synthetic:ZxYxX" for a
generated ramp dataset of that shape.  The input dataset is called "tomo".
`

func main() {
	flag.BoolVar(showHelp, "h", false, "Show help message")
	flag.Usage = func() { fmt.Print(helpMessage) }
	flag.Parse()

	if flag.NArg() >= 1 && strings.ToLower(flag.Args()[0]) == "help" {
		*showHelp = true
	}
	if *showHelp || flag.NArg() == 0 {
		flag.Usage()
		os.Exit(0)
	}

	if *runVerbose {
		tomo.Verbose = true
		tomo.SetLogMode(tomo.DebugMode)
	}

	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			log.Fatal(err)
		}
		pprof.StartCPUProfile(f)
		defer pprof.StopCPUProfile()
	}

	if err := DoCommand(flag.Args()); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		tomo.Shutdown()
		os.Exit(1)
	}
	tomo.Shutdown()
}

// DoCommand handles the version command or runs a pipeline.
func DoCommand(args []string) error {
	if args[0] == "version" {
		fmt.Printf("tomoflow process list version %s\n", process.Version)
		fmt.Println(builtin.NewRegistry().Versions())
		return nil
	}
	if len(args) != 3 {
		return fmt.Errorf("need <input> <process_list.json> <out_dir>, got %d arguments", len(args))
	}
	return DoRun(args[0], args[1], args[2])
}

func loadConfig(outDir string) (*config.Config, error) {
	var cfg *config.Config
	if *configFile != "" {
		var err error
		if cfg, err = config.Load(*configFile); err != nil {
			return nil, err
		}
	} else {
		cfg = config.Default()
	}
	abs, err := filepath.Abs(outDir)
	if err != nil {
		return nil, err
	}
	cfg.Run.OutDir = abs
	switch {
	case *processes > 0:
		cfg.Run.Processes = *processes
	case *configFile == "":
		cfg.Run.Processes = runtime.NumCPU()
	}
	if *gpus >= 0 {
		cfg.Run.GPUs = *gpus
	}
	if *preview != "" {
		cfg.Run.Preview = strings.Split(*preview, ",")
	}
	if *resume {
		cfg.Run.Checkpoint = true
	}
	if *engine != "" {
		kind, err := transport.ParseKind(*engine)
		if err != nil {
			return nil, err
		}
		cfg.SetEngine(kind)
	}
	return cfg, cfg.Validate()
}

// DoRun executes a process list over the input, writing results to outDir.
func DoRun(input, listPath, outDir string) error {
	cfg, err := loadConfig(outDir)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.Run.OutDir, 0755); err != nil {
		return fmt.Errorf("creating output directory: %v", err)
	}
	cfg.Logging.SetLogger()
	tomo.Infof("Configuration: %s\n", cfg.Summary())

	list, err := process.Load(listPath)
	if err != nil {
		return err
	}
	if err := list.Save(filepath.Join(cfg.Run.OutDir, filepath.Base(listPath))); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	kind, storeCfg, err := cfg.Transport()
	if err != nil {
		return err
	}
	store, err := transport.Open(ctx, kind, storeCfg)
	if err != nil {
		return err
	}
	defer store.Close()

	r, err := runner.New(cfg, store, builtin.NewRegistry())
	if err != nil {
		return err
	}
	if cfg.Run.Checkpoint {
		r.CheckpointPath = filepath.Join(cfg.Run.OutDir, runner.CheckpointFile)
	}
	reg := prometheus.NewRegistry()
	r.Metrics = runner.NewMetrics(reg)
	if *metricsAddress != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
			if err := http.ListenAndServe(*metricsAddress, mux); err != nil {
				tomo.Errorf("metrics server on %s: %v\n", *metricsAddress, err)
			}
		}()
	}
	if cfg.Kafka.Available() {
		host, _ := os.Hostname()
		kn, err := runner.NewKafkaNotifier(cfg.Kafka, host)
		if err != nil {
			return err
		}
		r.Notifier = runner.Notifiers(runner.LogNotifier{}, kn)
	}
	defer r.Notifier.Close()

	// Capture ctrl+c and other interrupts.  The current frame-groups finish
	// and open datasets are closed before exit.
	stopSig := make(chan os.Signal, 1)
	go func() {
		for sig := range stopSig {
			log.Printf("Stop signal captured: %q.  Stopping pipeline...\n", sig)
			r.Stop()
		}
	}()
	signal.Notify(stopSig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stopSig)

	in, err := runner.LoadInput(store, input)
	if err != nil {
		return err
	}
	if err := runner.ApplyPreview(in, cfg.Run.Preview); err != nil {
		in.Complete()
		return err
	}
	var res *runner.Result
	if *resume {
		var cp *runner.Checkpoint
		if cp, err = runner.LoadCheckpoint(r.CheckpointPath); err != nil {
			in.Complete()
			return fmt.Errorf("cannot resume: %v", err)
		}
		res, err = r.Resume(ctx, list, []*dataset.Dataset{in}, cp)
	} else {
		res, err = r.Run(ctx, list, []*dataset.Dataset{in})
	}
	if err != nil {
		return err
	}
	if res.Stopped {
		return fmt.Errorf("pipeline run %s stopped after %d of %d stages", res.RunID, res.Completed, res.Stages)
	}
	for name, key := range res.Arrays {
		tomo.Infof("Dataset %q stored as %q\n", name, key)
	}
	return nil
}
