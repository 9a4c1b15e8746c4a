package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/pflag"

	"github.com/goopsie/nlgFileTools/blocks"
	"github.com/goopsie/nlgFileTools/config"
	"github.com/goopsie/nlgFileTools/datafile"
	"github.com/goopsie/nlgFileTools/dictionary"
	"github.com/goopsie/nlgFileTools/hashing"
)

type options struct {
	mode       string
	dictPath   string
	inputDir   string
	outputDir  string
	configPath string
	workers    int
	level      int
	decodeZstd bool
	logLevel   string
	help       bool
}

var modes = []string{"extract", "inject", "jsondict"}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	var opts options
	flagSet := pflag.NewFlagSet("nlgFileTools", pflag.ContinueOnError)
	flagSet.StringVar(&opts.mode, "mode", "", "Either 'extract', 'inject', or 'jsondict'")
	flagSet.StringVar(&opts.dictPath, "dict", "", "Path of the .dict file, the .data file is expected next to it")
	flagSet.StringVar(&opts.inputDir, "inputDir", "", "Path of directory containing modified files (same structure as '--mode extract' output)")
	flagSet.StringVar(&opts.outputDir, "outputDir", "", "Path of directory to place extracted files or the rebuilt .data & .dict")
	flagSet.StringVar(&opts.configPath, "config", "", "Path of a YAML config file")
	flagSet.IntVar(&opts.workers, "workers", 0, "Parallel block (de)compression, 0 for one per CPU")
	flagSet.IntVar(&opts.level, "level", -1, "zlib level used when saving: -1, 6, 7, 8 or 9")
	flagSet.BoolVar(&opts.decodeZstd, "decode-zstd", false, "Decode compressed blocks holding zstd frames instead of skipping them")
	flagSet.StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error")
	flagSet.BoolVarP(&opts.help, "help", "h", false, "Print usage")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if opts.help || len(args) == 0 {
		fmt.Fprintln(stdout, "Usage of nlgFileTools:")
		fmt.Fprint(stdout, flagSet.FlagUsages())
		return nil
	}
	if err := opts.validate(); err != nil {
		return err
	}

	cfg, err := loadConfig(flagSet, &opts)
	if err != nil {
		return err
	}
	logger := cfg.Log.NewLogger(os.Stderr)
	for _, p := range cfg.HashNames {
		if err := hashing.Default.LoadFile(p); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	dataOpts := datafile.Options{
		Workers: cfg.Workers,
		Store: blocks.Options{
			Level:      cfg.CompressionLevel,
			DecodeZstd: cfg.DecodeZstd,
		},
		Logger: logger,
	}

	switch opts.mode {
	case "extract":
		f, err := datafile.Load(ctx, opts.dictPath, dataOpts)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Extracting %d files from %s\n", len(f.Files()), dictionary.DataPath(opts.dictPath))
		n, err := f.Extract(opts.outputDir)
		if err != nil {
			return fmt.Errorf("extract: %w", err)
		}
		fmt.Fprintf(stdout, "Wrote %d files to %s\n", n, opts.outputDir)
	case "inject":
		f, err := datafile.Load(ctx, opts.dictPath, dataOpts)
		if err != nil {
			return err
		}
		n, err := f.Import(opts.inputDir)
		if err != nil {
			return fmt.Errorf("inject: %w", err)
		}
		fmt.Fprintf(stdout, "Replaced %d payloads from %s\n", n, opts.inputDir)

		if err := os.MkdirAll(opts.outputDir, 0755); err != nil {
			return err
		}
		out := filepath.Join(opts.outputDir, filepath.Base(dictionary.DataPath(opts.dictPath)))
		if err := f.Save(ctx, out); err != nil {
			return fmt.Errorf("save: %w", err)
		}
		fmt.Fprintf(stdout, "Wrote %s and %s\n", out, dictionary.DictPath(out))
	case "jsondict":
		d, err := dictionary.Load(opts.dictPath)
		if err != nil {
			return err
		}
		jBytes, err := json.MarshalIndent(d, "", "\t")
		if err != nil {
			return err
		}
		if opts.outputDir == "" {
			_, err = stdout.Write(append(jBytes, '\n'))
			return err
		}
		if err := os.MkdirAll(opts.outputDir, 0755); err != nil {
			return err
		}
		out := filepath.Join(opts.outputDir, filepath.Base(opts.dictPath)+".json")
		if err := os.WriteFile(out, jBytes, 0644); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Wrote %s\n", out)
	}
	return nil
}

func (o *options) validate() error {
	if !slices.Contains(modes, o.mode) {
		return fmt.Errorf("mode must be one of '%s'", strings.Join(modes, "', '"))
	}
	if o.dictPath == "" {
		return errors.New("'--dict' is required")
	}
	if o.mode != "jsondict" && o.outputDir == "" {
		return fmt.Errorf("'%s' must be used in conjunction with '--outputDir'", o.mode)
	}
	if o.mode == "inject" && o.inputDir == "" {
		return errors.New("'inject' must be used in conjunction with '--inputDir'")
	}
	return nil
}

// loadConfig reads the config file, if any, and applies flags the user set.
func loadConfig(flagSet *pflag.FlagSet, opts *options) (*config.Config, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		var err error
		if cfg, err = config.LoadFile(opts.configPath); err != nil {
			return nil, err
		}
	}

	if flagSet.Changed("workers") {
		cfg.Workers = opts.workers
	}
	if flagSet.Changed("level") {
		cfg.CompressionLevel = opts.level
	}
	if flagSet.Changed("decode-zstd") {
		cfg.DecodeZstd = opts.decodeZstd
	}
	if flagSet.Changed("log-level") {
		cfg.Log.Level = opts.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}
