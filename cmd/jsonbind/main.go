package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/reoring/jsonbind"
)

// Version is set at build time.
var Version = "dev"

type options struct {
	configPath string
	driver     string
	indent     string
	jsonc      bool
	verbose    bool
	maxDepth   int
	maxBytes   int64
}

func main() {
	if err := newRootCmd(os.Stdin, os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(in io.Reader, out, errOut io.Writer) *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "jsonbind",
		Short:         "Format and check JSON documents with the jsonbind engine",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)
	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "YAML engine configuration file")
	pf.StringVar(&opts.driver, "driver", "", "JSON token driver (json, gojson)")
	pf.BoolVar(&opts.jsonc, "jsonc", false, "accept comments and trailing commas")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "log engine activity to stderr")
	pf.IntVar(&opts.maxDepth, "max-depth", 0, "reject documents nested deeper than this (0 = unlimited)")
	pf.Int64Var(&opts.maxBytes, "max-bytes", 0, "reject documents longer than this many bytes (0 = unlimited)")

	root.AddCommand(newFmtCmd(opts), newCheckCmd(opts))
	return root
}

// buildEngine assembles an engine from the config file, environment and flags,
// flags winning.
func buildEngine(opts *options, tune func(*jsonbind.Config)) (*jsonbind.Engine, *zap.Logger, error) {
	cfg, err := jsonbind.LoadConfig(opts.configPath)
	if err != nil {
		return nil, nil, err
	}
	if opts.driver != "" {
		cfg.Driver = opts.driver
	}
	if opts.maxDepth > 0 {
		cfg.MaxDepth = opts.maxDepth
	}
	if opts.maxBytes > 0 {
		cfg.MaxBytes = opts.maxBytes
	}
	if tune != nil {
		tune(&cfg)
	}
	log := zap.NewNop()
	if opts.verbose {
		zc := zap.NewDevelopmentConfig()
		zc.OutputPaths = []string{"stderr"}
		if log, err = zc.Build(); err != nil {
			return nil, nil, err
		}
	}
	e, err := jsonbind.NewBuilder().WithConfig(cfg).WithLogger(log).Build()
	if err != nil {
		return nil, nil, err
	}
	return e, log, nil
}

// readInput reads the named file, or the command's stdin for "-" or no name.
func readInput(cmd *cobra.Command, args []string, jsonc bool) ([]byte, error) {
	var data []byte
	var err error
	if len(args) == 0 || args[0] == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		return nil, err
	}
	if jsonc {
		data = toJSON(data)
	}
	return data, nil
}
