// Copyright 2015 Dorival Pedroso and Raul Durand. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"time"

	"github.com/cpmech/gompc/fem"
	"github.com/cpmech/gosl/chk"
	"github.com/cpmech/gosl/io"
	"github.com/cpmech/gosl/mpi"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// flags
var (
	verbose  bool          // show messages
	useMpi   bool          // one rank per MPI process
	dirout   string        // directory for results; overrides the one in the .sim file
	logLevel string        // level of structured logs; "none" disables them
	timeout  time.Duration // maximum duration of the whole run
	levels   int           // bench: number of refinement levels
	nproc    int           // bench: number of in-process ranks
	workers  int           // bench: number of goroutines per rank
)

var rootCmd = &cobra.Command{
	Use:           "gompc",
	Short:         "Finite element assembly with multi-point constraints",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var runCmd = &cobra.Command{
	Use:   "run <file.sim>",
	Short: "Assemble and solve the problem defined in a .sim (JSON) or .yaml file",
	Args:  cobra.ExactArgs(1),
	RunE:  runSim,
}

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Run the elasticity benchmark with tied blocks at increasing refinement levels",
	Args:  cobra.NoArgs,
	RunE:  runBench,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", true, "show messages")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "none", "level of structured logs: none, debug, info, warn, error")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Minute, "maximum duration of the run")
	runCmd.Flags().BoolVar(&useMpi, "mpi", false, "run one rank per MPI process")
	runCmd.Flags().StringVar(&dirout, "dirout", "", "directory for results")
	benchCmd.Flags().IntVar(&levels, "levels", 4, "number of refinement levels")
	benchCmd.Flags().IntVar(&nproc, "nproc", 2, "number of in-process ranks")
	benchCmd.Flags().IntVar(&workers, "workers", 2, "number of goroutines per rank during assembly")
	rootCmd.AddCommand(runCmd, benchCmd)
}

func main() {

	// catch errors
	defer func() {
		if err := recover(); err != nil {
			if !mpi.IsOn() || mpi.WorldRank() == 0 {
				io.PfRed("\nERROR: %v", err)
				io.Pf("See location of error below:\n")
				chk.Verbose = true
				for i := 5; i > 3; i-- {
					chk.CallerInfo(i)
				}
			}
		}
		if mpi.IsOn() {
			mpi.Stop()
		}
	}()

	// run command
	if err := rootCmd.Execute(); err != nil {
		chk.Panic("%v\n", err)
	}
}

// runSim runs the simulation in args[0]
func runSim(cmd *cobra.Command, args []string) (err error) {
	if useMpi {
		mpi.Start()
	}
	log, err := newLogger()
	if err != nil {
		return
	}
	defer log.Sync()

	// message
	if verbose && (!useMpi || mpi.WorldRank() == 0) {
		io.PfWhite("\nGompc -- Finite element assembly with multi-point constraints\n")
		io.Pf("\n%v\n", io.ArgsTable("INPUT ARGUMENTS",
			"filename path", "fnamepath", args[0],
			"show messages", "verbose", verbose,
			"one rank per MPI process", "mpi", useMpi,
			"directory for results", "dirout", dirout,
			"structured logs", "log", logLevel,
		))
	}

	// analysis data
	analysis, err := fem.NewMain(args[0], useMpi, verbose, log)
	if err != nil {
		return
	}
	if dirout != "" {
		analysis.Sim.Data.DirOut = dirout
	}

	// run simulation
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()
	return analysis.Run(ctx)
}

// runBench runs the benchmark at all levels
func runBench(cmd *cobra.Command, args []string) (err error) {
	log, err := newLogger()
	if err != nil {
		return
	}
	defer log.Sync()
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()
	io.Pf("%6s %10s %8s %14s %14s %14s\n", "level", "equations", "ranks", "time", "max|ux|", "residual")
	for level := 0; level < levels; level++ {
		sim, err := fem.BenchSim(level, nproc, workers)
		if err != nil {
			return err
		}
		analysis, err := fem.NewMainSim(sim, false, false, log)
		if err != nil {
			return err
		}
		start := time.Now()
		if err = analysis.Run(ctx); err != nil {
			return err
		}
		neq := analysis.Domains[0].Sp.Imap.GlobalSize()
		io.Pf("%6d %10d %8d %14v %14.6e %14.6e\n", level, neq, nproc, time.Since(start), analysis.MaxAbs()[0], analysis.Res)
	}
	return
}

// newLogger returns the structured logger selected by the log flag
func newLogger() (*zap.Logger, error) {
	if logLevel == "none" {
		return zap.NewNop(), nil
	}
	lvl, err := zap.ParseAtomicLevel(logLevel)
	if err != nil {
		return nil, chk.Err("invalid log level %q:\n%v", logLevel, err)
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = lvl
	return cfg.Build()
}
