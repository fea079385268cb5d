package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"
	"github.com/veloce-obs/thermoservo/internal/analysis"
	"github.com/veloce-obs/thermoservo/internal/command"
	"github.com/veloce-obs/thermoservo/internal/config"
	"github.com/veloce-obs/thermoservo/internal/control"
	"github.com/veloce-obs/thermoservo/internal/logging"
	"github.com/veloce-obs/thermoservo/internal/metrics"
	"github.com/veloce-obs/thermoservo/internal/plant"
	"github.com/veloce-obs/thermoservo/internal/rig"
	"github.com/veloce-obs/thermoservo/internal/servo"
	"github.com/veloce-obs/thermoservo/internal/sim"
	"github.com/veloce-obs/thermoservo/internal/store"
	"github.com/veloce-obs/thermoservo/internal/tui"
	"github.com/veloce-obs/thermoservo/internal/tune"
)

var (
	configFile string
	preset     string
	listenAddr string
	dataDir    string
	setpoint   float64
	ambient    float64
	seed       int64
	cycles     int
	mode       string
	disturbAt  int
	disturbK   float64
	live       bool
	record     bool
	points     int
	out        string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "thermoservo",
		Short: "thermal plate temperature servo",
	}
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (yaml)")
	rootCmd.PersistentFlags().StringVar(&preset, "preset", "", "use preset configuration")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "run the servo loop with the text command server",
		RunE:  runServe,
	}
	serveCmd.Flags().StringVar(&listenAddr, "listen", "", "command server address (overrides config)")
	serveCmd.Flags().StringVar(&dataDir, "data", "", "data directory (overrides config)")
	serveCmd.Flags().Float64Var(&ambient, "ambient", 24.0, "simulated ambient temperature, C")
	serveCmd.Flags().Int64Var(&seed, "seed", time.Now().UnixNano(), "simulation noise seed")

	simCmd := &cobra.Command{
		Use:   "sim",
		Short: "run a closed-loop batch simulation",
		RunE:  runSim,
	}
	simCmd.Flags().IntVar(&cycles, "cycles", 600, "servo cycles to run")
	simCmd.Flags().StringVar(&mode, "mode", "lqg", "control mode (lqg or pid)")
	simCmd.Flags().Float64Var(&setpoint, "setpoint", 0, "setpoint, C (overrides config)")
	simCmd.Flags().Float64Var(&ambient, "ambient", 24.0, "ambient temperature, C")
	simCmd.Flags().Int64Var(&seed, "seed", 1, "noise seed")
	simCmd.Flags().IntVar(&disturbAt, "disturb-cycle", 0, "cycle at which to kick the ambient")
	simCmd.Flags().Float64Var(&disturbK, "disturb", 0, "ambient kick, K")
	simCmd.Flags().BoolVar(&live, "live", false, "interactive dashboard instead of batch run")
	simCmd.Flags().BoolVar(&record, "record", false, "record the run to the data directory")
	simCmd.Flags().StringVar(&dataDir, "data", "", "data directory (overrides config)")

	tuneCmd := &cobra.Command{
		Use:   "tune",
		Short: "grid-search PID gains on the simulated plant",
		RunE:  runTune,
	}
	tuneCmd.Flags().IntVar(&cycles, "cycles", 600, "cycles per candidate")
	tuneCmd.Flags().IntVar(&points, "points", 6, "grid points per axis")
	tuneCmd.Flags().Float64Var(&ambient, "ambient", 24.0, "ambient temperature, C")
	tuneCmd.Flags().Int64Var(&seed, "seed", 1, "noise seed")

	gainsCmd := &cobra.Command{
		Use:   "gains",
		Short: "print the plant model and servo gains",
		RunE:  runGains,
	}

	tempCmd := &cobra.Command{
		Use:   "temp [volts...]",
		Short: "convert bridge voltages to temperatures",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runTemp,
	}

	analyzeCmd := &cobra.Command{
		Use:   "analyze [run_id]",
		Short: "noise statistics and power spectrum of a recorded run",
		Args:  cobra.ExactArgs(1),
		RunE:  runAnalyze,
	}
	analyzeCmd.Flags().StringVar(&dataDir, "data", "", "data directory (overrides config)")

	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "list recorded runs",
		RunE:  runList,
	}
	runsCmd.Flags().StringVar(&dataDir, "data", "", "data directory (overrides config)")

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "write a default config file",
		RunE:  runInit,
	}
	initCmd.Flags().StringVar(&out, "out", "thermoservo.yaml", "output path")

	rootCmd.AddCommand(serveCmd, simCmd, tuneCmd, gainsCmd, tempCmd, analyzeCmd, runsCmd, initCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if preset != "" {
		cfg := config.GetPreset(preset)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets())
		}
		return cfg, nil
	}
	if configFile != "" {
		return config.Load(configFile)
	}
	return config.DefaultConfig(), nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if listenAddr != "" {
		cfg.Listen = listenAddr
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}

	log := logging.New(cfg.Logging)
	defer log.Close()

	st := store.New(cfg.DataDir)
	if err := st.Init(); err != nil {
		return err
	}
	run, err := st.Begin(cfg.Dt, cfg.Setpoint, len(cfg.Channels))
	if err != nil {
		return err
	}
	defer run.Close()

	bench := rig.New(cfg, rig.Options{Ambient: ambient, Seed: seed})
	loop, err := servo.New(cfg, bench, bench, run, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := command.NewServer(loop, log)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ctx, cfg.Listen) }()

	log.Infof("servo loop starting, dt=%.1fs setpoint=%.3fC", cfg.Dt, cfg.Setpoint)
	if err := loop.Run(ctx); err != nil && err != context.Canceled {
		return err
	}
	stop()
	if err := <-errCh; err != nil && err != context.Canceled {
		return err
	}
	return nil
}

func parseMode(s string) (servo.Mode, error) {
	switch s {
	case "lqg":
		return servo.ModeLQG, nil
	case "pid":
		return servo.ModePID, nil
	case "idle":
		return servo.ModeIdle, nil
	}
	return servo.ModeIdle, fmt.Errorf("unknown mode: %s", s)
}

func runSim(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("setpoint") {
		cfg.Setpoint = setpoint
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}

	m, err := parseMode(mode)
	if err != nil {
		return err
	}

	bench := rig.New(cfg, rig.Options{Ambient: ambient, Seed: seed})

	var recorder servo.Recorder
	var run *store.Run
	if record {
		st := store.New(cfg.DataDir)
		if err := st.Init(); err != nil {
			return err
		}
		run, err = st.Begin(cfg.Dt, cfg.Setpoint, len(cfg.Channels))
		if err != nil {
			return err
		}
		defer run.Close()
		recorder = run
	}

	loop, err := servo.New(cfg, bench, bench, recorder, logging.Discard())
	if err != nil {
		return err
	}
	if record {
		loop.SetRecording(true)
	}

	if live {
		if err := loop.SetMode(m); err != nil {
			return err
		}
		return tui.Run(loop, bench, cfg.Dt)
	}

	runner := sim.New(loop, bench, cfg.Dt)
	runner.AddMetric(metrics.NewTrackingError())
	runner.AddMetric(metrics.NewHeaterDuty())
	runner.AddMetric(metrics.NewInBand(0.1))

	start := time.Now()
	res, err := runner.Run(context.Background(), sim.Config{
		Cycles:        cycles,
		Mode:          m,
		DisturbCycle:  disturbAt,
		DisturbKelvin: disturbK,
	})
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	fmt.Printf("simulated %d cycles (%.0fs of plant time) in %v\n\n",
		cycles, float64(cycles)*cfg.Dt, elapsed)

	if len(res.Temps) >= 2 {
		fmt.Println(asciigraph.Plot(res.Temps, asciigraph.Height(12), asciigraph.Width(72), asciigraph.Precision(3)))
		fmt.Println()
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "setpoint\t%.3f C\n", res.Setpoint)
	if n := len(res.Temps); n > 0 {
		fmt.Fprintf(w, "final temp\t%.3f C\n", res.Temps[n-1])
	}
	for name, val := range res.Metrics {
		fmt.Fprintf(w, "%s\t%.6f\n", name, val)
	}
	if res.Skipped > 0 {
		fmt.Fprintf(w, "skipped cycles\t%d\n", res.Skipped)
	}
	return w.Flush()
}

func runTune(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	opts := tune.DefaultPIDOptions()
	opts.Cycles = cycles
	opts.Points = points
	opts.Ambient = ambient
	opts.Seed = seed

	fmt.Printf("sweeping %dx%d gain grid, %d cycles each...\n", points, points, cycles)
	start := time.Now()
	best, score, err := tune.PID(context.Background(), cfg, opts)
	if err != nil {
		return err
	}
	fmt.Printf("done in %v\n\n", time.Since(start))

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "gain\t%.3f\n", best.Gain)
	fmt.Fprintf(w, "integral gain\t%.3f\n", best.IntegralGain)
	fmt.Fprintf(w, "tracking rms\t%.6f K\n", score)
	return w.Flush()
}

func runGains(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	model, err := plant.Derive(cfg.Plant, cfg.Dt)
	if err != nil {
		return err
	}
	gains, err := control.DeriveGains(model)
	if err != nil {
		return err
	}

	fmt.Printf("A =\n%s\n", model.A)
	fmt.Printf("B =\n%s\n", model.B)
	fmt.Printf("C =\n%s\n", model.C)
	fmt.Printf("regulator L =\n%s\n", gains.L)
	fmt.Printf("estimator K =\n%s\n", gains.K)
	return nil
}

func runTemp(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for _, arg := range args {
		v, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return fmt.Errorf("bad voltage %q: %w", arg, err)
		}
		fmt.Fprintf(w, "%.6f V\t%.6f C\n", v, cfg.Thermistor.Temperature(v))
	}
	return w.Flush()
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	st := store.New(cfg.DataDir)

	samples, err := st.Load(args[0])
	if err != nil {
		return err
	}
	if len(samples.Times) < 4 {
		return fmt.Errorf("run %s: too few samples to analyze", args[0])
	}

	series := make([]float64, len(samples.Temps))
	for i, row := range samples.Temps {
		series[i] = row[0]
	}
	dt := samples.Times[len(samples.Times)-1].Sub(samples.Times[0]).Seconds() / float64(len(samples.Times)-1)

	stats, err := analysis.Summarize(series, cfg.Setpoint)
	if err != nil {
		return err
	}
	ps, err := analysis.PowerSpectrum(series, dt)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "samples\t%d\n", len(series))
	fmt.Fprintf(w, "sample period\t%.3f s\n", dt)
	fmt.Fprintf(w, "mean\t%.6f C\n", stats.Mean)
	fmt.Fprintf(w, "stddev\t%.6f K\n", stats.StdDev)
	fmt.Fprintf(w, "min/max\t%.6f / %.6f C\n", stats.Min, stats.Max)
	fmt.Fprintf(w, "rms vs setpoint\t%.6f K\n", stats.RMS)
	fmt.Fprintf(w, "dominant period\t%.1f s\n", ps.DominantPeriod())
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Println("\npower spectrum:")
	fmt.Println(asciigraph.Plot(ps.Power, asciigraph.Height(10), asciigraph.Width(72)))
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	runs, err := store.New(cfg.DataDir).List()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no recorded runs")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "id\tstarted\tdt\tsetpoint\tchannels\tsamples")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%.1f\t%.3f\t%d\t%d\n",
			r.ID, r.Started.Format(time.RFC3339), r.Dt, r.Setpoint, r.Channels, r.Samples)
	}
	return w.Flush()
}

func runInit(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := config.Save(out, cfg); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", out)
	return nil
}
