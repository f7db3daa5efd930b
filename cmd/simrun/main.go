// Package main is a demo driver for the placement controller: it builds a
// fake cluster, replays a synthetic workload through the simulator hooks
// and prints the final report.
package main

import (
	"flag"
	"math/rand"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ayjanu/EEC-Project/internal/config"
	"github.com/ayjanu/EEC-Project/internal/domain"
	"github.com/ayjanu/EEC-Project/internal/simfake"
	"github.com/ayjanu/EEC-Project/pkg/hooks"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	machines := flag.Int("machines", 8, "Number of machines in the fake cluster")
	steps := flag.Int("steps", 200, "Number of simulation steps")
	arrivalRate := flag.Float64("arrival-rate", 1.5, "Mean task arrivals per step")
	seed := flag.Int64("seed", 42, "Workload random seed")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		println("EEC placement controller demo driver")
		println("Version:", version)
		println("Commit:", commit)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		println("Failed to load config:", err.Error())
		os.Exit(1)
	}

	logger := setupLogger(cfg.Logging)
	defer logger.Sync()

	logger.Info("Starting placement controller demo",
		zap.String("version", version),
		zap.Int("machines", *machines),
		zap.Int("steps", *steps),
	)

	sim := buildCluster(*machines)
	hooks.Bind(sim, cfg, logger)
	hooks.InitScheduler()

	run(sim, *steps, *arrivalRate, rand.New(rand.NewSource(*seed)))

	dumpMetrics(logger)
	logger.Info("Goodbye!")
}

// buildCluster assembles a mixed-architecture fleet. Every fourth machine
// starts powered off so wake-on-demand paths get exercised.
func buildCluster(n int) *simfake.Cluster {
	sim := simfake.New()
	cpus := []domain.CPUType{domain.X86, domain.X86, domain.ARM, domain.POWER}
	for i := 0; i < n; i++ {
		state := domain.S0
		if i%4 == 3 {
			state = domain.S5
		}
		sim.AddMachine(simfake.MachineSpec{
			CPU:      cpus[i%len(cpus)],
			Cores:    4 + 4*(i%3),
			MemoryMB: 16384,
			SState:   state,
			SStatePower: []uint64{
				uint64(100 + 10*(i%5)), 50, 40, 30, 20, 10, 0,
			},
		})
	}
	return sim
}

type runningTask struct {
	id   domain.TaskID
	done domain.Time
}

func run(sim *simfake.Cluster, steps int, arrivalRate float64, rng *rand.Rand) {
	const stepLen = 250_000 // microseconds

	vmTypes := []domain.VMType{domain.Linux, domain.LinuxRT, domain.Win, domain.AIX}
	cpuFor := map[domain.VMType]domain.CPUType{
		domain.Linux:   domain.X86,
		domain.LinuxRT: domain.ARM,
		domain.Win:     domain.X86,
		domain.AIX:     domain.POWER,
	}

	var now domain.Time
	var running []runningTask

	for step := 0; step < steps; step++ {
		now += stepLen

		// Task arrivals.
		arrivals := int(arrivalRate)
		if rng.Float64() < arrivalRate-float64(arrivals) {
			arrivals++
		}
		for i := 0; i < arrivals; i++ {
			vmType := vmTypes[rng.Intn(len(vmTypes))]
			duration := domain.Time(1_000_000 + rng.Intn(20_000_000))
			task := sim.SubmitTask(simfake.TaskSpec{
				CPU:      cpuFor[vmType],
				VMType:   vmType,
				MemoryMB: uint64(256 + rng.Intn(1024)),
				SLA:      domain.SLA(rng.Intn(4)),
				Deadline: now + duration + domain.Time(rng.Intn(30_000_000)),
			})
			running = append(running, runningTask{id: task, done: now + duration})
			hooks.HandleNewTask(now, task)
		}

		// Task completions.
		remaining := running[:0]
		for _, t := range running {
			if t.done <= now {
				sim.CompleteTask(t.id)
				hooks.HandleTaskCompletion(now, t.id)
			} else {
				remaining = append(remaining, t)
			}
		}
		running = remaining

		// Asynchronous effects land here: those issued by this step's
		// arrivals in the same step, those issued by the previous step's
		// tick one step later.
		for _, m := range sim.PendingStateChanges() {
			if sim.CompleteStateChange(m) {
				hooks.StateChangeComplete(now, m)
			}
		}
		for _, vm := range sim.PendingMigrationVMs() {
			if sim.CompleteMigration(vm) {
				hooks.MigrationDone(now, vm)
			}
		}

		hooks.SchedulerCheck(now)
	}

	sim.Energy = float64(now) / 1e6 * 0.05 // synthetic energy figure
	hooks.SimulationComplete(now)
}

// dumpMetrics logs the controller's metric families at the end of the
// run.
func dumpMetrics(logger *zap.Logger) {
	families, err := hooks.Controller().Registry().Gather()
	if err != nil {
		logger.Warn("Failed to gather metrics", zap.Error(err))
		return
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			value := 0.0
			switch {
			case m.GetCounter() != nil:
				value = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				value = m.GetGauge().GetValue()
			}
			logger.Info("Metric",
				zap.String("name", mf.GetName()),
				zap.Float64("value", value),
			)
		}
	}
}

// setupLogger configures the zap logger based on configuration.
func setupLogger(cfg config.LoggingConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var zapConfig zap.Config
	if cfg.Format == "console" {
		zapConfig = zap.NewDevelopmentConfig()
	} else {
		zapConfig = zap.NewProductionConfig()
	}
	zapConfig.Level = zap.NewAtomicLevelAt(level)

	logger, err := zapConfig.Build()
	if err != nil {
		logger = zap.NewNop()
	}
	return logger
}
