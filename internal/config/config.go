// Package config provides configuration management for the placement
// controller.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the controller.
type Config struct {
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Power     PowerConfig     `mapstructure:"power"`
	Migration MigrationConfig `mapstructure:"migration"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// SchedulerConfig holds placement engine configuration.
type SchedulerConfig struct {
	// OverloadThreshold is the utilization above which a machine is
	// considered overloaded (escalation gate, migration trigger).
	OverloadThreshold float64 `mapstructure:"overload_threshold"`

	// UnderloadThreshold is the utilization below which an idle machine
	// becomes a sleep candidate.
	UnderloadThreshold float64 `mapstructure:"underload_threshold"`

	// HighSLAUtilization is the tighter utilization gate applied when
	// creating a VM for an SLA0 or SLA1 task.
	HighSLAUtilization float64 `mapstructure:"high_sla_utilization"`

	// UrgentWindow is the deadline headroom in simulator microseconds at
	// or below which a task's priority is forced to HIGH.
	UrgentWindow uint64 `mapstructure:"urgent_window"`

	// VMMemoryOverhead is the memory cost in MB of instantiating a VM.
	VMMemoryOverhead uint64 `mapstructure:"vm_memory_overhead"`

	// PrefillPerMachine is the number of VMs created on each active
	// machine at init.
	PrefillPerMachine int `mapstructure:"prefill_per_machine"`
}

// PowerConfig holds power governor configuration.
type PowerConfig struct {
	// SleepCadence is the minimum simulator-time gap between sleep
	// passes.
	SleepCadence uint64 `mapstructure:"sleep_cadence"`

	// MaxSleepsPerPass bounds the number of sleep transitions issued in
	// one pass.
	MaxSleepsPerPass int `mapstructure:"max_sleeps_per_pass"`

	// MinActiveMachines is the floor the governor never sleeps below.
	MinActiveMachines int `mapstructure:"min_active_machines"`
}

// MigrationConfig holds migration planner configuration.
type MigrationConfig struct {
	// Cooldown is the minimum simulator-time gap between two migrations
	// of the same VM.
	Cooldown uint64 `mapstructure:"cooldown"`

	// HistoryLimit bounds the in-memory migration decision history.
	HistoryLimit int `mapstructure:"history_limit"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Environment variables
	v.SetEnvPrefix("EEC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, use defaults and env vars
	}

	// Unmarshal config
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Default returns the built-in configuration without touching the
// filesystem or environment. Tests construct controllers from it.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("default config does not unmarshal: %v", err))
	}
	return &cfg
}

func setDefaults(v *viper.Viper) {
	// Scheduler
	v.SetDefault("scheduler.overload_threshold", 0.8)
	v.SetDefault("scheduler.underload_threshold", 0.3)
	v.SetDefault("scheduler.high_sla_utilization", 0.5)
	v.SetDefault("scheduler.urgent_window", 12000000)
	v.SetDefault("scheduler.vm_memory_overhead", 8)
	v.SetDefault("scheduler.prefill_per_machine", 4)

	// Power
	v.SetDefault("power.sleep_cadence", 10000000)
	v.SetDefault("power.max_sleeps_per_pass", 2)
	v.SetDefault("power.min_active_machines", 2)

	// Migration
	v.SetDefault("migration.cooldown", 1000000)
	v.SetDefault("migration.history_limit", 256)

	// Logging
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}
