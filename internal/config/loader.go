package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Defaults returns the configuration used when neither a file nor a flag sets a value.
func Defaults() Config {
	return Config{
		Concurrency:      1,
		RateScope:        RateScopeGlobal,
		Arrival:          ArrivalConfig{Model: ArrivalModelUniform},
		GracefulShutdown: 5 * time.Second,
		Output:           OutputText,
		ProgressInterval: time.Second,
		Tracing:          TracingConfig{Protocol: "grpc", SampleRate: 1.0},
	}
}

// Load builds a Config from a parsed flag set registered with RegisterFlags.
// A file named by --config is read first; flags set on the command line win.
func Load(fs *pflag.FlagSet) (*Config, error) {
	configPath := ""
	if f := fs.Lookup("config"); f != nil {
		configPath = strings.TrimSpace(f.Value.String())
	}

	cfgViper := viper.New()
	if configPath != "" {
		cfgViper.SetConfigFile(configPath)
		if err := cfgViper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configPath, err)
		}
	}

	cfg := Defaults()
	cfg.ConfigFile = configPath

	if err := applyConfigSettings(&cfg, cfgViper.AllSettings()); err != nil {
		return nil, err
	}
	if err := applyFlagOverrides(&cfg, fs); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyConfigSettings copies the values of a config file onto cfg.
func applyConfigSettings(cfg *Config, settings map[string]interface{}) error {
	if len(settings) == 0 {
		return nil
	}
	file, err := newFileSettings("", settings)
	if err != nil {
		return err
	}

	setting(file, "concurrency", &cfg.Concurrency, cast.ToIntE)
	setting(file, "iterations", &cfg.Iterations, cast.ToIntE)
	setting(file, "duration", &cfg.Duration, fileDuration)
	setting(file, "rampUp", &cfg.RampUp, fileDuration)
	setting(file, "warmup", &cfg.Warmup, fileDuration)
	setting(file, "gracefulShutdown", &cfg.GracefulShutdown, fileDuration)
	setting(file, "progressInterval", &cfg.ProgressInterval, fileDuration)

	setting(file, "rate", &cfg.Rate, cast.ToFloat64E)
	setting(file, "rateScope", &cfg.RateScope, lowered[RateScope])
	applyArrival(file, &cfg.Arrival)
	file.list("loadPatterns", func(item *fileSettings) {
		cfg.LoadPatterns = append(cfg.LoadPatterns, readLoadPattern(item))
	})

	setting(file, "output", &cfg.Output, lowered[OutputFormat])
	setting(file, "dashboard", &cfg.Dashboard, cast.ToBoolE)
	setting(file, "quiet", &cfg.Quiet, cast.ToBoolE)
	setting(file, "logErrors", &cfg.LogErrors, cast.ToBoolE)
	setting(file, "historyFile", &cfg.HistoryFile, cast.ToStringE)
	setting(file, "thresholds", &cfg.Thresholds, fileStrings)

	file.section("tracing", func(t *fileSettings) {
		applyTracingSettings(t, &cfg.Tracing)
	})
	return file.err
}

// applyArrival accepts either `arrival: poisson` or a table with a model key.
// arrivalModel is read when arrival is absent.
func applyArrival(file *fileSettings, dst *ArrivalConfig) {
	key := "arrival"
	raw, ok := file.lookup(key)
	if !ok {
		key = "arrivalModel"
		if raw, ok = file.lookup(key); !ok {
			return
		}
	}
	var model ArrivalModel
	if _, isString := raw.(string); isString || raw == nil {
		setting(file, key, &model, lowered[ArrivalModel])
	} else {
		file.section(key, func(a *fileSettings) {
			if !setting(a, "model", &model, lowered[ArrivalModel]) && a.err == nil {
				a.fail("model", errors.New("required"))
			}
		})
	}
	if model != "" {
		dst.Model = model
	}
}

func readLoadPattern(item *fileSettings) LoadPattern {
	var p LoadPattern
	setting(item, "name", &p.Name, cast.ToStringE)
	setting(item, "type", &p.Type, lowered[LoadPatternType])
	setting(item, "fromRPS", &p.FromRPS, cast.ToFloat64E)
	setting(item, "toRPS", &p.ToRPS, cast.ToFloat64E)
	setting(item, "rps", &p.RPS, cast.ToFloat64E)
	setting(item, "duration", &p.Duration, fileDuration)
	item.list("steps", func(step *fileSettings) {
		var st LoadStep
		setting(step, "rps", &st.RPS, cast.ToFloat64E)
		setting(step, "duration", &st.Duration, fileDuration)
		p.Steps = append(p.Steps, st)
	})
	return p
}

func applyTracingSettings(t *fileSettings, dst *TracingConfig) {
	setting(t, "endpoint", &dst.Endpoint, cast.ToStringE)
	setting(t, "protocol", &dst.Protocol, lowered[string])
	setting(t, "serviceName", &dst.ServiceName, cast.ToStringE)
	setting(t, "sampleRate", &dst.SampleRate, cast.ToFloat64E)
	setting(t, "insecure", &dst.Insecure, cast.ToBoolE)
	var propagate bool
	if setting(t, "propagate", &propagate, cast.ToBoolE) {
		dst.Propagate = &propagate
	}
}
