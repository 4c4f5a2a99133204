// Package config holds the hyperparameters of an experiment and the sweep
// that expands into a list of experiments.
package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/Noofbiz/sstaGraph/datasets"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Environment variables read by ApplyEnv.
const (
	EnvDataDir = "SSTA_DATA_DIR"
	EnvOutDir  = "SSTA_OUT_DIR"
	EnvRunsDB  = "SSTA_RUNS_DB"
)

// DatasetName prefixes every output file of a training run.
const DatasetName = "SSTAGraphDataset"

// Experiment is the full set of parameters of one training run.
type Experiment struct {
	NetClass       string `yaml:"net_class"`
	HiddenFeatures int    `yaml:"hidden_features"`
	OutFeatures    int    `yaml:"out_features"`

	WindowSize int `yaml:"window_size"`
	LeadTime   int `yaml:"lead_time"`

	// SampleCount is the number of windowed samples; 0 uses every sample
	// the series allows.
	SampleCount int     `yaml:"sample_count"`
	TrainSplit  float64 `yaml:"train_split"`

	LossFunction string  `yaml:"loss_function"`
	NoiseVar     float64 `yaml:"noise_var"`
	LearnNoise   bool    `yaml:"learn_noise"`

	Activation   string  `yaml:"activation"`
	Optimizer    string  `yaml:"optimizer"`
	LearningRate float64 `yaml:"learning_rate"`
	Momentum     float64 `yaml:"momentum"`
	WeightDecay  float64 `yaml:"weight_decay"`
	BatchSize    int     `yaml:"batch_size"`
	Epochs       int     `yaml:"epochs"`

	// Seed for weight initialisation; 0 picks a time-based seed.
	Seed int64 `yaml:"seed"`

	DataDir string `yaml:"data_dir"`
	OutDir  string `yaml:"out_dir"`

	// RunsDB is the SQLite run ledger; empty disables it.
	RunsDB string `yaml:"runs_db"`
}

// Default returns the reference configuration.
func Default() Experiment {
	return Experiment{
		NetClass:       "GCN",
		HiddenFeatures: 200,
		OutFeatures:    100,
		WindowSize:     5,
		LeadTime:       1,
		TrainSplit:     0.8,
		LossFunction:   "BMSE",
		NoiseVar:       0.2,
		Activation:     "lrelu",
		Optimizer:      "SGD",
		LearningRate:   0.02,
		Momentum:       0.9,
		WeightDecay:    0.0001,
		BatchSize:      64,
		Epochs:         30,
		DataDir:        "data",
		OutDir:         "out",
		RunsDB:         "out/runs.db",
	}
}

// Validate reports the first invalid field.
func (e Experiment) Validate() error {
	bad := func(format string, args ...any) error {
		return fmt.Errorf(format+": %w", append(args, datasets.ErrInvalidParameter)...)
	}
	switch {
	case e.NetClass != "GCN":
		return bad("net class %q is not supported", e.NetClass)
	case e.LossFunction != "BMSE":
		return bad("loss function %q is not supported", e.LossFunction)
	case e.HiddenFeatures <= 0 || e.OutFeatures <= 0:
		return bad("feature sizes must be > 0, got %d and %d", e.HiddenFeatures, e.OutFeatures)
	case e.WindowSize <= 0:
		return bad("window size must be > 0, got %d", e.WindowSize)
	case e.LeadTime <= 0:
		return bad("lead time must be > 0, got %d", e.LeadTime)
	case e.SampleCount < 0:
		return bad("sample count must be >= 0, got %d", e.SampleCount)
	case math.IsNaN(e.TrainSplit) || e.TrainSplit <= 0 || e.TrainSplit > 1:
		return bad("train split must be in (0, 1], got %v", e.TrainSplit)
	case math.IsNaN(e.NoiseVar) || e.NoiseVar <= 0:
		return bad("noise variance must be > 0, got %v", e.NoiseVar)
	case e.LearningRate <= 0:
		return bad("learning rate must be > 0, got %v", e.LearningRate)
	case e.Momentum < 0 || e.WeightDecay < 0:
		return bad("momentum and weight decay must be >= 0")
	case e.BatchSize <= 0 || e.Epochs <= 0:
		return bad("batch size and epochs must be > 0, got %d and %d", e.BatchSize, e.Epochs)
	}
	switch e.Activation {
	case "lrelu", "tanh", "relu":
	default:
		return bad("unknown activation %q", e.Activation)
	}
	switch strings.ToLower(e.Optimizer) {
	case "sgd", "adam":
	default:
		return bad("unknown optimizer %q", e.Optimizer)
	}
	return nil
}

// RunName joins the hyperparameters into the suffix shared by every output
// file of the run. SampleCount should be resolved before calling it.
func (e Experiment) RunName() string {
	parts := []string{
		e.NetClass,
		strconv.Itoa(e.HiddenFeatures),
		strconv.Itoa(e.OutFeatures),
		strconv.Itoa(e.WindowSize),
		strconv.Itoa(e.LeadTime),
		strconv.Itoa(e.SampleCount),
		formatFloat(e.TrainSplit),
		e.LossFunction,
		formatFloat(e.NoiseVar),
		e.Optimizer,
		e.Activation,
		formatFloat(e.LearningRate),
		formatFloat(e.Momentum),
		formatFloat(e.WeightDecay),
		strconv.Itoa(e.BatchSize),
		strconv.Itoa(e.Epochs),
	}
	return strings.Join(parts, "_")
}

// FileName returns the name of an output file of the run, for example
// FileName("checkpoint", ".gob").
func (e Experiment) FileName(prefix, ext string) string {
	return prefix + "_" + DatasetName + "_" + e.RunName() + ext
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Sweep expands a base experiment over lead times and noise variances.
type Sweep struct {
	Base      Experiment `yaml:"base"`
	LeadTimes []int      `yaml:"lead_times"`
	NoiseVars []float64  `yaml:"noise_vars"`
}

// DefaultSweep returns the reference sweep: lead time 1 with noise
// variances 0.2, 0.5, 0.8 and 1.
func DefaultSweep() Sweep {
	return Sweep{
		Base:      Default(),
		LeadTimes: []int{1},
		NoiseVars: []float64{0.2, 0.5, 0.8, 1},
	}
}

// Expand returns one experiment per (lead time, noise variance) pair, lead
// time outermost. An empty list falls back to the base value.
func (s Sweep) Expand() []Experiment {
	leads := s.LeadTimes
	if len(leads) == 0 {
		leads = []int{s.Base.LeadTime}
	}
	noises := s.NoiseVars
	if len(noises) == 0 {
		noises = []float64{s.Base.NoiseVar}
	}
	out := make([]Experiment, 0, len(leads)*len(noises))
	for _, lead := range leads {
		for _, noise := range noises {
			e := s.Base
			e.LeadTime = lead
			e.NoiseVar = noise
			out = append(out, e)
		}
	}
	return out
}

// Validate checks every expanded experiment.
func (s Sweep) Validate() error {
	for _, e := range s.Expand() {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("lead time %d, noise %v: %w", e.LeadTime, e.NoiseVar, err)
		}
	}
	return nil
}

// LoadSweep reads a YAML sweep file. Fields missing from the file keep their
// DefaultSweep values.
func LoadSweep(path string) (Sweep, error) {
	s := DefaultSweep()
	data, err := os.ReadFile(path)
	if err != nil {
		return s, fmt.Errorf("error reading sweep file: %w", err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("error parsing sweep YAML %s: %w", path, err)
	}
	return s, nil
}

// Marshal returns s as YAML.
func (s Sweep) Marshal() ([]byte, error) {
	return yaml.Marshal(s)
}

// LoadEnv loads the given .env files into the process environment. Missing
// files are skipped; existing variables are not overridden.
func LoadEnv(files ...string) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Env holds the SSTA_* path overrides. RunsDB is nil when SSTA_RUNS_DB is
// unset, so an empty value can disable the run ledger.
type Env struct {
	DataDir string  `envconfig:"SSTA_DATA_DIR"`
	OutDir  string  `envconfig:"SSTA_OUT_DIR"`
	RunsDB  *string `envconfig:"SSTA_RUNS_DB"`
}

// ReadEnv reads the SSTA_* variables from the process environment.
func ReadEnv() (Env, error) {
	var env Env
	if err := envconfig.Process("", &env); err != nil {
		return env, fmt.Errorf("error processing environment configuration: %w", err)
	}
	return env, nil
}

// ApplyEnv overrides the base paths with the SSTA_* environment variables
// that are set.
func (s *Sweep) ApplyEnv() error {
	env, err := ReadEnv()
	if err != nil {
		return err
	}
	if env.DataDir != "" {
		s.Base.DataDir = env.DataDir
	}
	if env.OutDir != "" {
		s.Base.OutDir = env.OutDir
	}
	if env.RunsDB != nil {
		s.Base.RunsDB = *env.RunsDB
	}
	return nil
}
