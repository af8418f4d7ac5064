// Package config loads the YAML application configuration of an execution
// manager process: logging, metrics and the execution contexts to create.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	execmgr "github.com/Swind/go-execution-manager"
	"github.com/Swind/go-execution-manager/affinity"
	"github.com/Swind/go-execution-manager/core"
	"github.com/Swind/go-execution-manager/logging"
)

// Context types accepted in the "type" field.
const (
	TypeSingle   = "single"
	TypePool     = "pool"
	TypePriority = "priority"
)

// File is the root of the configuration document.
type File struct {
	Logging  logging.Config  `yaml:"logging"`
	Metrics  MetricsConfig   `yaml:"metrics"`
	Contexts []ContextConfig `yaml:"contexts"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Addr         string `yaml:"addr"` // empty disables the endpoint
	Namespace    string `yaml:"namespace"`
	PollInterval string `yaml:"poll_interval"`
}

// ContextConfig is one execution context entry.
type ContextConfig struct {
	Name       string           `yaml:"name"`
	Type       string           `yaml:"type"`
	Workers    int              `yaml:"workers"`
	WaitSleep  string           `yaml:"wait_sleep"`
	Priority   string           `yaml:"priority"`
	CPUMask    string           `yaml:"cpu_mask"`
	CPUMasks   []string         `yaml:"cpu_masks"`
	AgingBurst int              `yaml:"aging_burst"`
	Queues     []QueueConfig    `yaml:"queues"`
	Executors  []ExecutorConfig `yaml:"executors"`
}

// QueueConfig is one task queue entry.
type QueueConfig struct {
	Name     string `yaml:"name"`
	Policy   string `yaml:"policy"`
	Capacity int    `yaml:"capacity"`
}

// ExecutorConfig is one executor entry of a context.
type ExecutorConfig struct {
	Name        string         `yaml:"name"`
	Priority    int            `yaml:"priority"`
	Synchronous bool           `yaml:"synchronous"`
	Strands     []StrandConfig `yaml:"strands"`
}

// StrandConfig is one strand built over an executor.
type StrandConfig struct {
	Queues []QueueConfig `yaml:"queues"`
}

// Default returns the configuration used for missing sections.
func Default() File {
	return File{
		Logging: logging.DefaultConfig(),
		Metrics: MetricsConfig{Namespace: "execmgr", PollInterval: "1s"},
	}
}

// Load reads and parses the file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return f, nil
}

// Parse decodes a YAML document over the defaults. Unknown fields are errors.
func Parse(data []byte) (*File, error) {
	f := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	return &f, nil
}

// PollEvery returns the snapshot poll interval.
func (m MetricsConfig) PollEvery() (time.Duration, error) {
	if m.PollInterval == "" {
		return time.Second, nil
	}
	d, err := time.ParseDuration(m.PollInterval)
	if err != nil {
		return 0, fmt.Errorf("metrics poll_interval: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("metrics poll_interval must be positive, got %s", d)
	}
	return d, nil
}

// Validate reports every problem of the document at once.
func (f *File) Validate() error {
	_, err := f.Build()
	return err
}

// Build converts the context entries into execmgr configurations. Each
// result has passed its own Validate.
func (f *File) Build() ([]execmgr.ContextConfig, error) {
	var err error
	if lerr := f.Logging.Validate(); lerr != nil {
		err = multierr.Append(err, fmt.Errorf("logging: %w", lerr))
	}
	if _, perr := f.Metrics.PollEvery(); perr != nil {
		err = multierr.Append(err, perr)
	}

	out := make([]execmgr.ContextConfig, 0, len(f.Contexts))
	names := make(map[string]struct{}, len(f.Contexts))
	for i, c := range f.Contexts {
		if _, dup := names[c.Name]; dup && c.Name != "" {
			err = multierr.Append(err, fmt.Errorf("contexts[%d]: %w: context %q declared twice", i, core.ErrInvalidConfig, c.Name))
		}
		names[c.Name] = struct{}{}

		cfg, berr := c.build()
		if berr != nil {
			err = multierr.Append(err, fmt.Errorf("contexts[%d] %q: %w", i, c.Name, berr))
			continue
		}
		if verr := cfg.Validate(); verr != nil {
			for _, e := range multierr.Errors(verr) {
				err = multierr.Append(err, fmt.Errorf("contexts[%d]: %w", i, e))
			}
			continue
		}
		out = append(out, cfg)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c ContextConfig) build() (execmgr.ContextConfig, error) {
	var err error

	var sleep time.Duration
	if c.WaitSleep != "" {
		d, derr := time.ParseDuration(c.WaitSleep)
		if derr != nil {
			err = multierr.Append(err, fmt.Errorf("wait_sleep: %w", derr))
		}
		sleep = d
	}

	prio, perr := affinity.ParseOSPriority(c.Priority)
	if perr != nil {
		err = multierr.Append(err, fmt.Errorf("priority: %w", perr))
	}

	mask, merr := affinity.ParseCPUMask(c.CPUMask)
	if merr != nil {
		err = multierr.Append(err, fmt.Errorf("cpu_mask: %w", merr))
	}

	queues, qerr := buildQueues(c.Queues)
	err = multierr.Append(err, qerr)

	execs, eerr := buildExecutors(c.Executors)
	err = multierr.Append(err, eerr)

	if c.Type != TypePool && len(c.CPUMasks) > 0 {
		err = multierr.Append(err, fmt.Errorf("%w: cpu_masks is only valid for type %q", core.ErrInvalidConfig, TypePool))
	}
	if c.Type != TypePriority && c.AgingBurst != 0 {
		err = multierr.Append(err, fmt.Errorf("%w: aging_burst is only valid for type %q", core.ErrInvalidConfig, TypePriority))
	}

	switch c.Type {
	case TypeSingle:
		if c.Workers > 1 {
			err = multierr.Append(err, fmt.Errorf("%w: single worker cannot have %d workers", core.ErrInvalidConfig, c.Workers))
		}
		if len(queues) != 1 {
			err = multierr.Append(err, fmt.Errorf("%w: single worker needs exactly one queue, got %d", core.ErrInvalidConfig, len(queues)))
		}
		if err != nil {
			return nil, err
		}
		return execmgr.SingleWorkerConfig{
			Name: c.Name, Queue: queues[0], WaitSleep: sleep,
			Priority: prio, CPUMask: mask, Executors: execs,
		}, nil

	case TypePool:
		masks := make([]affinity.CPUMask, 0, len(c.CPUMasks)+1)
		if len(mask) > 0 {
			masks = append(masks, mask)
		}
		for j, s := range c.CPUMasks {
			m, e := affinity.ParseCPUMask(s)
			if e != nil {
				err = multierr.Append(err, fmt.Errorf("cpu_masks[%d]: %w", j, e))
			}
			masks = append(masks, m)
		}
		if len(mask) > 0 && len(c.CPUMasks) > 0 {
			err = multierr.Append(err, fmt.Errorf("%w: set either cpu_mask or cpu_masks", core.ErrInvalidConfig))
		}
		if err != nil {
			return nil, err
		}
		return execmgr.WorkerPoolConfig{
			Name: c.Name, Workers: c.Workers, Queues: queues, WaitSleep: sleep,
			Priority: prio, CPUMasks: masks, Executors: execs,
		}, nil

	case TypePriority:
		if c.Workers > 1 {
			err = multierr.Append(err, fmt.Errorf("%w: priority worker cannot have %d workers", core.ErrInvalidConfig, c.Workers))
		}
		if err != nil {
			return nil, err
		}
		return execmgr.PriorityWorkerConfig{
			Name: c.Name, Queues: queues, WaitSleep: sleep, Priority: prio,
			CPUMask: mask, Executors: execs, AgingBurst: c.AgingBurst,
		}, nil
	}

	return nil, multierr.Append(err, fmt.Errorf("%w: unknown context type %q (want %s, %s or %s)",
		core.ErrInvalidConfig, c.Type, TypeSingle, TypePool, TypePriority))
}

func buildQueues(in []QueueConfig) ([]core.QueueConfig, error) {
	var err error
	out := make([]core.QueueConfig, 0, len(in))
	for i, q := range in {
		policy, perr := core.ParseQueuePolicy(q.Policy)
		if perr != nil {
			err = multierr.Append(err, fmt.Errorf("queues[%d] %q: %w", i, q.Name, perr))
			continue
		}
		out = append(out, core.QueueConfig{Name: q.Name, Policy: policy, Capacity: q.Capacity})
	}
	return out, err
}

func buildExecutors(in []ExecutorConfig) ([]execmgr.ExecutorConfig, error) {
	var err error
	out := make([]execmgr.ExecutorConfig, 0, len(in))
	for i, e := range in {
		ec := execmgr.ExecutorConfig{
			Name:        e.Name,
			Priority:    core.TaskPriority(e.Priority),
			Synchronous: e.Synchronous,
		}
		for j, s := range e.Strands {
			queues, qerr := buildQueues(s.Queues)
			if qerr != nil {
				err = multierr.Append(err, fmt.Errorf("executors[%d].strands[%d]: %w", i, j, qerr))
				continue
			}
			ec.Strands = append(ec.Strands, execmgr.StrandConfig{Queues: queues})
		}
		out = append(out, ec)
	}
	return out, err
}
