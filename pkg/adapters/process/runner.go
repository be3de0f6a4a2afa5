// Package process runs allow-listed local commands as host channels.
//
// Values are passed to commands through environment variables, never as
// command-line flags:
//
//	WEAVE_CHANNEL   channel name (the registered name after its last "/")
//	WEAVE_ACTION    action name (actuators only)
//	WEAVE_ARG_X     first vector component (actuators only)
//	WEAVE_ARG_Y     second vector component (actuators only)
//
// A sensor command prints its reading on stdout, either as a bare number or as
// a JSON object {"value": n}.
package process

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/weave/internal/logging"
	"github.com/aretw0/weave/pkg/registry"
)

// DefaultTimeout bounds a single command run.
const DefaultTimeout = 5 * time.Second

// Command is an allow-listed process.
type Command struct {
	Command string
	Args    []string
	Env     map[string]string
}

// Runner executes registered commands. Only names added with Register can run.
type Runner struct {
	mu       sync.RWMutex
	registry map[string]Command
	baseDir  string
	timeout  time.Duration
	logger   *slog.Logger
}

// RunnerOption configures the runner.
type RunnerOption func(*Runner)

// WithBaseDir sets the working directory for executed processes.
func WithBaseDir(dir string) RunnerOption {
	return func(r *Runner) {
		r.baseDir = dir
	}
}

// WithTimeout bounds each run. A sensor whose command times out reads 0.
func WithTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithLogger sets the logger for failed sensor runs.
func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRunner creates a new Process Runner with an empty allow-list.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{
		registry: make(map[string]Command),
		timeout:  DefaultTimeout,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a trusted command to the allow-list under name.
func (r *Runner) Register(name string, cmd Command) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registry[name] = cmd
}

// Sensor returns a channel that runs the command registered under name on every read.
func (r *Runner) Sensor(name string) registry.SensorFunc {
	return func(ctx context.Context) float64 {
		out, err := r.run(ctx, name, "WEAVE_CHANNEL="+channel(name))
		if err != nil {
			r.logger.Warn("sensor command failed", "sensor", name, "err", err)
			return 0
		}
		v, err := ParseReading(out)
		if err != nil {
			r.logger.Warn("sensor command returned no reading", "sensor", name, "err", err)
			return 0
		}
		return v
	}
}

// Actuator returns a channel that runs the command registered under name for every action.
func (r *Runner) Actuator(name string) registry.ActuatorFunc {
	return func(ctx context.Context, action string, value [2]float64) error {
		_, err := r.run(ctx, name,
			"WEAVE_CHANNEL="+channel(name),
			"WEAVE_ACTION="+action,
			"WEAVE_ARG_X="+strconv.FormatFloat(value[0], 'g', -1, 64),
			"WEAVE_ARG_Y="+strconv.FormatFloat(value[1], 'g', -1, 64),
		)
		return err
	}
}

func channel(name string) string {
	return name[strings.LastIndexByte(name, '/')+1:]
}

func (r *Runner) run(ctx context.Context, name string, env ...string) (string, error) {
	r.mu.RLock()
	proc, ok := r.registry[name]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("process not registered: %s", name)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, proc.Command, proc.Args...)
	cmd.Dir = r.baseDir
	cmd.Env = cmd.Environ()
	for k, v := range proc.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	cmd.Env = append(cmd.Env, env...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("execution failed: %w. Stderr: %s", err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(stdout.String()), nil
}

// ParseReading reads a sensor value from command output: a bare number or {"value": n}.
func ParseReading(out string) (float64, error) {
	if strings.HasPrefix(out, "{") && strings.HasSuffix(out, "}") {
		var payload struct {
			Value *float64 `json:"value"`
		}
		if err := json.Unmarshal([]byte(out), &payload); err != nil {
			return 0, err
		}
		if payload.Value == nil {
			return 0, fmt.Errorf("missing \"value\" in %s", out)
		}
		return *payload.Value, nil
	}
	return strconv.ParseFloat(out, 64)
}
