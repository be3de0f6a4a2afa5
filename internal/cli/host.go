package cli

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"sync"
	"time"

	"github.com/aretw0/weave"
	"github.com/aretw0/weave/internal/config"
	"github.com/aretw0/weave/internal/runtime"
	"github.com/aretw0/weave/pkg/adapters/mqtt"
	"github.com/aretw0/weave/pkg/adapters/process"
	"github.com/aretw0/weave/pkg/adapters/script"
	"github.com/aretw0/weave/pkg/domain"
	"github.com/aretw0/weave/pkg/host/sim"
	"github.com/aretw0/weave/pkg/registry"
	"github.com/aretw0/weave/pkg/session"
)

// Channel kinds accepted in host.sensors and host.actuators.
const (
	KindConstant  = "constant"
	KindNoisy     = "noisy"
	KindScript    = "script"
	KindMQTT      = "mqtt"
	KindCoherence = "coherence"
	KindModel     = "model"
	KindLog       = "log"
	KindExec      = "exec"
)

type constantParams struct {
	Value float64 `mapstructure:"value"`
}

type noisyParams struct {
	Base      float64 `mapstructure:"base"`
	Amplitude float64 `mapstructure:"amplitude"`
}

type scriptParams struct {
	Source  string        `mapstructure:"source"`
	File    string        `mapstructure:"file"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type mqttParams struct {
	Topic string `mapstructure:"topic"`
}

type execParams struct {
	Command string            `mapstructure:"command"`
	Args    []string          `mapstructure:"args"`
	Env     map[string]string `mapstructure:"env"`
}

type modelParams struct {
	Key string `mapstructure:"key"`
}

// Host is the configured sensor/actuator side of a weave process.
type Host struct {
	Registry *registry.Registry
	World    *sim.World

	cfg     *config.Config
	logger  *slog.Logger
	bridge  *mqtt.Bridge
	procs   *process.Runner
	closers []func()
	drift   *lockedSource // nil unless interpreter.seed is set
}

// BuildHost wires the registry from cfg.Host. The MQTT bridge is dialed only when
// a channel of kind mqtt is declared.
//
// The coherence, model and script channels read the state of the session they
// sense for from the context (see session.StateFromContext), so one Host can
// serve concurrent sessions.
func BuildHost(cfg *config.Config, logger *slog.Logger) (*Host, error) {
	h := &Host{
		Registry: registry.NewRegistry(registry.WithLogger(logger)),
		procs:    process.NewRunner(process.WithLogger(logger)),
		cfg:      cfg,
		logger:   logger,
	}

	if seed := cfg.Interpreter.Seed; seed != 0 {
		h.drift = &lockedSource{r: runtime.NewSeededSource(seed)}
	}

	if sc := cfg.Host.Sim; sc != nil {
		opts := []sim.Option{sim.WithLight(sc.Light[0], sc.Light[1]), sim.WithRobot(sc.Robot[0], sc.Robot[1])}
		if sc.Falloff > 0 {
			opts = append(opts, sim.WithFalloff(sc.Falloff))
		}
		h.World = sim.NewWorld(opts...)
		h.World.Register(h.Registry)
	}

	noise := &lockedSource{r: rand.New(rand.NewPCG(cfg.Interpreter.Seed, 0x5eed))}
	for _, ch := range cfg.Host.Sensors {
		if err := h.addSensor(ch, noise); err != nil {
			h.Close()
			return nil, fmt.Errorf("sensor %q: %w", ch.Name, err)
		}
	}
	for _, ch := range cfg.Host.Actuators {
		if err := h.addActuator(ch); err != nil {
			h.Close()
			return nil, fmt.Errorf("actuator %q: %w", ch.Name, err)
		}
	}
	return h, nil
}

func (h *Host) addSensor(ch config.ChannelSpec, noise *lockedSource) error {
	switch ch.Kind {
	case KindConstant:
		var p constantParams
		if err := config.DecodeParams(ch.Params, &p); err != nil {
			return err
		}
		h.Registry.RegisterSensor(ch.Name, func(context.Context) float64 { return p.Value })

	case KindNoisy:
		var p noisyParams
		if err := config.DecodeParams(ch.Params, &p); err != nil {
			return err
		}
		h.Registry.RegisterSensor(ch.Name, func(context.Context) float64 {
			return p.Base + (noise.Float64()*2-1)*p.Amplitude
		})

	case KindScript:
		var p scriptParams
		if err := config.DecodeParams(ch.Params, &p); err != nil {
			return err
		}
		src := p.Source
		if p.File != "" {
			data, err := os.ReadFile(p.File)
			if err != nil {
				return err
			}
			src = string(data)
		}
		opts := []script.Option{script.WithLogger(h.logger), script.WithStateSource(session.StateFromContext)}
		if p.Timeout > 0 {
			opts = append(opts, script.WithTimeout(p.Timeout))
		}
		s, err := script.New(ch.Name, src, opts...)
		if err != nil {
			return err
		}
		h.Registry.RegisterSensor(ch.Name, s.Read)

	case KindMQTT:
		var p mqttParams
		if err := config.DecodeParams(ch.Params, &p); err != nil {
			return err
		}
		b, err := h.mqttBridge()
		if err != nil {
			return err
		}
		topic := p.Topic
		if topic == "" {
			topic = h.cfg.MQTT.TopicPrefix + "/sense/" + ch.Name
		}
		if err := b.Subscribe(ch.Name, topic); err != nil {
			return err
		}
		h.Registry.RegisterSensor(ch.Name, b.Sensor(ch.Name))

	case KindCoherence:
		h.Registry.RegisterSensor(ch.Name, func(ctx context.Context) float64 {
			if st := session.StateFromContext(ctx); st != nil {
				return st.Coherence
			}
			return 0
		})

	case KindModel:
		var p modelParams
		if err := config.DecodeParams(ch.Params, &p); err != nil {
			return err
		}
		h.Registry.RegisterSensor(ch.Name, func(ctx context.Context) float64 {
			if st := session.StateFromContext(ctx); st != nil {
				return st.Get(p.Key)
			}
			return 0
		})

	case KindExec:
		if err := h.registerExec("sense/"+ch.Name, ch); err != nil {
			return err
		}
		h.Registry.RegisterSensor(ch.Name, h.procs.Sensor("sense/"+ch.Name))

	default:
		return fmt.Errorf("unknown sensor kind %q", ch.Kind)
	}
	return nil
}

func (h *Host) addActuator(ch config.ChannelSpec) error {
	switch ch.Kind {
	case KindLog:
		h.Registry.RegisterActuator(ch.Name, func(ctx context.Context, action string, v [2]float64) error {
			h.logger.InfoContext(ctx, "act", "action", action, "value", v)
			return nil
		})
	case KindMQTT:
		b, err := h.mqttBridge()
		if err != nil {
			return err
		}
		h.Registry.RegisterActuator(ch.Name, b.Actuator())
	case KindExec:
		if err := h.registerExec("act/"+ch.Name, ch); err != nil {
			return err
		}
		h.Registry.RegisterActuator(ch.Name, h.procs.Actuator("act/"+ch.Name))
	default:
		return fmt.Errorf("unknown actuator kind %q", ch.Kind)
	}
	return nil
}

// registerExec allow-lists the channel's command under key, keeping sensor and
// actuator channels of the same name apart.
func (h *Host) registerExec(key string, ch config.ChannelSpec) error {
	var p execParams
	if err := config.DecodeParams(ch.Params, &p); err != nil {
		return err
	}
	if p.Command == "" {
		return fmt.Errorf("exec channel needs a command")
	}
	h.procs.Register(key, process.Command{Command: p.Command, Args: p.Args, Env: p.Env})
	return nil
}

func (h *Host) mqttBridge() (*mqtt.Bridge, error) {
	if h.bridge != nil {
		return h.bridge, nil
	}
	mc := h.cfg.MQTT
	if mc.Broker == "" {
		return nil, fmt.Errorf("mqtt.broker is not configured")
	}
	b, client, err := mqtt.Dial(mc.Broker, mc.ClientID,
		mqtt.WithTopicPrefix(mc.TopicPrefix),
		mqtt.WithQoS(mc.QoS),
		mqtt.WithLogger(h.logger),
	)
	if err != nil {
		return nil, err
	}
	h.bridge = b
	h.closers = append(h.closers, func() { client.Disconnect(250) })
	return b, nil
}

// InterpreterOptions returns the options every interpreter of this host needs.
func (h *Host) InterpreterOptions() []weave.Option {
	opts := []weave.Option{
		weave.WithSensor(h.Registry),
		weave.WithActuator(h.Registry),
		weave.WithLogger(h.logger),
		weave.WithMaxDepth(h.cfg.Interpreter.MaxDepth),
	}
	if h.drift != nil {
		opts = append(opts, weave.WithRandomSource(h.drift))
	}
	return opts
}

// lockedSource shares one seeded stream between the interpreters a Manager builds
// per tick, so a seeded run does not replay the same draws every tick. The noisy
// sensors share another one.
type lockedSource struct {
	mu sync.Mutex
	r  *rand.Rand
}

func (l *lockedSource) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Float64()
}

// SessionOptions wires the host into a session.Manager: seeds for new sessions
// and world sync after each tick.
func (h *Host) SessionOptions(extra ...weave.Option) []session.Option {
	opts := []session.Option{
		session.WithLogger(h.logger),
		session.WithInterpreterOptions(append(h.InterpreterOptions(), extra...)...),
		session.WithInitializer(h.Seed),
	}
	if h.World != nil {
		opts = append(opts, session.OnAfterExecute(func(_ context.Context, in *weave.Interpreter) {
			h.World.Sync(in)
		}))
	}
	return opts
}

// Seed applies the configured initial model to a new session.
func (h *Host) Seed(st *domain.State) {
	for k, v := range h.cfg.Session.Model {
		st.Model[k] = v
	}
	for k, v := range h.cfg.Session.Vectors {
		st.SetVector(k, v)
	}
	if h.World != nil {
		p := h.World.Position()
		st.SetVector(sim.PositionKey, p[:])
	}
}

// Close releases network connections.
func (h *Host) Close() {
	for i := len(h.closers) - 1; i >= 0; i-- {
		h.closers[i]()
	}
	h.closers = nil
}

func (h *Host) checkProgram(src string, maxDepth int) error {
	_, err := weave.New(weave.WithMaxDepth(maxDepth)).Parse(src)
	return err
}
