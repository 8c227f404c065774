package core

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"gonum.org/v1/gonum/mat"

	"github.com/signalsfoundry/rover-simulator/internal/logging"
	"github.com/signalsfoundry/rover-simulator/model"
	"github.com/signalsfoundry/rover-simulator/timectrl"
)

// Phase is the simulator lifecycle state.
type Phase int

const (
	Unconfigured Phase = iota
	Configured
	Running
	Stopped
)

func (p Phase) String() string {
	switch p {
	case Unconfigured:
		return "unconfigured"
	case Configured:
		return "configured"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// TickKind classifies a timer-fired notification. The two configured timer
// identifiers are resolved into kinds once at Configure; dispatch never
// compares raw identifiers.
type TickKind int

const (
	OtherTick TickKind = iota
	StateTick
	MeasurementTick
)

func (k TickKind) String() string {
	switch k {
	case StateTick:
		return "state"
	case MeasurementTick:
		return "measurement"
	default:
		return "other"
	}
}

// Config is the simulation parameter set, read once at Configure and
// immutable afterwards.
type Config struct {
	// Level is the kinematic order: 1 position only, 2 position+velocity.
	Level int
	// PosStateDimension is the size of the position block (x, y, theta).
	PosStateDimension int
	// Period is the state-update period dt.
	Period time.Duration
	// MeasPeriod is the measurement-emission period; zero means Period.
	MeasPeriod time.Duration

	// SysNoiseMean is broadcast across all state dimensions.
	SysNoiseMean float64
	// SysNoiseCovariance is broadcast into a diagonal covariance of the
	// state dimension.
	SysNoiseCovariance float64

	// MeasDimension is the measurement-space dimension.
	MeasDimension int
	// MeasNoiseMean must have MeasDimension entries.
	MeasNoiseMean []float64
	// MeasNoiseCovariance is the full symmetric covariance, order
	// MeasDimension, in row-major rows.
	MeasNoiseCovariance [][]float64
	// MeasGain is the row of the linear observation map; nil observes x.
	MeasGain []float64
	// MeasOffset is the constant term of the observation map.
	MeasOffset float64

	// StateTimerID and MeasTimerID are the opaque identifiers of the two
	// timers this simulator reacts to.
	StateTimerID int
	MeasTimerID  int

	// Seed for the shared noise stream. Zero derives a seed from the clock;
	// any nonzero value makes the run reproducible.
	Seed uint64
}

// stateDim returns the full state dimension implied by the config.
func (c Config) stateDim() int { return c.PosStateDimension * c.Level }

func (c Config) measPeriod() time.Duration {
	if c.MeasPeriod > 0 {
		return c.MeasPeriod
	}
	return c.Period
}

// MeasurementPublisher receives each simulated distance reading.
type MeasurementPublisher interface {
	PublishMeasurement(ctx context.Context, m model.Measurement) error
}

// PosePublisher receives the full state vector after every state update, for
// visualization.
type PosePublisher interface {
	PublishPose(ctx context.Context, p model.Pose) error
}

// MetricsRecorder is the slice of the observability collector the simulator
// drives. A nil recorder disables recording.
type MetricsRecorder interface {
	ObserveCycle(kind string, d time.Duration)
	IncIgnoredTimer()
	IncRejectedCommand()
	SetMeasurement(v float64)
	SetPose(state []float64)
}

// Option customises a Simulator at construction.
type Option func(*Simulator)

// WithLogger attaches a structured logger.
func WithLogger(log logging.Logger) Option {
	return func(s *Simulator) { s.log = log }
}

// WithMetrics attaches a metrics recorder.
func WithMetrics(rec MetricsRecorder) Option {
	return func(s *Simulator) { s.metrics = rec }
}

// Simulator owns the simulated state, its covariance, and the two models,
// and exposes the configure/start/update/stop/cleanup lifecycle. All shared
// mutable data (state, covariance, latest command) sits behind one mutex,
// held for the computation of each cycle and released before publishing.
type Simulator struct {
	measPub MeasurementPublisher
	posePub PosePublisher
	log     logging.Logger
	metrics MetricsRecorder
	tracer  trace.Tracer

	mu    sync.Mutex
	phase Phase
	cfg   Config

	sysModel  SystemModel
	measModel MeasurementModel
	procCov   *mat.SymDense // Q, added to poseCov every state cycle

	state   *mat.VecDense
	poseCov *mat.SymDense
	lastCmd model.Twist

	kinds map[int]TickKind

	bank     *timectrl.Bank
	loopDone chan struct{}
}

// New constructs an unconfigured simulator publishing to the given sinks.
func New(measPub MeasurementPublisher, posePub PosePublisher, opts ...Option) *Simulator {
	s := &Simulator{
		measPub: measPub,
		posePub: posePub,
		log:     logging.Noop(),
		tracer:  otel.Tracer("rover-simulator/core"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Configure validates cfg, builds the noise sources and both models, and
// zero-initialises state and covariance. On any failure the simulator stays
// Unconfigured with no partial artifacts.
func (s *Simulator) Configure(ctx context.Context, cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != Unconfigured {
		return fmt.Errorf("%w: phase is %s", ErrAlreadyConfigured, s.phase)
	}
	if cfg.Level < 1 || cfg.PosStateDimension < 1 {
		return fmt.Errorf("%w: level and position state dimension must be at least 1, got %d and %d",
			ErrInvalidConfig, cfg.Level, cfg.PosStateDimension)
	}
	if cfg.Period <= 0 {
		return fmt.Errorf("%w: period must be positive, got %v", ErrInvalidConfig, cfg.Period)
	}
	if cfg.StateTimerID == cfg.MeasTimerID {
		return fmt.Errorf("%w: state and measurement timers share identifier %d",
			ErrInvalidConfig, cfg.StateTimerID)
	}
	if cfg.MeasDimension < 1 {
		return fmt.Errorf("%w: measurement dimension must be at least 1, got %d",
			ErrInvalidConfig, cfg.MeasDimension)
	}
	if len(cfg.MeasNoiseMean) != cfg.MeasDimension {
		return fmt.Errorf("%w: measurement noise mean has %d entries, measurement dimension is %d",
			ErrInvalidConfig, len(cfg.MeasNoiseMean), cfg.MeasDimension)
	}
	measCov, err := symFromRows(cfg.MeasNoiseCovariance, cfg.MeasDimension)
	if err != nil {
		return err
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	src := rand.NewPCG(seed, seed)

	dim := cfg.stateDim()
	procCov := diagCovariance(cfg.SysNoiseCovariance, dim)
	procNoise, err := NewNoiseSource(broadcastMean(cfg.SysNoiseMean, dim), procCov, src)
	if err != nil {
		return fmt.Errorf("process noise: %w", err)
	}
	measNoise, err := NewNoiseSource(cfg.MeasNoiseMean, measCov, src)
	if err != nil {
		return fmt.Errorf("measurement noise: %w", err)
	}

	sysModel, err := NewSystemModel(cfg.Level, cfg.PosStateDimension, cfg.Period.Seconds(), procNoise)
	if err != nil {
		return err
	}

	gain := cfg.MeasGain
	if gain == nil {
		// Default observation: the x coordinate.
		gain = []float64{1}
	}
	measModel, err := NewMeasurementModel(gain, cfg.MeasOffset, dim, cfg.MeasDimension, measNoise)
	if err != nil {
		return err
	}

	s.cfg = cfg
	s.sysModel = sysModel
	s.measModel = measModel
	s.procCov = procCov
	s.state = mat.NewVecDense(dim, nil)
	s.poseCov = mat.NewSymDense(dim, nil)
	s.lastCmd = model.Twist{}
	s.kinds = map[int]TickKind{
		cfg.StateTimerID: StateTick,
		cfg.MeasTimerID:  MeasurementTick,
	}
	s.phase = Configured

	s.log.Info(ctx, "simulator configured",
		logging.Int("level", cfg.Level),
		logging.Int("state_dim", dim),
		logging.Int("meas_dim", cfg.MeasDimension),
		logging.Any("period", cfg.Period),
	)
	return nil
}

// Start arms the two timers with the configured periods and begins consuming
// their events. No simulation work happens until the first tick.
func (s *Simulator) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != Configured {
		return fmt.Errorf("%w: phase is %s", ErrNotConfigured, s.phase)
	}

	bank := timectrl.NewBank(2)
	if err := bank.Arm(s.cfg.StateTimerID, s.cfg.Period); err != nil {
		return err
	}
	if err := bank.Arm(s.cfg.MeasTimerID, s.cfg.measPeriod()); err != nil {
		return err
	}
	if err := bank.Start(); err != nil {
		return err
	}

	s.bank = bank
	s.loopDone = make(chan struct{})
	s.phase = Running

	go s.dispatchLoop(ctx, bank.Events(), s.loopDone)

	s.log.Info(ctx, "simulator started",
		logging.Int("state_timer", s.cfg.StateTimerID),
		logging.Int("meas_timer", s.cfg.MeasTimerID),
	)
	return nil
}

// dispatchLoop consumes the serialized event stream. Each notification is
// processed to completion before the next is read, so a state cycle is never
// concurrent with a measurement cycle.
func (s *Simulator) dispatchLoop(ctx context.Context, events <-chan timectrl.Event, done chan<- struct{}) {
	defer close(done)
	for ev := range events {
		if err := s.HandleTimer(ctx, ev); err != nil {
			// Events drained after Stop land here; nothing to do.
			return
		}
	}
}

// HandleTimer runs one simulation cycle for a timer-fired notification.
// State-timer events advance the state, measurement-timer events emit a
// measurement, and unrecognized identifiers are counted and ignored since
// other consumers may share the timer bus.
func (s *Simulator) HandleTimer(ctx context.Context, ev timectrl.Event) error {
	s.mu.Lock()
	if s.phase != Running {
		s.mu.Unlock()
		return fmt.Errorf("%w: phase is %s", ErrNotRunning, s.phase)
	}
	kind := s.kinds[ev.ID]
	s.mu.Unlock()

	switch kind {
	case StateTick:
		s.simulateState(ctx, ev.Time)
	case MeasurementTick:
		s.simulateMeas(ctx, ev.Time)
	default:
		if s.metrics != nil {
			s.metrics.IncIgnoredTimer()
		}
		s.log.Debug(ctx, "ignoring unrecognized timer", logging.Int("timer_id", ev.ID))
	}
	return nil
}

// simulateState advances the state one step under the latest command and
// accumulates the process-noise covariance into the pose covariance. The
// covariance grows without reset: a forward generator has no correction step
// to shrink it.
func (s *Simulator) simulateState(ctx context.Context, stamp time.Time) {
	ctx, span := s.tracer.Start(ctx, "simulator.state_cycle")
	defer span.End()
	start := time.Now()

	s.mu.Lock()
	s.sysModel.Step(s.state, s.lastCmd)
	s.poseCov.AddSym(s.poseCov, s.procCov)
	pose := model.Pose{State: vecSnapshot(s.state), Stamp: stamp}
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.ObserveCycle(StateTick.String(), time.Since(start))
		s.metrics.SetPose(pose.State)
	}
	if err := s.posePub.PublishPose(ctx, pose); err != nil {
		s.log.Warn(ctx, "pose publish failed", logging.String("error", err.Error()))
	}
}

// simulateMeas observes the current state and publishes the scalar reading.
// It never mutates the state.
func (s *Simulator) simulateMeas(ctx context.Context, stamp time.Time) {
	ctx, span := s.tracer.Start(ctx, "simulator.measurement_cycle")
	defer span.End()
	start := time.Now()

	s.mu.Lock()
	y := s.measModel.Observe(s.state)
	s.mu.Unlock()

	m := model.Measurement{Distance: y.AtVec(0), Stamp: stamp}
	if s.metrics != nil {
		s.metrics.ObserveCycle(MeasurementTick.String(), time.Since(start))
		s.metrics.SetMeasurement(m.Distance)
	}
	if err := s.measPub.PublishMeasurement(ctx, m); err != nil {
		s.log.Warn(ctx, "measurement publish failed", logging.String("error", err.Error()))
	}
}

// ReceiveControl overwrites the stored latest command. Last value wins; a
// state cycle between two commands reuses the previous one. Non-finite
// commands are rejected without disturbing the run.
func (s *Simulator) ReceiveControl(ctx context.Context, cmd model.Twist) error {
	if !cmd.Valid() {
		if s.metrics != nil {
			s.metrics.IncRejectedCommand()
		}
		s.log.Warn(ctx, "rejecting non-finite control command",
			logging.Any("linear", cmd.Linear),
			logging.Any("angular", cmd.Angular),
		)
		return fmt.Errorf("%w: control command must be finite", ErrInvalidInput)
	}

	s.mu.Lock()
	s.lastCmd = cmd
	s.mu.Unlock()
	return nil
}

// Stop disarms the timers and waits for any in-flight cycle to finish. State
// and covariance are retained for inspection; no further cycles run. There is
// no resume: restarting requires Cleanup and a fresh Configure.
func (s *Simulator) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.phase != Running {
		s.mu.Unlock()
		return fmt.Errorf("%w: phase is %s", ErrNotRunning, s.phase)
	}
	s.phase = Stopped
	bank := s.bank
	done := s.loopDone
	s.bank = nil
	s.loopDone = nil
	s.mu.Unlock()

	if bank != nil {
		bank.Stop()
	}
	if done != nil {
		<-done
	}
	s.log.Info(ctx, "simulator stopped")
	return nil
}

// Cleanup releases the model instances and returns to Unconfigured. Legal
// from Stopped or Configured.
func (s *Simulator) Cleanup(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != Stopped && s.phase != Configured {
		return fmt.Errorf("%w: phase is %s", ErrNotStopped, s.phase)
	}
	s.sysModel = nil
	s.measModel = nil
	s.procCov = nil
	s.state = nil
	s.poseCov = nil
	s.kinds = nil
	s.phase = Unconfigured

	s.log.Info(ctx, "simulator cleaned up")
	return nil
}

// Phase returns the current lifecycle phase.
func (s *Simulator) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// State returns a copy of the current state vector, or nil when unconfigured.
func (s *Simulator) State() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return nil
	}
	return vecSnapshot(s.state)
}

// PoseCovariance returns a copy of the accumulated pose covariance, or nil
// when unconfigured.
func (s *Simulator) PoseCovariance() *mat.SymDense {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.poseCov == nil {
		return nil
	}
	c := mat.NewSymDense(s.poseCov.SymmetricDim(), nil)
	c.CopySym(s.poseCov)
	return c
}

// LastCommand returns the stored latest control input.
func (s *Simulator) LastCommand() model.Twist {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastCmd
}

// symFromRows builds a SymDense of the given order from row slices,
// validating shape and symmetry.
func symFromRows(rows [][]float64, order int) (*mat.SymDense, error) {
	if len(rows) != order {
		return nil, fmt.Errorf("%w: measurement noise covariance has %d rows, measurement dimension is %d",
			ErrInvalidConfig, len(rows), order)
	}
	for i, row := range rows {
		if len(row) != order {
			return nil, fmt.Errorf("%w: measurement noise covariance row %d has %d columns, want %d",
				ErrInvalidConfig, i, len(row), order)
		}
	}
	const symTol = 1e-12
	c := mat.NewSymDense(order, nil)
	for i := 0; i < order; i++ {
		for j := i; j < order; j++ {
			if math.Abs(rows[i][j]-rows[j][i]) > symTol {
				return nil, fmt.Errorf("%w: measurement noise covariance is not symmetric at (%d,%d)",
					ErrInvalidConfig, i, j)
			}
			c.SetSym(i, j, rows[i][j])
		}
	}
	return c, nil
}

func vecSnapshot(v *mat.VecDense) []float64 {
	out := make([]float64, v.Len())
	copy(out, v.RawVector().Data)
	return out
}
