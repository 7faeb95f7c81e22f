// Package session runs the capture session: the acquisition lifecycle, the
// inspector routing, the audio path and the capture writer. A Controller is
// an actor; one goroutine owns all session state.
package session

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/sigscope/sigscope/internal/analyzer"
	"github.com/sigscope/sigscope/internal/audio"
	"github.com/sigscope/sigscope/internal/errors"
	"github.com/sigscope/sigscope/internal/events"
	"github.com/sigscope/sigscope/internal/inspector"
	"github.com/sigscope/sigscope/internal/logger"
	"github.com/sigscope/sigscope/internal/saver"
)

const (
	mailboxSize   = 64
	signalBuffer  = 16
	noticeLogTail = 20
)

var (
	// ErrClosed is returned by calls made after Run returned.
	ErrClosed = errors.NewStd("session controller closed")
	// ErrNotRunning is returned by operations that need a running capture.
	ErrNotRunning = errors.NewStd("capture is not running")
	// ErrStartAborted is returned when the clamp policy refuses a start.
	ErrStartAborted = errors.NewStd("capture start aborted: sample rate above limit")
)

// Controller coordinates the analyzer with its consumers.
type Controller struct {
	factory analyzer.Factory
	opener  audio.Opener
	pub     Publisher
	clamp   ClampDecider
	tail    LogTail
	log     logger.Logger
	metrics Metrics

	cmds    chan command
	signals chan saver.Signal
	done    chan struct{}
	started atomic.Bool

	// owned by the Run goroutine
	cfg          Config
	state        State
	sessionID    string
	an           analyzer.Analyzer
	msgs         <-chan analyzer.Message
	router       *inspector.Router
	audio        *audioPath
	hook         *analyzer.HookToken
	writerGen    uint64
	writerPath   string
	captureBytes uint64
	ioRate       float64

	// read by the baseband filter on the analyzer goroutine
	writer atomic.Pointer[saver.Saver]
}

type command struct {
	name  string
	fn    func() error
	reply chan error
}

// Option configures a Controller.
type Option func(*Controller)

// WithPublisher sets where session events go.
func WithPublisher(p Publisher) Option {
	return func(c *Controller) { c.pub = p }
}

// WithAudioOpener sets the playback device opener.
func WithAudioOpener(o audio.Opener) Option {
	return func(c *Controller) { c.opener = o }
}

// WithClampDecider overrides the configured clamp policy.
func WithClampDecider(d ClampDecider) Option {
	return func(c *Controller) { c.clamp = d }
}

// WithLogTail sets the source of log lines attached to failure notices.
func WithLogTail(t LogTail) Option {
	return func(c *Controller) { c.tail = t }
}

// WithLogger overrides the controller logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// New returns a halted controller. Call Run to start serving requests.
func New(cfg Config, factory analyzer.Factory, opts ...Option) (*Controller, error) {
	if factory == nil {
		return nil, errors.Newf("analyzer factory is required").
			Component("session").
			Category(errors.CategoryConfiguration).
			Build()
	}

	c := &Controller{
		factory: factory,
		cfg:     cfg.clone(),
		cmds:    make(chan command, mailboxSize),
		signals: make(chan saver.Signal, signalBuffer),
		done:    make(chan struct{}),
		state:   Halted,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logger.Global().Module("session")
	}
	if c.pub == nil {
		c.pub = discardPublisher{}
	}
	if c.clamp == nil {
		c.clamp = StaticClamp(c.cfg.Clamp)
	}
	if c.tail == nil {
		c.tail = logger.Global()
	}
	if c.opener == nil {
		c.opener = audio.DeviceOpener{Logger: c.log.Module("audio")}
	}

	c.audio = newAudioPath(c.cfg, c.opener, c.pub, c.log, c.metrics.Session)

	routerOpts := []inspector.RouterOption{
		inspector.WithMetrics(c.metrics.Inspector),
		inspector.WithLogger(c.log.Module("inspector")),
	}
	if c.cfg.Headroom > 0 {
		routerOpts = append(routerOpts, inspector.WithHeadroom(c.cfg.Headroom))
	}
	c.router = inspector.NewRouter(c.audio, eventSink{pub: c.pub}, routerOpts...)

	c.metrics.Session.RecordTransition(Halted.String(), Halted.String())
	return c, nil
}

// Run serves requests and analyzer messages until ctx is cancelled. On return
// any running capture is torn down.
func (c *Controller) Run(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return errors.Newf("session controller already running").
			Component("session").
			Category(errors.CategoryState).
			Build()
	}
	defer close(c.done)

	c.log.Info("session controller started",
		logger.String("profile", c.cfg.Profile.Label),
		logger.String("source", c.cfg.Profile.Type.String()))

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return nil

		case cmd := <-c.cmds:
			begin := time.Now()
			err := cmd.fn()
			c.metrics.Session.ObserveCommand(cmd.name, time.Since(begin).Seconds())
			cmd.reply <- err

		case msg, ok := <-c.msgs:
			if !ok {
				c.log.Warn("analyzer message stream closed without halt")
				c.msgs = nil
				c.analyzerEvent(AnalyzerHalted, nil)
				continue
			}
			c.handleMessage(msg)

		case sig := <-c.signals:
			c.handleWriterSignal(sig)
		}
	}
}

// Done is closed when Run returns.
func (c *Controller) Done() <-chan struct{} { return c.done }

func (c *Controller) shutdown() {
	if c.an != nil {
		c.log.Info("tearing down capture on shutdown")
		c.teardown()
		c.setState(Halted)
	}
	c.log.Info("session controller stopped")
}

// do runs fn on the controller goroutine and waits for its result.
func (c *Controller) do(ctx context.Context, name string, fn func() error) error {
	cmd := command{name: name, fn: fn, reply: make(chan error, 1)}
	select {
	case c.cmds <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrClosed
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		select {
		case err := <-cmd.reply:
			return err
		default:
			return ErrClosed
		}
	}
}

// dispatch feeds ev to the state machine and performs the resulting effects.
func (c *Controller) dispatch(ev Event, cause error) error {
	prev := c.state
	next, effects := Transition(prev, ev)
	if next == prev && len(effects) == 0 {
		c.log.Debug("event ignored",
			logger.String("state", prev.String()),
			logger.String("event", ev.String()))
		return nil
	}
	if next != prev {
		c.setState(next)
	}

	for _, eff := range effects {
		switch eff {
		case EffectHalt:
			c.an.Halt()
		case EffectTeardown:
			c.teardown()
		case EffectReport:
			c.reportProducerFailure(ev, cause)
		case EffectStart:
			if err := c.startCapture(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *Controller) setState(next State) {
	prev := c.state
	c.state = next
	c.log.Info("session state changed",
		logger.String("from", prev.String()),
		logger.String("to", next.String()))
	c.metrics.Session.RecordTransition(prev.String(), next.String())
	c.pub.TryPublish(events.StateChanged{
		Header:    events.Now(),
		SessionID: c.sessionID,
		From:      prev.String(),
		To:        next.String(),
	})
}

func (c *Controller) handleMessage(m analyzer.Message) {
	switch msg := m.(type) {
	case analyzer.Halted:
		c.analyzerEvent(AnalyzerHalted, nil)
	case analyzer.EndOfStream:
		c.analyzerEvent(EndOfStream, nil)
	case analyzer.ReadError:
		c.analyzerEvent(ReadError, msg.Err)
	case analyzer.PSD:
		c.metrics.Session.IncPSDFrames()
		c.pub.TryPublish(events.PSDFrame{
			Header:     events.Now(),
			Frequency:  msg.Frequency,
			SampleRate: msg.SampleRate,
			Data:       msg.Data,
		})
	case analyzer.InspectorMessage:
		c.router.HandleMessage(&msg)
	case analyzer.Samples:
		c.router.HandleSamples(&msg)
	default:
		c.log.Debug("unhandled analyzer message", logger.Any("type", m))
	}
}

// notify publishes an operator notice, with recent log lines when withLog.
func (c *Controller) notify(sev events.Severity, title, message string, withLog bool) {
	n := events.Notice{
		Header:   events.Now(),
		Severity: sev,
		Title:    title,
		Message:  message,
	}
	if withLog {
		n.Details = c.tail.Recent(noticeLogTail)
	}
	c.pub.TryPublish(n)
}

func (c *Controller) stateError(op string) error {
	return errors.New(ErrNotRunning).
		Component("session").
		Category(errors.CategoryState).
		Context("operation", op).
		Context("state", c.state.String()).
		Build()
}

// Start begins a capture. It is a no-op unless the session is halted.
func (c *Controller) Start(ctx context.Context) error {
	return c.do(ctx, "start", func() error { return c.dispatch(StartRequested, nil) })
}

// Stop requests an asynchronous halt. It is a no-op unless running.
func (c *Controller) Stop(ctx context.Context) error {
	return c.do(ctx, "stop", func() error { return c.dispatch(StopRequested, nil) })
}

// Restart halts the capture and starts it again once the analyzer has
// halted. It is a no-op unless running.
func (c *Controller) Restart(ctx context.Context) error {
	return c.do(ctx, "restart", func() error { return c.dispatch(RestartRequested, nil) })
}

// State returns the current lifecycle state.
func (c *Controller) State(ctx context.Context) (State, error) {
	var s State
	err := c.do(ctx, "state", func() error {
		s = c.state
		return nil
	})
	return s, err
}

// newSessionID tags a capture for events and logs.
func newSessionID() string { return uuid.NewString() }
