package inspector

import (
	"github.com/sigscope/sigscope/internal/analyzer"
	"github.com/sigscope/sigscope/internal/errors"
	"github.com/sigscope/sigscope/internal/logger"
	"github.com/sigscope/sigscope/internal/observability/metrics"
	"github.com/sigscope/sigscope/internal/spectrum"
)

// Target is where an inspector message is delivered.
type Target interface {
	targetName() string
}

// UserTarget is a user inspector found in the registry.
type UserTarget struct {
	Inspector *Inspector
}

// AudioTarget is the audio inspector owned by the session.
type AudioTarget struct{}

// NoTarget means the message is dropped.
type NoTarget struct{}

func (UserTarget) targetName() string  { return "user" }
func (AudioTarget) targetName() string { return "audio" }
func (NoTarget) targetName() string    { return "none" }

// TargetName returns the metric label of a target.
func TargetName(t Target) string { return t.targetName() }

// AudioPath is the session side of the audio inspector.
type AudioPath interface {
	// OwnsHandle reports whether h is the handle of the configured audio inspector.
	OwnsHandle(h analyzer.Handle) bool
	// Opened completes the audio inspector handshake.
	Opened(msg *analyzer.InspectorMessage)
	// Play writes samples to the playback device, reporting false when none is open.
	Play(samples []complex64) bool
}

// ErrUnknownInspector is returned for a tag not in the registry.
var ErrUnknownInspector = errors.NewStd("unknown inspector")

// Router dispatches inspector messages to user inspectors or the audio path.
// It is owned by the session goroutine.
type Router struct {
	registry *Registry
	audio    AudioPath
	sink     Sink
	ctrl     Controller
	headroom float32
	log      logger.Logger
	metrics  *metrics.InspectorMetrics
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithHeadroom sets the dB headroom used by the spectrum transform.
func WithHeadroom(h float32) RouterOption {
	return func(r *Router) { r.headroom = h }
}

// WithMetrics attaches inspector metrics.
func WithMetrics(m *metrics.InspectorMetrics) RouterOption {
	return func(r *Router) { r.metrics = m }
}

// WithLogger overrides the router logger.
func WithLogger(l logger.Logger) RouterOption {
	return func(r *Router) { r.log = l }
}

// NewRouter returns a router delivering user inspector output to sink.
func NewRouter(audio AudioPath, sink Sink, opts ...RouterOption) *Router {
	r := &Router{
		registry: NewRegistry(),
		audio:    audio,
		sink:     sink,
		headroom: spectrum.DefaultHeadroom,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		r.log = logger.Global().Module("inspector")
	}
	return r
}

// Attach binds newly opened inspectors to ctrl.
func (r *Router) Attach(ctrl Controller) { r.ctrl = ctrl }

// Detach unbinds and removes every user inspector.
func (r *Router) Detach() {
	r.ctrl = nil
	for _, insp := range r.registry.DetachAll() {
		if r.sink != nil {
			r.sink.InspectorClosed(insp.tag)
		}
	}
	r.metrics.SetOpen(0)
}

// Resolve classifies a router tag.
func (r *Router) Resolve(tag analyzer.InspectorID) Target {
	if tag == AudioTag {
		return AudioTarget{}
	}
	if insp, ok := r.registry.Lookup(tag); ok {
		return UserTarget{Inspector: insp}
	}
	return NoTarget{}
}

// HandleMessage routes one inspector message and returns where it went.
func (r *Router) HandleMessage(msg *analyzer.InspectorMessage) Target {
	var t Target
	switch msg.Kind {
	case analyzer.InspectorOpen:
		t = r.handleOpen(msg)
	case analyzer.InspectorSpectrum:
		t = r.handleSpectrum(msg)
	case analyzer.InspectorClose:
		t = r.handleClose(msg)
	default:
		t = NoTarget{}
	}
	r.metrics.RecordMessage(msg.Kind.String(), t.targetName())
	return t
}

func (r *Router) handleOpen(msg *analyzer.InspectorMessage) Target {
	if msg.RequestID == AudioRequestID {
		r.audio.Opened(msg)
		return AudioTarget{}
	}
	if r.ctrl == nil {
		r.log.Warn("inspector opened without a live analyzer",
			logger.Uint64("handle", uint64(msg.Handle)))
		return NoTarget{}
	}

	insp := r.registry.Add(msg, r.sink)
	insp.Bind(r.ctrl)
	if err := r.ctrl.SetInspectorID(msg.Handle, insp.tag, 0); err != nil {
		r.log.Warn("failed to assign inspector id",
			logger.Uint64("handle", uint64(msg.Handle)),
			logger.Error(err))
	}
	r.log.Debug("inspector opened",
		logger.String("class", msg.Class),
		logger.Uint64("handle", uint64(msg.Handle)),
		logger.Uint64("tag", uint64(insp.tag)))
	if r.sink != nil {
		r.sink.InspectorOpened(insp.Info())
	}
	r.metrics.SetOpen(r.registry.Len())
	return UserTarget{Inspector: insp}
}

func (r *Router) handleSpectrum(msg *analyzer.InspectorMessage) Target {
	t := r.Resolve(msg.InspectorID)
	if u, ok := t.(UserTarget); ok {
		spectrum.Transform(msg.Spectrum, r.headroom)
		u.Inspector.FeedSpectrum(msg.Spectrum, msg.SpectrumRate)
	}
	return t
}

func (r *Router) handleClose(msg *analyzer.InspectorMessage) Target {
	if r.audio.OwnsHandle(msg.Handle) {
		return AudioTarget{}
	}
	t := r.Resolve(msg.InspectorID)
	u, ok := t.(UserTarget)
	if !ok {
		return NoTarget{}
	}
	r.registry.Remove(u.Inspector.tag)
	if r.sink != nil {
		r.sink.InspectorClosed(u.Inspector.tag)
	}
	r.metrics.SetOpen(r.registry.Len())
	return t
}

// HandleSamples routes a samples batch to playback or the owning inspector.
func (r *Router) HandleSamples(msg *analyzer.Samples) Target {
	var t Target
	switch target := r.Resolve(msg.InspectorID).(type) {
	case AudioTarget:
		if r.audio.Play(msg.Samples) {
			t = target
		} else {
			t = NoTarget{}
		}
	case UserTarget:
		target.Inspector.Feed(msg.Samples)
		t = target
	default:
		t = target
	}
	r.metrics.RecordSamples(t.targetName())
	return t
}

// Close asks the analyzer to close a user inspector.
func (r *Router) Close(tag analyzer.InspectorID) error {
	insp, ok := r.registry.Lookup(tag)
	if !ok {
		return errors.New(ErrUnknownInspector).
			Component("inspector").
			Category(errors.CategoryNotFound).
			Context("tag", uint32(tag)).
			Build()
	}
	return insp.RequestClose()
}

// Lookup returns a user inspector by tag.
func (r *Router) Lookup(tag analyzer.InspectorID) (*Inspector, bool) {
	return r.registry.Lookup(tag)
}

// Inspectors lists the registered user inspectors.
func (r *Router) Inspectors() []Info { return r.registry.List() }
