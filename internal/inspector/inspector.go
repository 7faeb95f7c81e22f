// Package inspector tracks the per-channel inspectors opened on the analyzer
// and routes inspector messages to them.
package inspector

import (
	"math"

	"github.com/sigscope/sigscope/internal/analyzer"
	"github.com/sigscope/sigscope/internal/errors"
)

const (
	// AudioRequestID marks the open request of the audio inspector.
	AudioRequestID analyzer.RequestID = math.MaxUint32
	// AudioTag is the routing tag assigned to the audio inspector. User
	// inspectors never receive it.
	AudioTag analyzer.InspectorID = math.MaxUint32
)

// Controller is the part of the analyzer an inspector talks to.
type Controller interface {
	SetInspectorID(h analyzer.Handle, id analyzer.InspectorID, req analyzer.RequestID) error
	SetInspectorConfig(h analyzer.Handle, cfg analyzer.Config, req analyzer.RequestID) error
	SetInspectorFreq(h analyzer.Handle, lo float64, req analyzer.RequestID) error
	SetInspectorBandwidth(h analyzer.Handle, bw float64, req analyzer.RequestID) error
	CloseInspector(h analyzer.Handle, req analyzer.RequestID) error
}

// Sink receives what an inspector displays.
type Sink interface {
	InspectorOpened(info Info)
	InspectorSpectrum(tag analyzer.InspectorID, data []float32, rate float64)
	InspectorSamples(tag analyzer.InspectorID, samples []complex64)
	InspectorClosed(tag analyzer.InspectorID)
}

// Info is a snapshot of an inspector for listing.
type Info struct {
	Tag     analyzer.InspectorID `json:"tag"`
	Handle  analyzer.Handle      `json:"handle"`
	Class   string               `json:"class"`
	Channel analyzer.Channel     `json:"channel"`
	Bound   bool                 `json:"bound"`
}

// ErrNotBound is returned when an inspector has no live analyzer.
var ErrNotBound = errors.NewStd("inspector is not bound to an analyzer")

// Inspector is one user-opened analysis channel.
type Inspector struct {
	tag     analyzer.InspectorID
	handle  analyzer.Handle
	class   string
	channel analyzer.Channel
	config  analyzer.Config

	ctrl Controller
	sink Sink
}

func newInspector(tag analyzer.InspectorID, msg *analyzer.InspectorMessage, sink Sink) *Inspector {
	return &Inspector{
		tag:     tag,
		handle:  msg.Handle,
		class:   msg.Class,
		channel: msg.Channel,
		config:  msg.Config.Clone(),
		sink:    sink,
	}
}

func (i *Inspector) Tag() analyzer.InspectorID { return i.tag }
func (i *Inspector) Handle() analyzer.Handle    { return i.handle }
func (i *Inspector) Class() string              { return i.class }
func (i *Inspector) Bound() bool                { return i.ctrl != nil }

// Config returns a copy of the configuration received on open.
func (i *Inspector) Config() analyzer.Config { return i.config.Clone() }

// Info returns a snapshot of the inspector.
func (i *Inspector) Info() Info {
	return Info{Tag: i.tag, Handle: i.handle, Class: i.class, Channel: i.channel, Bound: i.Bound()}
}

// Bind attaches the inspector to a live analyzer.
func (i *Inspector) Bind(ctrl Controller) { i.ctrl = ctrl }

// Unbind detaches the inspector from the analyzer. Further control calls fail with ErrNotBound.
func (i *Inspector) Unbind() { i.ctrl = nil }

// FeedSpectrum forwards a transformed spectrum frame to the display.
func (i *Inspector) FeedSpectrum(data []float32, rate float64) {
	if i.sink != nil {
		i.sink.InspectorSpectrum(i.tag, data, rate)
	}
}

// Feed forwards demodulated samples to the display.
func (i *Inspector) Feed(samples []complex64) {
	if i.sink != nil {
		i.sink.InspectorSamples(i.tag, samples)
	}
}

// Configure pushes a configuration change to the analyzer.
func (i *Inspector) Configure(cfg analyzer.Config) error {
	if i.ctrl == nil {
		return i.notBound("configure")
	}
	for k, v := range cfg {
		i.config[k] = v
	}
	return i.ctrl.SetInspectorConfig(i.handle, cfg, 0)
}

// SetFrequency retunes the inspector LO.
func (i *Inspector) SetFrequency(lo float64) error {
	if i.ctrl == nil {
		return i.notBound("set_frequency")
	}
	if err := i.ctrl.SetInspectorFreq(i.handle, lo, 0); err != nil {
		return err
	}
	i.channel.FTune = lo
	return nil
}

// SetBandwidth changes the inspector bandwidth.
func (i *Inspector) SetBandwidth(bw float64) error {
	if i.ctrl == nil {
		return i.notBound("set_bandwidth")
	}
	if err := i.ctrl.SetInspectorBandwidth(i.handle, bw, 0); err != nil {
		return err
	}
	i.channel.Bandwidth = bw
	return nil
}

// RequestClose asks the analyzer to close the inspector. Removal happens
// when the CLOSE message arrives.
func (i *Inspector) RequestClose() error {
	if i.ctrl == nil {
		return i.notBound("close")
	}
	return i.ctrl.CloseInspector(i.handle, 0)
}

func (i *Inspector) notBound(op string) error {
	return errors.New(ErrNotBound).
		Component("inspector").
		Category(errors.CategoryState).
		Context("operation", op).
		Context("tag", uint32(i.tag)).
		Build()
}
