package session

import (
	"github.com/sigscope/sigscope/internal/analyzer"
	"github.com/sigscope/sigscope/internal/events"
	"github.com/sigscope/sigscope/internal/inspector"
)

// eventSink publishes user inspector output as session events.
type eventSink struct {
	pub Publisher
}

func (s eventSink) InspectorOpened(info inspector.Info) {
	s.pub.TryPublish(events.InspectorOpened{
		Header:    events.Now(),
		Tag:       uint32(info.Tag),
		Handle:    uint32(info.Handle),
		Class:     info.Class,
		Center:    info.Channel.Center,
		Bandwidth: info.Channel.Bandwidth,
	})
}

func (s eventSink) InspectorSpectrum(tag analyzer.InspectorID, data []float32, rate float64) {
	s.pub.TryPublish(events.InspectorSpectrum{Header: events.Now(), Tag: uint32(tag), Rate: rate, Data: data})
}

func (s eventSink) InspectorSamples(tag analyzer.InspectorID, samples []complex64) {
	s.pub.TryPublish(events.InspectorSamples{Header: events.Now(), Tag: uint32(tag), Count: len(samples)})
}

func (s eventSink) InspectorClosed(tag analyzer.InspectorID) {
	s.pub.TryPublish(events.InspectorClosed{Header: events.Now(), Tag: uint32(tag)})
}
