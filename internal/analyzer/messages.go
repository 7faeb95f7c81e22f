package analyzer

// Message is anything the analyzer emits on its message channel.
type Message interface {
	isMessage()
}

// Halted acknowledges a halt request. It is the last message of an analyzer.
type Halted struct{}

// EndOfStream reports that the source ran out of samples.
type EndOfStream struct{}

// ReadError reports a source failure.
type ReadError struct {
	Err error
}

// PSD is a main spectrum frame for the waterfall.
type PSD struct {
	Frequency  float64
	SampleRate float64
	Data       []float32
}

// InspectorKind enumerates inspector lifecycle and data messages.
type InspectorKind int

const (
	InspectorOpen InspectorKind = iota
	InspectorSpectrum
	InspectorClose
	InspectorEstimator
	InspectorSignal
)

func (k InspectorKind) String() string {
	switch k {
	case InspectorOpen:
		return "open"
	case InspectorSpectrum:
		return "spectrum"
	case InspectorClose:
		return "close"
	case InspectorEstimator:
		return "estimator"
	case InspectorSignal:
		return "signal"
	default:
		return "unknown"
	}
}

// InspectorMessage carries inspector lifecycle events and spectra.
type InspectorMessage struct {
	Kind         InspectorKind
	RequestID    RequestID
	Handle       Handle
	InspectorID  InspectorID // routing tag, zero until assigned
	Class        string
	Channel      Channel
	Config       Config // OPEN only: the inspector's configuration
	Spectrum     []float32
	SpectrumRate float64
}

// Samples carries demodulated samples for one inspector.
type Samples struct {
	InspectorID InspectorID
	Samples     []complex64
}

func (Halted) isMessage()           {}
func (EndOfStream) isMessage()      {}
func (ReadError) isMessage()        {}
func (PSD) isMessage()              {}
func (InspectorMessage) isMessage() {}
func (Samples) isMessage()          {}
