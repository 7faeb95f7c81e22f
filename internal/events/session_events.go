package events

// Severity grades a user-facing notice.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// StateChanged reports a session state transition.
type StateChanged struct {
	Header
	SessionID string `json:"session_id,omitempty"`
	From      string `json:"from"`
	To        string `json:"to"`
}

// Notice is a message for the operator, the equivalent of a dialog box.
// Details holds recent log lines when the notice reports a failure.
type Notice struct {
	Header
	Severity Severity `json:"severity"`
	Title    string   `json:"title"`
	Message  string   `json:"message"`
	Details  []string `json:"details,omitempty"`
}

// CaptureSize reports the bytes committed to the capture file.
type CaptureSize struct {
	Header
	Bytes uint64 `json:"bytes"`
}

// IORate reports the capture writer throughput.
type IORate struct {
	Header
	BytesPerSecond float64 `json:"bytes_per_second"`
}

// RecordChanged reports the record flag.
type RecordChanged struct {
	Header
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// AudioRateChanged reports the sample rate negotiated with the audio device.
type AudioRateChanged struct {
	Header
	Rate uint32 `json:"rate"`
}

// PSDFrame is a power spectrum from the analyzer.
type PSDFrame struct {
	Header
	Frequency  float64   `json:"frequency"`
	SampleRate float64   `json:"sample_rate"`
	Data       []float32 `json:"data"`
}

// InspectorOpened announces a user inspector bound to the analyzer.
type InspectorOpened struct {
	Header
	Tag       uint32  `json:"tag"`
	Handle    uint32  `json:"handle"`
	Class     string  `json:"class"`
	Center    float64 `json:"center"`
	Bandwidth float64 `json:"bandwidth"`
}

// InspectorSpectrum is a transformed inspector spectrum frame.
type InspectorSpectrum struct {
	Header
	Tag  uint32    `json:"tag"`
	Rate float64   `json:"rate"`
	Data []float32 `json:"data"`
}

// InspectorSamples reports a batch of samples delivered to an inspector.
// Only the count travels; sample data stays in process.
type InspectorSamples struct {
	Header
	Tag   uint32 `json:"tag"`
	Count int    `json:"count"`
}

// InspectorClosed announces an inspector removed from the registry.
type InspectorClosed struct {
	Header
	Tag uint32 `json:"tag"`
}

func (StateChanged) Kind() Kind      { return KindState }
func (Notice) Kind() Kind            { return KindNotice }
func (CaptureSize) Kind() Kind       { return KindCaptureSize }
func (IORate) Kind() Kind            { return KindIORate }
func (RecordChanged) Kind() Kind     { return KindRecord }
func (AudioRateChanged) Kind() Kind  { return KindAudioRate }
func (PSDFrame) Kind() Kind          { return KindPSD }
func (InspectorOpened) Kind() Kind   { return KindInspectorOpened }
func (InspectorSpectrum) Kind() Kind { return KindInspectorSpectrum }
func (InspectorSamples) Kind() Kind  { return KindInspectorSamples }
func (InspectorClosed) Kind() Kind   { return KindInspectorClosed }
