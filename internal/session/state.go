package session

import "fmt"

// State is the acquisition lifecycle state.
type State int

const (
	Halted State = iota
	Running
	Halting
	Restarting
)

var stateNames = [...]string{"halted", "running", "halting", "restarting"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Event drives the state machine.
type Event int

const (
	StartRequested Event = iota
	StopRequested
	RestartRequested
	Started
	AnalyzerHalted
	EndOfStream
	ReadError
)

var eventNames = [...]string{
	"start_requested", "stop_requested", "restart_requested",
	"started", "analyzer_halted", "end_of_stream", "read_error",
}

func (e Event) String() string {
	if e < 0 || int(e) >= len(eventNames) {
		return fmt.Sprintf("event(%d)", int(e))
	}
	return eventNames[e]
}

// Effect is a side effect the controller performs after a transition, in
// the order returned.
type Effect int

const (
	// EffectStart builds and starts a new analyzer.
	EffectStart Effect = iota
	// EffectHalt asks the analyzer to halt.
	EffectHalt
	// EffectTeardown releases the analyzer, writer, inspectors and audio.
	EffectTeardown
	// EffectReport tells the operator why the capture ended.
	EffectReport
)

var effectNames = [...]string{"start", "halt", "teardown", "report"}

func (e Effect) String() string {
	if e < 0 || int(e) >= len(effectNames) {
		return fmt.Sprintf("effect(%d)", int(e))
	}
	return effectNames[e]
}

// active reports whether an analyzer exists in state s.
func (s State) active() bool {
	return s != Halted
}

// Transition returns the next state and the effects for ev received in s.
// Pairs not listed leave the state unchanged with no effects.
func Transition(s State, ev Event) (State, []Effect) {
	switch ev {
	case StartRequested:
		if s == Halted {
			return Halted, []Effect{EffectStart}
		}
	case Started:
		if s == Halted {
			return Running, nil
		}
	case StopRequested:
		if s == Running {
			return Halting, []Effect{EffectHalt}
		}
	case RestartRequested:
		if s == Running {
			return Restarting, []Effect{EffectHalt}
		}
	case AnalyzerHalted:
		switch s {
		case Restarting:
			return Halted, []Effect{EffectTeardown, EffectStart}
		case Running, Halting:
			return Halted, []Effect{EffectTeardown}
		}
	case EndOfStream, ReadError:
		if s.active() {
			return Halted, []Effect{EffectReport, EffectTeardown}
		}
	}
	return s, nil
}
