package synth

// State is a step of a synthesis call.
type State string

const (
	StateValidate            State = "validate"
	StatePreprocessReference State = "preprocess_reference"
	StateSegmentAndRoute     State = "segment_and_route"
	StateGenerate            State = "generate"
	StateDecode              State = "decode"
	StateConcatenate         State = "concatenate"
	StateDone                State = "done"
	StateRejected            State = "rejected"
)

// Event reports one state transition. Segment is the enumeration index for
// per-segment states and -1 otherwise.
type Event struct {
	CallID  string
	State   State
	Segment int
}

// Observer receives events. With parallelism above one it is called from
// several goroutines.
type Observer func(Event)
