// Package present turns the state of a streamed completion into frames for a UI surface.
package present

// Regime selects what a frame shows.
type Regime int

const (
	// RegimeReasoning: still generating and no delimiter yet. Shows the
	// generating indicator and, if any, the reasoning trace.
	RegimeReasoning Regime = iota
	// RegimeAnswer: answered or complete. Shows the answer as rich text, with a
	// caret while generation continues.
	RegimeAnswer
	// RegimeEmpty: complete, still formally reasoning, and nothing to answer with.
	RegimeEmpty
)

func (r Regime) String() string {
	switch r {
	case RegimeAnswer:
		return "answer"
	case RegimeEmpty:
		return "empty"
	default:
		return "reasoning"
	}
}

func (r Regime) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// EmptyNotice is shown when a completion ends without producing an answer.
const EmptyNotice = "Thinking complete, but no response generated."

type Frame struct {
	Regime        Regime `json:"regime"`
	ShowIndicator bool   `json:"show_indicator"`
	Reasoning     string `json:"reasoning,omitempty"`
	ShowReasoning bool   `json:"show_reasoning"`
	Answer        string `json:"answer,omitempty"`
	ShowCaret     bool   `json:"show_caret"`
	Notice        string `json:"notice,omitempty"`
	Complete      bool   `json:"complete"`
}

// Compose is the whole presentation rule: a frame depends only on its inputs.
func Compose(reasoning, answer string, reasoningPhase, complete bool) Frame {
	f := Frame{
		Reasoning:     reasoning,
		ShowReasoning: reasoning != "",
		Answer:        answer,
		Complete:      complete,
	}
	switch {
	case reasoningPhase && !complete:
		f.Regime = RegimeReasoning
		f.ShowIndicator = true
	case reasoningPhase && answer == "":
		f.Regime = RegimeEmpty
		f.Notice = EmptyNotice
	default:
		f.Regime = RegimeAnswer
		f.ShowCaret = !complete
	}
	return f
}
