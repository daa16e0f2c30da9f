// Package think separates a model's reasoning preamble from its final answer.
//
// Models that "think out loud" emit their scratch work first and close it with
// the literal tag </think>. Everything before and including the tag is reasoning,
// everything after it is the answer shown to the user. The Splitter applies that
// rule to a stream of fragments; Split and Answer apply it to a finished string.
package think

import "strings"

// Delimiter closes the reasoning span.
const Delimiter = "</think>"

// Phase is the state of a Splitter.
type Phase int

const (
	// PhaseReasoning is the initial phase: no delimiter has been seen yet.
	PhaseReasoning Phase = iota
	// PhaseAnswered is reached once, when the delimiter first appears.
	PhaseAnswered
)

func (p Phase) String() string {
	if p == PhaseAnswered {
		return "answered"
	}
	return "reasoning"
}

// Snapshot is the derived view of a Splitter after a push.
type Snapshot struct {
	Raw       string
	Reasoning string
	Answer    string
	Phase     Phase
}

// Splitter accumulates fragments of one completion and classifies them.
// It is not safe for concurrent use; a stream has a single consumer.
type Splitter struct {
	raw    strings.Builder
	phase  Phase
	cut    int // offset just past the delimiter once answered
	frozen string
}

func New() *Splitter {
	return &Splitter{}
}

// Push appends a fragment and returns the updated snapshot.
//
// While reasoning, the whole buffer is rescanned on each push, so a delimiter
// split across fragment boundaries is found as soon as its last byte arrives.
func (s *Splitter) Push(fragment string) Snapshot {
	s.raw.WriteString(fragment)
	if s.phase == PhaseReasoning {
		raw := s.raw.String()
		if k := strings.Index(raw, Delimiter); k >= 0 {
			s.phase = PhaseAnswered
			s.cut = k + len(Delimiter)
			s.frozen = raw[:s.cut]
		}
	}
	return s.Snapshot()
}

// Snapshot derives reasoning and answer text from the current state.
func (s *Splitter) Snapshot() Snapshot {
	raw := s.raw.String()
	if s.phase == PhaseReasoning {
		return Snapshot{Raw: raw, Reasoning: raw, Phase: PhaseReasoning}
	}
	return Snapshot{
		Raw:       raw,
		Reasoning: s.frozen,
		Answer:    strings.TrimSpace(raw[s.cut:]),
		Phase:     PhaseAnswered,
	}
}

// Closed reports whether the delimiter has been observed.
func (s *Splitter) Closed() bool {
	return s.phase == PhaseAnswered
}

// Final is the answer to keep once the stream is over. Without a delimiter the
// whole trimmed text is the answer.
func (s *Splitter) Final() string {
	if s.phase == PhaseAnswered {
		return s.Snapshot().Answer
	}
	return strings.TrimSpace(s.raw.String())
}

// Split applies the delimiter rule to a complete string. When the delimiter is
// absent, reasoning is empty and the trimmed text is the answer.
func Split(text string) (reasoning, answer string) {
	k := strings.Index(text, Delimiter)
	if k < 0 {
		return "", strings.TrimSpace(text)
	}
	cut := k + len(Delimiter)
	return text[:cut], strings.TrimSpace(text[cut:])
}

// Answer returns only the answer half of text.
func Answer(text string) string {
	_, answer := Split(text)
	return answer
}
