// Package timeline defines the sentence records exchanged between the
// alignment stages and the per-recording timeline they build up.
package timeline

import (
	"fmt"
	"strings"
)

// Sentence is one reference sentence placed in time.
type Sentence struct {
	// ID is the positional id within its list, e.g. "sent004".
	ID string `json:"id"`

	// RecordingID names the recording the sentence belongs to.
	RecordingID string `json:"recording_id"`

	// RefID is the sentence id from the reference script, when known.
	RefID string `json:"ref_id,omitempty"`

	// Start and End are seconds, half-open [Start, End).
	Start float64 `json:"start"`
	End   float64 `json:"end"`

	// Text is the space-joined reference tokens.
	Text string `json:"text"`
}

// Duration returns End - Start.
func (s Sentence) Duration() float64 { return s.End - s.Start }

// Tokens splits Text into tokens.
func (s Sentence) Tokens() []string { return strings.Fields(s.Text) }

// SentenceID formats the positional id of the i-th sentence.
func SentenceID(i int) string { return fmt.Sprintf("sent%03d", i) }

// Renumber rewrites the ids of sents in place so that sents[i] carries
// SentenceID(from+i).
func Renumber(sents []Sentence, from int) {
	for i := range sents {
		sents[i].ID = SentenceID(from + i)
	}
}

// Timeline is the ordered, non-overlapping list of sentences of one
// recording.
type Timeline struct {
	RecordingID string     `json:"recording_id"`
	Sentences   []Sentence `json:"sentences"`
}

// Tokens returns the tokens of all sentences in order.
func (t Timeline) Tokens() []string {
	var out []string
	for _, s := range t.Sentences {
		out = append(out, s.Tokens()...)
	}
	return out
}

// Text returns all sentence texts joined by a single space.
func (t Timeline) Text() string {
	return strings.Join(t.Tokens(), " ")
}

// Segment is one time span of a recording, as produced by voice activity
// detection or by sliding-window resegmentation.
type Segment struct {
	ID          string  `json:"-"`
	RecordingID string  `json:"-"`
	Start       float64 `json:"start"`
	End         float64 `json:"end"`
}

// Duration returns End - Start.
func (s Segment) Duration() float64 { return s.End - s.Start }

// Transcript is one "<id> <tokens>" line: decoded text of a segment or a
// reference sentence.
type Transcript struct {
	ID     string
	Tokens []string
}
