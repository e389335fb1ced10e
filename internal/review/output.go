package review

import (
	"encoding/json"
	"fmt"
	"strings"
)

// LineRange is an inclusive span of 1-based line numbers.
type LineRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// CodeLocation pinpoints a finding to a file and an inclusive line range.
type CodeLocation struct {
	AbsoluteFilePath string    `json:"absolute_file_path"`
	LineRange        LineRange `json:"line_range"`
}

// String renders the location as "path:start-end", the compact form a
// human reviewer expects inline with the finding's title.
func (l CodeLocation) String() string {
	if l.AbsoluteFilePath == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d-%d", l.AbsoluteFilePath, l.LineRange.Start, l.LineRange.End)
}

// Finding is one reviewer-reported issue.
type Finding struct {
	Title           string        `json:"title"`
	Body            string        `json:"body"`
	ConfidenceScore float64       `json:"confidence_score"`
	Priority        int           `json:"priority"`
	CodeLocation    *CodeLocation `json:"code_location,omitempty"`
}

// Output is the structured review verdict the model is instructed to
// return as its final message for a review sub-turn.
type Output struct {
	Findings               []Finding `json:"findings"`
	OverallCorrectness     string    `json:"overall_correctness"`
	OverallExplanation     string    `json:"overall_explanation"`
	OverallConfidenceScore float64   `json:"overall_confidence_score"`
}

// ParseOutput decodes a review turn's final agent message as an Output. If
// the model did not return well-formed JSON (it ignored the schema, or the
// turn aborted before producing one), the raw text is carried forward as
// the sole explanation so the caller always has something to show rather
// than failing the whole review outright.
func ParseOutput(lastAgentMessage string) Output {
	var out Output
	if err := json.Unmarshal([]byte(lastAgentMessage), &out); err != nil {
		return Output{OverallExplanation: lastAgentMessage}
	}
	return out
}

// FormatBody renders an Output as the human-readable text carried by the
// ExitedReviewMode marker: the overall verdict followed by each finding's
// title, optional location, and body.
func FormatBody(out Output) string {
	var b strings.Builder
	if out.OverallExplanation != "" {
		b.WriteString(out.OverallExplanation)
	}
	for _, f := range out.Findings {
		b.WriteString("\n\n")
		b.WriteString(f.Title)
		if f.CodeLocation != nil {
			if loc := f.CodeLocation.String(); loc != "" {
				fmt.Fprintf(&b, " (%s)", loc)
			}
		}
		if f.Body != "" {
			b.WriteString("\n")
			b.WriteString(f.Body)
		}
	}
	return b.String()
}
