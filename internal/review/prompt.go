package review

import "fmt"

// reviewInstructions builds the system instructions a review sub-turn
// carries instead of the thread's ordinary agent instructions: it frames
// the model as a code reviewer and pins the exact JSON shape its final
// message must conform to, so ParseOutput can decode it back into an
// Output.
func reviewInstructions() string {
	return `You are acting as a meticulous code reviewer for this turn only.
Examine the target described in the user message and report concrete,
actionable findings. Your final message must be a single JSON object
with no surrounding prose, matching exactly:

{
  "findings": [
    {
      "title": "short summary",
      "body": "what's wrong and why it matters",
      "confidence_score": 0.0,
      "priority": 0,
      "code_location": {"absolute_file_path": "...", "line_range": {"start": 0, "end": 0}}
    }
  ],
  "overall_correctness": "good | needs_work | bad",
  "overall_explanation": "one paragraph overview",
  "overall_confidence_score": 0.0
}

Omit code_location when a finding isn't tied to a specific file and range.
Return an empty findings array when the target is clean.`
}

// reviewUserMessage renders the user-turn input naming what to review.
func reviewUserMessage(t Target) string {
	switch t.Kind {
	case TargetCommit:
		if t.Title != "" {
			return fmt.Sprintf("Review commit %s (%s).", t.SHA, t.Title)
		}
		return fmt.Sprintf("Review commit %s.", t.SHA)
	case TargetBaseBranch:
		return fmt.Sprintf("Review the diff against base branch %s.", t.Branch)
	case TargetCustom:
		return t.Instructions
	default:
		return t.Describe()
	}
}
