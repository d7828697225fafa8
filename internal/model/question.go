package model

// MCQQuestion is a multiple-choice question with exactly four options and
// one correct index.
type MCQQuestion struct {
	Prompt             string
	Options            [4]string
	CorrectIndex       int
	CorrectExplanation string
	ConceptExplanation string
	OptionExplanations [4]string
	UnitID             int
}

// NarrativeQuestion is a free-text prompt whose stored answer is revealed on
// demand. It is never graded.
type NarrativeQuestion struct {
	Prompt string
	Answer string
	UnitID int
}
