// Package action defines the closed set of user actions the bot reacts to.
// Raw callback tokens are parsed exactly once at the transport boundary;
// everything downstream operates on the variants.
package action

import (
	"fmt"
	"strconv"
	"strings"
)

// Action is the closed tagged-variant type for inbound button presses.
type Action interface {
	isAction()
}

// ShowMainMenu renders the top-level menu.
type ShowMainMenu struct{}

// CheckMembership re-checks the channel-subscription gate.
type CheckMembership struct{}

// ShowResults renders the user's best scores and badges.
type ShowResults struct{}

// StartExam begins (or offers resume of) the exam behind ExamKey.
type StartExam struct{ ExamKey string }

// QuickStart is the no-explanation entry: straight into the whole question
// pool, no intro, no pre-quiz notice.
type QuickStart struct{ ExamKey string }

// ResumeExam continues a previously interrupted attempt.
type ResumeExam struct{ ExamKey string }

// RetryExam abandons the interrupted attempt and starts over.
type RetryExam struct{ ExamKey string }

// ContinueIntro advances past explanation level Level of unit Unit.
type ContinueIntro struct {
	ExamKey string
	Unit    int
	Level   int
}

// AnswerSelected submits option OptionIndex for MCQ question QuestionIndex.
type AnswerSelected struct {
	ExamKey       string
	Unit          int
	QuestionIndex int
	OptionIndex   int
}

// NextQuestion moves on after an answered MCQ result was shown.
type NextQuestion struct {
	ExamKey string
	Unit    int
}

// RevealAnswer shows the stored answer of a narrative question.
type RevealAnswer struct {
	ExamKey       string
	Unit          int
	QuestionIndex int
}

// NextNarrative moves to the next narrative prompt.
type NextNarrative struct {
	ExamKey string
	Unit    int
}

// RestartExam starts a new attempt from the finish screen.
type RestartExam struct{ ExamKey string }

// Admin one-shot actions.
type AdminReloadData struct{}
type AdminToggleMaintenance struct{}
type AdminNewExam struct{}
type AdminCancelWizard struct{}
type AdminToggleHidden struct{ ExamID string }

// Unknown wraps any token outside the grammar. It is routed nowhere.
type Unknown struct{ Raw string }

func (ShowMainMenu) isAction()           {}
func (CheckMembership) isAction()        {}
func (ShowResults) isAction()            {}
func (StartExam) isAction()              {}
func (QuickStart) isAction()             {}
func (ResumeExam) isAction()             {}
func (RetryExam) isAction()              {}
func (ContinueIntro) isAction()          {}
func (AnswerSelected) isAction()         {}
func (NextQuestion) isAction()           {}
func (RevealAnswer) isAction()           {}
func (NextNarrative) isAction()          {}
func (RestartExam) isAction()            {}
func (AdminReloadData) isAction()        {}
func (AdminToggleMaintenance) isAction() {}
func (AdminNewExam) isAction()           {}
func (AdminCancelWizard) isAction()      {}
func (AdminToggleHidden) isAction()      {}
func (Unknown) isAction()                {}

// Parse maps a raw callback token to its Action variant. It is total:
// tokens outside the grammar come back as Unknown, never an error.
func Parse(token string) Action {
	parts := strings.Split(token, ":")

	switch parts[0] {
	case "menu":
		if len(parts) != 2 {
			break
		}
		switch parts[1] {
		case "main":
			return ShowMainMenu{}
		case "results":
			return ShowResults{}
		}
	case "sub":
		if len(parts) == 2 && parts[1] == "check" {
			return CheckMembership{}
		}
	case "exam":
		if len(parts) != 3 {
			break
		}
		key := parts[2]
		switch parts[1] {
		case "start":
			return StartExam{ExamKey: key}
		case "quick":
			return QuickStart{ExamKey: key}
		case "resume":
			return ResumeExam{ExamKey: key}
		case "retry":
			return RetryExam{ExamKey: key}
		case "restart":
			return RestartExam{ExamKey: key}
		}
	case "intro":
		if len(parts) != 4 {
			break
		}
		unit, err1 := strconv.Atoi(parts[2])
		level, err2 := strconv.Atoi(parts[3])
		if err1 == nil && err2 == nil {
			return ContinueIntro{ExamKey: parts[1], Unit: unit, Level: level}
		}
	case "ans":
		if len(parts) != 5 {
			break
		}
		unit, err1 := strconv.Atoi(parts[2])
		q, err2 := strconv.Atoi(parts[3])
		opt, err3 := strconv.Atoi(parts[4])
		if err1 == nil && err2 == nil && err3 == nil {
			return AnswerSelected{ExamKey: parts[1], Unit: unit, QuestionIndex: q, OptionIndex: opt}
		}
	case "next":
		if len(parts) != 3 {
			break
		}
		if unit, err := strconv.Atoi(parts[2]); err == nil {
			return NextQuestion{ExamKey: parts[1], Unit: unit}
		}
	case "narr":
		switch {
		case len(parts) == 5 && parts[1] == "show":
			unit, errU := strconv.Atoi(parts[3])
			q, errQ := strconv.Atoi(parts[4])
			if errU == nil && errQ == nil {
				return RevealAnswer{ExamKey: parts[2], Unit: unit, QuestionIndex: q}
			}
		case len(parts) == 4 && parts[1] == "next":
			if unit, err := strconv.Atoi(parts[3]); err == nil {
				return NextNarrative{ExamKey: parts[2], Unit: unit}
			}
		}
	case "admin":
		switch {
		case len(parts) == 2 && parts[1] == "reload":
			return AdminReloadData{}
		case len(parts) == 2 && parts[1] == "maint":
			return AdminToggleMaintenance{}
		case len(parts) == 2 && parts[1] == "newexam":
			return AdminNewExam{}
		case len(parts) == 2 && parts[1] == "cancel":
			return AdminCancelWizard{}
		case len(parts) == 3 && parts[1] == "hide":
			return AdminToggleHidden{ExamID: parts[2]}
		}
	}

	return Unknown{Raw: token}
}

// Encode renders an Action back into its callback token. Keyboard builders
// must go through Encode so the grammar lives in exactly one place.
func Encode(a Action) string {
	switch v := a.(type) {
	case ShowMainMenu:
		return "menu:main"
	case CheckMembership:
		return "sub:check"
	case ShowResults:
		return "menu:results"
	case StartExam:
		return "exam:start:" + v.ExamKey
	case QuickStart:
		return "exam:quick:" + v.ExamKey
	case ResumeExam:
		return "exam:resume:" + v.ExamKey
	case RetryExam:
		return "exam:retry:" + v.ExamKey
	case RestartExam:
		return "exam:restart:" + v.ExamKey
	case ContinueIntro:
		return fmt.Sprintf("intro:%s:%d:%d", v.ExamKey, v.Unit, v.Level)
	case AnswerSelected:
		return fmt.Sprintf("ans:%s:%d:%d:%d", v.ExamKey, v.Unit, v.QuestionIndex, v.OptionIndex)
	case NextQuestion:
		return fmt.Sprintf("next:%s:%d", v.ExamKey, v.Unit)
	case RevealAnswer:
		return fmt.Sprintf("narr:show:%s:%d:%d", v.ExamKey, v.Unit, v.QuestionIndex)
	case NextNarrative:
		return fmt.Sprintf("narr:next:%s:%d", v.ExamKey, v.Unit)
	case AdminReloadData:
		return "admin:reload"
	case AdminToggleMaintenance:
		return "admin:maint"
	case AdminNewExam:
		return "admin:newexam"
	case AdminCancelWizard:
		return "admin:cancel"
	case AdminToggleHidden:
		return "admin:hide:" + v.ExamID
	case Unknown:
		return v.Raw
	default:
		return ""
	}
}
