// Package flow implements the per-user exam state machine. One Handle call
// processes one inbound action; all durable state lives in the progress
// store, reloaded at the top of every call.
package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/mishalinitiative/quizbot/internal/action"
	"github.com/mishalinitiative/quizbot/internal/content"
	"github.com/mishalinitiative/quizbot/internal/messenger"
	"github.com/mishalinitiative/quizbot/internal/model"
	"github.com/mishalinitiative/quizbot/internal/service"
)

var optionLetters = [4]string{"A", "B", "C", "D"}

// ContentSource yields loaded exams. Satisfied by *content.Loader.
type ContentSource interface {
	Load(ctx context.Context, examKey string) (*content.Exam, error)
}

// ProgressStore is the durable per-user state the machine depends on.
// Satisfied by *service.ProgressService.
type ProgressStore interface {
	LoadState(ctx context.Context, userID int64, displayName string) (*model.UserProgress, error)
	SaveState(ctx context.Context, progress *model.UserProgress) error
	ResetProgress(ctx context.Context, progress *model.UserProgress, examKey string) error
	UpdateBestScore(ctx context.Context, userID int64, displayName, examKey string, score, total int) (*service.BestScoreResult, error)
	AwardBadges(ctx context.Context, userID int64, score, total int) ([]string, error)
	RecordStatistic(ctx context.Context, examKey string, userID int64, score, total, elapsedSeconds int) error
}

// Machine drives one user's exam session per inbound action.
type Machine struct {
	msg     messenger.Messenger
	store   ProgressStore
	content ContentSource
	phrases *content.PhraseSet
	log     zerolog.Logger
}

// NewMachine creates the exam state machine.
func NewMachine(msg messenger.Messenger, store ProgressStore, contentSrc ContentSource, phrases *content.PhraseSet, log zerolog.Logger) *Machine {
	return &Machine{
		msg:     msg,
		store:   store,
		content: contentSrc,
		phrases: phrases,
		log:     log.With().Str("component", "flow").Logger(),
	}
}

// Handle processes one exam-flow action for one user. Stale or out-of-grammar
// actions are dropped without error; store failures surface as a transient
// notice to the user and a non-nil error to the caller.
func (m *Machine) Handle(ctx context.Context, userID int64, displayName string, act action.Action) error {
	progress, err := m.store.LoadState(ctx, userID, displayName)
	if err != nil {
		m.notifyTransient(ctx, userID, nil)
		return fmt.Errorf("load state: %w", err)
	}

	switch a := act.(type) {
	case action.StartExam:
		return m.start(ctx, progress, a.ExamKey)
	case action.QuickStart:
		return m.quickStart(ctx, progress, a.ExamKey)
	case action.ResumeExam:
		return m.resume(ctx, progress, a.ExamKey)
	case action.RetryExam:
		return m.retry(ctx, progress, a.ExamKey)
	case action.RestartExam:
		return m.retry(ctx, progress, a.ExamKey)
	case action.ContinueIntro:
		return m.continueIntro(ctx, progress, a)
	case action.AnswerSelected:
		return m.answer(ctx, progress, a)
	case action.NextQuestion:
		return m.nextQuestion(ctx, progress, a)
	case action.RevealAnswer:
		return m.revealAnswer(ctx, progress, a)
	case action.NextNarrative:
		return m.nextNarrative(ctx, progress, a)
	default:
		m.log.Debug().Int64("user_id", userID).Type("action", act).Msg("action outside exam flow, ignored")
		return nil
	}
}

// start enters an exam normally, offering resume/retry when an interrupted
// attempt for the same exam exists.
func (m *Machine) start(ctx context.Context, p *model.UserProgress, examKey string) error {
	exam, err := m.loadExam(ctx, p.UserID, examKey)
	if err != nil {
		return err
	}

	if p.ExamKey == examKey && p.QuestionIndex > 0 && p.Stage != model.StageFinished && p.Stage != model.StageNone {
		return m.offerResume(ctx, p, examKey)
	}

	if err := m.store.ResetProgress(ctx, p, examKey); err != nil {
		m.notifyTransient(ctx, p.UserID, nil)
		return fmt.Errorf("reset progress: %w", err)
	}
	return m.begin(ctx, p, exam)
}

// quickStart bypasses every explanation and runs the whole unfiltered
// question pool. No pre-quiz notice is sent: there is nothing to clean up.
func (m *Machine) quickStart(ctx context.Context, p *model.UserProgress, examKey string) error {
	exam, err := m.loadExam(ctx, p.UserID, examKey)
	if err != nil {
		return err
	}

	if err := m.store.ResetProgress(ctx, p, examKey); err != nil {
		m.notifyTransient(ctx, p.UserID, nil)
		return fmt.Errorf("reset progress: %w", err)
	}
	p.UnitID = model.QuickUnit
	return m.enterQuestions(ctx, p, exam)
}

func (m *Machine) resume(ctx context.Context, p *model.UserProgress, examKey string) error {
	if p.ExamKey != examKey || p.Stage == model.StageNone || p.Stage == model.StageFinished {
		return m.start(ctx, p, examKey)
	}

	exam, err := m.loadExam(ctx, p.UserID, examKey)
	if err != nil {
		return err
	}

	switch p.Stage {
	case model.StageIntro:
		return m.sendIntro(ctx, p, exam)
	case model.StageMCQ:
		if p.QuestionIndex >= len(m.mcqPool(exam, p.UnitID)) {
			return m.afterMCQ(ctx, p, exam)
		}
		return m.sendMCQQuestion(ctx, p, exam)
	case model.StageNarrative:
		if p.QuestionIndex >= len(m.narrativePool(exam, p.UnitID)) {
			return m.unitAdvance(ctx, p, exam)
		}
		return m.sendNarrativePrompt(ctx, p, exam)
	}
	return nil
}

func (m *Machine) retry(ctx context.Context, p *model.UserProgress, examKey string) error {
	exam, err := m.loadExam(ctx, p.UserID, examKey)
	if err != nil {
		return err
	}
	m.purgeCleanup(ctx, p)
	m.deleteRef(ctx, p.UserID, &p.StatusMsgRef)
	m.deleteRef(ctx, p.UserID, &p.QuestionMsgRef)

	if err := m.store.ResetProgress(ctx, p, examKey); err != nil {
		m.notifyTransient(ctx, p.UserID, nil)
		return fmt.Errorf("reset progress: %w", err)
	}
	return m.begin(ctx, p, exam)
}

// begin places a fresh attempt at the exam's first state: the first
// explanation level when one exists, otherwise straight into questions.
func (m *Machine) begin(ctx context.Context, p *model.UserProgress, exam *content.Exam) error {
	units := exam.Units()
	if len(units) == 0 {
		_, _ = m.msg.SendMessage(ctx, p.UserID, "This exam has no content yet. Please check back later.", nil)
		return m.store.SaveState(ctx, p)
	}

	p.UnitID = units[0]
	if level, ok := exam.Explanations.FirstLevel(p.UnitID); ok {
		p.Stage = model.StageIntro
		p.Level = level
		if ref, err := m.msg.SendMessage(ctx, p.UserID, "📚 Read each part carefully before the questions start. No cheating!", nil); err == nil {
			p.CleanupRefs = append(p.CleanupRefs, string(ref))
		}
		if err := m.store.SaveState(ctx, p); err != nil {
			m.notifyTransient(ctx, p.UserID, retryKeyboard(action.StartExam{ExamKey: p.ExamKey}))
			return fmt.Errorf("save state: %w", err)
		}
		return m.sendIntro(ctx, p, exam)
	}

	return m.enterQuestions(ctx, p, exam)
}

func (m *Machine) offerResume(ctx context.Context, p *model.UserProgress, examKey string) error {
	kb := messenger.Keyboard{
		messenger.Row(
			messenger.Button{Text: "▶️ Continue", Action: action.Encode(action.ResumeExam{ExamKey: examKey})},
			messenger.Button{Text: "🔄 Start over", Action: action.Encode(action.RetryExam{ExamKey: examKey})},
		),
	}
	text := fmt.Sprintf("You have an unfinished attempt (question %d, score %d). Continue where you left off?",
		p.QuestionIndex+1, p.Score)
	ref, err := m.msg.SendMessage(ctx, p.UserID, text, kb)
	if err != nil {
		return fmt.Errorf("send resume prompt: %w", err)
	}
	p.StatusMsgRef = string(ref)
	return m.store.SaveState(ctx, p)
}

// sendIntro renders the current explanation level, with its media attachment
// when one is configured. The message joins the cleanup set.
func (m *Machine) sendIntro(ctx context.Context, p *model.UserProgress, exam *content.Exam) error {
	text, ok := exam.Explanations.Text(p.UnitID, p.Level)
	if !ok {
		return m.enterQuestions(ctx, p, exam)
	}

	kb := messenger.Keyboard{
		messenger.Row(messenger.Button{
			Text:   "➡️ Continue",
			Action: action.Encode(action.ContinueIntro{ExamKey: p.ExamKey, Unit: p.UnitID, Level: p.Level}),
		}),
	}

	var ref messenger.MessageRef
	var err error
	if media, found := exam.Media(p.UnitID, p.Level); found {
		caption := media.Caption
		if caption == "" {
			caption = text
		}
		ref, err = m.msg.SendMedia(ctx, p.UserID, string(media.Kind), media.Payload, caption, kb)
	} else {
		ref, err = m.msg.SendMessage(ctx, p.UserID, text, kb)
	}
	if err != nil {
		m.notifyTransient(ctx, p.UserID, retryKeyboard(action.ResumeExam{ExamKey: p.ExamKey}))
		return fmt.Errorf("send intro %s unit %d level %d: %w", p.ExamKey, p.UnitID, p.Level, err)
	}

	p.CleanupRefs = append(p.CleanupRefs, string(ref))
	return m.store.SaveState(ctx, p)
}

func (m *Machine) continueIntro(ctx context.Context, p *model.UserProgress, a action.ContinueIntro) error {
	if p.ExamKey != a.ExamKey || p.Stage != model.StageIntro || p.UnitID != a.Unit || p.Level != a.Level {
		m.logStale(p, a)
		return nil
	}

	exam, err := m.loadExam(ctx, p.UserID, p.ExamKey)
	if err != nil {
		return err
	}

	if next, ok := exam.Explanations.NextLevel(p.UnitID, p.Level); ok {
		p.Level = next
		if err := m.store.SaveState(ctx, p); err != nil {
			m.notifyTransient(ctx, p.UserID, retryKeyboard(a))
			return fmt.Errorf("save state: %w", err)
		}
		return m.sendIntro(ctx, p, exam)
	}

	return m.enterQuestions(ctx, p, exam)
}

// enterQuestions transitions into the questioning phase of the current unit:
// MCQ first, then narrative, else unit advance. The accumulated cleanup set
// is purged exactly here.
func (m *Machine) enterQuestions(ctx context.Context, p *model.UserProgress, exam *content.Exam) error {
	m.purgeCleanup(ctx, p)

	if len(m.mcqPool(exam, p.UnitID)) > 0 {
		p.Stage = model.StageMCQ
		p.QuestionIndex = 0
		if err := m.store.SaveState(ctx, p); err != nil {
			m.notifyTransient(ctx, p.UserID, retryKeyboard(action.ResumeExam{ExamKey: p.ExamKey}))
			return fmt.Errorf("save state: %w", err)
		}
		return m.sendMCQQuestion(ctx, p, exam)
	}

	if len(m.narrativePool(exam, p.UnitID)) > 0 {
		p.Stage = model.StageNarrative
		p.QuestionIndex = 0
		if err := m.store.SaveState(ctx, p); err != nil {
			m.notifyTransient(ctx, p.UserID, retryKeyboard(action.ResumeExam{ExamKey: p.ExamKey}))
			return fmt.Errorf("save state: %w", err)
		}
		return m.sendNarrativePrompt(ctx, p, exam)
	}

	return m.unitAdvance(ctx, p, exam)
}

func (m *Machine) sendMCQQuestion(ctx context.Context, p *model.UserProgress, exam *content.Exam) error {
	pool := m.mcqPool(exam, p.UnitID)
	q := pool[p.QuestionIndex]

	var b strings.Builder
	fmt.Fprintf(&b, "❓ Question %d/%d\n\n%s\n\n", p.QuestionIndex+1, len(pool), q.Prompt)
	for i, opt := range q.Options {
		fmt.Fprintf(&b, "%s) %s\n", optionLetters[i], opt)
	}

	kb := messenger.Keyboard{}
	for i := range q.Options {
		if i%2 == 0 {
			kb = append(kb, messenger.Row())
		}
		kb[len(kb)-1] = append(kb[len(kb)-1], messenger.Button{
			Text: optionLetters[i],
			Action: action.Encode(action.AnswerSelected{
				ExamKey: p.ExamKey, Unit: p.UnitID, QuestionIndex: p.QuestionIndex, OptionIndex: i,
			}),
		})
	}

	ref, err := m.msg.SendMessage(ctx, p.UserID, b.String(), kb)
	if err != nil {
		m.notifyTransient(ctx, p.UserID, retryKeyboard(action.NextQuestion{ExamKey: p.ExamKey, Unit: p.UnitID}))
		return fmt.Errorf("send question %s %d/%d: %w", p.ExamKey, p.UnitID, p.QuestionIndex, err)
	}
	p.QuestionMsgRef = string(ref)
	return m.store.SaveState(ctx, p)
}

// answer applies one MCQ submission. The replay guard drops any action whose
// question index does not equal the persisted index, and any already-answered
// index, without touching state.
func (m *Machine) answer(ctx context.Context, p *model.UserProgress, a action.AnswerSelected) error {
	if p.ExamKey != a.ExamKey || p.Stage != model.StageMCQ || p.UnitID != a.Unit {
		m.logStale(p, a)
		return nil
	}
	if a.QuestionIndex != p.QuestionIndex {
		m.logStale(p, a)
		return nil
	}
	if _, done := p.Answered[model.AnswerKey(a.Unit, a.QuestionIndex)]; done {
		m.logStale(p, a)
		return nil
	}

	exam, err := m.loadExam(ctx, p.UserID, p.ExamKey)
	if err != nil {
		return err
	}
	pool := m.mcqPool(exam, p.UnitID)
	if a.QuestionIndex >= len(pool) || a.OptionIndex < 0 || a.OptionIndex > 3 {
		m.logStale(p, a)
		return nil
	}
	q := pool[a.QuestionIndex]

	correct := a.OptionIndex == q.CorrectIndex
	if correct {
		p.Score++
	}
	p.Answered[model.AnswerKey(a.Unit, a.QuestionIndex)] = correct
	p.QuestionIndex++

	if err := m.store.SaveState(ctx, p); err != nil {
		// Roll the in-memory mutation back so a retried action passes the
		// index guard again.
		if correct {
			p.Score--
		}
		delete(p.Answered, model.AnswerKey(a.Unit, a.QuestionIndex))
		p.QuestionIndex--
		m.notifyTransient(ctx, p.UserID, retryKeyboard(a))
		return fmt.Errorf("save state: %w", err)
	}

	m.showAnswerFeedback(ctx, p, q, a.OptionIndex, correct)

	if p.QuestionIndex < len(pool) {
		return m.sendMCQQuestion(ctx, p, exam)
	}
	return m.afterMCQ(ctx, p, exam)
}

// showAnswerFeedback rewrites the just-answered question message into the
// verdict plus any configured explanation. The message joins the cleanup set
// so the unit-advance purge removes it.
func (m *Machine) showAnswerFeedback(ctx context.Context, p *model.UserProgress, q model.MCQQuestion, optionIndex int, correct bool) {
	var b strings.Builder
	if correct {
		b.WriteString(m.phrases.Correct())
	} else {
		b.WriteString(m.phrases.Wrong())
		fmt.Fprintf(&b, "\nThe right answer was %s) %s", optionLetters[q.CorrectIndex], q.Options[q.CorrectIndex])
	}
	if expl := q.OptionExplanations[optionIndex]; expl != "" {
		b.WriteString("\n\n" + expl)
	} else if q.CorrectExplanation != "" {
		b.WriteString("\n\n" + q.CorrectExplanation)
	}

	if p.QuestionMsgRef == "" {
		return
	}
	ref := messenger.MessageRef(p.QuestionMsgRef)
	if err := m.msg.EditMessage(ctx, p.UserID, ref, b.String(), nil); err != nil {
		if !errors.Is(err, messenger.ErrMessageNotFound) {
			m.log.Warn().Err(err).Int64("user_id", p.UserID).Msg("feedback edit failed")
		}
		return
	}
	p.CleanupRefs = append(p.CleanupRefs, p.QuestionMsgRef)
	p.QuestionMsgRef = ""
}

// afterMCQ decides what follows a completed MCQ phase for the current unit.
func (m *Machine) afterMCQ(ctx context.Context, p *model.UserProgress, exam *content.Exam) error {
	if len(m.narrativePool(exam, p.UnitID)) > 0 {
		p.Stage = model.StageNarrative
		p.QuestionIndex = 0
		if err := m.store.SaveState(ctx, p); err != nil {
			m.notifyTransient(ctx, p.UserID, retryKeyboard(action.ResumeExam{ExamKey: p.ExamKey}))
			return fmt.Errorf("save state: %w", err)
		}
		return m.sendNarrativePrompt(ctx, p, exam)
	}
	return m.unitAdvance(ctx, p, exam)
}

// nextQuestion re-renders the state the user should currently see. It backs
// the retry affordance after a failed send, so it must tolerate any stage.
func (m *Machine) nextQuestion(ctx context.Context, p *model.UserProgress, a action.NextQuestion) error {
	if p.ExamKey != a.ExamKey || p.Stage != model.StageMCQ {
		m.logStale(p, a)
		return nil
	}
	exam, err := m.loadExam(ctx, p.UserID, p.ExamKey)
	if err != nil {
		return err
	}
	if p.QuestionIndex >= len(m.mcqPool(exam, p.UnitID)) {
		return m.afterMCQ(ctx, p, exam)
	}
	return m.sendMCQQuestion(ctx, p, exam)
}

func (m *Machine) sendNarrativePrompt(ctx context.Context, p *model.UserProgress, exam *content.Exam) error {
	pool := m.narrativePool(exam, p.UnitID)
	q := pool[p.QuestionIndex]

	text := fmt.Sprintf("💭 Exercise %d/%d\n\n%s\n\n%s", p.QuestionIndex+1, len(pool), q.Prompt, m.phrases.Thinking())
	kb := messenger.Keyboard{
		messenger.Row(messenger.Button{
			Text:   "💡 Show answer",
			Action: action.Encode(action.RevealAnswer{ExamKey: p.ExamKey, Unit: p.UnitID, QuestionIndex: p.QuestionIndex}),
		}),
	}

	ref, err := m.msg.SendMessage(ctx, p.UserID, text, kb)
	if err != nil {
		m.notifyTransient(ctx, p.UserID, retryKeyboard(action.NextNarrative{ExamKey: p.ExamKey, Unit: p.UnitID}))
		return fmt.Errorf("send narrative %s %d/%d: %w", p.ExamKey, p.UnitID, p.QuestionIndex, err)
	}
	p.QuestionMsgRef = string(ref)
	return m.store.SaveState(ctx, p)
}

func (m *Machine) revealAnswer(ctx context.Context, p *model.UserProgress, a action.RevealAnswer) error {
	if p.ExamKey != a.ExamKey || p.Stage != model.StageNarrative || p.UnitID != a.Unit || a.QuestionIndex != p.QuestionIndex {
		m.logStale(p, a)
		return nil
	}

	exam, err := m.loadExam(ctx, p.UserID, p.ExamKey)
	if err != nil {
		return err
	}
	pool := m.narrativePool(exam, p.UnitID)
	if a.QuestionIndex >= len(pool) {
		m.logStale(p, a)
		return nil
	}
	q := pool[a.QuestionIndex]

	p.QuestionIndex++
	if err := m.store.SaveState(ctx, p); err != nil {
		p.QuestionIndex--
		m.notifyTransient(ctx, p.UserID, retryKeyboard(a))
		return fmt.Errorf("save state: %w", err)
	}

	text := fmt.Sprintf("💭 %s\n\n✅ %s", q.Prompt, q.Answer)
	kb := messenger.Keyboard{
		messenger.Row(messenger.Button{
			Text:   "➡️ Next",
			Action: action.Encode(action.NextNarrative{ExamKey: p.ExamKey, Unit: p.UnitID}),
		}),
	}
	if p.QuestionMsgRef != "" {
		if err := m.msg.EditMessage(ctx, p.UserID, messenger.MessageRef(p.QuestionMsgRef), text, kb); err == nil {
			p.CleanupRefs = append(p.CleanupRefs, p.QuestionMsgRef)
			p.QuestionMsgRef = ""
			return m.store.SaveState(ctx, p)
		} else if !errors.Is(err, messenger.ErrMessageNotFound) {
			m.log.Warn().Err(err).Int64("user_id", p.UserID).Msg("answer reveal edit failed")
		}
	}
	if ref, err := m.msg.SendMessage(ctx, p.UserID, text, kb); err == nil {
		p.CleanupRefs = append(p.CleanupRefs, string(ref))
	}
	return m.store.SaveState(ctx, p)
}

func (m *Machine) nextNarrative(ctx context.Context, p *model.UserProgress, a action.NextNarrative) error {
	if p.ExamKey != a.ExamKey || p.Stage != model.StageNarrative || p.UnitID != a.Unit {
		m.logStale(p, a)
		return nil
	}

	exam, err := m.loadExam(ctx, p.UserID, p.ExamKey)
	if err != nil {
		return err
	}
	if p.QuestionIndex < len(m.narrativePool(exam, p.UnitID)) {
		return m.sendNarrativePrompt(ctx, p, exam)
	}
	return m.unitAdvance(ctx, p, exam)
}

// unitAdvance purges the just-finished unit's messages, then either enters
// the next unit's intro (or questions, when it has no explanation levels) or
// finishes the attempt.
func (m *Machine) unitAdvance(ctx context.Context, p *model.UserProgress, exam *content.Exam) error {
	m.purgeCleanup(ctx, p)
	m.deleteRef(ctx, p.UserID, &p.QuestionMsgRef)

	if p.UnitID != model.QuickUnit {
		if next, ok := exam.NextUnit(p.UnitID); ok {
			p.UnitID = next
			p.QuestionIndex = 0
			if level, found := exam.Explanations.FirstLevel(next); found {
				p.Stage = model.StageIntro
				p.Level = level
				if err := m.store.SaveState(ctx, p); err != nil {
					m.notifyTransient(ctx, p.UserID, retryKeyboard(action.ResumeExam{ExamKey: p.ExamKey}))
					return fmt.Errorf("save state: %w", err)
				}
				return m.sendIntro(ctx, p, exam)
			}
			return m.enterQuestions(ctx, p, exam)
		}
	}

	return m.finish(ctx, p, exam)
}

// finish closes the attempt: best score, badges, the async statistic, and
// the summary message with a restart affordance.
func (m *Machine) finish(ctx context.Context, p *model.UserProgress, exam *content.Exam) error {
	total := exam.TotalMCQ()
	elapsed := 0
	if p.StartedAt != nil {
		elapsed = int(time.Since(*p.StartedAt).Seconds())
	}

	best, err := m.store.UpdateBestScore(ctx, p.UserID, p.DisplayName, p.ExamKey, p.Score, total)
	if err != nil {
		m.notifyTransient(ctx, p.UserID, retryKeyboard(action.ResumeExam{ExamKey: p.ExamKey}))
		return fmt.Errorf("update best score: %w", err)
	}

	badges, err := m.store.AwardBadges(ctx, p.UserID, p.Score, total)
	if err != nil {
		m.log.Error().Err(err).Int64("user_id", p.UserID).Str("exam", p.ExamKey).Msg("badge award failed")
	}
	if err := m.store.RecordStatistic(ctx, p.ExamKey, p.UserID, p.Score, total, elapsed); err != nil {
		m.log.Error().Err(err).Int64("user_id", p.UserID).Str("exam", p.ExamKey).Msg("statistic enqueue failed")
	}

	p.Stage = model.StageFinished
	if err := m.store.SaveState(ctx, p); err != nil {
		m.notifyTransient(ctx, p.UserID, nil)
		return fmt.Errorf("save state: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🏁 Done! Your score: %d/%d\n", p.Score, total)
	if best.NewBest && best.Attempts > 1 {
		fmt.Fprintf(&b, "🎉 A new personal best! Previous: %d\n", best.PreviousBest)
	} else if !best.NewBest {
		fmt.Fprintf(&b, "Your best so far: %d\n", best.PreviousBest)
	}
	fmt.Fprintf(&b, "Attempt #%d\n", best.Attempts)
	if len(badges) > 0 {
		fmt.Fprintf(&b, "\n🏅 Badges: %s\n", strings.Join(badges, ", "))
	}

	kb := messenger.Keyboard{
		messenger.Row(
			messenger.Button{Text: "🔄 Try again", Action: action.Encode(action.RestartExam{ExamKey: p.ExamKey})},
			messenger.Button{Text: "🏠 Main menu", Action: action.Encode(action.ShowMainMenu{})},
		),
	}
	if ref, err := m.msg.SendMessage(ctx, p.UserID, b.String(), kb); err == nil {
		p.StatusMsgRef = string(ref)
		return m.store.SaveState(ctx, p)
	}
	return nil
}

func (m *Machine) mcqPool(exam *content.Exam, unitID int) []model.MCQQuestion {
	if unitID == model.QuickUnit {
		return exam.AllMCQ()
	}
	return exam.MCQFor(unitID)
}

func (m *Machine) narrativePool(exam *content.Exam, unitID int) []model.NarrativeQuestion {
	if unitID == model.QuickUnit {
		return exam.AllNarrative()
	}
	return exam.NarrativeFor(unitID)
}

func (m *Machine) loadExam(ctx context.Context, userID int64, examKey string) (*content.Exam, error) {
	exam, err := m.content.Load(ctx, examKey)
	if err != nil {
		if errors.Is(err, content.ErrExamNotFound) {
			_, _ = m.msg.SendMessage(ctx, userID, "This exam is not available right now.", nil)
			return nil, err
		}
		m.notifyTransient(ctx, userID, nil)
		return nil, fmt.Errorf("load exam %s: %w", examKey, err)
	}
	return exam, nil
}

// purgeCleanup best-effort deletes every tracked message. Missing messages
// are expected; anything else is logged and dropped.
func (m *Machine) purgeCleanup(ctx context.Context, p *model.UserProgress) {
	for _, ref := range p.CleanupRefs {
		if err := m.msg.DeleteMessage(ctx, p.UserID, messenger.MessageRef(ref)); err != nil && !errors.Is(err, messenger.ErrMessageNotFound) {
			m.log.Debug().Err(err).Int64("user_id", p.UserID).Str("ref", ref).Msg("cleanup delete failed")
		}
	}
	p.CleanupRefs = nil
}

func (m *Machine) deleteRef(ctx context.Context, userID int64, ref *string) {
	if *ref == "" {
		return
	}
	if err := m.msg.DeleteMessage(ctx, userID, messenger.MessageRef(*ref)); err != nil && !errors.Is(err, messenger.ErrMessageNotFound) {
		m.log.Debug().Err(err).Int64("user_id", userID).Msg("message delete failed")
	}
	*ref = ""
}

func (m *Machine) notifyTransient(ctx context.Context, userID int64, kb messenger.Keyboard) {
	_, _ = m.msg.SendMessage(ctx, userID, "⚠️ Something went wrong. Please try again in a moment.", kb)
}

func (m *Machine) logStale(p *model.UserProgress, act action.Action) {
	m.log.Debug().
		Int64("user_id", p.UserID).
		Str("exam", p.ExamKey).
		Str("stage", string(p.Stage)).
		Int("index", p.QuestionIndex).
		Str("token", action.Encode(act)).
		Msg("stale action dropped")
}

func retryKeyboard(a action.Action) messenger.Keyboard {
	return messenger.Keyboard{
		messenger.Row(messenger.Button{Text: "🔁 Try again", Action: action.Encode(a)}),
	}
}
