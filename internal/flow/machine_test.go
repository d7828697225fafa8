package flow

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/mishalinitiative/quizbot/internal/action"
	"github.com/mishalinitiative/quizbot/internal/content"
	"github.com/mishalinitiative/quizbot/internal/messenger"
	"github.com/mishalinitiative/quizbot/internal/model"
	"github.com/mishalinitiative/quizbot/internal/service"
	"github.com/mishalinitiative/quizbot/internal/tableloader"
)

// --- fakes ---

type sentMessage struct {
	ref  string
	text string
	kb   messenger.Keyboard
}

type fakeMessenger struct {
	seq     int
	sent    []sentMessage
	edits   map[string]string
	deleted []string
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{edits: map[string]string{}}
}

func (f *fakeMessenger) SendMessage(_ context.Context, _ int64, text string, kb messenger.Keyboard) (messenger.MessageRef, error) {
	f.seq++
	ref := fmt.Sprintf("m%d", f.seq)
	f.sent = append(f.sent, sentMessage{ref: ref, text: text, kb: kb})
	return messenger.MessageRef(ref), nil
}

func (f *fakeMessenger) EditMessage(_ context.Context, _ int64, ref messenger.MessageRef, text string, _ messenger.Keyboard) error {
	f.edits[string(ref)] = text
	return nil
}

func (f *fakeMessenger) DeleteMessage(_ context.Context, _ int64, ref messenger.MessageRef) error {
	f.deleted = append(f.deleted, string(ref))
	return nil
}

func (f *fakeMessenger) SendMedia(ctx context.Context, userID int64, _, _, caption string, kb messenger.Keyboard) (messenger.MessageRef, error) {
	return f.SendMessage(ctx, userID, caption, kb)
}

func (f *fakeMessenger) FetchRemoteFile(context.Context, string) ([]byte, error) {
	return nil, messenger.ErrFileNotFound
}

func (f *fakeMessenger) CheckMembership(context.Context, int64) (bool, error) {
	return true, nil
}

func (f *fakeMessenger) lastText() string {
	if len(f.sent) == 0 {
		return ""
	}
	return f.sent[len(f.sent)-1].text
}

type bestScore struct {
	best     int
	attempts int
}

type fakeStore struct {
	progress   *model.UserProgress
	saves      int
	best       map[string]*bestScore
	badges     []string
	statistics int
}

func newFakeStore() *fakeStore {
	return &fakeStore{best: map[string]*bestScore{}}
}

func (f *fakeStore) LoadState(_ context.Context, userID int64, displayName string) (*model.UserProgress, error) {
	if f.progress == nil {
		f.progress = &model.UserProgress{UserID: userID, DisplayName: displayName, Answered: map[string]bool{}}
	}
	return f.progress, nil
}

func (f *fakeStore) SaveState(_ context.Context, p *model.UserProgress) error {
	f.progress = p
	f.saves++
	return nil
}

func (f *fakeStore) ResetProgress(_ context.Context, p *model.UserProgress, examKey string) error {
	p.ResetAttempt(examKey)
	f.progress = p
	return nil
}

func (f *fakeStore) UpdateBestScore(_ context.Context, _ int64, _, examKey string, score, _ int) (*service.BestScoreResult, error) {
	b, ok := f.best[examKey]
	if !ok {
		f.best[examKey] = &bestScore{best: score, attempts: 1}
		return &service.BestScoreResult{NewBest: true, Attempts: 1}, nil
	}
	result := &service.BestScoreResult{PreviousBest: b.best, NewBest: score > b.best, Attempts: b.attempts + 1}
	if score > b.best {
		b.best = score
	}
	b.attempts++
	return result, nil
}

func (f *fakeStore) AwardBadges(_ context.Context, _ int64, score, total int) ([]string, error) {
	badges := []string{model.BadgeCompleted}
	if total > 0 && score == total {
		badges = append(badges, model.BadgePerfect)
	}
	f.badges = append(f.badges, badges...)
	return badges, nil
}

func (f *fakeStore) RecordStatistic(context.Context, string, int64, int, int, int) error {
	f.statistics++
	return nil
}

type fakeContent struct {
	exams map[string]*content.Exam
}

func (f *fakeContent) Load(_ context.Context, examKey string) (*content.Exam, error) {
	exam, ok := f.exams[examKey]
	if !ok {
		return nil, content.ErrExamNotFound
	}
	return exam, nil
}

// --- fixtures ---

func mcq(prompt string, correct int) model.MCQQuestion {
	return model.MCQQuestion{
		Prompt:       prompt,
		Options:      [4]string{"opt a", "opt b", "opt c", "opt d"},
		CorrectIndex: correct,
	}
}

// demoExam has unit 1 with two explanation levels and two MCQ questions
// (correct indexes 0 and 2), no narrative, no unit 2.
func demoExam() *content.Exam {
	tree := content.NewExplanationTree()
	tree.Add(1, 1, "intro part one")
	tree.Add(1, 2, "intro part two")
	return &content.Exam{
		Key:          "exam_demo",
		Explanations: tree,
		MCQ: map[int][]model.MCQQuestion{
			1: {mcq("q1", 0), mcq("q2", 2)},
		},
		Narrative: map[int][]model.NarrativeQuestion{},
	}
}

func noIntroExam() *content.Exam {
	return &content.Exam{
		Key:          "bare",
		Explanations: content.NewExplanationTree(),
		MCQ: map[int][]model.MCQQuestion{
			1: {mcq("q1", 0), mcq("q2", 1), mcq("q3", 2)},
		},
		Narrative: map[int][]model.NarrativeQuestion{},
	}
}

func newTestMachine(exams ...*content.Exam) (*Machine, *fakeMessenger, *fakeStore) {
	msg := newFakeMessenger()
	store := newFakeStore()
	src := &fakeContent{exams: map[string]*content.Exam{}}
	for _, e := range exams {
		src.exams[e.Key] = e
	}
	phrases := content.LoadPhrases("testdata", tableloader.NewCSVLoader(zerolog.Nop()), zerolog.Nop())
	m := NewMachine(msg, store, src, phrases, zerolog.Nop())
	return m, msg, store
}

func handle(t *testing.T, m *Machine, act action.Action) {
	t.Helper()
	if err := m.Handle(context.Background(), 7, "Tester", act); err != nil {
		t.Fatalf("Handle(%T) error: %v", act, err)
	}
}

// --- tests ---

func TestEmptyExplanationSkipsIntro(t *testing.T) {
	m, msg, store := newTestMachine(noIntroExam())

	handle(t, m, action.StartExam{ExamKey: "bare"})

	if store.progress.Stage != model.StageMCQ {
		t.Fatalf("stage = %q, want %q", store.progress.Stage, model.StageMCQ)
	}
	if store.progress.QuestionIndex != 0 {
		t.Fatalf("question index = %d, want 0", store.progress.QuestionIndex)
	}
	for _, s := range msg.sent {
		if strings.Contains(s.text, "intro") || strings.Contains(s.text, "No cheating") {
			t.Fatalf("intro message emitted for empty explanation tree: %q", s.text)
		}
	}
	if !strings.Contains(msg.lastText(), "q1") {
		t.Fatalf("first question not rendered, last message: %q", msg.lastText())
	}
}

func TestAnswerIsIdempotent(t *testing.T) {
	m, _, store := newTestMachine(noIntroExam())
	handle(t, m, action.StartExam{ExamKey: "bare"})

	submit := action.AnswerSelected{ExamKey: "bare", Unit: 1, QuestionIndex: 0, OptionIndex: 0}
	handle(t, m, submit)

	if store.progress.Score != 1 {
		t.Fatalf("score = %d after correct answer, want 1", store.progress.Score)
	}
	if store.progress.QuestionIndex != 1 {
		t.Fatalf("question index = %d, want 1", store.progress.QuestionIndex)
	}
	savesAfterFirst := store.saves

	// Duplicate press for the already-consumed index must change nothing.
	handle(t, m, submit)

	if store.progress.Score != 1 {
		t.Fatalf("score mutated by duplicate submission: %d", store.progress.Score)
	}
	if store.progress.QuestionIndex != 1 {
		t.Fatalf("index mutated by duplicate submission: %d", store.progress.QuestionIndex)
	}
	if store.saves != savesAfterFirst {
		t.Fatalf("duplicate submission wrote state: %d saves, want %d", store.saves, savesAfterFirst)
	}
}

func TestIndexAdvancesByExactlyOne(t *testing.T) {
	m, _, store := newTestMachine(noIntroExam())
	handle(t, m, action.StartExam{ExamKey: "bare"})

	for i := 0; i < 3; i++ {
		before := store.progress.QuestionIndex
		if before != i {
			t.Fatalf("index before answer %d = %d", i, before)
		}
		handle(t, m, action.AnswerSelected{ExamKey: "bare", Unit: 1, QuestionIndex: i, OptionIndex: 3})
		if store.progress.Stage == model.StageFinished {
			break
		}
		if got := store.progress.QuestionIndex; got != before+1 {
			t.Fatalf("index after answer %d = %d, want %d", i, got, before+1)
		}
	}
}

func TestStaleIndexIsDropped(t *testing.T) {
	m, _, store := newTestMachine(noIntroExam())
	handle(t, m, action.StartExam{ExamKey: "bare"})
	handle(t, m, action.AnswerSelected{ExamKey: "bare", Unit: 1, QuestionIndex: 0, OptionIndex: 0})

	// Out-of-order index: persisted index is 1, action says 2.
	handle(t, m, action.AnswerSelected{ExamKey: "bare", Unit: 1, QuestionIndex: 2, OptionIndex: 0})

	if store.progress.QuestionIndex != 1 {
		t.Fatalf("out-of-order action advanced index to %d", store.progress.QuestionIndex)
	}
	if store.progress.Score != 1 {
		t.Fatalf("out-of-order action changed score to %d", store.progress.Score)
	}
}

func TestResumeRestoresRetryResets(t *testing.T) {
	m, _, store := newTestMachine(noIntroExam())

	// Simulate an interrupted attempt at question 2 with score 2.
	store.progress = &model.UserProgress{
		UserID: 7, DisplayName: "Tester", ExamKey: "bare",
		Stage: model.StageMCQ, UnitID: 1, QuestionIndex: 2, Score: 2,
		Answered: map[string]bool{
			model.AnswerKey(1, 0): true,
			model.AnswerKey(1, 1): true,
		},
	}
	store.best["bare"] = &bestScore{best: 3, attempts: 1}

	handle(t, m, action.ResumeExam{ExamKey: "bare"})
	if store.progress.QuestionIndex != 2 || store.progress.Score != 2 {
		t.Fatalf("resume mutated state: index=%d score=%d", store.progress.QuestionIndex, store.progress.Score)
	}
	if store.progress.Stage != model.StageMCQ {
		t.Fatalf("resume stage = %q", store.progress.Stage)
	}

	handle(t, m, action.RetryExam{ExamKey: "bare"})
	if store.progress.QuestionIndex != 0 || store.progress.Score != 0 {
		t.Fatalf("retry did not reset: index=%d score=%d", store.progress.QuestionIndex, store.progress.Score)
	}
	if len(store.progress.Answered) != 0 {
		t.Fatalf("retry kept answered map: %v", store.progress.Answered)
	}
	if store.best["bare"].best != 3 {
		t.Fatalf("retry touched best score: %d", store.best["bare"].best)
	}

	// Finishing the retried attempt with a lower score keeps the old best.
	handle(t, m, action.AnswerSelected{ExamKey: "bare", Unit: 1, QuestionIndex: 0, OptionIndex: 0})
	handle(t, m, action.AnswerSelected{ExamKey: "bare", Unit: 1, QuestionIndex: 1, OptionIndex: 3})
	handle(t, m, action.AnswerSelected{ExamKey: "bare", Unit: 1, QuestionIndex: 2, OptionIndex: 3})
	if store.best["bare"].best != 3 {
		t.Fatalf("lower retry score overwrote best: %d", store.best["bare"].best)
	}
	if store.best["bare"].attempts != 2 {
		t.Fatalf("attempt count = %d, want 2", store.best["bare"].attempts)
	}
}

func TestStartOffersResumeForInterruptedAttempt(t *testing.T) {
	m, msg, store := newTestMachine(noIntroExam())
	store.progress = &model.UserProgress{
		UserID: 7, DisplayName: "Tester", ExamKey: "bare",
		Stage: model.StageMCQ, UnitID: 1, QuestionIndex: 1, Score: 1,
		Answered: map[string]bool{model.AnswerKey(1, 0): true},
	}

	handle(t, m, action.StartExam{ExamKey: "bare"})

	if store.progress.QuestionIndex != 1 || store.progress.Score != 1 {
		t.Fatalf("start silently overwrote interrupted attempt: index=%d score=%d",
			store.progress.QuestionIndex, store.progress.Score)
	}
	last := msg.sent[len(msg.sent)-1]
	var actions []string
	for _, row := range last.kb {
		for _, b := range row {
			actions = append(actions, b.Action)
		}
	}
	want := []string{
		action.Encode(action.ResumeExam{ExamKey: "bare"}),
		action.Encode(action.RetryExam{ExamKey: "bare"}),
	}
	for _, w := range want {
		found := false
		for _, a := range actions {
			if a == w {
				found = true
			}
		}
		if !found {
			t.Fatalf("resume prompt missing %q, got %v", w, actions)
		}
	}
}

func TestFullDemoExamFlow(t *testing.T) {
	m, msg, store := newTestMachine(demoExam())

	// Start: notice plus intro level 1.
	handle(t, m, action.StartExam{ExamKey: "exam_demo"})
	if store.progress.Stage != model.StageIntro || store.progress.Level != 1 {
		t.Fatalf("after start: stage=%q level=%d", store.progress.Stage, store.progress.Level)
	}
	if !strings.Contains(msg.lastText(), "intro part one") {
		t.Fatalf("level 1 not rendered: %q", msg.lastText())
	}
	cleanupSize := len(store.progress.CleanupRefs)
	if cleanupSize == 0 {
		t.Fatal("intro messages not tracked for cleanup")
	}

	// Continue: level 2.
	handle(t, m, action.ContinueIntro{ExamKey: "exam_demo", Unit: 1, Level: 1})
	if store.progress.Level != 2 {
		t.Fatalf("level = %d, want 2", store.progress.Level)
	}
	if !strings.Contains(msg.lastText(), "intro part two") {
		t.Fatalf("level 2 not rendered: %q", msg.lastText())
	}

	// Continue past the last level: cleanup purge plus first question.
	preDeleted := len(msg.deleted)
	handle(t, m, action.ContinueIntro{ExamKey: "exam_demo", Unit: 1, Level: 2})
	if store.progress.Stage != model.StageMCQ || store.progress.QuestionIndex != 0 {
		t.Fatalf("quiz entry: stage=%q index=%d", store.progress.Stage, store.progress.QuestionIndex)
	}
	if len(msg.deleted) <= preDeleted {
		t.Fatal("cleanup set not purged on quiz entry")
	}
	if len(store.progress.CleanupRefs) != 0 {
		t.Fatalf("cleanup refs remain after purge: %v", store.progress.CleanupRefs)
	}

	// Correct answer, then incorrect answer.
	handle(t, m, action.AnswerSelected{ExamKey: "exam_demo", Unit: 1, QuestionIndex: 0, OptionIndex: 0})
	if store.progress.Score != 1 {
		t.Fatalf("score after correct answer = %d", store.progress.Score)
	}
	handle(t, m, action.AnswerSelected{ExamKey: "exam_demo", Unit: 1, QuestionIndex: 1, OptionIndex: 1})
	if store.progress.Score != 1 {
		t.Fatalf("score after wrong answer = %d", store.progress.Score)
	}

	// No narrative, no unit 2: finished with 1/2 recorded.
	if store.progress.Stage != model.StageFinished {
		t.Fatalf("stage = %q, want finished", store.progress.Stage)
	}
	if store.best["exam_demo"] == nil || store.best["exam_demo"].best != 1 {
		t.Fatalf("best score not recorded: %+v", store.best["exam_demo"])
	}
	if store.best["exam_demo"].attempts != 1 {
		t.Fatalf("attempts = %d, want 1", store.best["exam_demo"].attempts)
	}
	if store.statistics != 1 {
		t.Fatalf("statistics recorded = %d, want 1", store.statistics)
	}
	if !strings.Contains(msg.lastText(), "1/2") {
		t.Fatalf("summary missing score: %q", msg.lastText())
	}
}

func TestQuickStartUsesWholePool(t *testing.T) {
	exam := demoExam()
	exam.Narrative[2] = []model.NarrativeQuestion{{Prompt: "think", Answer: "42", UnitID: 2}}
	m, msg, store := newTestMachine(exam)

	handle(t, m, action.QuickStart{ExamKey: "exam_demo"})

	if store.progress.UnitID != model.QuickUnit {
		t.Fatalf("unit = %d, want quick marker", store.progress.UnitID)
	}
	if store.progress.Stage != model.StageMCQ {
		t.Fatalf("stage = %q", store.progress.Stage)
	}
	for _, s := range msg.sent {
		if strings.Contains(s.text, "intro part") || strings.Contains(s.text, "No cheating") {
			t.Fatalf("quick start emitted intro content: %q", s.text)
		}
	}

	// Both MCQs answered, then the narrative exercise from the whole pool.
	handle(t, m, action.AnswerSelected{ExamKey: "exam_demo", Unit: model.QuickUnit, QuestionIndex: 0, OptionIndex: 0})
	handle(t, m, action.AnswerSelected{ExamKey: "exam_demo", Unit: model.QuickUnit, QuestionIndex: 1, OptionIndex: 2})
	if store.progress.Stage != model.StageNarrative {
		t.Fatalf("stage after MCQs = %q, want narrative", store.progress.Stage)
	}
	handle(t, m, action.RevealAnswer{ExamKey: "exam_demo", Unit: model.QuickUnit, QuestionIndex: 0})
	handle(t, m, action.NextNarrative{ExamKey: "exam_demo", Unit: model.QuickUnit})
	if store.progress.Stage != model.StageFinished {
		t.Fatalf("stage = %q, want finished", store.progress.Stage)
	}
	if store.progress.Score != 2 {
		t.Fatalf("score = %d, want 2", store.progress.Score)
	}
}

func TestNarrativeRevealIsReplaySafe(t *testing.T) {
	exam := &content.Exam{
		Key:          "talk",
		Explanations: content.NewExplanationTree(),
		MCQ:          map[int][]model.MCQQuestion{},
		Narrative: map[int][]model.NarrativeQuestion{
			1: {
				{Prompt: "p1", Answer: "a1"},
				{Prompt: "p2", Answer: "a2"},
			},
		},
	}
	m, _, store := newTestMachine(exam)

	handle(t, m, action.StartExam{ExamKey: "talk"})
	if store.progress.Stage != model.StageNarrative {
		t.Fatalf("stage = %q", store.progress.Stage)
	}

	reveal := action.RevealAnswer{ExamKey: "talk", Unit: 1, QuestionIndex: 0}
	handle(t, m, reveal)
	if store.progress.QuestionIndex != 1 {
		t.Fatalf("index after reveal = %d", store.progress.QuestionIndex)
	}

	// Double-tap on the same reveal button.
	handle(t, m, reveal)
	if store.progress.QuestionIndex != 1 {
		t.Fatalf("duplicate reveal advanced index to %d", store.progress.QuestionIndex)
	}
}
