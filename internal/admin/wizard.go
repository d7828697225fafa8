// Package admin implements the in-chat exam creation wizard. Wizard state
// is transient and lives in Redis under a per-admin key, so an abandoned
// wizard simply expires.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/mishalinitiative/quizbot/internal/action"
	"github.com/mishalinitiative/quizbot/internal/config"
	"github.com/mishalinitiative/quizbot/internal/content"
	"github.com/mishalinitiative/quizbot/internal/messenger"
	"github.com/mishalinitiative/quizbot/internal/model"
	"github.com/mishalinitiative/quizbot/internal/repository"
)

const wizardTTL = 30 * time.Minute

var examIDPattern = regexp.MustCompile(`^[a-z0-9_]{2,32}$`)

// Wizard steps, advanced strictly in order.
const (
	stepExamID      = "exam_id"
	stepButtonText  = "button_text"
	stepType        = "question_type"
	stepExplanation = "explanation"
	stepMCQ         = "mcq"
	stepNarrative   = "narrative"
	stepMedia       = "media"
)

type wizardState struct {
	Step              string             `json:"step"`
	ExamID            string             `json:"exam_id"`
	ButtonText        string             `json:"button_text"`
	QuestionType      model.QuestionType `json:"question_type"`
	ExplanationFileID string             `json:"explanation_file_id"`
	MCQFileID         string             `json:"mcq_file_id"`
	NarrativeFileID   string             `json:"narrative_file_id"`

	Media map[string]model.MediaAttachment `json:"media,omitempty"`
}

// Wizard drives the multi-step exam creation dialogue with the admin.
type Wizard struct {
	rdb      *redis.Client
	examRepo *repository.ExamRepository
	loader   *content.Loader
	msg      messenger.Messenger
	log      zerolog.Logger
}

// NewWizard creates the exam creation wizard.
func NewWizard(rdb *redis.Client, examRepo *repository.ExamRepository, loader *content.Loader, msg messenger.Messenger, log zerolog.Logger) *Wizard {
	return &Wizard{
		rdb:      rdb,
		examRepo: examRepo,
		loader:   loader,
		msg:      msg,
		log:      log.With().Str("component", "wizard").Logger(),
	}
}

// Active reports whether the admin has a wizard in progress.
func (w *Wizard) Active(ctx context.Context, userID int64) bool {
	n, err := w.rdb.Exists(ctx, config.CacheKey.WizardStateKey(userID)).Result()
	if err != nil {
		w.log.Warn().Err(err).Msg("wizard state check failed")
		return false
	}
	return n > 0
}

// Start begins a fresh wizard, discarding any previous one.
func (w *Wizard) Start(ctx context.Context, userID int64) error {
	if err := w.save(ctx, userID, &wizardState{Step: stepExamID}); err != nil {
		return err
	}
	return w.prompt(ctx, userID,
		"🛠 New exam. Send a short identifier (lowercase letters, digits, underscores), e.g. algebra_2.")
}

// Cancel discards the wizard state.
func (w *Wizard) Cancel(ctx context.Context, userID int64) error {
	if err := w.rdb.Del(ctx, config.CacheKey.WizardStateKey(userID)).Err(); err != nil {
		return err
	}
	_, err := w.msg.SendMessage(ctx, userID, "Wizard cancelled.", nil)
	return err
}

// HandleInput consumes one admin message while the wizard is active.
func (w *Wizard) HandleInput(ctx context.Context, upd messenger.Update) error {
	state, err := w.load(ctx, upd.UserID)
	if err != nil {
		return err
	}
	if state == nil {
		return nil
	}

	switch state.Step {
	case stepExamID:
		id := strings.ToLower(strings.TrimSpace(upd.Text))
		if !examIDPattern.MatchString(id) {
			return w.prompt(ctx, upd.UserID, "That identifier is invalid. Use 2-32 of a-z, 0-9 and _.")
		}
		if _, err := w.examRepo.GetByID(ctx, id); err == nil {
			return w.prompt(ctx, upd.UserID, "An exam with that identifier already exists. Pick another.")
		} else if !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		state.ExamID = id
		state.Step = stepButtonText
		if err := w.save(ctx, upd.UserID, state); err != nil {
			return err
		}
		return w.prompt(ctx, upd.UserID, "Now send the button label users will see in the menu.")

	case stepButtonText:
		text := strings.TrimSpace(upd.Text)
		if text == "" || len(text) > 64 {
			return w.prompt(ctx, upd.UserID, "The label must be 1-64 characters.")
		}
		state.ButtonText = text
		state.Step = stepType
		if err := w.save(ctx, upd.UserID, state); err != nil {
			return err
		}
		return w.prompt(ctx, upd.UserID, "Question type? Reply with: mcq, narrative, or both.")

	case stepType:
		switch strings.ToLower(strings.TrimSpace(upd.Text)) {
		case "mcq":
			state.QuestionType = model.QuestionTypeMCQ
		case "narrative":
			state.QuestionType = model.QuestionTypeNarrative
		case "both":
			state.QuestionType = model.QuestionTypeBoth
		default:
			return w.prompt(ctx, upd.UserID, "Reply with exactly: mcq, narrative, or both.")
		}
		state.Step = stepExplanation
		if err := w.save(ctx, upd.UserID, state); err != nil {
			return err
		}
		return w.prompt(ctx, upd.UserID, "Upload the explanation CSV (columns: unit, level, text), or reply skip.")

	case stepExplanation:
		if upd.Document != nil {
			report, err := w.analyzeExplanation(ctx, upd.Document.FileID)
			if err != nil {
				w.log.Warn().Err(err).Str("file_id", upd.Document.FileID).Msg("explanation analysis failed")
				return w.prompt(ctx, upd.UserID, "⚠️ Could not read that file as a CSV. Upload it again or reply skip.")
			}
			state.ExplanationFileID = upd.Document.FileID
			if err := w.prompt(ctx, upd.UserID, report); err != nil {
				return err
			}
		} else if !isSkip(upd.Text) {
			return w.prompt(ctx, upd.UserID, "Upload a CSV file or reply skip.")
		}
		if state.QuestionType == model.QuestionTypeNarrative {
			state.Step = stepNarrative
			if err := w.save(ctx, upd.UserID, state); err != nil {
				return err
			}
			return w.prompt(ctx, upd.UserID, "Upload the narrative CSV (columns: question, answer; an optional unit column assigns rows to explanation units).")
		}
		state.Step = stepMCQ
		if err := w.save(ctx, upd.UserID, state); err != nil {
			return err
		}
		return w.prompt(ctx, upd.UserID, "Upload the MCQ CSV (columns: question, option_a..option_d, correct_answer; add a unit column to assign rows to explanation units, rows without one go to unit 1).")

	case stepMCQ:
		if upd.Document == nil {
			return w.prompt(ctx, upd.UserID, "Upload the MCQ CSV file.")
		}
		state.MCQFileID = upd.Document.FileID
		if state.QuestionType == model.QuestionTypeBoth {
			state.Step = stepNarrative
			if err := w.save(ctx, upd.UserID, state); err != nil {
				return err
			}
			return w.prompt(ctx, upd.UserID, "Upload the narrative CSV (columns: question, answer; an optional unit column assigns rows to explanation units).")
		}
		return w.enterMediaStep(ctx, upd.UserID, state)

	case stepNarrative:
		if upd.Document == nil {
			return w.prompt(ctx, upd.UserID, "Upload the narrative CSV file.")
		}
		state.NarrativeFileID = upd.Document.FileID
		return w.enterMediaStep(ctx, upd.UserID, state)

	case stepMedia:
		if isSkip(upd.Text) || strings.EqualFold(strings.TrimSpace(upd.Text), "done") {
			return w.complete(ctx, upd.UserID, state)
		}
		slot, attachment, err := parseMediaLine(upd.Text)
		if err != nil {
			return w.prompt(ctx, upd.UserID,
				"Could not read that. Use unit:level:photo|video|url <payload>, or reply done.")
		}
		if state.Media == nil {
			state.Media = map[string]model.MediaAttachment{}
		}
		state.Media[slot] = attachment
		if err := w.save(ctx, upd.UserID, state); err != nil {
			return err
		}
		return w.prompt(ctx, upd.UserID,
			fmt.Sprintf("Attached %s media at %s. Send another, or reply done.", attachment.Kind, slot))
	}

	w.log.Warn().Str("step", state.Step).Msg("wizard in unknown step, discarding")
	return w.Cancel(ctx, upd.UserID)
}

// complete persists the new exam definition and makes it live.
func (w *Wizard) complete(ctx context.Context, userID int64, state *wizardState) error {
	now := time.Now()
	def := &model.ExamDefinition{
		ExamID:           state.ExamID,
		ButtonText:       state.ButtonText,
		QuestionType:     state.QuestionType,
		MCQSources:       map[int]model.SourceRef{},
		NarrativeSources: map[int]model.SourceRef{},
		Media:            state.Media,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if def.Media == nil {
		def.Media = map[string]model.MediaAttachment{}
	}
	if state.ExplanationFileID != "" {
		def.ExplanationSource = model.SourceRef{RemoteFileID: state.ExplanationFileID}
	}
	// One upload covers every unit; the loader splits its rows across
	// units by their unit column.
	if state.MCQFileID != "" {
		def.MCQSources[model.SharedUnit] = model.SourceRef{RemoteFileID: state.MCQFileID}
	}
	if state.NarrativeFileID != "" {
		def.NarrativeSources[model.SharedUnit] = model.SourceRef{RemoteFileID: state.NarrativeFileID}
	}

	if err := w.examRepo.Create(ctx, def); err != nil {
		w.log.Error().Err(err).Str("exam_id", state.ExamID).Msg("exam create failed")
		return w.prompt(ctx, userID, "⚠️ Could not save the exam. Upload the last file again to retry.")
	}

	if err := w.rdb.Del(ctx, config.CacheKey.WizardStateKey(userID)).Err(); err != nil {
		w.log.Warn().Err(err).Msg("wizard state cleanup failed")
	}
	w.loader.Invalidate()

	kb := messenger.Keyboard{
		messenger.Row(messenger.Button{
			Text:   "▶️ Open it",
			Action: action.Encode(action.StartExam{ExamKey: def.Key()}),
		}),
	}
	_, err := w.msg.SendMessage(ctx, userID,
		fmt.Sprintf("✅ Exam %s created. It now appears in the main menu as %q.", def.Key(), def.ButtonText), kb)
	return err
}

func (w *Wizard) enterMediaStep(ctx context.Context, userID int64, state *wizardState) error {
	state.Step = stepMedia
	if err := w.save(ctx, userID, state); err != nil {
		return err
	}
	return w.prompt(ctx, userID,
		"Optionally attach media to explanation levels: send lines like 2:1:photo <file id or URL>, then reply done. Reply skip for none.")
}

// parseMediaLine reads one "unit:level:kind payload" attachment line.
func parseMediaLine(line string) (string, model.MediaAttachment, error) {
	fields := strings.Fields(strings.TrimSpace(line))
	if len(fields) < 2 {
		return "", model.MediaAttachment{}, fmt.Errorf("media line needs a slot and a payload")
	}
	parts := strings.Split(fields[0], ":")
	if len(parts) != 3 {
		return "", model.MediaAttachment{}, fmt.Errorf("slot must be unit:level:kind")
	}
	unit, errU := strconv.Atoi(parts[0])
	level, errL := strconv.Atoi(parts[1])
	if errU != nil || errL != nil {
		return "", model.MediaAttachment{}, fmt.Errorf("unit and level must be numbers")
	}
	var kind model.MediaKind
	switch parts[2] {
	case "photo":
		kind = model.MediaKindPhoto
	case "video":
		kind = model.MediaKindVideo
	case "url":
		kind = model.MediaKindURL
	default:
		return "", model.MediaAttachment{}, fmt.Errorf("unknown media kind %q", parts[2])
	}
	return model.MediaSlot(unit, level), model.MediaAttachment{
		Kind:    kind,
		Payload: strings.Join(fields[1:], " "),
	}, nil
}

// analyzeExplanation fetches the uploaded table and summarizes the tree it
// would produce, so the admin can spot a bad upload before finalizing.
func (w *Wizard) analyzeExplanation(ctx context.Context, fileID string) (string, error) {
	data, err := w.msg.FetchRemoteFile(ctx, fileID)
	if err != nil {
		return "", err
	}
	sum, err := w.loader.AnalyzeExplanation(data)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📊 Explanation structure: %d units across %d rows.\n", len(sum.Units), sum.TotalRows)
	for _, u := range sum.Units {
		fmt.Fprintf(&b, "• unit %d: %d levels\n", u, sum.LevelsCount[u])
	}
	if sum.Dropped > 0 {
		fmt.Fprintf(&b, "⚠️ %d unreadable rows will be dropped.\n", sum.Dropped)
	}
	return b.String(), nil
}

func (w *Wizard) prompt(ctx context.Context, userID int64, text string) error {
	kb := messenger.Keyboard{
		messenger.Row(messenger.Button{Text: "✖️ Cancel", Action: action.Encode(action.AdminCancelWizard{})}),
	}
	_, err := w.msg.SendMessage(ctx, userID, text, kb)
	return err
}

func (w *Wizard) load(ctx context.Context, userID int64) (*wizardState, error) {
	blob, err := w.rdb.Get(ctx, config.CacheKey.WizardStateKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("load wizard state: %w", err)
	}
	state := &wizardState{}
	if err := json.Unmarshal([]byte(blob), state); err != nil {
		return nil, fmt.Errorf("decode wizard state: %w", err)
	}
	return state, nil
}

func (w *Wizard) save(ctx context.Context, userID int64, state *wizardState) error {
	blob, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode wizard state: %w", err)
	}
	return w.rdb.Set(ctx, config.CacheKey.WizardStateKey(userID), blob, wizardTTL).Err()
}

func isSkip(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	return t == "skip" || t == "/skip"
}
