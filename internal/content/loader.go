// Package content materializes exam definitions into in-memory question
// banks and explanation trees, with best-effort file resolution: local disk
// first, then the messenger's remote file retrieval, then empty.
package content

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"github.com/mishalinitiative/quizbot/internal/model"
	"github.com/mishalinitiative/quizbot/internal/tableloader"
	"github.com/rs/zerolog"
)

// ErrExamNotFound is the only fatal loader signal: the exam key resolves to
// no definition anywhere.
var ErrExamNotFound = errors.New("content: exam not found")

// ExamSource resolves dynamic exam definitions from the store.
type ExamSource interface {
	GetByID(ctx context.Context, examID string) (*model.ExamDefinition, error)
	List(ctx context.Context, includeHidden bool) ([]model.ExamDefinition, error)
}

// RemoteFetcher retrieves a file by its remote handle. Satisfied by the
// messenger client.
type RemoteFetcher interface {
	FetchRemoteFile(ctx context.Context, fileID string) ([]byte, error)
}

// Exam is one fully materialized exam: definition, explanation tree and
// question banks keyed by unit.
type Exam struct {
	Def          model.ExamDefinition
	Key          string
	Explanations *ExplanationTree
	MCQ          map[int][]model.MCQQuestion
	Narrative    map[int][]model.NarrativeQuestion
}

// Units returns the ordered union of unit ids across explanations and
// question banks. Materialization resolves every question to a concrete
// unit, so the keys here are always real units.
func (e *Exam) Units() []int {
	seen := map[int]bool{}
	for _, u := range e.Explanations.Units() {
		seen[u] = true
	}
	for u := range e.MCQ {
		seen[u] = true
	}
	for u := range e.Narrative {
		seen[u] = true
	}
	units := make([]int, 0, len(seen))
	for u := range seen {
		units = append(units, u)
	}
	sort.Ints(units)
	return units
}

// NextUnit returns the first unit id greater than unitID, if any.
func (e *Exam) NextUnit(unitID int) (int, bool) {
	for _, u := range e.Units() {
		if u > unitID {
			return u, true
		}
	}
	return 0, false
}

// MCQFor returns the MCQ bank of exactly one unit. Each question belongs
// to exactly one partition, so iterating the units serves every question
// exactly once per attempt.
func (e *Exam) MCQFor(unitID int) []model.MCQQuestion {
	return e.MCQ[unitID]
}

// NarrativeFor mirrors MCQFor for the narrative bank.
func (e *Exam) NarrativeFor(unitID int) []model.NarrativeQuestion {
	return e.Narrative[unitID]
}

// AllMCQ returns the entire unfiltered MCQ pool in unit order. Used by the
// quick-start entry, which ignores unit partitioning.
func (e *Exam) AllMCQ() []model.MCQQuestion {
	var units []int
	for u := range e.MCQ {
		units = append(units, u)
	}
	sort.Ints(units)
	var all []model.MCQQuestion
	for _, u := range units {
		all = append(all, e.MCQ[u]...)
	}
	return all
}

// AllNarrative returns the entire unfiltered narrative pool in unit order.
func (e *Exam) AllNarrative() []model.NarrativeQuestion {
	var units []int
	for u := range e.Narrative {
		units = append(units, u)
	}
	sort.Ints(units)
	var all []model.NarrativeQuestion
	for _, u := range units {
		all = append(all, e.Narrative[u]...)
	}
	return all
}

// TotalMCQ counts the graded questions of the whole exam.
func (e *Exam) TotalMCQ() int {
	n := 0
	for _, qs := range e.MCQ {
		n += len(qs)
	}
	return n
}

// Media returns the attachment for (unit, level), if configured.
func (e *Exam) Media(unitID, level int) (model.MediaAttachment, bool) {
	m, ok := e.Def.Media[model.MediaSlot(unitID, level)]
	return m, ok
}

// Loader resolves exam keys to materialized exams with an in-memory cache.
// The cache is invalidated wholesale: a reload builds a fresh map and swaps
// it, so concurrent readers see either the old or the new generation.
type Loader struct {
	exams   ExamSource
	tables  tableloader.Loader
	fetch   RemoteFetcher
	dataDir string
	log     zerolog.Logger

	mu    sync.RWMutex
	cache map[string]*Exam
}

// NewLoader creates a Loader.
func NewLoader(exams ExamSource, tables tableloader.Loader, fetch RemoteFetcher, dataDir string, log zerolog.Logger) *Loader {
	return &Loader{
		exams:   exams,
		tables:  tables,
		fetch:   fetch,
		dataDir: dataDir,
		log:     log.With().Str("component", "content_loader").Logger(),
		cache:   map[string]*Exam{},
	}
}

// Load materializes the exam behind examKey, serving from cache when
// possible. ExamNotFound is the only fatal signal; per-file and per-row
// problems are absorbed into best-effort partial content.
func (l *Loader) Load(ctx context.Context, examKey string) (*Exam, error) {
	l.mu.RLock()
	if exam, ok := l.cache[examKey]; ok {
		l.mu.RUnlock()
		return exam, nil
	}
	l.mu.RUnlock()

	def, err := l.resolveDefinition(ctx, examKey)
	if err != nil {
		return nil, err
	}

	exam := l.materialize(ctx, examKey, def)

	l.mu.Lock()
	l.cache[examKey] = exam
	l.mu.Unlock()

	return exam, nil
}

// ExplanationSummary describes the shape of an uploaded explanation table
// before it is committed to an exam.
type ExplanationSummary struct {
	Units       []int
	LevelsCount map[int]int
	TotalRows   int
	Dropped     int
}

// AnalyzeExplanation parses raw explanation CSV bytes exactly the way Load
// would and reports the resulting tree shape.
func (l *Loader) AnalyzeExplanation(data []byte) (*ExplanationSummary, error) {
	rows, err := l.tables.ParseTable(data)
	if err != nil {
		return nil, err
	}
	tree := parseExplanationRows(rows)

	sum := &ExplanationSummary{LevelsCount: map[int]int{}, TotalRows: len(rows)}
	kept := 0
	for _, u := range tree.Units() {
		n := len(tree.Levels(u))
		sum.Units = append(sum.Units, u)
		sum.LevelsCount[u] = n
		kept += n
	}
	sum.Dropped = len(rows) - kept
	return sum, nil
}

// Invalidate drops the whole cache generation. Triggered by the admin
// "reload data" action.
func (l *Loader) Invalidate() {
	l.mu.Lock()
	l.cache = map[string]*Exam{}
	l.mu.Unlock()
	l.log.Info().Msg("content cache invalidated")
}

func (l *Loader) resolveDefinition(ctx context.Context, examKey string) (*model.ExamDefinition, error) {
	if def, ok := builtinDefinition(examKey); ok {
		return def, nil
	}
	if !model.IsDynamicKey(examKey) {
		return nil, ErrExamNotFound
	}

	examID := model.ExamIDFromKey(examKey)
	def, err := l.exams.GetByID(ctx, examID)
	if err == nil {
		return def, nil
	}

	// The relational row may be absent in environments without the table
	// initialized; a local JSON blob is the fallback of last resort.
	if def := l.definitionFromJSON(examID); def != nil {
		return def, nil
	}
	l.log.Warn().Str("exam_id", examID).Err(err).Msg("exam definition not found")
	return nil, ErrExamNotFound
}

func (l *Loader) definitionFromJSON(examID string) *model.ExamDefinition {
	raw, err := os.ReadFile(filepath.Join(l.dataDir, "exams.json"))
	if err != nil {
		return nil
	}
	var defs map[string]model.ExamDefinition
	if err := json.Unmarshal(raw, &defs); err != nil {
		l.log.Error().Err(err).Msg("exams.json unreadable")
		return nil
	}
	if def, ok := defs[examID]; ok {
		def.ExamID = examID
		return &def
	}
	return nil
}

func (l *Loader) materialize(ctx context.Context, examKey string, def *model.ExamDefinition) *Exam {
	exam := &Exam{
		Def:          *def,
		Key:          examKey,
		Explanations: NewExplanationTree(),
		MCQ:          map[int][]model.MCQQuestion{},
		Narrative:    map[int][]model.NarrativeQuestion{},
	}

	if !def.ExplanationSource.IsZero() {
		rows := l.resolveSource(ctx, def.ExamID, def.ExplanationSource)
		exam.Explanations = parseExplanationRows(rows)
	}

	// Questions are partitioned by their resolved unit, never by the
	// mapping key: a shared bank splits across units via its unit column,
	// and rows without one land in the source's default unit. A question
	// therefore belongs to exactly one unit and is served once per attempt.
	for unit, ref := range def.MCQSources {
		rows := l.resolveSource(ctx, def.ExamID, ref)
		for _, q := range l.parseMCQRows(def.ExamID, sourceDefaultUnit(unit), rows) {
			exam.MCQ[q.UnitID] = append(exam.MCQ[q.UnitID], q)
		}
	}
	for unit, ref := range def.NarrativeSources {
		rows := l.resolveSource(ctx, def.ExamID, ref)
		for _, q := range l.parseNarrativeRows(sourceDefaultUnit(unit), rows) {
			exam.Narrative[q.UnitID] = append(exam.Narrative[q.UnitID], q)
		}
	}

	l.log.Info().
		Str("exam_key", examKey).
		Int("mcq", exam.TotalMCQ()).
		Int("units", len(exam.Units())).
		Msg("exam materialized")
	return exam
}

// sourceDefaultUnit maps a source mapping key to the unit its unlabeled
// rows fall into. Shared banks default to unit 1.
func sourceDefaultUnit(unit int) int {
	if unit == model.SharedUnit {
		return 1
	}
	return unit
}

// resolveSource loads a table locally, falling back to the remote handle.
// Every failure path degrades to nil rows; nothing here is fatal.
func (l *Loader) resolveSource(ctx context.Context, examID string, ref model.SourceRef) []tableloader.Row {
	if ref.IsZero() {
		return nil
	}

	localPath := ref.LocalPath
	if localPath != "" && !filepath.IsAbs(localPath) {
		localPath = filepath.Join(l.dataDir, localPath)
	}

	if localPath != "" {
		rows, err := l.tables.LoadTable(localPath)
		if err == nil {
			return rows
		}
		if !errors.Is(err, tableloader.ErrFileAbsent) {
			l.log.Error().Str("path", localPath).Err(err).Msg("local table unreadable")
			return nil
		}
	}

	if ref.RemoteFileID == "" {
		l.log.Warn().Str("exam_id", examID).Str("path", ref.LocalPath).Msg("table absent and no remote handle")
		return nil
	}

	data, err := l.fetch.FetchRemoteFile(ctx, ref.RemoteFileID)
	if err != nil {
		l.log.Error().Str("exam_id", examID).Str("file_id", ref.RemoteFileID).Err(err).Msg("remote fetch failed")
		return nil
	}

	// Cache the fetched bytes so the next reload is local.
	if localPath != "" {
		if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err == nil {
			if err := os.WriteFile(localPath, data, 0o644); err != nil {
				l.log.Warn().Str("path", localPath).Err(err).Msg("could not cache fetched table")
			}
		}
	}

	rows, err := l.tables.ParseTable(data)
	if err != nil {
		l.log.Error().Str("exam_id", examID).Err(err).Msg("fetched table unparsable")
		return nil
	}
	return rows
}

func (l *Loader) parseMCQRows(examID string, defaultUnit int, rows []tableloader.Row) []model.MCQQuestion {
	var questions []model.MCQQuestion
	for i, row := range rows {
		prompt := row.GetAny("question", "q", "question_text", "prompt")
		options := [4]string{
			row.GetAny("option_a", "a"),
			row.GetAny("option_b", "b"),
			row.GetAny("option_c", "c"),
			row.GetAny("option_d", "d"),
		}
		if prompt == "" || options[0] == "" || options[1] == "" {
			l.log.Error().Str("exam_id", examID).Int("row", i+2).Msg("dropping incomplete MCQ row")
			continue
		}

		correct, err := ResolveCorrectIndex(row.GetAny("correct_answer", "correct", "answer"), options)
		if err != nil {
			l.log.Error().Str("exam_id", examID).Int("row", i+2).Err(err).Msg("dropping unresolvable MCQ row")
			continue
		}

		unit := defaultUnit
		if raw := row.GetAny("unit", "unit_id", "part"); raw != "" {
			if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
				unit = parsed
			}
		}

		questions = append(questions, model.MCQQuestion{
			Prompt:             prompt,
			Options:            options,
			CorrectIndex:       correct,
			CorrectExplanation: row.GetAny("explanation_feedback", "correct_explanation", "explanation"),
			ConceptExplanation: row.GetAny("concept", "concept_explanation"),
			OptionExplanations: [4]string{
				row.Get("explanation_a"),
				row.Get("explanation_b"),
				row.Get("explanation_c"),
				row.Get("explanation_d"),
			},
			UnitID: unit,
		})
	}
	return questions
}

func (l *Loader) parseNarrativeRows(defaultUnit int, rows []tableloader.Row) []model.NarrativeQuestion {
	var questions []model.NarrativeQuestion
	for i, row := range rows {
		prompt := row.GetAny("question", "q", "prompt")
		answer := row.GetAny("answer", "model_answer", "answer_text")
		if prompt == "" || answer == "" {
			l.log.Error().Int("row", i+2).Msg("dropping incomplete narrative row")
			continue
		}

		unit := defaultUnit
		if raw := row.GetAny("unit", "unit_id", "part"); raw != "" {
			if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
				unit = parsed
			}
		}

		questions = append(questions, model.NarrativeQuestion{
			Prompt: prompt,
			Answer: answer,
			UnitID: unit,
		})
	}
	return questions
}

// builtinDefinition returns the static difficulty tiers and legacy quizzes
// that predate admin-authored exams. Their CSVs live directly in the data
// directory.
func builtinDefinition(examKey string) (*model.ExamDefinition, bool) {
	switch examKey {
	case "easy", "medium", "hard":
		name := map[string]string{"easy": "Easy", "medium": "Medium", "hard": "Hard"}[examKey]
		return &model.ExamDefinition{
			ExamID:       examKey,
			ButtonText:   name + " level",
			QuestionType: model.QuestionTypeMCQ,
			MCQSources: map[int]model.SourceRef{
				model.SharedUnit: {LocalPath: name + "_Level.csv"},
			},
		}, true
	case "lab", "mazen":
		return &model.ExamDefinition{
			ExamID:       examKey,
			ButtonText:   examKey + " test",
			QuestionType: model.QuestionTypeMCQ,
			MCQSources: map[int]model.SourceRef{
				model.SharedUnit: {LocalPath: filepath.Join(examKey, "exam.csv")},
			},
		}, true
	default:
		return nil, false
	}
}
