package content

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/mishalinitiative/quizbot/internal/model"
	"github.com/mishalinitiative/quizbot/internal/tableloader"
	"github.com/rs/zerolog"
)

type fakeExamSource struct {
	defs map[string]*model.ExamDefinition
}

func (f *fakeExamSource) GetByID(_ context.Context, examID string) (*model.ExamDefinition, error) {
	def, ok := f.defs[examID]
	if !ok {
		return nil, errors.New("exam not in store")
	}
	return def, nil
}

func (f *fakeExamSource) List(context.Context, bool) ([]model.ExamDefinition, error) {
	return nil, nil
}

type fakeFetcher struct {
	files map[string][]byte
	calls int
}

func (f *fakeFetcher) FetchRemoteFile(_ context.Context, fileID string) ([]byte, error) {
	f.calls++
	data, ok := f.files[fileID]
	if !ok {
		return nil, errors.New("no such remote file")
	}
	return data, nil
}

func newTestLoader(t *testing.T, defs map[string]*model.ExamDefinition) (*Loader, string, *fakeFetcher) {
	t.Helper()
	dataDir := t.TempDir()
	fetch := &fakeFetcher{files: map[string][]byte{}}
	loader := NewLoader(
		&fakeExamSource{defs: defs},
		tableloader.NewCSVLoader(zerolog.Nop()),
		fetch,
		dataDir,
		zerolog.Nop(),
	)
	return loader, dataDir, fetch
}

const mcqHeader = "question,option_a,option_b,option_c,option_d,correct_answer"

// A shared bank carrying a unit column must split across the explanation
// units, so each question is graded once and the score can never exceed the
// question count.
func TestLoadSplitsSharedBankByUnitColumn(t *testing.T) {
	def := &model.ExamDefinition{
		ExamID:            "chem",
		ButtonText:        "Chemistry",
		QuestionType:      model.QuestionTypeBoth,
		ExplanationSource: model.SourceRef{RemoteFileID: "expl-file"},
		MCQSources: map[int]model.SourceRef{
			model.SharedUnit: {RemoteFileID: "bank-file"},
		},
		NarrativeSources: map[int]model.SourceRef{
			model.SharedUnit: {RemoteFileID: "talk-file"},
		},
	}
	loader, _, fetch := newTestLoader(t, map[string]*model.ExamDefinition{"chem": def})
	fetch.files["expl-file"] = []byte("unit,level,text\n1,1,atoms\n2,1,bonds\n")
	fetch.files["bank-file"] = []byte(mcqHeader + ",unit\nwhat is salt,NaCl,H2O,CO2,O2,A,1\nwhat is acid,base,proton donor,salt,gas,B,2\n")
	fetch.files["talk-file"] = []byte("question,answer,unit\nname a metal,iron,1\nname a gas,oxygen,2\n")

	exam, err := loader.Load(context.Background(), "dyn_chem")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	units := exam.Units()
	if len(units) != 2 || units[0] != 1 || units[1] != 2 {
		t.Fatalf("units = %v, want [1 2]", units)
	}
	if got := exam.MCQFor(1); len(got) != 1 || got[0].Prompt != "what is salt" {
		t.Errorf("unit 1 MCQ bank = %+v, want the salt question alone", got)
	}
	if got := exam.MCQFor(2); len(got) != 1 || got[0].Prompt != "what is acid" {
		t.Errorf("unit 2 MCQ bank = %+v, want the acid question alone", got)
	}
	if got := exam.NarrativeFor(2); len(got) != 1 || got[0].Prompt != "name a gas" {
		t.Errorf("unit 2 narrative bank = %+v, want the gas question alone", got)
	}

	served := 0
	for _, u := range units {
		served += len(exam.MCQFor(u))
	}
	if served != exam.TotalMCQ() {
		t.Errorf("walking every unit serves %d MCQs, but the exam grades %d", served, exam.TotalMCQ())
	}
}

// Without a unit column the whole shared bank lands in unit 1; later units
// carry explanations only and never re-serve the bank.
func TestSharedBankWithoutUnitColumnLandsInFirstUnit(t *testing.T) {
	def := &model.ExamDefinition{
		ExamID:            "hist",
		QuestionType:      model.QuestionTypeMCQ,
		ExplanationSource: model.SourceRef{RemoteFileID: "expl-file"},
		MCQSources: map[int]model.SourceRef{
			model.SharedUnit: {RemoteFileID: "bank-file"},
		},
	}
	loader, _, fetch := newTestLoader(t, map[string]*model.ExamDefinition{"hist": def})
	fetch.files["expl-file"] = []byte("unit,level,text\n1,1,antiquity\n2,1,middle ages\n")
	fetch.files["bank-file"] = []byte(mcqHeader + "\nfirst emperor,Augustus,Nero,Caesar,Trajan,A\noldest city,Jericho,Rome,Athens,Ur,A\n")

	exam, err := loader.Load(context.Background(), "dyn_hist")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := exam.MCQFor(1); len(got) != 2 {
		t.Errorf("unit 1 bank has %d questions, want 2", len(got))
	}
	if got := exam.MCQFor(2); len(got) != 0 {
		t.Errorf("unit 2 bank has %d questions, want none", len(got))
	}
	if exam.TotalMCQ() != 2 {
		t.Errorf("TotalMCQ = %d, want 2", exam.TotalMCQ())
	}
}

func TestLoadServesFromCacheUntilInvalidate(t *testing.T) {
	loader, dataDir, _ := newTestLoader(t, nil)
	path := filepath.Join(dataDir, "Easy_Level.csv")
	if err := os.WriteFile(path, []byte(mcqHeader+"\ntwo plus two,4,3,5,6,A\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	exam, err := loader.Load(context.Background(), "easy")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if exam.TotalMCQ() != 1 {
		t.Fatalf("TotalMCQ = %d, want 1", exam.TotalMCQ())
	}

	bigger := mcqHeader + "\ntwo plus two,4,3,5,6,A\nthree plus three,6,5,7,9,A\n"
	if err := os.WriteFile(path, []byte(bigger), 0o644); err != nil {
		t.Fatal(err)
	}

	exam, err = loader.Load(context.Background(), "easy")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if exam.TotalMCQ() != 1 {
		t.Errorf("cached exam grew to %d questions, want the old 1", exam.TotalMCQ())
	}

	loader.Invalidate()
	exam, err = loader.Load(context.Background(), "easy")
	if err != nil {
		t.Fatalf("Load after invalidate: %v", err)
	}
	if exam.TotalMCQ() != 2 {
		t.Errorf("TotalMCQ after invalidate = %d, want 2", exam.TotalMCQ())
	}
}

func TestRemoteFallbackCachesFetchedTable(t *testing.T) {
	def := &model.ExamDefinition{
		ExamID:       "net",
		QuestionType: model.QuestionTypeMCQ,
		MCQSources: map[int]model.SourceRef{
			model.SharedUnit: {LocalPath: filepath.Join("net", "bank.csv"), RemoteFileID: "bank-remote"},
		},
	}
	loader, dataDir, fetch := newTestLoader(t, map[string]*model.ExamDefinition{"net": def})
	fetch.files["bank-remote"] = []byte(mcqHeader + "\nwhat is a router,a packet forwarder,a cable,a browser,a firewall,A\n")

	exam, err := loader.Load(context.Background(), "dyn_net")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if exam.TotalMCQ() != 1 {
		t.Fatalf("TotalMCQ = %d, want 1", exam.TotalMCQ())
	}
	if fetch.calls != 1 {
		t.Fatalf("remote fetches = %d, want 1", fetch.calls)
	}
	if _, err := os.Stat(filepath.Join(dataDir, "net", "bank.csv")); err != nil {
		t.Fatalf("fetched table was not cached locally: %v", err)
	}

	// The next reload must hit the local copy, not the messenger.
	loader.Invalidate()
	exam, err = loader.Load(context.Background(), "dyn_net")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if exam.TotalMCQ() != 1 {
		t.Errorf("TotalMCQ after reload = %d, want 1", exam.TotalMCQ())
	}
	if fetch.calls != 1 {
		t.Errorf("remote fetches after reload = %d, want still 1", fetch.calls)
	}
}

func TestLoadDropsUnusableRows(t *testing.T) {
	def := &model.ExamDefinition{
		ExamID:       "geo",
		QuestionType: model.QuestionTypeMCQ,
		MCQSources: map[int]model.SourceRef{
			model.SharedUnit: {RemoteFileID: "bank-file"},
		},
	}
	loader, _, fetch := newTestLoader(t, map[string]*model.ExamDefinition{"geo": def})
	fetch.files["bank-file"] = []byte(mcqHeader + "\n" +
		"longest river,Nile,Amazon,Yangtze,Congo,A\n" +
		"missing options,Everest,,,,A\n" +
		"broken answer,Pacific,Atlantic,Indian,Arctic,Z\n")

	exam, err := loader.Load(context.Background(), "dyn_geo")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if exam.TotalMCQ() != 1 {
		t.Fatalf("TotalMCQ = %d, want only the well-formed row", exam.TotalMCQ())
	}
	if got := exam.MCQFor(1)[0].Prompt; got != "longest river" {
		t.Errorf("kept prompt = %q, want the river question", got)
	}
}

func TestLoadUnknownExam(t *testing.T) {
	loader, _, _ := newTestLoader(t, nil)

	if _, err := loader.Load(context.Background(), "nope"); !errors.Is(err, ErrExamNotFound) {
		t.Errorf("static key: err = %v, want ErrExamNotFound", err)
	}
	if _, err := loader.Load(context.Background(), "dyn_missing"); !errors.Is(err, ErrExamNotFound) {
		t.Errorf("dynamic key: err = %v, want ErrExamNotFound", err)
	}
}
