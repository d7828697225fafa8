package tableloader

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func newTestLoader() *CSVLoader {
	return NewCSVLoader(zerolog.Nop())
}

func TestParseTableNormalizesHeaders(t *testing.T) {
	data := []byte("Question , ANSWER\nwhat is two plus two,4\n")

	rows, err := newTestLoader().ParseTable(data)
	if err != nil {
		t.Fatalf("ParseTable: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}
	if got := rows[0].Get("question"); got != "what is two plus two" {
		t.Errorf("question = %q", got)
	}
	if got := rows[0].Get("Answer"); got != "4" {
		t.Errorf("case-insensitive lookup = %q, want 4", got)
	}
}

func TestParseTableStripsBOM(t *testing.T) {
	data := append([]byte{0xEF, 0xBB, 0xBF}, []byte("name\nalpha\n")...)

	rows, err := newTestLoader().ParseTable(data)
	if err != nil {
		t.Fatalf("ParseTable: %v", err)
	}
	if len(rows) != 1 || rows[0].Get("name") != "alpha" {
		t.Fatalf("rows = %#v, want single row with name=alpha", rows)
	}
}

func TestParseTableSkipsShortRowsOnly(t *testing.T) {
	data := []byte("a,b,c\n1,2,3\nshort,row\n4,5,6\n")

	rows, err := newTestLoader().ParseTable(data)
	if err != nil {
		t.Fatalf("ParseTable: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2 (short row dropped)", len(rows))
	}
	if rows[1].Get("c") != "6" {
		t.Errorf("row after malformed one not kept: %#v", rows[1])
	}
}

func TestParseTableTrimsFieldValues(t *testing.T) {
	data := []byte("text\n  padded value  \n")

	rows, err := newTestLoader().ParseTable(data)
	if err != nil {
		t.Fatalf("ParseTable: %v", err)
	}
	if got := rows[0].Get("text"); got != "padded value" {
		t.Errorf("text = %q, want trimmed value", got)
	}
}

func TestParseTableEmptyInput(t *testing.T) {
	rows, err := newTestLoader().ParseTable(nil)
	if err != nil {
		t.Fatalf("ParseTable: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("rows = %d, want none", len(rows))
	}
}

func TestGetAnyFallbackOrder(t *testing.T) {
	row := Row{"explanation": "later", "text": "first"}

	if got := row.GetAny("text", "explanation"); got != "first" {
		t.Errorf("GetAny = %q, want first non-empty alternative", got)
	}
	if got := row.GetAny("missing", "explanation"); got != "later" {
		t.Errorf("GetAny = %q, want fallback alternative", got)
	}
	if got := row.GetAny("nope", "nothing"); got != "" {
		t.Errorf("GetAny = %q, want empty when no alternative matches", got)
	}
}

func TestLoadTableMissingFile(t *testing.T) {
	_, err := newTestLoader().LoadTable(filepath.Join(t.TempDir(), "absent.csv"))
	if !errors.Is(err, ErrFileAbsent) {
		t.Fatalf("err = %v, want ErrFileAbsent", err)
	}
}

func TestLoadTableReadsFromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bank.csv")
	if err := os.WriteFile(path, []byte("question,answer\nq1,a1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	rows, err := newTestLoader().LoadTable(path)
	if err != nil {
		t.Fatalf("LoadTable: %v", err)
	}
	if len(rows) != 1 || rows[0].Get("answer") != "a1" {
		t.Fatalf("rows = %#v", rows)
	}
}
