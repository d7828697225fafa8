package content

import (
	"reflect"
	"testing"

	"github.com/mishalinitiative/quizbot/internal/tableloader"
)

func TestExplanationTreeOrdering(t *testing.T) {
	tree := NewExplanationTree()
	tree.Add(3, 2, "u3 l2")
	tree.Add(1, 20, "u1 l20")
	tree.Add(1, 3, "u1 l3")
	tree.Add(1, 11, "u1 l11")
	tree.Add(2, 1, "u2 l1")

	if got := tree.Units(); !reflect.DeepEqual(got, []int{1, 2, 3}) {
		t.Errorf("Units = %v", got)
	}
	// Numeric order, not lexicographic: 3 < 11 < 20.
	if got := tree.Levels(1); !reflect.DeepEqual(got, []int{3, 11, 20}) {
		t.Errorf("Levels(1) = %v", got)
	}
}

func TestExplanationTreeNextLevel(t *testing.T) {
	tree := NewExplanationTree()
	tree.Add(1, 1, "a")
	tree.Add(1, 5, "b")
	tree.Add(1, 9, "c")

	if first, ok := tree.FirstLevel(1); !ok || first != 1 {
		t.Errorf("FirstLevel = %d, %v", first, ok)
	}
	if next, ok := tree.NextLevel(1, 1); !ok || next != 5 {
		t.Errorf("NextLevel(1,1) = %d, %v", next, ok)
	}
	if next, ok := tree.NextLevel(1, 5); !ok || next != 9 {
		t.Errorf("NextLevel(1,5) = %d, %v", next, ok)
	}
	if _, ok := tree.NextLevel(1, 9); ok {
		t.Error("NextLevel past last level should report none")
	}
	if _, ok := tree.FirstLevel(7); ok {
		t.Error("FirstLevel of absent unit should report none")
	}
}

func TestExplanationTreeEmpty(t *testing.T) {
	var nilTree *ExplanationTree
	if !nilTree.Empty() {
		t.Error("nil tree should be empty")
	}
	if !NewExplanationTree().Empty() {
		t.Error("fresh tree should be empty")
	}

	tree := NewExplanationTree()
	tree.Add(1, 1, "x")
	if tree.Empty() {
		t.Error("populated tree should not be empty")
	}
}

func TestParseExplanationRowsDropsUnreadable(t *testing.T) {
	rows := []tableloader.Row{
		{"unit": "1", "level": "1", "text": "first"},
		{"unit": "one", "level": "2", "text": "bad unit"},
		{"unit": "1", "level": "x", "text": "bad level"},
		{"unit": "1", "level": "2", "text": ""},
		{"part": "2", "step": "1", "explanation": "alt headers"},
	}

	tree := parseExplanationRows(rows)

	if got := tree.Units(); !reflect.DeepEqual(got, []int{1, 2}) {
		t.Fatalf("Units = %v", got)
	}
	if text, ok := tree.Text(1, 1); !ok || text != "first" {
		t.Errorf("Text(1,1) = %q, %v", text, ok)
	}
	if got := tree.Levels(1); !reflect.DeepEqual(got, []int{1}) {
		t.Errorf("Levels(1) = %v, unreadable rows must be dropped", got)
	}
	if text, ok := tree.Text(2, 1); !ok || text != "alt headers" {
		t.Errorf("Text(2,1) = %q, %v", text, ok)
	}
}
