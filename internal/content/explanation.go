package content

import (
	"sort"
	"strconv"

	"github.com/mishalinitiative/quizbot/internal/tableloader"
)

// ExplanationTree maps unit id → level → text. Levels within a unit are
// always traversed in ascending numeric order. An empty tree is legal: the
// flow then skips straight to questions.
type ExplanationTree struct {
	units map[int]map[int]string
}

// NewExplanationTree builds an empty tree.
func NewExplanationTree() *ExplanationTree {
	return &ExplanationTree{units: map[int]map[int]string{}}
}

// Add inserts one explanation level.
func (t *ExplanationTree) Add(unitID, level int, text string) {
	levels, ok := t.units[unitID]
	if !ok {
		levels = map[int]string{}
		t.units[unitID] = levels
	}
	levels[level] = text
}

// Empty reports whether the tree holds no explanation at all.
func (t *ExplanationTree) Empty() bool {
	return t == nil || len(t.units) == 0
}

// Units returns the unit ids in ascending order.
func (t *ExplanationTree) Units() []int {
	if t == nil {
		return nil
	}
	units := make([]int, 0, len(t.units))
	for u := range t.units {
		units = append(units, u)
	}
	sort.Ints(units)
	return units
}

// Levels returns the levels of a unit in ascending order.
func (t *ExplanationTree) Levels(unitID int) []int {
	if t == nil {
		return nil
	}
	m, ok := t.units[unitID]
	if !ok {
		return nil
	}
	levels := make([]int, 0, len(m))
	for l := range m {
		levels = append(levels, l)
	}
	sort.Ints(levels)
	return levels
}

// Text returns the explanation text for (unit, level).
func (t *ExplanationTree) Text(unitID, level int) (string, bool) {
	if t == nil {
		return "", false
	}
	m, ok := t.units[unitID]
	if !ok {
		return "", false
	}
	text, ok := m[level]
	return text, ok
}

// FirstLevel returns the lowest level of a unit.
func (t *ExplanationTree) FirstLevel(unitID int) (int, bool) {
	levels := t.Levels(unitID)
	if len(levels) == 0 {
		return 0, false
	}
	return levels[0], true
}

// NextLevel returns the smallest level greater than level within the unit.
func (t *ExplanationTree) NextLevel(unitID, level int) (int, bool) {
	for _, l := range t.Levels(unitID) {
		if l > level {
			return l, true
		}
	}
	return 0, false
}

// parseExplanationRows builds a tree from table rows. Rows without a
// readable unit/level pair are dropped; the tree keeps whatever parsed.
func parseExplanationRows(rows []tableloader.Row) *ExplanationTree {
	tree := NewExplanationTree()
	for _, row := range rows {
		text := row.GetAny("text", "explanation", "content")
		if text == "" {
			continue
		}
		unit, errU := strconv.Atoi(row.GetAny("unit", "unit_id", "part"))
		level, errL := strconv.Atoi(row.GetAny("level", "step", "order"))
		if errU != nil || errL != nil {
			continue
		}
		tree.Add(unit, level, text)
	}
	return tree
}
