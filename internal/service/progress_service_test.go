package service

import (
	"reflect"
	"testing"

	"github.com/mishalinitiative/quizbot/internal/model"
)

func TestDeriveBadges(t *testing.T) {
	cases := []struct {
		name  string
		score int
		total int
		want  []string
	}{
		{"perfect", 10, 10, []string{model.BadgeCompleted, model.BadgePerfect, model.BadgeExcellent}},
		{"ninety percent", 9, 10, []string{model.BadgeCompleted, model.BadgeExcellent}},
		{"eighty percent", 8, 10, []string{model.BadgeCompleted, model.BadgeGood}},
		{"below eighty", 7, 10, []string{model.BadgeCompleted}},
		{"zero score", 0, 10, []string{model.BadgeCompleted}},
		{"single question perfect", 1, 1, []string{model.BadgeCompleted, model.BadgePerfect, model.BadgeExcellent}},
		{"empty exam", 0, 0, []string{model.BadgeCompleted}},
	}

	for _, tc := range cases {
		got := deriveBadges(tc.score, tc.total)
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("%s: deriveBadges(%d, %d) = %v, want %v", tc.name, tc.score, tc.total, got, tc.want)
		}
	}
}

func TestDeriveBadgesTierBoundaries(t *testing.T) {
	// 89.x% must not reach the excellent tier, 79.x% must not reach good.
	if got := deriveBadges(89, 100); !reflect.DeepEqual(got, []string{model.BadgeCompleted, model.BadgeGood}) {
		t.Errorf("89/100 = %v", got)
	}
	if got := deriveBadges(79, 100); !reflect.DeepEqual(got, []string{model.BadgeCompleted}) {
		t.Errorf("79/100 = %v", got)
	}
	if got := deriveBadges(90, 100); !reflect.DeepEqual(got, []string{model.BadgeCompleted, model.BadgeExcellent}) {
		t.Errorf("90/100 = %v", got)
	}
}
