package action

import "testing"

func TestEncodeParseRoundTrip(t *testing.T) {
	actions := []Action{
		ShowMainMenu{},
		CheckMembership{},
		ShowResults{},
		StartExam{ExamKey: "biology"},
		QuickStart{ExamKey: "biology"},
		ResumeExam{ExamKey: "biology"},
		RetryExam{ExamKey: "biology"},
		RestartExam{ExamKey: "biology"},
		ContinueIntro{ExamKey: "biology", Unit: 2, Level: 3},
		AnswerSelected{ExamKey: "biology", Unit: 1, QuestionIndex: 4, OptionIndex: 2},
		NextQuestion{ExamKey: "biology", Unit: 1},
		RevealAnswer{ExamKey: "biology", Unit: 0, QuestionIndex: 7},
		NextNarrative{ExamKey: "biology", Unit: 0},
		AdminReloadData{},
		AdminToggleMaintenance{},
		AdminNewExam{},
		AdminCancelWizard{},
		AdminToggleHidden{ExamID: "chem_2024"},
	}

	for _, a := range actions {
		token := Encode(a)
		if token == "" {
			t.Errorf("%T encoded to empty token", a)
			continue
		}
		if got := Parse(token); got != a {
			t.Errorf("Parse(%q) = %#v, want %#v", token, got, a)
		}
	}
}

func TestParseMalformedTokens(t *testing.T) {
	tokens := []string{
		"",
		"menu",
		"menu:other",
		"exam:start",
		"exam:bogus:key",
		"intro:key:x:1",
		"intro:key:1",
		"ans:key:1:2",
		"ans:key:1:two:3",
		"next:key",
		"next:key:abc",
		"narr:show:key:1",
		"narr:next:key:x",
		"admin:hide",
		"admin:unknown",
		"totally-random",
	}

	for _, token := range tokens {
		got := Parse(token)
		if _, ok := got.(Unknown); !ok {
			t.Errorf("Parse(%q) = %#v, want Unknown", token, got)
		}
	}
}

func TestUnknownPreservesRawToken(t *testing.T) {
	got := Parse("legacy:v1:thing")
	u, ok := got.(Unknown)
	if !ok {
		t.Fatalf("Parse = %#v, want Unknown", got)
	}
	if u.Raw != "legacy:v1:thing" {
		t.Errorf("Raw = %q", u.Raw)
	}
	if Encode(u) != "legacy:v1:thing" {
		t.Errorf("Encode(Unknown) = %q, want original token", Encode(u))
	}
}
