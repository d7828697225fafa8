package content

import (
	"math/rand"
	"path/filepath"

	"github.com/mishalinitiative/quizbot/internal/tableloader"
	"github.com/rs/zerolog"
)

// PhraseSet holds the feedback phrase pools shown after answers and while a
// question is pending. Missing phrase files fall back to single defaults.
type PhraseSet struct {
	correct  []string
	wrong    []string
	thinking []string
}

// LoadPhrases reads the three phrase CSVs from dataDir.
func LoadPhrases(dataDir string, tables tableloader.Loader, log zerolog.Logger) *PhraseSet {
	load := func(name string) []string {
		rows, err := tables.LoadTable(filepath.Join(dataDir, name))
		if err != nil {
			log.Warn().Str("file", name).Err(err).Msg("phrase file unavailable, using defaults")
			return nil
		}
		var phrases []string
		for _, row := range rows {
			if p := row.GetAny("phrase_text", "phrase", "text"); p != "" {
				phrases = append(phrases, p)
			}
		}
		return phrases
	}

	return &PhraseSet{
		correct:  load("Correct_Phrases.csv"),
		wrong:    load("Wrong_Phrases.csv"),
		thinking: load("Thinking_Phrases.csv"),
	}
}

// Correct picks a random correct-answer phrase.
func (p *PhraseSet) Correct() string {
	return pick(p.correct, "✅ Correct!")
}

// Wrong picks a random wrong-answer phrase.
func (p *PhraseSet) Wrong() string {
	return pick(p.wrong, "❌ Not quite.")
}

// Thinking picks a random pending-question phrase.
func (p *PhraseSet) Thinking() string {
	return pick(p.thinking, "🤔")
}

func pick(pool []string, fallback string) string {
	if len(pool) == 0 {
		return fallback
	}
	return pool[rand.Intn(len(pool))]
}
