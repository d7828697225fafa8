package model

import (
	"fmt"
	"time"
)

// QuestionType enumerates which question banks an exam carries.
type QuestionType string

const (
	QuestionTypeMCQ       QuestionType = "mcq"
	QuestionTypeNarrative QuestionType = "narrative"
	QuestionTypeBoth      QuestionType = "both"
)

// MediaKind enumerates supported explanation media attachments.
type MediaKind string

const (
	MediaKindPhoto MediaKind = "photo"
	MediaKindVideo MediaKind = "video"
	MediaKindURL   MediaKind = "url"
)

// DynamicKeyPrefix namespaces exam keys derived from admin-created exams so
// they can never collide with the static difficulty tiers.
const DynamicKeyPrefix = "dyn_"

// QuickUnit is the pseudo unit id persisted while an attempt runs in the
// no-explanation quick mode over the whole unfiltered question pool.
const QuickUnit = -1

// SharedUnit is the pseudo mapping key for a single question table covering
// the whole exam. Its rows are assigned to concrete units by their unit
// column when the table is materialized.
const SharedUnit = 0

// SourceRef points at a question or explanation table, locally and/or via a
// remote file handle retrievable through the messenger.
type SourceRef struct {
	LocalPath    string `json:"local_path,omitempty"`
	RemoteFileID string `json:"remote_file_id,omitempty"`
}

// IsZero reports whether the reference points at nothing.
func (s SourceRef) IsZero() bool {
	return s.LocalPath == "" && s.RemoteFileID == ""
}

// MediaAttachment is an explanation-level media payload.
type MediaAttachment struct {
	Kind    MediaKind `json:"kind"`
	Payload string    `json:"payload"`
	Caption string    `json:"caption,omitempty"`
}

// MediaSlot addresses a media attachment within an exam.
func MediaSlot(unitID, level int) string {
	return fmt.Sprintf("%d:%d", unitID, level)
}

// ExamDefinition identifies one exam unit configuration.
// ExamID is immutable once created; hidden exams stay directly invocable
// but are not shown in the main menu.
type ExamDefinition struct {
	ExamID            string                     `json:"exam_id"`
	ButtonText        string                     `json:"button_text"`
	QuestionType      QuestionType               `json:"question_type"`
	ExplanationSource SourceRef                  `json:"explanation_source"`
	MCQSources        map[int]SourceRef          `json:"mcq_sources"`
	NarrativeSources  map[int]SourceRef          `json:"narrative_sources"`
	Media             map[string]MediaAttachment `json:"media_attachments"`
	IsHidden          bool                       `json:"is_hidden"`
	CreatedAt         time.Time                  `json:"created_at"`
	UpdatedAt         time.Time                  `json:"updated_at"`
}

// Key returns the namespaced progress/score key for this exam.
func (d *ExamDefinition) Key() string {
	return DynamicKeyPrefix + d.ExamID
}

// IsDynamicKey reports whether an exam key refers to an admin-created exam.
func IsDynamicKey(key string) bool {
	return len(key) > len(DynamicKeyPrefix) && key[:len(DynamicKeyPrefix)] == DynamicKeyPrefix
}

// ExamIDFromKey strips the dynamic namespace prefix. For static tiers the
// key is its own id.
func ExamIDFromKey(key string) string {
	if IsDynamicKey(key) {
		return key[len(DynamicKeyPrefix):]
	}
	return key
}
