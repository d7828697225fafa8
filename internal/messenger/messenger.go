// Package messenger defines the consumed message-transport capability.
// The quiz flow depends only on this boundary; the concrete chat platform
// adapter lives behind it.
package messenger

import (
	"context"
	"errors"
)

// Transport failure sentinels.
var (
	// ErrMessageNotFound is returned by edits/deletes of messages that no
	// longer exist. Callers performing best-effort cleanup must swallow it.
	ErrMessageNotFound = errors.New("messenger: message not found")
	ErrRateLimited     = errors.New("messenger: rate limited")
	ErrFileNotFound    = errors.New("messenger: remote file not found")
)

// MessageRef is an opaque handle to a delivered message.
type MessageRef string

// Button is one inline keyboard button. Action is an encoded action token
// delivered back through Update.Action when pressed.
type Button struct {
	Text   string
	Action string
}

// Keyboard is a grid of inline buttons.
type Keyboard [][]Button

// Row is a convenience constructor for a single keyboard row.
func Row(buttons ...Button) []Button { return buttons }

// Document is a file uploaded by a user.
type Document struct {
	FileID   string
	FileName string
}

// Update is one inbound user event: either a pressed button (Action),
// a plain text message (Text), or an uploaded file (Document).
type Update struct {
	UserID      int64
	DisplayName string
	Action      string
	Text        string
	Document    *Document
}

// Messenger is the outbound transport capability.
type Messenger interface {
	SendMessage(ctx context.Context, userID int64, text string, kb Keyboard) (MessageRef, error)
	EditMessage(ctx context.Context, userID int64, ref MessageRef, text string, kb Keyboard) error
	DeleteMessage(ctx context.Context, userID int64, ref MessageRef) error
	SendMedia(ctx context.Context, userID int64, kind, payload, caption string, kb Keyboard) (MessageRef, error)
	FetchRemoteFile(ctx context.Context, fileID string) ([]byte, error)
	// CheckMembership reports whether the user is subscribed to the
	// configured channel. Always true when no channel is configured.
	CheckMembership(ctx context.Context, userID int64) (bool, error)
}

// UpdateSource yields inbound user events. The transport guarantees
// in-order delivery per user.
type UpdateSource interface {
	Updates(ctx context.Context) <-chan Update
}
