package transport

import (
	"context"
	"errors"
	"fmt"
)

type UpdateKind string

const (
	UpdateMessage  UpdateKind = "message"
	UpdateCallback UpdateKind = "callback"
)

type Update struct {
	Kind     UpdateKind
	Message  *Message
	Callback *Callback
}

type Message struct {
	ID           int
	ChatID       int64
	FromID       int64
	FromUsername string
	FirstName    string
	LastName     string
	Text         string
}

type Callback struct {
	ID        string
	FromID    int64
	ChatID    int64
	MessageID int
	Data      string
}

type ChatTarget struct {
	ChatID int64
}

type MessageRef struct {
	ChatID    int64
	MessageID int
}

type SendOptions struct {
	ParseMode          string
	DisablePreview     bool
	ReplyMarkupAdapter any // adapter-specific markup (Telegram: *telebot.ReplyMarkup)
}

// Photo references an image by URL or local path, with an optional caption.
type Photo struct {
	URL     string
	Caption string
}

// Document references a local file to upload, with an optional caption.
type Document struct {
	Path     string
	FileName string
	Caption  string
}

// DeliveryKind classifies a failed delivery so callers can branch without
// inspecting error text. Adapters map platform errors to these kinds.
type DeliveryKind string

const (
	DeliveryGeneric      DeliveryKind = "generic"
	DeliveryBlocked      DeliveryKind = "blocked"
	DeliveryChatNotFound DeliveryKind = "chat_not_found"
)

// DeliveryError wraps a transport send failure with its classification.
type DeliveryError struct {
	Kind DeliveryKind
	Err  error
}

func (e *DeliveryError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("delivery failed (%s)", e.Kind)
	}
	return fmt.Sprintf("delivery failed (%s): %v", e.Kind, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// KindOf returns the delivery classification for err.
// Failures that are not DeliveryError classify as generic.
func KindOf(err error) DeliveryKind {
	var de *DeliveryError
	if errors.As(err, &de) {
		return de.Kind
	}
	return DeliveryGeneric
}

type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	SendPhoto(ctx context.Context, to ChatTarget, photo Photo, opt *SendOptions) (MessageRef, error)
	SendDocument(ctx context.Context, to ChatTarget, doc Document) (MessageRef, error)
	EditText(ctx context.Context, ref MessageRef, text string, opt *SendOptions) error
	AnswerCallback(ctx context.Context, callbackID string, text string) error
}

// BotCommand represents a single bot command menu entry.
type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is an optional interface that adapters can implement
// to update platform-specific bot command menus (e.g. Telegram /menu list).
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}
