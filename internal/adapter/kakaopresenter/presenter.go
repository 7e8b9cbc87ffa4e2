// Package kakaopresenter turns orchestrator replies into Iris egress calls.
package kakaopresenter

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
)

// Sender is the outbound side of Iris; irisfast.Egress implements it.
type Sender interface {
	SendText(ctx context.Context, room, message string) error
	SendImage(ctx context.Context, room, imageBase64 string) error
}

var ErrNoRoom = errors.New("kakaopresenter: empty room")

// Presenter delivers text and PNG images to a room.
type Presenter struct {
	sender Sender
}

func NewPresenter(sender Sender) *Presenter {
	return &Presenter{sender: sender}
}

// SendText skips blank messages.
func (p *Presenter) SendText(ctx context.Context, room, text string) error {
	if p == nil || p.sender == nil {
		return nil
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if strings.TrimSpace(room) == "" {
		return ErrNoRoom
	}
	return p.sender.SendText(ctx, room, text)
}

func (p *Presenter) SendImage(ctx context.Context, room string, png []byte) error {
	if p == nil || p.sender == nil || len(png) == 0 {
		return nil
	}
	if strings.TrimSpace(room) == "" {
		return ErrNoRoom
	}
	return p.sender.SendImage(ctx, room, base64.StdEncoding.EncodeToString(png))
}
