package irisfast

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Egress abstracts message/image sending over HTTP or WebSocket.
type Egress interface {
	SendText(ctx context.Context, room, message string) error
	SendImage(ctx context.Context, room, imageBase64 string) error
}

type Mode string

const (
	ModeHTTP Mode = "http"
	ModeWS   Mode = "ws"
	ModeAuto Mode = "auto"
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeHTTP, nil
	case ModeHTTP, ModeWS, ModeAuto:
		return m, nil
	default:
		return "", fmt.Errorf("unknown egress mode %q", s)
	}
}

// NewEgress creates an Egress based on mode. In auto mode the websocket is preferred while
// connected and a failed websocket write falls back to HTTP once. With dryrun nothing is sent.
func NewEgress(mode Mode, dryrun bool, c *Client, ws *WebSocket, logger *zap.Logger) Egress {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("egress")
	if dryrun {
		return &dryRunEgress{mode: mode, log: logger}
	}
	switch mode {
	case ModeWS:
		return &wsEgress{ws: ws}
	case ModeAuto:
		return &autoEgress{ws: &wsEgress{ws: ws}, http: &httpEgress{c: c}, log: logger}
	default:
		return &httpEgress{c: c}
	}
}

// httpEgress delegates to Client.
type httpEgress struct{ c *Client }

func (h *httpEgress) SendText(ctx context.Context, room, message string) error {
	if h == nil || h.c == nil {
		return errors.New("http egress not available")
	}
	return h.c.SendText(ctx, room, message)
}

func (h *httpEgress) SendImage(ctx context.Context, room, imageBase64 string) error {
	if h == nil || h.c == nil {
		return errors.New("http egress not available")
	}
	return h.c.SendImage(ctx, room, imageBase64)
}

// wsEgress writes ReplyRequest frames over WebSocket.
type wsEgress struct{ ws *WebSocket }

func (w *wsEgress) SendText(ctx context.Context, room, message string) error {
	return w.write(ctx, ReplyRequest{Type: "text", Room: room, Data: message})
}

func (w *wsEgress) SendImage(ctx context.Context, room, imageBase64 string) error {
	return w.write(ctx, ReplyRequest{Type: "image", Room: room, Data: imageBase64})
}

func (w *wsEgress) write(ctx context.Context, req ReplyRequest) error {
	if w == nil || w.ws == nil {
		return errors.New("ws egress not available")
	}
	return w.ws.WriteJSON(ctx, &req)
}

func (w *wsEgress) ready() bool { return w != nil && w.ws != nil && w.ws.Connected() }

type autoEgress struct {
	ws   *wsEgress
	http *httpEgress
	log  *zap.Logger
}

func (a *autoEgress) SendText(ctx context.Context, room, message string) error {
	if a.ws.ready() {
		err := a.ws.SendText(ctx, room, message)
		if err == nil {
			return nil
		}
		a.log.Warn("egress_fallback", zap.String("type", "text"), zap.String("room", room), zap.Error(err))
	}
	return a.http.SendText(ctx, room, message)
}

func (a *autoEgress) SendImage(ctx context.Context, room, imageBase64 string) error {
	if a.ws.ready() {
		err := a.ws.SendImage(ctx, room, imageBase64)
		if err == nil {
			return nil
		}
		a.log.Warn("egress_fallback", zap.String("type", "image"), zap.String("room", room), zap.Error(err))
	}
	return a.http.SendImage(ctx, room, imageBase64)
}

type dryRunEgress struct {
	mode Mode
	log  *zap.Logger
}

func (d *dryRunEgress) SendText(_ context.Context, room, message string) error {
	d.log.Info("egress_dryrun",
		zap.String("mode", string(d.mode)),
		zap.String("type", "text"),
		zap.String("room", room),
		zap.String("text", message),
	)
	return nil
}

func (d *dryRunEgress) SendImage(_ context.Context, room, imageBase64 string) error {
	d.log.Info("egress_dryrun",
		zap.String("mode", string(d.mode)),
		zap.String("type", "image"),
		zap.String("room", room),
		zap.Int("bytes", len(imageBase64)),
	)
	return nil
}
