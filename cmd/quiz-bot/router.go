package main

import (
	"fmt"
	"strings"

	"github.com/park285/Trivia-KakaoTalk-bot/internal/config"
	"github.com/park285/Trivia-KakaoTalk-bot/internal/irisfast"
	"github.com/park285/Trivia-KakaoTalk-bot/internal/quiz"
)

// router filters Iris messages and maps them onto quiz inbound events.
type router struct {
	cfg *config.AppConfig
}

// route reports false for messages the bot must ignore: other rooms, missing prefix, empty text.
func (r router) route(msg *irisfast.Message) (quiz.Inbound, bool) {
	if msg == nil || strings.TrimSpace(msg.Msg) == "" || strings.TrimSpace(msg.Room) == "" {
		return quiz.Inbound{}, false
	}
	if !r.cfg.RoomAllowed(msg.Room) {
		return quiz.Inbound{}, false
	}
	text := strings.TrimSpace(msg.Msg)
	if p := r.cfg.BotPrefix; p != "" {
		if !strings.HasPrefix(text, p) {
			return quiz.Inbound{}, false
		}
		text = strings.TrimSpace(strings.TrimPrefix(text, p))
		if text == "" {
			return quiz.Inbound{}, false
		}
	}
	uid := msg.UserID()
	if uid == "" {
		return quiz.Inbound{}, false
	}
	return quiz.Inbound{
		UserID: sessionIDFor(msg.Room, uid),
		Room:   msg.Room,
		Text:   text,
	}, true
}

// sessionIDFor scopes a user to a room, so the same person plays separate games per chat.
func sessionIDFor(room, user string) string {
	return fmt.Sprintf("%s:%s", strings.TrimSpace(room), strings.TrimSpace(user))
}
