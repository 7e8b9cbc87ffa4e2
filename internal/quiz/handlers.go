package quiz

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/Trivia-KakaoTalk-bot/internal/domain"
	"github.com/park285/Trivia-KakaoTalk-bot/internal/util"
)

var (
	errNoQuestion        = errors.New("question source returned nothing")
	errDuplicateQuestion = errors.New("question repeats one already asked in this game")
)

var medals = []string{"🥇", "🥈", "🥉"}

type rankRow struct {
	Medal string
	Name  string
	Score int
}

type optionRow struct {
	Number int
	Text   string
}

func (s *Service) onText(sess *Session, raw string) {
	raw = strings.TrimSpace(raw)
	folded := util.Fold(raw)

	// rank and help work in every phase and never touch the session
	switch {
	case in(rankWords, folded):
		s.sendRank(sess)
		return
	case in(helpWords, folded):
		s.sendHelp(sess)
		return
	}

	switch sess.Phase {
	case PhaseNew:
		s.onNew(sess, raw, folded)
	case PhaseAwaitingName:
		s.onName(sess, raw)
	case PhaseAwaitingNameConfirm:
		s.onNameConfirm(sess, raw, folded)
	case PhaseAwaitingTheme:
		s.onTheme(sess, raw, folded)
	case PhaseAwaitingFreeTheme:
		s.onFreeTheme(sess, raw, folded)
	case PhaseInQuiz:
		s.onQuizInput(sess, folded)
	default:
		s.onIdle(sess, raw, folded)
	}
}

func (s *Service) onNew(sess *Session, raw, folded string) {
	ctx, cancel := s.bridgeCtx()
	user, err := s.scores.LookupUser(ctx, sess.UserID)
	cancel()
	if err != nil {
		s.log.Warn("quiz_lookup_user_failed", zap.String("user_id", sess.UserID), zap.Error(err))
		s.say(sess, "error.generic", nil)
		return
	}
	if user != nil {
		sess.ConfirmedName = user.Name
		sess.Phase = PhaseIdle
		s.onIdle(sess, raw, folded)
		return
	}

	s.sendWelcome(sess)
	s.say(sess, "onboarding.ask_name", nil)
	sess.Phase = PhaseAwaitingName
}

func (s *Service) sendWelcome(sess *Session) {
	if sess.Welcomed {
		return
	}
	sess.Welcomed = true
	if s.welcome != nil {
		ctx, cancel := s.bridgeCtx()
		defer cancel()
		png, err := s.welcome.PNG(ctx)
		if err == nil && len(png) > 0 {
			err = s.messenger.SendImage(ctx, sess.Room, png)
		}
		if err != nil {
			s.metrics.EgressError()
			s.log.Warn("quiz_welcome_image_failed", zap.String("user_id", sess.UserID), zap.Error(err))
		}
	}
	s.say(sess, "onboarding.welcome_caption", nil)
}

func (s *Service) onName(sess *Session, raw string) {
	name, ok := candidateName(raw)
	if !ok {
		s.say(sess, "onboarding.name_invalid", nil)
		return
	}
	sess.CandidateName = name
	sess.Phase = PhaseAwaitingNameConfirm
	s.say(sess, "onboarding.confirm_name", map[string]any{"Name": name})
}

func (s *Service) onNameConfirm(sess *Session, raw, folded string) {
	if in(confirmWords, folded) {
		ctx, cancel := s.bridgeCtx()
		err := s.scores.RegisterUser(ctx, sess.UserID, sess.CandidateName)
		cancel()
		if err != nil {
			s.log.Warn("quiz_register_user_failed", zap.String("user_id", sess.UserID), zap.Error(err))
			s.say(sess, "error.generic", nil)
			return
		}
		s.log.Info("quiz_user_registered", zap.String("user_id", sess.UserID), zap.String("name", sess.CandidateName))
		sess.ConfirmedName = sess.CandidateName
		sess.CandidateName = ""
		sess.Phase = PhaseAwaitingTheme
		s.say(sess, "onboarding.registered", map[string]any{"Name": sess.ConfirmedName, "Menu": s.menu()})
		return
	}
	if name, ok := candidateName(raw); ok {
		sess.CandidateName = name
		s.say(sess, "onboarding.confirm_again", map[string]any{"Name": name})
		return
	}
	s.say(sess, "onboarding.confirm_retry", nil)
}

func (s *Service) onIdle(sess *Session, raw, folded string) {
	if topic, ok := quizCommand(raw); ok {
		s.directStart(sess, topic)
		return
	}
	if isReserved(folded) {
		s.say(sess, "idle.usage", map[string]any{"Themes": themeList()})
		return
	}
	sess.Phase = PhaseAwaitingTheme
	s.say(sess, "menu.greeting", map[string]any{"Name": sess.ConfirmedName, "Menu": s.menu()})
}

func (s *Service) onTheme(sess *Session, raw, folded string) {
	if topic, ok := quizCommand(raw); ok {
		s.directStart(sess, topic)
		return
	}
	if in(freeWords, folded) {
		sess.Phase = PhaseAwaitingFreeTheme
		s.say(sess, "theme.ask_free", nil)
		return
	}
	if theme, ok := themeChoice(folded); ok {
		s.startGame(sess, theme)
		return
	}
	s.say(sess, "theme.invalid", nil)
}

func (s *Service) onFreeTheme(sess *Session, raw, folded string) {
	if topic, ok := quizCommand(raw); ok {
		s.directStart(sess, topic)
		return
	}
	if !validTopic(raw) || isReserved(folded) {
		s.say(sess, "theme.too_short", nil)
		return
	}
	s.startGame(sess, strings.ToLower(raw))
}

func (s *Service) directStart(sess *Session, topic string) {
	if !validTopic(topic) {
		s.say(sess, "idle.quiz_usage", map[string]any{"Themes": themeList()})
		return
	}
	s.startGame(sess, topic)
}

func validTopic(topic string) bool {
	return utf8.RuneCountInString(strings.TrimSpace(topic)) > 2
}

func (s *Service) onQuizInput(sess *Session, folded string) {
	switch {
	case in(exitWords, folded):
		s.say(sess, "game.exit", map[string]any{"Score": sess.RoundScore})
		s.endGame(sess, "exit")
	case in(hintWords, folded):
		s.giveHint(sess)
	default:
		choice, ok := optionChoice(folded)
		if !ok {
			s.say(sess, "game.invalid_answer", nil)
			return
		}
		if sess.Current == nil {
			s.say(sess, "game.wait", nil)
			return
		}
		s.answer(sess, choice)
	}
}

func (s *Service) startGame(sess *Session, theme string) {
	sess.Phase = PhaseInQuiz
	sess.Theme = theme
	sess.GameID = uuid.NewString()
	sess.QuestionIndex = 0
	sess.RoundScore = 0
	sess.Current = nil
	sess.Asked = nil
	sess.TimerToken = 0
	sess.Avoid = s.recentQuestions(sess.UserID, theme)

	s.metrics.GameStarted()
	s.log.Info("quiz_game_started",
		zap.String("user_id", sess.UserID),
		zap.String("game_id", sess.GameID),
		zap.String("theme", theme),
		zap.Int("avoid", len(sess.Avoid)),
	)
	s.say(sess, "game.start", map[string]any{"Theme": theme, "Total": QuestionsPerGame})
	s.issueQuestion(sess)
}

func (s *Service) recentQuestions(userID, theme string) []string {
	if s.cfg.HistoryLookback <= 0 {
		return nil
	}
	ctx, cancel := s.bridgeCtx()
	defer cancel()
	recent, err := s.scores.RecentQuestions(ctx, userID, theme, s.cfg.HistoryLookback)
	if err != nil {
		s.log.Warn("quiz_recent_questions_failed", zap.String("user_id", userID), zap.Error(err))
		return nil
	}
	// the log returns newest first; the exclusion list runs oldest to newest
	// so a prompt that keeps only its tail keeps the latest questions
	slices.Reverse(recent)
	return recent
}

// issueQuestion generates the question at sess.QuestionIndex, sends it and arms its expiry.
// On failure the game ends with the score so far committed.
func (s *Service) issueQuestion(sess *Session) {
	tier := domain.TierForIndex(sess.QuestionIndex)
	exclude := make([]string, 0, len(sess.Avoid)+len(sess.Asked))
	exclude = append(exclude, sess.Avoid...)
	exclude = append(exclude, sess.Asked...)

	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.GenerationTimeout)
	start := time.Now()
	q, err := s.questions.Generate(ctx, sess.Theme, tier, exclude)
	cancel()
	if err == nil && q == nil {
		err = errNoQuestion
	}
	if err == nil && containsFolded(sess.Asked, q.Text) {
		err = errDuplicateQuestion
	}
	if err != nil {
		s.metrics.Generation("failed", time.Since(start))
		s.log.Warn("quiz_generation_failed",
			zap.String("user_id", sess.UserID),
			zap.String("game_id", sess.GameID),
			zap.String("theme", sess.Theme),
			zap.Int("question_index", sess.QuestionIndex),
			zap.Error(err),
		)
		s.say(sess, "game.generation_failed", map[string]any{"Theme": sess.Theme, "Themes": themeList()})
		s.endGame(sess, "generation_failed")
		return
	}
	s.metrics.Generation("ok", time.Since(start))

	q = q.Clone()
	q.Tier = tier
	sess.Current = q
	sess.Asked = append(sess.Asked, q.Text)
	s.sendQuestion(sess)
	s.armQuestionTimer(sess)
}

func (s *Service) sendQuestion(sess *Session) {
	q := sess.Current
	opts := make([]optionRow, len(q.Options))
	for i, o := range q.Options {
		opts[i] = optionRow{Number: i + 1, Text: o}
	}
	s.say(sess, "game.question", map[string]any{
		"Number":  sess.QuestionIndex + 1,
		"Total":   QuestionsPerGame,
		"Tier":    s.texts.Text("tier."+strings.ToLower(string(q.Tier)), nil),
		"Text":    q.Text,
		"Options": opts,
		"Limit":   s.durationText(s.questionLimit(sess.QuestionIndex)),
	})
}

func (s *Service) armQuestionTimer(sess *Session) {
	sess.TimerToken = s.timers.arm(sess.UserID, s.questionLimit(sess.QuestionIndex), event{
		kind:       eventTimeout,
		gameID:     sess.GameID,
		questionID: sess.Current.ID,
	})
}

func (s *Service) answer(sess *Session, choice int) {
	// the expiry must not fire once the answer is being scored
	s.timers.cancel(sess.UserID)
	sess.TimerToken = 0

	q := sess.Current
	chosen, _ := q.OptionAt(choice)
	correct := chosen == q.Correct
	points, key, result := -PointsWrong, "game.wrong", "wrong"
	if correct {
		points, key, result = PointsCorrect, "game.correct", "correct"
	}
	sess.RoundScore += points
	sess.Current = nil
	sess.QuestionIndex++

	s.scores.RecordAnswer(domain.AnswerRecord{
		UserID:        sess.UserID,
		Question:      q.Text,
		Category:      sess.Theme,
		CorrectAnswer: q.Correct,
		UserAnswer:    chosen,
		IsCorrect:     correct,
	})
	s.metrics.Answer(result)

	more := sess.QuestionIndex < QuestionsPerGame
	s.say(sess, key, map[string]any{
		"Points":  abs(points),
		"Score":   sess.RoundScore,
		"Correct": q.Correct,
		"More":    more,
	})
	if !more {
		s.say(sess, "game.finished", map[string]any{"Total": QuestionsPerGame, "Score": sess.RoundScore})
		s.endGame(sess, "completed")
		return
	}
	sess.TimerToken = s.timers.arm(sess.UserID, s.cfg.NextQuestionDelay, event{
		kind:   eventNextQuestion,
		gameID: sess.GameID,
	})
}

func (s *Service) giveHint(sess *Session) {
	q := sess.Current
	if q == nil {
		s.say(sess, "game.wait", nil)
		return
	}
	s.timers.cancel(sess.UserID)
	sess.TimerToken = 0

	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.HintTimeout)
	hint := s.questions.Hint(ctx, q.Text)
	cancel()

	s.say(sess, "game.hint", map[string]any{"Hint": hint})
	s.sendQuestion(sess)
	s.armQuestionTimer(sess)
}

func (s *Service) onTimeout(sess *Session, ev event) {
	if sess.Phase != PhaseInQuiz || sess.Current == nil ||
		ev.gameID != sess.GameID || ev.questionID != sess.Current.ID || ev.token != sess.TimerToken {
		s.log.Debug("quiz_stale_timer", zap.String("user_id", sess.UserID), zap.Uint64("token", ev.token))
		return
	}
	q := sess.Current
	sess.TimerToken = 0
	sess.Current = nil

	s.scores.RecordAnswer(domain.AnswerRecord{
		UserID:        sess.UserID,
		Question:      q.Text,
		Category:      sess.Theme,
		CorrectAnswer: q.Correct,
	})
	s.metrics.Answer("timeout")
	sess.QuestionIndex++
	s.say(sess, "game.timeout", map[string]any{"Correct": q.Correct, "Score": sess.RoundScore})
	s.endGame(sess, "timeout")
}

func (s *Service) onNextQuestion(sess *Session, ev event) {
	if sess.Phase != PhaseInQuiz || sess.Current != nil ||
		ev.gameID != sess.GameID || ev.token != sess.TimerToken {
		s.log.Debug("quiz_stale_next_question", zap.String("user_id", sess.UserID), zap.Uint64("token", ev.token))
		return
	}
	sess.TimerToken = 0
	s.issueQuestion(sess)
}

// endGame commits the round score and resets the session to IDLE. Callers send
// their closing message first, while the round score is still on the session.
func (s *Service) endGame(sess *Session, reason string) {
	s.timers.cancel(sess.UserID)
	if sess.RoundScore != 0 {
		ctx, cancel := s.bridgeCtx()
		err := s.scores.CommitScore(ctx, sess.UserID, sess.RoundScore)
		cancel()
		if err != nil {
			s.log.Error("quiz_commit_score_failed",
				zap.String("user_id", sess.UserID),
				zap.Int("delta", sess.RoundScore),
				zap.Error(err),
			)
		}
	}
	s.metrics.GameEnded(reason)
	s.log.Info("quiz_game_ended",
		zap.String("user_id", sess.UserID),
		zap.String("game_id", sess.GameID),
		zap.String("reason", reason),
		zap.Int("questions", sess.QuestionIndex),
		zap.Int("score", sess.RoundScore),
	)
	sess.resetToIdle()
}

func (s *Service) sendRank(sess *Session) {
	ctx, cancel := s.bridgeCtx()
	entries, err := s.scores.TopScores(ctx, s.cfg.LeaderboardSize)
	cancel()
	if err != nil {
		s.log.Warn("quiz_top_scores_failed", zap.Error(err))
		s.say(sess, "rank.error", nil)
		return
	}
	rows := make([]rankRow, len(entries))
	for i, e := range entries {
		medal := "⭐"
		if i < len(medals) {
			medal = medals[i]
		}
		rows[i] = rankRow{Medal: medal, Name: e.Name, Score: e.Score}
	}
	s.say(sess, "rank.board", map[string]any{"Rows": rows})
}

func (s *Service) sendHelp(sess *Session) {
	text := s.texts.Text("help.body", map[string]any{
		"Top":        s.cfg.LeaderboardSize,
		"Total":      QuestionsPerGame,
		"Limit":      s.durationText(s.cfg.QuestionTimeout),
		"FinalLimit": s.durationText(s.cfg.FinalQuestionTimeout),
		"Themes":     themeList(),
	})
	s.send(sess, util.WithSeeMore(util.SplitHeadline(text)))
}

func containsFolded(list []string, text string) bool {
	f := util.Fold(text)
	for _, q := range list {
		if util.Fold(q) == f {
			return true
		}
	}
	return false
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
