package quiz

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/park285/Trivia-KakaoTalk-bot/internal/domain"
	"github.com/park285/Trivia-KakaoTalk-bot/internal/util"
)

func TestOnboardingToFirstQuestion(t *testing.T) {
	h := newHarness(t)

	h.say("Quiz")
	out := h.messenger.all()
	require.Len(t, out, 3)
	assert.True(t, out[0].image, "welcome image first")
	assert.Equal(t, "room-1", out[0].room)
	assert.Contains(t, out[1].text, "Bem-vindo")
	assert.Equal(t, "Qual é o seu nome?", out[2].text)
	assert.Equal(t, PhaseAwaitingName, h.session().Phase)

	h.say("Ana")
	assert.Equal(t, PhaseAwaitingNameConfirm, h.session().Phase)
	assert.Equal(t, "Ana", h.session().CandidateName)
	assert.Contains(t, h.lastText(), "Ana, certo?")

	h.say("sim")
	sess := h.session()
	assert.Equal(t, PhaseAwaitingTheme, sess.Phase)
	assert.Equal(t, "Ana", sess.ConfirmedName)
	assert.Contains(t, h.lastText(), "Prontinho, *Ana*")
	assert.Contains(t, h.lastText(), "9️⃣  Países")
	u, _ := h.scores.LookupUser(context.Background(), testUser)
	require.NotNil(t, u)
	assert.Equal(t, 0, u.Score)

	h.say("1")
	sess = h.session()
	assert.Equal(t, PhaseInQuiz, sess.Phase)
	assert.Equal(t, "animais", sess.Theme)
	assert.Equal(t, 0, sess.QuestionIndex)
	require.NotNil(t, sess.Current)
	assert.Equal(t, domain.TierEasy, sess.Current.Tier)
	assert.Equal(t, []string{sess.Current.Text}, sess.Asked)
	assert.Contains(t, h.lastText(), "(Fácil)")
	assert.Contains(t, h.lastText(), "30 segundos")

	timer := h.liveTimer()
	assert.Equal(t, 30*time.Second, timer.d)
	assert.Equal(t, sess.TimerToken, mustArmed(t, h))
}

func mustArmed(t *testing.T, h *harness) uint64 {
	t.Helper()
	tok, ok := h.svc.timers.armed(testUser)
	require.True(t, ok)
	return tok
}

func TestNameCorrectionLoop(t *testing.T) {
	h := newHarness(t)
	h.say("oi")

	h.say("x")
	assert.Equal(t, PhaseAwaitingName, h.session().Phase, "single letter is not a name")

	h.say("quiz animais")
	assert.Equal(t, PhaseAwaitingName, h.session().Phase, "reserved words are not names")

	h.say("Ana Maria")
	assert.Equal(t, "Ana", h.session().CandidateName)

	h.say("Bruno Silva")
	assert.Equal(t, "Bruno", h.session().CandidateName)
	assert.Contains(t, h.lastText(), "Seu nome será *Bruno*")

	h.say("?")
	assert.Equal(t, PhaseAwaitingNameConfirm, h.session().Phase)
	assert.Contains(t, h.lastText(), "responda *SIM*")

	h.say("SIM")
	assert.Equal(t, "Bruno", h.session().ConfirmedName)
}

func TestRegisterFailureKeepsPhase(t *testing.T) {
	h := newHarness(t)
	h.say("oi")
	h.say("Ana")
	h.scores.mu.Lock()
	h.scores.regErr = errors.New("db down")
	h.scores.mu.Unlock()

	h.say("sim")
	assert.Equal(t, PhaseAwaitingNameConfirm, h.session().Phase)
	assert.Equal(t, "Ana", h.session().CandidateName)
	assert.Contains(t, h.lastText(), "algo deu errado")
}

func TestLookupFailureLeavesSessionNew(t *testing.T) {
	h := newHarness(t)
	h.scores.lookupErr = errors.New("db down")

	h.say("oi")
	assert.Equal(t, PhaseNew, h.session().Phase)
	assert.Contains(t, h.lastText(), "algo deu errado")
}

func TestKnownUserGreetingAndDirectStart(t *testing.T) {
	h := newHarness(t)
	h.scores.users[testUser] = &domain.User{UserID: testUser, Name: "Ana", Score: 40}

	h.say("olá")
	assert.Equal(t, PhaseAwaitingTheme, h.session().Phase)
	assert.Contains(t, h.lastText(), "Olá, *Ana*")
	for _, m := range h.messenger.all() {
		assert.False(t, m.image, "known users skip the welcome image")
	}

	h.say("quiz Planetas")
	sess := h.session()
	assert.Equal(t, PhaseInQuiz, sess.Phase)
	assert.Equal(t, "planetas", sess.Theme)
}

func TestQuizWithoutTopicShowsUsage(t *testing.T) {
	h := newHarness(t)
	h.scores.users[testUser] = &domain.User{UserID: testUser, Name: "Ana"}

	h.say("quiz")
	assert.Equal(t, PhaseIdle, h.session().Phase)
	assert.Contains(t, h.lastText(), "depois da palavra *quiz*")
}

func TestThemeMenuChoices(t *testing.T) {
	cases := map[string]string{
		"3":          "conhecimentos gerais",
		"Profissoes": "profissões",
		"PAÍSES":     "países",
		"7️⃣":        "planetas",
	}
	for reply, want := range cases {
		t.Run(reply, func(t *testing.T) {
			h := newHarness(t)
			h.scores.users[testUser] = &domain.User{UserID: testUser, Name: "Ana"}
			h.say("oi")
			h.say(reply)
			assert.Equal(t, want, h.session().Theme)
		})
	}
}

func TestInvalidThemeKeepsMenu(t *testing.T) {
	h := newHarness(t)
	h.scores.users[testUser] = &domain.User{UserID: testUser, Name: "Ana"}
	h.say("oi")

	h.say("11")
	assert.Equal(t, PhaseAwaitingTheme, h.session().Phase)
	assert.Contains(t, h.lastText(), "Escolha um tema")
}

func TestFreeTheme(t *testing.T) {
	h := newHarness(t)
	h.scores.users[testUser] = &domain.User{UserID: testUser, Name: "Ana"}
	h.say("oi")

	h.say("🔟")
	assert.Equal(t, PhaseAwaitingFreeTheme, h.session().Phase)

	h.say("ab")
	assert.Equal(t, PhaseAwaitingFreeTheme, h.session().Phase)
	assert.Contains(t, h.lastText(), "Tema muito curto")

	h.say("Dinossauros")
	sess := h.session()
	assert.Equal(t, PhaseInQuiz, sess.Phase)
	assert.Equal(t, "dinossauros", sess.Theme)
}

func TestCorrectAnswerScoresAndSchedulesNext(t *testing.T) {
	h := newHarness(t)
	h.startGame()
	first := h.session().Current

	h.say("2")
	sess := h.session()
	assert.Equal(t, 10, sess.RoundScore)
	assert.Equal(t, 1, sess.QuestionIndex)
	assert.Nil(t, sess.Current)
	assert.Contains(t, h.lastText(), "Mandou bem")
	assert.Contains(t, h.lastText(), "Pronto para a próxima?")

	next := h.liveTimer()
	assert.Equal(t, 3*time.Second, next.d)
	_, records := h.scores.snapshot()
	require.Len(t, records, 1)
	assert.True(t, records[0].IsCorrect)
	assert.Equal(t, first.Text, records[0].Question)
	assert.Equal(t, "animais", records[0].Category)

	h.fire(next)
	sess = h.session()
	require.NotNil(t, sess.Current)
	assert.NotEqual(t, first.ID, sess.Current.ID)
	assert.Equal(t, domain.TierEasy, sess.Current.Tier)
	assert.Len(t, sess.Asked, 2)
	assert.Equal(t, 30*time.Second, h.liveTimer().d)
}

func TestWrongAnswerDeductsAndReveals(t *testing.T) {
	h := newHarness(t)
	h.startGame()

	h.say("1")
	assert.Equal(t, -5, h.session().RoundScore)
	assert.Contains(t, h.lastText(), "A resposta era: B1")
	assert.Contains(t, h.lastText(), "-5 pontos")
}

func TestFullGameCommitsOnceAndEnds(t *testing.T) {
	h := newHarness(t)
	h.startGame()

	answers := []string{"2", "1", "2", "2", "2"} // +10 -5 +10 +10 +10
	tiers := []domain.Tier{domain.TierEasy, domain.TierEasy, domain.TierNormal, domain.TierNormal, domain.TierChallenge}
	for i, a := range answers {
		sess := h.session()
		require.NotNil(t, sess.Current, "question %d", i)
		assert.Equal(t, tiers[i], sess.Current.Tier, "question %d", i)
		assert.Equal(t, i, sess.QuestionIndex)
		if i == 4 {
			assert.Equal(t, 60*time.Second, h.liveTimer().d, "final question gets the longer window")
		}
		h.say(a)
		if i < 4 {
			h.fire(h.liveTimer())
		}
	}

	sess := h.session()
	assert.Equal(t, PhaseIdle, sess.Phase)
	assert.Nil(t, sess.Current)
	assert.Empty(t, sess.Asked)
	assert.Equal(t, "Ana", sess.ConfirmedName)
	assert.Empty(t, h.sched.live(), "no timer survives the game")

	commits, records := h.scores.snapshot()
	assert.Equal(t, []int{35}, commits)
	assert.Len(t, records, 5)
	assert.Contains(t, h.lastText(), "respondeu as 5 perguntas")
	assert.Contains(t, h.lastText(), "35 pontos")

	// every prompt excluded all earlier questions of the game, and none repeated
	h.questions.mu.Lock()
	defer h.questions.mu.Unlock()
	require.Len(t, h.questions.asked, 5)
	assert.Len(t, h.questions.asked[4], 4)
	seen := map[string]bool{}
	for _, q := range h.questions.asked[4] {
		assert.False(t, seen[q], "duplicate %q", q)
		seen[q] = true
	}
}

func TestTimeoutRevealsAndCommitsAccumulatedScore(t *testing.T) {
	h := newHarness(t)
	h.startGame()

	h.say("2")
	h.fire(h.liveTimer())
	pending := h.session().Current
	require.NotNil(t, pending)

	h.fire(h.liveTimer())
	sess := h.session()
	assert.Equal(t, PhaseIdle, sess.Phase)
	assert.Nil(t, sess.Current)
	assert.Contains(t, h.lastText(), "Tempo esgotado")
	assert.Contains(t, h.lastText(), "*"+pending.Correct+"*")

	commits, records := h.scores.snapshot()
	assert.Equal(t, []int{10}, commits, "timeout commits the accumulated score, no deduction")
	require.Len(t, records, 2)
	assert.False(t, records[1].IsCorrect)
	assert.Empty(t, records[1].UserAnswer)
	assert.Empty(t, h.sched.live())

	ended := h.logs.FilterMessage("quiz_game_ended").All()
	require.Len(t, ended, 1)
	fields := ended[0].ContextMap()
	assert.Equal(t, "timeout", fields["reason"])
	assert.EqualValues(t, 2, fields["questions"], "the timed out question counts as resolved")
}

func TestAnswerBeatsStaleTimer(t *testing.T) {
	h := newHarness(t)
	h.startGame()
	expiry := h.liveTimer()

	h.say("2")
	require.True(t, expiry.stopped, "answer cancels the expiry")
	next := h.liveTimer()

	// the expiry fires anyway, as if it raced the cancellation
	h.fire(expiry)
	sess := h.session()
	assert.Equal(t, PhaseInQuiz, sess.Phase)
	assert.Equal(t, 10, sess.RoundScore)
	assert.Equal(t, 1, sess.QuestionIndex)
	assert.Equal(t, 0, h.textsContaining("Tempo esgotado"))
	live := h.sched.live()
	require.Len(t, live, 1)
	assert.Same(t, next, live[0])
	commits, _ := h.scores.snapshot()
	assert.Empty(t, commits)
}

func TestTimeoutBeatsLateAnswer(t *testing.T) {
	h := newHarness(t)
	h.startGame()

	h.fire(h.liveTimer())
	require.Equal(t, PhaseIdle, h.session().Phase)

	h.say("2")
	sess := h.session()
	assert.NotEqual(t, PhaseInQuiz, sess.Phase)
	assert.Equal(t, 0, sess.RoundScore)
	commits, records := h.scores.snapshot()
	assert.Empty(t, commits)
	assert.Len(t, records, 1, "only the timeout was recorded")
}

func TestStaleNextQuestionIgnoredAfterExit(t *testing.T) {
	h := newHarness(t)
	h.startGame()
	h.say("2")
	next := h.liveTimer()

	h.say("sair")
	require.True(t, next.stopped)
	h.fire(next)

	assert.Equal(t, PhaseIdle, h.session().Phase)
	assert.Equal(t, 1, h.questions.generateCalls())
}

func TestExitCommitsRoundScore(t *testing.T) {
	h := newHarness(t)
	h.startGame()
	h.say("1")
	h.fire(h.liveTimer())

	h.say("sair")
	sess := h.session()
	assert.Equal(t, PhaseIdle, sess.Phase)
	assert.Contains(t, h.lastText(), "Você fez *-5 pontos*")
	commits, _ := h.scores.snapshot()
	assert.Equal(t, []int{-5}, commits)
	assert.Empty(t, h.sched.live())
}

func TestHintReissuesSameQuestion(t *testing.T) {
	h := newHarness(t)
	h.startGame()
	before := h.session()
	oldTimer := h.liveTimer()

	h.say("dica")
	after := h.session()
	require.NotNil(t, after.Current)
	assert.Equal(t, before.Current.ID, after.Current.ID)
	assert.Equal(t, before.Asked, after.Asked)
	assert.True(t, oldTimer.stopped)
	newTimer := h.liveTimer()
	assert.Equal(t, after.TimerToken, mustArmed(t, h))
	assert.NotEqual(t, before.TimerToken, after.TimerToken)
	assert.Equal(t, 30*time.Second, newTimer.d)
	assert.Equal(t, 1, h.questions.generateCalls(), "hint does not generate a new question")
	assert.Equal(t, 1, h.textsContaining("pense na letra B"))

	// the old expiry is stale now
	h.fire(oldTimer)
	assert.Equal(t, PhaseInQuiz, h.session().Phase)
}

func TestRankDoesNotTouchGame(t *testing.T) {
	h := newHarness(t)
	h.scores.top = []domain.RankEntry{
		{UserID: "a", Name: "Ana", Score: 50},
		{UserID: "b", Name: "Beto", Score: 40},
		{UserID: "c", Name: "Caio", Score: 30},
		{UserID: "d", Name: "Duda", Score: 20},
	}
	h.startGame()
	before := h.session()
	timer := h.liveTimer()

	h.say("Rank")
	assert.Equal(t, before, h.session())
	assert.False(t, timer.stopped)
	assert.Same(t, timer, h.liveTimer())
	board := h.lastText()
	assert.Contains(t, board, "🥇 *Ana*: 50 pontos")
	assert.Contains(t, board, "🥉 *Caio*: 30 pontos")
	assert.Contains(t, board, "⭐ *Duda*: 20 pontos")
}

func TestRankErrorAndEmptyBoard(t *testing.T) {
	h := newHarness(t)
	h.say("ranking")
	assert.Contains(t, h.lastText(), "Ninguém jogou ainda")

	h.scores.mu.Lock()
	h.scores.topErr = errors.New("db down")
	h.scores.mu.Unlock()
	h.say("rank")
	assert.Contains(t, h.lastText(), "Não consegui mostrar o ranking")
}

func TestHelpIsFoldedAndStateless(t *testing.T) {
	h := newHarness(t)
	h.startGame()
	before := h.session()

	h.say("ajuda")
	assert.Equal(t, before, h.session())
	assert.Contains(t, h.lastText(), "Como jogar")
	assert.Contains(t, h.lastText(), util.KakaoZeroWidthSpace)
}

func TestInvalidInputDuringQuiz(t *testing.T) {
	h := newHarness(t)
	h.startGame()
	before := h.session()

	h.say("banana")
	assert.Equal(t, before, h.session())
	assert.Contains(t, h.lastText(), "Responda com 1️⃣")

	h.say("5")
	assert.Equal(t, before, h.session())
}

func TestAnswerBetweenQuestionsIsRejected(t *testing.T) {
	h := newHarness(t)
	h.startGame()
	h.say("2")
	before := h.session()

	h.say("3")
	assert.Equal(t, before, h.session())
	assert.Contains(t, h.lastText(), "Calma")

	h.say("dica")
	assert.Equal(t, before, h.session())
}

func TestGenerationExhaustedAbortsGame(t *testing.T) {
	h := newHarness(t)
	h.questions.failFrom = 1
	h.scores.users[testUser] = &domain.User{UserID: testUser, Name: "Ana"}
	h.say("oi")
	h.say("2")

	sess := h.session()
	assert.Equal(t, PhaseIdle, sess.Phase)
	assert.Nil(t, sess.Current)
	assert.Contains(t, h.lastText(), "Não consegui gerar uma pergunta para o tema *filmes*")
	assert.Empty(t, h.sched.live())
	commits, _ := h.scores.snapshot()
	assert.Empty(t, commits)
}

func TestGenerationFailureMidGameCommitsScoreSoFar(t *testing.T) {
	h := newHarness(t)
	h.questions.failFrom = 2
	h.startGame()

	h.say("2")
	h.fire(h.liveTimer())

	assert.Equal(t, PhaseIdle, h.session().Phase)
	commits, _ := h.scores.snapshot()
	assert.Equal(t, []int{10}, commits)
	assert.Empty(t, h.sched.live())
}

func TestRepeatedQuestionTreatedAsFailure(t *testing.T) {
	h := newHarness(t)
	h.questions.repeat = true
	h.startGame()

	h.say("2")
	h.fire(h.liveTimer())
	assert.Equal(t, PhaseIdle, h.session().Phase)
	assert.Contains(t, h.lastText(), "Não consegui gerar")
}

func TestHistoryLookbackFeedsPrompt(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.HistoryLookback = 10 })
	h.scores.recent = []string{"Pergunta antiga?"}
	h.startGame()

	h.questions.mu.Lock()
	defer h.questions.mu.Unlock()
	assert.Equal(t, []string{"Pergunta antiga?"}, h.questions.asked[0])
}

func TestHistoryLookbackListsNewestLast(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.HistoryLookback = 10 })
	h.scores.recent = []string{"Mais nova?", "Do meio?", "Mais velha?"}
	h.startGame()

	h.questions.mu.Lock()
	defer h.questions.mu.Unlock()
	assert.Equal(t, []string{"Mais velha?", "Do meio?", "Mais nova?"}, h.questions.asked[0])
}

func TestConfiguredDurations(t *testing.T) {
	h := newHarness(t, func(c *Config) {
		c.QuestionTimeout = 45 * time.Second
		c.FinalQuestionTimeout = 2 * time.Minute
	})
	h.startGame()
	assert.Equal(t, 45*time.Second, h.liveTimer().d)
	assert.Contains(t, h.lastText(), "45 segundos")
	assert.Equal(t, "2 minutos", h.svc.durationText(2*time.Minute))
}

func TestSessionsRunIndependently(t *testing.T) {
	h := newHarness(t)
	const users = 20

	var wg sync.WaitGroup
	for i := 0; i < users; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("room:%d", i)
			for _, text := range []string{"oi", fmt.Sprintf("Jogador%d", i), "sim", "6"} {
				h.svc.Handle(Inbound{UserID: id, Room: "room", Text: text})
			}
		}(i)
	}
	wg.Wait()
	h.svc.Drain()

	for i := 0; i < users; i++ {
		sess, ok := h.svc.Session(fmt.Sprintf("room:%d", i))
		require.True(t, ok)
		assert.Equal(t, PhaseInQuiz, sess.Phase, "user %d", i)
		assert.Equal(t, fmt.Sprintf("Jogador%d", i), sess.ConfirmedName)
		assert.Equal(t, "frutas", sess.Theme)
	}
	assert.Len(t, h.sched.live(), users)
}

func TestHandleRejectsEmptyUserAndClosed(t *testing.T) {
	h := newHarness(t)
	assert.False(t, h.svc.Handle(Inbound{Text: "oi"}))
	h.svc.Close()
	assert.False(t, h.svc.Handle(Inbound{UserID: testUser, Text: "oi"}))
}

func TestNewServiceRequiresDeps(t *testing.T) {
	_, err := NewService(Config{}, Deps{})
	assert.Error(t, err)
}
