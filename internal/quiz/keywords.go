package quiz

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/park285/Trivia-KakaoTalk-bot/internal/util"
)

type Theme struct {
	Name  string // topic sent to the generator
	Label string // menu label
	Emoji string
	Badge string // keycap number
}

var Themes = []Theme{
	{Name: "animais", Label: "Animais", Emoji: "🦁", Badge: "1️⃣"},
	{Name: "filmes", Label: "Filmes", Emoji: "🎬", Badge: "2️⃣"},
	{Name: "conhecimentos gerais", Label: "C. Geral", Emoji: "🌎", Badge: "3️⃣"},
	{Name: "esportes", Label: "Esportes", Emoji: "⚽", Badge: "4️⃣"},
	{Name: "cores", Label: "Cores", Emoji: "🎨", Badge: "5️⃣"},
	{Name: "frutas", Label: "Frutas", Emoji: "🍎", Badge: "6️⃣"},
	{Name: "planetas", Label: "Planetas", Emoji: "🪐", Badge: "7️⃣"},
	{Name: "profissões", Label: "Profissões", Emoji: "👩‍🚒", Badge: "8️⃣"},
	{Name: "países", Label: "Países", Emoji: "🌍", Badge: "9️⃣"},
}

var (
	rankWords    = set("rank", "ranking")
	helpWords    = set("ajuda", "help")
	confirmWords = set("sim", "s", "confirmar", "confirm", "yes")
	exitWords    = set("sair", "exit")
	hintWords    = set("dica", "hint")
	freeWords    = set("10", "🔟", "tema livre")
	themeAliases = map[string]string{"c. geral": "conhecimentos gerais", "c geral": "conhecimentos gerais", "geral": "conhecimentos gerais"}
)

func set(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[util.Fold(w)] = struct{}{}
	}
	return m
}

func in(words map[string]struct{}, folded string) bool {
	_, ok := words[folded]
	return ok
}

// quizCommand reports whether raw starts with the "quiz" keyword, returning the topic after it.
func quizCommand(raw string) (topic string, ok bool) {
	fields := strings.Fields(raw)
	if len(fields) == 0 || util.Fold(fields[0]) != "quiz" {
		return "", false
	}
	return strings.ToLower(strings.Join(fields[1:], " ")), true
}

func isReserved(folded string) bool {
	if strings.HasPrefix(folded, "quiz") {
		return true
	}
	return in(rankWords, folded) || in(helpWords, folded) || in(exitWords, folded) || in(hintWords, folded)
}

// candidateName returns the first word of raw when it can serve as a display name.
func candidateName(raw string) (string, bool) {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return "", false
	}
	if isReserved(util.Fold(raw)) {
		return "", false
	}
	name := fields[0]
	if utf8.RuneCountInString(name) < 2 {
		return "", false
	}
	return name, true
}

// themeChoice maps a menu reply (number or name) to a fixed theme.
func themeChoice(folded string) (string, bool) {
	if n, err := strconv.Atoi(stripKeycap(folded)); err == nil {
		if n >= 1 && n <= len(Themes) {
			return Themes[n-1].Name, true
		}
		return "", false
	}
	if alias, ok := themeAliases[folded]; ok {
		return alias, true
	}
	for _, t := range Themes {
		if util.Fold(t.Name) == folded {
			return t.Name, true
		}
	}
	return "", false
}

// stripKeycap turns "1️⃣" into "1". Fold already removed the variation selector.
func stripKeycap(folded string) string {
	return strings.ReplaceAll(folded, "\u20e3", "")
}

// optionChoice parses "1".."4".
func optionChoice(folded string) (int, bool) {
	n, err := strconv.Atoi(stripKeycap(folded))
	if err != nil || n < 1 || n > 4 {
		return 0, false
	}
	return n, true
}

func themeList() string {
	parts := make([]string, len(Themes))
	for i, t := range Themes {
		parts[i] = t.Emoji + " " + t.Name
	}
	return strings.Join(parts, ", ")
}
