package questiongen

import (
	"fmt"
	"strings"

	"github.com/park285/Trivia-KakaoTalk-bot/internal/domain"
)

const jsonShape = `{"pergunta": "...", "opcoes": ["...", "...", "...", "..."], "correta": "..."}`

// maxAvoidInPrompt bounds how many earlier questions are listed in a prompt.
const maxAvoidInPrompt = 30

func difficultyLabel(t domain.Tier) string {
	switch t {
	case domain.TierEasy:
		return "fácil"
	case domain.TierNormal:
		return "normal"
	default:
		return "super desafio"
	}
}

// BuildPrompt renders the tier specific instruction for one question on topic.
func BuildPrompt(topic string, tier domain.Tier, avoid []string) string {
	var b strings.Builder
	if tier == domain.TierChallenge {
		fmt.Fprintf(&b, "Gere uma pergunta BEM DIFÍCIL, criativa e desafiadora sobre %s", topic)
	} else {
		fmt.Fprintf(&b, "Gere uma pergunta de nível %s, divertida e objetiva sobre %s", difficultyLabel(tier), topic)
	}
	b.WriteString(" com EXATAMENTE 4 opções de resposta (apenas uma correta) no formato: ")
	b.WriteString(jsonShape)
	b.WriteString(".")

	if len(avoid) > maxAvoidInPrompt {
		avoid = avoid[len(avoid)-maxAvoidInPrompt:]
	}
	if len(avoid) > 0 {
		b.WriteString(" Não repita perguntas já feitas: ")
		b.WriteString(strings.Join(avoid, " | "))
		b.WriteString(".")
	}
	b.WriteString(" Não inclua texto extra, explicações, código ou formatação. Embaralhe as opções. Só o JSON puro!")
	return b.String()
}

func hintPrompt(questionText string) string {
	return "Dê uma dica divertida e fácil, em uma frase e sem revelar a resposta, para a pergunta: " + questionText
}
