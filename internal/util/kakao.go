package util

import "strings"

const (
	KakaoSeeMorePadding = 500
	KakaoZeroWidthSpace = "\u200b"
)

// WithSeeMore collapses a long body behind KakaoTalk's "see more" fold,
// leaving only the headline visible in the chat list.
func WithSeeMore(headline, body string) string {
	if strings.TrimSpace(body) == "" {
		return headline
	}
	headline = strings.TrimSpace(headline)

	var b strings.Builder
	b.Grow(len(headline) + len(body) + KakaoSeeMorePadding*len(KakaoZeroWidthSpace) + 1)
	b.WriteString(headline)
	b.WriteString(strings.Repeat(KakaoZeroWidthSpace, KakaoSeeMorePadding))
	if !strings.HasPrefix(body, "\n") {
		b.WriteByte('\n')
	}
	b.WriteString(body)
	return b.String()
}

// SplitHeadline splits text at its first line.
func SplitHeadline(text string) (headline, body string) {
	text = strings.TrimSpace(text)
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		return strings.TrimSpace(text[:i]), strings.TrimLeft(text[i+1:], "\r\n")
	}
	return text, ""
}
