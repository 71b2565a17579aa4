package delivery

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	fencedCodeRe = regexp.MustCompile("(?s)```.*?```")
	inlineCodeRe = regexp.MustCompile("`[^`]+`")
	boldRe       = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	strikeRe     = regexp.MustCompile(`~~([^~]+)~~`)
	headerRe     = regexp.MustCompile(`(?m)^#{1,6}\s+(.+)$`)
)

// ToMrkdwn rewrites common Markdown into Slack's mrkdwn dialect. Fenced and
// inline code spans are left untouched.
func ToMrkdwn(text string) string {
	if text == "" {
		return text
	}

	var blocks, inline, bold []string
	text = fencedCodeRe.ReplaceAllStringFunc(text, func(m string) string {
		blocks = append(blocks, m)
		return fmt.Sprintf("\x00CODEBLOCK%d\x00", len(blocks)-1)
	})
	text = inlineCodeRe.ReplaceAllStringFunc(text, func(m string) string {
		inline = append(inline, m)
		return fmt.Sprintf("\x00INLINECODE%d\x00", len(inline)-1)
	})

	text = boldRe.ReplaceAllStringFunc(text, func(m string) string {
		bold = append(bold, boldRe.FindStringSubmatch(m)[1])
		return fmt.Sprintf("\x00BOLD%d\x00", len(bold)-1)
	})
	text = italicize(text)
	for i, b := range bold {
		text = strings.Replace(text, fmt.Sprintf("\x00BOLD%d\x00", i), "*"+b+"*", 1)
	}

	text = strikeRe.ReplaceAllString(text, "~$1~")
	text = headerRe.ReplaceAllString(text, "*$1*")

	for i, b := range blocks {
		text = strings.Replace(text, fmt.Sprintf("\x00CODEBLOCK%d\x00", i), b, 1)
	}
	for i, c := range inline {
		text = strings.Replace(text, fmt.Sprintf("\x00INLINECODE%d\x00", i), c, 1)
	}
	return text
}

// italicize turns *x* into _x_ when neither asterisk touches another one.
// RE2 has no lookaround, so the match is done by hand.
func italicize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	i := 0
	for i < len(s) {
		if s[i] == '*' && (i == 0 || s[i-1] != '*') {
			j := strings.IndexByte(s[i+1:], '*')
			if j > 0 {
				end := i + 1 + j
				if end+1 >= len(s) || s[end+1] != '*' {
					b.WriteByte('_')
					b.WriteString(s[i+1 : end])
					b.WriteByte('_')
					i = end + 1
					continue
				}
			}
		}
		b.WriteByte(s[i])
		i++
	}
	return b.String()
}
