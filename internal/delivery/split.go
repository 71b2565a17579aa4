package delivery

import (
	"strings"
	"unicode"
)

// DefaultChunkLimit is the per-message character budget for chat.postMessage.
const DefaultChunkLimit = 3000

// Split breaks text into chunks of at most limit characters, preferring to
// cut at a newline in the second half of the window, then at the last space.
// Leading whitespace of each following chunk is dropped.
func Split(text string, limit int) []string {
	if limit <= 0 {
		limit = DefaultChunkLimit
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return []string{text}
	}

	var chunks []string
	for len(runes) > 0 {
		if len(runes) <= limit {
			chunks = append(chunks, string(runes))
			break
		}
		window := string(runes[:limit])
		pos := lastRuneIndex(window, "\n")
		if pos == -1 || pos < limit/2 {
			pos = lastRuneIndex(window, " ")
		}
		if pos <= 0 {
			pos = limit
		}
		chunks = append(chunks, string(runes[:pos]))
		runes = []rune(strings.TrimLeftFunc(string(runes[pos:]), unicode.IsSpace))
	}
	return chunks
}

// lastRuneIndex is strings.LastIndex measured in runes.
func lastRuneIndex(s, sep string) int {
	i := strings.LastIndex(s, sep)
	if i < 0 {
		return -1
	}
	return len([]rune(s[:i]))
}
