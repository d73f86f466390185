package telegram

import "strings"

const (
	// MessageLimit — максимальная длина текста сообщения в символах.
	MessageLimit = 4096
	// CaptionLimit — максимальная длина подписи к фото или документу.
	CaptionLimit = 1024
)

// Split режет текст на части не длиннее limit символов.
// Резать старается по переводу строки, чтобы блоки уведомления не разрывались.
func Split(text string, limit int) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	if limit <= 0 {
		limit = MessageLimit
	}

	runes := []rune(trimmed)
	var parts []string
	for start := 0; start < len(runes); {
		end := start + limit
		if end >= len(runes) {
			parts = appendChunk(parts, runes[start:])
			break
		}

		cut := end
		for i := end; i > start; i-- {
			if runes[i-1] == '\n' {
				cut = i
				break
			}
		}
		parts = appendChunk(parts, runes[start:cut])

		start = cut
		for start < len(runes) && runes[start] == '\n' {
			start++
		}
	}
	return parts
}

// SplitMessage режет текст по лимиту сообщения.
func SplitMessage(text string) []string {
	return Split(text, MessageLimit)
}

// Truncate обрезает текст до limit символов, добавляя многоточие.
func Truncate(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	if limit <= 1 {
		return string(runes[:limit])
	}
	return string(runes[:limit-1]) + "…"
}

func appendChunk(parts []string, runes []rune) []string {
	chunk := strings.Trim(string(runes), "\n")
	if chunk == "" {
		return parts
	}
	return append(parts, chunk)
}
