package telegram

import (
	"fmt"
	"strings"
	"unicode/utf16"

	"tg_domain_watch_bot/internal/feature/watch"
)

// maxMessageLength is the Telegram limit for one text message.
const maxMessageLength = 4096

func renderWatch(result watch.Result) string {
	var b strings.Builder

	if len(result.Tracked) > 0 {
		suffix := ""
		if len(result.Tracked) > 1 {
			suffix = "s"
		}
		fmt.Fprintf(&b, "Done! You are subscribed on: %s domain%s", strings.Join(result.Tracked, " "), suffix)
	}
	if len(result.Failed) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "Cannot get registry data for: %s", strings.Join(result.Failed, " "))
	}

	return b.String()
}

func renderTracking(rows []watch.Row) string {
	lines := make([]string, 0, len(rows)+2)
	lines = append(lines,
		fmt.Sprintf("You tracked %d domains", len(rows)),
		"Domain | Expire | Free",
	)
	for _, row := range rows {
		if !row.Known() {
			lines = append(lines, row.Name+" | unknown | unknown")
			continue
		}
		lines = append(lines, fmt.Sprintf("%s | %d days | %d days", row.Name, row.DaysToExpiry, row.DaysToDeadline))
	}

	return strings.Join(lines, "\n")
}

// splitMessage cuts text into chunks of at most limit UTF-16 code units, the
// unit Telegram measures message length in, preferring line boundaries.
func splitMessage(text string, limit int) []string {
	if utf16Len(text) <= limit {
		return []string{text}
	}

	var chunks []string
	var current strings.Builder
	currentLen := 0

	flush := func() {
		if currentLen > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
			currentLen = 0
		}
	}

	for _, line := range strings.SplitAfter(text, "\n") {
		lineLen := utf16Len(line)
		if currentLen+lineLen <= limit {
			current.WriteString(line)
			currentLen += lineLen
			continue
		}

		flush()
		if lineLen <= limit {
			current.WriteString(line)
			currentLen = lineLen
			continue
		}
		for _, r := range line {
			size := utf16.RuneLen(r)
			if currentLen+size > limit {
				flush()
			}
			current.WriteRune(r)
			currentLen += size
		}
	}
	flush()

	return chunks
}

func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		n += utf16.RuneLen(r)
	}
	return n
}
