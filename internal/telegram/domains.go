package telegram

import (
	"net"
	"strings"
	"unicode/utf16"

	"github.com/go-telegram/bot/models"
	"golang.org/x/net/idna"
)

// extractDomains collects domain names from url entities of msg, falling
// back to plain command arguments when Telegram marked none. Names are
// normalized to lower-case ASCII and deduplicated in order of appearance.
func extractDomains(msg *models.Message, args []string) []string {
	candidates := entityTexts(msg)
	if len(candidates) == 0 {
		candidates = args
	}

	seen := make(map[string]struct{}, len(candidates))
	names := make([]string, 0, len(candidates))
	for _, candidate := range candidates {
		name, ok := normalizeDomain(candidate)
		if !ok {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}

	return names
}

// entityTexts slices url entities out of the message text. Offsets are in
// UTF-16 code units.
func entityTexts(msg *models.Message) []string {
	if msg == nil || len(msg.Entities) == 0 {
		return nil
	}

	units := utf16.Encode([]rune(msg.Text))
	var out []string
	for _, entity := range msg.Entities {
		switch entity.Type {
		case "url":
			start, end := entity.Offset, entity.Offset+entity.Length
			if start < 0 || end > len(units) || start >= end {
				continue
			}
			out = append(out, string(utf16.Decode(units[start:end])))
		case "text_link":
			if entity.URL != "" {
				out = append(out, entity.URL)
			}
		}
	}

	return out
}

func normalizeDomain(raw string) (string, bool) {
	name := strings.TrimSpace(raw)
	if i := strings.Index(name, "://"); i >= 0 {
		name = name[i+3:]
	}
	if i := strings.IndexAny(name, "/?#"); i >= 0 {
		name = name[:i]
	}
	if i := strings.LastIndex(name, "@"); i >= 0 {
		name = name[i+1:]
	}
	if host, _, err := net.SplitHostPort(name); err == nil {
		name = host
	}
	name = strings.TrimSuffix(strings.ToLower(name), ".")
	if name == "" {
		return "", false
	}

	ascii, err := idna.Lookup.ToASCII(name)
	if err != nil || !strings.Contains(ascii, ".") {
		return "", false
	}

	return ascii, true
}
