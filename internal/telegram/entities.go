package telegram

import (
	"sort"
	"strings"
	"unicode/utf16"

	"github.com/gotd/td/tg"
)

// span is markup placed around a range of UTF-16 code units.
type span struct {
	start, end  int
	open, close string
}

// formatText renders a message's text with its entities as markdown suitable
// for glamour. Offsets are in UTF-16 code units, as Telegram sends them. The
// second result is false when no entity produced markup.
func formatText(text string, entities []tg.MessageEntityClass) (string, bool) {
	if len(entities) == 0 {
		return text, false
	}
	units := utf16.Encode([]rune(text))

	spans := make([]span, 0, len(entities))
	for _, e := range entities {
		start := min(e.GetOffset(), len(units))
		end := min(start+e.GetLength(), len(units))
		if start < 0 || end <= start {
			continue
		}
		open, close, ok := markup(e, string(utf16.Decode(units[start:end])))
		if !ok {
			continue
		}
		spans = append(spans, span{start: start, end: end, open: open, close: close})
	}
	if len(spans) == 0 {
		return text, false
	}

	// Outer spans open first and close last.
	sort.SliceStable(spans, func(i, j int) bool {
		if spans[i].start != spans[j].start {
			return spans[i].start < spans[j].start
		}
		return spans[i].end > spans[j].end
	})

	opens := make(map[int][]string)
	closes := make(map[int][]string)
	cuts := []int{0, len(units)}
	for _, s := range spans {
		opens[s.start] = append(opens[s.start], s.open)
		cuts = append(cuts, s.start, s.end)
	}
	for i := len(spans) - 1; i >= 0; i-- {
		s := spans[i]
		closes[s.end] = append(closes[s.end], s.close)
	}
	sort.Ints(cuts)

	var b strings.Builder
	prev := 0
	for i, pos := range cuts {
		if i > 0 && pos == cuts[i-1] {
			continue
		}
		b.WriteString(string(utf16.Decode(units[prev:pos])))
		prev = pos
		for _, m := range closes[pos] {
			b.WriteString(m)
		}
		for _, m := range opens[pos] {
			b.WriteString(m)
		}
	}
	return b.String(), true
}

// markup returns the markdown around one entity. covered is the entity's text.
func markup(e tg.MessageEntityClass, covered string) (open, close string, ok bool) {
	switch e := e.(type) {
	case *tg.MessageEntityBold, *tg.MessageEntityMention, *tg.MessageEntityMentionName, *tg.MessageEntityHashtag:
		return "**", "**", true
	// Markdown has no underline.
	case *tg.MessageEntityItalic, *tg.MessageEntityUnderline:
		return "*", "*", true
	case *tg.MessageEntityCode, *tg.MessageEntityBotCommand:
		return "`", "`", true
	case *tg.MessageEntityPre:
		return "```" + e.Language + "\n", "\n```", true
	case *tg.MessageEntityStrike:
		return "~~", "~~", true
	case *tg.MessageEntitySpoiler:
		return "||", "||", true
	case *tg.MessageEntityBlockquote:
		return "> ", "", true
	case *tg.MessageEntityTextURL:
		return "[", "](" + e.URL + ")", true
	case *tg.MessageEntityURL:
		return "[", "](" + covered + ")", true
	case *tg.MessageEntityEmail:
		return "[", "](mailto:" + covered + ")", true
	default:
		return "", "", false
	}
}
