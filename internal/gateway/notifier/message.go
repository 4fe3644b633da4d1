package notifier

import (
	"strings"
	"time"
)

// maxMessageLen stays under the Bot API limit of 4096 characters.
const maxMessageLen = 3800

type Section struct {
	Title string
	Lines []string
}

// Message is one trade notice: a bold headline, bulleted sections and an
// optional italic footer such as the exit reason.
type Message struct {
	Icon     string
	Title    string
	Sections []Section
	Footer   string
	At       time.Time
}

// Markdown renders m in Telegram's legacy Markdown dialect.
func (m Message) Markdown() string {
	var parts []string
	if head := strings.TrimSpace(m.Icon + " " + escape(m.Title)); head != "" {
		parts = append(parts, "*"+head+"*")
	}
	for _, sec := range m.Sections {
		if block := sec.render(); block != "" {
			parts = append(parts, block)
		}
	}
	if footer := strings.TrimSpace(m.Footer); footer != "" {
		parts = append(parts, "_"+escape(footer)+"_")
	}
	if !m.At.IsZero() {
		parts = append(parts, m.At.Format("2006-01-02 15:04:05 MST"))
	}
	body := strings.Join(parts, "\n\n")
	if len(body) > maxMessageLen {
		body = body[:maxMessageLen] + "..."
	}
	return body
}

func (s Section) render() string {
	var b strings.Builder
	if title := strings.TrimSpace(s.Title); title != "" {
		b.WriteString(escape(title))
		b.WriteByte('\n')
	}
	n := 0
	for _, line := range s.Lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if n > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("• ")
		b.WriteString(escape(line))
		n++
	}
	if n == 0 {
		return ""
	}
	return b.String()
}

var markdownEscaper = strings.NewReplacer("_", "\\_", "*", "\\*", "`", "\\`", "[", "\\[")

// escape keeps market codes and exit reasons such as "[stop-loss]" from
// being read as markup.
func escape(s string) string {
	return markdownEscaper.Replace(s)
}
