// Package prompt turns a submission's reviews into labeler input and parses
// the sectioned prompt templates used to key predictions.
package prompt

import (
	"strings"
	"unicode"

	"iclr-explorer/internal/models"
)

// Placeholder is replaced by the rendered reviews in a prompt template.
const Placeholder = "{{ text }}"

// TaskSection is the template section whose body keys stored predictions.
const TaskSection = "task"

const notProvided = "not_provided"

// Renderer renders review threads with a fixed rubric.
type Renderer struct {
	rubric Rubric
}

// NewRenderer creates a renderer for rubric.
func NewRenderer(rubric Rubric) *Renderer {
	return &Renderer{rubric: rubric}
}

// RenderReviews concatenates every review. With withRebuttal each review is
// followed by its rebuttal thread.
func (r *Renderer) RenderReviews(reviews []models.MetaReview, withRebuttal bool) string {
	var b strings.Builder
	for _, mr := range reviews {
		if len(mr.Values) > 0 {
			r.writeValues(&b, mr.Values)
		}
		if withRebuttal && len(mr.Rebuttal) > 0 {
			writeRebuttal(&b, mr.Rebuttal)
		}
	}
	return b.String()
}

func (r *Renderer) writeValues(b *strings.Builder, values models.ReviewValues) {
	b.WriteString("REVIEW \n")
	for _, field := range r.rubric.Fields {
		raw := values[field]
		if raw == "" || raw == notProvided {
			continue
		}

		text := raw
		if scores, ok := r.rubric.Numeric[field]; ok {
			n, ok := values.Numeric(field)
			if !ok {
				continue
			}
			desc, ok := scores[n]
			if !ok {
				continue
			}
			text = desc
		}

		b.WriteString(field)
		b.WriteString(": ")
		b.WriteString(text)
		b.WriteString("\n\n")
	}
}

// writeRebuttal renders a thread in order: an entry carrying a value is the
// reviewer's reply, otherwise it is a comment; nested replies follow their entry.
func writeRebuttal(b *strings.Builder, entries []models.RebuttalEntry) {
	for _, e := range entries {
		if e.Value == nil {
			b.WriteString("COMMENT \n")
			b.WriteString(e.Comment)
		} else {
			b.WriteString("REPLY \n")
			b.WriteString(*e.Value)
		}
		b.WriteString("\n\n")

		for _, c := range e.Comments {
			b.WriteString("REPLY \n")
			b.WriteString(c.Comment)
			b.WriteString("\n\n")
		}
	}
}

// Compose substitutes text for the first placeholder in template.
func Compose(template, text string) string {
	return strings.Replace(template, Placeholder, text, 1)
}

// ParseSections splits a template on "# " headers. Each section is keyed by the
// first word of its header, lower-cased with punctuation removed; the body keeps
// the trimmed lines that follow, each terminated by a newline.
func ParseSections(template string) map[string]string {
	sections := make(map[string]string)
	current := ""
	inSection := false

	for _, raw := range strings.Split(template, "\n") {
		line := strings.TrimSpace(raw)
		if strings.HasPrefix(line, "# ") {
			header := strings.ToLower(strings.TrimSpace(line[2:]))
			if i := strings.IndexByte(header, ' '); i >= 0 {
				header = header[:i]
			}
			current = strings.Map(stripPunct, header)
			sections[current] = ""
			inSection = true
			continue
		}
		if inSection {
			sections[current] += line + "\n"
		}
	}

	return sections
}

func stripPunct(r rune) rune {
	if unicode.IsPunct(r) || strings.ContainsRune("$+<=>^`|~", r) {
		return -1
	}
	return r
}

// Key returns the durable key of a template: the trimmed body of its task
// section, or the whole trimmed template when it has none.
func Key(template string) string {
	if body, ok := ParseSections(template)[TaskSection]; ok {
		if key := strings.TrimSpace(body); key != "" {
			return key
		}
	}
	return strings.TrimSpace(template)
}
