package prompt

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"unicode/utf8"

	"pdfchat/src/core/rag"
)

const defaultTemplate = `You are an assistant which answers questions based on knowledge which is provided to you.
While answering, you don't use your internal knowledge,
but solely the information in the "The knowledge" section.
You don't mention anything to the user about the provided knowledge.

The question: {{.Question}}

Conversation history: {{.History}}

The knowledge: {{.Knowledge}}
`

type Unit string

const (
	UnitChars  Unit = "chars"
	UnitTokens Unit = "tokens"
)

func ParseUnit(s string) (Unit, error) {
	switch Unit(strings.ToLower(s)) {
	case "", UnitChars:
		return UnitChars, nil
	case UnitTokens:
		return UnitTokens, nil
	}
	return "", fmt.Errorf("unknown prompt budget unit %q", s)
}

// Budget bounds the size of a composed prompt. A zero Limit means unbounded.
type Budget struct {
	Limit int
	Unit  Unit
}

func (b Budget) measure(text string) int {
	if b.Unit == UnitTokens {
		return EstimateTokens(text)
	}
	return utf8.RuneCountInString(text)
}

func (b Budget) fits(text string) bool {
	return b.Limit <= 0 || b.measure(text) <= b.Limit
}

// Prompt is a composed model instruction and the inputs that made it in.
type Prompt struct {
	Text      string
	Knowledge rag.Knowledge
	History   []rag.Turn
	// Dropped counts the knowledge chunks and history turns removed to fit the budget.
	DroppedChunks int
	DroppedTurns  int
}

type Composer struct {
	tmpl   *template.Template
	budget Budget
}

type Option func(c *Composer)

func WithBudget(b Budget) Option {
	return func(c *Composer) {
		c.budget = b
	}
}

// WithTemplate replaces the instruction template. It receives .Question, .History and
// .Knowledge as plain strings.
func WithTemplate(text string) Option {
	return func(c *Composer) {
		c.tmpl = template.Must(template.New("prompt").Parse(text))
	}
}

func NewComposer(opts ...Option) *Composer {
	c := &Composer{
		tmpl: template.Must(template.New("prompt").Parse(defaultTemplate)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compose renders the prompt for q with the given knowledge. When the result exceeds the
// budget, the least similar knowledge is dropped first, then the oldest history turns.
// ErrPromptTooLarge is returned if the question alone does not fit.
func (c *Composer) Compose(q rag.Query, knowledge rag.Knowledge) (Prompt, error) {
	p := Prompt{
		Knowledge: append(rag.Knowledge(nil), knowledge...),
		History:   append([]rag.Turn(nil), q.History...),
	}

	for {
		text, err := c.render(q.Message, p.History, p.Knowledge)
		if err != nil {
			return Prompt{}, err
		}
		if c.budget.fits(text) {
			p.Text = text
			return p, nil
		}

		switch {
		case len(p.Knowledge) > 0:
			p.Knowledge = dropLeastSimilar(p.Knowledge)
			p.DroppedChunks++
		case len(p.History) > 0:
			p.History = p.History[1:]
			p.DroppedTurns++
		default:
			return Prompt{}, fmt.Errorf("%w: %d %s over a limit of %d",
				rag.ErrPromptTooLarge, c.budget.measure(text), c.budget.Unit, c.budget.Limit)
		}
	}
}

func (c *Composer) render(question string, history []rag.Turn, knowledge rag.Knowledge) (string, error) {
	var buf bytes.Buffer
	err := c.tmpl.Execute(&buf, struct {
		Question  string
		History   string
		Knowledge string
	}{
		Question:  question,
		History:   FormatHistory(history),
		Knowledge: strings.Join(knowledge.Texts(), "\n\n"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to render prompt: %w", err)
	}
	return buf.String(), nil
}

// FormatHistory writes one "role: content" line per turn, oldest first.
func FormatHistory(history []rag.Turn) string {
	lines := make([]string, len(history))
	for i, turn := range history {
		lines[i] = turn.Role + ": " + turn.Content
	}
	return strings.Join(lines, "\n")
}

// dropLeastSimilar removes the lowest scoring chunk, the last one on equal scores.
func dropLeastSimilar(k rag.Knowledge) rag.Knowledge {
	worst := 0
	for i := range k {
		if k[i].Score <= k[worst].Score {
			worst = i
		}
	}
	return append(k[:worst:worst], k[worst+1:]...)
}
