package promptctx

import (
	"fmt"

	"github.com/tjfontaine/polyglot-context/internal/domain"
)

// Usage is the per-source token breakdown of one prompt assembly.
type Usage struct {
	Content   int `json:"content"`
	Resources int `json:"resources"`
	Documents int `json:"documents"`
	WebSearch int `json:"webSearch"`
	Messages  int `json:"messages"`

	// ContextTotal is Content+Resources+Documents, the same value
	// CountContextTokens returns.
	ContextTotal int  `json:"contextTotal"`
	HasContext   bool `json:"hasContext"`
}

// Total is everything the prompt will carry: context, search results and history.
func (u Usage) Total() int {
	return u.ContextTotal + u.WebSearch + u.Messages
}

// Breakdown counts every source of c and messages separately.
func (a *Accountant) Breakdown(c *Context, messages []Message) (Usage, error) {
	if c == nil {
		c = &Context{}
	}

	var (
		u   Usage
		err error
	)
	if u.Content, err = a.CountContentTokens(c.ContentList); err != nil {
		return Usage{}, err
	}
	if u.Resources, err = a.CountResourceTokens(c.Resources); err != nil {
		return Usage{}, err
	}
	if u.Documents, err = a.CountDocumentTokens(c.Documents); err != nil {
		return Usage{}, err
	}
	if u.WebSearch, err = a.CountWebSearchContextTokens(c.WebSearchSources); err != nil {
		return Usage{}, err
	}
	if u.Messages, err = a.CountMessagesTokens(messages); err != nil {
		return Usage{}, err
	}

	u.ContextTotal = u.Content + u.Resources + u.Documents
	u.HasContext = HasContext(c)
	return u, nil
}

// CheckBudget returns a context length error when u plus reserve does not fit
// in window. A window <= 0 means unlimited.
func CheckBudget(u Usage, window, reserve int) *domain.APIError {
	if window <= 0 {
		return nil
	}
	need := u.Total() + max(reserve, 0)
	if need <= window {
		return nil
	}
	return domain.ErrContextLength(fmt.Sprintf(
		"prompt requires %d tokens (context %d, web search %d, messages %d, reserve %d) but the model window is %d",
		need, u.ContextTotal, u.WebSearch, u.Messages, max(reserve, 0), window,
	))
}

// TrimHistory keeps the most recent messages whose combined count fits in
// budget. The returned slice preserves order and shares no backing array
// with messages. A budget < 0 keeps everything.
func (a *Accountant) TrimHistory(messages []Message, budget int) ([]Message, int, error) {
	if budget < 0 {
		total, err := a.CountMessagesTokens(messages)
		if err != nil {
			return nil, 0, err
		}
		return append([]Message(nil), messages...), total, nil
	}

	used := 0
	start := len(messages)
	for i := len(messages) - 1; i >= 0; i-- {
		n, err := a.counter.CountText(messages[i].Content)
		if err != nil {
			if a.strict {
				return nil, 0, &SourceError{Kind: SourceMessage, Index: i, Err: err}
			}
			n = 0
		}
		if used+n > budget {
			break
		}
		used += n
		start = i
	}
	return append([]Message(nil), messages[start:]...), used, nil
}
