package promptctx

import (
	"fmt"

	"github.com/tjfontaine/polyglot-context/internal/tokens"
)

// SourceKind names the kind of item being counted.
type SourceKind string

const (
	SourceContent   SourceKind = "content"
	SourceResource  SourceKind = "resource"
	SourceDocument  SourceKind = "document"
	SourceWebSearch SourceKind = "web_search"
	SourceMessage   SourceKind = "message"
)

// SourceError reports an item the tokenizer could not encode.
type SourceError struct {
	Kind  SourceKind
	Index int
	Err   error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("count %s[%d]: %v", e.Kind, e.Index, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// Accountant sums token counts over context items.
//
// In the default lenient mode an item that fails to encode contributes
// zero and counting continues, so every method returns a nil error. In
// strict mode the first failure aborts the sum with a *SourceError.
type Accountant struct {
	counter tokens.Counter
	strict  bool
}

// Option configures an Accountant.
type Option func(*Accountant)

// WithStrict makes encoding failures abort counting.
func WithStrict(strict bool) Option {
	return func(a *Accountant) {
		a.strict = strict
	}
}

// NewAccountant creates an Accountant that counts with counter.
func NewAccountant(counter tokens.Counter, opts ...Option) *Accountant {
	a := &Accountant{counter: counter}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Strict reports whether encoding failures abort counting.
func (a *Accountant) Strict() bool {
	return a.strict
}

// CountToken counts a single string. Failures count as zero.
func (a *Accountant) CountToken(text string) int {
	n, err := a.counter.CountText(text)
	if err != nil {
		return 0
	}
	return n
}

func sumTokens[T TextSource](a *Accountant, kind SourceKind, items []T) (int, error) {
	sum := 0
	for i, item := range items {
		n, err := a.counter.CountText(item.TokenText())
		if err != nil {
			if a.strict {
				return 0, &SourceError{Kind: kind, Index: i, Err: err}
			}
			continue
		}
		sum += n
	}
	return sum, nil
}

// CountContentTokens sums the tokens of every content item's Content.
func (a *Accountant) CountContentTokens(items []ContentItem) (int, error) {
	return sumTokens(a, SourceContent, items)
}

// CountResourceTokens sums the tokens of every item's Resource.Content.
func (a *Accountant) CountResourceTokens(items []ResourceItem) (int, error) {
	return sumTokens(a, SourceResource, items)
}

// CountDocumentTokens sums the tokens of every item's Document.Content.
func (a *Accountant) CountDocumentTokens(items []DocumentItem) (int, error) {
	return sumTokens(a, SourceDocument, items)
}

// CountWebSearchContextTokens sums the tokens of every source's PageContent.
func (a *Accountant) CountWebSearchContextTokens(sources []SearchSource) (int, error) {
	return sumTokens(a, SourceWebSearch, sources)
}

// CountMessagesTokens sums the tokens of every message's Content.
func (a *Accountant) CountMessagesTokens(messages []Message) (int, error) {
	return sumTokens(a, SourceMessage, messages)
}

// CountContextTokens totals content, resources and documents.
// Web search sources are not part of this total; callers that attach search
// results count them with CountWebSearchContextTokens.
func (a *Accountant) CountContextTokens(c *Context) (int, error) {
	if c == nil {
		return 0, nil
	}
	content, err := a.CountContentTokens(c.ContentList)
	if err != nil {
		return 0, err
	}
	resources, err := a.CountResourceTokens(c.Resources)
	if err != nil {
		return 0, err
	}
	documents, err := a.CountDocumentTokens(c.Documents)
	if err != nil {
		return 0, err
	}
	return content + resources + documents, nil
}

// HasContext reports whether c carries any content, resource or document.
// Web search sources alone do not count.
func HasContext(c *Context) bool {
	if c == nil {
		return false
	}
	return len(c.ContentList) > 0 || len(c.Resources) > 0 || len(c.Documents) > 0
}
