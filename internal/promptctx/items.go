// Package promptctx accounts for the tokens a canvas prompt context will
// consume: free-form content, resources, documents, web search results and
// chat history.
package promptctx

// TextSource is implemented by every item kind that contributes text to a
// prompt. TokenText returns the text to tokenize, or "" when absent.
type TextSource interface {
	TokenText() string
}

// ContentItem is a free-form snippet selected on the canvas.
type ContentItem struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func (c ContentItem) TokenText() string { return c.Content }

// Resource is a stored resource (uploaded file, web page capture, ...).
type Resource struct {
	ResourceID string `json:"resourceId,omitempty"`
	Title      string `json:"title,omitempty"`
	Content    string `json:"content"`
}

// ResourceItem wraps a resource attached to the context.
type ResourceItem struct {
	Resource *Resource      `json:"resource,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func (r ResourceItem) TokenText() string {
	if r.Resource == nil {
		return ""
	}
	return r.Resource.Content
}

// Document is a canvas document.
type Document struct {
	DocID   string `json:"docId,omitempty"`
	Title   string `json:"title,omitempty"`
	Content string `json:"content"`
}

// DocumentItem wraps a document attached to the context.
type DocumentItem struct {
	Document *Document      `json:"document,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func (d DocumentItem) TokenText() string {
	if d.Document == nil {
		return ""
	}
	return d.Document.Content
}

// SearchSource is a single web search result.
type SearchSource struct {
	URL         string `json:"url,omitempty"`
	Title       string `json:"title,omitempty"`
	PageContent string `json:"pageContent"`
}

func (s SearchSource) TokenText() string { return s.PageContent }

// Message is one chat history entry.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (m Message) TokenText() string { return m.Content }

// Context is the bundle of items a caller attaches to a model request.
// It is rebuilt for every prompt and only read by this package.
type Context struct {
	ContentList      []ContentItem  `json:"contentList,omitempty"`
	Resources        []ResourceItem `json:"resources,omitempty"`
	Documents        []DocumentItem `json:"documents,omitempty"`
	WebSearchSources []SearchSource `json:"webSearchSources,omitempty"`
}
