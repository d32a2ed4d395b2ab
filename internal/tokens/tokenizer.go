package tokens

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/tiktoken-go/tokenizer"
)

// DefaultEncoding is the byte-pair encoding used when no model is named.
const DefaultEncoding = tokenizer.Cl100kBase

// Tokenizer counts tokens for a single BPE encoding using tiktoken.
// The codec is loaded once at construction and never mutated, so a
// Tokenizer may be shared across goroutines.
type Tokenizer struct {
	encoding tokenizer.Encoding
	codec    tokenizer.Codec
}

// NewTokenizer loads the codec for the given encoding.
func NewTokenizer(encoding tokenizer.Encoding) (*Tokenizer, error) {
	codec, err := tokenizer.Get(encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to get tokenizer encoding %s: %w", encoding, err)
	}
	return &Tokenizer{encoding: encoding, codec: codec}, nil
}

// Encoding returns the encoding name this tokenizer was built with.
func (t *Tokenizer) Encoding() tokenizer.Encoding {
	return t.encoding
}

// CountText returns the number of tokens produced by encoding text.
// Malformed UTF-8 is repaired with U+FFFD before encoding.
func (t *Tokenizer) CountText(text string) (int, error) {
	if text == "" {
		return 0, nil
	}
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "\uFFFD")
	}
	ids, _, err := t.codec.Encode(text)
	if err != nil {
		return 0, fmt.Errorf("encode with %s: %w", t.encoding, err)
	}
	return len(ids), nil
}

// Count is the infallible form of CountText: an encoding failure counts as 0.
func (t *Tokenizer) Count(text string) int {
	n, err := t.CountText(text)
	if err != nil {
		return 0
	}
	return n
}

// ParseEncoding validates an encoding name from configuration.
// An empty name selects DefaultEncoding.
func ParseEncoding(name string) (tokenizer.Encoding, error) {
	switch enc := tokenizer.Encoding(strings.ToLower(strings.TrimSpace(name))); enc {
	case "":
		return DefaultEncoding, nil
	case tokenizer.Cl100kBase, tokenizer.O200kBase, tokenizer.P50kBase, tokenizer.R50kBase, tokenizer.P50kEdit:
		return enc, nil
	default:
		return "", fmt.Errorf("unknown encoding %q", name)
	}
}

// EncodingForModel maps model names to encoding names.
//
// Encoding reference:
// - O200kBase: GPT-5, GPT-4.1, GPT-4o, O1, O3, O4-mini and newer models
// - Cl100kBase: GPT-4, GPT-3.5-turbo, text-embedding-ada-002, and anything unknown
// - P50kBase: text-davinci-003, text-davinci-002
// - R50kBase: davinci, curie, babbage, ada (legacy)
func EncodingForModel(model string) tokenizer.Encoding {
	model = strings.ToLower(strings.TrimSpace(model))

	switch {
	case strings.HasPrefix(model, "gpt-5"), strings.HasPrefix(model, "gpt-6"):
		return tokenizer.O200kBase
	case strings.HasPrefix(model, "gpt-4.1"), strings.HasPrefix(model, "gpt-41"):
		return tokenizer.O200kBase
	case strings.HasPrefix(model, "gpt-4o"):
		return tokenizer.O200kBase
	case isReasoningModel(model):
		return tokenizer.O200kBase

	case strings.HasPrefix(model, "gpt-4"), strings.HasPrefix(model, "gpt-3.5"):
		return tokenizer.Cl100kBase
	case strings.HasPrefix(model, "text-embedding"):
		return tokenizer.Cl100kBase

	case strings.HasPrefix(model, "text-davinci"), strings.HasPrefix(model, "code-davinci"):
		return tokenizer.P50kBase

	case model == "davinci" || model == "curie" || model == "babbage" || model == "ada":
		return tokenizer.R50kBase

	default:
		// The workspace prompt assembler has always counted with cl100k_base,
		// including for non-OpenAI models.
		return DefaultEncoding
	}
}

// isReasoningModel matches o1, o3, o4-mini and later o-series names without
// catching unrelated models that merely start with "o".
func isReasoningModel(model string) bool {
	if len(model) < 2 || model[0] != 'o' || model[1] < '1' || model[1] > '9' {
		return false
	}
	return len(model) == 2 || model[2] == '-'
}
