// Package embed turns file text into fixed-width unit vectors: WordPiece
// tokenization, ONNX inference, masked mean pooling, and L2 normalization.
// Vectors are cached by content hash and model id.
package embed

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	padToken = "[PAD]"
	unkToken = "[UNK]"
	clsToken = "[CLS]"
	sepToken = "[SEP]"

	// Words longer than this many runes map straight to [UNK] instead of
	// being subworded.
	maxWordRunes = 100
)

// Tokenizer is a WordPiece tokenizer over a fixed vocabulary.
type Tokenizer struct {
	vocab     map[string]int64
	maxSeqLen int

	padID int64
	unkID int64
	clsID int64
	sepID int64
}

// Encoding is a fixed-length tokenized sequence. TypeIDs are constant zero;
// the sentence-embedding models used here have no second segment.
type Encoding struct {
	IDs     []int64
	Mask    []int64
	TypeIDs []int64
}

// NewTokenizer loads a vocabulary file with one token per line, the line
// number being the token id.
func NewTokenizer(vocabPath string, maxSeqLen int) (*Tokenizer, error) {
	f, err := os.Open(vocabPath)
	if err != nil {
		return nil, fmt.Errorf("open vocabulary: %w", err)
	}
	defer f.Close()

	vocab := make(map[string]int64)
	scanner := bufio.NewScanner(f)
	var id int64
	for scanner.Scan() {
		token := strings.TrimRight(scanner.Text(), "\r\n")
		if token != "" {
			vocab[token] = id
		}
		id++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read vocabulary: %w", err)
	}

	t := &Tokenizer{vocab: vocab, maxSeqLen: maxSeqLen}
	for _, special := range []struct {
		token string
		dest  *int64
	}{
		{padToken, &t.padID},
		{unkToken, &t.unkID},
		{clsToken, &t.clsID},
		{sepToken, &t.sepID},
	} {
		tokenID, ok := vocab[special.token]
		if !ok {
			return nil, fmt.Errorf("vocabulary missing required token %s", special.token)
		}
		*special.dest = tokenID
	}
	return t, nil
}

// VocabSize returns the number of distinct tokens loaded.
func (t *Tokenizer) VocabSize() int {
	return len(t.vocab)
}

// MaxSeqLen returns the fixed sequence length Encode produces.
func (t *Tokenizer) MaxSeqLen() int {
	return t.maxSeqLen
}

// Encode tokenizes text into a fixed-length sequence: lowercase, split on
// whitespace and punctuation, greedy longest-match-first subwording with the
// "##" continuation prefix, wrapped in [CLS]/[SEP], truncated to fit, and
// right-padded with [PAD] under a zeroed attention mask.
func (t *Tokenizer) Encode(text string) Encoding {
	limit := t.maxSeqLen - 2

	content := make([]int64, 0, limit)
	for _, word := range splitWords(strings.ToLower(text)) {
		if len(content) >= limit {
			break
		}
		for _, piece := range t.wordPieces(word) {
			if len(content) >= limit {
				break
			}
			content = append(content, piece)
		}
	}

	ids := make([]int64, 0, t.maxSeqLen)
	ids = append(ids, t.clsID)
	ids = append(ids, content...)
	ids = append(ids, t.sepID)

	mask := make([]int64, t.maxSeqLen)
	for i := range ids {
		mask[i] = 1
	}
	for len(ids) < t.maxSeqLen {
		ids = append(ids, t.padID)
	}

	return Encoding{
		IDs:     ids,
		Mask:    mask,
		TypeIDs: make([]int64, t.maxSeqLen),
	}
}

// wordPieces subwords one lowercased word. Any unmatched remainder collapses
// the whole word to [UNK], as does a word over the rune limit.
func (t *Tokenizer) wordPieces(word string) []int64 {
	if utf8.RuneCountInString(word) > maxWordRunes {
		return []int64{t.unkID}
	}

	runes := []rune(word)
	var pieces []int64
	start := 0
	for start < len(runes) {
		matched := int64(-1)
		end := len(runes)
		for end > start {
			sub := string(runes[start:end])
			if start > 0 {
				sub = "##" + sub
			}
			if id, ok := t.vocab[sub]; ok {
				matched = id
				break
			}
			end--
		}
		if matched < 0 {
			return []int64{t.unkID}
		}
		pieces = append(pieces, matched)
		start = end
	}
	return pieces
}

// splitWords breaks text on whitespace and makes each punctuation or symbol
// rune its own token.
func splitWords(text string) []string {
	var words []string
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			words = append(words, current.String())
			current.Reset()
		}
	}

	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			flush()
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			flush()
			words = append(words, string(r))
		default:
			current.WriteRune(r)
		}
	}
	flush()
	return words
}
