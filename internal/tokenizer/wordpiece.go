// Package tokenizer implements a WordPiece subword tokenizer compatible
// with BERT-style vocabularies.
package tokenizer

import (
	"bufio"
	"os"
	"strings"
	"unicode"
)

// Standard BERT special token IDs, used unless the loaded vocabulary
// places the tokens elsewhere.
const (
	DefaultPadID  = 0
	DefaultUnkID  = 100
	DefaultClsID  = 101
	DefaultSepID  = 102
	DefaultMaskID = 103
)

const (
	padToken  = "[PAD]"
	unkToken  = "[UNK]"
	clsToken  = "[CLS]"
	sepToken  = "[SEP]"
	maskToken = "[MASK]"

	continuationPrefix = "##"

	// maxWordChars guards the subword loop against pathological input
	maxWordChars = 200
)

// WordPiece tokenizes text using greedy longest-match-first subword
// splitting against a loaded vocabulary.
type WordPiece struct {
	vocab   map[string]int
	inverse map[int]string
	loaded  bool

	padID, unkID, clsID, sepID, maskID int
}

// New creates an unloaded tokenizer. All encode operations return empty
// sequences until Load succeeds.
func New() *WordPiece {
	return &WordPiece{
		padID:  DefaultPadID,
		unkID:  DefaultUnkID,
		clsID:  DefaultClsID,
		sepID:  DefaultSepID,
		maskID: DefaultMaskID,
	}
}

// Load reads a vocabulary file with one token per line; the line number
// is the token ID. Returns false on a missing or empty vocabulary.
func (w *WordPiece) Load(vocabPath string) bool {
	f, err := os.Open(vocabPath)
	if err != nil {
		return false
	}
	defer func() { _ = f.Close() }()

	vocab := make(map[string]int)
	inverse := make(map[int]string)

	scanner := bufio.NewScanner(f)
	id := 0
	for scanner.Scan() {
		token := strings.TrimSpace(scanner.Text())
		if token == "" {
			continue
		}
		vocab[token] = id
		inverse[id] = token
		id++
	}
	if scanner.Err() != nil || len(vocab) == 0 {
		return false
	}

	w.vocab = vocab
	w.inverse = inverse
	w.loaded = true

	// Vocabulary positions override the standard special token IDs
	if id, ok := vocab[padToken]; ok {
		w.padID = id
	}
	if id, ok := vocab[unkToken]; ok {
		w.unkID = id
	}
	if id, ok := vocab[clsToken]; ok {
		w.clsID = id
	}
	if id, ok := vocab[sepToken]; ok {
		w.sepID = id
	}
	if id, ok := vocab[maskToken]; ok {
		w.maskID = id
	}
	return true
}

// Loaded reports whether a vocabulary has been loaded.
func (w *WordPiece) Loaded() bool {
	return w.loaded
}

// VocabSize returns the number of tokens in the loaded vocabulary.
func (w *WordPiece) VocabSize() int {
	return len(w.vocab)
}

// Encode tokenizes text into IDs wrapped in [CLS]...[SEP], truncating
// content to maxLength-2 tokens. No padding is added.
func (w *WordPiece) Encode(text string, maxLength int) []int {
	if !w.loaded || maxLength < 2 {
		return []int{}
	}

	content := w.EncodeWithoutSpecialTokens(text)
	if len(content) > maxLength-2 {
		content = content[:maxLength-2]
	}

	ids := make([]int, 0, len(content)+2)
	ids = append(ids, w.clsID)
	ids = append(ids, content...)
	ids = append(ids, w.sepID)
	return ids
}

// EncodeWithoutSpecialTokens tokenizes text into IDs with no [CLS]/[SEP]
// wrapping and no truncation.
func (w *WordPiece) EncodeWithoutSpecialTokens(text string) []int {
	if !w.loaded {
		return []int{}
	}

	ids := make([]int, 0, 64)
	for _, word := range basicTokenize(text) {
		ids = append(ids, w.splitWord(word)...)
	}
	return ids
}

// splitWord applies greedy longest-match-first WordPiece splitting: try
// the whole remaining word, shrink the candidate from the right until a
// vocabulary hit, prefix continuations with ##. A word with any
// unmatchable remainder becomes a single [UNK].
func (w *WordPiece) splitWord(word string) []int {
	if len(word) > maxWordChars {
		return []int{w.unkID}
	}

	runes := []rune(word)
	pieces := make([]int, 0, 4)
	start := 0

	for start < len(runes) {
		end := len(runes)
		found := -1
		for end > start {
			candidate := string(runes[start:end])
			if start > 0 {
				candidate = continuationPrefix + candidate
			}
			if id, ok := w.vocab[candidate]; ok {
				found = id
				break
			}
			end--
		}
		if found < 0 {
			return []int{w.unkID}
		}
		pieces = append(pieces, found)
		start = end
	}
	return pieces
}

// Decode reconstructs text from token IDs, joining words with spaces,
// attaching ## continuations to the preceding word, and skipping [PAD].
func (w *WordPiece) Decode(ids []int) string {
	if !w.loaded {
		return ""
	}

	var sb strings.Builder
	for _, id := range ids {
		if id == w.padID {
			continue
		}
		token, ok := w.inverse[id]
		if !ok {
			continue
		}
		if token == clsToken || token == sepToken {
			continue
		}
		if strings.HasPrefix(token, continuationPrefix) {
			sb.WriteString(strings.TrimPrefix(token, continuationPrefix))
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(token)
	}
	return sb.String()
}

// basicTokenize lowercases, strips control characters, and splits text
// on whitespace and punctuation. Punctuation runes become standalone
// tokens, matching BERT's basic tokenizer.
func basicTokenize(text string) []string {
	var sb strings.Builder
	for _, r := range text {
		switch {
		case unicode.IsControl(r):
			// dropped
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			sb.WriteByte(' ')
			sb.WriteRune(unicode.ToLower(r))
			sb.WriteByte(' ')
		default:
			sb.WriteRune(unicode.ToLower(r))
		}
	}
	return strings.Fields(sb.String())
}
