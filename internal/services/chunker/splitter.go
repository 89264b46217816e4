// Package chunker splits document text into overlapping, size-bounded
// segments for embedding and retrieval.
package chunker

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/ternarybob/rogo/internal/models"
)

// ErrEmptyInput reports that the input text was empty or whitespace-only.
// Callers surface this as a warning, not a hard failure.
var ErrEmptyInput = errors.New("input text is empty or whitespace-only")

// defaultSeparators orders split boundaries from coarse to fine: paragraph
// break, line break, word break, then single characters as the last resort.
var defaultSeparators = []string{"\n\n", "\n", " ", ""}

var (
	spaceRuns   = regexp.MustCompile(`[ \t]+`)
	newlineRuns = regexp.MustCompile(`\n{3,}`)
)

// Splitter breaks cleaned text into segments of at most chunkSize characters
// where separator boundaries allow, carrying up to chunkOverlap trailing
// characters into the next segment. Lengths count characters, not bytes.
type Splitter struct {
	chunkSize    int
	chunkOverlap int
	separators   []string
}

// NewSplitter validates the size settings and returns a Splitter.
func NewSplitter(chunkSize, chunkOverlap int) (*Splitter, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	if chunkOverlap < 0 {
		return nil, fmt.Errorf("chunk overlap must not be negative, got %d", chunkOverlap)
	}
	if chunkOverlap >= chunkSize {
		return nil, fmt.Errorf("chunk overlap (%d) must be smaller than chunk size (%d)", chunkOverlap, chunkSize)
	}
	return &Splitter{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		separators:   defaultSeparators,
	}, nil
}

// ChunkSize returns the configured target segment size.
func (s *Splitter) ChunkSize() int { return s.chunkSize }

// ChunkOverlap returns the configured overlap between adjacent segments.
func (s *Splitter) ChunkOverlap() int { return s.chunkOverlap }

// Split cleans the text and returns the ordered segments. Empty or
// whitespace-only input returns ErrEmptyInput.
func (s *Splitter) Split(text string) ([]string, error) {
	cleaned := cleanText(text)
	if cleaned == "" {
		return nil, ErrEmptyInput
	}
	return s.splitText(cleaned, s.separators), nil
}

// ChunkDocument splits the text and wraps each segment in a Chunk carrying
// the page metadata plus its position among siblings.
func (s *Splitter) ChunkDocument(text string, pageMeta models.PageMetadata) ([]models.Chunk, error) {
	cleaned := cleanText(text)
	if cleaned == "" {
		return nil, ErrEmptyInput
	}

	segments := s.splitText(cleaned, s.separators)
	totalLength := utf8.RuneCountInString(cleaned)

	chunks := make([]models.Chunk, len(segments))
	for i, segment := range segments {
		chunks[i] = models.Chunk{
			Content: segment,
			Metadata: models.ChunkMetadata{
				PageMetadata:        pageMeta,
				ChunkID:             i,
				ChunkCount:          len(segments),
				ChunkSizeSetting:    s.chunkSize,
				ChunkOverlapSetting: s.chunkOverlap,
				TotalLength:         totalLength,
			},
		}
	}
	return chunks, nil
}

// cleanText normalizes whitespace while keeping paragraph boundaries intact:
// runs of spaces and tabs collapse to one space, runs of three or more
// newlines collapse to a blank line, and the ends are trimmed.
func cleanText(text string) string {
	if text == "" {
		return ""
	}

	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = spaceRuns.ReplaceAllString(text, " ")
	text = strings.ReplaceAll(text, " \n", "\n")
	text = strings.ReplaceAll(text, "\n ", "\n")
	text = newlineRuns.ReplaceAllString(text, "\n\n")

	return strings.TrimSpace(text)
}

// splitText recursively splits on the coarsest separator present, merging
// small pieces back up to chunkSize before descending a tier. Pieces still
// over the limit with no separators left are emitted as-is.
func (s *Splitter) splitText(text string, separators []string) []string {
	var finalChunks []string

	separator := separators[len(separators)-1]
	var next []string
	for i, sep := range separators {
		if sep == "" {
			separator = sep
			break
		}
		if strings.Contains(text, sep) {
			separator = sep
			next = separators[i+1:]
			break
		}
	}

	var good []string
	for _, piece := range splitOn(text, separator) {
		if utf8.RuneCountInString(piece) < s.chunkSize {
			good = append(good, piece)
			continue
		}
		if len(good) > 0 {
			finalChunks = append(finalChunks, s.mergeSplits(good, separator)...)
			good = nil
		}
		if len(next) == 0 {
			finalChunks = append(finalChunks, piece)
		} else {
			finalChunks = append(finalChunks, s.splitText(piece, next)...)
		}
	}
	if len(good) > 0 {
		finalChunks = append(finalChunks, s.mergeSplits(good, separator)...)
	}

	return finalChunks
}

// mergeSplits packs pieces into chunks of at most chunkSize characters.
// When a chunk is emitted, trailing pieces totalling at most chunkOverlap
// characters are kept to start the next chunk.
func (s *Splitter) mergeSplits(splits []string, separator string) []string {
	sepLen := utf8.RuneCountInString(separator)

	var docs []string
	var current []string
	total := 0

	for _, piece := range splits {
		pieceLen := utf8.RuneCountInString(piece)
		joinLen := 0
		if len(current) > 0 {
			joinLen = sepLen
		}

		if total+pieceLen+joinLen > s.chunkSize && len(current) > 0 {
			if doc := joinPieces(current, separator); doc != "" {
				docs = append(docs, doc)
			}
			for len(current) > 0 && (total > s.chunkOverlap || total+pieceLen+joinLen > s.chunkSize) {
				drop := utf8.RuneCountInString(current[0])
				if len(current) > 1 {
					drop += sepLen
				}
				total -= drop
				current = current[1:]
			}
		}

		current = append(current, piece)
		total += pieceLen
		if len(current) > 1 {
			total += sepLen
		}
	}

	if doc := joinPieces(current, separator); doc != "" {
		docs = append(docs, doc)
	}
	return docs
}

// splitOn splits by the separator, dropping empty pieces. The empty
// separator splits into individual characters.
func splitOn(text, separator string) []string {
	parts := strings.Split(text, separator)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func joinPieces(pieces []string, separator string) string {
	return strings.TrimSpace(strings.Join(pieces, separator))
}
