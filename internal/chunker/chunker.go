package chunker

import (
	"fmt"
	"unicode/utf8"

	"github.com/seanblong/docqa/pkg/models"
)

// Default window settings.
const (
	DefaultSize      = 1000
	DefaultOverlap   = 200
	DefaultMinLength = 100
)

// Config describes the sliding window. Lengths are measured in characters.
type Config struct {
	Size      int
	Overlap   int
	MinLength int
}

// DefaultConfig returns the default window settings.
func DefaultConfig() Config {
	return Config{Size: DefaultSize, Overlap: DefaultOverlap, MinLength: DefaultMinLength}
}

// Validate reports models.ErrInvalidChunkConfig when the window cannot advance.
func (c Config) Validate() error {
	if c.Size <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", models.ErrInvalidChunkConfig, c.Size)
	}
	if c.Overlap < 0 {
		return fmt.Errorf("%w: chunk overlap must not be negative, got %d", models.ErrInvalidChunkConfig, c.Overlap)
	}
	if c.Overlap >= c.Size {
		return fmt.Errorf("%w: overlap %d must be smaller than size %d", models.ErrInvalidChunkConfig, c.Overlap, c.Size)
	}
	if c.MinLength < 0 {
		return fmt.Errorf("%w: minimum length must not be negative, got %d", models.ErrInvalidChunkConfig, c.MinLength)
	}
	return nil
}

// Source carries the metadata stamped onto every chunk of a document.
type Source struct {
	Filename     string
	Path         string
	DocumentKind string
}

// Window is a single span of the input, in character positions.
type Window struct {
	Start int
	End   int
}

// Windows computes the spans for a text of n characters. Window i starts at
// i*(Size-Overlap) and ends at min(start+Size, n). Every start is below n, so
// together the windows cover the whole text.
func Windows(n int, c Config) ([]Window, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if n <= c.MinLength {
		return nil, nil
	}
	step := c.Size - c.Overlap
	out := make([]Window, 0, (n+step-1)/step)
	for start := 0; start < n; start += step {
		end := start + c.Size
		if end > n {
			end = n
		}
		if end-start < c.MinLength {
			continue
		}
		out = append(out, Window{Start: start, End: end})
	}
	return out, nil
}

// Split cuts text into overlapping windows. Identical input always yields an
// identical sequence. Chunk indices are assigned after short windows are
// dropped so they stay dense.
func Split(text string, c Config, src Source) ([]models.Chunk, error) {
	runes := []rune(text)
	windows, err := Windows(len(runes), c)
	if err != nil {
		return nil, err
	}
	if len(windows) == 0 {
		return nil, nil
	}

	// byteAt[i] is the byte offset of rune i.
	byteAt := make([]int, len(runes)+1)
	off := 0
	for i, r := range runes {
		byteAt[i] = off
		off += utf8.RuneLen(r)
	}
	byteAt[len(runes)] = off

	chunks := make([]models.Chunk, 0, len(windows))
	for i, w := range windows {
		chunks = append(chunks, models.Chunk{
			Text:            string(runes[w.Start:w.End]),
			ByteOffsetStart: byteAt[w.Start],
			SourceFilename:  src.Filename,
			SourcePath:      src.Path,
			DocumentKind:    src.DocumentKind,
			ChunkIndex:      i,
		})
	}
	return chunks, nil
}
