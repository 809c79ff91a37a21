package chunker

import (
	"github.com/andrestor94/pliegos-ai/internal/doctree"
)

// Config controls segmentation.
type Config struct {
	TargetParts int // Desired number of chunks for long inputs.
	BaseChars   int // Floor on chunk size in characters.
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		TargetParts: 6,
		BaseChars:   12000,
	}
}

// ChunkSize returns max(floor, ceil(total/targetParts)).
func ChunkSize(total, targetParts, floor int) int {
	if targetParts <= 0 {
		targetParts = 1
	}
	if floor <= 0 {
		floor = 1
	}
	size := (total + targetParts - 1) / targetParts
	if size < floor {
		size = floor
	}
	return size
}

// Segment splits text into contiguous, non-overlapping windows of ChunkSize
// characters. Only the last window may be shorter, none is empty, and
// concatenating every Chunk.Text reproduces text exactly. Each chunk records
// the page and annex in effect where it starts.
func Segment(text string, cfg Config) []doctree.Chunk {
	if text == "" {
		return nil
	}
	if cfg.TargetParts <= 0 {
		cfg.TargetParts = 6
	}
	if cfg.BaseChars <= 0 {
		cfg.BaseChars = 12000
	}

	runes := []rune(text)
	size := ChunkSize(len(runes), cfg.TargetParts, cfg.BaseChars)
	loc := doctree.NewLocator(text)

	chunks := make([]doctree.Chunk, 0, (len(runes)+size-1)/size)
	byteOff := 0
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		part := string(runes[start:end])
		pos := loc.At(byteOff)
		chunks = append(chunks, doctree.Chunk{
			Index:      len(chunks),
			Text:       part,
			Start:      start,
			End:        end,
			StartPage:  pos.Page,
			StartAnnex: pos.Annex,
		})
		byteOff += len(part)
	}
	return chunks
}
