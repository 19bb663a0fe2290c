// Package ingestion splits document text into overlapping chunks, embeds
// them, and loads them into the vector index.
package ingestion

import (
	"strings"
	"unicode/utf8"
)

const (
	// DefaultChunkSize is the target chunk length in characters.
	DefaultChunkSize = 1000

	// DefaultChunkOverlap is the number of trailing characters repeated
	// at the start of the next chunk to preserve context across
	// boundaries.
	DefaultChunkOverlap = 200
)

// Splitter performs recursive character splitting: paragraph boundaries
// first, then line breaks, then words, with a hard cut as the last
// resort for pathological unbroken runs. All lengths are counted in
// runes, so multi-byte text chunks to the same size as ASCII.
type Splitter struct {
	chunkSize int
	overlap   int
}

// NewSplitter creates a splitter. Non-positive or inconsistent values
// fall back to defaults; overlap is clamped below the chunk size.
func NewSplitter(chunkSize, overlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = DefaultChunkOverlap
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 4
	}
	return &Splitter{chunkSize: chunkSize, overlap: overlap}
}

// Split breaks text into chunks of at most chunkSize characters.
// Consecutive chunks overlap by up to the configured overlap. Returns
// nil for empty or whitespace-only input.
func (s *Splitter) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	units := s.units(text)

	var chunks []string
	var current strings.Builder
	curLen := 0
	for _, unit := range units {
		unitLen := utf8.RuneCountInString(unit)
		if curLen > 0 && curLen+unitLen+1 > s.chunkSize {
			chunk := strings.TrimSpace(current.String())
			if chunk != "" {
				chunks = append(chunks, chunk)
			}
			current.Reset()
			overlap := s.tail(chunk)
			current.WriteString(overlap)
			curLen = utf8.RuneCountInString(overlap)
			// Drop the overlap when the unit alone fills the chunk.
			if curLen > 0 && curLen+unitLen+1 > s.chunkSize {
				current.Reset()
				curLen = 0
			}
		}
		if curLen > 0 {
			current.WriteString(" ")
			curLen++
		}
		current.WriteString(unit)
		curLen += unitLen
	}
	if chunk := strings.TrimSpace(current.String()); chunk != "" {
		chunks = append(chunks, chunk)
	}

	return chunks
}

// units flattens the text into pieces no longer than chunkSize, trying
// paragraph, line and word boundaries in that order.
func (s *Splitter) units(text string) []string {
	var units []string
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if utf8.RuneCountInString(para) <= s.chunkSize {
			units = append(units, para)
			continue
		}
		for _, line := range strings.Split(para, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if utf8.RuneCountInString(line) <= s.chunkSize {
				units = append(units, line)
				continue
			}
			units = append(units, s.splitWords(line)...)
		}
	}
	return units
}

// splitWords packs words into pieces of at most chunkSize characters,
// hard-cutting any single word longer than the chunk size.
func (s *Splitter) splitWords(line string) []string {
	var units []string
	var current strings.Builder
	curLen := 0
	for _, word := range strings.Fields(line) {
		for utf8.RuneCountInString(word) > s.chunkSize {
			if curLen > 0 {
				units = append(units, current.String())
				current.Reset()
				curLen = 0
			}
			runes := []rune(word)
			units = append(units, string(runes[:s.chunkSize]))
			word = string(runes[s.chunkSize:])
		}
		if word == "" {
			continue
		}
		wordLen := utf8.RuneCountInString(word)
		if curLen > 0 && curLen+wordLen+1 > s.chunkSize {
			units = append(units, current.String())
			current.Reset()
			curLen = 0
		}
		if curLen > 0 {
			current.WriteString(" ")
			curLen++
		}
		current.WriteString(word)
		curLen += wordLen
	}
	if curLen > 0 {
		units = append(units, current.String())
	}
	return units
}

// tail returns the overlap suffix of a chunk, cut at a word boundary
// where one exists.
func (s *Splitter) tail(chunk string) string {
	if s.overlap == 0 {
		return ""
	}
	runes := []rune(chunk)
	if len(runes) <= s.overlap {
		return chunk
	}
	suffix := string(runes[len(runes)-s.overlap:])
	if idx := strings.IndexByte(suffix, ' '); idx >= 0 && idx+1 < len(suffix) {
		suffix = suffix[idx+1:]
	}
	return suffix
}
