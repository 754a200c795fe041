// Package chunker is the Chunker (C14): it splits a ConsolidatedSection's
// cleansed text into overlapping sentence windows suitable for embedding.
package chunker

import (
	"regexp"
	"strings"
)

const (
	// DefaultLengthThreshold is the max text length returned unchunked.
	DefaultLengthThreshold = 500
	// DefaultSentencesPerChunk is the sentence window size.
	DefaultSentencesPerChunk = 2
	// DefaultSentenceOverlap is how many trailing sentences the next
	// window repeats.
	DefaultSentenceOverlap = 1
)

// sentenceBoundaryRe approximates the lookbehind split `(?<=[.!?])\s+` by
// matching the terminator plus the following whitespace run and replacing
// it with the terminator alone plus a marker, since RE2 has no lookbehind.
var sentenceBoundaryRe = regexp.MustCompile(`([.!?])\s+`)

// Config parameterizes Split; zero values fall back to the spec defaults.
type Config struct {
	LengthThreshold   int
	SentencesPerChunk int
	SentenceOverlap   int
}

func (c Config) withDefaults() Config {
	if c.LengthThreshold <= 0 {
		c.LengthThreshold = DefaultLengthThreshold
	}
	if c.SentencesPerChunk <= 0 {
		c.SentencesPerChunk = DefaultSentencesPerChunk
	}
	if c.SentenceOverlap <= 0 {
		c.SentenceOverlap = DefaultSentenceOverlap
	}
	return c
}

// Split implements §4.10. Text at or under the length threshold is returned
// as a single chunk; longer text is windowed by Window.
func Split(text string, cfg Config) []string {
	cfg = cfg.withDefaults()
	if len(text) <= cfg.LengthThreshold {
		return []string{text}
	}
	return Window(text, cfg)
}

// Window splits text into sentences and emits overlapping windows of
// cfg.SentencesPerChunk sentences, advancing by
// SentencesPerChunk-SentenceOverlap, regardless of text length.
func Window(text string, cfg Config) []string {
	cfg = cfg.withDefaults()
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	step := cfg.SentencesPerChunk - cfg.SentenceOverlap
	if step < 1 {
		step = 1
	}

	var chunks []string
	for start := 0; start < len(sentences); start += step {
		end := start + cfg.SentencesPerChunk
		if end > len(sentences) {
			end = len(sentences)
		}
		chunks = append(chunks, strings.Join(sentences[start:end], " "))
		if end == len(sentences) {
			break
		}
	}
	return chunks
}

// splitSentences breaks text at sentence terminators, trimming and
// dropping empty results.
func splitSentences(text string) []string {
	marked := sentenceBoundaryRe.ReplaceAllString(text, "$1\x00")
	parts := strings.Split(marked, "\x00")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
