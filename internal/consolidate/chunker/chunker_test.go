package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplit_ShortTextUnchunked(t *testing.T) {
	out := Split("hello world", Config{})
	require.Equal(t, []string{"hello world"}, out)
}

func TestWindow_SentenceOverlap(t *testing.T) {
	out := Window("S1. S2. S3. S4.", Config{})
	require.Equal(t, []string{"S1. S2.", "S2. S3.", "S3. S4."}, out)
}

func TestSplit_LongTextWindowed(t *testing.T) {
	long := strings.Repeat("word ", 200) + "S1. S2. S3."
	out := Split(long, Config{LengthThreshold: 10})
	require.NotEmpty(t, out)
	require.Greater(t, len(out), 1)
}

func TestWindow_SingleSentence(t *testing.T) {
	out := Window("Only one sentence here.", Config{})
	require.Equal(t, []string{"Only one sentence here."}, out)
}

func TestWindow_NoOverlapConfig(t *testing.T) {
	out := Window("A. B. C. D.", Config{SentencesPerChunk: 1, SentenceOverlap: 0})
	require.Equal(t, []string{"A.", "B.", "C.", "D."}, out)
}
