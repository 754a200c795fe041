package aiclient

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func validContext() map[string]any {
	return map[string]any{
		"fullContextId": "ctx-1",
		"sourcePath":    "/en-US/home",
		"provenance":    map[string]any{"modelId": "claude-x"},
	}
}

func TestParseEnrichment_Valid(t *testing.T) {
	raw := `{"standardEnrichments":{"summary":"s","keywords":["a","b"],"sentiment":"positive","classification":"promo","tags":["x"]}}`
	res := parseEnrichment(raw, validContext())
	require.Empty(t, res.Error)
	require.Equal(t, "s", res.Summary)
	require.Equal(t, []string{"a", "b"}, res.Keywords)
}

func TestParseEnrichment_CodeFenceStripped(t *testing.T) {
	raw := "```json\n" + `{"standardEnrichments":{"summary":"s","keywords":[],"sentiment":"neutral","classification":"c","tags":[]}}` + "\n```"
	res := parseEnrichment(raw, validContext())
	require.Empty(t, res.Error)
	require.Equal(t, "neutral", res.Sentiment)
}

func TestParseEnrichment_NotJSONObject(t *testing.T) {
	res := parseEnrichment("not json", validContext())
	require.NotEmpty(t, res.Error)
}

func TestParseEnrichment_ProviderErrorKey(t *testing.T) {
	res := parseEnrichment(`{"error":"content flagged"}`, validContext())
	require.Equal(t, "content flagged", res.Error)
}

func TestParseEnrichment_MissingSubkeys(t *testing.T) {
	raw := `{"standardEnrichments":{"summary":"s"}}`
	res := parseEnrichment(raw, validContext())
	require.NotEmpty(t, res.Error)
}

func TestParseEnrichment_InvalidContext(t *testing.T) {
	raw := `{"standardEnrichments":{"summary":"s","keywords":[],"sentiment":"neutral","classification":"c","tags":[]}}`
	res := parseEnrichment(raw, map[string]any{"fullContextId": "x"})
	require.NotEmpty(t, res.Error)
}

func TestBackoffDelay_CapsAtMax(t *testing.T) {
	d := backoffDelay(800, 10)
	require.LessOrEqual(t, d, time.Duration(maxBackoffMs+jitterMaxMs)*time.Millisecond)
	require.GreaterOrEqual(t, d, time.Duration(maxBackoffMs+jitterMinMs)*time.Millisecond)
}

func TestBackoffDelay_GrowsExponentially(t *testing.T) {
	d1 := backoffDelay(400, 1)
	d2 := backoffDelay(400, 2)
	require.Less(t, d1, d2+time.Duration(jitterMaxMs)*time.Millisecond)
}

func TestClassifyProviderErr_Throttling(t *testing.T) {
	err := classifyProviderErr(errFor("ThrottlingException: rate exceeded"))
	require.ErrorIs(t, err, ErrThrottled)
}

func TestClassifyProviderErr_Other(t *testing.T) {
	err := classifyProviderErr(errFor("validation error"))
	require.ErrorIs(t, err, ErrProvider)
}

func TestStripCodeFence_NoFence(t *testing.T) {
	require.Equal(t, "{}", stripCodeFence("{}"))
}

func TestStripCodeFence_WithFence(t *testing.T) {
	out := stripCodeFence("```\n{\"a\":1}\n```")
	require.True(t, strings.HasPrefix(out, "{"))
}

type simpleErr string

func (e simpleErr) Error() string { return string(e) }

func errFor(msg string) error { return simpleErr(msg) }
