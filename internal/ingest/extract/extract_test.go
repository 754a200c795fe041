package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"semanticpipe/internal/ingest/extract/ojson"
)

func mustParse(t *testing.T, src string) *ojson.Node {
	t.Helper()
	n, err := ojson.Parse([]byte(src))
	require.NoError(t, err)
	return n
}

// E1
func TestExtract_HeroSection(t *testing.T) {
	root := mustParse(t, `{"content":{"sections":[{"_model":"hero-section","_path":"/en_US/hero","copy":"Hello {%nbsp%}world"}]}}`)
	res, err := Extract(root, "")
	require.NoError(t, err)
	require.Len(t, res.Items, 1)

	item := res.Items[0]
	assert.Equal(t, "Hello world", item.CleansedContent)
	assert.Equal(t, "en_US", item.Envelope.Locale)
	assert.Equal(t, "en", item.Envelope.Language)
	assert.Equal(t, "US", item.Envelope.Country)
	assert.Equal(t, "hero", item.Envelope.SectionName)
	assert.Equal(t, "hero-section", item.Facets["sectionModel"])
	assert.Equal(t, "/en_US/hero", item.Facets["sectionPath"])
	assert.Equal(t, "hero", item.Facets["sectionKey"])
}

// E2
func TestExtract_Disclaimers(t *testing.T) {
	root := mustParse(t, `{"disclaimers":{"items":[{"copy":"A"},{"copy":"B"}]}}`)
	res, err := Extract(root, "/src")
	require.NoError(t, err)
	require.Len(t, res.Items, 2)
	assert.Equal(t, "disclaimer", res.Items[0].ItemType)
	assert.Equal(t, "A", res.Items[0].CleansedContent)
	assert.Equal(t, "disclaimer", res.Items[1].ItemType)
	assert.Equal(t, "B", res.Items[1].CleansedContent)
}

// E6
func TestExtract_EventKeywordTagging(t *testing.T) {
	root := mustParse(t, `{"headline":{"copy":"Shop our Valentine sale now"}}`)
	res, err := Extract(root, "/src")
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "Valentine day", res.Items[0].Facets["eventType"])
}

func TestExtract_EventKeywordFirstMatchWins(t *testing.T) {
	root := mustParse(t, `{"headline":{"copy":"Christmas and tax season"}}`)
	res, err := Extract(root, "/src")
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "Tax", res.Items[0].Facets["eventType"])
}

func TestExtract_UsagePathContainerFragment(t *testing.T) {
	root := mustParse(t, `{"_path":"/container","ref":{"_path":"/fragment","copy":"shared text"}}`)
	res, err := Extract(root, "/container")
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "/container ::ref:: /fragment", res.Items[0].Envelope.UsagePath)
}

func TestExtract_ArraySectionIndex(t *testing.T) {
	root := mustParse(t, `{"sections":[{"copy":"first"},{"copy":"second"}]}`)
	res, err := Extract(root, "/src")
	require.NoError(t, err)
	require.Len(t, res.Items, 2)
	assert.EqualValues(t, 0, res.Items[0].Facets["sectionIndex"])
	assert.EqualValues(t, 1, res.Items[1].Facets["sectionIndex"])
}

func TestExtract_EmptyCleansedContentSkipped(t *testing.T) {
	root := mustParse(t, `{"headline":{"copy":"   {%nbsp%}  "}}`)
	res, err := Extract(root, "/src")
	require.NoError(t, err)
	assert.Empty(t, res.Items)
}

func TestExtract_ContainerAlwaysRecursed(t *testing.T) {
	root := mustParse(t, `{"wrapper":{"inner":{"copy":"deep content"}}}`)
	res, err := Extract(root, "/src")
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "deep content", res.Items[0].CleansedContent)
}

func TestExtract_AnalyticsField(t *testing.T) {
	root := mustParse(t, `{"widget":{"analytics":{"name":"clickTag","value":"homepage-cta"}}}`)
	res, err := Extract(root, "/src")
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "analytics", res.Items[0].ItemType)
	assert.Equal(t, "homepage-cta", res.Items[0].CleansedContent)
	assert.Equal(t, "clickTag", res.Items[0].Facets["analyticsName"])
}

func TestExtract_RejectsNonContainerRoot(t *testing.T) {
	root := mustParse(t, `"just a string"`)
	_, err := Extract(root, "/src")
	require.Error(t, err)
}
