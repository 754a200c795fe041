// Package extract implements the recursive document walk (C3) that turns
// an arbitrary content payload into an ordered sequence of pipeline.Item,
// each carrying an inherited Envelope and Facets snapshot.
package extract

import (
	"fmt"
	"regexp"
	"strings"

	"semanticpipe/internal/ingest/cleanse"
	"semanticpipe/internal/ingest/extract/ojson"
	"semanticpipe/internal/pipeline"
)

// localeRe matches a locale path segment like "/en_US/" or "/en-US" that is
// followed by a slash or by the end of the path. RE2 has no lookaround, so unlike the original regex using
// lookbehind/lookahead, the leading slash and trailing slash-or-end are
// consumed as ordinary groups rather than asserted non-consuming.
var localeRe = regexp.MustCompile(`/(([a-z]{2})[-_]([A-Z]{2}))(?:/|$)`)

// contentFields is the fixed set of field names treated as content-bearing.
var contentFields = []string{"copy", "disclaimers", "disclaimer", "analytics"}

// eventKeywords is the fixed keyword table from the domain spec, preserved
// verbatim and in this order for deterministic first-match-wins tagging.
var eventKeywords = []struct{ keyword, label string }{
	{"valentine", "Valentine day"},
	{"father's day", "Father's day"},
	{"tax", "Tax"},
	{"christmas", "Christmas"},
	{"mother", "Mother's day"},
}

// Result is the output of a single Extract call.
type Result struct {
	Items    []pipeline.Item
	Warnings []string
}

// Extract walks root (an object or array node) and produces items in tree
// traversal order. sourceURI seeds the initial envelope's SourcePath.
func Extract(root *ojson.Node, sourceURI string) (Result, error) {
	if root == nil {
		return Result{}, fmt.Errorf("extract: nil root")
	}
	if !root.IsObject() && !root.IsArray() {
		return Result{}, fmt.Errorf("extract: root must be an object or array")
	}
	c := &walkCtx{visited: map[*ojson.Node]bool{}}
	seed := pipeline.Envelope{SourcePath: sourceURI, PathHierarchy: splitPath(sourceURI)}
	c.walkNode(root, seed, pipeline.Facets{}, "")
	return Result{Items: c.items, Warnings: c.warnings}, nil
}

type walkCtx struct {
	items    []pipeline.Item
	warnings []string
	visited  map[*ojson.Node]bool
}

func (c *walkCtx) warn(format string, args ...any) {
	c.warnings = append(c.warnings, fmt.Sprintf(format, args...))
}

// walkNode dispatches to the object or array handler; scalar leaves reached
// directly (e.g. an array of plain strings) are silently ignored.
func (c *walkCtx) walkNode(node *ojson.Node, parentEnv pipeline.Envelope, parentFacets pipeline.Facets, fieldName string) {
	if node == nil {
		return
	}
	switch {
	case node.IsObject():
		c.walkObject(node, parentEnv, parentFacets, fieldName)
	case node.IsArray():
		for i, item := range node.Items {
			childFacets := parentFacets.Clone()
			childFacets["sectionIndex"] = i
			c.walkNode(item, parentEnv, childFacets, fieldName)
		}
	}
}

func (c *walkCtx) walkObject(obj *ojson.Node, parentEnv pipeline.Envelope, parentFacets pipeline.Facets, fieldName string) {
	if c.visited[obj] {
		return
	}
	c.visited[obj] = true

	currentEnv, explicitUsagePath := c.computeEnvelope(obj, parentEnv)
	if !explicitUsagePath {
		if parentEnv.SourcePath != "" && parentEnv.SourcePath != currentEnv.SourcePath {
			currentEnv.UsagePath = parentEnv.SourcePath + " ::ref:: " + currentEnv.SourcePath
		} else {
			currentEnv.UsagePath = currentEnv.SourcePath
		}
	}

	currentFacets := c.computeFacets(obj, parentFacets)
	if strings.HasSuffix(currentEnv.Model, "-section") {
		currentFacets["sectionModel"] = currentEnv.Model
		currentFacets["sectionPath"] = currentEnv.SourcePath
		currentFacets["sectionKey"] = lastSegment(currentEnv.SourcePath)
	}

	consumed := make(map[string]bool, len(contentFields))
	for _, cf := range contentFields {
		child, ok := obj.Get(cf)
		if !ok {
			continue
		}
		consumed[cf] = true
		c.emitContentField(cf, child, currentEnv, currentFacets, fieldName)
	}

	for _, key := range obj.Keys {
		if strings.HasPrefix(key, "_") || consumed[key] {
			continue
		}
		child := obj.Fields[key]
		if child.IsObject() || child.IsArray() {
			c.walkNode(child, currentEnv, currentFacets, key)
		}
	}
}

// computeEnvelope overlays the node's own _path/_model/_usagePath/_provenance
// fields onto the inherited parent envelope and derives locale from the
// resulting source path.
func (c *walkCtx) computeEnvelope(obj *ojson.Node, parent pipeline.Envelope) (pipeline.Envelope, bool) {
	env := parent
	explicitUsagePath := false

	if v, ok := obj.GetString("_path"); ok {
		env.SourcePath = v
		env.PathHierarchy = splitPath(v)
	}
	if v, ok := obj.GetString("_model"); ok {
		env.Model = v
	}
	if v, ok := obj.GetString("_usagePath"); ok {
		env.UsagePath = v
		explicitUsagePath = true
	}
	if provNode, present := obj.Get("_provenance"); present {
		if provNode.IsObject() {
			env.Provenance = provNode.ToMap()
		} else {
			env.Provenance = parent.Provenance
			c.warn("_provenance on %q is not an object, carrying over parent value", env.SourcePath)
		}
	}

	if m := localeRe.FindStringSubmatch(env.SourcePath); m != nil {
		env.Locale = m[1]
		env.Language = m[2]
		env.Country = m[3]
		env.SectionName = lastSegment(env.SourcePath)
	}
	return env, explicitUsagePath
}

// computeFacets shallow-copies the parent facets and adds every scalar
// field on obj whose name does not start with "_".
func (c *walkCtx) computeFacets(obj *ojson.Node, parent pipeline.Facets) pipeline.Facets {
	out := parent.Clone()
	for _, key := range obj.Keys {
		if strings.HasPrefix(key, "_") {
			continue
		}
		child := obj.Fields[key]
		if child.IsScalar() {
			out[key] = child.Scalar
		}
	}
	return out
}

func (c *walkCtx) emitContentField(field string, val *ojson.Node, env pipeline.Envelope, facets pipeline.Facets, fieldName string) {
	switch field {
	case "copy":
		if s, ok := val.AsString(); ok {
			c.emit(fieldName, s, env, facets)
		}
	case "disclaimer":
		if s, ok := val.AsString(); ok {
			c.emit(field, s, env, facets)
			return
		}
		if val.IsObject() {
			if s, ok := val.GetString("copy"); ok {
				c.emit(field, s, env, facets)
			}
		}
	case "disclaimers":
		if s, ok := val.AsString(); ok {
			c.emit(field, s, env, facets)
			return
		}
		if val.IsObject() {
			items, ok := val.Get("items")
			if ok && items.IsArray() {
				for _, it := range items.Items {
					if !it.IsObject() {
						continue
					}
					if s, ok := it.GetString("copy"); ok {
						c.emit("disclaimer", s, env, facets)
					}
				}
			}
		}
	case "analytics":
		if s, ok := val.AsString(); ok {
			c.emit(field, s, env, facets)
			return
		}
		if val.IsObject() {
			nameNode, hasName := val.Get("name")
			valueNode, hasValue := val.Get("value")
			if hasName && hasValue {
				name, ok := nameNode.AsString()
				value, hasStr := valueNode.ScalarString()
				if ok && hasStr {
					itemFacets := facets.Clone()
					itemFacets["analyticsName"] = name
					c.emit(field, value, env, itemFacets)
				}
			}
		}
	}
}

func (c *walkCtx) emit(itemType, rawContent string, env pipeline.Envelope, facets pipeline.Facets) {
	cleansed := cleanse.Text(rawContent)
	if cleansed == "" {
		return
	}
	itemFacets := facets.Clone()
	tagEvent(cleansed, itemFacets)

	c.items = append(c.items, pipeline.Item{
		SourcePath:        env.SourcePath,
		ItemType:          itemType,
		OriginalFieldName: itemType,
		CleansedContent:   cleansed,
		Model:             env.Model,
		Envelope:          env,
		Facets:            itemFacets,
	})
}

// tagEvent adds eventType to facets on the first keyword-table match in
// the lowercased content. The table order is significant: first match wins.
func tagEvent(cleansed string, facets pipeline.Facets) {
	lower := strings.ToLower(cleansed)
	for _, kw := range eventKeywords {
		if strings.Contains(lower, kw.keyword) {
			facets["eventType"] = kw.label
			return
		}
	}
}

func splitPath(p string) []string {
	parts := strings.Split(p, "/")
	out := make([]string, 0, len(parts))
	for _, seg := range parts {
		if seg != "" {
			out = append(out, seg)
		}
	}
	return out
}

func lastSegment(p string) string {
	segs := splitPath(p)
	if len(segs) == 0 {
		return ""
	}
	return segs[len(segs)-1]
}
