// Package ojson parses JSON into an order-preserving tree. encoding/json's
// map[string]any unmarshaling loses object key order, but the Extractor's
// traversal-order invariant (§8 property) depends on visiting fields in the
// order they appear in the source document, so ingestion decodes through
// json.Decoder's token stream instead.
package ojson

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Kind identifies what a Node holds.
type Kind int

const (
	KindScalar Kind = iota
	KindObject
	KindArray
)

// Node is one position in the parsed document tree.
type Node struct {
	Kind   Kind
	Keys   []string // KindObject: field order as it appeared in the source
	Fields map[string]*Node
	Items  []*Node // KindArray
	Scalar any     // KindScalar: string, json.Number, bool, or nil
}

// Parse decodes a single JSON value, preserving object key order.
func Parse(data []byte) (*Node, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return parseValue(dec)
}

func parseValue(dec *json.Decoder) (*Node, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			return parseObject(dec)
		case '[':
			return parseArray(dec)
		default:
			return nil, fmt.Errorf("ojson: unexpected delimiter %q", t)
		}
	default:
		return &Node{Kind: KindScalar, Scalar: tok}, nil
	}
}

func parseObject(dec *json.Decoder) (*Node, error) {
	n := &Node{Kind: KindObject, Fields: map[string]*Node{}}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("ojson: expected object key, got %v", keyTok)
		}
		val, err := parseValue(dec)
		if err != nil {
			return nil, err
		}
		if _, exists := n.Fields[key]; !exists {
			n.Keys = append(n.Keys, key)
		}
		n.Fields[key] = val
	}
	if _, err := dec.Token(); err != nil { // consume closing '}'
		return nil, err
	}
	return n, nil
}

func parseArray(dec *json.Decoder) (*Node, error) {
	n := &Node{Kind: KindArray}
	for dec.More() {
		v, err := parseValue(dec)
		if err != nil {
			return nil, err
		}
		n.Items = append(n.Items, v)
	}
	if _, err := dec.Token(); err != nil { // consume closing ']'
		return nil, err
	}
	return n, nil
}

// IsObject reports whether n is a JSON object.
func (n *Node) IsObject() bool { return n != nil && n.Kind == KindObject }

// IsArray reports whether n is a JSON array.
func (n *Node) IsArray() bool { return n != nil && n.Kind == KindArray }

// IsScalar reports whether n is a JSON scalar (string, number, bool, null).
func (n *Node) IsScalar() bool { return n != nil && n.Kind == KindScalar }

// Get returns the child field by key and whether it was present.
func (n *Node) Get(key string) (*Node, bool) {
	if n == nil || n.Kind != KindObject {
		return nil, false
	}
	v, ok := n.Fields[key]
	return v, ok
}

// AsString returns the scalar's string value, if it holds one.
func (n *Node) AsString() (string, bool) {
	if n == nil || n.Kind != KindScalar {
		return "", false
	}
	s, ok := n.Scalar.(string)
	return s, ok
}

// GetString is a convenience for Get followed by AsString.
func (n *Node) GetString(key string) (string, bool) {
	child, ok := n.Get(key)
	if !ok {
		return "", false
	}
	return child.AsString()
}

// ScalarString renders a string, number or bool scalar as text (a null or
// a non-scalar node reports false), used when a content field's value is a non-string scalar (e.g. an
// analytics "value" field).
func (n *Node) ScalarString() (string, bool) {
	if n == nil || n.Kind != KindScalar {
		return "", false
	}
	switch v := n.Scalar.(type) {
	case string:
		return v, true
	case json.Number:
		return v.String(), true
	case bool:
		if v {
			return "true", true
		}
		return "false", true
	case nil:
		return "", false
	default:
		return fmt.Sprintf("%v", v), true
	}
}

// ToMap converts an object node into a plain map, recursing into nested
// objects; array elements that are not scalars become nil. Used for the
// free-form _provenance payload.
func (n *Node) ToMap() map[string]any {
	if n == nil || n.Kind != KindObject {
		return nil
	}
	out := make(map[string]any, len(n.Keys))
	for _, k := range n.Keys {
		child := n.Fields[k]
		switch child.Kind {
		case KindScalar:
			out[k] = child.Scalar
		case KindObject:
			out[k] = child.ToMap()
		case KindArray:
			arr := make([]any, 0, len(child.Items))
			for _, it := range child.Items {
				if it.Kind == KindScalar {
					arr = append(arr, it.Scalar)
				} else {
					arr = append(arr, nil)
				}
			}
			out[k] = arr
		}
	}
	return out
}
