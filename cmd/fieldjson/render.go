// Renders a document in manifest field order.

package main

import (
	"bytes"
	"encoding/json"
	"fmt"

	orderedmap "github.com/wk8/go-ordered-map/v2"
	"gopkg.in/yaml.v3"

	"github.com/maruel/fieldjson/internal/fieldjson"
)

// render formats doc as json or yaml. Absent fields are omitted.
func render(s *fieldjson.Schema, doc fieldjson.Document, format string) ([]byte, error) {
	switch format {
	case "json":
		return renderJSON(s, doc)
	case "yaml":
		return renderYAML(s, doc)
	default:
		return nil, fmt.Errorf("unknown format: %q", format)
	}
}

func renderJSON(s *fieldjson.Schema, doc fieldjson.Document) ([]byte, error) {
	om := orderedmap.New[string, json.RawMessage]()
	for _, f := range s.Fields() {
		if v, ok := doc[f.Name]; ok {
			om.Set(f.Name, v)
		}
	}
	data, err := json.Marshal(om)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// renderYAML builds a mapping node so that field order and nested key order
// are preserved. JSON is valid YAML, so each value is parsed as-is.
func renderYAML(s *fieldjson.Schema, doc fieldjson.Document) ([]byte, error) {
	root := &yaml.Node{Kind: yaml.MappingNode}
	for _, f := range s.Fields() {
		v, ok := doc[f.Name]
		if !ok {
			continue
		}
		var n yaml.Node
		if err := yaml.Unmarshal(v, &n); err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Name, err)
		}
		value := &n
		if n.Kind == yaml.DocumentNode && len(n.Content) == 1 {
			value = n.Content[0]
		}
		// Drop the JSON quoting and flow style; the encoder quotes where needed.
		clearStyle(value)
		root.Content = append(root.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: f.Name}, value)
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(root); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func clearStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		clearStyle(c)
	}
}
