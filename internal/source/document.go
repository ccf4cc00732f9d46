package source

import (
	"bytes"
	"iter"

	"gopkg.in/yaml.v3"
)

// Document is a fetched source resolved to one adapter.
// FlatList, StructuredDocument and GeoIPDatabase are the only implementations.
type Document interface {
	// Lines yields the raw rule lines of the document.
	Lines() iter.Seq[string]
	document()
}

// DefaultFields are the structured-document fields searched for rules, in
// order. Clash rule providers use "payload".
var DefaultFields = []string{"payload", "rules"}

// NewDocument wraps data in the adapter for kind. name is the source name,
// which GeoIP databases use as the country or category code.
func NewDocument(kind Kind, name string, data []byte) Document {
	switch kind {
	case Structured:
		return StructuredDocument{Data: data, Fields: DefaultFields}
	case GeoIP:
		return GeoIPDatabase{Data: data, Code: name}
	default:
		return FlatList{Data: data}
	}
}

// FlatList is a newline-delimited rule list.
type FlatList struct {
	Data []byte
}

func (FlatList) document() {}

// Lines yields every line of the list, whatever its length. The document is
// already held in memory, so no line limit applies.
func (f FlatList) Lines() iter.Seq[string] {
	return func(yield func(string) bool) {
		for line := range bytes.Lines(f.Data) {
			line = bytes.TrimSuffix(line, []byte("\n"))
			line = bytes.TrimSuffix(line, []byte("\r"))
			if !yield(string(line)) {
				return
			}
		}
	}
}

// StructuredDocument is a YAML or JSON mapping holding a sequence of rule
// strings under one of Fields.
type StructuredDocument struct {
	Data   []byte
	Fields []string
}

func (StructuredDocument) document() {}

// Lines yields the string elements of the first field present. A malformed
// document or a missing field yields nothing.
func (d StructuredDocument) Lines() iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, item := range d.rules() {
			if !yield(item) {
				return
			}
		}
	}
}

func (d StructuredDocument) rules() []string {
	var doc map[string]any
	if err := yaml.Unmarshal(d.Data, &doc); err != nil || doc == nil {
		return nil
	}

	for _, field := range d.Fields {
		raw, ok := doc[field]
		if !ok {
			continue
		}
		seq, ok := raw.([]any)
		if !ok {
			return nil
		}
		items := make([]string, 0, len(seq))
		for _, v := range seq {
			if s, ok := v.(string); ok {
				items = append(items, s)
			}
		}
		return items
	}
	return nil
}
