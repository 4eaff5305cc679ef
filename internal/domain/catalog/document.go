package catalog

import (
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Document is the dynamic, string-keyed shape of a source record. It exists
// only at the ingestion boundary; everything past the record constructors in
// this package is strongly typed.
type Document map[string]any

// Get returns the value for key, or nil when absent.
func (d Document) Get(key string) any {
	if d == nil {
		return nil
	}
	return d[key]
}

// Lookup walks a nested path of sub-documents and returns the value at the
// end of it, or nil when any segment is absent or not a document.
func (d Document) Lookup(path ...string) any {
	cur := any(d)
	for _, key := range path {
		doc, ok := AsDocument(cur)
		if !ok {
			return nil
		}
		cur = doc.Get(key)
	}
	return cur
}

// Sub returns the sub-document under key, or nil.
func (d Document) Sub(key string) Document {
	doc, ok := AsDocument(d.Get(key))
	if !ok {
		return nil
	}
	return doc
}

// List returns the array under key as a slice of dynamic values, or nil.
func (d Document) List(key string) []any {
	switch v := d.Get(key).(type) {
	case primitive.A:
		return []any(v)
	case []any:
		return v
	case []Document:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = e
		}
		return out
	default:
		return nil
	}
}

// Documents returns the array under key keeping only document-shaped entries.
func (d Document) Documents(key string) []Document {
	items := d.List(key)
	if len(items) == 0 {
		return nil
	}
	out := make([]Document, 0, len(items))
	for _, it := range items {
		if doc, ok := AsDocument(it); ok {
			out = append(out, doc)
		}
	}
	return out
}

// AsDocument coerces the BSON shapes a decoded value may take into a
// Document. Ordered documents (bson.D) are flattened; on duplicate keys the
// last value wins, matching upsert semantics downstream.
func AsDocument(v any) (Document, bool) {
	switch m := v.(type) {
	case Document:
		return m, true
	case bson.M:
		return Document(m), true
	case map[string]any:
		return Document(m), true
	case bson.D:
		out := make(Document, len(m))
		for _, e := range m {
			out[e.Key] = e.Value
		}
		return out, true
	default:
		return nil, false
	}
}
