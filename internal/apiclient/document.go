package apiclient

import "github.com/tidwall/gjson"

// listKeys are the envelope keys under which list endpoints put their items.
var listKeys = []string{"data", "events", "items", "results"}

// Document is a JSON response body read through gjson paths.
type Document struct {
	Path string
	raw  []byte
}

// NewDocument wraps raw JSON.
func NewDocument(path string, raw []byte) Document {
	return Document{Path: path, raw: raw}
}

// Field returns the value at a gjson path.
func (d Document) Field(path string) gjson.Result {
	if path == "" || path == "@this" {
		return gjson.ParseBytes(d.raw)
	}
	return gjson.GetBytes(d.raw, path)
}

// String returns the first non-empty string found at paths.
func (d Document) String(paths ...string) string {
	return firstString(d.raw, paths...)
}

// Count returns the number of items in a list response: a root array, or an
// array under one of the conventional envelope keys. It returns -1 when the
// body holds no recognisable list.
func (d Document) Count() int {
	root := gjson.ParseBytes(d.raw)
	if root.IsArray() {
		return len(root.Array())
	}
	for _, k := range listKeys {
		if r := root.Get(k); r.IsArray() {
			return len(r.Array())
		}
	}
	return -1
}

// Raw returns the body bytes.
func (d Document) Raw() []byte { return d.raw }
