// Maps "absent optional value" to and from the JSON null literal.

package fieldjson

import "bytes"

// nullLiteral is both the encoding of an absent value and the content a
// missing field file decodes from.
var nullLiteral = []byte("null")

// IsAbsent returns true if data is the JSON null literal, ignoring
// surrounding whitespace.
//
// It is the single presence test shared by writes and reads.
func IsAbsent(data []byte) bool {
	return bytes.Equal(bytes.TrimSpace(data), nullLiteral)
}

// absent returns the raw JSON standing in for a field with no file.
func absent() []byte {
	return bytes.Clone(nullLiteral)
}
