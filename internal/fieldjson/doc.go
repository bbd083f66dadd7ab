// Package fieldjson persists each field of a record as its own JSON file.
//
// # Overview
//
// A record is described by a [Schema]: an ordered list of [Field] descriptors,
// each with a name, a [Kind] and a pair of encode/decode closures. Schemas are
// built by reflection with [SchemaOf], by hand with [NewSchema], or from a
// YAML [Manifest] for dynamic [Document] records.
//
// [Codec.Write] stores field "name" in "<dir>/name.json" as pretty-printed
// JSON. [Codec.Read] reconstructs a fresh record from whatever files exist.
//
// # File Lifecycle
//
// Field files are immutable. A write never overwrites: a field whose file
// already exists is skipped, and files are created with O_EXCL so that a
// concurrent writer losing the race observes "already exists". New files are
// made read-only right after creation. The directory itself is owned by the
// caller; it must exist before writing and is never created or removed here.
//
// # Presence
//
// An Optional field is absent when its JSON encoding is the literal null.
// Absent fields are not written, and a missing file for an Optional field
// reads back as null. This conflates "absent" with "present but encodes to
// null": a field whose type legitimately encodes to null cannot round-trip
// as present.
package fieldjson
