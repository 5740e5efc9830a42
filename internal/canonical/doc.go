// Package canonical produces RFC 8785 canonical JSON and domain-separated
// content hashes.
//
// Canonical bytes are the only input to identity hashing in this module.
// Strings are NFC normalized at the serialization boundary, object keys are
// ordered by UTF-16 code units, and floats and nulls are rejected so that
// the same logical value always yields the same bytes.
package canonical
