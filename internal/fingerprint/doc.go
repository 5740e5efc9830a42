// Package fingerprint derives decision-aware identity keys for actions and
// keeps the persisted fingerprint index used to detect cross-run duplicates.
//
// A key is the decision followed by a domain-separated SHA-256 of the
// canonical JSON of the decision's identity fields:
//
//	calendar  title, start, end, resolved calendar
//	reminder  title, due, list
//	note      title, folder, first 120 characters of notes
//	skip      title, first 120 characters of reason
//
// Every field is NFC-normalized, case-folded and whitespace-collapsed
// before hashing, so rewording in case or spacing maps to the same key.
//
// The index is one JSON object mapping key to Record. Entries are only
// added or overwritten, never removed.
package fingerprint
