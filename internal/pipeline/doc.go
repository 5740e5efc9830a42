// Package pipeline runs one message end to end.
//
// A run moves through fetched → parsed → (replanned) → applied → logged →
// done. Any unrecoverable error moves it to failed and returns a
// *StageError naming the stage.
//
// Short circuits:
//   - a blocked account or sender ends the run as skipped_early before any
//     reasoning call, with no ledger entry and no log note
//   - a message id already in the ledger ends the run as skipped_duplicate
//     with no collaborator or reasoning calls
//
// Reasoning failures and malformed output abort the run without touching
// the ledger, so the message stays eligible for the next invocation.
// Collaborator failures on individual actions are recorded on the item and
// the run continues.
//
// Every run, fatal ones included, leaves its artifacts under
// <state>/runs/<run_id>/.
package pipeline
