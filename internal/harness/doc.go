// Package harness runs YAML scenarios against the real pipeline.
//
// A scenario fixes the clock, the timezone and the collaborators: mail and
// creators are in-memory, reasoning output is scripted per step. Each step
// processes one message and may state what the run must produce. After
// the last step, assertions check the collaborator calls and the
// persisted state.
//
// Every scenario runs in a fresh state directory with its own ledger,
// fingerprint index and archive.
//
// # Scenario format
//
//	name: friday_duplicate
//	description: weekday correction, then a duplicate delivery
//	now: "2024-05-06T10:00:00+08:00"
//	timezone: Asia/Hong_Kong
//	steps:
//	  - message:
//	      message_id: "<msg-1@example.com>"
//	      received_at: "2024-05-06T09:00:00+08:00"
//	      body: "let's meet this Friday 3pm"
//	    responses:
//	      - output: '{"actions": [...]}'
//	    expect:
//	      status: applied
//	      items: [created]
//	  - message: { message_id: "<msg-1@example.com>" }
//	    expect:
//	      status: skipped_duplicate
//	      first_step: 1
//	assertions:
//	  - type: created_count
//	    count: 1
//
// # Trace
//
// Each step adds a run event, one item event per applied action, one
// create event per collaborator create and a log_note event. Run ids are
// replaced by step numbers so traces are stable across clocks; golden
// files hold the canonical JSON of the trace.
package harness
