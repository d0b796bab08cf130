// Package campaign implements the phishing-campaign lifecycle: creation and
// recipient materialization, the draft/scheduled/running/completed/cancelled
// state machine, and handoff to the dispatch queue.
package campaign
