package models

// Event is one committed record as delivered to live subscribers. Events
// reach each subscriber in commit (Seq) order. A Gap event flags data a slow
// subscriber missed: Dropped counts the discarded events and Record carries
// the newest one that survived.
type Event struct {
	Seq     uint64 `json:"seq"`
	Kind    Kind   `json:"kind"`
	Record  Record `json:"record,omitempty"`
	Gap     bool   `json:"gap,omitempty"`
	Dropped int    `json:"dropped,omitempty"`
}
