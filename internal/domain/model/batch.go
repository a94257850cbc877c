package model

// RecordFailure describes why a single record in a batch was not
// fully ingested. Index refers to the record's position in the batch.
type RecordFailure struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// BatchSummary is the per-batch ingestion result. No single bad
// record fails a batch; each outcome is counted instead.
type BatchSummary struct {
	Submitted        int             `json:"submitted"`
	Succeeded        int             `json:"succeeded"`
	Duplicates       int             `json:"duplicates"`
	Malformed        int             `json:"malformed"`
	PendingEmbedding int             `json:"pending_embedding"`
	Failures         []RecordFailure `json:"failures,omitempty"`
	Players          []string        `json:"players,omitempty"` // distinct players touched
}
