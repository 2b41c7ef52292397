package models

// These structs define the payloads exchanged between the ingestion entry
// points (Cloud Function, CLI) and the services package.

// ObjectEvent is one validated object-created notification, reduced to what
// the ingestion pipeline needs.
type ObjectEvent struct {
	EventTime string
	Bucket    string
	Key       string
	Size      int64
}

// StoredObject is the fetched body and attributes of an uploaded object.
type StoredObject struct {
	Body          []byte
	ContentLength int64
	ContentType   string
	Metadata      map[string]string
}

// IngestResult is returned for every successfully processed event.
type IngestResult struct {
	Key string `json:"key"`
	CID string `json:"cid"`
}

// IngestFailure is reported for an event whose run was rejected.
type IngestFailure struct {
	Key   string `json:"key"`
	Error string `json:"error"`
}

// BatchResponse is the body returned by the HTTP entry point.
type BatchResponse struct {
	Status    string          `json:"status"`
	Processed []IngestResult  `json:"processed"`
	Failed    []IngestFailure `json:"failed,omitempty"`
}

// WorkflowHandoff is the argument passed to the downstream workflow once a
// provenance assertion has been committed.
type WorkflowHandoff struct {
	DocumentID string `json:"documentId"`
	Key        string `json:"key"`
	CID        string `json:"cid"`
}

// GCSEvent is the data of a Cloud Storage object-finalized CloudEvent.
type GCSEvent struct {
	Bucket      string            `json:"bucket"`
	Name        string            `json:"name"`
	Size        string            `json:"size"`
	TimeCreated string            `json:"timeCreated"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}
