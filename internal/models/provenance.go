package models

import "time"

// ProvenanceRecord describes a single ingestion: which artifacts were
// derived from the uploaded file, when, and under which content addresses.
type ProvenanceRecord struct {
	EventTime       string         `json:"eventTime"`
	DocumentID      string         `json:"documentId"`
	ContentSize     int64          `json:"contentSize"`
	ContentType     string         `json:"contentType"`
	GeneratedAtTime time.Time      `json:"generatedAtTime"`
	FileURL         string         `json:"fileUrl"`
	FileName        string         `json:"fileName"`
	FileHash        string         `json:"fileHash"`
	TextHash        string         `json:"textHash"`
	TextSize        int64          `json:"textSize"`
	Metadata        map[string]any `json:"metadata"`
	MetadataHash    string         `json:"metadataHash"`
}
