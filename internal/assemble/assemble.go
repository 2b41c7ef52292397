// Package assemble turns a provenance record into its canonical byte form.
//
// The output is RFC 8785 canonical JSON: object keys are sorted, numbers use
// the ECMAScript shortest form, and no insignificant whitespace is emitted.
// Byte sizes are rendered as "<n>B" and timestamps as RFC 3339 UTC with
// millisecond precision, so the same record always yields the same bytes and
// therefore the same content address.
package assemble

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Lllllllleong/documentprovenance/internal/models"
	"github.com/gowebpki/jcs"
)

// TimeLayout is the fixed timestamp rendering used in assembled records.
const TimeLayout = "2006-01-02T15:04:05.000Z"

// ErrIncompleteRecord indicates a record is missing a required field.
var ErrIncompleteRecord = errors.New("incomplete provenance record")

type canonicalRecord struct {
	EventTime       string         `json:"eventTime"`
	DocumentID      string         `json:"documentId"`
	ContentSize     string         `json:"contentSize"`
	ContentType     string         `json:"contentType"`
	GeneratedAtTime string         `json:"generatedAtTime"`
	FileURL         string         `json:"fileUrl"`
	FileName        string         `json:"fileName"`
	FileHash        string         `json:"fileHash"`
	TextHash        string         `json:"textHash"`
	TextSize        string         `json:"textSize"`
	Metadata        map[string]any `json:"metadata"`
	MetadataHash    string         `json:"metadataHash"`
}

// Assemble returns the canonical serialization of rec. It performs no I/O.
func Assemble(rec models.ProvenanceRecord) ([]byte, error) {
	if err := validate(rec); err != nil {
		return nil, err
	}

	meta := rec.Metadata
	if meta == nil {
		meta = map[string]any{}
	}

	raw, err := json.Marshal(canonicalRecord{
		EventTime:       rec.EventTime,
		DocumentID:      rec.DocumentID,
		ContentSize:     ByteSize(rec.ContentSize),
		ContentType:     rec.ContentType,
		GeneratedAtTime: FormatTime(rec.GeneratedAtTime),
		FileURL:         rec.FileURL,
		FileName:        rec.FileName,
		FileHash:        rec.FileHash,
		TextHash:        rec.TextHash,
		TextSize:        ByteSize(rec.TextSize),
		Metadata:        meta,
		MetadataHash:    rec.MetadataHash,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal provenance record: %w", err)
	}

	canonical, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize provenance record: %w", err)
	}
	return canonical, nil
}

// ByteSize renders a byte count with the fixed "B" unit suffix.
func ByteSize(n int64) string {
	return strconv.FormatInt(n, 10) + "B"
}

// FormatTime renders t in UTC with millisecond precision.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

func validate(rec models.ProvenanceRecord) error {
	missing := func(field string) error {
		return fmt.Errorf("%w: %s is required", ErrIncompleteRecord, field)
	}
	switch {
	case rec.DocumentID == "":
		return missing("documentId")
	case rec.FileHash == "":
		return missing("fileHash")
	case rec.TextHash == "":
		return missing("textHash")
	case rec.MetadataHash == "":
		return missing("metadataHash")
	case rec.GeneratedAtTime.IsZero():
		return missing("generatedAtTime")
	case rec.ContentSize < 0 || rec.TextSize < 0:
		return fmt.Errorf("%w: sizes must not be negative", ErrIncompleteRecord)
	}
	return nil
}
