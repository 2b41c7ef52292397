// Package notification parses and validates object-created notifications
// and the side-channel metadata carried on the uploaded object.
package notification

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/Lllllllleong/documentprovenance/internal/models"
)

const (
	// DefaultEventSource is the only source accepted unless overridden.
	DefaultEventSource = "aws:s3"

	eventNamePrefix = "ObjectCreated:"
)

// Record is one event descriptor of an S3-shaped notification.
type Record struct {
	AWSRegion   string    `json:"awsRegion,omitempty"`
	EventName   *string   `json:"eventName"`
	EventSource *string   `json:"eventSource"`
	EventTime   *string   `json:"eventTime"`
	S3          *S3Entity `json:"s3"`
}

// S3Entity is the object reference within a Record.
type S3Entity struct {
	ConfigurationID *string   `json:"configurationId"`
	Bucket          *Bucket   `json:"bucket"`
	Object          *S3Object `json:"object"`
}

type Bucket struct {
	Name *string `json:"name"`
}

type S3Object struct {
	Key  *string      `json:"key"`
	Size *json.Number `json:"size"`
}

// Rules holds the externally configured values a notification must match.
type Rules struct {
	ConfigurationID string
	EventSource     string
}

type envelope struct {
	Records []Record `json:"Records"`
}

// Parse decodes a notification body. Both a bare array of records and the
// {"Records": [...]} envelope are accepted.
func Parse(data []byte) ([]Record, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrValidation)
	}

	dec := func(v any) error {
		d := json.NewDecoder(bytes.NewReader(trimmed))
		d.UseNumber()
		return d.Decode(v)
	}

	var records []Record
	switch trimmed[0] {
	case '[':
		if err := dec(&records); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
	case '{':
		var env envelope
		if err := dec(&env); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		if env.Records == nil {
			return nil, fmt.Errorf("%w: expected an array of records", ErrValidation)
		}
		records = env.Records
	default:
		return nil, fmt.Errorf("%w: expected an array of records", ErrValidation)
	}
	return records, nil
}

// Validate checks every record against the schema and the configured rules.
// The first violation is returned, annotated with the record index.
func Validate(records []Record, rules Rules) error {
	source := rules.EventSource
	if source == "" {
		source = DefaultEventSource
	}
	for i := range records {
		if err := validateRecord(&records[i], source, rules.ConfigurationID); err != nil {
			return fmt.Errorf("%w: record %d: %s", ErrValidation, i, err)
		}
	}
	return nil
}

func validateRecord(r *Record, source, configurationID string) error {
	switch {
	case r.EventName == nil:
		return fmt.Errorf("eventName is required")
	case !strings.HasPrefix(*r.EventName, eventNamePrefix):
		return fmt.Errorf("eventName %q must begin with %q", *r.EventName, eventNamePrefix)
	case r.EventSource == nil:
		return fmt.Errorf("eventSource is required")
	case *r.EventSource != source:
		return fmt.Errorf("eventSource %q must equal %q", *r.EventSource, source)
	case r.EventTime == nil:
		return fmt.Errorf("eventTime is required")
	case r.S3 == nil:
		return fmt.Errorf("s3 is required")
	}

	s3 := r.S3
	switch {
	case s3.Bucket == nil:
		return fmt.Errorf("s3.bucket is required")
	case s3.Bucket.Name == nil:
		return fmt.Errorf("s3.bucket.name is required")
	case s3.ConfigurationID == nil:
		return fmt.Errorf("s3.configurationId is required")
	case *s3.ConfigurationID != configurationID:
		return fmt.Errorf("s3.configurationId %q does not match", *s3.ConfigurationID)
	case s3.Object == nil:
		return fmt.Errorf("s3.object is required")
	case s3.Object.Key == nil:
		return fmt.Errorf("s3.object.key is required")
	case s3.Object.Size == nil:
		return fmt.Errorf("s3.object.size is required")
	}
	if _, err := strconv.ParseInt(s3.Object.Size.String(), 10, 64); err != nil {
		return fmt.Errorf("s3.object.size must be an integer")
	}
	return nil
}

// ObjectEvent reduces a validated record to the pipeline input. Object keys
// arrive URL-encoded in notifications and are decoded here.
func ObjectEvent(r Record) models.ObjectEvent {
	key := *r.S3.Object.Key
	if decoded, err := url.QueryUnescape(key); err == nil {
		key = decoded
	}
	size, _ := strconv.ParseInt(r.S3.Object.Size.String(), 10, 64)
	return models.ObjectEvent{
		EventTime: *r.EventTime,
		Bucket:    *r.S3.Bucket.Name,
		Key:       key,
		Size:      size,
	}
}
