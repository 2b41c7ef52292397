package notification

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validRecord = `{
	"awsRegion": "us-east-1",
	"eventName": "ObjectCreated:Put",
	"eventSource": "aws:s3",
	"eventTime": "2019-05-01T12:00:00.000Z",
	"s3": {
		"configurationId": "upload-hook",
		"bucket": {"name": "uploads-bucket"},
		"object": {"key": "uploads/org1/doc42", "size": 11}
	}
}`

var rules = Rules{ConfigurationID: "upload-hook"}

func TestParseAndValidate(t *testing.T) {
	records, err := Parse([]byte("[" + validRecord + "]"))
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.NoError(t, Validate(records, rules))

	event := ObjectEvent(records[0])
	assert.Equal(t, "uploads-bucket", event.Bucket)
	assert.Equal(t, "uploads/org1/doc42", event.Key)
	assert.Equal(t, int64(11), event.Size)
	assert.Equal(t, "2019-05-01T12:00:00.000Z", event.EventTime)
}

func TestParseEnvelope(t *testing.T) {
	records, err := Parse([]byte(`{"Records": [` + validRecord + `]}`))
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestParseRejectsNonArray(t *testing.T) {
	for _, body := range []string{"", "42", `"x"`, `{"foo": 1}`} {
		_, err := Parse([]byte(body))
		assert.True(t, errors.Is(err, ErrValidation), "body %q", body)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{
			name: "wrong event source",
			body: `[{"eventName":"ObjectCreated:Put","eventSource":"aws:sqs","eventTime":"t",
				"s3":{"configurationId":"upload-hook","bucket":{"name":"b"},"object":{"key":"a/b/c","size":1}}}]`,
		},
		{
			name: "missing object key",
			body: `[{"eventName":"ObjectCreated:Put","eventSource":"aws:s3","eventTime":"t",
				"s3":{"configurationId":"upload-hook","bucket":{"name":"b"},"object":{"size":1}}}]`,
		},
		{
			name: "removed event",
			body: `[{"eventName":"ObjectRemoved:Delete","eventSource":"aws:s3","eventTime":"t",
				"s3":{"configurationId":"upload-hook","bucket":{"name":"b"},"object":{"key":"a/b/c","size":1}}}]`,
		},
		{
			name: "configuration mismatch",
			body: `[{"eventName":"ObjectCreated:Put","eventSource":"aws:s3","eventTime":"t",
				"s3":{"configurationId":"other","bucket":{"name":"b"},"object":{"key":"a/b/c","size":1}}}]`,
		},
		{
			name: "fractional size",
			body: `[{"eventName":"ObjectCreated:Put","eventSource":"aws:s3","eventTime":"t",
				"s3":{"configurationId":"upload-hook","bucket":{"name":"b"},"object":{"key":"a/b/c","size":1.5}}}]`,
		},
		{
			name: "missing event time",
			body: `[{"eventName":"ObjectCreated:Put","eventSource":"aws:s3",
				"s3":{"configurationId":"upload-hook","bucket":{"name":"b"},"object":{"key":"a/b/c","size":1}}}]`,
		},
		{
			name: "missing bucket name",
			body: `[{"eventName":"ObjectCreated:Put","eventSource":"aws:s3","eventTime":"t",
				"s3":{"configurationId":"upload-hook","bucket":{},"object":{"key":"a/b/c","size":1}}}]`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := Parse([]byte(tt.body))
			require.NoError(t, err)
			err = Validate(records, rules)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrValidation))
		})
	}
}

func TestObjectEventDecodesKey(t *testing.T) {
	key := "uploads/org1/my+file%281%29.pdf"
	size := "3"
	records, err := Parse([]byte(`[{"eventName":"ObjectCreated:Put","eventSource":"aws:s3","eventTime":"t",
		"s3":{"configurationId":"upload-hook","bucket":{"name":"b"},"object":{"key":"` + key + `","size":` + size + `}}}]`))
	require.NoError(t, err)
	require.NoError(t, Validate(records, rules))
	assert.Equal(t, "uploads/org1/my file(1).pdf", ObjectEvent(records[0]).Key)
}

func TestParseObjectMetadata(t *testing.T) {
	meta, err := ParseObjectMetadata(map[string]string{
		"Document-Id":                  "doc-42",
		"x-amz-meta-original-filename": "hello.txt",
	})
	require.NoError(t, err)
	assert.Equal(t, "doc-42", meta.DocumentID)
	assert.Equal(t, "hello.txt", meta.OriginalFilename)

	_, err = ParseObjectMetadata(map[string]string{"document-id": "doc-42"})
	assert.ErrorIs(t, err, ErrMissingMetadata)

	_, err = ParseObjectMetadata(nil)
	assert.ErrorIs(t, err, ErrMissingMetadata)
}

func TestParseObjectKey(t *testing.T) {
	key, err := ParseObjectKey("uploads/org1/doc42")
	require.NoError(t, err)
	assert.Equal(t, ObjectKey{Prefix: "uploads", OrganizationID: "org1", FileID: "doc42"}, key)

	key, err = ParseObjectKey("uploads/org1/nested/doc42")
	require.NoError(t, err)
	assert.Equal(t, "nested/doc42", key.FileID)

	for _, bad := range []string{"doc42", "uploads/org1", "uploads//doc42"} {
		_, err := ParseObjectKey(bad)
		assert.ErrorIs(t, err, ErrInvalidObjectKey, bad)
	}
}
