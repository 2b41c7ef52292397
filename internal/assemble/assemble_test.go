package assemble

import (
	"testing"
	"time"

	"github.com/Lllllllleong/documentprovenance/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecord() models.ProvenanceRecord {
	return models.ProvenanceRecord{
		EventTime:       "2019-05-01T12:00:00.000Z",
		DocumentID:      "doc-42",
		ContentSize:     11,
		ContentType:     "text/plain",
		GeneratedAtTime: time.Date(2019, 5, 1, 12, 0, 1, 500_000_000, time.UTC),
		FileURL:         "https://assets.priorartarchive.org/uploads/org1/doc42",
		FileName:        "hello.txt",
		FileHash:        "bafyfile",
		TextHash:        "bafytext",
		TextSize:        11,
		Metadata:        map[string]any{"title": "Hello"},
		MetadataHash:    "bafymeta",
	}
}

func TestAssembleGolden(t *testing.T) {
	got, err := Assemble(sampleRecord())
	require.NoError(t, err)

	want := `{"contentSize":"11B","contentType":"text/plain","documentId":"doc-42",` +
		`"eventTime":"2019-05-01T12:00:00.000Z","fileHash":"bafyfile","fileName":"hello.txt",` +
		`"fileUrl":"https://assets.priorartarchive.org/uploads/org1/doc42",` +
		`"generatedAtTime":"2019-05-01T12:00:01.500Z","metadata":{"title":"Hello"},` +
		`"metadataHash":"bafymeta","textHash":"bafytext","textSize":"11B"}`
	assert.Equal(t, want, string(got))
}

func TestAssembleDeterministic(t *testing.T) {
	a := sampleRecord()
	a.Metadata = map[string]any{}
	a.Metadata["title"] = "Hello"
	a.Metadata["Content-Type"] = "text/plain"
	a.Metadata["nested"] = map[string]any{"z": 1.0, "a": []any{true, nil, 0.5}}

	b := sampleRecord()
	b.Metadata = map[string]any{
		"nested":       map[string]any{"a": []any{true, nil, 0.5}, "z": 1.0},
		"Content-Type": "text/plain",
		"title":        "Hello",
	}
	// Same instant, different zone.
	b.GeneratedAtTime = a.GeneratedAtTime.In(time.FixedZone("AEST", 10*3600))

	first, err := Assemble(a)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := Assemble(b)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestAssembleChangesWithInput(t *testing.T) {
	base, err := Assemble(sampleRecord())
	require.NoError(t, err)

	changed := sampleRecord()
	changed.TextSize = 12
	other, err := Assemble(changed)
	require.NoError(t, err)
	assert.NotEqual(t, base, other)
}

func TestAssembleNilMetadataEqualsEmpty(t *testing.T) {
	a := sampleRecord()
	a.Metadata = nil
	b := sampleRecord()
	b.Metadata = map[string]any{}

	first, err := Assemble(a)
	require.NoError(t, err)
	second, err := Assemble(b)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Contains(t, string(first), `"metadata":{}`)
}

func TestAssembleRejectsIncomplete(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*models.ProvenanceRecord)
	}{
		{"missing document id", func(r *models.ProvenanceRecord) { r.DocumentID = "" }},
		{"missing file hash", func(r *models.ProvenanceRecord) { r.FileHash = "" }},
		{"missing text hash", func(r *models.ProvenanceRecord) { r.TextHash = "" }},
		{"missing metadata hash", func(r *models.ProvenanceRecord) { r.MetadataHash = "" }},
		{"zero generation time", func(r *models.ProvenanceRecord) { r.GeneratedAtTime = time.Time{} }},
		{"negative size", func(r *models.ProvenanceRecord) { r.ContentSize = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := sampleRecord()
			tt.mutate(&rec)
			_, err := Assemble(rec)
			assert.ErrorIs(t, err, ErrIncompleteRecord)
		})
	}
}

func TestFormatting(t *testing.T) {
	assert.Equal(t, "0B", ByteSize(0))
	assert.Equal(t, "1048576B", ByteSize(1<<20))
	assert.Equal(t, "2019-05-01T02:00:00.000Z",
		FormatTime(time.Date(2019, 5, 1, 12, 0, 0, 0, time.FixedZone("AEST", 10*3600))))
}
