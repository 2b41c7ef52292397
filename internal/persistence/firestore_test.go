package persistence

import (
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type indexField struct {
	FieldPath string `json:"fieldPath"`
	Order     string `json:"order"`
}

// The Firestore ListAssertions query is only served with this index deployed.
func TestAssertionsCompositeIndexDeclared(t *testing.T) {
	data, err := os.ReadFile("../../firestore.indexes.json")
	require.NoError(t, err)

	var spec struct {
		Indexes []struct {
			CollectionGroup string       `json:"collectionGroup"`
			QueryScope      string       `json:"queryScope"`
			Fields          []indexField `json:"fields"`
		} `json:"indexes"`
	}
	require.NoError(t, json.Unmarshal(data, &spec))

	want := []indexField{
		{FieldPath: "documentId", Order: "ASCENDING"},
		{FieldPath: "createdAt", Order: "ASCENDING"},
	}
	found := false
	for _, idx := range spec.Indexes {
		if idx.CollectionGroup == "assertions" && idx.QueryScope == "COLLECTION" {
			assert.Equal(t, want, idx.Fields)
			found = true
		}
	}
	assert.True(t, found, "no composite index for the assertions collection")
}
