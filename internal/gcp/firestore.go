package gcp

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
)

// NewFirestoreClient opens databaseID in projectID, falling back to the
// project's default database when databaseID is empty. The client library
// routes to FIRESTORE_EMULATOR_HOST when it is set.
//
// Assertion listings filter on documentId and order by createdAt, which needs
// the composite index declared in firestore.indexes.json.
func NewFirestoreClient(ctx context.Context, projectID, databaseID string) (*firestore.Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore client")
	}
	if databaseID == "" {
		databaseID = firestore.DefaultDatabaseID
	}

	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client for database %s: %w", databaseID, err)
	}

	return client, nil
}
