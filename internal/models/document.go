package models

import "time"

// Document is the logical record for one uploaded file, keyed by the
// caller-supplied document id. Exactly one exists per ID.
type Document struct {
	ID             string    `firestore:"-" gorm:"primaryKey;size:255" json:"id" cbor:"id"`
	OrganizationID string    `firestore:"organizationId" gorm:"size:255;index" json:"organizationId" cbor:"organizationId"`
	Title          string    `firestore:"title,omitempty" json:"title,omitempty" cbor:"title,omitempty"`
	FileURL        string    `firestore:"fileUrl,omitempty" json:"fileUrl,omitempty" cbor:"fileUrl,omitempty"`
	FileName       string    `firestore:"fileName,omitempty" json:"fileName,omitempty" cbor:"fileName,omitempty"`
	ContentType    string    `firestore:"contentType,omitempty" json:"contentType,omitempty" cbor:"contentType,omitempty"`
	CreatedAt      time.Time `firestore:"createdAt" json:"createdAt" cbor:"createdAt"`
	UpdatedAt      time.Time `firestore:"updatedAt" json:"updatedAt" cbor:"updatedAt"`
}

// DocumentUpdate carries the mutable display fields refreshed after a
// successful run. Nil fields are left untouched; Title is only applied
// when it is non-empty.
type DocumentUpdate struct {
	Title       *string
	FileURL     *string
	FileName    *string
	ContentType *string
}

// Assertion records that a provenance record (by CID) was produced for a
// document. Assertions are append-only.
type Assertion struct {
	ID             string    `firestore:"-" gorm:"primaryKey;size:36" json:"id" cbor:"id"`
	CID            string    `firestore:"cid" gorm:"column:cid;size:255;not null" json:"cid" cbor:"cid"`
	DocumentID     string    `firestore:"documentId" gorm:"size:255;index;not null" json:"documentId" cbor:"documentId"`
	OrganizationID string    `firestore:"organizationId" gorm:"size:255;index" json:"organizationId" cbor:"organizationId"`
	CreatedAt      time.Time `firestore:"createdAt" json:"createdAt" cbor:"createdAt"`
}
