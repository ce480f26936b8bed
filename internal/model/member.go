// Package model defines the entities of the application and how they are
// read from and written to documents.
//
// Each entity has a Fields method (entity → document fields) and a
// FromDocument function (document → entity). FromDocument validates every
// required field and fails with apperror.ErrMalformedRecord instead of
// returning a half-populated value.
package model

import "github.com/sakif/time-estimator/internal/docstore"

// Collection and field names as stored. They are part of the stored data
// format: renaming one orphans existing documents.
const (
	CollectionMembers = "members"

	FieldName     = "name"
	FieldAuthorID = "authorId"
)

// Member is a tracked team member belonging to one author.
// ID is empty until the store assigns one on creation.
type Member struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name"`
	AuthorID string `json:"authorId"`
}

// Fields returns the document fields of m. The ID is not a field.
func (m Member) Fields() docstore.Fields {
	return docstore.Fields{
		FieldName:     m.Name,
		FieldAuthorID: m.AuthorID,
	}
}

// MemberFromDocument converts a members document into a Member.
func MemberFromDocument(doc docstore.Document) (Member, error) {
	d := newDecoder(CollectionMembers, doc)
	m := Member{
		ID:       doc.ID,
		Name:     d.requiredString(FieldName),
		AuthorID: d.requiredString(FieldAuthorID),
	}
	if err := d.err(); err != nil {
		return Member{}, err
	}
	return m, nil
}
