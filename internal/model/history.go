package model

import (
	"time"

	"github.com/sakif/time-estimator/internal/apperror"
	"github.com/sakif/time-estimator/internal/docstore"
)

const (
	CollectionHistory = "history"

	FieldTaskDificulty                 = "taskDificulty"
	FieldTaskCompletitionTimeInMinutes = "taskCompletitionTimeInMinutes"
	FieldMemberID                      = "memberId"
	FieldCreatedAt                     = "createdAt"
)

// HistoryRegistry is one recorded task completion for a member.
//
// CreatedAt is mandatory: it is stamped by the store at insert time and is
// what author listings are ordered by.
type HistoryRegistry struct {
	ID                            string    `json:"id,omitempty"`
	TaskDificulty                 int       `json:"taskDificulty"`
	TaskCompletitionTimeInMinutes int       `json:"taskCompletitionTimeInMinutes"`
	AuthorID                      string    `json:"authorId"`
	MemberID                      string    `json:"memberId"`
	CreatedAt                     time.Time `json:"createdAt"`
}

// Fields returns the document fields of r, with createdAt left to the store.
func (r HistoryRegistry) Fields() docstore.Fields {
	return docstore.Fields{
		FieldTaskDificulty:                 r.TaskDificulty,
		FieldTaskCompletitionTimeInMinutes: r.TaskCompletitionTimeInMinutes,
		FieldAuthorID:                      r.AuthorID,
		FieldMemberID:                      r.MemberID,
		FieldCreatedAt:                     docstore.ServerTimestamp,
	}
}

// Validate checks the values a caller supplies when recording a registry.
func (r HistoryRegistry) Validate() error {
	switch {
	case r.AuthorID == "":
		return apperror.ValidationFailed(FieldAuthorID, "authorId is required")
	case r.MemberID == "":
		return apperror.ValidationFailed(FieldMemberID, "memberId is required")
	case r.TaskDificulty <= 0:
		return apperror.ValidationFailed(FieldTaskDificulty, "task difficulty must be a positive number")
	case r.TaskCompletitionTimeInMinutes <= 0:
		return apperror.ValidationFailed(FieldTaskCompletitionTimeInMinutes, "completion time must be a positive number of minutes")
	}
	return nil
}

// RegistryFromDocument converts a history document into a HistoryRegistry.
func RegistryFromDocument(doc docstore.Document) (HistoryRegistry, error) {
	d := newDecoder(CollectionHistory, doc)
	r := HistoryRegistry{
		ID:                            doc.ID,
		AuthorID:                      d.requiredString(FieldAuthorID),
		MemberID:                      d.requiredString(FieldMemberID),
		TaskDificulty:                 d.requiredInt(FieldTaskDificulty),
		TaskCompletitionTimeInMinutes: d.requiredInt(FieldTaskCompletitionTimeInMinutes),
		CreatedAt:                     d.requiredTime(FieldCreatedAt),
	}
	if err := d.err(); err != nil {
		return HistoryRegistry{}, err
	}
	return r, nil
}
