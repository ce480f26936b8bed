package repository

import (
	"context"
	"strings"

	"github.com/sakif/time-estimator/internal/apperror"
	"github.com/sakif/time-estimator/internal/docstore"
	"github.com/sakif/time-estimator/internal/model"
)

// compile-time check that *Members implements MembersRepository
var _ MembersRepository = (*Members)(nil)

// Members reads and writes the members collection.
type Members struct {
	store   docstore.Store
	session CurrentUser
}

func NewMembers(store docstore.Store, session CurrentUser) *Members {
	return &Members{store: store, session: session}
}

func (r *Members) GetByAuthor(ctx context.Context, authorID string) ([]model.Member, error) {
	docs, err := r.store.Find(ctx, docstore.Collection(model.CollectionMembers).
		Where(model.FieldAuthorID, authorID))
	if err != nil {
		return nil, apperror.RemoteQuery("members: listing by author", err)
	}

	members := make([]model.Member, 0, len(docs))
	for _, doc := range docs {
		m, err := model.MemberFromDocument(doc)
		if err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, nil
}

func (r *Members) GetByID(ctx context.Context, memberID string) (*model.Member, error) {
	doc, err := r.store.Get(ctx, model.CollectionMembers, memberID)
	if err != nil {
		return nil, apperror.RemoteQuery("members: getting "+memberID, err)
	}
	if doc == nil {
		return nil, nil
	}

	m, err := model.MemberFromDocument(*doc)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// CreateMember checks the session and the name before touching the store:
// an unauthenticated or invalid call never reaches it.
func (r *Members) CreateMember(ctx context.Context, name string) (*model.Member, error) {
	user := r.session.User()
	if user == nil {
		return nil, apperror.Unauthenticated("creating a member requires a signed-in user")
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperror.ValidationFailed(model.FieldName, "member name is required")
	}

	m := model.Member{Name: name, AuthorID: user.ID}
	doc, err := r.store.Insert(ctx, model.CollectionMembers, m.Fields())
	if err != nil {
		return nil, apperror.RemoteQuery("members: creating", err)
	}
	m.ID = doc.ID
	return &m, nil
}

func (r *Members) DeleteMember(ctx context.Context, memberID string) error {
	if err := r.store.Delete(ctx, model.CollectionMembers, memberID); err != nil {
		return apperror.RemoteQuery("members: deleting "+memberID, err)
	}
	return nil
}
