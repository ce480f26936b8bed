package repository

import (
	"context"

	"github.com/sakif/time-estimator/internal/apperror"
	"github.com/sakif/time-estimator/internal/docstore"
	"github.com/sakif/time-estimator/internal/model"
)

// compile-time check that *HistoryRegistries implements HistoryRegistriesRepository
var _ HistoryRegistriesRepository = (*HistoryRegistries)(nil)

// HistoryRegistries reads and writes the history collection.
//
// Listing by author needs the (authorId, createdAt) index the sqlite and
// postgres backends create with their schema.
type HistoryRegistries struct {
	store docstore.Store
}

func NewHistoryRegistries(store docstore.Store) *HistoryRegistries {
	return &HistoryRegistries{store: store}
}

func (r *HistoryRegistries) GetByAuthor(ctx context.Context, authorID string) ([]model.HistoryRegistry, error) {
	q := docstore.Collection(model.CollectionHistory).
		Where(model.FieldAuthorID, authorID).
		OrderBy(model.FieldCreatedAt, docstore.Desc)
	return r.find(ctx, q, "history: listing by author")
}

func (r *HistoryRegistries) GetByMember(ctx context.Context, memberID string) ([]model.HistoryRegistry, error) {
	q := docstore.Collection(model.CollectionHistory).
		Where(model.FieldMemberID, memberID)
	return r.find(ctx, q, "history: listing by member")
}

func (r *HistoryRegistries) find(ctx context.Context, q docstore.Query, op string) ([]model.HistoryRegistry, error) {
	docs, err := r.store.Find(ctx, q)
	if err != nil {
		return nil, apperror.RemoteQuery(op, err)
	}

	registries := make([]model.HistoryRegistry, 0, len(docs))
	for _, doc := range docs {
		reg, err := model.RegistryFromDocument(doc)
		if err != nil {
			return nil, err
		}
		registries = append(registries, reg)
	}
	return registries, nil
}

// AddRegistry persists the fields of reg as given. Its ID and CreatedAt are
// ignored; the returned registry carries the assigned ones.
func (r *HistoryRegistries) AddRegistry(ctx context.Context, reg model.HistoryRegistry) (*model.HistoryRegistry, error) {
	doc, err := r.store.Insert(ctx, model.CollectionHistory, reg.Fields())
	if err != nil {
		return nil, apperror.RemoteQuery("history: adding registry", err)
	}

	created, err := model.RegistryFromDocument(doc)
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (r *HistoryRegistries) DeleteRegistry(ctx context.Context, registryID string) error {
	if err := r.store.Delete(ctx, model.CollectionHistory, registryID); err != nil {
		return apperror.RemoteQuery("history: deleting "+registryID, err)
	}
	return nil
}
