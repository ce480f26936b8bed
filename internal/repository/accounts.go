package repository

import (
	"context"
	"strings"

	"github.com/sakif/time-estimator/internal/apperror"
	"github.com/sakif/time-estimator/internal/docstore"
	"github.com/sakif/time-estimator/internal/model"
)

// compile-time check that *Accounts implements AccountRepository
var _ AccountRepository = (*Accounts)(nil)

// Accounts reads and writes the users collection.
//
// Emails are stored lower-cased so lookups are case-insensitive with a plain
// equality filter.
type Accounts struct {
	store docstore.Store
}

func NewAccounts(store docstore.Store) *Accounts {
	return &Accounts{store: store}
}

func (r *Accounts) Create(ctx context.Context, a model.Account) (*model.Account, error) {
	a.Email = normalizeEmail(a.Email)
	doc, err := r.store.Insert(ctx, model.CollectionUsers, a.Fields())
	if err != nil {
		return nil, apperror.RemoteQuery("accounts: creating", err)
	}

	created, err := model.AccountFromDocument(doc)
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (r *Accounts) GetByID(ctx context.Context, id string) (*model.Account, error) {
	doc, err := r.store.Get(ctx, model.CollectionUsers, id)
	if err != nil {
		return nil, apperror.RemoteQuery("accounts: getting "+id, err)
	}
	if doc == nil {
		return nil, nil
	}

	a, err := model.AccountFromDocument(*doc)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *Accounts) GetByEmail(ctx context.Context, email string) (*model.Account, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, nil
	}
	return r.findOne(ctx, model.FieldEmail, email, "accounts: getting by email")
}

func (r *Accounts) GetByGitHubID(ctx context.Context, githubID int64) (*model.Account, error) {
	if githubID == 0 {
		return nil, nil
	}
	return r.findOne(ctx, model.FieldGitHubID, githubID, "accounts: getting by github id")
}

// findOne returns the first account whose field equals value.
func (r *Accounts) findOne(ctx context.Context, field string, value any, op string) (*model.Account, error) {
	docs, err := r.store.Find(ctx, docstore.Collection(model.CollectionUsers).Where(field, value))
	if err != nil {
		return nil, apperror.RemoteQuery(op, err)
	}
	if len(docs) == 0 {
		return nil, nil
	}

	a, err := model.AccountFromDocument(docs[0])
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
