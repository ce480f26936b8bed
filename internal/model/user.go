package model

import (
	"time"

	"github.com/sakif/time-estimator/internal/docstore"
)

// Sign-in providers recorded on User.Provider.
const (
	ProviderPassword = "password"
	ProviderGitHub   = "github"
)

// User is the identity of whoever is signed in right now.
//
// It is owned by the session store and written verbatim (as JSON) to the
// durable session cache, which is why the token and its expiry live here:
// after a restart the provider is handed Token to resume expiry tracking.
type User struct {
	ID          string    `json:"id"`
	Email       string    `json:"email,omitempty"`
	DisplayName string    `json:"displayName,omitempty"`
	AvatarURL   string    `json:"avatarUrl,omitempty"`
	Provider    string    `json:"provider"`
	Token       string    `json:"token,omitempty"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// Clone returns a copy of u, or nil for a nil receiver.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}

const (
	CollectionUsers = "users"

	FieldEmail        = "email"
	FieldDisplayName  = "displayName"
	FieldPasswordHash = "passwordHash"
	FieldGitHubID     = "githubId"
	FieldAvatarURL    = "avatarUrl"
)

// Account is a stored identity that can sign in.
//
// An account signs in either with a password (PasswordHash set) or through
// GitHub (GitHubID set). GitHub IDs are integers, so int64 avoids overflow
// for large account numbers.
type Account struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"displayName"`
	PasswordHash string    `json:"-"`
	GitHubID     int64     `json:"githubId,omitempty"`
	AvatarURL    string    `json:"avatarUrl,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Fields returns the document fields of a, with createdAt left to the store.
// Empty optional fields are omitted so they never match an equality filter.
func (a Account) Fields() docstore.Fields {
	f := docstore.Fields{
		FieldEmail:       a.Email,
		FieldDisplayName: a.DisplayName,
		FieldCreatedAt:   docstore.ServerTimestamp,
	}
	if a.PasswordHash != "" {
		f[FieldPasswordHash] = a.PasswordHash
	}
	if a.GitHubID != 0 {
		f[FieldGitHubID] = a.GitHubID
	}
	if a.AvatarURL != "" {
		f[FieldAvatarURL] = a.AvatarURL
	}
	return f
}

// User builds the session identity for a, signed in through provider.
func (a Account) User(provider, token string, expiresAt time.Time) *User {
	return &User{
		ID:          a.ID,
		Email:       a.Email,
		DisplayName: a.DisplayName,
		AvatarURL:   a.AvatarURL,
		Provider:    provider,
		Token:       token,
		ExpiresAt:   expiresAt,
	}
}

// AccountFromDocument converts a users document into an Account.
// GitHub accounts may have no email, so only displayName is required.
func AccountFromDocument(doc docstore.Document) (Account, error) {
	d := newDecoder(CollectionUsers, doc)
	a := Account{
		ID:           doc.ID,
		Email:        d.optionalString(FieldEmail),
		DisplayName:  d.requiredString(FieldDisplayName),
		PasswordHash: d.optionalString(FieldPasswordHash),
		GitHubID:     d.optionalInt64(FieldGitHubID),
		AvatarURL:    d.optionalString(FieldAvatarURL),
		CreatedAt:    d.optionalTime(FieldCreatedAt),
	}
	if err := d.err(); err != nil {
		return Account{}, err
	}
	return a, nil
}
