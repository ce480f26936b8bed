package model

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/time-estimator/internal/apperror"
	"github.com/sakif/time-estimator/internal/docstore"
)

func TestMemberFromDocument(t *testing.T) {
	m, err := MemberFromDocument(docstore.Document{
		ID:     "m1",
		Fields: docstore.Fields{"name": "Ana", "authorId": "u1"},
	})
	require.NoError(t, err)
	assert.Equal(t, Member{ID: "m1", Name: "Ana", AuthorID: "u1"}, m)
}

func TestMemberFromDocument_Malformed(t *testing.T) {
	tests := []struct {
		name   string
		doc    docstore.Document
		field  string
		reason string
	}{
		{"missing name", docstore.Document{ID: "m1", Fields: docstore.Fields{"authorId": "u1"}}, "name", "is missing"},
		{"null name", docstore.Document{ID: "m1", Fields: docstore.Fields{"name": nil, "authorId": "u1"}}, "name", "is missing"},
		{"numeric name", docstore.Document{ID: "m1", Fields: docstore.Fields{"name": int64(3), "authorId": "u1"}}, "name", "is not a string"},
		{"empty author", docstore.Document{ID: "m1", Fields: docstore.Fields{"name": "Ana", "authorId": ""}}, "authorId", "is empty"},
		{"missing id", docstore.Document{Fields: docstore.Fields{"name": "Ana", "authorId": "u1"}}, "id", "is missing"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := MemberFromDocument(tt.doc)
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperror.ErrMalformedRecord))

			var appErr *apperror.AppError
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, tt.field, appErr.Field)
			assert.Contains(t, appErr.Message, tt.reason)
			assert.Contains(t, appErr.Message, "members/")
		})
	}
}

func TestRegistryFromDocument_NumericRepresentations(t *testing.T) {
	created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.FixedZone("CET", 3600))

	tests := []struct {
		name       string
		difficulty any
		minutes    any
	}{
		{"go ints", 3, 45},
		{"int64", int64(3), int64(45)},
		{"integral floats", 3.0, 45.0},
		{"json numbers", json.Number("3"), json.Number("45")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := RegistryFromDocument(docstore.Document{
				ID: "h1",
				Fields: docstore.Fields{
					"taskDificulty":                 tt.difficulty,
					"taskCompletitionTimeInMinutes": tt.minutes,
					"authorId":                      "u1",
					"memberId":                      "m1",
					"createdAt":                     created,
				},
			})
			require.NoError(t, err)
			assert.Equal(t, 3, r.TaskDificulty)
			assert.Equal(t, 45, r.TaskCompletitionTimeInMinutes)
			assert.Equal(t, time.UTC, r.CreatedAt.Location())
			assert.True(t, created.Equal(r.CreatedAt))
		})
	}
}

func TestRegistryFromDocument_Malformed(t *testing.T) {
	valid := func() docstore.Fields {
		return docstore.Fields{
			"taskDificulty":                 int64(2),
			"taskCompletitionTimeInMinutes": int64(30),
			"authorId":                      "u1",
			"memberId":                      "m1",
			"createdAt":                     time.Now(),
		}
	}

	tests := []struct {
		name   string
		mutate func(docstore.Fields)
		field  string
	}{
		{"fractional difficulty", func(f docstore.Fields) { f["taskDificulty"] = 2.5 }, "taskDificulty"},
		{"string minutes", func(f docstore.Fields) { f["taskCompletitionTimeInMinutes"] = "30" }, "taskCompletitionTimeInMinutes"},
		{"difficulty out of range", func(f docstore.Fields) { f["taskDificulty"] = 1e300 }, "taskDificulty"},
		{"minutes out of range", func(f docstore.Fields) { f["taskCompletitionTimeInMinutes"] = -1e300 }, "taskCompletitionTimeInMinutes"},
		{"difficulty of exactly 2^63", func(f docstore.Fields) { f["taskDificulty"] = 9223372036854775808.0 }, "taskDificulty"},
		{"NaN minutes", func(f docstore.Fields) { f["taskCompletitionTimeInMinutes"] = math.NaN() }, "taskCompletitionTimeInMinutes"},
		{"missing createdAt", func(f docstore.Fields) { delete(f, "createdAt") }, "createdAt"},
		{"createdAt not a time", func(f docstore.Fields) { f["createdAt"] = int64(1700000000) }, "createdAt"},
		{"missing memberId", func(f docstore.Fields) { delete(f, "memberId") }, "memberId"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := valid()
			tt.mutate(f)
			_, err := RegistryFromDocument(docstore.Document{ID: "h1", Fields: f})
			require.Error(t, err)

			var appErr *apperror.AppError
			require.True(t, errors.As(err, &appErr))
			assert.ErrorIs(t, err, apperror.ErrMalformedRecord)
			assert.Equal(t, tt.field, appErr.Field)
		})
	}
}

func TestHistoryRegistryFields_UsesServerTimestamp(t *testing.T) {
	r := HistoryRegistry{TaskDificulty: 1, TaskCompletitionTimeInMinutes: 10, AuthorID: "u1", MemberID: "m1",
		CreatedAt: time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)}
	f := r.Fields()
	assert.Equal(t, docstore.ServerTimestamp, f["createdAt"])
	assert.Len(t, f, 5)
}

func TestHistoryRegistryValidate(t *testing.T) {
	ok := HistoryRegistry{TaskDificulty: 1, TaskCompletitionTimeInMinutes: 10, AuthorID: "u1", MemberID: "m1"}
	assert.NoError(t, ok.Validate())

	tests := []struct {
		name  string
		r     HistoryRegistry
		field string
	}{
		{"no author", HistoryRegistry{TaskDificulty: 1, TaskCompletitionTimeInMinutes: 10, MemberID: "m1"}, "authorId"},
		{"no member", HistoryRegistry{TaskDificulty: 1, TaskCompletitionTimeInMinutes: 10, AuthorID: "u1"}, "memberId"},
		{"zero difficulty", HistoryRegistry{TaskCompletitionTimeInMinutes: 10, AuthorID: "u1", MemberID: "m1"}, "taskDificulty"},
		{"negative minutes", HistoryRegistry{TaskDificulty: 1, TaskCompletitionTimeInMinutes: -5, AuthorID: "u1", MemberID: "m1"}, "taskCompletitionTimeInMinutes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.r.Validate()
			require.ErrorIs(t, err, apperror.ErrValidation)
			var appErr *apperror.AppError
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, tt.field, appErr.Field)
		})
	}
}

func TestAccountRoundTrip(t *testing.T) {
	a := Account{Email: "ana@example.com", DisplayName: "Ana", GitHubID: 1234567, AvatarURL: "https://avatars/ana"}
	f := a.Fields()
	assert.NotContains(t, f, "passwordHash")
	f["createdAt"] = time.Unix(1700000000, 0)

	got, err := AccountFromDocument(docstore.Document{ID: "u1", Fields: f})
	require.NoError(t, err)
	assert.Equal(t, "u1", got.ID)
	assert.Equal(t, int64(1234567), got.GitHubID)
	assert.Equal(t, "Ana", got.DisplayName)
	assert.Empty(t, got.PasswordHash)
}

func TestAccountFromDocument_RequiresDisplayName(t *testing.T) {
	_, err := AccountFromDocument(docstore.Document{ID: "u1", Fields: docstore.Fields{"email": "a@b.c"}})
	assert.ErrorIs(t, err, apperror.ErrMalformedRecord)
}

func TestUserClone(t *testing.T) {
	var nilUser *User
	assert.Nil(t, nilUser.Clone())

	u := &User{ID: "u1", DisplayName: "Ana"}
	c := u.Clone()
	c.DisplayName = "changed"
	assert.Equal(t, "Ana", u.DisplayName)
}

func TestAccountUser(t *testing.T) {
	exp := time.Now().Add(time.Hour)
	a := Account{ID: "u1", Email: "ana@example.com", DisplayName: "Ana"}
	u := a.User(ProviderPassword, "tok", exp)
	assert.Equal(t, &User{ID: "u1", Email: "ana@example.com", DisplayName: "Ana", Provider: ProviderPassword, Token: "tok", ExpiresAt: exp}, u)
}
