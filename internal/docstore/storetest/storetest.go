// Package storetest is a conformance suite every docstore backend runs from
// its own tests:
//
//	func TestConformance(t *testing.T) {
//	    storetest.Run(t, func(t *testing.T) docstore.Store { return newTestStore(t) })
//	}
//
// The factory must return an empty store; the suite closes nothing itself.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/time-estimator/internal/docstore"
)

// Factory returns a fresh, empty store for one subtest.
type Factory func(t *testing.T) docstore.Store

// Run executes the suite.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	t.Run("InsertAssignsIDAndGetReturnsFields", func(t *testing.T) { testInsertGet(t, newStore(t)) })
	t.Run("GetUnknownIDReturnsNil", func(t *testing.T) { testGetUnknown(t, newStore(t)) })
	t.Run("DeleteIsIdempotent", func(t *testing.T) { testDeleteIdempotent(t, newStore(t)) })
	t.Run("FindFiltersByEquality", func(t *testing.T) { testFindFilters(t, newStore(t)) })
	t.Run("FindKeepsInsertionOrder", func(t *testing.T) { testFindInsertionOrder(t, newStore(t)) })
	t.Run("FindOrdersByTimeDescending", func(t *testing.T) { testFindOrderDesc(t, newStore(t)) })
	t.Run("FindOrdersByNumberAscending", func(t *testing.T) { testFindOrderAsc(t, newStore(t)) })
	t.Run("FindOrderLeavesOutNulls", func(t *testing.T) { testFindOrderNulls(t, newStore(t)) })
	t.Run("FindDescendingTiesNewestFirst", func(t *testing.T) { testFindDescTies(t, newStore(t)) })
	t.Run("DeletedDocumentsLeaveFind", func(t *testing.T) { testDeleteThenFind(t, newStore(t)) })
	t.Run("ServerTimestampIsResolved", func(t *testing.T) { testServerTimestamp(t, newStore(t)) })
	t.Run("FindOnEmptyCollection", func(t *testing.T) { testFindEmpty(t, newStore(t)) })
	t.Run("InvalidNamesAreRejected", func(t *testing.T) { testInvalidNames(t, newStore(t)) })
}

func insert(t *testing.T, s docstore.Store, collection string, fields docstore.Fields) docstore.Document {
	t.Helper()
	doc, err := s.Insert(context.Background(), collection, fields)
	require.NoError(t, err)
	require.NotEmpty(t, doc.ID)
	return doc
}

func ids(docs []docstore.Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.ID
	}
	return out
}

func testInsertGet(t *testing.T, s docstore.Store) {
	ctx := context.Background()
	created := time.Date(2024, 3, 1, 10, 30, 0, 123456789, time.UTC)

	doc := insert(t, s, "history", docstore.Fields{
		"taskDificulty":                 3,
		"taskCompletitionTimeInMinutes": 45,
		"authorId":                      "A1",
		"memberId":                      "M1",
		"createdAt":                     created,
	})

	got, err := s.Get(ctx, "history", doc.ID)
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, doc.ID, got.ID)
	assert.Equal(t, int64(3), got.Fields["taskDificulty"])
	assert.Equal(t, int64(45), got.Fields["taskCompletitionTimeInMinutes"])
	assert.Equal(t, "A1", got.Fields["authorId"])
	assert.Equal(t, "M1", got.Fields["memberId"])

	ts, ok := got.Fields["createdAt"].(time.Time)
	require.True(t, ok, "createdAt should come back as time.Time, got %T", got.Fields["createdAt"])
	assert.True(t, ts.Equal(created), "createdAt = %v, want %v", ts, created)
}

func testGetUnknown(t *testing.T, s docstore.Store) {
	got, err := s.Get(context.Background(), "members", "does-not-exist")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func testDeleteIdempotent(t *testing.T, s docstore.Store) {
	ctx := context.Background()
	doc := insert(t, s, "members", docstore.Fields{"name": "Ana", "authorId": "A1"})

	require.NoError(t, s.Delete(ctx, "members", doc.ID))
	require.NoError(t, s.Delete(ctx, "members", doc.ID), "second delete must not fail")
	require.NoError(t, s.Delete(ctx, "members", "never-existed"))

	got, err := s.Get(ctx, "members", doc.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	found, err := s.Find(ctx, docstore.Collection("members").Where("authorId", "A1"))
	require.NoError(t, err)
	assert.Empty(t, found)
}

func testFindFilters(t *testing.T, s docstore.Store) {
	ctx := context.Background()
	a := insert(t, s, "members", docstore.Fields{"name": "Ana", "authorId": "A1"})
	insert(t, s, "members", docstore.Fields{"name": "Beto", "authorId": "A2"})
	c := insert(t, s, "members", docstore.Fields{"name": "Caro", "authorId": "A1"})
	insert(t, s, "history", docstore.Fields{"authorId": "A1", "memberId": a.ID})

	found, err := s.Find(ctx, docstore.Collection("members").Where("authorId", "A1"))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{a.ID, c.ID}, ids(found))
	for _, d := range found {
		assert.Equal(t, "A1", d.Fields["authorId"])
	}

	both, err := s.Find(ctx, docstore.Collection("members").Where("authorId", "A1").Where("name", "Caro"))
	require.NoError(t, err)
	assert.Equal(t, []string{c.ID}, ids(both))

	none, err := s.Find(ctx, docstore.Collection("members").Where("authorId", "nobody"))
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func testFindInsertionOrder(t *testing.T, s docstore.Store) {
	var want []string
	for _, name := range []string{"zeta", "alpha", "mu", "beta"} {
		want = append(want, insert(t, s, "members", docstore.Fields{"name": name, "authorId": "A1"}).ID)
	}

	found, err := s.Find(context.Background(), docstore.Collection("members").Where("authorId", "A1"))
	require.NoError(t, err)
	assert.Equal(t, want, ids(found))
}

func testFindOrderDesc(t *testing.T, s docstore.Store) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mid := insert(t, s, "history", docstore.Fields{"authorId": "A1", "createdAt": base.Add(time.Hour)})
	oldest := insert(t, s, "history", docstore.Fields{"authorId": "A1", "createdAt": base})
	newest := insert(t, s, "history", docstore.Fields{"authorId": "A1", "createdAt": base.Add(48 * time.Hour)})
	insert(t, s, "history", docstore.Fields{"authorId": "A2", "createdAt": base.Add(72 * time.Hour)})

	found, err := s.Find(context.Background(),
		docstore.Collection("history").Where("authorId", "A1").OrderBy("createdAt", docstore.Desc))
	require.NoError(t, err)
	assert.Equal(t, []string{newest.ID, mid.ID, oldest.ID}, ids(found))
}

func testFindOrderAsc(t *testing.T, s docstore.Store) {
	five := insert(t, s, "history", docstore.Fields{"memberId": "M1", "taskDificulty": 5})
	one := insert(t, s, "history", docstore.Fields{"memberId": "M1", "taskDificulty": 1})
	three := insert(t, s, "history", docstore.Fields{"memberId": "M1", "taskDificulty": 3})
	insert(t, s, "history", docstore.Fields{"memberId": "M1"}) // no order field: left out

	found, err := s.Find(context.Background(),
		docstore.Collection("history").Where("memberId", "M1").OrderBy("taskDificulty", docstore.Asc))
	require.NoError(t, err)
	assert.Equal(t, []string{one.ID, three.ID, five.ID}, ids(found))
}

func testFindOrderNulls(t *testing.T, s docstore.Store) {
	kept := insert(t, s, "history", docstore.Fields{"memberId": "M1", "taskDificulty": 2})
	insert(t, s, "history", docstore.Fields{"memberId": "M1", "taskDificulty": nil})

	found, err := s.Find(context.Background(),
		docstore.Collection("history").Where("memberId", "M1").OrderBy("taskDificulty", docstore.Asc))
	require.NoError(t, err)
	assert.Equal(t, []string{kept.ID}, ids(found))
}

func testFindDescTies(t *testing.T, s docstore.Store) {
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	first := insert(t, s, "history", docstore.Fields{"authorId": "A1", "createdAt": at})
	second := insert(t, s, "history", docstore.Fields{"authorId": "A1", "createdAt": at})
	older := insert(t, s, "history", docstore.Fields{"authorId": "A1", "createdAt": at.Add(-time.Hour)})

	found, err := s.Find(context.Background(),
		docstore.Collection("history").Where("authorId", "A1").OrderBy("createdAt", docstore.Desc))
	require.NoError(t, err)
	assert.Equal(t, []string{second.ID, first.ID, older.ID}, ids(found))
}

func testDeleteThenFind(t *testing.T, s docstore.Store) {
	ctx := context.Background()
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	gone := insert(t, s, "history", docstore.Fields{"authorId": "A1", "memberId": "M1", "createdAt": at})
	kept := insert(t, s, "history", docstore.Fields{"authorId": "A1", "memberId": "M2", "createdAt": at.Add(time.Hour)})
	require.NoError(t, s.Delete(ctx, "history", gone.ID))

	byAuthor, err := s.Find(ctx, docstore.Collection("history").Where("authorId", "A1").OrderBy("createdAt", docstore.Desc))
	require.NoError(t, err)
	assert.Equal(t, []string{kept.ID}, ids(byAuthor))

	byMember, err := s.Find(ctx, docstore.Collection("history").Where("memberId", "M1"))
	require.NoError(t, err)
	assert.Empty(t, byMember)
}

func testServerTimestamp(t *testing.T, s docstore.Store) {
	before := time.Now().Add(-time.Minute)
	doc := insert(t, s, "history", docstore.Fields{"authorId": "A1", "createdAt": docstore.ServerTimestamp})

	ts, ok := doc.Fields["createdAt"].(time.Time)
	require.True(t, ok, "Insert should return the resolved timestamp, got %T", doc.Fields["createdAt"])
	assert.True(t, ts.After(before))

	got, err := s.Get(context.Background(), "history", doc.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	stored, ok := got.Fields["createdAt"].(time.Time)
	require.True(t, ok)
	assert.True(t, stored.Equal(ts), "stored %v, returned %v", stored, ts)
}

func testFindEmpty(t *testing.T, s docstore.Store) {
	found, err := s.Find(context.Background(), docstore.Collection("nothing_here").Where("authorId", "A1"))
	require.NoError(t, err)
	assert.Empty(t, found)
}

func testInvalidNames(t *testing.T, s docstore.Store) {
	ctx := context.Background()

	_, err := s.Insert(ctx, "members; DROP TABLE documents", docstore.Fields{"name": "x"})
	assert.ErrorIs(t, err, docstore.ErrInvalidName)

	_, err = s.Insert(ctx, "members", docstore.Fields{"na'me": "x"})
	assert.ErrorIs(t, err, docstore.ErrInvalidName)

	_, err = s.Find(ctx, docstore.Collection("members").Where("author.id", "A1"))
	assert.ErrorIs(t, err, docstore.ErrInvalidName)
}
