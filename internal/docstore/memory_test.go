package docstore_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/time-estimator/internal/docstore"
	"github.com/sakif/time-estimator/internal/docstore/storetest"
)

func TestMemoryConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) docstore.Store {
		s := docstore.NewMemory()
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestMemory_ClockResolvesServerTimestamp(t *testing.T) {
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.FixedZone("UTC-3", -3*3600))
	s := docstore.NewMemory(docstore.WithClock(func() time.Time { return fixed }))

	doc, err := s.Insert(context.Background(), "history", docstore.Fields{"createdAt": docstore.ServerTimestamp})
	require.NoError(t, err)

	got := doc.Fields["createdAt"].(time.Time)
	assert.True(t, got.Equal(fixed))
	assert.Equal(t, time.UTC, got.Location())
}

func TestMemory_ReturnedFieldsAreCopies(t *testing.T) {
	s := docstore.NewMemory()
	ctx := context.Background()

	doc, err := s.Insert(ctx, "members", docstore.Fields{"name": "Ana"})
	require.NoError(t, err)
	doc.Fields["name"] = "mutated"

	got, err := s.Get(ctx, "members", doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ana", got.Fields["name"])
}

func TestMemory_ClosedStoreFails(t *testing.T) {
	s := docstore.NewMemory()
	require.NoError(t, s.Close())

	_, err := s.Insert(context.Background(), "members", docstore.Fields{"name": "Ana"})
	assert.ErrorIs(t, err, docstore.ErrClosed)

	_, err = s.Find(context.Background(), docstore.Collection("members"))
	assert.ErrorIs(t, err, docstore.ErrClosed)
}

func TestMemory_CancelledContext(t *testing.T) {
	s := docstore.NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Find(ctx, docstore.Collection("members"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, s.Len("members"))
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name    string
		in      any
		want    any
		wantErr bool
	}{
		{name: "int", in: 3, want: int64(3)},
		{name: "uint8", in: uint8(7), want: int64(7)},
		{name: "float32", in: float32(1.5), want: float64(1.5)},
		{name: "json integer", in: json.Number("45"), want: int64(45)},
		{name: "json float", in: json.Number("4.5"), want: float64(4.5)},
		{name: "string", in: "A1", want: "A1"},
		{name: "nil", in: nil, want: nil},
		{name: "slice rejected", in: []string{"a"}, wantErr: true},
		{name: "map rejected", in: map[string]any{}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := docstore.Normalize(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEqual_NumbersIgnoreRepresentation(t *testing.T) {
	assert.True(t, docstore.Equal(int64(3), float64(3)))
	assert.False(t, docstore.Equal(int64(3), "3"))
	assert.False(t, docstore.Equal(nil, ""))
}

func TestJSONCodec_TimesSurvive(t *testing.T) {
	ts := time.Date(2024, 2, 29, 23, 59, 59, 999999999, time.UTC)
	data, err := docstore.EncodeJSON(docstore.Fields{"createdAt": ts, "minutes": int64(90), "name": "x"})
	require.NoError(t, err)

	fields, err := docstore.DecodeJSON(data)
	require.NoError(t, err)
	assert.True(t, fields["createdAt"].(time.Time).Equal(ts))
	assert.Equal(t, int64(90), fields["minutes"])
	assert.Equal(t, "x", fields["name"])
}

func TestJSONCodec_RejectsNestedObjects(t *testing.T) {
	_, err := docstore.DecodeJSON([]byte(`{"profile":{"age":3}}`))
	assert.Error(t, err)
}
