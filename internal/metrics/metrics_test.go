package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/time-estimator/internal/docstore"
	"github.com/sakif/time-estimator/internal/model"
	"github.com/sakif/time-estimator/internal/router"
)

func TestInstrumentedStore(t *testing.T) {
	ctx := context.Background()
	c := NewCollector(prometheus.NewRegistry())
	mem := docstore.NewMemory()
	store := InstrumentStore(mem, c)

	doc, err := store.Insert(ctx, "members", docstore.Fields{"name": "Ana"})
	require.NoError(t, err)
	got, err := store.Get(ctx, "members", doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.ID, got.ID)
	_, err = store.Find(ctx, docstore.Collection("members"))
	require.NoError(t, err)
	require.NoError(t, store.Delete(ctx, "members", doc.ID))

	_, err = store.Find(ctx, docstore.Collection("bad name"))
	require.ErrorIs(t, err, docstore.ErrInvalidName)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.storeOps.WithLabelValues("insert", "members", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.storeOps.WithLabelValues("get", "members", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.storeOps.WithLabelValues("find", "members", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.storeOps.WithLabelValues("delete", "members", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.storeOps.WithLabelValues("find", "bad name", "error")))

	require.NoError(t, store.Close())
	assert.Equal(t, 0, mem.Len("members"))
}

func TestObserveNavigationAndSession(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	c.ObserveNavigation(router.Navigation{To: router.To(router.Login), Redirected: true})
	c.ObserveNavigation(router.Navigation{To: router.To(router.MyTeam)})
	c.ObserveSession(&model.User{ID: "u1"})
	c.ObserveSession(nil)
	c.ObserveSession(nil)
	c.SetFeedClients(3)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.navigations.WithLabelValues("login", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.navigations.WithLabelValues("my-team", "false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.sessionEvents.WithLabelValues("signed_in")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.sessionEvents.WithLabelValues("ended")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.feedClients))
}

func TestHandlerServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.ObserveSession(nil)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.True(t, strings.Contains(string(body), "estimator_session_events_total"))
}
