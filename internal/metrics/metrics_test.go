package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	m := New(prometheus.NewRegistry())

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/users/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	for _, id := range []string{"1", "2", "3"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users/"+id, nil))
		require.Equal(t, http.StatusTeapot, rec.Code)
	}

	assert.Equal(t, 3.0, testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("GET", "/users/{id}", "418")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.httpRequestsInFlight))
}

func TestDomainCollectors(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.Signup("created")
	m.Signup("created")
	m.Signup("duplicate")
	m.Confirmation("confirmed")
	m.ReferralBoost(4)
	m.Delivery("email", "sent")
	m.QueueDepth(7)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.signups.WithLabelValues("created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.signups.WithLabelValues("duplicate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.confirmations.WithLabelValues("confirmed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.deliveries.WithLabelValues("email", "sent")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.queueDepth))
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.Signup("created")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), `waitlist_signups_total{outcome="created"} 1`)
}
