package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeoutSetsDeadline(t *testing.T) {
	var deadline time.Time
	var ok bool

	r := mux.NewRouter()
	r.Use(Timeout(time.Minute))
	r.HandleFunc("/", func(w http.ResponseWriter, req *http.Request) {
		deadline, ok = req.Context().Deadline()
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(time.Minute), deadline, 5*time.Second)
}

func TestRecover(t *testing.T) {
	r := mux.NewRouter()
	r.Use(Recover())
	r.HandleFunc("/", func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})

	rec := httptest.NewRecorder()
	assert.NotPanics(t, func() {
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
