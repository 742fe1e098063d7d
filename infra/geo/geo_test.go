package geo

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coregeo "github.com/kilianp07/erbalance/core/geo"
	"github.com/kilianp07/erbalance/core/model"
)

func TestNominatimQueryHint(t *testing.T) {
	n := NewNominatim(Config{})
	assert.Equal(t, "Dadar Station, Mumbai, India", n.Query(" Dadar Station "))
	assert.Equal(t, "Andheri, mumbai", n.Query("Andheri, mumbai"))
}

func TestNominatimResolve(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		assert.Equal(t, DefaultUserAgent, r.Header.Get("User-Agent"))
		switch r.URL.Query().Get("q") {
		case "Dadar, Mumbai, India":
			_, _ = w.Write([]byte(`[{"lat":"19.0178","lon":"72.8478","display_name":"Dadar"}]`))
		case "boom, Mumbai, India":
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
		default:
			_, _ = w.Write([]byte(`[]`))
		}
	}))
	defer srv.Close()

	n := NewNominatim(Config{URL: srv.URL})
	c, err := n.Resolve(context.Background(), "Dadar")
	require.NoError(t, err)
	assert.Equal(t, model.Coordinates{Lat: 19.0178, Lon: 72.8478}, c)

	_, err = n.Resolve(context.Background(), "Atlantis")
	assert.True(t, errors.Is(err, coregeo.ErrNotFound))

	_, err = n.Resolve(context.Background(), "boom")
	assert.Error(t, err)
	assert.False(t, errors.Is(err, coregeo.ErrNotFound))
	assert.Equal(t, int32(3), hits.Load())
}

func TestCachingResolverUsesSQLiteCache(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`[{"lat":"19.1","lon":"72.9"}]`))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "geo.db")
	cache, err := NewSQLiteCache(path)
	require.NoError(t, err)
	r := coregeo.NewCachingResolver(NewNominatim(Config{URL: srv.URL}), cache, time.Second, nil)
	_, err = r.Resolve(context.Background(), "Bandra West")
	require.NoError(t, err)
	_, err = r.Resolve(context.Background(), "  bandra   WEST ")
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())
	require.NoError(t, cache.Close())

	cache, err = NewSQLiteCache(path)
	require.NoError(t, err)
	defer func() { _ = cache.Close() }()
	r = coregeo.NewCachingResolver(NewNominatim(Config{URL: srv.URL}), cache, time.Second, nil)
	c, err := r.Resolve(context.Background(), "Bandra West")
	require.NoError(t, err)
	assert.Equal(t, model.Coordinates{Lat: 19.1, Lon: 72.9}, c)
	assert.Equal(t, int32(1), hits.Load())
}
