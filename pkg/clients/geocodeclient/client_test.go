package geocodeclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mapboxResponse = `{
  "type": "FeatureCollection",
  "features": [
    {"id": "place.1", "place_name": "College Station, Texas, United States", "center": [-96.3344, 30.628], "bbox": [-96.4, 30.5, -96.2, 30.7]},
    {"id": "broken", "place_name": "No center"}
  ]
}`

func TestForward(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "/geocoding/v5/mapbox.places/College%20Station.json", r.URL.EscapedPath())
		assert.Equal(t, "tok", r.URL.Query().Get("access_token"))
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(mapboxResponse))
	}))
	defer server.Close()

	client := NewClient("tok", server.URL)

	places, err := client.Forward(context.Background(), "  College Station ")
	require.NoError(t, err)

	require.Len(t, places, 1)
	assert.Equal(t, "place.1", places[0].ID)
	assert.InDelta(t, 30.628, places[0].Center.Lat, 1e-9)
	assert.InDelta(t, -96.3344, places[0].Center.Lng, 1e-9)
	assert.Len(t, places[0].BBox, 4)

	// Second lookup is served from cache
	_, err = client.Forward(context.Background(), "college station")
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestForward_CacheExpires(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(`{"features": []}`))
	}))
	defer server.Close()

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	client := NewClient("tok", server.URL)
	client.now = func() time.Time { return now }

	_, err := client.Forward(context.Background(), "Boston")
	require.NoError(t, err)
	now = now.Add(cacheTTL + time.Second)
	_, err = client.Forward(context.Background(), "Boston")
	require.NoError(t, err)

	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestForward_ExpiredEntriesAreEvicted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"features": []}`))
	}))
	defer server.Close()

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	client := NewClient("tok", server.URL)
	client.now = func() time.Time { return now }

	for _, q := range []string{"Boston", "Austin", "Denver"} {
		_, err := client.Forward(context.Background(), q)
		require.NoError(t, err)
	}
	assert.Len(t, client.cache, 3)

	now = now.Add(cacheTTL + time.Second)
	_, err := client.Forward(context.Background(), "Seattle")
	require.NoError(t, err)

	assert.Len(t, client.cache, 1)
	assert.Contains(t, client.cache, "seattle")
}

func TestForward_EmptyQuery(t *testing.T) {
	client := NewClient("tok", "http://unused")

	_, err := client.Forward(context.Background(), "   ")

	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestForward_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Not Authorized - Invalid Token", http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewClient("bad", server.URL)

	_, err := client.Forward(context.Background(), "Boston")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
}
