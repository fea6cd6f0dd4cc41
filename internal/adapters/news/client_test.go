package news

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock() func() time.Time {
	return func() time.Time {
		return time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	}
}

func TestSearchDropsUndatedAndStaleArticles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "srag brasil", r.URL.Query().Get("q"))
		assert.Equal(t, "30", r.URL.Query().Get("days"))

		json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"title": "Recente", "url": "https://a", "content": "x", "published_date": "2026-08-20"},
				{"title": "Sem data", "url": "https://b", "content": "y"},
				{"title": "Antiga", "url": "https://c", "content": "z", "published_date": "2026-01-01"},
			},
		})
	}))
	defer srv.Close()

	client := New(srv.URL, "", WithClock(fixedClock()))
	articles, err := client.Search(context.Background(), "srag brasil", 30, 10)
	require.NoError(t, err)

	require.Len(t, articles, 1)
	assert.Equal(t, "Recente", articles[0].Title)
}

func TestSearchOrdersNewestFirstAndCaps(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"title": "Meio", "url": "https://m", "published_date": "2026-08-15"},
				{"title": "Nova", "url": "https://n", "published_date": "2026-08-25T10:00:00Z"},
				{"title": "Velha", "url": "https://v", "published_date": "2026-08-05"},
			},
		})
	}))
	defer srv.Close()

	client := New(srv.URL, "", WithClock(fixedClock()))
	articles, err := client.Search(context.Background(), "srag", 30, 2)
	require.NoError(t, err)

	require.Len(t, articles, 2)
	assert.Equal(t, "Nova", articles[0].Title)
	assert.Equal(t, "Meio", articles[1].Title)
}

func TestSearchSendsAPIKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]any{"results": []any{}})
	}))
	defer srv.Close()

	client := New(srv.URL, "secret", WithClock(fixedClock()))
	_, err := client.Search(context.Background(), "srag", 7, 5)
	require.NoError(t, err)
}

func TestSearchSurfacesServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := New(srv.URL, "", WithClock(fixedClock()))
	_, err := client.Search(context.Background(), "srag", 7, 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}
