package sheetsclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := New(context.Background(), option.WithEndpoint(server.URL+"/"), option.WithoutAuthentication())
	require.NoError(t, err)
	return client
}

func TestCreateSheet(t *testing.T) {
	var body map[string]interface{}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/spreadsheets/sheet-1:batchUpdate"), r.URL.Path)
		json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"replies": [{"addSheet": {"properties": {"sheetId": 42, "title": "Open tasks"}}}]}`))
	})

	id, err := client.CreateSheet(context.Background(), "sheet-1", "Open tasks")
	require.NoError(t, err)

	assert.Equal(t, int64(42), id)
	requests := body["requests"].([]interface{})
	props := requests[0].(map[string]interface{})["addSheet"].(map[string]interface{})["properties"].(map[string]interface{})
	assert.Equal(t, "Open tasks", props["title"])
}

func TestCreateSheet_EmptyReply(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"replies": []}`))
	})

	_, err := client.CreateSheet(context.Background(), "sheet-1", "Open tasks")

	assert.ErrorContains(t, err, "unexpected response")
}

func TestAppendRows(t *testing.T) {
	var body struct {
		Values [][]interface{} `json:"values"`
	}
	var query string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.RawQuery
		assert.Contains(t, r.URL.Path, "/spreadsheets/sheet-1/values/")
		json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{}`))
	})

	err := client.AppendRows(context.Background(), "sheet-1", "'Open tasks'!A1", [][]interface{}{
		{"Title", "Urgency"},
		{"Grocery run", "high"},
	})
	require.NoError(t, err)

	assert.Contains(t, query, "valueInputOption=RAW")
	require.Len(t, body.Values, 2)
	assert.Equal(t, "Grocery run", body.Values[1][0])
}

func TestAppendRows_APIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": {"code": 404, "message": "not found"}}`, http.StatusNotFound)
	})

	err := client.AppendRows(context.Background(), "missing", "A1", [][]interface{}{{"x"}})

	assert.ErrorContains(t, err, "failed to append rows")
}
