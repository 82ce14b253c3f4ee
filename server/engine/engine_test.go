package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/loomhq/loom/server/loom"
	"github.com/loomhq/loom/server/search"
	"github.com/stretchr/testify/require"
)

func TestNewClientValidatesBaseURL(t *testing.T) {
	_, err := NewClient(Options{BaseURL: "not a url"})
	require.Error(t, err)

	_, err = NewClient(Options{BaseURL: "/relative/only"})
	require.Error(t, err)

	c, err := NewClient(Options{BaseURL: "http://engine:4000"})
	require.NoError(t, err)
	require.NotNil(t, c)
}

func TestPaginate(t *testing.T) {
	var (
		mu       sync.Mutex
		gotPath  string
		gotAuth  string
		gotBody  map[string]interface{}
		requests int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		requests++
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		json.NewEncoder(w).Encode(loom.ElementConnection{
			Edges: []loom.ElementEdge{
				{Node: &loom.Element{ID: "e1", EntityType: "Report"}, Cursor: "c1"},
			},
			PageInfo: loom.PageInfo{EndCursor: "c1", HasNextPage: false, GlobalCount: 1},
		})
	}))
	defer srv.Close()

	c, err := NewClient(Options{BaseURL: srv.URL, Token: "secret"})
	require.NoError(t, err)

	before := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	conn, err := c.Paginate(context.Background(), search.Request{
		User:   &loom.User{ID: "u1"},
		Target: search.TargetEntities,
		First:  50,
		Before: &before,
	})
	require.NoError(t, err)
	require.Len(t, conn.Edges, 1)
	require.Equal(t, "e1", conn.Edges[0].Node.ID)
	require.Equal(t, 1, conn.PageInfo.GlobalCount)

	require.Equal(t, 1, requests)
	require.Equal(t, "/internal/search/paginate", gotPath)
	require.Equal(t, "Bearer secret", gotAuth)
	require.Equal(t, "u1", gotBody["user_id"])
	require.Equal(t, "entities", gotBody["index"])
	require.Equal(t, float64(50), gotBody["first"])
}

func TestRetriesServerErrors(t *testing.T) {
	var (
		mu       sync.Mutex
		requests int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		requests++
		if requests < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, err := NewClient(Options{BaseURL: srv.URL})
	require.NoError(t, err)

	err = c.DeleteFile(context.Background(), loom.AutomationUser(), "file-1")
	require.NoError(t, err)
	require.Equal(t, 3, requests)
}

func TestClientErrorsAreNotRetried(t *testing.T) {
	var (
		mu       sync.Mutex
		requests int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		requests++
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	c, err := NewClient(Options{BaseURL: srv.URL})
	require.NoError(t, err)

	err = c.DeleteByInternalID(context.Background(), loom.AutomationUser(), "i1", "Report", true)
	require.Error(t, err)
	require.Equal(t, 1, requests)
}

func TestExecuteActionTimeoutIsNotRetried(t *testing.T) {
	var (
		mu       sync.Mutex
		requests int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requests++
		mu.Unlock()
		// outlive the client timeout; the action may have been applied, so
		// the client must not send it again
		time.Sleep(300 * time.Millisecond)
	}))
	defer srv.Close()

	c, err := NewClient(Options{BaseURL: srv.URL, Timeout: 50 * time.Millisecond})
	require.NoError(t, err)

	action := loom.TaskAction{Type: loom.ActionReplace}
	err = c.ExecuteAction(context.Background(), loom.AutomationUser(), action, "e1")
	require.Error(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 1, requests)
}

func TestNotFoundIsTyped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c, err := NewClient(Options{BaseURL: srv.URL})
	require.NoError(t, err)

	err = c.DeleteFile(context.Background(), nil, "gone")
	require.True(t, loom.IsNotFound(err))
}

func TestExecuteAction(t *testing.T) {
	var gotBody map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/internal/actions/execute", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, err := NewClient(Options{BaseURL: srv.URL})
	require.NoError(t, err)

	action := loom.TaskAction{Type: loom.ActionShare, Context: map[string]interface{}{"organization": "org-1"}}
	require.NoError(t, c.ExecuteAction(context.Background(), loom.AutomationUser(), action, "e1"))

	require.Equal(t, "SHARE", gotBody["type"])
	require.Equal(t, "e1", gotBody["element_id"])
	require.Equal(t, loom.AutomationUserID, gotBody["actor_id"])
	require.Equal(t, map[string]interface{}{"organization": "org-1"}, gotBody["context"])
}
