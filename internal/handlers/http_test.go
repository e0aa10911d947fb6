package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/idot-digital/events-api/internal/models"
	"github.com/idot-digital/events-api/internal/store"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) GetByID(ctx context.Context, id string) (*models.Event, error) {
	args := m.Called(ctx, id)
	e, _ := args.Get(0).(*models.Event)
	return e, args.Error(1)
}

func (m *mockStore) Add(ctx context.Context, fields models.Fields) ([]models.Event, error) {
	args := m.Called(ctx, fields)
	events, _ := args.Get(0).([]models.Event)
	return events, args.Error(1)
}

func (m *mockStore) Update(ctx context.Context, id string, patch models.Fields) ([]models.Event, error) {
	args := m.Called(ctx, id, patch)
	events, _ := args.Get(0).([]models.Event)
	return events, args.Error(1)
}

func (m *mockStore) Delete(ctx context.Context, id string) ([]models.Event, error) {
	args := m.Called(ctx, id)
	events, _ := args.Get(0).([]models.Event)
	return events, args.Error(1)
}

func (m *mockStore) ChangeReaction(ctx context.Context, id, reactionType string) (int64, error) {
	args := m.Called(ctx, id, reactionType)
	return args.Get(0).(int64), args.Error(1)
}

const prefix = "/api/event"

func newRouter(s store.EventStore) *http.ServeMux {
	mux := http.NewServeMux()
	NewHTTPHandlers(s, slog.New(slog.NewTextHandler(io.Discard, nil))).Mount(mux, prefix)
	return mux
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, r))
	return rec
}

func TestReactionRoutes(t *testing.T) {
	tests := []struct {
		name         string
		path         string
		wantID       string
		wantReaction string
	}{
		{name: "like", path: "/like/42", wantID: "42", wantReaction: "likes"},
		{name: "dislike", path: "/dislike/42", wantID: "42", wantReaction: "dislike"},
		{name: "generic", path: "/42/hearts", wantID: "42", wantReaction: "hearts"},
		{name: "generic keeps reaction verbatim", path: "/7/Thumbs-Up", wantID: "7", wantReaction: "Thumbs-Up"},
		{name: "generic with like as reaction type", path: "/42/like", wantID: "42", wantReaction: "like"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := new(mockStore)
			s.On("ChangeReaction", mock.Anything, tt.wantID, tt.wantReaction).Return(int64(5), nil).Once()

			rec := do(t, newRouter(s), http.MethodPut, prefix+tt.path, "")

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.Equal(t, "5", rec.Body.String())
			s.AssertExpectations(t)
		})
	}
}

func TestGetEventPassesResultThrough(t *testing.T) {
	s := new(mockStore)
	event := &models.Event{ID: "abc", Fields: models.Fields{"title": "Launch"}, Reactions: map[string]int64{"likes": 2}}
	s.On("GetByID", mock.Anything, "abc").Return(event, nil)

	rec := do(t, newRouter(s), http.MethodGet, prefix+"/abc", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":"abc","title":"Launch","likes":2}`, rec.Body.String())
	s.AssertExpectations(t)
}

func TestGetMissingEventIsNullWithOK(t *testing.T) {
	s := new(mockStore)
	s.On("GetByID", mock.Anything, "nope").Return(nil, nil)

	rec := do(t, newRouter(s), http.MethodGet, prefix+"/nope", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "null", rec.Body.String())
}

func TestAddEventReturnsCreated(t *testing.T) {
	for _, path := range []string{prefix, prefix + "/"} {
		t.Run(path, func(t *testing.T) {
			s := new(mockStore)
			s.On("Add", mock.Anything, mock.MatchedBy(func(f models.Fields) bool {
				return f["title"] == "Gig"
			})).Return([]models.Event{{ID: "1", Fields: models.Fields{"title": "Gig"}}}, nil)

			rec := do(t, newRouter(s), http.MethodPost, path, `{"title":"Gig"}`)

			assert.Equal(t, http.StatusCreated, rec.Code)
			assert.JSONEq(t, `[{"id":"1","title":"Gig"}]`, rec.Body.String())
			s.AssertExpectations(t)
		})
	}
}

func TestAddEventWithEmptyBody(t *testing.T) {
	s := new(mockStore)
	s.On("Add", mock.Anything, models.Fields{}).Return([]models.Event{{ID: "1"}}, nil)

	rec := do(t, newRouter(s), http.MethodPost, prefix, "")

	assert.Equal(t, http.StatusCreated, rec.Code)
	s.AssertExpectations(t)
}

func TestMalformedBodyIsRejected(t *testing.T) {
	s := new(mockStore)

	rec := do(t, newRouter(s), http.MethodPut, prefix+"/1", `{"title":`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	s.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
}

func TestUpdateEventPassesIDAndPatch(t *testing.T) {
	s := new(mockStore)
	s.On("Update", mock.Anything, "9", models.Fields{"title": "New"}).
		Return([]models.Event{{ID: "9", Fields: models.Fields{"title": "New"}}}, nil)

	rec := do(t, newRouter(s), http.MethodPut, prefix+"/9", `{"title":"New"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"id":"9","title":"New"}]`, rec.Body.String())
	s.AssertExpectations(t)
}

func TestDeleteEvent(t *testing.T) {
	s := new(mockStore)
	s.On("Delete", mock.Anything, "9").Return([]models.Event{}, nil)

	rec := do(t, newRouter(s), http.MethodDelete, prefix+"/9", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", rec.Body.String())
	s.AssertExpectations(t)
}

func TestStoreFailureIsInternalServerError(t *testing.T) {
	boom := errors.New("connection refused to 10.0.0.1")
	tests := []struct {
		name   string
		method string
		path   string
		body   string
		setup  func(s *mockStore)
	}{
		{"get", http.MethodGet, "/1", "", func(s *mockStore) {
			s.On("GetByID", mock.Anything, "1").Return(nil, boom)
		}},
		{"add", http.MethodPost, "/", "{}", func(s *mockStore) {
			s.On("Add", mock.Anything, mock.Anything).Return(nil, boom)
		}},
		{"update", http.MethodPut, "/1", "{}", func(s *mockStore) {
			s.On("Update", mock.Anything, "1", mock.Anything).Return(nil, boom)
		}},
		{"delete", http.MethodDelete, "/1", "", func(s *mockStore) {
			s.On("Delete", mock.Anything, "1").Return(nil, boom)
		}},
		{"reaction", http.MethodPut, "/like/1", "", func(s *mockStore) {
			s.On("ChangeReaction", mock.Anything, "1", "likes").Return(int64(0), store.ErrEventNotFound)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := new(mockStore)
			tt.setup(s)

			rec := do(t, newRouter(s), tt.method, prefix+tt.path, tt.body)

			assert.Equal(t, http.StatusInternalServerError, rec.Code)
			assert.NotContains(t, rec.Body.String(), "10.0.0.1")
			s.AssertExpectations(t)
		})
	}
}

func TestUnknownMethodIsRejectedByMux(t *testing.T) {
	rec := do(t, newRouter(new(mockStore)), http.MethodPatch, prefix+"/1", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

// Exercises the routes against a real store.
func TestEventLifecycle(t *testing.T) {
	router := newRouter(store.NewMemory())

	rec := do(t, router, http.MethodPost, prefix, `{"title":"first"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = do(t, router, http.MethodPost, prefix, `{"title":"second"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var events []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	require.Len(t, events, 2)
	id := events[1]["id"].(string)

	rec = do(t, router, http.MethodPut, prefix+"/like/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1", rec.Body.String())

	rec = do(t, router, http.MethodPut, prefix+"/"+id+"/likes", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2", rec.Body.String())

	rec = do(t, router, http.MethodPut, prefix+"/dislike/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1", rec.Body.String())

	rec = do(t, router, http.MethodPut, prefix+"/"+id, `{"title":"renamed"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	assert.Equal(t, "renamed", events[1]["title"])

	rec = do(t, router, http.MethodGet, prefix+"/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "renamed", got["title"])
	assert.Equal(t, float64(2), got["likes"])
	assert.Equal(t, float64(1), got["dislike"])

	rec = do(t, router, http.MethodDelete, prefix+"/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	require.Len(t, events, 1)
	assert.NotEqual(t, id, events[0]["id"])

	rec = do(t, router, http.MethodGet, prefix+"/"+id, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "null", rec.Body.String())
}
