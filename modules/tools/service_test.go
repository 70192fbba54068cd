package tools_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toolstack/toolstack/catalog"
	"github.com/toolstack/toolstack/entitlement"
	"github.com/toolstack/toolstack/handler"
	"github.com/toolstack/toolstack/identity"
	"github.com/toolstack/toolstack/modules/tools"
	"github.com/toolstack/toolstack/subscription"
	"github.com/toolstack/toolstack/usage"
)

type fixture struct {
	server *httptest.Server
	repo   catalog.Repository
	user   identity.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	repo := catalog.NewMemoryRepository()
	ledger := usage.NewMemoryStore()
	subs := subscription.NewMemoryStore()
	user := identity.User{ID: uuid.New(), Email: "jo@example.com", IsActive: true}
	users := identity.NewMemoryStore(user)

	evaluator := entitlement.NewEvaluator(repo, repo, repo, subscription.NewPlanSource(subs), ledger)
	svc := tools.NewService(repo, evaluator, ledger, usage.NewMemoryReserver(ledger),
		slog.Default(), handler.NewErrorHandler(slog.Default()))

	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(identity.RequireUser(users, slog.Default()))
		r.Mount("/tools", svc.Handle())
	})

	server := httptest.NewServer(r)
	t.Cleanup(server.Close)

	return &fixture{server: server, repo: repo, user: user}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, f.server.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set(identity.UserIDHeader, f.user.ID.String())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := f.server.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { res.Body.Close() })
	return res
}

func decodeBody(t *testing.T, res *http.Response, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(res.Body).Decode(v))
}

func seedPremiumTool(t *testing.T, repo catalog.Repository, freeLimit int64) catalog.Tool {
	t.Helper()
	tool, err := repo.CreateTool(t.Context(), catalog.Tool{
		Name:           "Background Remover",
		IsPremium:      true,
		FreeUsageLimit: freeLimit,
		IsActive:       true,
	})
	require.NoError(t, err)
	return tool
}

func TestListTools_IncludesAccessDecision(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	seedPremiumTool(t, f.repo, 3)

	res := f.do(t, http.MethodGet, "/tools", nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)

	var body struct {
		Data []struct {
			Name   string `json:"name"`
			Access struct {
				HasAccess     bool            `json:"has_access"`
				RemainingUses json.RawMessage `json:"remaining_uses"`
			} `json:"access"`
		} `json:"data"`
	}
	decodeBody(t, res, &body)
	require.Len(t, body.Data, 1)
	assert.Equal(t, "Background Remover", body.Data[0].Name)
	assert.True(t, body.Data[0].Access.HasAccess)
	assert.Equal(t, "3", string(body.Data[0].Access.RemainingUses))
}

func TestStartUsage_ConsumesFreeTier(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	tool := seedPremiumTool(t, f.repo, 2)
	path := fmt.Sprintf("/tools/%s/usage", tool.ID)

	for i := range 2 {
		res := f.do(t, http.MethodPost, path, map[string]any{"input": map[string]any{"n": i}})
		assert.Equal(t, http.StatusCreated, res.StatusCode)
	}

	res := f.do(t, http.MethodPost, path, map[string]any{})
	assert.Equal(t, http.StatusForbidden, res.StatusCode)

	var body struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	decodeBody(t, res, &body)
	assert.Equal(t, "free tier usage limit reached", body.Error.Message)
}

func TestStartUsage_NonPremiumNeverGated(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	tool, err := f.repo.CreateTool(t.Context(), catalog.Tool{Name: "Image Resizer", IsActive: true})
	require.NoError(t, err)
	path := fmt.Sprintf("/tools/%s/usage", tool.ID)

	for range 5 {
		res := f.do(t, http.MethodPost, path, map[string]any{})
		assert.Equal(t, http.StatusCreated, res.StatusCode)
	}
}

func TestUpdateUsage_Lifecycle(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	tool := seedPremiumTool(t, f.repo, 5)

	res := f.do(t, http.MethodPost, fmt.Sprintf("/tools/%s/usage", tool.ID), map[string]any{})
	require.Equal(t, http.StatusCreated, res.StatusCode)

	var created struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	decodeBody(t, res, &created)

	path := "/tools/usage/" + created.Data.ID

	res = f.do(t, http.MethodPut, path, map[string]any{"status": "completed", "result": map[string]any{"url": "x"}})
	assert.Equal(t, http.StatusOK, res.StatusCode)

	// Terminal records reject further updates.
	res = f.do(t, http.MethodPut, path, map[string]any{"status": "failed"})
	assert.Equal(t, http.StatusConflict, res.StatusCode)

	// Unknown status values never reach the store.
	res = f.do(t, http.MethodPut, path, map[string]any{"status": "done"})
	assert.Equal(t, http.StatusUnprocessableEntity, res.StatusCode)
}

func TestUpdateUsage_NotFound(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	res := f.do(t, http.MethodPut, "/tools/usage/"+uuid.NewString(), map[string]any{"status": "completed"})
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestCheckAccess(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	tool := seedPremiumTool(t, f.repo, 0)

	res := f.do(t, http.MethodGet, fmt.Sprintf("/tools/%s/access", tool.ID), nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)

	var body struct {
		Data struct {
			HasAccess bool   `json:"has_access"`
			Reason    string `json:"reason"`
		} `json:"data"`
	}
	decodeBody(t, res, &body)
	assert.False(t, body.Data.HasAccess)
	assert.Equal(t, "free tier usage limit reached", body.Data.Reason)
}

func TestRequireUser_RejectsMissingHeader(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	res, err := f.server.Client().Get(f.server.URL + "/tools")
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestRequireUser_RejectsUnknownUser(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	req, err := http.NewRequest(http.MethodGet, f.server.URL+"/tools", nil)
	require.NoError(t, err)
	req.Header.Set(identity.UserIDHeader, uuid.NewString())

	res, err := f.server.Client().Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestUsageStats(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	tool := seedPremiumTool(t, f.repo, 10)

	for range 3 {
		res := f.do(t, http.MethodPost, fmt.Sprintf("/tools/%s/usage", tool.ID), map[string]any{})
		require.Equal(t, http.StatusCreated, res.StatusCode)
	}

	res := f.do(t, http.MethodGet, "/tools/usage-stats", nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)

	var body struct {
		Data []struct {
			ToolID string `json:"tool_id"`
			Count  int64  `json:"count"`
		} `json:"data"`
		Meta map[string]any `json:"meta"`
	}
	decodeBody(t, res, &body)
	require.Len(t, body.Data, 1)
	assert.Equal(t, tool.ID.String(), body.Data[0].ToolID)
	assert.Equal(t, int64(3), body.Data[0].Count)
	assert.Contains(t, body.Meta, "period_start")
}
