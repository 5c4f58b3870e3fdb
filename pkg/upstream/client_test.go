package upstream

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/datarequests/pkg/models"
	"github.com/platinummonkey/datarequests/pkg/observability"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, cfg Config, opts ...Option) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg.BaseURL = server.URL + "/v1"
	client, err := NewClient(cfg, opts...)
	require.NoError(t, err)
	return client
}

func TestNewClient_InvalidBaseURL(t *testing.T) {
	for _, base := range []string{"", "not a url", "/relative"} {
		_, err := NewClient(Config{BaseURL: base})
		assert.Error(t, err, base)
	}
}

func TestRun_PostSendsFiltersAndToken(t *testing.T) {
	var gotBody map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/customers", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"identifiers":[{"id":"1"},{"id":"2"}],"next":""}`)
	}, Config{APIKey: "secret"})

	filters := map[string]any{"and": []any{map[string]any{"segment": map[string]any{"id": 4.0}}}}
	rd, err := client.Run(context.Background(), &models.DataRequest{
		Route:         "customers",
		Method:        "post",
		Configuration: map[string]any{ConfigFilters: filters},
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"filter": filters}, gotBody)
	payload := rd.Data.(map[string]any)
	assert.Len(t, payload["identifiers"], 2)
}

func TestRun_GetSendsScalarConfigAsQuery(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/campaigns/7/metrics", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "days", q.Get("period"))
		assert.Equal(t, "30", q.Get("steps"))
		assert.Equal(t, "true", q.Get("series"))
		assert.False(t, q.Has("nested"))
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, `{"metric":{"series":{"sent":[1,2,3]}}}`)
	}, Config{})

	_, err := client.Run(context.Background(), &models.DataRequest{
		Route: "campaigns/7/metrics",
		Configuration: map[string]any{
			"period": "days",
			"steps":  30.0,
			"series": true,
			"nested": map[string]any{"a": 1},
		},
	})
	require.NoError(t, err)
}

func TestRun_StatusErrorCarriesPayload(t *testing.T) {
	metrics := observability.NewNopMetrics()
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"meta":{"error":"bad key"}}`)
	}, Config{}, WithMetrics(metrics))

	_, err := client.Run(context.Background(), &models.DataRequest{Route: "customers", Method: "POST"})
	require.Error(t, err)

	se, ok := IsStatusError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, se.StatusCode)
	assert.Equal(t, map[string]any{"meta": map[string]any{"error": "bad key"}}, se.Body)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.UpstreamRequestsTotal.WithLabelValues("POST", "401")))
}

func TestRun_NonJSONBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, "upstream exploded")
	}, Config{})

	_, err := client.Run(context.Background(), &models.DataRequest{Route: "customers"})
	se, ok := IsStatusError(err)
	require.True(t, ok)
	assert.Equal(t, "upstream exploded", se.Body)
}

func TestRun_ResponseSizeBound(t *testing.T) {
	body := `[` + strings.Repeat(`"item",`, 40) + `"last"]`

	t.Run("body over the bound is an error", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, body)
		}, Config{MaxResponseBytes: int64(len(body)) - 1})

		rd, err := client.Run(context.Background(), &models.DataRequest{Route: "customers"})
		require.ErrorIs(t, err, ErrResponseTooLarge)
		assert.Nil(t, rd)
		_, isStatus := IsStatusError(err)
		assert.False(t, isStatus)
	})

	t.Run("body at the bound decodes", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, body)
		}, Config{MaxResponseBytes: int64(len(body))})

		rd, err := client.Run(context.Background(), &models.DataRequest{Route: "customers"})
		require.NoError(t, err)
		assert.Len(t, rd.Data, 41)
	})

	t.Run("oversized error reply is still too large", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = io.WriteString(w, body)
		}, Config{MaxResponseBytes: 8})

		_, err := client.Run(context.Background(), &models.DataRequest{Route: "customers"})
		assert.ErrorIs(t, err, ErrResponseTooLarge)
	})
}

func TestRun_SuccessWithInvalidJSON(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"identifiers":[{"id":"1"}`)
	}, Config{})

	rd, err := client.Run(context.Background(), &models.DataRequest{Route: "customers"})
	require.ErrorIs(t, err, ErrInvalidResponse)
	assert.Nil(t, rd)
}

func TestRun_EmptySuccessBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}, Config{})

	rd, err := client.Run(context.Background(), &models.DataRequest{Route: "customers", Method: "DELETE"})
	require.NoError(t, err)
	assert.Nil(t, rd.Data)
}

func TestRun_ItemsLimitCapsLists(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[1,2,3,4,5]`)
	}, Config{})

	rd, err := client.Run(context.Background(), &models.DataRequest{Route: "campaigns", ItemsLimit: 3})
	require.NoError(t, err)
	assert.Equal(t, []any{1.0, 2.0, 3.0}, rd.Data)
}

func TestRun_Timeout(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}, Config{Timeout: 50 * time.Millisecond})

	_, err := client.Run(context.Background(), &models.DataRequest{Route: "customers"})
	require.Error(t, err)
	_, isStatus := IsStatusError(err)
	assert.False(t, isStatus)
}

func TestRun_RateLimitHonoursContext(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[]`)
	}, Config{RateLimit: 0.001, RateBurst: 1})

	_, err := client.Run(context.Background(), &models.DataRequest{Route: "customers"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = client.Run(ctx, &models.DataRequest{Route: "customers"})
	assert.Error(t, err)
}

func TestCapItems(t *testing.T) {
	assert.Equal(t, "scalar", capItems("scalar", 1))
	assert.Equal(t, []any{1, 2}, capItems([]any{1, 2}, 0))

	m := map[string]any{"a": []any{1, 2, 3}, "b": 5}
	assert.Equal(t, map[string]any{"a": []any{1}, "b": 5}, capItems(m, 1))
}
