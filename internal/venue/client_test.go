package venue

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(srv.URL, "0xabc", 2*time.Second)
	require.NoError(t, err)
	return c
}

func TestOpenPositions_MixedNumberFormats(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/positions", r.URL.Path)
		require.Equal(t, "0xabc", r.URL.Query().Get("user"))
		require.Equal(t, "0", r.URL.Query().Get("sizeThreshold"))
		w.Header().Set("Content-Type", "application/json")
		// size/avgPrice 混用字符串和数字
		w.Write([]byte(`[
			{"conditionId": "0xm1", "size": "100", "avgPrice": "0.45"},
			{"conditionId": "0xm2", "size": 50, "avgPrice": 0.6}
		]`))
	})

	positions, err := c.OpenPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 2)

	require.Equal(t, "0xm1", positions[0].MarketID)
	require.Equal(t, "100", positions[0].Shares.String())
	require.Equal(t, "0.45", positions[0].AvgEntryPrice.String())
	require.Equal(t, "45", positions[0].Notional().String())

	require.Equal(t, "0xm2", positions[1].MarketID)
	require.Equal(t, "30", positions[1].Notional().String())
}

func TestOpenPositions_SkipsUnusableEntries(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"conditionId": "", "market": "", "size": 10, "avgPrice": 0.5},
			{"conditionId": "0xm1", "size": 0, "avgPrice": 0.5},
			{"conditionId": "0xm2", "size": -5, "avgPrice": 0.5},
			{"market": "0xm3", "size": 8, "avgPrice": "0.25"}
		]`))
	})

	positions, err := c.OpenPositions(context.Background())
	require.NoError(t, err)
	// 只有最后一条可用；conditionId 缺失时回退到 market 字段
	require.Len(t, positions, 1)
	require.Equal(t, "0xm3", positions[0].MarketID)
}

func TestOpenPositions_NullAndEmptySizes(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"conditionId": "0xm1", "size": null, "avgPrice": ""}]`))
	})

	positions, err := c.OpenPositions(context.Background())
	require.NoError(t, err)
	require.Empty(t, positions)
}

func TestOpenPositions_Non200(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := c.OpenPositions(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "status=500")
}

func TestOpenPositions_BadJSON(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"not": "an array"}`))
	})

	_, err := c.OpenPositions(context.Background())
	require.Error(t, err)
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient("", "0xabc", time.Second)
	require.Error(t, err)

	_, err = NewClient("https://example.com", "  ", time.Second)
	require.Error(t, err)
}

func TestOpenPositions_NilClient(t *testing.T) {
	var c *Client
	_, err := c.OpenPositions(context.Background())
	require.Error(t, err)
}
