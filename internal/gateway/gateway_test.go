package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wealthops/constitution/internal/broker"
	"github.com/wealthops/constitution/internal/domain"
	"github.com/wealthops/constitution/internal/ledger"
	"github.com/wealthops/constitution/internal/marketdata"
)

var (
	_ marketdata.Feed = (*Client)(nil)
	_ ledger.Ledger   = (*Client)(nil)
	_ broker.Executor = (*Client)(nil)
)

func TestGetSnapshot(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/snapshots/XYZ", r.URL.Path)
		json.NewEncoder(w).Encode(domain.MarketSnapshot{
			Symbol:    "XYZ",
			Price:     decimal.RequireFromString("101.25"),
			ATR5:      decimal.RequireFromString("2.4"),
			VIX:       decimal.RequireFromString("17"),
			Timestamp: time.Date(2026, 3, 6, 15, 0, 0, 0, time.UTC),
		})
	}))
	defer ts.Close()

	c := New(ts.URL, 5*time.Second)
	snap, err := c.GetSnapshot(context.Background(), "XYZ")
	require.NoError(t, err)
	assert.True(t, snap.Price.Equal(decimal.RequireFromString("101.25")))
	assert.True(t, snap.ATR5.Equal(decimal.RequireFromString("2.4")))
}

func TestPositionsAndLedgerReads(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/sleeves/sleeve-a/positions":
			json.NewEncoder(w).Encode([]domain.Position{{
				Symbol:      "XYZ",
				Strike:      decimal.RequireFromString("100"),
				Right:       domain.RightPut,
				Quantity:    -2,
				EntryCredit: decimal.RequireFromString("5.00"),
				CurrentMark: decimal.RequireFromString("6.10"),
			}})
		case "/v1/sleeves/sleeve-a/equity":
			json.NewEncoder(w).Encode(map[string]string{"equity": "150000"})
		case "/v1/sleeves/sleeve-a/gains":
			json.NewEncoder(w).Encode(map[string]string{"quarterly_gains": "12000"})
		case "/v1/accounts/sleeve-a/value":
			json.NewEncoder(w).Encode(map[string]string{"account_value": "150000"})
		default:
			http.NotFound(w, r)
		}
	}))
	defer ts.Close()

	c := New(ts.URL, 5*time.Second)
	ctx := context.Background()

	positions, err := c.Positions(ctx, "sleeve-a")
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, domain.RightPut, positions[0].Right)

	equity, err := c.SleeveEquity(ctx, "sleeve-a")
	require.NoError(t, err)
	assert.True(t, equity.Equal(decimal.RequireFromString("150000")))

	gains, err := c.QuarterlyGains(ctx, "sleeve-a")
	require.NoError(t, err)
	assert.True(t, gains.Equal(decimal.RequireFromString("12000")))

	value, err := c.AccountValue(ctx, "sleeve-a")
	require.NoError(t, err)
	assert.True(t, value.Equal(decimal.RequireFromString("150000")))
}

func TestSubmitHedgeDeliversAck(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/orders/hedge", r.URL.Path)
		var order broker.HedgeOrder
		require.NoError(t, json.NewDecoder(r.Body).Decode(&order))
		json.NewEncoder(w).Encode(broker.Ack{
			OrderID:   order.OrderID,
			Accepted:  true,
			Timestamp: time.Now(),
		})
	}))
	defer ts.Close()

	c := New(ts.URL, 5*time.Second)
	acks, err := c.SubmitHedge(context.Background(), broker.HedgeOrder{
		OrderID: "order-1",
		Sleeve:  "sleeve-a",
		Leg:     broker.LegSPXPut,
		Strike:  decimal.RequireFromString("5400"),
		Budget:  decimal.RequireFromString("2000"),
	})
	require.NoError(t, err)

	select {
	case ack := <-acks:
		assert.Equal(t, "order-1", ack.OrderID)
		assert.True(t, ack.Accepted)
	case <-time.After(2 * time.Second):
		t.Fatal("no ack received")
	}
}

func TestSubmitReportsRejection(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "margin check failed", http.StatusUnprocessableEntity)
	}))
	defer ts.Close()

	c := New(ts.URL, 5*time.Second)
	acks, err := c.SubmitRoll(context.Background(), broker.RollOrder{OrderID: "order-2"})
	require.NoError(t, err)

	ack := <-acks
	assert.False(t, ack.Accepted)
	assert.Contains(t, ack.Reason, "unexpected status 422")
}

func TestGetErrorsOnBadStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer ts.Close()

	c := New(ts.URL, 5*time.Second)
	_, err := c.GetSnapshot(context.Background(), "XYZ")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}
