package scanner

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBinanceSourceGetCandles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/klines", r.URL.Path)
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		assert.Equal(t, "15m", r.URL.Query().Get("interval"))
		w.Write([]byte(`[
			[1709251200000,"50000","50500","49900","50400","123.5",1709252099999,"0",0,"0","0","0"],
			[1709252100000,"50400","50700","50300","50600","98.1",1709252999999,"0",0,"0","0","0"]
		]`))
	}))
	defer srv.Close()

	source, err := NewBinanceSource("")
	require.NoError(t, err)
	source.base = srv.URL

	candles, err := source.GetCandles(context.Background(), "BTC-USDT", "15m", 100)
	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.InDelta(t, 50000, candles[0].Open, 1e-9)
	assert.InDelta(t, 50600, candles[1].Close, 1e-9)
	assert.Equal(t, "BTC-USDT", candles[0].Symbol)
	assert.Equal(t, "binance", candles[0].Source)
	assert.True(t, candles[1].Timestamp.After(candles[0].Timestamp))
}

func TestBinanceSourceRejectsUnknownTimeframe(t *testing.T) {
	source, err := NewBinanceSource("")
	require.NoError(t, err)
	_, err = source.GetCandles(context.Background(), "BTCUSDT", "7m", 100)
	assert.Error(t, err)
}

func TestBinanceSourceGetCurrentPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/ticker/price", r.URL.Path)
		w.Write([]byte(`{"symbol":"BTCUSDT","price":"50123.45"}`))
	}))
	defer srv.Close()

	source, err := NewBinanceSource("")
	require.NoError(t, err)
	source.base = srv.URL

	price, ok, err := source.GetCurrentPrice(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.InDelta(t, 50123.45, price, 1e-9)
}

func TestBinanceSourceBadRequestFailsFast(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"code":-1121,"msg":"Invalid symbol."}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	source, err := NewBinanceSource("")
	require.NoError(t, err)
	source.base = srv.URL

	_, err = source.GetCandles(context.Background(), "NOPEUSDT", "15m", 100)
	assert.Error(t, err)
}

func TestBinanceSourceRejectsBadProxy(t *testing.T) {
	_, err := NewBinanceSource("://bad")
	assert.Error(t, err)
}
