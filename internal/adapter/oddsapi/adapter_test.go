package oddsapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"OddsSync/internal/config"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

const providerPayload = `[
  {
    "id": "e912f3a",
    "sport_key": "soccer_epl",
    "commence_time": "2025-03-10T20:00:00Z",
    "home_team": "Arsenal",
    "away_team": "Chelsea",
    "bookmakers": [
      {
        "key": "pinnacle",
        "title": "Pinnacle",
        "markets": [
          {
            "key": "h2h",
            "outcomes": [
              {"name": "Arsenal", "price": 2.1},
              {"name": "Chelsea", "price": 3.4},
              {"name": "Draw", "price": 3.2}
            ]
          },
          {
            "key": "totals",
            "outcomes": [
              {"name": "Over", "price": 1.9},
              {"name": "Under", "price": 1.9}
            ]
          }
        ]
      },
      {
        "key": "bet365",
        "title": "Bet365",
        "markets": [
          {
            "key": "h2h",
            "outcomes": [
              {"name": "Arsenal", "price": 2.05},
              {"name": "Chelsea", "price": 3.5},
              {"name": "Draw", "price": 3.25}
            ]
          }
        ]
      }
    ]
  }
]`

func newTestAdapter(baseURL string) *Adapter {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	cfg := &config.ProviderConfig{
		BaseURL:       baseURL,
		APIKey:        "test-key",
		Timeout:       5,
		Regions:       "eu,uk",
		Markets:       "h2h,totals",
		RatePerMinute: 6000,
	}
	return NewAdapter(cfg, logger).(*Adapter)
}

// 嵌套响应展平：一场比赛×一个公司×一个市场=一条记录
func TestFetchOddsFlattensResponse(t *testing.T) {
	var gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(providerPayload))
	}))
	defer srv.Close()

	adapter := newTestAdapter(srv.URL)
	records, err := adapter.FetchOdds(context.Background(), "soccer_epl")
	require.NoError(t, err)

	require.Equal(t, "/v4/sports/soccer_epl/odds", gotPath)
	require.Contains(t, gotQuery, "apiKey=test-key")
	require.Contains(t, gotQuery, "oddsFormat=decimal")

	// pinnacle两个市场+bet365一个市场
	require.Len(t, records, 3)
	first := records[0]
	require.Equal(t, "e912f3a", first.MatchID)
	require.Equal(t, "Arsenal vs Chelsea", first.MatchName)
	require.Equal(t, "pinnacle", first.Bookmaker)
	require.Equal(t, "h2h", first.Market)
	require.InDelta(t, 2.1, first.Outcomes["Arsenal"], 1e-9)
	require.InDelta(t, 3.2, first.Outcomes["Draw"], 1e-9)
}

func TestFetchOddsEmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	adapter := newTestAdapter(srv.URL)
	records, err := adapter.FetchOdds(context.Background(), "soccer_epl")
	require.NoError(t, err)
	// 空响应给空切片而非nil，下游序列化成[]
	require.NotNil(t, records)
	require.Empty(t, records)
}

// 5xx与429归为临时性错误，4xx归为永久性错误
func TestFetchOddsClassifiesStatus(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr error
	}{
		{"server_error", http.StatusInternalServerError, ErrTransient},
		{"bad_gateway", http.StatusBadGateway, ErrTransient},
		{"rate_limited", http.StatusTooManyRequests, ErrTransient},
		{"unauthorized", http.StatusUnauthorized, ErrPermanent},
		{"not_found", http.StatusNotFound, ErrPermanent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			adapter := newTestAdapter(srv.URL)
			_, err := adapter.FetchOdds(context.Background(), "soccer_epl")
			require.Error(t, err)
			require.True(t, errors.Is(err, tt.wantErr), "want %v, got %v", tt.wantErr, err)
		})
	}
}

func TestFetchOddsMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"not": "a list"}`))
	}))
	defer srv.Close()

	adapter := newTestAdapter(srv.URL)
	_, err := adapter.FetchOdds(context.Background(), "soccer_epl")
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrPermanent))
}

func TestFetchOddsConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	adapter := newTestAdapter(srv.URL)
	_, err := adapter.FetchOdds(context.Background(), "soccer_epl")
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrTransient))
}
