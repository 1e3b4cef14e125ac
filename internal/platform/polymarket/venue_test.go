package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alanyoungcy/esportsarb/internal/crypto"
	"github.com/alanyoungcy/esportsarb/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Hardhat's first default account. Publicly known, never funded here.
const testWalletKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func TestGammaClient_EsportsMarkets(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/events/pagination", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "esports", q.Get("tag_slug"))
		assert.Equal(t, "true", q.Get("active"))
		assert.Equal(t, "false", q.Get("closed"))
		assert.Equal(t, "volume", q.Get("order"))
		assert.Equal(t, "false", q.Get("ascending"))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"data":[{"id":"e1","title":"LoL: HLE vs T1 (BO3)","markets":[{"id":"m1","question":"Will HLE win the series?","conditionId":"0xc1","clobTokenIds":"[\"y1\",\"n1\"]","outcomePrices":"[\"0.58\",\"0.42\"]"}]}]}`)
	}))
	defer srv.Close()

	client := NewGammaClient(srv.URL)

	markets, err := client.EsportsMarkets(context.Background(), domain.GameLoL)
	require.NoError(t, err)
	require.Len(t, markets, 1)
	assert.Equal(t, "m1", markets[0].MarketID)
	assert.Equal(t, "y1", markets[0].TokenIDYes)
	assert.Equal(t, "n1", markets[0].TokenIDNo)
	assert.Equal(t, 0.58, markets[0].YesPrice)

	// The same feed filtered to the other title yields nothing.
	markets, err = client.EsportsMarkets(context.Background(), domain.GameDota2)
	require.NoError(t, err)
	assert.Empty(t, markets)
}

func TestClobClient_PostOrder_PayloadAndAuth(t *testing.T) {
	hmacSigner := &crypto.HMACSigner{Key: "key-1", Secret: "c2VjcmV0", Passphrase: "phrase"}

	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/order", r.URL.Path)
		assert.Equal(t, "key-1", r.Header.Get("POLY_API_KEY"))
		assert.Equal(t, "phrase", r.Header.Get("POLY_PASSPHRASE"))
		assert.NotEmpty(t, r.Header.Get("POLY_SIGNATURE"))
		assert.NotEmpty(t, r.Header.Get("POLY_TIMESTAMP"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		fmt.Fprint(w, `{"success":true,"orderID":"ord-99","status":"live"}`)
	}))
	defer srv.Close()

	client := NewClobClient(srv.URL, nil, hmacSigner)

	result, err := client.PostOrder(context.Background(), domain.OrderRequest{
		MarketID: "m1",
		TokenID:  "tok-1",
		Side:     domain.OrderSideBuy,
		Size:     25,
		Price:    0.55,
	})
	require.NoError(t, err)
	assert.Equal(t, "ord-99", result.OrderID)

	assert.Equal(t, "tok-1", got["tokenID"])
	assert.Equal(t, "BUY", got["side"])
	assert.Equal(t, "25", got["size"])
	assert.Equal(t, "0.55", got["price"])
	assert.Equal(t, "GTC", got["orderType"])
}

func TestClobClient_PostOrder_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"success":false,"errorMsg":"not enough balance"}`)
	}))
	defer srv.Close()

	client := NewClobClient(srv.URL, nil, nil)

	_, err := client.PostOrder(context.Background(), domain.OrderRequest{TokenID: "t", Side: domain.OrderSideBuy, Size: 5, Price: 0.5})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not enough balance")
}

func TestClobClient_Balance_L1Headers(t *testing.T) {
	signer, err := crypto.NewSigner(testWalletKey)
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/balances", r.URL.Path)
		assert.Equal(t, signer.Address().Hex(), r.Header.Get("POLY_ADDRESS"))
		assert.NotEmpty(t, r.Header.Get("POLY_SIGNATURE"))
		assert.Equal(t, r.Header.Get("POLY_TIMESTAMP"), r.Header.Get("POLY_NONCE"))

		fmt.Fprint(w, `{"usdc":"1250.50","available":"1100.25"}`)
	}))
	defer srv.Close()

	client := NewClobClient(srv.URL, signer, nil)

	bal, err := client.Balance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1100.25, bal)
}

func TestClobClient_Balance_RequiresWalletKey(t *testing.T) {
	client := NewClobClient("http://unused", nil, nil)

	_, err := client.Balance(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wallet key")
}

func TestClobClient_DeriveAPIKey(t *testing.T) {
	signer, err := crypto.NewSigner(testWalletKey)
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/derive-api-key", r.URL.Path)
		assert.NotEmpty(t, r.Header.Get("POLY_ADDRESS"))
		fmt.Fprint(w, `{"apiKey":"k-1","secret":"c2VjcmV0","passphrase":"p-1"}`)
	}))
	defer srv.Close()

	client := NewClobClient(srv.URL, signer, nil)
	require.NoError(t, client.DeriveAPIKey(context.Background()))

	require.NotNil(t, client.hmac)
	assert.Equal(t, "k-1", client.hmac.Key)
	assert.True(t, client.hmac.Configured())
}

func TestVenue_MarketPrice_NormalizesPair(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/book", r.URL.Path)
		switch r.URL.Query().Get("token_id") {
		case "y1":
			fmt.Fprint(w, `{"asset_id":"y1","bids":[{"price":"0.60","size":"10"}],"asks":[{"price":"0.70","size":"10"}]}`)
		case "n1":
			fmt.Fprint(w, `{"asset_id":"n1","bids":[{"price":"0.30","size":"10"}],"asks":[{"price":"0.40","size":"10"}]}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	venue := NewVenue(NewGammaClient(srv.URL), NewClobClient(srv.URL, nil, nil), nil)
	venue.markets["m1"] = domain.Market{MarketID: "m1", TokenIDYes: "y1", TokenIDNo: "n1"}

	yes, no, err := venue.MarketPrice(context.Background(), "m1")
	require.NoError(t, err)
	assert.InDelta(t, 0.65, yes, 1e-9)
	assert.InDelta(t, 0.35, no, 1e-9)
	assert.InDelta(t, 1.0, yes+no, 1e-9)
}

func TestVenue_MarketPrice_UnknownMarket(t *testing.T) {
	venue := NewVenue(nil, nil, nil)

	_, _, err := venue.MarketPrice(context.Background(), "ghost")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestVenue_PlaceOrder_FallbackOrderID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	venue := NewVenue(nil, NewClobClient(srv.URL, nil, nil), nil)

	order, err := venue.PlaceOrder(context.Background(), domain.OrderRequest{
		MarketID: "m1",
		TokenID:  "tok-1",
		Side:     domain.OrderSideBuy,
		Size:     10,
		Price:    0.55,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, order.ID)
	assert.Equal(t, domain.OrderStatusSubmitted, order.Status)
	assert.Equal(t, int64(550000), order.PriceTicks)
	assert.Equal(t, int64(10000000), order.SizeUnits)
}

func TestVenue_CancelOrder_Acknowledged(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/order/ord-1", r.URL.Path)
		fmt.Fprint(w, `{"success":true}`)
	}))
	defer srv.Close()

	venue := NewVenue(nil, NewClobClient(srv.URL, nil, nil), nil)

	ok, err := venue.CancelOrder(context.Background(), "ord-1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVenue_CancelOrder_VenueError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	venue := NewVenue(nil, NewClobClient(srv.URL, nil, nil), nil)

	ok, err := venue.CancelOrder(context.Background(), "ord-1")
	require.Error(t, err)
	assert.False(t, ok)
}

func TestVenue_RemembersDiscoveredMarkets(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"id":"e1","title":"LPL: BLG vs JDG (BO5)","markets":[{"id":"m1","question":"Will BLG win?","clobTokenIds":"[\"y1\",\"n1\"]"}]}]`)
	}))
	defer srv.Close()

	venue := NewVenue(NewGammaClient(srv.URL), nil, nil)

	markets, err := venue.EsportsMarkets(context.Background(), domain.GameLoL)
	require.NoError(t, err)
	require.Len(t, markets, 1)

	m, ok := venue.Market("m1")
	require.True(t, ok)
	assert.Equal(t, "BLG", m.Team1Name)
	assert.Equal(t, "JDG", m.Team2Name)
}
