package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/esportsarb/internal/crypto"
	"github.com/alanyoungcy/esportsarb/internal/domain"
)

// ClobClient is the REST client for the venue's CLOB (Central Limit Order
// Book) API. It handles order books, order placement, cancellation, and
// balance queries.
type ClobClient struct {
	baseURL    string
	httpClient *http.Client
	signer     *crypto.Signer
	hmac       *crypto.HMACSigner
}

// NewClobClient creates a new CLOB REST client.
//
// baseURL is the CLOB API root, e.g. "https://clob.polymarket.com".
// signer carries the wallet key for L1 (signature) endpoints and may be
// nil when only public data is needed. hmac carries the L2 API
// credentials and may be nil until DeriveAPIKey populates it.
func NewClobClient(baseURL string, signer *crypto.Signer, hmac *crypto.HMACSigner) *ClobClient {
	return &ClobClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		signer: signer,
		hmac:   hmac,
	}
}

// Book fetches the current order book for one token. Book data is public
// and needs no authentication.
func (c *ClobClient) Book(ctx context.Context, tokenID string) (APIBook, error) {
	params := url.Values{}
	params.Set("token_id", tokenID)

	respBody, err := c.doGet(ctx, "/book?"+params.Encode())
	if err != nil {
		return APIBook{}, fmt.Errorf("polymarket/clob: get book %s: %w", tokenID, err)
	}

	var book APIBook
	if err := json.Unmarshal(respBody, &book); err != nil {
		return APIBook{}, fmt.Errorf("polymarket/clob: decode book: %w", err)
	}

	return book, nil
}

// PostOrder submits a limit order to the CLOB API and returns the result.
// Size and price travel as decimal strings, the encoding the venue expects.
func (c *ClobClient) PostOrder(ctx context.Context, req domain.OrderRequest) (APIOrderResult, error) {
	body := map[string]any{
		"tokenID":   req.TokenID,
		"side":      strings.ToUpper(string(req.Side)),
		"size":      strconv.FormatFloat(req.Size, 'f', -1, 64),
		"price":     strconv.FormatFloat(req.Price, 'f', -1, 64),
		"orderType": "GTC",
	}

	respBody, err := c.doAuthenticatedRequest(ctx, http.MethodPost, "/order", body)
	if err != nil {
		return APIOrderResult{}, fmt.Errorf("polymarket/clob: post order: %w", err)
	}

	var result APIOrderResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return APIOrderResult{}, fmt.Errorf("polymarket/clob: decode order result: %w", err)
	}
	if result.ErrorMsg != "" {
		return result, fmt.Errorf("polymarket/clob: order rejected: %s", result.ErrorMsg)
	}

	return result, nil
}

// CancelOrder cancels a single order by its ID.
func (c *ClobClient) CancelOrder(ctx context.Context, orderID string) error {
	path := "/order/" + url.PathEscape(orderID)

	if _, err := c.doAuthenticatedRequest(ctx, http.MethodDelete, path, nil); err != nil {
		return fmt.Errorf("polymarket/clob: cancel order %s: %w", orderID, err)
	}

	return nil
}

// Balance returns the available USDC collateral for the wallet. The
// balances endpoint authenticates with wallet-signature (L1) headers.
func (c *ClobClient) Balance(ctx context.Context) (float64, error) {
	if c.signer == nil {
		return 0, fmt.Errorf("polymarket/clob: balance requires a wallet key")
	}

	respBody, err := c.doL1Request(ctx, http.MethodGet, "/balances")
	if err != nil {
		return 0, fmt.Errorf("polymarket/clob: get balances: %w", err)
	}

	var bal struct {
		USDC      flexFloat `json:"usdc"`
		Available flexFloat `json:"available"`
	}
	if err := json.Unmarshal(respBody, &bal); err != nil {
		return 0, fmt.Errorf("polymarket/clob: decode balances: %w", err)
	}

	return float64(bal.Available), nil
}

// DeriveAPIKey performs the auth flow to obtain L2 API credentials. It
// sends wallet-signature headers to the derive-api-key endpoint and, on
// success, populates the client's hmac field so subsequent order calls
// authenticate.
func (c *ClobClient) DeriveAPIKey(ctx context.Context) error {
	if c.signer == nil {
		return fmt.Errorf("polymarket/clob: derive api key requires a wallet key")
	}

	respBody, err := c.doL1Request(ctx, http.MethodGet, "/auth/derive-api-key")
	if err != nil {
		return fmt.Errorf("polymarket/clob: derive api key: %w", err)
	}

	var authResp struct {
		APIKey     string `json:"apiKey"`
		Secret     string `json:"secret"`
		Passphrase string `json:"passphrase"`
	}
	if err := json.Unmarshal(respBody, &authResp); err != nil {
		return fmt.Errorf("polymarket/clob: decode auth response: %w", err)
	}

	c.hmac = &crypto.HMACSigner{
		Key:        authResp.APIKey,
		Secret:     authResp.Secret,
		Passphrase: authResp.Passphrase,
	}

	return nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// doGet sends an unauthenticated GET request to the CLOB API.
func (c *ClobClient) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	return c.send(req)
}

// doL1Request sends a request carrying wallet-signature (L1) headers.
func (c *ClobClient) doL1Request(ctx context.Context, method, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	headers, err := c.signer.L1Headers()
	if err != nil {
		return nil, fmt.Errorf("sign request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return c.send(req)
}

// doAuthenticatedRequest builds, signs (HMAC), and sends an HTTP request
// against the CLOB API. It returns the raw response body.
func (c *ClobClient) doAuthenticatedRequest(ctx context.Context, method, path string, body any) ([]byte, error) {
	var bodyReader io.Reader
	var bodyStr string

	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyStr = string(jsonBody)
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.hmac != nil {
		for k, v := range c.hmac.L2Headers(method, path, bodyStr) {
			req.Header.Set(k, v)
		}
	}

	return c.send(req)
}

// send executes a prepared request and reads the body, mapping non-2xx
// statuses to domain errors.
func (c *ClobClient) send(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}

	return respBody, nil
}

// checkHTTPStatus maps non-2xx status codes to appropriate domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
