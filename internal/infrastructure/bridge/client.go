package bridge

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vitos/lendflow/internal/domain"
)

const recvWindow = 5000

// Client implements domain.ChainSDK against the lending SDK bridge, a
// sidecar that exposes the on-chain SDK over REST. Write calls are signed
// with the bridge API secret.
type Client struct {
	apiKey    string
	apiSecret string
	baseURL   string
	client    *http.Client

	timeNow func() time.Time // For testing
}

var _ domain.ChainSDK = (*Client)(nil)

func NewClient(apiKey, apiSecret, baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		baseURL:   baseURL,
		client:    &http.Client{Timeout: timeout},
		timeNow:   time.Now,
	}
}

// APIError is a non-zero retCode or an HTTP error status from the bridge.
type APIError struct {
	Status  int
	Code    int
	Message string
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("bridge error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("bridge http %d: %s", e.Status, e.Message)
}

type envelope struct {
	RetCode int             `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Result  json.RawMessage `json:"result"`
}

func (c *Client) sign(params string, timestamp int64) string {
	// timestamp + apiKey + recvWindow + params
	toSign := fmt.Sprintf("%d%s%d%s", timestamp, c.apiKey, recvWindow, params)
	h := hmac.New(sha256.New, []byte(c.apiSecret))
	h.Write([]byte(toSign))
	return hex.EncodeToString(h.Sum(nil))
}

// sendRequest performs one call and decodes the result field into out.
func (c *Client) sendRequest(ctx context.Context, method, path string, query url.Values, payload any, out any) error {
	var body []byte
	paramsStr := ""
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = b
		paramsStr = string(b)
	}
	target := c.baseURL + path
	if len(query) > 0 {
		paramsStr = query.Encode()
		target += "?" + paramsStr
	}

	req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(body))
	if err != nil {
		return err
	}
	timestamp := c.timeNow().UnixMilli()
	req.Header.Set("X-BRIDGE-API-KEY", c.apiKey)
	req.Header.Set("X-BRIDGE-TIMESTAMP", strconv.FormatInt(timestamp, 10))
	req.Header.Set("X-BRIDGE-SIGN", c.sign(paramsStr, timestamp))
	req.Header.Set("X-BRIDGE-RECV-WINDOW", strconv.Itoa(recvWindow))
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return &APIError{Status: resp.StatusCode, Message: string(bytes.TrimSpace(respBody))}
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return fmt.Errorf("decode bridge response: %w", err)
	}
	if env.RetCode != 0 {
		return &APIError{Status: resp.StatusCode, Code: env.RetCode, Message: env.RetMsg}
	}
	if out == nil || len(env.Result) == 0 || string(env.Result) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("decode bridge result: %w", err)
	}
	return nil
}

func marketPath(chain domain.ChainID, market string) string {
	return "/v1/" + url.PathEscape(string(chain)) + "/markets/" + url.PathEscape(market)
}

func (c *Client) FetchMarkets(ctx context.Context, chain domain.ChainID) ([]domain.MarketSummary, error) {
	var result struct {
		List []domain.MarketSummary `json:"list"`
	}
	if err := c.sendRequest(ctx, http.MethodGet, "/v1/"+url.PathEscape(string(chain))+"/markets", nil, nil, &result); err != nil {
		return nil, err
	}
	return result.List, nil
}

func (c *Client) GetOneWayMarket(ctx context.Context, chain domain.ChainID, marketID string) (*domain.Market, error) {
	var m domain.Market
	if err := c.sendRequest(ctx, http.MethodGet, marketPath(chain, marketID), nil, nil, &m); err != nil {
		return nil, err
	}
	if m.ID == "" {
		return nil, domain.ErrNotFound
	}
	if m.Chain == "" {
		m.Chain = chain
	}
	return &m, nil
}

type balanceResult struct {
	Balance string `json:"balance"`
}

func (c *Client) balance(ctx context.Context, chain domain.ChainID, market, account, kind string) (string, error) {
	addr, err := checksum(account)
	if err != nil {
		return "", err
	}
	var result balanceResult
	q := url.Values{"account": {addr}, "kind": {kind}}
	if err := c.sendRequest(ctx, http.MethodGet, marketPath(chain, market)+"/balance", q, nil, &result); err != nil {
		return "", err
	}
	return result.Balance, nil
}

func (c *Client) WalletBalance(ctx context.Context, chain domain.ChainID, market, account string) (string, error) {
	return c.balance(ctx, chain, market, account, "wallet")
}

func (c *Client) GaugeBalance(ctx context.Context, chain domain.ChainID, market, account string) (string, error) {
	return c.balance(ctx, chain, market, account, "gauge")
}

func (c *Client) UserLoanDetails(ctx context.Context, chain domain.ChainID, market, account string) (*domain.LoanDetails, error) {
	addr, err := checksum(account)
	if err != nil {
		return nil, err
	}
	var details domain.LoanDetails
	if err := c.sendRequest(ctx, http.MethodGet, marketPath(chain, market)+"/loans/"+url.PathEscape(addr), nil, nil, &details); err != nil {
		return nil, err
	}
	return &details, nil
}

func (c *Client) PreviewLoan(ctx context.Context, req domain.TxRequest) (*domain.LoanPreview, error) {
	var preview domain.LoanPreview
	if err := c.sendRequest(ctx, http.MethodPost, marketPath(req.Chain, req.Market)+"/preview", nil, req, &preview); err != nil {
		return nil, err
	}
	return &preview, nil
}

func (c *Client) LiquidationBandDistance(ctx context.Context, chain domain.ChainID, market string) (int, error) {
	var result struct {
		Distance int `json:"distance"`
	}
	if err := c.sendRequest(ctx, http.MethodGet, marketPath(chain, market)+"/liquidation-band-distance", nil, nil, &result); err != nil {
		return 0, err
	}
	return result.Distance, nil
}

func (c *Client) EstimateGas(ctx context.Context, req domain.TxRequest) (*domain.GasEstimate, error) {
	var gas domain.GasEstimate
	if err := c.sendRequest(ctx, http.MethodPost, marketPath(req.Chain, req.Market)+"/gas", nil, req, &gas); err != nil {
		return nil, err
	}
	return &gas, nil
}

func (c *Client) IsApproved(ctx context.Context, req domain.TxRequest) (bool, error) {
	var result struct {
		Approved bool `json:"approved"`
	}
	if err := c.sendRequest(ctx, http.MethodPost, marketPath(req.Chain, req.Market)+"/allowance", nil, req, &result); err != nil {
		return false, err
	}
	return result.Approved, nil
}

type writeRequest struct {
	Signer  string           `json:"signer"`
	Step    string           `json:"step"`
	Request domain.TxRequest `json:"request"`
}

type txResult struct {
	TxHash string `json:"txHash"`
}

func (c *Client) write(ctx context.Context, signer domain.Signer, step string, req domain.TxRequest) (string, error) {
	if signer == nil {
		return "", domain.ErrNoSigner
	}
	addr, err := checksum(signer.Address())
	if err != nil {
		return "", err
	}
	var result txResult
	payload := writeRequest{Signer: addr, Step: step, Request: req}
	if err := c.sendRequest(ctx, http.MethodPost, marketPath(req.Chain, req.Market)+"/tx", nil, payload, &result); err != nil {
		return "", err
	}
	if result.TxHash == "" {
		return "", domain.ErrNoData
	}
	return result.TxHash, nil
}

func (c *Client) Approve(ctx context.Context, signer domain.Signer, req domain.TxRequest) (string, error) {
	return c.write(ctx, signer, domain.StepApprove, req)
}

func (c *Client) Execute(ctx context.Context, signer domain.Signer, step string, req domain.TxRequest) (string, error) {
	return c.write(ctx, signer, step, req)
}

// checksum validates a hex address and returns its EIP-55 form.
func checksum(addr string) (string, error) {
	if !common.IsHexAddress(addr) {
		return "", fmt.Errorf("invalid address %q", addr)
	}
	return common.HexToAddress(addr).Hex(), nil
}
