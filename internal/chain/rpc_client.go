// Package chain implements the Chain Adapter (spec §4.C): a JSON-RPC
// client for the token program plus the higher-level Adapter that
// validates mints, reads supply, discovers AMM pools and reads
// reserves and top holders. Grounded on the teacher's
// internal/solana.HTTPClient (hand-rolled JSON-RPC 2.0 over net/http
// with retry/backoff).
package chain

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"
)

// Default configuration values, carried from the teacher's RPC client.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0
)

// RPCClient is the subset of JSON-RPC calls the Adapter needs against
// a token-program-compatible chain node.
type RPCClient interface {
	GetAccountInfo(ctx context.Context, pubkey string) (*AccountInfo, error)
	GetTokenSupply(ctx context.Context, mint string) (*TokenSupply, error)
	GetTokenAccountBalance(ctx context.Context, pubkey string) (*TokenAccountBalance, error)
	GetProgramAccounts(ctx context.Context, programID string, filters []ProgramAccountFilter, dataSlice *DataSlice) ([]ProgramAccount, error)
	GetTokenLargestAccounts(ctx context.Context, mint string) ([]TokenLargestAccount, error)
}

// AccountInfo mirrors getAccountInfo's value, base64-decoded on read.
type AccountInfo struct {
	Owner      string
	Data       []byte
	Executable bool
}

// TokenSupply mirrors getTokenSupply's value.
type TokenSupply struct {
	AmountRaw string
	Decimals  int
}

// TokenAccountBalance mirrors getTokenAccountBalance's value.
type TokenAccountBalance struct {
	AmountRaw string
	Decimals  int
}

// ProgramAccountFilter is one getProgramAccounts filter entry
// (dataSize or memcmp), kept as a tagged union matching the RPC wire
// shape exactly.
type ProgramAccountFilter struct {
	DataSize int64
	Memcmp   *MemcmpFilter
}

// MemcmpFilter matches bytesBase58 at offset within account data.
type MemcmpFilter struct {
	Offset int64
	Bytes  string // base58
}

// DataSlice requests only [Offset, Offset+Length) of each account's
// data, so a program-account scan need not stream full pool bodies
// (§4.C findPoolsForPair).
type DataSlice struct {
	Offset int64
	Length int64
}

// ProgramAccount is one scanned account: its pubkey and the (possibly
// sliced) data requested.
type ProgramAccount struct {
	Pubkey string
	Data   []byte
}

// TokenLargestAccount mirrors one entry of getTokenLargestAccounts.
type TokenLargestAccount struct {
	Address   string
	AmountRaw string
	Decimals  int
}

// HTTPClient implements RPCClient using JSON-RPC 2.0 over HTTP,
// adapted verbatim-in-spirit from the teacher's internal/solana
// HTTPClient: exponential backoff, a monotonic request ID, and
// non-retried RPC-level errors.
type HTTPClient struct {
	endpoint    string
	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	requestID   atomic.Uint64
}

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) { c.client.Timeout = d }
}

// WithMaxRetries sets the maximum retry attempt count.
func WithMaxRetries(n int) ClientOption {
	return func(c *HTTPClient) { c.maxRetries = n }
}

// NewHTTPClient creates a chain JSON-RPC client against endpoint.
func NewHTTPClient(endpoint string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		endpoint:    endpoint,
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// call performs one JSON-RPC call with retry and exponential backoff.
// RPC-level errors (malformed request, unknown method) and other
// non-200 statuses are not retried; transport failures, unreadable or
// unparseable response bodies, and HTTP 429/5xx are.
func (c *HTTPClient) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	reqID := c.requestID.Add(1)
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: reqID, Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limited (429)")
			continue
		}
		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("server error %d: %s", resp.StatusCode, string(respBody))
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
		}

		var rpcResp rpcResponse
		if err := json.Unmarshal(respBody, &rpcResp); err != nil {
			lastErr = fmt.Errorf("unmarshal response: %w", err)
			continue
		}

		if rpcResp.Error != nil {
			return rpcResp.Error
		}
		if result != nil && rpcResp.Result != nil {
			if err := json.Unmarshal(rpcResp.Result, result); err != nil {
				return fmt.Errorf("unmarshal result: %w", err)
			}
		}
		return nil
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

type getAccountInfoResult struct {
	Value *struct {
		Owner      string   `json:"owner"`
		Data       []string `json:"data"`
		Executable bool     `json:"executable"`
	} `json:"value"`
}

// GetAccountInfo retrieves account info by public key, base64-decoded.
// Returns nil, nil if the account does not exist.
func (c *HTTPClient) GetAccountInfo(ctx context.Context, pubkey string) (*AccountInfo, error) {
	params := []interface{}{pubkey, map[string]interface{}{"encoding": "base64"}}
	var result getAccountInfoResult
	if err := c.call(ctx, "getAccountInfo", params, &result); err != nil {
		return nil, err
	}
	if result.Value == nil {
		return nil, nil
	}
	info := &AccountInfo{Owner: result.Value.Owner, Executable: result.Value.Executable}
	if len(result.Value.Data) >= 1 {
		data, err := base64.StdEncoding.DecodeString(result.Value.Data[0])
		if err != nil {
			return nil, fmt.Errorf("decode account data: %w", err)
		}
		info.Data = data
	}
	return info, nil
}

type amountResult struct {
	Value *struct {
		Amount   string `json:"amount"`
		Decimals int    `json:"decimals"`
	} `json:"value"`
}

// GetTokenSupply retrieves a mint's raw total supply and decimals.
func (c *HTTPClient) GetTokenSupply(ctx context.Context, mint string) (*TokenSupply, error) {
	var result amountResult
	if err := c.call(ctx, "getTokenSupply", []interface{}{mint}, &result); err != nil {
		return nil, err
	}
	if result.Value == nil {
		return nil, nil
	}
	return &TokenSupply{AmountRaw: result.Value.Amount, Decimals: result.Value.Decimals}, nil
}

// GetTokenAccountBalance retrieves a token account's raw balance and
// the mint's decimals.
func (c *HTTPClient) GetTokenAccountBalance(ctx context.Context, pubkey string) (*TokenAccountBalance, error) {
	var result amountResult
	if err := c.call(ctx, "getTokenAccountBalance", []interface{}{pubkey}, &result); err != nil {
		return nil, err
	}
	if result.Value == nil {
		return nil, nil
	}
	return &TokenAccountBalance{AmountRaw: result.Value.Amount, Decimals: result.Value.Decimals}, nil
}

type programAccountsResult struct {
	Pubkey  string `json:"pubkey"`
	Account struct {
		Data []string `json:"data"`
	} `json:"account"`
}

// GetProgramAccounts scans programID's accounts applying filters and
// requesting only dataSlice of each account's data, so pool discovery
// (§4.C findPoolsForPair) need not stream full account bodies.
func (c *HTTPClient) GetProgramAccounts(ctx context.Context, programID string, filters []ProgramAccountFilter, dataSlice *DataSlice) ([]ProgramAccount, error) {
	wireFilters := make([]map[string]interface{}, 0, len(filters))
	for _, f := range filters {
		if f.Memcmp != nil {
			wireFilters = append(wireFilters, map[string]interface{}{
				"memcmp": map[string]interface{}{"offset": f.Memcmp.Offset, "bytes": f.Memcmp.Bytes},
			})
			continue
		}
		wireFilters = append(wireFilters, map[string]interface{}{"dataSize": f.DataSize})
	}

	config := map[string]interface{}{
		"encoding": "base64",
		"filters":  wireFilters,
	}
	if dataSlice != nil {
		config["dataSlice"] = map[string]interface{}{"offset": dataSlice.Offset, "length": dataSlice.Length}
	}

	var result []programAccountsResult
	if err := c.call(ctx, "getProgramAccounts", []interface{}{programID, config}, &result); err != nil {
		return nil, err
	}

	accounts := make([]ProgramAccount, 0, len(result))
	for _, r := range result {
		var data []byte
		if len(r.Account.Data) >= 1 {
			decoded, err := base64.StdEncoding.DecodeString(r.Account.Data[0])
			if err != nil {
				return nil, fmt.Errorf("decode program account data: %w", err)
			}
			data = decoded
		}
		accounts = append(accounts, ProgramAccount{Pubkey: r.Pubkey, Data: data})
	}
	return accounts, nil
}

type largestAccountsResult struct {
	Value []struct {
		Address  string `json:"address"`
		Amount   string `json:"amount"`
		Decimals int    `json:"decimals"`
	} `json:"value"`
}

// GetTokenLargestAccounts retrieves the largest holder accounts for mint.
func (c *HTTPClient) GetTokenLargestAccounts(ctx context.Context, mint string) ([]TokenLargestAccount, error) {
	var result largestAccountsResult
	if err := c.call(ctx, "getTokenLargestAccounts", []interface{}{mint}, &result); err != nil {
		return nil, err
	}
	holders := make([]TokenLargestAccount, 0, len(result.Value))
	for _, v := range result.Value {
		holders = append(holders, TokenLargestAccount{Address: v.Address, AmountRaw: v.Amount, Decimals: v.Decimals})
	}
	return holders, nil
}

var _ RPCClient = (*HTTPClient)(nil)
