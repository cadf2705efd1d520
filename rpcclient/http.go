package rpcclient

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	json "github.com/goccy/go-json"
)

// httpClient is the default HTTPClient implementation, issuing plain
// JSON-RPC 2.0 requests over a standard net/http.Client.
type httpClient struct {
	url    string
	client *http.Client
}

func NewHTTPClient(url string) HTTPClient {
	return &httpClient{
		url:    url,
		client: &http.Client{Timeout: DefaultReadTimeout},
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

func (c *httpClient) call(ctx context.Context, method string, params any, out any) error {
	reqBody, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("rpcclient: marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("rpcclient: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("rpcclient: calling %s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("rpcclient: %s returned HTTP %d", method, resp.StatusCode)
	}

	var parsed rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("rpcclient: decoding %s response: %w", method, err)
	}
	if parsed.Error != nil {
		return fmt.Errorf("rpcclient: %s error %d: %s", method, parsed.Error.Code, parsed.Error.Message)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(parsed.Result, out); err != nil {
		return fmt.Errorf("rpcclient: decoding %s result: %w", method, err)
	}
	return nil
}

func (c *httpClient) GetAccountOwner(ctx context.Context, address string) (string, error) {
	var result struct {
		Value *struct {
			Owner string `json:"owner"`
		} `json:"value"`
	}
	params := []any{address, map[string]any{"encoding": "base64"}}
	if err := c.call(ctx, "getAccountInfo", params, &result); err != nil {
		return "", err
	}
	if result.Value == nil {
		return "", fmt.Errorf("rpcclient: account %q not found", address)
	}
	return result.Value.Owner, nil
}

func (c *httpClient) GetSignaturesForAddress(ctx context.Context, address string, limit int) ([]SignatureInfo, error) {
	var result []struct {
		Signature string `json:"signature"`
		Slot      uint64 `json:"slot"`
		Err       any    `json:"err"`
	}
	params := []any{address, map[string]any{"limit": limit, "commitment": CommitmentConfirmed}}
	if err := c.call(ctx, "getSignaturesForAddress", params, &result); err != nil {
		return nil, err
	}

	out := make([]SignatureInfo, 0, len(result))
	for _, r := range result {
		out = append(out, SignatureInfo{Signature: r.Signature, Slot: r.Slot, Err: r.Err != nil})
	}
	return out, nil
}

func (c *httpClient) GetTransaction(ctx context.Context, signature string) (Transaction, error) {
	var result struct {
		Slot uint64 `json:"slot"`
		Meta struct {
			LogMessages []string `json:"logMessages"`
		} `json:"meta"`
	}
	params := []any{signature, map[string]any{
		"encoding":                       "json",
		"commitment":                     CommitmentConfirmed,
		"maxSupportedTransactionVersion": 0,
	}}
	if err := c.call(ctx, "getTransaction", params, &result); err != nil {
		return Transaction{}, err
	}
	return Transaction{Slot: result.Slot, Logs: result.Meta.LogMessages}, nil
}
