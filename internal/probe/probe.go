// Package probe health-checks chain RPC endpoints with a single
// JSON-RPC eth_blockNumber call, over plain HTTP or websocket.
package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"
)

const blockNumberPayload = `{"jsonrpc":"2.0","method":"eth_blockNumber","params":[],"id":1}`

// Result of one endpoint check. LatencyMS covers the full round trip
// including connection setup.
type Result struct {
	Healthy     bool
	LatencyMS   int64
	BlockNumber uint64
}

type rpcResponse struct {
	Result string `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// HTTPProber checks https:// RPC endpoints.
type HTTPProber struct {
	client *http.Client
}

func NewHTTP() *HTTPProber {
	return &HTTPProber{client: &http.Client{Timeout: 10 * time.Second}}
}

func (p *HTTPProber) Check(ctx context.Context, rpcURL string) (Result, error) {
	started := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rpcURL, strings.NewReader(blockNumberPayload))
	if err != nil {
		return Result{}, fmt.Errorf("build rpc request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("rpc request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("rpc status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return Result{}, fmt.Errorf("read rpc response: %w", err)
	}
	return parseBlockNumber(body, started)
}

// WSProber checks wss:// RPC endpoints with one request/response
// exchange over a fresh connection.
type WSProber struct{}

func NewWS() *WSProber { return &WSProber{} }

func (p *WSProber) Check(ctx context.Context, wssURL string) (Result, error) {
	started := time.Now()

	conn, _, err := websocket.Dial(ctx, wssURL, nil)
	if err != nil {
		return Result{}, fmt.Errorf("ws dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "") //nolint:errcheck

	if err := conn.Write(ctx, websocket.MessageText, []byte(blockNumberPayload)); err != nil {
		return Result{}, fmt.Errorf("ws write: %w", err)
	}

	_, data, err := conn.Read(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("ws read: %w", err)
	}
	return parseBlockNumber(data, started)
}

func parseBlockNumber(body []byte, started time.Time) (Result, error) {
	var rpc rpcResponse
	if err := json.Unmarshal(bytes.TrimSpace(body), &rpc); err != nil {
		return Result{}, fmt.Errorf("decode rpc response: %w", err)
	}
	if rpc.Error != nil {
		return Result{}, fmt.Errorf("rpc error %d: %s", rpc.Error.Code, rpc.Error.Message)
	}

	hexNum := strings.TrimPrefix(rpc.Result, "0x")
	if hexNum == "" {
		return Result{}, fmt.Errorf("rpc result missing block number: %q", rpc.Result)
	}
	block, err := strconv.ParseUint(hexNum, 16, 64)
	if err != nil {
		return Result{}, fmt.Errorf("parse block number %q: %w", rpc.Result, err)
	}

	return Result{
		Healthy:     true,
		LatencyMS:   time.Since(started).Milliseconds(),
		BlockNumber: block,
	}, nil
}
