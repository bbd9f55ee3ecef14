package chainrpc

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

const (
	addrA = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	addrB = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

// rpcHandler routes incoming JSON-RPC calls to per-method handlers that
// return either a result value or a node error message.
type rpcHandler struct {
	calls   map[string]int
	methods map[string]func(calls int) (any, string)
}

func newRPCHandler() *rpcHandler {
	return &rpcHandler{
		calls:   map[string]int{},
		methods: map[string]func(int) (any, string){},
	}
}

func (h *rpcHandler) on(method string, fn func(calls int) (any, string)) {
	h.methods[method] = fn
}

func (h *rpcHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	fn, ok := h.methods[req.Method]
	if !ok {
		http.Error(w, fmt.Sprintf("unexpected method %s", req.Method), http.StatusBadRequest)
		return
	}

	h.calls[req.Method]++
	result, errMsg := fn(h.calls[req.Method])

	w.Header().Set("Content-Type", "application/json")
	if errMsg != "" {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0", "id": req.ID,
			"error": map[string]any{"code": -32000, "message": errMsg},
		})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"jsonrpc": "2.0", "id": req.ID, "result": result,
	})
}

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return &Client{addr: srv.URL, timeout: 5 * time.Second, http: srv.Client()}
}

func TestBalanceOf(t *testing.T) {
	h := newRPCHandler()
	h.on("eth_getBalance", func(int) (any, string) {
		return "0xde0b6b3a7640000", "" // 1e18
	})
	c := newTestClient(t, h)

	bal, err := c.BalanceOf(t.Context(), addrA)
	require.NoError(t, err)
	require.True(t, bal.Equal(decimal.NewFromInt(1)), "got %s", bal)
}

func TestBalanceOfRejectsMalformedAddress(t *testing.T) {
	c := newTestClient(t, newRPCHandler())

	_, err := c.BalanceOf(t.Context(), "not-an-address")
	require.ErrorIs(t, err, ErrInvalidAddress)
}

func TestTransferSubmitsSignedFields(t *testing.T) {
	var sent map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Method == "eth_sendTransaction" {
			raw, _ := json.Marshal(req.Params[0])
			_ = json.Unmarshal(raw, &sent)
			_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": "0xdeadbeef"})
			return
		}
		result := "0x7"
		if req.Method == "eth_gasPrice" {
			result = "0x3b9aca00"
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": result})
	}))
	t.Cleanup(srv.Close)
	c := &Client{addr: srv.URL, timeout: 5 * time.Second, http: srv.Client()}

	receipt, err := c.Transfer(t.Context(), addrA, addrB, decimal.RequireFromString("1.5"))
	require.NoError(t, err)
	require.Equal(t, "0xdeadbeef", receipt.TxHash)

	require.Equal(t, addrA, sent["from"])
	require.Equal(t, addrB, sent["to"])
	require.Equal(t, "0x14d1120d7b160000", sent["value"]) // 1.5e18
	require.Equal(t, transferGasLimit, sent["gas"])
	require.Equal(t, "0x7", sent["nonce"])
}

func TestTransferRejectsNonPositiveAmount(t *testing.T) {
	c := newTestClient(t, newRPCHandler())

	_, err := c.TransferWithNonce(t.Context(), addrA, addrB, decimal.Zero, 0)
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestTransferClassifiesNodeErrors(t *testing.T) {
	cases := []struct {
		name    string
		message string
		want    error
	}{
		{"unknown sender", "sender account not recognized", ErrSenderUnknown},
		{"locked signer", "authentication needed: password or unlock", ErrSenderLocked},
		{"locked signer geth", "could not unlock signer account", ErrSenderLocked},
		{"insufficient funds", "insufficient funds for gas * price + value", ErrInsufficientFunds},
		{"nonce too low", "nonce too low", ErrNonceConflict},
		{"underpriced replacement", "replacement transaction underpriced", ErrNonceConflict},
		{"anything else", "transaction pool is full", ErrTransferFailed},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newRPCHandler()
			h.on("eth_gasPrice", func(int) (any, string) { return "0x1", "" })
			h.on("eth_sendTransaction", func(int) (any, string) { return nil, tc.message })
			c := newTestClient(t, h)

			_, err := c.TransferWithNonce(t.Context(), addrA, addrB, decimal.NewFromInt(1), 0)
			require.ErrorIs(t, err, tc.want)
		})
	}
}
