package chainrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"regexp"
	"time"

	"cloudfund-settlement/pkg/config"

	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("chainrpc",
	fx.Provide(
		NewClient,
		func(c *Client) TransferClient { return c },
		NewCustodian,
	),
)

// Receipt is the durable reference returned by an accepted transfer. The
// underlying value movement is irreversible once the reference exists.
type Receipt struct {
	TxHash string
}

// TransferClient is the capability the settlement workflows need from the
// external ledger: read a balance, move value between two addresses.
type TransferClient interface {
	BalanceOf(ctx context.Context, address string) (decimal.Decimal, error)
	Transfer(ctx context.Context, from, to string, amount decimal.Decimal) (*Receipt, error)
}

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// ValidAddress reports whether addr is a well-formed account address.
func ValidAddress(addr string) bool {
	return addressPattern.MatchString(addr)
}

const transferGasLimit = "0x5208" // 21000, plain value transfer

type Client struct {
	addr    string
	timeout time.Duration
	http    *http.Client
}

type ClientParams struct {
	fx.In
	Config *config.Config
}

func NewClient(p ClientParams) *Client {
	return &Client{
		addr:    p.Config.Chain.RPCAddr,
		timeout: p.Config.Chain.CallTimeout,
		http:    &http.Client{},
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	ID      int    `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// call performs one JSON-RPC round trip. The per-call timeout bounds how
// long a settlement workflow can hold its campaign lock on a hanging node.
func (c *Client) call(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      1,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.addr, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	defer resp.Body.Close()

	var out rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrTransferFailed, err)
	}

	if out.Error != nil {
		return nil, classify(out.Error.Message)
	}

	return out.Result, nil
}

func (c *Client) hexResult(ctx context.Context, method string, params ...any) (*big.Int, error) {
	raw, err := c.call(ctx, method, params...)
	if err != nil {
		return nil, err
	}

	var hex string
	if err := json.Unmarshal(raw, &hex); err != nil {
		return nil, fmt.Errorf("%w: decoding result: %v", ErrTransferFailed, err)
	}

	n, ok := new(big.Int).SetString(trimHexPrefix(hex), 16)
	if !ok {
		return nil, fmt.Errorf("%w: malformed quantity %q", ErrTransferFailed, hex)
	}

	return n, nil
}

// BalanceOf reads the current balance of address, in whole ledger units.
func (c *Client) BalanceOf(ctx context.Context, address string) (decimal.Decimal, error) {
	if !ValidAddress(address) {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}

	wei, err := c.hexResult(ctx, "eth_getBalance", address, "latest")
	if err != nil {
		return decimal.Zero, err
	}

	return decimal.NewFromBigInt(wei, -18), nil
}

// PendingNonce returns the next sequence number for address, counting
// transactions the node has accepted but not yet mined.
func (c *Client) PendingNonce(ctx context.Context, address string) (uint64, error) {
	if !ValidAddress(address) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}

	n, err := c.hexResult(ctx, "eth_getTransactionCount", address, "pending")
	if err != nil {
		return 0, err
	}

	return n.Uint64(), nil
}

// Transfer submits a value transfer and returns its durable reference. The
// nonce is fetched fresh immediately before submission.
func (c *Client) Transfer(ctx context.Context, from, to string, amount decimal.Decimal) (*Receipt, error) {
	nonce, err := c.PendingNonce(ctx, from)
	if err != nil {
		return nil, err
	}
	return c.TransferWithNonce(ctx, from, to, amount, nonce)
}

// TransferWithNonce is Transfer with an explicit sequence number, used by
// the custodian when it retries after a nonce conflict.
func (c *Client) TransferWithNonce(ctx context.Context, from, to string, amount decimal.Decimal, nonce uint64) (*Receipt, error) {
	if !ValidAddress(from) {
		return nil, fmt.Errorf("%w: from %q", ErrInvalidAddress, from)
	}
	if !ValidAddress(to) {
		return nil, fmt.Errorf("%w: to %q", ErrInvalidAddress, to)
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}

	gasPrice, err := c.hexResult(ctx, "eth_gasPrice")
	if err != nil {
		return nil, err
	}

	wei := amount.Shift(18).BigInt()

	raw, err := c.call(ctx, "eth_sendTransaction", map[string]string{
		"from":     from,
		"to":       to,
		"value":    hexQuantity(wei),
		"gas":      transferGasLimit,
		"gasPrice": hexQuantity(gasPrice),
		"nonce":    hexQuantity(new(big.Int).SetUint64(nonce)),
	})
	if err != nil {
		return nil, err
	}

	var txHash string
	if err := json.Unmarshal(raw, &txHash); err != nil {
		return nil, fmt.Errorf("%w: decoding tx hash: %v", ErrTransferFailed, err)
	}

	zap.L().Info("transfer accepted",
		zap.String("from", from),
		zap.String("to", to),
		zap.String("amount", amount.String()),
		zap.String("tx_hash", txHash),
	)

	return &Receipt{TxHash: txHash}, nil
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && (s[:2] == "0x" || s[:2] == "0X") {
		return s[2:]
	}
	return s
}

func hexQuantity(n *big.Int) string {
	return "0x" + n.Text(16)
}
