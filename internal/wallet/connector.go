// Package wallet describes the wallet collaborator: the connected account,
// jetton transfers for shop purchases, token balances and the stored player
// session. Payload encoding and signing are the connector's job.
package wallet

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/shopspring/decimal"
)

// ErrNotConnected is returned when an operation needs a connected wallet.
var ErrNotConnected = errors.New("wallet: not connected")

// Account is a connected wallet.
type Account struct {
	Address string `json:"address"`
	Chain   string `json:"chain"`
}

// Connector is the wallet connection. SendTransaction returns once the user
// approved or rejected the request.
type Connector interface {
	Account() (Account, bool)
	SendTransaction(ctx context.Context, tx Transaction) error
}

// BalanceSource reports the player's token balance.
type BalanceSource interface {
	Balance(ctx context.Context) (decimal.Decimal, error)
}

// DevConnector is a local connector that approves every transaction and
// deducts jetton amounts from an in-memory balance. It stands in for a real
// wallet when playing offline.
type DevConnector struct {
	mu      sync.Mutex
	account Account
	balance decimal.Decimal
	sent    []Transaction
	logger  *log.Logger
}

// NewDevConnector returns a connector for address holding balance tokens.
func NewDevConnector(address string, balance decimal.Decimal, logger *log.Logger) *DevConnector {
	return &DevConnector{
		account: Account{Address: address, Chain: "-3"},
		balance: balance,
		logger:  logger,
	}
}

func (d *DevConnector) Account() (Account, bool) {
	return d.account, d.account.Address != ""
}

func (d *DevConnector) SendTransaction(ctx context.Context, tx Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := tx.Validate(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	spent := decimal.Zero
	for _, m := range tx.Messages {
		if m.Jetton != nil {
			spent = spent.Add(m.Jetton.Amount)
		}
	}
	if spent.GreaterThan(d.balance) {
		return &RejectedError{Reason: "insufficient balance"}
	}
	d.balance = d.balance.Sub(spent)
	d.sent = append(d.sent, tx)
	if d.logger != nil {
		d.logger.Printf("dev_transaction messages=%d jettons=%s balance=%s", len(tx.Messages), spent, d.balance)
	}
	return nil
}

func (d *DevConnector) Balance(ctx context.Context) (decimal.Decimal, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.balance, nil
}

// Sent returns the approved transactions.
func (d *DevConnector) Sent() []Transaction {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Transaction, len(d.sent))
	copy(out, d.sent)
	return out
}

// RejectedError means the wallet declined a transaction.
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string {
	return "wallet: transaction rejected: " + e.Reason
}

// JettonWallet derives a deterministic jetton wallet address for owner.
func (d *DevConnector) JettonWallet(ctx context.Context, minter, owner string) (string, error) {
	if owner == "" {
		return "", ErrNotConnected
	}
	return "dev:" + minter + ":" + owner, nil
}
