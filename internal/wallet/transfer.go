package wallet

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Jetton transfer constants.
const (
	OpJettonTransfer uint32 = 0x0f8a7ea5

	// TransferValidity is how long a signed purchase stays valid.
	TransferValidity = time.Hour
)

// GasAmount is the TON attached to a jetton transfer message to pay fees.
var GasAmount = decimal.RequireFromString("0.05")

// ForwardAmount is the TON forwarded to the recipient with the notification.
var ForwardAmount = decimal.New(1, -9)

// JettonTransfer describes a transfer of shop tokens. The connector encodes
// it as a transfer body (op, query id, amount, destination, response
// destination, forward amount, comment).
type JettonTransfer struct {
	QueryID       uint64          `json:"queryId"`
	Amount        decimal.Decimal `json:"amount"`
	Destination   string          `json:"destination"`
	ResponseTo    string          `json:"responseTo"`
	ForwardAmount decimal.Decimal `json:"forwardAmount"`
	Comment       string          `json:"comment"`
}

// Message is one outgoing internal message.
type Message struct {
	Address string          `json:"address"`
	Amount  decimal.Decimal `json:"amount"` // TON
	Jetton  *JettonTransfer `json:"jetton,omitempty"`
}

// Transaction is a request to sign and send messages.
type Transaction struct {
	ValidUntil int64     `json:"validUntil"`
	Messages   []Message `json:"messages"`
}

// Validate checks a transaction before it is handed to a connector.
func (tx Transaction) Validate() error {
	if len(tx.Messages) == 0 {
		return fmt.Errorf("wallet: transaction has no messages")
	}
	for i, m := range tx.Messages {
		if m.Address == "" {
			return fmt.Errorf("wallet: message %d has no address", i)
		}
		if !m.Amount.IsPositive() {
			return fmt.Errorf("wallet: message %d amount must be positive", i)
		}
		if j := m.Jetton; j != nil {
			if j.Destination == "" || j.ResponseTo == "" {
				return fmt.Errorf("wallet: message %d jetton transfer needs destination and response address", i)
			}
			if j.Amount.IsNegative() {
				return fmt.Errorf("wallet: message %d jetton amount is negative", i)
			}
		}
	}
	return nil
}

// PurchaseComment tags a transfer with the buyer and the shop item.
func PurchaseComment(userID int64, itemID int) string {
	return fmt.Sprintf("%d:%d", userID, itemID)
}

// PurchaseRequest is everything needed to pay for a shop item.
type PurchaseRequest struct {
	JettonWallet string          // the buyer's jetton wallet
	Recipient    string          // the shop's token recipient
	Buyer        string          // the buyer's wallet address
	Price        decimal.Decimal // in tokens
	UserID       int64
	ItemID       int
}

// NewPurchase builds the jetton transfer transaction for a shop purchase.
func NewPurchase(req PurchaseRequest, now time.Time) (Transaction, error) {
	if req.JettonWallet == "" || req.Recipient == "" || req.Buyer == "" {
		return Transaction{}, fmt.Errorf("wallet: purchase needs jetton wallet, recipient and buyer")
	}
	if req.Price.IsNegative() {
		return Transaction{}, fmt.Errorf("wallet: negative price %s", req.Price)
	}
	tx := Transaction{
		ValidUntil: now.Add(TransferValidity).Unix(),
		Messages: []Message{{
			Address: req.JettonWallet,
			Amount:  GasAmount,
			Jetton: &JettonTransfer{
				Amount:        req.Price,
				Destination:   req.Recipient,
				ResponseTo:    req.Buyer,
				ForwardAmount: ForwardAmount,
				Comment:       PurchaseComment(req.UserID, req.ItemID),
			},
		}},
	}
	return tx, tx.Validate()
}

// ToNano converts a TON amount to nanotons, rejecting sub-nano precision.
func ToNano(amount decimal.Decimal) (int64, error) {
	n := amount.Shift(9)
	if !n.Equal(n.Truncate(0)) {
		return 0, fmt.Errorf("wallet: %s TON has more than 9 decimals", amount)
	}
	return n.IntPart(), nil
}
