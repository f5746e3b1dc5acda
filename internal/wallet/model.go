package wallet

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/tontine/internal/ledger"
)

// MovementRequest is the body of deposit and withdraw calls.
type MovementRequest struct {
	Amount float64 `json:"amount"`
	Method string  `json:"method"`
}

// MovementResponse is returned after a settled deposit or withdrawal.
type MovementResponse struct {
	Transaction       ledger.Transaction `json:"transaction"`
	Balance           decimal.Decimal    `json:"balance"`
	FormattedBalance  string             `json:"formatted_balance"`
	Currency          string             `json:"currency"`
	OperatorReference string             `json:"operator_reference"`
}

// SummaryResponse describes the wallet of the caller.
type SummaryResponse struct {
	Balance          decimal.Decimal      `json:"balance"`
	FormattedBalance string               `json:"formatted_balance"`
	Currency         string               `json:"currency"`
	Transactions     []ledger.Transaction `json:"transactions"`
	AsOf             time.Time            `json:"as_of"`
}

// ConversionResponse is the balance expressed in another currency.
type ConversionResponse struct {
	Currency  string          `json:"currency"`
	Amount    decimal.Decimal `json:"amount"`
	Formatted string          `json:"formatted"`
	Source    string          `json:"source_currency"`
	Balance   decimal.Decimal `json:"balance"`
}
