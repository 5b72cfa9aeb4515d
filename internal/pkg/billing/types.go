package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

// LineItem is one priced row of a usage breakdown. Amount is already rounded
// to two decimal places.
type LineItem struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	Rate        decimal.Decimal `json:"rate"`
	Amount      decimal.Decimal `json:"amount"`
}

// UsageTotals is the raw counter state a breakdown was computed from.
type UsageTotals struct {
	LinksCreated  int64            `json:"links_created"`
	FilesUploaded int64            `json:"files_uploaded"`
	StorageBytes  int64            `json:"storage_bytes"`
	Features      map[string]int64 `json:"features"`
}

// Breakdown prices one usage period. Total is the sum of the already-rounded
// line amounts, never a rounding of the raw sum; invoices owe their exact
// cent values to that ordering.
type Breakdown struct {
	UserID      uint            `json:"user_id"`
	PeriodStart time.Time       `json:"period_start"`
	PeriodEnd   time.Time       `json:"period_end"`
	Usage       UsageTotals     `json:"usage"`
	Lines       []LineItem      `json:"lines"`
	Total       decimal.Decimal `json:"total"`
}
