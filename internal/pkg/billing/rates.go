package billing

import "github.com/shopspring/decimal"

// Billable feature names. Feature activations arriving with other names are
// metered but priced at zero until a rate is added here.
const (
	FeatureChatbot  = "chatbot"
	FeatureDownload = "download"
)

// RateTable prices one usage period. Fixed and versionless: the snapshot
// frozen into each invoice is what preserves historical pricing, not the
// table itself.
type RateTable struct {
	PerLink      decimal.Decimal            `json:"per_link"`
	PerFile      decimal.Decimal            `json:"per_file"`
	PerStorageGB decimal.Decimal            `json:"per_storage_gb"`
	Features     map[string]decimal.Decimal `json:"features"`
}

// DefaultRateTable returns the production rates.
func DefaultRateTable() RateTable {
	return RateTable{
		PerLink:      decimal.NewFromFloat(0.10),
		PerFile:      decimal.NewFromFloat(0.05),
		PerStorageGB: decimal.NewFromFloat(0.01),
		Features: map[string]decimal.Decimal{
			FeatureChatbot:  decimal.NewFromFloat(0.50),
			FeatureDownload: decimal.NewFromFloat(0.25),
		},
	}
}

// FeatureRate returns the rate for a feature name, zero when unpriced.
func (t RateTable) FeatureRate(name string) decimal.Decimal {
	if rate, ok := t.Features[name]; ok {
		return rate
	}
	return decimal.Zero
}
