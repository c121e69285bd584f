package market

import (
	"path/filepath"

	"github.com/shopspring/decimal"

	"macrodash/internal/export"
)

// BanksFile is the export file name inside the export directory.
const BanksFile = "banks.csv"

// Bank is one savings product offered by a local bank.
type Bank struct {
	Bank    string          `json:"bank"`
	Product string          `json:"product"`
	Rate    decimal.Decimal `json:"rate"` // annual percent
}

// Banks returns the product comparison table.
func Banks() []Bank {
	return []Bank{
		{Bank: "Ecobank", Product: "High-Yield Savings", Rate: decimal.NewFromInt(15)},
		{Bank: "GCB", Product: "Goal-Based Account", Rate: decimal.NewFromInt(12)},
		{Bank: "Fidelity", Product: "Fixed Deposit", Rate: decimal.NewFromInt(18)},
	}
}

// WriteBanks exports the bank table to dir/banks.csv.
func WriteBanks(dir string) error {
	banks := Banks()
	rows := make([][]string, len(banks))
	for i, b := range banks {
		rows[i] = []string{b.Bank, b.Product, b.Rate.String()}
	}
	return export.WriteCSV(filepath.Join(dir, BanksFile), []string{"Bank", "Product", "Rate"}, rows)
}
