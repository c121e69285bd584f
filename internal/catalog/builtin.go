package catalog

// builtin is the table shipped with the binary. Series ids are FRED ids.
var builtin = []Entry{
	{Country: "GH", Indicator: Inflation, SeriesID: "GHACPIALLMINMEI",
		Title: "Consumer Price Index: All Items for Ghana", Units: "Index 2015=100"},

	{Country: "ZA", Indicator: Inflation, SeriesID: "ZAFCPIALLMINMEI",
		Title: "Consumer Price Index: All Items for South Africa", Units: "Index 2015=100"},
	{Country: "ZA", Indicator: InterestRate, SeriesID: "IRSTCI01ZAM156N",
		Title: "Interest Rates: Immediate Rates: Call Money/Interbank Rate for South Africa", Units: "Percent"},
	{Country: "ZA", Indicator: ExchangeRate, SeriesID: "CCUSMA02ZAM618N",
		Title: "Currency Conversions: US Dollar Exchange Rate for South Africa", Units: "ZAR per USD"},

	{Country: "US", Indicator: Inflation, SeriesID: "CPIAUCSL",
		Title: "Consumer Price Index for All Urban Consumers: All Items", Units: "Index 1982-1984=100"},
	{Country: "US", Indicator: InterestRate, SeriesID: "FEDFUNDS",
		Title: "Federal Funds Effective Rate", Units: "Percent"},
	{Country: "US", Indicator: Unemployment, SeriesID: "UNRATE",
		Title: "Unemployment Rate", Units: "Percent"},
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := New(builtin)
	if err != nil {
		panic(err)
	}
	return c
}
