package classification

// companyTickerTable maps known company names to their exchange tickers.
// Matching is case-insensitive and whole-word.
var companyTickerTable = map[string]string{
	"apple":     "AAPL",
	"microsoft": "MSFT",
	"google":    "GOOGL",
	"alphabet":  "GOOGL",
	"amazon":    "AMZN",
	"meta":      "META",
	"facebook":  "META",
	"tesla":     "TSLA",
	"nvidia":    "NVDA",
	"netflix":   "NFLX",
	"intel":     "INTC",
	"ibm":       "IBM",
}

// TickerFor resolves a company name to its ticker, if known.
func TickerFor(company string) (string, bool) {
	t, ok := companyTickerTable[company]
	return t, ok
}
