package classification

// financeKeywords is the reference vocabulary for finance-relevance scoring.
// The semantic path embeds these terms once and compares queries against
// them; the degraded keyword path matches them directly.
var financeKeywords = []string{
	"stock", "stocks", "loan", "loans", "invest", "investment", "finance",
	"bank", "banks", "banking", "dividend", "equity", "bond", "bonds",
	"portfolio", "asset", "assets", "liability", "liabilities",
	"balance sheet", "income statement", "cash flow", "financial report",
	"earnings", "revenue", "profit", "loss", "market cap", "valuation",
	"merger", "acquisition", "IPO", "interest rate", "inflation",
	"recession", "bull market", "bear market", "trading", "exchange",
	"securities", "broker", "dividend yield", "P/E ratio", "EPS",
	"analyze", "analysis", "performance", "trend", "trends", "forecast",
	"price", "value", "worth", "growth", "financial", "fiscal", "quarterly",
	"annual", "report", "reports", "data", "metric", "metrics", "outlook",
	"recommendation", "buy", "sell", "hold", "bullish", "bearish",
}
