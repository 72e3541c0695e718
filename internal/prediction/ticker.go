package prediction

import "strings"

// companyTickers maps the company names offered by the search box.
var companyTickers = map[string]string{
	"APPLE INC":             "AAPL",
	"TESLA INC":             "TSLA",
	"MICROSOFT CORPORATION": "MSFT",
	"AMAZON.COM INC":        "AMZN",
	"NVIDIA CORPORATION":    "NVDA",
	"GEO GROUP INC":         "GEO",
}

// ResolveTicker turns a company name or ticker into an upper-case ticker.
func ResolveTicker(input string) string {
	key := strings.ToUpper(strings.Join(strings.Fields(input), " "))
	if key == "" {
		return ""
	}
	if ticker, ok := companyTickers[key]; ok {
		return ticker
	}
	if ticker, ok := companyTickers[strings.TrimSuffix(key, ".")]; ok {
		return ticker
	}
	return key
}

// KnownCompanies lists the resolvable company names.
func KnownCompanies() map[string]string {
	out := make(map[string]string, len(companyTickers))
	for name, ticker := range companyTickers {
		out[name] = ticker
	}
	return out
}
