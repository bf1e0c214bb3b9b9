package market

import "strings"

// quoteSuffixes is ordered so longer, prefixed codes win over their plain forms.
var quoteSuffixes = []string{
	"ZUSDT", "USDT", "ZUSDC", "USDC", "ZUSD", "USD",
	"ZEUR", "EUR", "ZGBP", "GBP", "ZJPY", "JPY",
	"ZCAD", "CAD", "ZCHF", "CHF", "ZETH", "ETH",
	"ZBTC", "BTC", "XXBT", "XBT",
}

var timeframeIntervals = map[string]int{
	"1m":  1,
	"5m":  5,
	"15m": 15,
	"30m": 30,
	"1h":  60,
	"4h":  240,
	"1d":  1440,
}

// DefaultInterval is used for timeframes the exchange does not know.
const DefaultInterval = 60

// TimeframeInterval maps a timeframe label such as "1h" to candle minutes.
func TimeframeInterval(timeframe string) int {
	if minutes, ok := timeframeIntervals[strings.ToLower(strings.TrimSpace(timeframe))]; ok {
		return minutes
	}
	return DefaultInterval
}

// NormalizeAsset strips Kraken's legacy X/Z asset prefix: XETH -> ETH, ZUSD -> USD.
func NormalizeAsset(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) > 3 && (code[0] == 'X' || code[0] == 'Z') {
		return code[1:]
	}
	return code
}

// NormalizePair returns a compact upper-case pair code without separators.
func NormalizePair(pair string) string {
	pair = strings.ToUpper(strings.TrimSpace(pair))
	return strings.NewReplacer("/", "", "-", "", "_", "").Replace(pair)
}

// SplitPair splits a pair code into normalised base and quote assets.
// Both "ETH/USD" and Kraken keys such as "XETHZUSD" are accepted.
func SplitPair(pair string) (base, quote string, ok bool) {
	raw := strings.ToUpper(strings.TrimSpace(pair))
	if left, right, found := strings.Cut(raw, "/"); found && left != "" && right != "" {
		return NormalizeAsset(left), NormalizeAsset(right), true
	}

	raw = NormalizePair(raw)
	for _, suffix := range quoteSuffixes {
		if len(raw) > len(suffix) && strings.HasSuffix(raw, suffix) {
			return NormalizeAsset(strings.TrimSuffix(raw, suffix)), NormalizeAsset(suffix), true
		}
	}
	return "", "", false
}

// CanonicalPair returns base+quote with normalised assets, e.g. XETHZUSD -> ETHUSD.
func CanonicalPair(pair string) string {
	base, quote, ok := SplitPair(pair)
	if !ok {
		return NormalizePair(pair)
	}
	return base + quote
}

// assetAliases lists the balance keys an asset may appear under.
func assetAliases(asset string) []string {
	asset = NormalizeAsset(asset)
	aliases := []string{asset, "X" + asset, "Z" + asset}
	switch asset {
	case "BTC", "XBT":
		aliases = append(aliases, "XBT", "XXBT", "BTC")
	}
	return aliases
}

// Lookup returns the balance of asset, accepting Kraken's prefixed aliases.
func (b Balances) Lookup(asset string) (float64, bool) {
	for _, key := range assetAliases(asset) {
		if amount, ok := b[key]; ok {
			return amount, true
		}
	}
	return 0, false
}
