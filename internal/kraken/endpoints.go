package kraken

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"kraken-auto-trader-go/internal/market"

	"github.com/spf13/cast"
	"go.uber.org/zap"
)

const (
	defaultLotDecimals   = 8
	defaultPriceDecimals = 5
)

// GetServerTime fetches the current server time. This is a good endpoint to test connectivity.
func (c *RestClient) GetServerTime(ctx context.Context) (time.Time, error) {
	var result struct {
		UnixTime int64  `json:"unixtime"`
		RFC1123  string `json:"rfc1123"`
	}
	if err := public(ctx, c, "Time", nil, &result); err != nil {
		c.logger.Error("Failed to get server time", zap.Error(err))
		return time.Time{}, fmt.Errorf("failed to get server time: %w", err)
	}
	return time.Unix(result.UnixTime, 0).UTC(), nil
}

// AssetPair holds the trading rules of one pair.
type AssetPair struct {
	Key           string `json:"-"`
	Altname       string `json:"altname"`
	WSName        string `json:"wsname"`
	Base          string `json:"base"`
	Quote         string `json:"quote"`
	PairDecimals  int32  `json:"pair_decimals"`
	LotDecimals   int32  `json:"lot_decimals"`
	OrderMin      string `json:"ordermin"`
	CostDecimals  int32  `json:"cost_decimals"`
	LotMultiplier int    `json:"lot_multiplier"`
}

// GetAssetPairs fetches pair trading rules and caches them for order formatting.
func (c *RestClient) GetAssetPairs(ctx context.Context) (map[string]AssetPair, error) {
	var result map[string]AssetPair
	if err := public(ctx, c, "AssetPairs", nil, &result); err != nil {
		return nil, fmt.Errorf("failed to get asset pairs: %w", err)
	}

	byName := make(map[string]AssetPair, len(result)*2)
	for key, info := range result {
		info.Key = key
		byName[key] = info
		if info.Altname != "" {
			byName[info.Altname] = info
		}
		byName[market.CanonicalPair(key)] = info
	}

	c.pairsMu.Lock()
	c.pairs = byName
	c.pairsMu.Unlock()

	c.logger.Info("Cached asset pair rules", zap.Int("count", len(result)))
	return byName, nil
}

// pairRules returns cached rules for pair, loading them once on first use.
func (c *RestClient) pairRules(ctx context.Context, pair string) (AssetPair, bool) {
	c.pairsMu.Lock()
	loaded := c.pairs != nil
	c.pairsMu.Unlock()

	if !loaded {
		if _, err := c.GetAssetPairs(ctx); err != nil {
			c.logger.Warn("No asset pair rules, using default precision", zap.Error(err))
			c.pairsMu.Lock()
			c.pairs = map[string]AssetPair{}
			c.pairsMu.Unlock()
		}
	}

	c.pairsMu.Lock()
	defer c.pairsMu.Unlock()
	if info, ok := c.pairs[strings.ToUpper(pair)]; ok {
		return info, true
	}
	info, ok := c.pairs[market.CanonicalPair(pair)]
	return info, ok
}

// GetCandles fetches OHLC rows for pair at the given interval in minutes.
func (c *RestClient) GetCandles(ctx context.Context, pair string, interval int) (market.Candles, error) {
	query := url.Values{}
	query.Set("pair", pair)
	query.Set("interval", strconv.Itoa(interval))

	var result map[string]json.RawMessage
	if err := public(ctx, c, "OHLC", query, &result); err != nil {
		return nil, fmt.Errorf("failed to get candles for %s: %w", pair, err)
	}

	raw, ok := resolvePairKey(result, pair)
	if !ok {
		return nil, fmt.Errorf("no OHLC data for %s", pair)
	}

	var rows [][]any
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode OHLC rows for %s: %w", pair, err)
	}

	candles := make(market.Candles, 0, len(rows))
	for _, row := range rows {
		candle, err := parseCandle(row)
		if err != nil {
			return nil, fmt.Errorf("malformed OHLC row for %s: %w", pair, err)
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

// resolvePairKey finds the payload for pair in an OHLC result, whose key may
// be Kraken's prefixed name (XETHZUSD) rather than the requested one.
func resolvePairKey(result map[string]json.RawMessage, pair string) (json.RawMessage, bool) {
	if raw, ok := result[pair]; ok {
		return raw, true
	}
	want := market.CanonicalPair(pair)
	var only json.RawMessage
	candidates := 0
	for key, raw := range result {
		if key == "last" {
			continue
		}
		if market.CanonicalPair(key) == want {
			return raw, true
		}
		only = raw
		candidates++
	}
	if candidates == 1 {
		return only, true
	}
	return nil, false
}

// parseCandle decodes [time, open, high, low, close, vwap, volume, count].
func parseCandle(row []any) (market.Candle, error) {
	if len(row) < 7 {
		return market.Candle{}, fmt.Errorf("expected at least 7 fields, got %d", len(row))
	}
	ts, err := cast.ToInt64E(row[0])
	if err != nil {
		return market.Candle{}, fmt.Errorf("time: %w", err)
	}
	values := make([]float64, 6)
	for i := range values {
		if values[i], err = cast.ToFloat64E(row[i+1]); err != nil {
			return market.Candle{}, fmt.Errorf("field %d: %w", i+1, err)
		}
	}
	candle := market.Candle{
		Time:   time.Unix(ts, 0).UTC(),
		Open:   values[0],
		High:   values[1],
		Low:    values[2],
		Close:  values[3],
		VWAP:   values[4],
		Volume: values[5],
	}
	if len(row) > 7 {
		candle.Count = cast.ToInt(row[7])
	}
	return candle, nil
}

// GetBalances fetches account balances keyed by Kraken asset code.
func (c *RestClient) GetBalances(ctx context.Context) (market.Balances, error) {
	var result map[string]string
	if err := private(ctx, c, "Balance", url.Values{}, maxRetries, &result); err != nil {
		return nil, fmt.Errorf("failed to get balances: %w", err)
	}
	balances := make(market.Balances, len(result))
	for asset, amount := range result {
		v, err := cast.ToFloat64E(amount)
		if err != nil {
			return nil, fmt.Errorf("invalid balance for %s: %w", asset, err)
		}
		balances[asset] = v
	}
	return balances, nil
}

type openPosition struct {
	Pair      string `json:"pair"`
	Type      string `json:"type"`
	Vol       string `json:"vol"`
	VolClosed string `json:"vol_closed"`
	Cost      string `json:"cost"`
	Fee       string `json:"fee"`
}

// GetOpenPositions fetches open margin positions aggregated by canonical pair.
func (c *RestClient) GetOpenPositions(ctx context.Context) (map[string]market.Position, error) {
	var result map[string]openPosition
	if err := private(ctx, c, "OpenPositions", url.Values{}, maxRetries, &result); err != nil {
		return nil, fmt.Errorf("failed to get open positions: %w", err)
	}

	positions := make(map[string]market.Position)
	for _, p := range result {
		pair := market.CanonicalPair(p.Pair)
		agg := positions[pair]
		agg.Pair = pair
		agg.Side = market.Side(p.Type)
		agg.Volume += cast.ToFloat64(p.Vol) - cast.ToFloat64(p.VolClosed)
		agg.Cost += cast.ToFloat64(p.Cost)
		agg.Fee += cast.ToFloat64(p.Fee)
		positions[pair] = agg
	}
	return positions, nil
}

// PlaceOrder submits one order and returns the transaction id. Orders are
// sent once: a timed-out request may still have been accepted by Kraken.
func (c *RestClient) PlaceOrder(ctx context.Context, req market.OrderRequest) (string, error) {
	lotDecimals, priceDecimals := int32(defaultLotDecimals), int32(defaultPriceDecimals)
	if rules, ok := c.pairRules(ctx, req.Pair); ok {
		lotDecimals, priceDecimals = rules.LotDecimals, rules.PairDecimals
	}

	form := url.Values{}
	form.Set("pair", req.Pair)
	form.Set("type", string(req.Side))
	form.Set("ordertype", string(req.Type))
	form.Set("volume", market.FormatVolume(req.Volume, lotDecimals))
	if req.Type != market.OrderTypeMarket {
		if req.Price <= 0 {
			return "", fmt.Errorf("%s order for %s requires a price", req.Type, req.Pair)
		}
		form.Set("price", market.FormatPrice(req.Price, priceDecimals))
	}

	var result struct {
		Descr struct {
			Order string `json:"order"`
		} `json:"descr"`
		TxID []string `json:"txid"`
	}
	if err := private(ctx, c, "AddOrder", form, 1, &result); err != nil {
		c.logger.Error("Failed to place order",
			zap.String("pair", req.Pair),
			zap.String("type", string(req.Type)),
			zap.Error(err),
		)
		return "", fmt.Errorf("failed to place order: %w", err)
	}

	if len(result.TxID) == 0 {
		c.logger.Error("Order response carried no txid", zap.String("pair", req.Pair), zap.String("order", result.Descr.Order))
		return "", fmt.Errorf("failed to place order: no txid returned for %s %s", req.Type, req.Pair)
	}

	ref := strings.Join(result.TxID, ",")
	c.logger.Info("Order placed", zap.String("txid", ref), zap.String("order", result.Descr.Order))
	return ref, nil
}
