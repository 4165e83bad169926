package domain

import (
	"net/url"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// ChainID identifies a network, e.g. "ethereum" or "arbitrum".
type ChainID string

// CacheKey identifies one (chain, market, account, inputs) combination.
// Build it with NewCacheKey; never concatenate strings by hand.
type CacheKey string

// KeyField is a named form input that participates in a CacheKey.
type KeyField struct {
	Name  string
	Value string
}

// Field returns a verbatim key field.
func Field(name, value string) KeyField {
	return KeyField{Name: name, Value: strings.TrimSpace(value)}
}

// AmountField returns a key field whose value is canonicalised as a decimal,
// so "100", "100.0" and " 100 " produce the same key. Unparseable input is
// kept as typed.
func AmountField(name, value string) KeyField {
	return KeyField{Name: name, Value: CanonicalAmount(value)}
}

const keySep = "|"

// NewCacheKey composes a deterministic key. Field order does not matter;
// an empty account means "not connected".
func NewCacheKey(chain ChainID, market, account string, fields ...KeyField) CacheKey {
	sorted := make([]KeyField, len(fields))
	copy(sorted, fields)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	parts := make([]string, 0, 3+len(sorted))
	parts = append(parts,
		escape(strings.ToLower(strings.TrimSpace(string(chain)))),
		escape(strings.ToLower(strings.TrimSpace(market))),
		escape(NormalizeAccount(account)),
	)
	for _, f := range sorted {
		parts = append(parts, escape(f.Name)+"="+escape(f.Value))
	}
	return CacheKey(strings.Join(parts, keySep))
}

// NormalizeAccount lower-cases hex addresses and trims everything else.
func NormalizeAccount(account string) string {
	account = strings.TrimSpace(account)
	if common.IsHexAddress(account) {
		return strings.ToLower(common.HexToAddress(account).Hex())
	}
	return strings.ToLower(account)
}

// CanonicalAmount renders a decimal string without insignificant zeros.
func CanonicalAmount(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return value
	}
	return d.String()
}

func escape(s string) string {
	return url.QueryEscape(s)
}
