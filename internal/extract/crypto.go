package extract

import (
	"regexp"
	"strings"

	"github.com/nao1215/onioncrawl/internal/model"
)

// cryptoPattern pairs a currency's recognition rule with its
// canonicalization. Base58 formats are case significant and kept as
// matched; bech32 and hex formats canonicalize to lowercase.
type cryptoPattern struct {
	currency  string
	pattern   *regexp.Regexp
	canonical func(string) string
}

func keepCase(s string) string { return s }

// cryptoPatterns is ordered so overlapping prefixes resolve
// deterministically. The shared legacy "3" prefix between bitcoin and
// litecoin is tagged bitcoin, matching how such addresses are used in
// practice.
var cryptoPatterns = []cryptoPattern{
	// Legacy P2PKH and P2SH: 1... or 3..., 25-34 base58 chars.
	{currency: "bitcoin", pattern: regexp.MustCompile(`\b[13][a-km-zA-HJ-NP-Z1-9]{25,34}\b`), canonical: keepCase},
	// Bech32 segwit. The spec disallows mixed case, so only all-lower
	// and all-upper forms are recognized; both canonicalize to lower.
	{currency: "bitcoin", pattern: regexp.MustCompile(`\b(?:bc1[a-z0-9]{39,59}|BC1[A-Z0-9]{39,59})\b`), canonical: strings.ToLower},
	// Hex with 0x prefix. EIP-55 checksum casing is display only.
	{currency: "ethereum", pattern: regexp.MustCompile(`\b0x[a-fA-F0-9]{40}\b`), canonical: strings.ToLower},
	// Standard addresses start with 4, subaddresses with 8.
	{currency: "monero", pattern: regexp.MustCompile(`\b[48][0-9AB][1-9A-HJ-NP-Za-km-z]{93}\b`), canonical: keepCase},
	// Legacy L/M prefixes; the 3 prefix is claimed by bitcoin above.
	{currency: "litecoin", pattern: regexp.MustCompile(`\b[LM][a-km-zA-HJ-NP-Z1-9]{26,33}\b`), canonical: keepCase},
	{currency: "litecoin", pattern: regexp.MustCompile(`\b(?:ltc1[a-z0-9]{39,59}|LTC1[A-Z0-9]{39,59})\b`), canonical: strings.ToLower},
	{currency: "dash", pattern: regexp.MustCompile(`\bX[1-9A-HJ-NP-Za-km-z]{33}\b`), canonical: keepCase},
	{currency: "zcash", pattern: regexp.MustCompile(`\bt1[a-zA-Z0-9]{33}\b`), canonical: keepCase},
	{currency: "dogecoin", pattern: regexp.MustCompile(`\bD[5-9A-HJ-NP-U][1-9A-HJ-NP-Za-km-z]{32}\b`), canonical: keepCase},
}

// extractCryptoAddresses returns unique addresses tagged by currency in
// first-seen order per pattern. An address matched by multiple patterns
// keeps its first tag.
func extractCryptoAddresses(text string) []model.CryptoAddress {
	seen := make(map[string]bool)
	var out []model.CryptoAddress
	for _, cp := range cryptoPatterns {
		for _, match := range cp.pattern.FindAllString(text, -1) {
			addr := cp.canonical(match)
			if seen[addr] {
				continue
			}
			seen[addr] = true
			out = append(out, model.CryptoAddress{Currency: cp.currency, Address: addr})
		}
	}
	return out
}
