package extract

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/crypto/openpgp"
)

// pgpBlockRegex recognizes armored public key blocks. Private key blocks
// are deliberately not collected; we record identities, not secrets.
var pgpBlockRegex = regexp.MustCompile(
	`-----BEGIN PGP PUBLIC KEY BLOCK-----[\s\S]*?-----END PGP PUBLIC KEY BLOCK-----`)

// extractKeyFingerprints decodes armored public key blocks in the text
// and returns the hex fingerprints of their primary keys, deduplicated
// in first-seen order. Blocks that fail armor or packet decoding count
// as rejected candidates.
func extractKeyFingerprints(text string) ([]string, int) {
	blocks := pgpBlockRegex.FindAllString(text, -1)
	if len(blocks) == 0 {
		return nil, 0
	}

	seen := make(map[string]bool)
	var fingerprints []string
	rejected := 0

	for _, block := range blocks {
		entities, err := openpgp.ReadArmoredKeyRing(strings.NewReader(block))
		if err != nil {
			rejected++
			continue
		}
		for _, entity := range entities {
			if entity.PrimaryKey == nil {
				rejected++
				continue
			}
			fp := fmt.Sprintf("%X", entity.PrimaryKey.Fingerprint)
			if !seen[fp] {
				seen[fp] = true
				fingerprints = append(fingerprints, fp)
			}
		}
	}
	return fingerprints, rejected
}
