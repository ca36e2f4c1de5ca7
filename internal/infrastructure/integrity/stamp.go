package integrity

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/storefront/backend/internal/domain/cart"
)

// stampVersion prefixes the canonical string so the format can evolve
// without invalidating every outstanding stamp silently.
const stampVersion = "v1"

// Stamper issues HMAC-SHA256 stamps over a cart's monetary state. The stamp
// is handed to clients alongside every cart view; at checkout the client
// echoes it back and a recomputed stamp must match, which catches both
// client-side tampering and state the client has not seen yet.
type Stamper struct {
	secret []byte
}

// NewStamper creates a Stamper keyed with the given secret
func NewStamper(secret string) *Stamper {
	return &Stamper{secret: []byte(secret)}
}

// Stamp returns the hex-encoded HMAC over the cart's canonical string
func (s *Stamper) Stamp(c *cart.Cart) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(canonical(c)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a client-provided stamp in constant time
func (s *Stamper) Verify(c *cart.Cart, provided string) bool {
	expected, err := hex.DecodeString(s.Stamp(c))
	if err != nil {
		return false
	}
	got, err := hex.DecodeString(provided)
	if err != nil {
		return false
	}
	return hmac.Equal(expected, got)
}

// canonical renders the stamped state deterministically:
//
//	v1|<cart_id>|<currency>|<total>|<item_id>:<qty>:<unit_price>;...
//
// Items are sorted by item ID so storage order cannot flip the stamp, and
// amounts are fixed to two decimal places so an equal value always encodes
// identically.
func canonical(c *cart.Cart) string {
	lines := make([]string, len(c.Items))
	for idx := range c.Items {
		item := &c.Items[idx]
		lines[idx] = fmt.Sprintf("%s:%d:%s", item.ID, item.Quantity, item.UnitPrice.StringFixed(2))
	}
	sort.Strings(lines)

	var b strings.Builder
	b.WriteString(stampVersion)
	b.WriteByte('|')
	b.WriteString(c.ID.String())
	b.WriteByte('|')
	b.WriteString(string(c.Currency))
	b.WriteByte('|')
	b.WriteString(c.Total.StringFixed(2))
	b.WriteByte('|')
	b.WriteString(strings.Join(lines, ";"))
	return b.String()
}
