package dispatch

import (
	"strings"

	"github.com/triage-ai/lark-agent/internal/i18n"
)

// Known backend error signatures, checked in order against the lowercased
// error text. The first hit wins.
var errorSignatures = []struct {
	needles []string
	message string
}{
	{[]string{"fieldnamenotfound"}, "error.field_not_found"},
	{[]string{"tablenotfound"}, "error.table_not_found"},
	{[]string{"permission", "access"}, "error.permission"},
	{[]string{"validation"}, "error.validation"},
}

// Classify turns remote error text into a localized message. Unknown errors
// produce the generic retry message naming op. It never fails.
func Classify(T i18n.TranslateFunc, errText, op string) string {
	lower := strings.ToLower(errText)
	for _, sig := range errorSignatures {
		for _, n := range sig.needles {
			if strings.Contains(lower, n) {
				return T(sig.message)
			}
		}
	}
	return T("error.generic", map[string]any{"Operation": op})
}
