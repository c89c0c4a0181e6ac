package engine

import "strings"

// Substitution is a literal typo/abbreviation replacement.
type Substitution struct {
	From string
	To   string
}

// Common typos and chat abbreviations. Order matters: rules run top to bottom.
var defaultSubstitutions = []Substitution{
	{From: "งน", To: "งาน"},
	{From: "พนง", To: "พนักงาน"},
	{From: "ลูกคา", To: "ลูกค้า"},
	{From: "ขอมูล", To: "ข้อมูล"},
	{From: "ตราง", To: "ตาราง"},
	{From: "สตอก", To: "สต็อก"},
	{From: "สต๊อก", To: "สต็อก"},
	{From: "ยอดขย", To: "ยอดขาย"},
	{From: "tabel", To: "table"},
	{From: "custmer", To: "customer"},
	{From: "cusotmer", To: "customer"},
	{From: "invetory", To: "inventory"},
	{From: "emplyee", To: "employee"},
}

// Normalizer applies an ordered substitution table to raw text.
type Normalizer struct {
	rules []Substitution
}

// NewNormalizer creates a Normalizer. With no rules it uses the built-in table.
func NewNormalizer(rules ...Substitution) *Normalizer {
	if len(rules) == 0 {
		rules = defaultSubstitutions
	}
	return &Normalizer{rules: rules}
}

// Normalize replaces every non-overlapping occurrence of each rule's From, one
// rule at a time in declared order. It never fails.
func (n *Normalizer) Normalize(text string) string {
	for _, r := range n.rules {
		if r.From == "" || !strings.Contains(text, r.From) {
			continue
		}
		text = strings.ReplaceAll(text, r.From, r.To)
	}
	return text
}
