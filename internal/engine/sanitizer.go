package engine

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Leading phrases that mark internal reasoning rather than an answer.
var reasoningPrefixes = []string{
	"I'll ",
	"I will ",
	"Let me ",
	"Based on ",
	"I need to ",
	"I'm going to ",
	"First, I",
	"Thought:",
	"Action:",
}

// Substrings that mark tool-plumbing or configuration leakage.
var leakageMarkers = []string{
	"call_",
	"toolu_",
	"app_token",
	"useUAT",
	"mcp__",
	"tool_call_id",
}

// Lines containing any of these (case-insensitive) are dropped.
var lineDenylist = []string{
	"use only the lark mcp base",
	"do not reference other bases",
	"allowed tables (name -> id)",
	"hard allowlist",
	"refuse and ask admin",
	"table_id=",
	"session token:",
	"app_token",
	"useuat",
	"base_id",
	"client_token",
	"tool_call",
	"mcp__",
	"system:",
	"assistant:",
	"user:",
	"tool:",
}

// Lines consisting only of one of these are dropped.
var placeholderLines = map[string]bool{
	"":             true,
	"...":          true,
	"…":            true,
	"-":            true,
	"null":         true,
	"none":         true,
	"n/a":          true,
	"(no content)": true,
	"```":          true,
}

// SanitizerConfig holds the locale-specific strings used by the sanitizer.
type SanitizerConfig struct {
	Fallback          string   // returned when nothing safe remains
	MinLength         int      // in runes; shorter results are replaced by Fallback
	GreetingFormat    string   // fmt format with one %s for the display name
	PolitenessMarkers []string // any of these present means no suffix is appended
	PolitenessSuffix  string
	Incomplete        string // word that reads unfinished on its own
	Completed         string // its completed form
}

// DefaultSanitizerConfig returns the Thai defaults.
func DefaultSanitizerConfig() SanitizerConfig {
	return SanitizerConfig{
		Fallback:          "ขออภัยครับ ตอนนี้ยังไม่มีคำตอบที่ชัดเจน ลองพิมพ์คำขออีกครั้งได้เลยครับ 🙏",
		MinLength:         5,
		GreetingFormat:    "สวัสดีคุณ%s 👋\n\n",
		PolitenessMarkers: []string{"ครับ", "ค่ะ", "คะ"},
		PolitenessSuffix:  " ครับ",
		Incomplete:        "เรียบร้อย",
		Completed:         "เรียบร้อยแล้ว",
	}
}

// Sanitizer turns a model transcript into user-safe text.
type Sanitizer struct {
	cfg SanitizerConfig
}

// NewSanitizer creates a Sanitizer.
func NewSanitizer(cfg SanitizerConfig) *Sanitizer {
	if cfg.MinLength <= 0 {
		cfg.MinLength = 1
	}
	return &Sanitizer{cfg: cfg}
}

// Sanitize runs ExtractFinal, Filter and Personalize in sequence.
func (s *Sanitizer) Sanitize(messages []Message, displayName string) string {
	return s.Personalize(s.Filter(ExtractFinal(messages)), displayName)
}

// ExtractFinal returns the newest assistant message that is not internal
// reasoning or tool plumbing, or "" when there is none.
func ExtractFinal(messages []Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		m := messages[i]
		if m.Role != RoleAssistant {
			continue
		}
		content := strings.TrimSpace(m.Content)
		if content == "" || isInternal(content) {
			continue
		}
		return content
	}
	return ""
}

func isInternal(content string) bool {
	for _, p := range reasoningPrefixes {
		if len(content) >= len(p) && strings.EqualFold(content[:len(p)], p) {
			return true
		}
	}
	for _, m := range leakageMarkers {
		if strings.Contains(content, m) {
			return true
		}
	}
	return false
}

// Filter drops denylisted and placeholder lines. When the remainder is empty
// or shorter than MinLength, the fallback is returned instead.
func (s *Sanitizer) Filter(text string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if dropLine(line) {
			continue
		}
		kept = append(kept, strings.TrimRight(line, " \t"))
	}

	out := strings.TrimSpace(strings.Join(kept, "\n"))
	if utf8.RuneCountInString(out) < s.cfg.MinLength {
		return s.cfg.Fallback
	}
	return out
}

func dropLine(line string) bool {
	lower := strings.ToLower(strings.TrimSpace(line))
	if placeholderLines[lower] {
		return true
	}
	for _, d := range lineDenylist {
		if strings.Contains(lower, d) {
			return true
		}
	}
	return false
}

// Personalize adds a greeting, a politeness marker and a completeness fix-up,
// each only when not already present. Applying it twice changes nothing more.
func (s *Sanitizer) Personalize(text, displayName string) string {
	name := strings.TrimSpace(displayName)
	if name != "" && !strings.Contains(text, name) {
		text = fmt.Sprintf(s.cfg.GreetingFormat, name) + text
	}

	if s.cfg.Incomplete != "" && strings.Contains(text, s.cfg.Incomplete) && !strings.Contains(text, s.cfg.Completed) {
		text = strings.Replace(text, s.cfg.Incomplete, s.cfg.Completed, 1)
	}

	if !containsAny(text, s.cfg.PolitenessMarkers) {
		text += s.cfg.PolitenessSuffix
	}
	return text
}

func containsAny(text string, needles []string) bool {
	for _, n := range needles {
		if n != "" && strings.Contains(text, n) {
			return true
		}
	}
	return false
}
