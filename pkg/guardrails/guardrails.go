// Package guardrails applies deterministic filters around model and tool
// boundaries: input sanitization before a message enters history, and PII
// redaction plus keyword flagging on generated output. Findings are flagged
// and logged, never blocking — the caller always receives a response.
package guardrails

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode"

	"github.com/epivigil/epivigil/pkg/observability"
)

// DefaultMaxInputLen caps user input before it enters conversation history.
const DefaultMaxInputLen = 1000

// Redaction tokens substituted for matched patterns.
const (
	TokenCPF        = "[CPF_REDACTED]"
	TokenRG         = "[RG_REDACTED]"
	TokenPhone      = "[PHONE_REDACTED]"
	TokenEmail      = "[EMAIL_REDACTED]"
	TokenCreditCard = "[CREDIT_CARD_REDACTED]"
)

// Brazilian PII patterns, mirrored from the surveillance dataset's origin.
var (
	cpfPattern        = regexp.MustCompile(`\b\d{3}\.?\d{3}\.?\d{3}-?\d{2}\b`)
	rgPattern         = regexp.MustCompile(`\b\d{1,2}\.?\d{3}\.?\d{3}-?[0-9Xx]\b`)
	phonePattern      = regexp.MustCompile(`\b(?:\+55\s?)?(?:\(?\d{2}\)?\s?)?\d{4,5}-?\d{4}\b`)
	emailPattern      = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	creditCardPattern = regexp.MustCompile(`\b\d{4}[\s-]?\d{4}[\s-]?\d{4}[\s-]?\d{4}\b`)
)

// injectionPatterns strip fragments resembling injected control statements
// before user input reaches history or a query tool.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i);\s*DROP`),
	regexp.MustCompile(`(?i);\s*DELETE`),
	regexp.MustCompile(`(?i);\s*UPDATE`),
	regexp.MustCompile(`--`),
	regexp.MustCompile(`/\*`),
	regexp.MustCompile(`\*/`),
	regexp.MustCompile(`(?i)xp_`),
	regexp.MustCompile(`(?i)sp_`),
}

// sensitiveKeywords flag responses that mention credentials or identifier
// classes. Hits are logged as security events, not blocked. Matched on word
// boundaries so that "SRAG" does not trip the "rg" keyword.
var sensitiveKeywords = []string{
	"senha", "password", "token", "secret", "api_key",
	"credit_card", "cartao", "cpf", "rg", "passaporte",
}

var keywordPatterns = func() map[string]*regexp.Regexp {
	m := make(map[string]*regexp.Regexp, len(sensitiveKeywords))
	for _, kw := range sensitiveKeywords {
		m[kw] = regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(kw) + `\b`)
	}
	return m
}()

// Report is the outcome of validating generated output.
type Report struct {
	Valid    bool
	Issues   []string
	Scrubbed string
}

// Guard bundles the filters with their logging and instrumentation.
type Guard struct {
	maxInputLen int
	logger      *slog.Logger
	metrics     *observability.Metrics
}

// Option configures a Guard.
type Option func(*Guard)

// WithMaxInputLen overrides the input truncation limit.
func WithMaxInputLen(n int) Option {
	return func(g *Guard) {
		if n > 0 {
			g.maxInputLen = n
		}
	}
}

// WithLogger sets the logger for security events.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Guard) { g.logger = logger }
}

// WithMetrics enables guardrail-flag counters.
func WithMetrics(m *observability.Metrics) Option {
	return func(g *Guard) { g.metrics = m }
}

// New creates a Guard with defaults.
func New(opts ...Option) *Guard {
	g := &Guard{
		maxInputLen: DefaultMaxInputLen,
		logger:      slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// SanitizeInput truncates to the maximum length, strips injected control
// statements, and drops unsafe control characters. Applied before the
// message enters history.
func (g *Guard) SanitizeInput(input string) string {
	if input == "" {
		return ""
	}

	runes := []rune(input)
	if len(runes) > g.maxInputLen {
		runes = runes[:g.maxInputLen]
		g.metrics.FlagGuardrail("truncation")
		g.LogSecurityEvent("input_truncated", fmt.Sprintf("length=%d limit=%d", len(input), g.maxInputLen))
	}
	sanitized := string(runes)

	for _, p := range injectionPatterns {
		sanitized = p.ReplaceAllString(sanitized, "")
	}

	var b strings.Builder
	b.Grow(len(sanitized))
	for _, r := range sanitized {
		if unicode.IsControl(r) && r != '\n' && r != '\t' && r != '\r' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ScrubPII replaces structured identifiers, contact info, and payment
// numbers with redaction tokens. Deterministic and zero-latency: no extra
// model calls.
func (g *Guard) ScrubPII(text string) string {
	if text == "" {
		return text
	}
	scrubbed := text
	scrubbed = cpfPattern.ReplaceAllString(scrubbed, TokenCPF)
	scrubbed = rgPattern.ReplaceAllString(scrubbed, TokenRG)
	scrubbed = creditCardPattern.ReplaceAllString(scrubbed, TokenCreditCard)
	scrubbed = phonePattern.ReplaceAllString(scrubbed, TokenPhone)
	scrubbed = emailPattern.ReplaceAllString(scrubbed, TokenEmail)
	return scrubbed
}

// ContainsPII reports whether text matches any redaction pattern.
func ContainsPII(text string) bool {
	if text == "" {
		return false
	}
	for _, p := range []*regexp.Regexp{cpfPattern, rgPattern, phonePattern, emailPattern, creditCardPattern} {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// ValidateOutput scans generated text for sensitive patterns and disallowed
// keywords. Matches are redacted and flagged; the scrubbed text is always
// returned for delivery.
func (g *Guard) ValidateOutput(output string) Report {
	var issues []string

	if ContainsPII(output) {
		issues = append(issues, "output contains potential PII")
		g.metrics.FlagGuardrail("redaction")
		g.LogSecurityEvent("pii_redacted", "output matched redaction patterns")
	}

	for _, kw := range sensitiveKeywords {
		if keywordPatterns[kw].MatchString(output) {
			issues = append(issues, fmt.Sprintf("contains sensitive keyword: %s", kw))
			g.metrics.FlagGuardrail("keyword")
			g.LogSecurityEvent("sensitive_keyword", kw)
		}
	}

	return Report{
		Valid:    len(issues) == 0,
		Issues:   issues,
		Scrubbed: g.ScrubPII(output),
	}
}

// LogSecurityEvent records a security-relevant event for audit.
func (g *Guard) LogSecurityEvent(event, details string) {
	g.logger.Warn("security event", "event", event, "details", details)
}
