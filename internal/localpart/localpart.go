// Package localpart generates the left-hand side of alias addresses.
package localpart

import (
	"math/rand/v2"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Strategy selects how a local part is produced.
type Strategy string

const (
	StrategyUUID   Strategy = "uuid"
	StrategyRandom Strategy = "random"
	StrategyDomain Strategy = "domain"
	StrategyCustom Strategy = "custom"
)

// PartType is the kind of a custom rule prefix or suffix.
type PartType string

const (
	PartNone      PartType = "none"
	PartYear      PartType = "yyyy"
	PartYearMonth PartType = "yyyymm"
	PartDate      PartType = "yyyymmdd"
	PartDateTime  PartType = "yyyymmddhhmm"
	PartRandom    PartType = "random"
	PartUUID      PartType = "uuid"
	PartText      PartType = "text"
)

// Valid reports whether s is a known strategy.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyUUID, StrategyRandom, StrategyDomain, StrategyCustom:
		return true
	default:
		return false
	}
}

// Valid reports whether t is a known part type. Empty counts as none.
func (t PartType) Valid() bool {
	switch t {
	case "", PartNone, PartYear, PartYearMonth, PartDate, PartDateTime, PartRandom, PartUUID, PartText:
		return true
	default:
		return false
	}
}

const (
	fallbackSiteSlug = "site"
	randomLength     = 8
	base36           = "0123456789abcdefghijklmnopqrstuvwxyz"
)

// Rule describes a custom local part: prefix, site slug, suffix.
// PrefixText and SuffixText must already be sanitised.
type Rule struct {
	PrefixType PartType `json:"prefixType"`
	PrefixText string   `json:"prefixText,omitempty"`
	SuffixType PartType `json:"suffixType"`
	SuffixText string   `json:"suffixText,omitempty"`
	// Separator is placed between non-empty segments. Empty disables it.
	Separator string `json:"separator,omitempty"`
}

// Generator produces local parts. The zero value is not usable; use New.
type Generator struct {
	mu      sync.Mutex // guards rng
	now     func() time.Time
	rng     *rand.Rand
	newUUID func() (uuid.UUID, error)
}

// Option configures a Generator.
type Option func(*Generator)

// WithClock sets the time source used by date parts.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) {
		g.now = now
	}
}

// WithRand sets the non-cryptographic random source.
func WithRand(r *rand.Rand) Option {
	return func(g *Generator) {
		g.rng = r
	}
}

// WithUUIDSource replaces the secure UUID source.
func WithUUIDSource(fn func() (uuid.UUID, error)) Option {
	return func(g *Generator) {
		g.newUUID = fn
	}
}

// New creates a Generator.
func New(opts ...Option) *Generator {
	g := &Generator{
		now:     time.Now,
		rng:     rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		newUUID: uuid.NewRandom,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

var defaultGenerator = New()

// Generate produces a local part with the default generator.
func Generate(strategy Strategy, currentURL string, rule *Rule) string {
	return defaultGenerator.Generate(strategy, currentURL, rule)
}

// Generate produces a local part. It is deterministic only for the domain
// strategy and for custom rules without random or uuid parts.
// Unknown strategies fall back to random.
func (g *Generator) Generate(strategy Strategy, currentURL string, rule *Rule) string {
	var out string
	switch strategy {
	case StrategyUUID:
		out = g.uuid()
	case StrategyDomain:
		out = SiteSlug(currentURL)
	case StrategyCustom:
		out = g.custom(currentURL, rule)
	default:
		out = g.random(randomLength)
	}
	// '@' can only reach us through unsanitised rule text.
	return strings.ReplaceAll(out, "@", "")
}

// SiteSlug returns the hostname of rawURL without a leading "www.", or
// "site" when the URL cannot be parsed.
func SiteSlug(rawURL string) string {
	raw := strings.TrimSpace(rawURL)
	if raw == "" {
		return fallbackSiteSlug
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fallbackSiteSlug
	}
	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")
	if host == "" {
		return fallbackSiteSlug
	}
	return host
}

func (g *Generator) custom(currentURL string, rule *Rule) string {
	slug := SiteSlug(currentURL)
	if rule == nil {
		return slug
	}

	prefix := g.part(rule.PrefixType, rule.PrefixText)
	suffix := g.part(rule.SuffixType, rule.SuffixText)

	var b strings.Builder
	if prefix != "" {
		b.WriteString(prefix)
		b.WriteString(rule.Separator)
	}
	b.WriteString(slug)
	if suffix != "" {
		b.WriteString(rule.Separator)
		b.WriteString(suffix)
	}
	return b.String()
}

func (g *Generator) part(t PartType, text string) string {
	now := g.now()
	switch t {
	case PartYear:
		return now.Format("2006")
	case PartYearMonth:
		return now.Format("200601")
	case PartDate:
		return now.Format("20060102")
	case PartDateTime:
		return now.Format("200601021504")
	case PartRandom:
		return g.random(randomLength)
	case PartUUID:
		// First group only; a full UUID on top of the slug overflows most
		// providers' local part limits.
		return g.uuid()[:8]
	case PartText:
		return text
	default:
		return ""
	}
}

func (g *Generator) random(n int) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	b := make([]byte, n)
	for i := range b {
		b[i] = base36[g.rng.IntN(len(base36))]
	}
	return string(b)
}

// uuid returns a v4 UUID, falling back to the non-cryptographic source
// when the secure one fails.
func (g *Generator) uuid() string {
	if id, err := g.newUUID(); err == nil {
		return id.String()
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	var id uuid.UUID
	for i := 0; i < len(id); i += 8 {
		v := g.rng.Uint64()
		for j := 0; j < 8; j++ {
			id[i+j] = byte(v >> (8 * j))
		}
	}
	id[6] = (id[6] & 0x0f) | 0x40
	id[8] = (id[8] & 0x3f) | 0x80
	return id.String()
}
