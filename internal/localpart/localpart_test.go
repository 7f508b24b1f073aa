package localpart

import (
	"errors"
	"math/rand/v2"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

var uuidV4 = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

func fixedGenerator(opts ...Option) *Generator {
	clock := func() time.Time {
		return time.Date(2026, time.March, 7, 9, 5, 0, 0, time.UTC)
	}
	base := []Option{WithClock(clock), WithRand(rand.New(rand.NewPCG(1, 2)))}
	return New(append(base, opts...)...)
}

func TestSiteSlug(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want string
	}{
		{"https://www.github.com/login", "github.com"},
		{"https://GitLab.com", "gitlab.com"},
		{"http://shop.example.co.uk:8080/cart?x=1", "shop.example.co.uk"},
		{"example.org/path", "example.org"},
		{"", "site"},
		{"https://", "site"},
		{"://bad url%%", "site"},
	}
	for _, tt := range tests {
		if got := SiteSlug(tt.in); got != tt.want {
			t.Errorf("SiteSlug(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestGenerateStrategies(t *testing.T) {
	t.Parallel()
	g := fixedGenerator()

	if got := g.Generate(StrategyDomain, "https://www.news.ycombinator.com", nil); got != "news.ycombinator.com" {
		t.Errorf("domain strategy = %q", got)
	}

	random := g.Generate(StrategyRandom, "", nil)
	if !regexp.MustCompile(`^[0-9a-z]{8}$`).MatchString(random) {
		t.Errorf("random strategy = %q, want 8 base36 chars", random)
	}

	if got := g.Generate(StrategyUUID, "", nil); !uuidV4.MatchString(got) {
		t.Errorf("uuid strategy = %q, want v4 uuid", got)
	}

	if got := g.Generate("bogus", "", nil); len(got) != randomLength {
		t.Errorf("unknown strategy = %q, want random fallback", got)
	}
}

func TestUUIDFallbackWithoutSecureSource(t *testing.T) {
	t.Parallel()
	g := fixedGenerator(WithUUIDSource(func() (uuid.UUID, error) {
		return uuid.Nil, errors.New("no entropy")
	}))
	for i := 0; i < 50; i++ {
		got := g.Generate(StrategyUUID, "", nil)
		if !uuidV4.MatchString(got) {
			t.Fatalf("fallback uuid %q is not v4 shaped", got)
		}
	}
}

func TestCustomRuleWithoutPrefixOrSuffixIsSlug(t *testing.T) {
	t.Parallel()
	g := fixedGenerator()
	for _, sep := range []string{"", ".", "_", "-"} {
		for _, pt := range []PartType{PartNone, ""} {
			rule := &Rule{PrefixType: pt, SuffixType: PartNone, Separator: sep, PrefixText: "ignored"}
			got := g.Generate(StrategyCustom, "https://www.example.com", rule)
			if got != "example.com" {
				t.Errorf("sep %q: got %q, want exact slug", sep, got)
			}
		}
	}
	if got := g.Generate(StrategyCustom, "https://example.com", nil); got != "example.com" {
		t.Errorf("nil rule: got %q", got)
	}
}

func TestCustomRuleParts(t *testing.T) {
	t.Parallel()
	g := fixedGenerator()
	tests := []struct {
		name string
		rule Rule
		want string
	}{
		{"year prefix", Rule{PrefixType: PartYear, SuffixType: PartNone, Separator: "."}, "2026.example.com"},
		{"month suffix", Rule{PrefixType: PartNone, SuffixType: PartYearMonth, Separator: "_"}, "example.com_202603"},
		{"date both", Rule{PrefixType: PartDate, SuffixType: PartDateTime, Separator: "-"}, "20260307-example.com-202603070905"},
		{"text no separator", Rule{PrefixType: PartText, PrefixText: "shop", SuffixType: PartText, SuffixText: "x1"}, "shopexample.comx1"},
		{"empty text skips separator", Rule{PrefixType: PartText, PrefixText: "", SuffixType: PartNone, Separator: "."}, "example.com"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := tt.rule
			if got := g.Generate(StrategyCustom, "https://example.com", &rule); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}

	got := g.Generate(StrategyCustom, "https://example.com", &Rule{PrefixType: PartRandom, SuffixType: PartUUID, Separator: "."})
	if !regexp.MustCompile(`^[0-9a-z]{8}\.example\.com\.[0-9a-f]{8}$`).MatchString(got) {
		t.Errorf("random/uuid parts = %q", got)
	}
}

func TestGenerateNeverContainsAt(t *testing.T) {
	t.Parallel()
	g := fixedGenerator()
	rule := &Rule{PrefixType: PartText, PrefixText: "a@b", SuffixType: PartRandom, Separator: "."}
	for _, s := range []Strategy{StrategyUUID, StrategyRandom, StrategyDomain, StrategyCustom} {
		for _, u := range []string{"https://user@example.com", "mailto:x@y.z", ""} {
			if got := g.Generate(s, u, rule); strings.Contains(got, "@") {
				t.Errorf("Generate(%s, %q) = %q contains @", s, u, got)
			}
		}
	}
}

func TestPackageGenerate(t *testing.T) {
	t.Parallel()
	if got := Generate(StrategyDomain, "https://www.example.net", nil); got != "example.net" {
		t.Errorf("Generate = %q", got)
	}
}

func TestValid(t *testing.T) {
	t.Parallel()

	for _, s := range []Strategy{StrategyUUID, StrategyRandom, StrategyDomain, StrategyCustom} {
		if !s.Valid() {
			t.Errorf("%q should be valid", s)
		}
	}
	if Strategy("words").Valid() {
		t.Error("unknown strategy reported valid")
	}
	if !PartType("").Valid() || !PartDateTime.Valid() {
		t.Error("empty and yyyymmddhhmm should be valid part types")
	}
	if PartType("hh").Valid() {
		t.Error("unknown part type reported valid")
	}
}
