package settings

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/sipico/alias-relay/internal/localpart"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("settings: invalid configuration")

// Separators lists the characters a custom rule may place between segments.
var Separators = []string{".", "_", "-"}

// Normalize validates cfg and rewrites it into canonical form: rule text is
// reduced to [a-zA-Z0-9], domains are lower-cased and deduplicated.
func Normalize(cfg *ProviderConfig) error {
	if cfg.ActiveFormat == "" {
		cfg.ActiveFormat = localpart.StrategyRandom
	}
	if !cfg.ActiveFormat.Valid() {
		return fmt.Errorf("%w: unknown format %q", ErrInvalidConfig, cfg.ActiveFormat)
	}

	cfg.Token = strings.TrimSpace(cfg.Token)

	if cfg.BaseURL = strings.TrimSpace(cfg.BaseURL); cfg.BaseURL != "" {
		u, err := url.Parse(cfg.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w: base URL must be an http(s) URL", ErrInvalidConfig)
		}
	}

	cfg.DefaultDomain = normalizeDomain(cfg.DefaultDomain)

	if cfg.CustomRule != nil {
		if err := normalizeRule(cfg.CustomRule); err != nil {
			return err
		}
	}

	if cfg.DomainCatchAllStatus == nil {
		cfg.DomainCatchAllStatus = map[string]bool{}
	}
	cfg.CachedDomains = dedupDomains(cfg.CachedDomains)
	cfg.FavoriteDomains = dedupDomains(cfg.FavoriteDomains)
	return nil
}

func normalizeRule(rule *localpart.Rule) error {
	if !rule.PrefixType.Valid() {
		return fmt.Errorf("%w: unknown prefix type %q", ErrInvalidConfig, rule.PrefixType)
	}
	if !rule.SuffixType.Valid() {
		return fmt.Errorf("%w: unknown suffix type %q", ErrInvalidConfig, rule.SuffixType)
	}
	if rule.PrefixType == "" {
		rule.PrefixType = localpart.PartNone
	}
	if rule.SuffixType == "" {
		rule.SuffixType = localpart.PartNone
	}
	rule.PrefixText = SanitizeRuleText(rule.PrefixText)
	rule.SuffixText = SanitizeRuleText(rule.SuffixText)

	if rule.Separator != "" {
		valid := false
		for _, sep := range Separators {
			if rule.Separator == sep {
				valid = true
				break
			}
		}
		if !valid {
			return fmt.Errorf("%w: separator must be one of %s", ErrInvalidConfig, strings.Join(Separators, " "))
		}
	}
	return nil
}

// SanitizeRuleText keeps only ASCII letters and digits.
func SanitizeRuleText(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func normalizeDomain(domain string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(domain), "@"))
}

func dedupDomains(domains []string) []string {
	if len(domains) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(domains))
	out := make([]string, 0, len(domains))
	for _, d := range domains {
		d = normalizeDomain(d)
		if d == "" {
			continue
		}
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	return out
}
