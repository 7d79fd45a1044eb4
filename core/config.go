package core

import (
	"fmt"
	"strings"
)

// MatcherConfig carries the tunable decision thresholds for one matcher
// pass. It is passed explicitly per run so tenants can be tuned
// independently and tests stay reproducible.
type MatcherConfig struct {
	SettlementWindowDays  int     `koanf:"settlement_window_days" mapstructure:"settlement_window_days"`
	AmountToleranceMinor  int64   `koanf:"amount_tolerance_minor" mapstructure:"amount_tolerance_minor"`
	SimilarityThreshold   float64 `koanf:"similarity_threshold" mapstructure:"similarity_threshold"`
	OpsMatchWindowHours   int     `koanf:"ops_match_window_hours" mapstructure:"ops_match_window_hours"`
	PayoutAgingDays       int     `koanf:"payout_aging_days" mapstructure:"payout_aging_days"`
	GhostAgingDays        int     `koanf:"ghost_aging_days" mapstructure:"ghost_aging_days"`
	TimingDriftDays       int     `koanf:"timing_drift_days" mapstructure:"timing_drift_days"`
	MaxSubsetCandidates   int     `koanf:"max_subset_candidates" mapstructure:"max_subset_candidates"`
	MaxSubsetAlternatives int     `koanf:"max_subset_alternatives" mapstructure:"max_subset_alternatives"`
}

// FingerprintConfig controls counterparty normalization. The stop tokens
// collapse processor boilerplate ("STRIPE PAYOUT ST-xxx" and friends) so the
// same real-world transfer fingerprints identically across banks.
type FingerprintConfig struct {
	StopTokens []string `koanf:"stop_tokens" mapstructure:"stop_tokens"`
}

type Config struct {
	ServiceName string            `koanf:"service_name" mapstructure:"service_name"`
	Matcher     MatcherConfig     `koanf:"matcher" mapstructure:"matcher"`
	Fingerprint FingerprintConfig `koanf:"fingerprint" mapstructure:"fingerprint"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "reconcile",
		Matcher: MatcherConfig{
			SettlementWindowDays:  2,
			AmountToleranceMinor:  100,
			SimilarityThreshold:   0.82,
			OpsMatchWindowHours:   24,
			PayoutAgingDays:       5,
			GhostAgingDays:        7,
			TimingDriftDays:       10,
			MaxSubsetCandidates:   24,
			MaxSubsetAlternatives: 8,
		},
		Fingerprint: FingerprintConfig{
			StopTokens: defaultStopTokens(),
		},
	}
}

func defaultStopTokens() []string {
	return []string{
		"stripe", "adyen", "square", "paypal", "payout", "transfer",
		"deposit", "ach", "orig", "co", "name", "des", "ref", "id",
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if err := c.Matcher.Validate(); err != nil {
		return err
	}
	return nil
}

func (c MatcherConfig) Validate() error {
	if c.SettlementWindowDays <= 0 {
		return fmt.Errorf("core: matcher settlement_window_days must be positive")
	}
	if c.AmountToleranceMinor < 0 {
		return fmt.Errorf("core: matcher amount_tolerance_minor must not be negative")
	}
	if c.SimilarityThreshold <= 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("core: matcher similarity_threshold must be in (0, 1]")
	}
	if c.OpsMatchWindowHours <= 0 {
		return fmt.Errorf("core: matcher ops_match_window_hours must be positive")
	}
	if c.PayoutAgingDays <= 0 || c.GhostAgingDays <= 0 {
		return fmt.Errorf("core: matcher aging windows must be positive")
	}
	if c.TimingDriftDays < c.PayoutAgingDays {
		return fmt.Errorf("core: matcher timing_drift_days must not undercut payout_aging_days")
	}
	if c.MaxSubsetCandidates <= 0 {
		return fmt.Errorf("core: matcher max_subset_candidates must be positive")
	}
	if c.MaxSubsetAlternatives < 2 {
		return fmt.Errorf("core: matcher max_subset_alternatives must be at least 2")
	}
	return nil
}
