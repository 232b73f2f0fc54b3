package categorization

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

var ErrInvalidRule = errors.New("invalid categorization rule")

// Rule maps description patterns to ledger hints. Higher Priority wins.
type Rule struct {
	ID           uuid.UUID `yaml:"-"`
	Name         string    `yaml:"name"`
	Priority     int       `yaml:"priority"`
	Patterns     []string  `yaml:"patterns"`
	Account      string    `yaml:"account,omitempty"`
	Counterparty string    `yaml:"counterparty,omitempty"`
	Tax          string    `yaml:"tax,omitempty"`
	PaymentMode  string    `yaml:"payment_mode,omitempty"`
	Enabled      *bool     `yaml:"enabled,omitempty"`
}

// IsEnabled treats an unset flag as enabled.
func (r Rule) IsEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}

// Validate checks that the rule can match and produces at least one hint.
func (r Rule) Validate() error {
	if len(r.Patterns) == 0 {
		return fmt.Errorf("%w: %q has no patterns", ErrInvalidRule, r.Name)
	}
	for _, p := range r.Patterns {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("%w: %q has an empty pattern", ErrInvalidRule, r.Name)
		}
	}
	if r.Account == "" && r.Counterparty == "" && r.Tax == "" && r.PaymentMode == "" {
		return fmt.Errorf("%w: %q sets no account, counterparty, tax or payment mode", ErrInvalidRule, r.Name)
	}
	return nil
}

// Counterparty is a known customer or supplier.
type Counterparty struct {
	ID             uuid.UUID `csv:"-"`
	Name           string    `csv:"name"`
	Kind           string    `csv:"kind"`
	DefaultAccount string    `csv:"default_account"`
}

// Account is one entry in the chart of accounts.
type Account struct {
	ID     uuid.UUID
	Name   string
	Type   string
	IsBank bool
}

type rulesFile struct {
	Rules []Rule `yaml:"rules"`
}

// ParseRules decodes a YAML rules document.
func ParseRules(data []byte) ([]Rule, error) {
	var f rulesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse rules: %w", err)
	}
	for i := range f.Rules {
		if err := f.Rules[i].Validate(); err != nil {
			return nil, fmt.Errorf("rule %d: %w", i+1, err)
		}
		if f.Rules[i].ID == uuid.Nil {
			f.Rules[i].ID = uuid.NewSHA1(uuid.NameSpaceOID, []byte(f.Rules[i].Name))
		}
	}
	return f.Rules, nil
}

// LoadRulesFile reads rules from a YAML file.
func LoadRulesFile(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	return ParseRules(data)
}
