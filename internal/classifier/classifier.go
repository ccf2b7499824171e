package classifier

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/opsdesk-io/servicedesk/internal/domain"
)

// Rule maps trigger keywords to a category and priority. Rules are evaluated
// in order; the first rule with any keyword present wins.
type Rule struct {
	Keywords []string              `yaml:"keywords"`
	Category domain.Category       `yaml:"category"`
	Priority domain.TicketPriority `yaml:"priority"`
}

// Result is the classification outcome for one message.
type Result struct {
	Category domain.Category
	Priority domain.TicketPriority
	// Rule is the index of the matching rule, -1 when the fallback applied.
	Rule     int
	Fallback bool
}

// Classifier assigns a category and priority from subject/body keywords.
type Classifier struct {
	rules []Rule
}

// DefaultRules returns the built-in keyword table.
func DefaultRules() []Rule {
	return []Rule{
		{Keywords: []string{"password", "reset", "unlock"}, Category: domain.CategoryAccess, Priority: domain.TicketPriorityLow},
		{Keywords: []string{"vpn", "connect", "cannot connect", "network"}, Category: domain.CategoryNetwork, Priority: domain.TicketPriorityMedium},
		{Keywords: []string{"server down", "down", "outage", "unreachable"}, Category: domain.CategoryInfrastructure, Priority: domain.TicketPriorityHigh},
		{Keywords: []string{"email", "outlook", "send", "receive"}, Category: domain.CategoryEmail, Priority: domain.TicketPriorityMedium},
		{Keywords: []string{"install", "software", "upgrade"}, Category: domain.CategorySoftware, Priority: domain.TicketPriorityLow},
	}
}

// New builds a classifier. An empty rule list selects the default table.
func New(rules []Rule) (*Classifier, error) {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	for i, rule := range rules {
		if len(rule.Keywords) == 0 {
			return nil, fmt.Errorf("rule %d has no keywords", i)
		}
		if !rule.Category.Valid() {
			return nil, fmt.Errorf("rule %d has unknown category %q", i, rule.Category)
		}
		if !rule.Priority.Valid() {
			return nil, fmt.Errorf("rule %d has unknown priority %q", i, rule.Priority)
		}
	}
	return &Classifier{rules: rules}, nil
}

// LoadRules reads an ordered rule table from a YAML file.
func LoadRules(path string) ([]Rule, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}
	var doc struct {
		Rules []Rule `yaml:"rules"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	return doc.Rules, nil
}

// Classify is total: every message yields a category and priority. Messages
// matching no rule land on OTHER/LOW.
func (c *Classifier) Classify(msg domain.InboundMessage) Result {
	haystack := strings.ToLower(msg.Subject + "\n" + msg.Body)
	for i, rule := range c.rules {
		for _, keyword := range rule.Keywords {
			if strings.Contains(haystack, strings.ToLower(keyword)) {
				return Result{Category: rule.Category, Priority: rule.Priority, Rule: i}
			}
		}
	}
	return Result{Category: domain.CategoryOther, Priority: domain.TicketPriorityLow, Rule: -1, Fallback: true}
}

// Rules returns the active rule table.
func (c *Classifier) Rules() []Rule {
	return c.rules
}
