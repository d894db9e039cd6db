// Package scenario provides the seeded incident scenarios the pipeline
// draws from when an incident is triggered.
package scenario

import (
	"math/rand"
	"sync"

	"github.com/warroomhq/warroom/internal/domain"
)

// Scenario describes one seeded incident shape.
type Scenario struct {
	Title           string          `json:"title"`
	Description     string          `json:"description"`
	Severity        domain.Severity `json:"severity"`
	Category        domain.Category `json:"category"`
	AffectedSystems []string        `json:"affected_systems"`
	RootCause       string          `json:"root_cause"`
}

var catalog = []Scenario{
	{
		Title:           "Database Connection Pool Exhaustion - Production MySQL",
		Description:     "Production MySQL database experiencing connection pool exhaustion with applications unable to establish new connections.",
		Severity:        domain.SeverityCritical,
		Category:        domain.CategoryDatabase,
		AffectedSystems: []string{"mysql-prod-01", "mysql-prod-02", "app-servers-pool"},
		RootCause:       "Connection pool exhaustion due to long-running queries and insufficient connection cleanup",
	},
	{
		Title:           "DDoS Attack Detected - Main Web Application",
		Description:     "Distributed Denial of Service attack targeting main web application. Traffic spike: 50,000 requests/second.",
		Severity:        domain.SeverityCritical,
		Category:        domain.CategorySecurity,
		AffectedSystems: []string{"web-app-prod", "load-balancer-01", "cdn-endpoints"},
		RootCause:       "Coordinated DDoS attack using botnet across multiple geographic regions",
	},
	{
		Title:           "Kubernetes Pod Crash Loop - Microservices",
		Description:     "Critical microservices experiencing crash loop backoff in Kubernetes cluster. Pod restart count exceeded threshold.",
		Severity:        domain.SeverityHigh,
		Category:        domain.CategoryContainer,
		AffectedSystems: []string{"k8s-cluster-prod", "user-service", "order-service"},
		RootCause:       "Memory limits too restrictive for current workload causing OOMKilled events",
	},
	{
		Title:           "Network Switch Stack Failure - Data Center",
		Description:     "Core network switch stack failure in primary data center causing network segmentation across VLANs.",
		Severity:        domain.SeverityCritical,
		Category:        domain.CategoryNetwork,
		AffectedSystems: []string{"core-switch-stack", "vlan-infrastructure", "inter-dc-links"},
		RootCause:       "Switch stack master election failure due to firmware bug and split-brain condition",
	},
	{
		Title:           "API Rate Limit Exceeded - Payment Integration",
		Description:     "Third-party payment API rate limits exceeded causing transaction failures. 95% of payment requests failing.",
		Severity:        domain.SeverityHigh,
		Category:        domain.CategoryAPI,
		AffectedSystems: []string{"payment-service", "checkout-api", "billing-system"},
		RootCause:       "Inefficient API call patterns and missing request throttling mechanisms",
	},
}

// Source hands out scenarios, deterministically by category or randomly
// when no category is requested.
type Source struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSource creates a source seeded for reproducible random picks.
func NewSource(seed int64) *Source {
	return &Source{rng: rand.New(rand.NewSource(seed))}
}

// All returns a copy of the full catalog.
func All() []Scenario {
	out := make([]Scenario, len(catalog))
	for i, s := range catalog {
		out[i] = s.clone()
	}
	return out
}

// ByCategory returns the scenario for a category, or false if none exists.
func ByCategory(category domain.Category) (Scenario, bool) {
	for _, s := range catalog {
		if s.Category == category {
			return s.clone(), true
		}
	}
	return Scenario{}, false
}

// Pick returns the scenario for the category when one is given, otherwise a
// random catalog entry.
func (s *Source) Pick(category domain.Category) Scenario {
	if category != "" {
		if sc, ok := ByCategory(category); ok {
			return sc
		}
	}
	s.mu.Lock()
	idx := s.rng.Intn(len(catalog))
	s.mu.Unlock()
	return catalog[idx].clone()
}

func (s Scenario) clone() Scenario {
	out := s
	out.AffectedSystems = append([]string(nil), s.AffectedSystems...)
	return out
}
