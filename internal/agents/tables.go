package agents

import (
	"github.com/warroomhq/warroom/internal/domain"
)

// escalationTeams maps incident categories to the team that owns them.
var escalationTeams = map[domain.Category]string{
	domain.CategoryDatabase:  "Database Engineering",
	domain.CategorySecurity:  "Security Operations Center",
	domain.CategoryNetwork:   "Network Operations Team",
	domain.CategoryContainer: "Platform Engineering",
	domain.CategoryAPI:       "API Platform Team",
}

// escalationTeam resolves the owning team, widened by severity.
func escalationTeam(category domain.Category, severity domain.Severity) string {
	team, ok := escalationTeams[category]
	if !ok {
		team = "General Operations"
	}
	switch severity {
	case domain.SeverityCritical:
		return "Senior " + team + " + Management"
	case domain.SeverityHigh:
		return "Senior " + team
	}
	return team
}

// onCallEngineers maps categories to the specialists who can be paged.
var onCallEngineers = map[domain.Category][]string{
	domain.CategoryDatabase:  {"Sarah Chen (DB Architect)", "Marcus Rodriguez (Sr. DBA)", "Priya Patel (DB Performance)"},
	domain.CategorySecurity:  {"Alex Thompson (Security Lead)", "Jordan Kim (Incident Response)", "Riley Foster (Threat Analysis)"},
	domain.CategoryNetwork:   {"David Wilson (Network Architect)", "Maya Singh (Sr. Network Engineer)", "Chris Anderson (NOC Lead)"},
	domain.CategoryContainer: {"Morgan Davis (K8s Expert)", "Casey Johnson (Platform Lead)", "Avery Taylor (DevOps)"},
}

var fallbackEngineers = []string{"Jamie Smith (Sr. Engineer)", "Taylor Jones (Operations)", "Cameron Lee (Specialist)"}

// onCallEngineer picks a specialist for the category, doubling up on
// critical incidents.
func onCallEngineer(rng Rand, category domain.Category, severity domain.Severity) string {
	pool, ok := onCallEngineers[category]
	if !ok {
		pool = fallbackEngineers
	}
	engineer := pool[rng.Intn(len(pool))]
	if severity == domain.SeverityCritical {
		return engineer + " + Backup Engineer"
	}
	return engineer
}

// resolutionEstimates maps categories to expected resolution windows.
var resolutionEstimates = map[domain.Category]string{
	domain.CategoryDatabase:  "2-4 hours",
	domain.CategorySecurity:  "1-6 hours (depends on scope)",
	domain.CategoryNetwork:   "1-3 hours",
	domain.CategoryContainer: "1-2 hours",
	domain.CategoryAPI:       "1-2 hours",
}

// resolutionEstimate resolves the expected window, expedited when critical.
func resolutionEstimate(category domain.Category, severity domain.Severity) string {
	estimate, ok := resolutionEstimates[category]
	if !ok {
		estimate = "2-4 hours"
	}
	if severity == domain.SeverityCritical {
		return estimate + " (expedited with senior engineers)"
	}
	return estimate
}

// idTail returns the last n characters of an identifier, used for the
// human-readable reference suffixes.
func idTail(id string, n int) string {
	if len(id) <= n {
		return id
	}
	return id[len(id)-n:]
}
