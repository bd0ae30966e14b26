package scoring

import (
	"sort"
	"strings"

	"github.com/talentmesh/talentmesh/pkg/models"
	"github.com/talentmesh/talentmesh/pkg/observability"
)

// JDFeatures is what stage 2 derives from a job description before any
// candidate is scored.
type JDFeatures struct {
	RoleType        string   `json:"roleType"`
	RoleTypeCue     string   `json:"roleTypeCue,omitempty"`
	RequiredSkills  []string `json:"requiredSkills"`
	TargetSeniority int      `json:"targetSeniority"`
	TargetDomains   []string `json:"targetDomains,omitempty"`
	WantsTopTier    bool     `json:"wantsTopTier,omitempty"`
}

// tierCues in a JD signal that company pedigree matters for this search.
// Terms are in normalized text form.
var tierCues = []string{"faang", "big tech", "top tier", "tier 1", "fortune 500"}

// Analyzer derives JDFeatures from free-form JD text. The role-type keyword
// rules come from configuration so recruiters can tune them without a
// deploy; every classification decision is logged.
type Analyzer struct {
	managerKeywords []string
	icKeywords      []string
	logger          observability.Logger
}

// NewAnalyzer builds an analyzer with the given classifier rules. Keywords
// are matched case-insensitively against punctuation-stripped JD text.
func NewAnalyzer(managerKeywords, icKeywords []string, logger observability.Logger) *Analyzer {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &Analyzer{
		managerKeywords: normalizeTerms(managerKeywords),
		icKeywords:      normalizeTerms(icKeywords),
		logger:          logger,
	}
}

// Analyze extracts required skills, target seniority, target domains and the
// role type from JD text.
func (a *Analyzer) Analyze(jd string) JDFeatures {
	normalized := normalizeText(jd)
	padded := " " + normalized + " "

	features := JDFeatures{
		RequiredSkills:  extractSkills(padded),
		TargetSeniority: TitleLevel(jd),
		TargetDomains:   extractDomains(padded),
		WantsTopTier:    containsAny(padded, tierCues),
	}
	features.RoleType, features.RoleTypeCue = a.classifyRoleType(padded)

	a.logger.Info("job description classified", map[string]interface{}{
		"roleType":        features.RoleType,
		"roleTypeCue":     features.RoleTypeCue,
		"targetSeniority": LevelName(features.TargetSeniority),
		"requiredSkills":  features.RequiredSkills,
		"targetDomains":   features.TargetDomains,
	})
	return features
}

// classifyRoleType returns manager only when a manager cue is present and no
// IC cue contradicts it. Everything else is an IC search.
func (a *Analyzer) classifyRoleType(padded string) (roleType, cue string) {
	managerCue := firstMatch(padded, a.managerKeywords)
	icCue := firstMatch(padded, a.icKeywords)

	if managerCue != "" && icCue == "" {
		return models.RoleTypeManager, managerCue
	}
	if icCue != "" {
		return models.RoleTypeIC, icCue
	}
	return models.RoleTypeIC, ""
}

// skillDictionary maps every term the extractor recognizes, in normalized
// text form, to its canonical skill. Built from the alias table, the
// transfer graph, and a handful of common skills with no graph edges.
var skillDictionary = buildSkillDictionary()

func buildSkillDictionary() map[string]string {
	extras := []string{
		"rust", "c", "php", "swift", "objective-c", "graphql",
		"django", "rails", "spring", "dotnet", "flask",
		"linux", "ansible", "jenkins", "prometheus", "grafana",
		"dynamodb", "sqlite", "snowflake", "airflow", "dbt",
	}

	dict := make(map[string]string, len(skillAliases)+len(transferability)*3+len(extras))
	for alias, canonical := range skillAliases {
		dict[normalizeText(alias)] = canonical
	}
	for from, edges := range transferability {
		dict[normalizeText(from)] = from
		for to := range edges {
			dict[normalizeText(to)] = to
		}
	}
	for _, skill := range extras {
		dict[normalizeText(skill)] = NormalizeSkill(skill)
	}
	return dict
}

func extractSkills(padded string) []string {
	seen := make(map[string]bool)
	for term, canonical := range skillDictionary {
		if strings.Contains(padded, " "+term+" ") {
			seen[canonical] = true
		}
	}
	skills := make([]string, 0, len(seen))
	for s := range seen {
		skills = append(skills, s)
	}
	sort.Strings(skills)
	return skills
}

func extractDomains(padded string) []string {
	seen := make(map[string]bool)
	for term, canonical := range domainDictionary {
		if strings.Contains(padded, " "+term+" ") {
			seen[canonical] = true
		}
	}
	domains := make([]string, 0, len(seen))
	for d := range seen {
		domains = append(domains, d)
	}
	sort.Strings(domains)
	return domains
}

// normalizeText lowercases and strips punctuation so dictionary terms match
// regardless of separators. '#' and '+' survive for names like c# and c++.
func normalizeText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	lastSpace := true
	for _, r := range strings.ToLower(s) {
		keep := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '#' || r == '+'
		if keep {
			b.WriteRune(r)
			lastSpace = false
			continue
		}
		if !lastSpace {
			b.WriteByte(' ')
			lastSpace = true
		}
	}
	return strings.TrimSpace(b.String())
}

func normalizeTerms(terms []string) []string {
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		if n := normalizeText(t); n != "" {
			out = append(out, n)
		}
	}
	return out
}

func firstMatch(padded string, terms []string) string {
	for _, t := range terms {
		if strings.Contains(padded, " "+t+" ") {
			return t
		}
	}
	return ""
}

func containsAny(padded string, terms []string) bool {
	return firstMatch(padded, terms) != ""
}
