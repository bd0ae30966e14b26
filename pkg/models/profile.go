package models

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// SkillEntry is a single skill on a candidate profile. Confidence is optional
// and, when present, in [0,1].
type SkillEntry struct {
	Name       string   `json:"name"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// CandidateProfile is the normalized view of an enriched profile consumed by
// the embed path. The source of truth lives in the operational store.
type CandidateProfile struct {
	ID              string             `json:"id"`
	DisplayName     string             `json:"displayName"`
	CurrentTitle    string             `json:"currentTitle"`
	CurrentCompany  string             `json:"currentCompany"`
	Summary         string             `json:"summary"`
	Location        string             `json:"location,omitempty"`
	Skills          []SkillEntry       `json:"skills,omitempty"`
	ExperienceYears float64            `json:"experienceYears,omitempty"`
	SeniorityLevel  string             `json:"seniorityLevel,omitempty"`
	Companies       []string           `json:"companies,omitempty"`
	Domains         []string           `json:"domains,omitempty"`
	Keywords        []string           `json:"keywords,omitempty"`
	WorkHistory     []WorkHistoryEntry `json:"workHistory,omitempty"`
	LastUpdatedAt   *time.Time         `json:"lastUpdatedAt,omitempty"`
}

// Searchable produces the canonical text serialization used as embedding
// input and BM25 corpus. Sections are emitted in a fixed order and list
// fields are sorted, so the output is stable under field reordering and
// deterministic for identical inputs.
func (p *CandidateProfile) Searchable() string {
	var b strings.Builder

	writeLine := func(label, value string) {
		value = strings.TrimSpace(value)
		if value == "" {
			return
		}
		b.WriteString(label)
		b.WriteString(": ")
		b.WriteString(value)
		b.WriteString("\n")
	}
	writeList := func(label string, items []string) {
		cleaned := make([]string, 0, len(items))
		for _, it := range items {
			if it = strings.TrimSpace(it); it != "" {
				cleaned = append(cleaned, strings.ToLower(it))
			}
		}
		if len(cleaned) == 0 {
			return
		}
		sort.Strings(cleaned)
		writeLine(label, strings.Join(cleaned, ", "))
	}

	writeLine("name", p.DisplayName)
	writeLine("title", p.CurrentTitle)
	writeLine("company", p.CurrentCompany)
	writeLine("location", p.Location)
	writeLine("summary", p.Summary)

	skills := make([]string, 0, len(p.Skills))
	for _, s := range p.Skills {
		if name := strings.TrimSpace(s.Name); name != "" {
			skills = append(skills, name)
		}
	}
	writeList("skills", skills)

	if p.ExperienceYears > 0 {
		writeLine("experience_years", fmt.Sprintf("%.1f", p.ExperienceYears))
	}
	writeLine("seniority", strings.ToLower(p.SeniorityLevel))
	writeList("companies", p.Companies)
	writeList("domains", p.Domains)
	writeList("keywords", p.Keywords)

	// History stays in chronological order; sorting would destroy the
	// progression the text is meant to convey.
	titles := make([]string, 0, len(p.WorkHistory))
	for _, entry := range p.WorkHistory {
		if title := strings.TrimSpace(entry.Title); title != "" {
			titles = append(titles, strings.ToLower(title))
		}
	}
	if len(titles) > 0 {
		writeLine("history", strings.Join(titles, "; "))
	}

	return b.String()
}

// Empty reports whether the profile carries no usable text at all.
func (p *CandidateProfile) Empty() bool {
	return strings.TrimSpace(p.Searchable()) == ""
}
