package scoring

import "strings"

// domainDictionary maps normalized JD/profile terms to canonical domain
// names. Closed set; unrecognized domains simply never match.
var domainDictionary = map[string]string{
	"fintech":            "fintech",
	"financial services": "fintech",
	"payments":           "fintech",
	"banking":            "fintech",
	"healthcare":         "health",
	"healthtech":         "health",
	"health tech":        "health",
	"medical":            "health",
	"ecommerce":          "ecommerce",
	"e commerce":         "ecommerce",
	"retail":             "ecommerce",
	"marketplace":        "ecommerce",
	"adtech":             "adtech",
	"ad tech":            "adtech",
	"advertising":        "adtech",
	"edtech":             "edtech",
	"education":          "edtech",
	"gaming":             "gaming",
	"games":              "gaming",
	"security":           "security",
	"cybersecurity":      "security",
	"cyber security":     "security",
	"infrastructure":     "infrastructure",
	"cloud":              "infrastructure",
	"devtools":           "devtools",
	"dev tools":          "devtools",
	"developer tools":    "devtools",
	"logistics":          "logistics",
	"supply chain":       "logistics",
	"delivery":           "logistics",
	"insurance":          "insurtech",
	"insurtech":          "insurtech",
	"crypto":             "crypto",
	"blockchain":         "crypto",
	"web3":               "crypto",
	"media":              "media",
	"streaming":          "media",
	"entertainment":      "media",
	"social":             "social",
	"travel":             "travel",
	"hospitality":        "travel",
	"real estate":        "proptech",
	"proptech":           "proptech",
	"saas":               "saas",
	"b2b saas":           "saas",
	"data platform":      "data",
	"analytics":          "data",
	"climate":            "energy",
	"energy":             "energy",
	"automotive":         "automotive",
	"telecom":            "telecom",
}

// companyDomains maps well-known companies onto canonical domains so a
// candidate whose profile lists companies but no domains still gets a
// relevance signal.
var companyDomains = map[string][]string{
	"stripe":      {"fintech"},
	"square":      {"fintech"},
	"block":       {"fintech"},
	"plaid":       {"fintech"},
	"adyen":       {"fintech"},
	"robinhood":   {"fintech"},
	"coinbase":    {"fintech", "crypto"},
	"google":      {"infrastructure", "adtech"},
	"meta":        {"social", "adtech"},
	"amazon":      {"ecommerce", "infrastructure"},
	"apple":       {"infrastructure"},
	"microsoft":   {"infrastructure", "saas"},
	"netflix":     {"media"},
	"spotify":     {"media"},
	"shopify":     {"ecommerce"},
	"uber":        {"logistics"},
	"lyft":        {"logistics"},
	"doordash":    {"logistics"},
	"instacart":   {"logistics", "ecommerce"},
	"airbnb":      {"travel"},
	"booking.com": {"travel"},
	"datadog":     {"devtools", "infrastructure"},
	"hashicorp":   {"devtools", "infrastructure"},
	"confluent":   {"devtools", "data"},
	"snowflake":   {"data", "infrastructure"},
	"databricks":  {"data"},
	"palantir":    {"data"},
	"cloudflare":  {"infrastructure", "security"},
	"crowdstrike": {"security"},
	"okta":        {"security"},
	"salesforce":  {"saas"},
	"atlassian":   {"saas", "devtools"},
	"epic games":  {"gaming"},
	"unity":       {"gaming"},
	"oscar":       {"health", "insurtech"},
}

// tierOne marks companies treated as top-tier when a JD asks for that
// pedigree explicitly.
var tierOne = map[string]bool{
	"google":    true,
	"meta":      true,
	"amazon":    true,
	"apple":     true,
	"microsoft": true,
	"netflix":   true,
	"stripe":    true,
	"uber":      true,
	"airbnb":    true,
}

func normalizeDomain(domain string) string {
	n := normalizeText(domain)
	if canonical, ok := domainDictionary[n]; ok {
		return canonical
	}
	return n
}

func normalizeCompany(company string) string {
	return strings.ToLower(strings.TrimSpace(company))
}

// companyRelevance measures how much of the candidate's company history
// lines up with what the JD asks for. Companies are matched through the
// domain table (and the tier table when the JD wants pedigree); when the
// profile carries explicit domains, coverage of the target domains is an
// alternate path and the better fraction wins. ok is false when either side
// has nothing to measure.
func companyRelevance(companies, candidateDomains, targetDomains []string, wantsTopTier bool) (float64, bool) {
	targets := make(map[string]bool, len(targetDomains))
	for _, d := range targetDomains {
		if n := normalizeDomain(d); n != "" {
			targets[n] = true
		}
	}
	if len(targets) == 0 && !wantsTopTier {
		return 0, false
	}
	if len(companies) == 0 && len(candidateDomains) == 0 {
		return 0, false
	}

	best := 0.0
	scored := false

	if len(companies) > 0 {
		matched := 0
		for _, c := range companies {
			name := normalizeCompany(c)
			if wantsTopTier && tierOne[name] {
				matched++
				continue
			}
			for _, d := range companyDomains[name] {
				if targets[d] {
					matched++
					break
				}
			}
		}
		best = float64(matched) / float64(len(companies))
		scored = true
	}

	if len(candidateDomains) > 0 && len(targets) > 0 {
		covered := 0
		for target := range targets {
			for _, d := range candidateDomains {
				if normalizeDomain(d) == target {
					covered++
					break
				}
			}
		}
		if frac := float64(covered) / float64(len(targets)); !scored || frac > best {
			best = frac
		}
		scored = true
	}

	return best, scored
}
