package scoring

import (
	"strings"
)

// skillAliases folds common spellings onto one canonical skill name before
// any matching happens. Both JD-side and candidate-side skills pass through
// this table.
var skillAliases = map[string]string{
	"golang":              "go",
	"js":                  "javascript",
	"ts":                  "typescript",
	"k8s":                 "kubernetes",
	"postgresql":          "postgres",
	"psql":                "postgres",
	"py":                  "python",
	"reactjs":             "react",
	"react.js":            "react",
	"nodejs":              "node",
	"node.js":             "node",
	"amazon web services": "aws",
	"google cloud":        "gcp",
	"machine learning":    "ml",
	"c sharp":             "c#",
	"csharp":              "c#",
	"es":                  "elasticsearch",
	"tf":                  "terraform",
	"grpc-go":             "grpc",
	"rdbms":               "sql",
}

// transferability is the closed skill graph used for inferred matches. An
// edge from→to with weight w means experience with `from` transfers to a
// requirement for `to` at strength w. Weights never exceed 1; direct
// matches always dominate inferred ones.
var transferability = map[string]map[string]float64{
	"postgres":      {"mysql": 0.8, "oracle": 0.6, "sql": 0.9, "cockroachdb": 0.8},
	"mysql":         {"postgres": 0.8, "sql": 0.9, "mariadb": 0.95},
	"sql":           {"postgres": 0.6, "mysql": 0.6},
	"kafka":         {"rabbitmq": 0.7, "pulsar": 0.8, "sqs": 0.7, "nats": 0.7},
	"rabbitmq":      {"kafka": 0.7, "sqs": 0.7, "nats": 0.7},
	"go":            {"rust": 0.6, "java": 0.5, "c": 0.5},
	"java":          {"kotlin": 0.9, "scala": 0.7, "go": 0.5, "c#": 0.7},
	"kotlin":        {"java": 0.9},
	"c#":            {"java": 0.7},
	"python":        {"ruby": 0.6, "go": 0.4},
	"ruby":          {"python": 0.6},
	"react":         {"vue": 0.8, "angular": 0.7, "svelte": 0.8},
	"vue":           {"react": 0.8, "angular": 0.7},
	"angular":       {"react": 0.7, "vue": 0.7},
	"javascript":    {"typescript": 0.9},
	"typescript":    {"javascript": 0.95},
	"aws":           {"gcp": 0.8, "azure": 0.8},
	"gcp":           {"aws": 0.8, "azure": 0.8},
	"azure":         {"aws": 0.8, "gcp": 0.8},
	"kubernetes":    {"docker": 0.9, "nomad": 0.7, "ecs": 0.8},
	"docker":        {"kubernetes": 0.6, "containerd": 0.8},
	"terraform":     {"pulumi": 0.8, "cloudformation": 0.7},
	"redis":         {"memcached": 0.9},
	"memcached":     {"redis": 0.8},
	"elasticsearch": {"opensearch": 0.95, "solr": 0.8},
	"opensearch":    {"elasticsearch": 0.95},
	"grpc":          {"rest": 0.7, "graphql": 0.6, "thrift": 0.8},
	"rest":          {"grpc": 0.6, "graphql": 0.6},
	"mongodb":       {"dynamodb": 0.7, "cassandra": 0.6, "couchdb": 0.8},
	"cassandra":     {"dynamodb": 0.7, "scylladb": 0.95},
	"spark":         {"flink": 0.8, "hadoop": 0.7},
	"flink":         {"spark": 0.8},
}

// NormalizeSkill lowercases, trims, and resolves aliases onto the canonical
// skill name.
func NormalizeSkill(skill string) string {
	s := strings.ToLower(strings.TrimSpace(skill))
	if canonical, ok := skillAliases[s]; ok {
		return canonical
	}
	return s
}

// normalizeSkillSet folds a skill list into a canonical set, dropping empty
// entries and duplicates.
func normalizeSkillSet(skills []string) map[string]bool {
	set := make(map[string]bool, len(skills))
	for _, s := range skills {
		if n := NormalizeSkill(s); n != "" {
			set[n] = true
		}
	}
	return set
}

// TransferWeight returns the strength at which a candidate skill satisfies a
// required skill through the transfer graph, or 0 when no edge exists.
func TransferWeight(candidateSkill, requiredSkill string) float64 {
	edges, ok := transferability[NormalizeSkill(candidateSkill)]
	if !ok {
		return 0
	}
	return edges[NormalizeSkill(requiredSkill)]
}

// ExpandSkills returns every skill reachable from the input set through one
// transfer edge, keyed by the best weight seen. Direct skills appear with
// weight 1.
func ExpandSkills(skills []string) map[string]float64 {
	expanded := make(map[string]float64, len(skills)*2)
	for skill := range normalizeSkillSet(skills) {
		expanded[skill] = 1.0
		for to, w := range transferability[skill] {
			if w > expanded[to] {
				expanded[to] = w
			}
		}
	}
	return expanded
}

// skillMatch computes the exact and inferred match fractions for a required
// skill list. A requirement matched exactly contributes only to the exact
// fraction; the inferred fraction covers requirements reachable only through
// the transfer graph, each at its best edge weight. ok is false when either
// side is empty, which callers treat as missing input.
func skillMatch(required []string, candidateSkills []string) (exact, inferred float64, ok bool) {
	reqSet := normalizeSkillSet(required)
	candSet := normalizeSkillSet(candidateSkills)
	if len(reqSet) == 0 || len(candSet) == 0 {
		return 0, 0, false
	}

	var exactHits, inferredSum float64
	for req := range reqSet {
		if candSet[req] {
			exactHits++
			continue
		}
		best := 0.0
		for cand := range candSet {
			if w := TransferWeight(cand, req); w > best {
				best = w
			}
		}
		inferredSum += best
	}

	total := float64(len(reqSet))
	return exactHits / total, inferredSum / total, true
}
