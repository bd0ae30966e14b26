package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalText(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "lowercases",
			input:    "Senior GO Engineer",
			expected: "senior go engineer",
		},
		{
			name:     "collapses whitespace",
			input:    "  senior\tgo\n\nengineer  ",
			expected: "senior go engineer",
		},
		{
			name:     "empty",
			input:    "   \n\t ",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CanonicalText(tt.input))
		})
	}
}

func TestJobFingerprint_StableAcrossFormatting(t *testing.T) {
	a := JobFingerprint("Senior Go backend engineer, Postgres, Kafka")
	b := JobFingerprint("  senior go BACKEND engineer,   postgres, kafka ")
	assert.Equal(t, a, b)

	c := JobFingerprint("Senior Go backend engineer, MySQL")
	assert.NotEqual(t, a, c)
}

func TestDocsetHash_OrderIndependent(t *testing.T) {
	docs := []RerankDoc{
		{CandidateID: "c1", RationaleInput: "Senior Backend Engineer; go, postgres"},
		{CandidateID: "c2", RationaleInput: "Staff Platform Engineer; kubernetes, go"},
	}
	reversed := []RerankDoc{docs[1], docs[0]}

	assert.Equal(t, DocsetHash(docs), DocsetHash(reversed))

	changed := []RerankDoc{
		{CandidateID: "c1", RationaleInput: "Senior Backend Engineer; go, postgres"},
		{CandidateID: "c2", RationaleInput: "different rationale"},
	}
	assert.NotEqual(t, DocsetHash(docs), DocsetHash(changed))
}

func TestRerankCacheKey_Deterministic(t *testing.T) {
	k1 := RerankCacheKey("t1", "jd", "ds", "model-v1", "wv-test")
	k2 := RerankCacheKey("t1", "jd", "ds", "model-v1", "wv-test")
	require.Equal(t, k1, k2)

	// Any component change produces a different key.
	assert.NotEqual(t, k1, RerankCacheKey("t2", "jd", "ds", "model-v1", "wv-test"))
	assert.NotEqual(t, k1, RerankCacheKey("t1", "jd", "ds", "model-v2", "wv-test"))
	assert.NotEqual(t, k1, RerankCacheKey("t1", "jd", "ds", "model-v1", "wv-2"))
}

func TestSearchableProfile_Deterministic(t *testing.T) {
	conf := 0.9
	p1 := &CandidateProfile{
		DisplayName:  "Ada Example",
		CurrentTitle: "Senior Backend Engineer",
		Skills: []SkillEntry{
			{Name: "postgres"},
			{Name: "go", Confidence: &conf},
			{Name: "kafka"},
		},
		Companies: []string{"Beta", "Acme"},
	}
	p2 := &CandidateProfile{
		Skills: []SkillEntry{
			{Name: "kafka"},
			{Name: "postgres"},
			{Name: "go", Confidence: &conf},
		},
		CurrentTitle: "Senior Backend Engineer",
		DisplayName:  "Ada Example",
		Companies:    []string{"Acme", "Beta"},
	}

	require.Equal(t, p1.Searchable(), p2.Searchable())
	assert.Contains(t, p1.Searchable(), "skills: go, kafka, postgres")
}

func TestCandidateProfile_Empty(t *testing.T) {
	assert.True(t, (&CandidateProfile{}).Empty())
	assert.False(t, (&CandidateProfile{CurrentTitle: "Engineer"}).Empty())
}

func TestTenantContext_CrossTenant(t *testing.T) {
	assert.False(t, TenantContext{TenantID: "tenant-1"}.CrossTenant())
	assert.True(t, TenantContext{TenantID: BypassTenantID}.CrossTenant())

	fields := TenantContext{TenantID: BypassTenantID, RequestID: "r1"}.LogFields()
	assert.Equal(t, true, fields["crossTenantAccess"])
}
