package vectorstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lib/pq"

	apperrors "github.com/talentmesh/talentmesh/pkg/errors"
	"github.com/talentmesh/talentmesh/pkg/models"
)

// rrfK is the reciprocal rank fusion constant. Larger values flatten the
// contribution gap between adjacent ranks.
const rrfK = 60

// maxQueryTerms caps how many distinct terms of a job description feed the
// full-text path. Beyond this the query cost grows without recall benefit.
const maxQueryTerms = 48

// RecallQuery describes one stage-1 recall request.
type RecallQuery struct {
	Tenant         models.TenantContext
	QueryVector    []float32
	QueryText      string
	Filters        *models.SearchFilters
	PerMethodLimit int
}

// RecallResult carries the fused candidate pool plus per-path diagnostics.
type RecallResult struct {
	Documents   []models.CandidateDocument
	Degraded    bool
	VectorCount int
	TextCount   int
}

// candidateRow is the scan target shared by both recall paths. Postgres
// arrays and JSONB need driver-specific types before they become model
// fields.
type candidateRow struct {
	CandidateID        string          `db:"candidate_id"`
	TenantID           string          `db:"tenant_id"`
	FullName           string          `db:"full_name"`
	CurrentTitle       string          `db:"current_title"`
	Summary            string          `db:"summary"`
	Location           string          `db:"location"`
	Skills             pq.StringArray  `db:"skills"`
	ExperienceYears    sql.NullFloat64 `db:"experience_years"`
	Seniority          sql.NullString  `db:"seniority"`
	Companies          pq.StringArray  `db:"companies"`
	Domains            pq.StringArray  `db:"domains"`
	Keywords           pq.StringArray  `db:"keywords"`
	TitleKeywords      pq.StringArray  `db:"title_keywords"`
	WorkHistory        []byte          `db:"work_history"`
	AnalysisConfidence float64         `db:"analysis_confidence"`
	UpdatedAt          sql.NullTime    `db:"updated_at"`
	Score              float64         `db:"score"`
}

func (r *candidateRow) toDocument() models.CandidateDocument {
	doc := models.CandidateDocument{
		CandidateID:        r.CandidateID,
		TenantID:           r.TenantID,
		FullName:           r.FullName,
		CurrentTitle:       r.CurrentTitle,
		Summary:            r.Summary,
		Location:           r.Location,
		Skills:             r.Skills,
		Companies:          r.Companies,
		Domains:            r.Domains,
		Keywords:           r.Keywords,
		TitleKeywords:      r.TitleKeywords,
		AnalysisConfidence: r.AnalysisConfidence,
		UpdatedAt:          nullableTime(r.UpdatedAt),
	}
	if r.ExperienceYears.Valid {
		doc.ExperienceYears = r.ExperienceYears.Float64
	}
	if r.Seniority.Valid {
		doc.Seniority = r.Seniority.String
	}
	if len(r.WorkHistory) > 0 {
		// A malformed history row degrades to "no history"; scoring treats
		// that as a missing signal rather than failing the search.
		_ = json.Unmarshal(r.WorkHistory, &doc.WorkHistory)
	}
	return doc
}

const documentColumns = `
		d.candidate_id, d.tenant_id, d.full_name, d.current_title, d.summary, d.location,
		d.skills, d.experience_years, d.seniority,
		d.companies, d.domains, d.keywords, d.title_keywords,
		d.work_history, d.analysis_confidence, d.updated_at`

type pathResult struct {
	name string
	docs []models.CandidateDocument
	err  error
}

// HybridSearch runs the vector and full-text recall paths concurrently and
// fuses their rankings with reciprocal rank fusion. If exactly one path
// fails the other's results are returned with Degraded set; if both fail
// the search is unavailable.
func (s *Store) HybridSearch(ctx context.Context, q RecallQuery) (*RecallResult, error) {
	if len(q.QueryVector) == 0 && strings.TrimSpace(q.QueryText) == "" {
		return nil, apperrors.New(apperrors.KindBadInput, "recall requires a query vector or query text")
	}
	if q.PerMethodLimit <= 0 {
		q.PerMethodLimit = 300
	}
	if q.Tenant.CrossTenant() {
		s.logger.Warn("cross-tenant recall", map[string]interface{}{
			"crossTenantAccess": true,
			"requestId":         q.Tenant.RequestID,
		})
	}

	results := make(chan pathResult, 2)
	paths := 0

	if len(q.QueryVector) > 0 {
		paths++
		go func() {
			docs, err := s.vectorRecall(ctx, q)
			results <- pathResult{name: "vector", docs: docs, err: err}
		}()
	}
	if strings.TrimSpace(q.QueryText) != "" {
		paths++
		go func() {
			docs, err := s.textRecall(ctx, q)
			results <- pathResult{name: "text", docs: docs, err: err}
		}()
	}

	var vectorDocs, textDocs []models.CandidateDocument
	var failures []error
	for i := 0; i < paths; i++ {
		r := <-results
		if r.err != nil {
			s.logger.Warn("recall path failed", map[string]interface{}{
				"path":  r.name,
				"error": r.err.Error(),
			})
			s.metrics.RecordCounter("recall_path_failures_total", 1, map[string]string{"path": r.name})
			failures = append(failures, r.err)
			continue
		}
		switch r.name {
		case "vector":
			vectorDocs = r.docs
		case "text":
			textDocs = r.docs
		}
	}

	if len(failures) == paths {
		return nil, apperrors.Wrap(failures[0], apperrors.KindUnavailable, "all recall paths failed")
	}

	fused := fuseRRF(vectorDocs, textDocs, rrfK)
	return &RecallResult{
		Documents:   fused,
		Degraded:    len(failures) > 0,
		VectorCount: len(vectorDocs),
		TextCount:   len(textDocs),
	}, nil
}

// vectorRecall returns the nearest candidates by cosine distance, joined to
// their read-model rows. Score is cosine similarity in [0,1] for normalized
// vectors.
func (s *Store) vectorRecall(ctx context.Context, q RecallQuery) ([]models.CandidateDocument, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.QueryTimeout)
	defer cancel()

	var sb strings.Builder
	sb.WriteString("SELECT")
	sb.WriteString(documentColumns)
	sb.WriteString(`,
		(1 - (e.embedding <=> $1::vector))::float8 AS score
	FROM candidate_embeddings e
	JOIN candidate_documents d ON d.tenant_id = e.tenant_id AND d.candidate_id = e.entity_id
	WHERE e.chunk_type = $2`)

	args := []interface{}{formatVector(q.QueryVector), models.ChunkTypeProfile}
	args = appendTenantAndFilters(&sb, args, "e.tenant_id", q)

	sb.WriteString(fmt.Sprintf("\n\tORDER BY e.embedding <=> $1::vector\n\tLIMIT $%d", len(args)+1))
	args = append(args, q.PerMethodLimit)

	return s.queryCandidates(ctx, "vector_recall", sb.String(), args, func(doc *models.CandidateDocument, score float64) {
		doc.VectorScore = score
	})
}

// textRecall ranks candidates by ts_rank_cd over the canonical search text.
// The job description is reduced to an OR query so a single missing term
// never empties the pool.
func (s *Store) textRecall(ctx context.Context, q RecallQuery) ([]models.CandidateDocument, error) {
	tsQuery := buildSearchQuery(q.QueryText)
	if tsQuery == "" {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.QueryTimeout)
	defer cancel()

	var sb strings.Builder
	sb.WriteString("SELECT")
	sb.WriteString(documentColumns)
	sb.WriteString(`,
		ts_rank_cd(d.search_text, query)::float8 AS score
	FROM candidate_documents d, websearch_to_tsquery('english', $1) query
	WHERE d.search_text @@ query`)

	args := []interface{}{tsQuery}
	args = appendTenantAndFilters(&sb, args, "d.tenant_id", q)

	sb.WriteString(fmt.Sprintf("\n\tORDER BY score DESC\n\tLIMIT $%d", len(args)+1))
	args = append(args, q.PerMethodLimit)

	return s.queryCandidates(ctx, "text_recall", sb.String(), args, func(doc *models.CandidateDocument, score float64) {
		doc.TextScore = score
	})
}

// appendTenantAndFilters adds the tenant predicate and optional request
// filters. Every recall query is tenant-scoped unless the caller presents
// the audit bypass identity.
func appendTenantAndFilters(sb *strings.Builder, args []interface{}, tenantColumn string, q RecallQuery) []interface{} {
	if !q.Tenant.CrossTenant() {
		fmt.Fprintf(sb, "\n\t  AND %s = $%d", tenantColumn, len(args)+1)
		args = append(args, q.Tenant.TenantID)
	}
	if q.Filters == nil {
		return args
	}
	if len(q.Filters.Locations) > 0 {
		lowered := make([]string, len(q.Filters.Locations))
		for i, loc := range q.Filters.Locations {
			lowered[i] = strings.ToLower(strings.TrimSpace(loc))
		}
		fmt.Fprintf(sb, "\n\t  AND lower(d.location) = ANY($%d)", len(args)+1)
		args = append(args, pq.Array(lowered))
	}
	if len(q.Filters.Seniority) > 0 {
		lowered := make([]string, len(q.Filters.Seniority))
		for i, sen := range q.Filters.Seniority {
			lowered[i] = strings.ToLower(strings.TrimSpace(sen))
		}
		fmt.Fprintf(sb, "\n\t  AND lower(d.seniority) = ANY($%d)", len(args)+1)
		args = append(args, pq.Array(lowered))
	}
	return args
}

func (s *Store) queryCandidates(ctx context.Context, op, query string, args []interface{}, setScore func(*models.CandidateDocument, float64)) ([]models.CandidateDocument, error) {
	started := time.Now()
	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		s.metrics.RecordOperation("vectorstore", op, false, time.Since(started).Seconds(), nil)
		return nil, apperrors.Wrapf(err, apperrors.KindUnavailable, "%s query", op)
	}
	defer func() { _ = rows.Close() }()

	var docs []models.CandidateDocument
	for rows.Next() {
		var row candidateRow
		if err := rows.StructScan(&row); err != nil {
			s.metrics.RecordOperation("vectorstore", op, false, time.Since(started).Seconds(), nil)
			return nil, apperrors.Wrapf(err, apperrors.KindUnavailable, "%s scan", op)
		}
		doc := row.toDocument()
		setScore(&doc, row.Score)
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		s.metrics.RecordOperation("vectorstore", op, false, time.Since(started).Seconds(), nil)
		return nil, apperrors.Wrapf(err, apperrors.KindUnavailable, "%s rows", op)
	}
	s.metrics.RecordOperation("vectorstore", op, true, time.Since(started).Seconds(), nil)
	return docs, nil
}

// buildSearchQuery reduces free text to a websearch_to_tsquery input of
// OR-joined distinct terms. Tokens keep letters, digits and the +/# used in
// language names; everything else splits words.
func buildSearchQuery(text string) string {
	var terms []string
	seen := make(map[string]bool)
	var current strings.Builder

	flush := func() {
		if current.Len() < 2 {
			current.Reset()
			return
		}
		term := current.String()
		current.Reset()
		if seen[term] || strings.EqualFold(term, "or") {
			return
		}
		seen[term] = true
		terms = append(terms, term)
	}

	for _, r := range strings.ToLower(text) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '+', r == '#':
			current.WriteRune(r)
		default:
			flush()
		}
		if len(terms) >= maxQueryTerms {
			break
		}
	}
	flush()

	if len(terms) > maxQueryTerms {
		terms = terms[:maxQueryTerms]
	}
	return strings.Join(terms, " OR ")
}

// fuseRRF merges the two rankings with reciprocal rank fusion and rescales
// so a candidate ranked first on both paths scores 1.0. Per-path scores are
// preserved on the fused document for downstream explanation.
func fuseRRF(vectorDocs, textDocs []models.CandidateDocument, k int) []models.CandidateDocument {
	type fusion struct {
		doc models.CandidateDocument
		rrf float64
	}
	byID := make(map[string]*fusion, len(vectorDocs)+len(textDocs))

	for rank, doc := range vectorDocs {
		f, ok := byID[doc.CandidateID]
		if !ok {
			f = &fusion{doc: doc}
			byID[doc.CandidateID] = f
		}
		f.doc.VectorScore = doc.VectorScore
		f.rrf += 1.0 / float64(k+rank+1)
	}
	for rank, doc := range textDocs {
		f, ok := byID[doc.CandidateID]
		if !ok {
			f = &fusion{doc: doc}
			byID[doc.CandidateID] = f
		}
		f.doc.TextScore = doc.TextScore
		f.rrf += 1.0 / float64(k+rank+1)
	}

	maxRRF := 2.0 / float64(k+1)
	fused := make([]models.CandidateDocument, 0, len(byID))
	for _, f := range byID {
		f.doc.HybridScore = f.rrf / maxRRF
		fused = append(fused, f.doc)
	}

	sort.Slice(fused, func(i, j int) bool {
		if fused[i].HybridScore != fused[j].HybridScore {
			return fused[i].HybridScore > fused[j].HybridScore
		}
		return fused[i].CandidateID < fused[j].CandidateID
	})
	return fused
}
