package vectorstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/talentmesh/talentmesh/pkg/models"
)

// GetCandidates loads read-model rows by id, tenant-scoped like every other
// read. Missing ids are simply absent from the result.
func (s *Store) GetCandidates(ctx context.Context, tenant models.TenantContext, candidateIDs []string) ([]models.CandidateDocument, error) {
	if len(candidateIDs) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.QueryTimeout)
	defer cancel()

	var sb strings.Builder
	sb.WriteString("SELECT")
	sb.WriteString(documentColumns)
	sb.WriteString(`,
		0::float8 AS score
	FROM candidate_documents d
	WHERE d.candidate_id = ANY($1)`)

	args := []interface{}{pq.Array(candidateIDs)}
	if !tenant.CrossTenant() {
		fmt.Fprintf(&sb, "\n\t  AND d.tenant_id = $%d", len(args)+1)
		args = append(args, tenant.TenantID)
	} else {
		s.logger.Warn("cross-tenant fetch", map[string]interface{}{
			"crossTenantAccess": true,
			"requestId":         tenant.RequestID,
		})
	}

	return s.queryCandidates(ctx, "get_candidates", sb.String(), args, func(*models.CandidateDocument, float64) {})
}
