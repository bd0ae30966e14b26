package trajectory

import (
	"sync"
	"time"

	"github.com/talentmesh/talentmesh/pkg/models"
	"github.com/talentmesh/talentmesh/pkg/observability"
	"github.com/talentmesh/talentmesh/pkg/scoring"
)

// Shadow defaults. The buffer is a ring: under sustained load between
// flushes the oldest comparisons fall off rather than growing memory.
const (
	defaultShadowCapacity  = 512
	defaultFlushInterval   = time.Minute
	defaultDisagreementBar = 0.30
)

// ShadowConfig tunes the shadow-mode recorder.
type ShadowConfig struct {
	Capacity              int
	FlushInterval         time.Duration
	DisagreementThreshold float64
}

func (c ShadowConfig) withDefaults() ShadowConfig {
	if c.Capacity <= 0 {
		c.Capacity = defaultShadowCapacity
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = defaultFlushInterval
	}
	if c.DisagreementThreshold <= 0 {
		c.DisagreementThreshold = defaultDisagreementBar
	}
	return c
}

// ShadowRecorder buffers ML-vs-rules comparisons and periodically flushes
// aggregate agreement to the log and metrics. ML output never feeds ranking;
// this is the only place it is looked at.
type ShadowRecorder struct {
	cfg     ShadowConfig
	logger  observability.Logger
	metrics observability.MetricsClient
	now     func() time.Time

	mu      sync.Mutex
	records []models.ShadowComparisonRecord
	next    int
	count   int

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewShadowRecorder builds a recorder and starts its flush loop.
func NewShadowRecorder(cfg ShadowConfig, logger observability.Logger, metrics observability.MetricsClient) *ShadowRecorder {
	cfg = cfg.withDefaults()
	r := &ShadowRecorder{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
		records: make([]models.ShadowComparisonRecord, cfg.Capacity),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go r.flushLoop()
	return r
}

// Record compares one ML prediction with the rule-based classification of
// the same candidate and buffers the result. Candidates without enough
// history to classify, or without a prediction, are skipped.
func (r *ShadowRecorder) Record(doc *models.CandidateDocument, prediction *models.TrajectoryPrediction) {
	if prediction == nil {
		return
	}
	ruleBased, ok := scoring.ClassifyTrajectory(doc.WorkHistory)
	if !ok {
		return
	}

	record := models.ShadowComparisonRecord{
		Timestamp:    r.now(),
		CandidateID:  doc.CandidateID,
		MLPrediction: prediction,
		RuleBased:    ruleBased,
		Agreement:    compareWithRules(doc.CurrentTitle, prediction, ruleBased),
	}

	r.mu.Lock()
	r.records[r.next] = record
	r.next = (r.next + 1) % r.cfg.Capacity
	if r.count < r.cfg.Capacity {
		r.count++
	}
	r.mu.Unlock()

	r.metrics.RecordCounter("ml_shadow_comparisons_total", 1, nil)
}

// shadowStats aggregates buffered agreement per dimension.
type shadowStats struct {
	total     int
	direction float64
	velocity  float64
	trackType float64
}

func (r *ShadowRecorder) drain() []models.ShadowComparisonRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.count == 0 {
		return nil
	}
	out := make([]models.ShadowComparisonRecord, 0, r.count)
	start := (r.next - r.count + r.cfg.Capacity) % r.cfg.Capacity
	for i := 0; i < r.count; i++ {
		out = append(out, r.records[(start+i)%r.cfg.Capacity])
	}
	r.next = 0
	r.count = 0
	return out
}

func aggregate(records []models.ShadowComparisonRecord) shadowStats {
	stats := shadowStats{total: len(records)}
	if stats.total == 0 {
		return stats
	}
	var dir, vel, typ int
	for _, rec := range records {
		if rec.Agreement.Direction {
			dir++
		}
		if rec.Agreement.Velocity {
			vel++
		}
		if rec.Agreement.Type {
			typ++
		}
	}
	total := float64(stats.total)
	stats.direction = float64(dir) / total
	stats.velocity = float64(vel) / total
	stats.trackType = float64(typ) / total
	return stats
}

// Flush drains the buffer and reports aggregate agreement. Disagreement
// beyond the configured bar on direction or velocity is warned about; that
// is the signal the ML model and the rules have drifted apart.
func (r *ShadowRecorder) Flush() {
	stats := aggregate(r.drain())
	if stats.total == 0 {
		return
	}

	fields := map[string]interface{}{
		"comparisons":         stats.total,
		"direction_agreement": stats.direction,
		"velocity_agreement":  stats.velocity,
		"type_agreement":      stats.trackType,
	}
	agreementFloor := 1.0 - r.cfg.DisagreementThreshold
	if stats.direction < agreementFloor || stats.velocity < agreementFloor {
		r.logger.Warn("ml trajectory disagrees with rules beyond threshold", fields)
	} else {
		r.logger.Info("ml trajectory shadow agreement", fields)
	}

	r.metrics.RecordGauge("ml_shadow_agreement", stats.direction, map[string]string{"dimension": "direction"})
	r.metrics.RecordGauge("ml_shadow_agreement", stats.velocity, map[string]string{"dimension": "velocity"})
	r.metrics.RecordGauge("ml_shadow_agreement", stats.trackType, map[string]string{"dimension": "type"})
}

func (r *ShadowRecorder) flushLoop() {
	defer close(r.done)
	ticker := time.NewTicker(r.cfg.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.Flush()
		case <-r.stop:
			r.Flush()
			return
		}
	}
}

// Close stops the flush loop after a final flush.
func (r *ShadowRecorder) Close() {
	r.stopOnce.Do(func() { close(r.stop) })
	<-r.done
}

// compareWithRules derives the comparable dimensions from an ML prediction.
// A dimension the prediction says nothing about cannot contradict the rules
// and counts as agreement.
func compareWithRules(currentTitle string, prediction *models.TrajectoryPrediction, ruleBased models.Trajectory) models.TrajectoryAgreement {
	agreement := models.TrajectoryAgreement{Direction: true, Velocity: true, Type: true}

	currentLevel := scoring.TitleLevel(currentTitle)
	nextLevel := scoring.TitleLevel(prediction.NextRole)
	if currentLevel != scoring.LevelUnknown && nextLevel != scoring.LevelUnknown {
		agreement.Direction = mlDirection(currentLevel, nextLevel) == ruleBased.Direction
	}

	if mid := float64(prediction.TenureMonths.Min+prediction.TenureMonths.Max) / 2; mid > 0 {
		agreement.Velocity = scoring.VelocityForTenure(mid) == ruleBased.Velocity
	}

	if prediction.NextRole != "" {
		agreement.Type = mlType(currentTitle, prediction.NextRole, currentLevel, nextLevel) == ruleBased.Type
	}
	return agreement
}

func mlDirection(currentLevel, nextLevel int) string {
	switch {
	case nextLevel > currentLevel:
		return models.DirectionUpward
	case nextLevel < currentLevel:
		return models.DirectionDownward
	default:
		return models.DirectionLateral
	}
}

func mlType(currentTitle, nextRole string, currentLevel, nextLevel int) string {
	if scoring.IsManagementTitle(nextRole) {
		return models.TrajectoryLeadershipTrack
	}
	currentFamily := scoring.RoleFamily(currentTitle)
	nextFamily := scoring.RoleFamily(nextRole)
	if currentFamily != "" && nextFamily != "" && currentFamily != nextFamily {
		return models.TrajectoryCareerPivot
	}
	if currentLevel != scoring.LevelUnknown && nextLevel > currentLevel {
		return models.TrajectoryTechnicalGrowth
	}
	return models.TrajectoryLateralMove
}
