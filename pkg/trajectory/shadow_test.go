package trajectory

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talentmesh/talentmesh/pkg/models"
	"github.com/talentmesh/talentmesh/pkg/observability"
)

type recordingLogger struct {
	mu    sync.Mutex
	infos []string
	warns []string
}

func (l *recordingLogger) Debug(msg string, fields map[string]interface{}) {}
func (l *recordingLogger) Info(msg string, fields map[string]interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.infos = append(l.infos, msg)
}
func (l *recordingLogger) Warn(msg string, fields map[string]interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}
func (l *recordingLogger) Error(msg string, fields map[string]interface{})         {}
func (l *recordingLogger) Fatal(msg string, fields map[string]interface{})         {}
func (l *recordingLogger) Debugf(format string, args ...interface{})               {}
func (l *recordingLogger) Infof(format string, args ...interface{})                {}
func (l *recordingLogger) Errorf(format string, args ...interface{})               {}
func (l *recordingLogger) WithPrefix(prefix string) observability.Logger           { return l }
func (l *recordingLogger) With(fields map[string]interface{}) observability.Logger { return l }

func (l *recordingLogger) snapshot() (infos, warns []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.infos...), append([]string(nil), l.warns...)
}

func newTestRecorder(t *testing.T, cfg ShadowConfig, logger observability.Logger) *ShadowRecorder {
	t.Helper()
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if cfg.FlushInterval == 0 {
		cfg.FlushInterval = time.Hour
	}
	r := NewShadowRecorder(cfg, logger, observability.NewNoopMetricsClient())
	t.Cleanup(r.Close)
	return r
}

func TestShadowRecordAgreement(t *testing.T) {
	recorder := newTestRecorder(t, ShadowConfig{}, nil)

	recorder.Record(upwardEngineerDoc(), &models.TrajectoryPrediction{
		NextRole:     "Staff Engineer",
		TenureMonths: models.TenureRange{Min: 18, Max: 30},
	})

	records := recorder.drain()
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, "cand-up", rec.CandidateID)
	assert.Equal(t, models.Trajectory{
		Direction: models.DirectionUpward,
		Velocity:  models.VelocityNormal,
		Type:      models.TrajectoryTechnicalGrowth,
	}, rec.RuleBased)
	assert.True(t, rec.Agreement.Direction)
	assert.True(t, rec.Agreement.Velocity)
	assert.True(t, rec.Agreement.Type)
}

func TestShadowRecordDisagreement(t *testing.T) {
	recorder := newTestRecorder(t, ShadowConfig{}, nil)

	// Rules say upward/normal/technical_growth; the model predicts a step
	// down with a long stay.
	recorder.Record(upwardEngineerDoc(), &models.TrajectoryPrediction{
		NextRole:     "Junior Engineer",
		TenureMonths: models.TenureRange{Min: 40, Max: 80},
	})

	records := recorder.drain()
	require.Len(t, records, 1)
	assert.False(t, records[0].Agreement.Direction)
	assert.False(t, records[0].Agreement.Velocity)
	assert.False(t, records[0].Agreement.Type)
}

func TestShadowSilentPredictionCannotContradict(t *testing.T) {
	recorder := newTestRecorder(t, ShadowConfig{}, nil)

	recorder.Record(upwardEngineerDoc(), &models.TrajectoryPrediction{Hireability: 0.5})

	records := recorder.drain()
	require.Len(t, records, 1)
	assert.True(t, records[0].Agreement.Direction)
	assert.True(t, records[0].Agreement.Velocity)
	assert.True(t, records[0].Agreement.Type)
}

func TestShadowSkipsNilAndUnclassifiable(t *testing.T) {
	recorder := newTestRecorder(t, ShadowConfig{}, nil)

	recorder.Record(upwardEngineerDoc(), nil)

	thin := &models.CandidateDocument{
		CandidateID: "cand-thin",
		WorkHistory: []models.WorkHistoryEntry{{Title: "Engineer", Months: 12}},
	}
	recorder.Record(thin, &models.TrajectoryPrediction{NextRole: "Senior Engineer"})

	assert.Empty(t, recorder.drain())
}

func TestShadowRingKeepsNewestRecords(t *testing.T) {
	recorder := newTestRecorder(t, ShadowConfig{Capacity: 4}, nil)

	for i := 0; i < 6; i++ {
		doc := upwardEngineerDoc()
		doc.CandidateID = fmt.Sprintf("cand-%d", i)
		recorder.Record(doc, &models.TrajectoryPrediction{NextRole: "Staff Engineer"})
	}

	records := recorder.drain()
	require.Len(t, records, 4)
	var ids []string
	for _, rec := range records {
		ids = append(ids, rec.CandidateID)
	}
	assert.Equal(t, []string{"cand-2", "cand-3", "cand-4", "cand-5"}, ids)

	assert.Empty(t, recorder.drain(), "drain empties the buffer")
}

func TestShadowFlushReportsAgreement(t *testing.T) {
	logger := &recordingLogger{}
	recorder := newTestRecorder(t, ShadowConfig{}, logger)

	recorder.Flush()
	infos, warns := logger.snapshot()
	assert.Empty(t, infos, "empty buffer flushes silently")
	assert.Empty(t, warns)

	recorder.Record(upwardEngineerDoc(), &models.TrajectoryPrediction{
		NextRole:     "Staff Engineer",
		TenureMonths: models.TenureRange{Min: 18, Max: 30},
	})
	recorder.Flush()
	infos, warns = logger.snapshot()
	require.Len(t, infos, 1)
	assert.Equal(t, "ml trajectory shadow agreement", infos[0])
	assert.Empty(t, warns)
}

func TestShadowFlushWarnsOnDrift(t *testing.T) {
	logger := &recordingLogger{}
	recorder := newTestRecorder(t, ShadowConfig{}, logger)

	recorder.Record(upwardEngineerDoc(), &models.TrajectoryPrediction{
		NextRole:     "Junior Engineer",
		TenureMonths: models.TenureRange{Min: 40, Max: 80},
	})
	recorder.Flush()

	_, warns := logger.snapshot()
	require.Len(t, warns, 1)
	assert.Equal(t, "ml trajectory disagrees with rules beyond threshold", warns[0])
}

func TestShadowCloseFlushes(t *testing.T) {
	logger := &recordingLogger{}
	recorder := NewShadowRecorder(ShadowConfig{FlushInterval: time.Hour}, logger, observability.NewNoopMetricsClient())

	recorder.Record(upwardEngineerDoc(), &models.TrajectoryPrediction{
		NextRole:     "Staff Engineer",
		TenureMonths: models.TenureRange{Min: 18, Max: 30},
	})
	recorder.Close()

	infos, _ := logger.snapshot()
	require.Len(t, infos, 1)
	assert.Empty(t, recorder.drain())
}

func TestShadowAggregate(t *testing.T) {
	records := []models.ShadowComparisonRecord{
		{Agreement: models.TrajectoryAgreement{Direction: true, Velocity: true, Type: true}},
		{Agreement: models.TrajectoryAgreement{Direction: true, Velocity: false, Type: false}},
		{Agreement: models.TrajectoryAgreement{Direction: false, Velocity: false, Type: true}},
		{Agreement: models.TrajectoryAgreement{Direction: true, Velocity: true, Type: false}},
	}

	stats := aggregate(records)
	assert.Equal(t, 4, stats.total)
	assert.InDelta(t, 0.75, stats.direction, 1e-9)
	assert.InDelta(t, 0.50, stats.velocity, 1e-9)
	assert.InDelta(t, 0.50, stats.trackType, 1e-9)
}
