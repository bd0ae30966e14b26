package cache

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talentmesh/talentmesh/pkg/observability"
)

func newTestCache(t *testing.T, threshold int) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	cfg := Config{
		Address:              mr.Addr(),
		CompressionThreshold: threshold,
		TTLs: map[Namespace]time.Duration{
			NamespaceHybrid: 10 * time.Minute,
			NamespaceRerank: time.Hour,
		},
	}
	c := NewRedisCache(cfg, observability.NewNoopLogger(), observability.NewNoopMetricsClient())
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestKey_ShapeAndTenantScoping(t *testing.T) {
	k := Key(NamespaceRerank, "tenant-a", "jdhash", "dshash")
	assert.Equal(t, "rerank:{tenant-a}:jdhash:dshash:v1", k)

	// Different tenants never share a key.
	assert.NotEqual(t, k, Key(NamespaceRerank, "tenant-b", "jdhash", "dshash"))
	// Different namespaces never share a key.
	assert.NotEqual(t, k, Key(NamespaceHybrid, "tenant-a", "jdhash", "dshash"))
}

func TestRedisCache_RoundTrip(t *testing.T) {
	c, _ := newTestCache(t, 1024)
	ctx := context.Background()

	type payload struct {
		Name  string   `json:"name"`
		Score float64  `json:"score"`
		Tags  []string `json:"tags"`
	}

	key := Key(NamespaceHybrid, "t1", "q1")
	in := payload{Name: "c1", Score: 0.83, Tags: []string{"go", "postgres"}}
	c.Set(ctx, NamespaceHybrid, key, in, 0)

	var out payload
	require.True(t, c.Get(ctx, NamespaceHybrid, key, &out))
	assert.Equal(t, in, out)
}

func TestRedisCache_MissOnAbsentKey(t *testing.T) {
	c, _ := newTestCache(t, 1024)

	var out string
	assert.False(t, c.Get(context.Background(), NamespaceHybrid, Key(NamespaceHybrid, "t1", "nope"), &out))
}

func TestRedisCache_TTLApplied(t *testing.T) {
	c, mr := newTestCache(t, 1024)
	ctx := context.Background()

	key := Key(NamespaceRerank, "t1", "k")
	c.Set(ctx, NamespaceRerank, key, "value", 0)

	// Namespace default TTL is one hour.
	assert.InDelta(t, time.Hour.Seconds(), mr.TTL(key).Seconds(), 5)

	// Explicit TTL wins over the namespace default.
	key2 := Key(NamespaceRerank, "t1", "k2")
	c.Set(ctx, NamespaceRerank, key2, "value", 30*time.Second)
	assert.InDelta(t, 30.0, mr.TTL(key2).Seconds(), 5)

	// Expiry produces a miss.
	mr.FastForward(2 * time.Hour)
	var out string
	assert.False(t, c.Get(ctx, NamespaceRerank, key, &out))
}

func TestRedisCache_CompressionOverThreshold(t *testing.T) {
	c, mr := newTestCache(t, 64)
	ctx := context.Background()

	big := strings.Repeat("candidate matches the role requirements. ", 100)
	key := Key(NamespaceHybrid, "t1", "big")
	c.Set(ctx, NamespaceHybrid, key, big, 0)

	raw, err := mr.Get(key)
	require.NoError(t, err)
	require.Greater(t, len(raw), 2)
	assert.True(t, raw[0] == 0x1f && raw[1] == '\x8b', "stored payload should be gzipped")
	assert.Less(t, len(raw), len(big))

	var out string
	require.True(t, c.Get(ctx, NamespaceHybrid, key, &out))
	assert.Equal(t, big, out)
}

func TestRedisCache_SmallPayloadNotCompressed(t *testing.T) {
	c, mr := newTestCache(t, 1024)
	ctx := context.Background()

	key := Key(NamespaceHybrid, "t1", "small")
	c.Set(ctx, NamespaceHybrid, key, "tiny", 0)

	raw, err := mr.Get(key)
	require.NoError(t, err)
	assert.Equal(t, `"tiny"`, raw)
}

func TestRedisCache_UndecodableEntryIsMiss(t *testing.T) {
	c, mr := newTestCache(t, 1024)
	ctx := context.Background()

	key := Key(NamespaceHybrid, "t1", "corrupt")
	require.NoError(t, mr.Set(key, "{not-json"))

	var out map[string]string
	assert.False(t, c.Get(ctx, NamespaceHybrid, key, &out))
	// A second read stays a miss and must not panic on the warn-once path.
	assert.False(t, c.Get(ctx, NamespaceHybrid, key, &out))
}

func TestRedisCache_SetBestEffortWhenDown(t *testing.T) {
	c, mr := newTestCache(t, 1024)
	ctx := context.Background()

	mr.Close()

	// Set must not panic or surface the failure.
	c.Set(ctx, NamespaceHybrid, Key(NamespaceHybrid, "t1", "k"), "v", 0)

	var out string
	assert.False(t, c.Get(ctx, NamespaceHybrid, Key(NamespaceHybrid, "t1", "k"), &out))
}

func TestRedisCache_HealthCheck(t *testing.T) {
	c, mr := newTestCache(t, 1024)

	status, err := c.HealthCheck(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusHealthy, status)

	mr.Close()
	status, err = c.HealthCheck(context.Background())
	require.Error(t, err)
	assert.Equal(t, StatusDegraded, status)
}

func TestNoopCache(t *testing.T) {
	n := NewNoopCache()
	ctx := context.Background()

	n.Set(ctx, NamespaceHybrid, "k", "v", time.Minute)
	var out string
	assert.False(t, n.Get(ctx, NamespaceHybrid, "k", &out))

	status, err := n.HealthCheck(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusDisabled, status)
}
