package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/selfcheckout/internal/blob"
	"github.com/roach88/selfcheckout/internal/catalog"
	"github.com/roach88/selfcheckout/internal/metrics"
	"github.com/roach88/selfcheckout/internal/store"
	"github.com/roach88/selfcheckout/internal/testutil"
)

var testStart = time.Date(2025, 11, 3, 9, 30, 0, 0, time.UTC)

type fixture struct {
	engine     *Engine
	store      *store.Store
	classifier *testutil.ScriptedClassifier
	clock      *testutil.FixedClock
	metrics    *metrics.Registry
}

// newFixture builds an engine over a temp store seeded with Water (10000)
// and Coke (15000). Image "water" classifies as Water at 0.97, "coke" as
// Coke at 0.95, "blurry" as Water at 0.40.
func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	cat := catalog.New(st)
	_, err = cat.Seed(context.Background(), []catalog.Entry{
		{Name: "Water", Price: 10000},
		{Name: "Coke", Price: 15000},
	})
	require.NoError(t, err)

	cls := testutil.NewScriptedClassifier().
		On("water", testutil.Guess("Water", 0.97, "Coke", 0.02)).
		On("coke", testutil.Guess("Coke", 0.95, "Water", 0.03)).
		On("blurry", testutil.Guess("Water", 0.40, "Coke", 0.35))
	clock := testutil.NewFixedClock(testStart)
	reg := metrics.NewRegistry()

	opts = append([]Option{WithClock(clock), WithMetrics(reg)}, opts...)
	e := New(st, cls, cat, blob.NewFS(t.TempDir(), clock.Now), opts...)

	return &fixture{engine: e, store: st, classifier: cls, clock: clock, metrics: reg}
}

func (f *fixture) session(t *testing.T) string {
	t.Helper()
	sess, err := f.engine.Create(context.Background(), "kiosk-1")
	require.NoError(t, err)
	return sess.ID
}

func (f *fixture) ingest(t *testing.T, sessionID, frameID, image string) IngestResult {
	t.Helper()
	res, err := f.engine.Ingest(context.Background(), frame(sessionID, frameID, image))
	require.NoError(t, err)
	return res
}

func frame(sessionID, frameID, image string) FrameInput {
	return FrameInput{
		SessionID: sessionID,
		FrameID:   frameID,
		DeviceID:  "kiosk-1",
		Image:     []byte(image),
	}
}

// assertTotalInvariant checks that the cached total equals the line sum.
func assertTotalInvariant(t *testing.T, st *store.Store, sessionID string) {
	t.Helper()
	ctx := context.Background()
	sess, err := st.Session(ctx, sessionID)
	require.NoError(t, err)
	lines, err := st.Lines(ctx, sessionID)
	require.NoError(t, err)

	var sum int64
	for _, l := range lines {
		require.Equal(t, l.Quantity*l.UnitPrice, l.Amount, "line %d amount", l.ID)
		sum += l.Amount
	}
	require.Equal(t, sum, sess.TotalAmount, "total_amount must equal line sum")
}
