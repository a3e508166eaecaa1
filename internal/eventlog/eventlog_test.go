package eventlog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/meltshop/internal/ir"
	"github.com/roach88/meltshop/internal/testutil"
)

type recordingEvaluator struct {
	log      *Log
	contexts []ir.Context
	storedAt []int
}

func (r *recordingEvaluator) Evaluate(ctx ir.Context) {
	r.contexts = append(r.contexts, ctx)
	r.storedAt = append(r.storedAt, r.log.Len())
}

func setupLog(t *testing.T) (*Log, *recordingEvaluator, *testutil.ManualClock) {
	t.Helper()
	clk := testutil.NewManualClock(time.Time{})
	eval := &recordingEvaluator{}
	l := NewLog(clk, eval)
	eval.log = l
	return l, eval, clk
}

func TestLog_CreateAllocatesIDs(t *testing.T) {
	l, _, _ := setupLog(t)

	a := l.Create(testutil.Epoch, nil, nil)
	b := l.Create(testutil.Epoch, nil, nil)

	assert.Equal(t, "ev-1", a.ID())
	assert.Equal(t, "ev-2", b.ID())
}

func TestLog_CreateStampsZeroTimestamp(t *testing.T) {
	l, _, clk := setupLog(t)
	clk.Advance(time.Hour)

	ev := l.Create(time.Time{}, nil, nil)

	assert.Equal(t, clk.Now(), ev.Timestamp())
}

func TestLog_CreateEvaluatesRulesAfterStoring(t *testing.T) {
	l, eval, _ := setupLog(t)

	ev := l.Create(testutil.Epoch, map[string]any{"machine": "furnace-1"}, []string{"critical"})

	require.Len(t, eval.contexts, 1)
	ctx := eval.contexts[0]
	assert.Equal(t, ir.ContextEvent, ctx.Kind)
	require.NotNil(t, ctx.Event)
	assert.Equal(t, ev.ID(), ctx.Event.ID())
	assert.Equal(t, []int{1}, eval.storedAt)
}

func TestLog_CreateWithoutEvaluator(t *testing.T) {
	l := NewLog(testutil.NewManualClock(time.Time{}), nil)

	ev := l.Create(testutil.Epoch, nil, []string{"info"})

	assert.Equal(t, "ev-1", ev.ID())
}

func TestLog_SubscribeThenCancel(t *testing.T) {
	l, _, _ := setupLog(t)
	var got []Notification
	sub := l.Stream(func(n Notification) { got = append(got, n) })

	first := l.Create(testutil.Epoch, nil, nil)
	require.Len(t, got, 1)
	assert.Equal(t, NotifyCreated, got[0].Type)
	assert.Equal(t, first.ID(), got[0].Record.ID())

	sub.Cancel()
	l.Create(testutil.Epoch, nil, nil)

	assert.Len(t, got, 1)
}

func TestLog_FindAndPredicates(t *testing.T) {
	l, _, _ := setupLog(t)
	l.Create(testutil.Epoch, nil, []string{"info"})
	crit := l.Create(testutil.Epoch.Add(time.Minute), nil, []string{"critical", "furnace"})
	l.Create(testutil.Epoch.Add(2*time.Minute), nil, []string{"critical"})

	found, ok := l.Find(crit.ID())
	require.True(t, ok)
	assert.Equal(t, crit.Labels(), found.Labels())

	_, ok = l.Find("ev-99")
	assert.False(t, ok)

	assert.Len(t, l.All(), 3)
	assert.Len(t, l.All(HasLabel("critical")), 2)
	assert.Len(t, l.All(Since(testutil.Epoch.Add(time.Minute))), 2)
	assert.Len(t, l.All(HasLabel("critical"), Since(testutil.Epoch.Add(2*time.Minute))), 1)
	assert.Empty(t, l.All(HasLabel("missing")))
}
