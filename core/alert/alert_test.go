package alert

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/erbalance/core/model"
)

type countingSink struct {
	n   atomic.Int32
	err error
}

func (c *countingSink) Notify(context.Context, string, string, Severity) error {
	c.n.Add(1)
	return c.err
}

func TestForUrgency(t *testing.T) {
	assert.Equal(t, SeverityCritical, ForUrgency(model.UrgencyCritical))
	assert.Equal(t, SeverityWarning, ForUrgency(model.UrgencyHigh))
	assert.Equal(t, SeverityWarning, ForUrgency(model.UrgencyMedium))
	assert.Equal(t, SeverityInfo, ForUrgency(model.UrgencyLow))
}

func TestMemorySinkOrderingAndFilter(t *testing.T) {
	m := NewMemorySink(3)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	i := 0
	m.now = func() time.Time { i++; return base.Add(time.Duration(i) * time.Minute) }
	ctx := context.Background()
	require.NoError(t, m.Notify(ctx, "H1", "first", SeverityInfo))
	require.NoError(t, m.Notify(ctx, "H2", "second", SeverityWarning))
	require.NoError(t, m.Notify(ctx, "H1", "third", SeverityCritical))
	require.NoError(t, m.Notify(ctx, "H1", "fourth", SeverityInfo))

	recent, err := m.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, "fourth", recent[0].Message)
	assert.Equal(t, "second", recent[2].Message)

	h1, err := m.ByHospital(ctx, "H1", 1)
	require.NoError(t, err)
	require.Len(t, h1, 1)
	assert.Equal(t, "fourth", h1[0].Message)
	assert.NotEmpty(t, h1[0].ID)
	assert.NotEqual(t, recent[0].ID, recent[1].ID)
}

func TestMultiSinkJoinsErrors(t *testing.T) {
	ok := &countingSink{}
	bad := &countingSink{err: errors.New("webhook down")}
	err := MultiSink{ok, nil, bad}.Notify(context.Background(), "H1", "msg", SeverityInfo)
	assert.ErrorContains(t, err, "webhook down")
	assert.Equal(t, int32(1), ok.n.Load())
	assert.Equal(t, int32(1), bad.n.Load())
}

func TestNotifierFireAndForget(t *testing.T) {
	s := &countingSink{err: errors.New("ignored")}
	n := NewNotifier(s, time.Second, nil)
	n.Send("H1", "a", SeverityInfo)
	n.Send("H2", "b", SeverityCritical)
	n.Wait()
	assert.Equal(t, int32(2), s.n.Load())

	var nilNotifier *Notifier
	nilNotifier.Send("H1", "noop", SeverityInfo)
	nilNotifier.Wait()
}
