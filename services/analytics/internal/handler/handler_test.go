package handler

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/example/learning-platform/internal/platform/analytics"
)

type recordingSink struct{ got []Captured }

func (r *recordingSink) Capture(ev Captured) { r.got = append(r.got, ev) }

func envelope(t *testing.T, name, uid string, props map[string]any) []byte {
	t.Helper()
	b, err := json.Marshal(analytics.Event{
		EventID:    "e1",
		EventName:  name,
		UserID:     uid,
		OccurredAt: time.Date(2026, 5, 3, 12, 0, 0, 0, time.UTC),
		Properties: props,
	})
	require.NoError(t, err)
	return b
}

func TestDispatch_Routes(t *testing.T) {
	cases := []struct {
		subject string
		props   map[string]any
		event   string
		value   float64
	}{
		{analytics.SubjectLessonStarted, map[string]any{"lesson_id": "l1", "module_id": "m1"}, "lesson_started", 0},
		{analytics.SubjectLessonCompleted, map[string]any{"lesson_id": "l1", "module_id": "m1", "percentage": 95}, "lesson_completed", 95},
		{analytics.SubjectLessonRated, map[string]any{"lesson_id": "l1", "rating": 4}, "lesson_rated", 4},
		{analytics.SubjectNotificationSent, map[string]any{"recipients": 120}, "notification_broadcast", 120},
		{analytics.SubjectPlaybackLoadFailed, map[string]any{"lesson_id": "l2", "reason": "no media"}, "playback_load_failed", 0},
	}
	for _, tc := range cases {
		t.Run(tc.event, func(t *testing.T) {
			sink := &recordingSink{}
			d := New(sink, nil)
			require.True(t, d.Dispatch(tc.subject, envelope(t, tc.event, "u1", tc.props)))
			require.Len(t, sink.got, 1)
			require.Equal(t, tc.event, sink.got[0].Event)
			require.Equal(t, tc.value, sink.got[0].Value)
			require.Equal(t, "u1", sink.got[0].DistinctID)
		})
	}
}

func TestDispatch_AnonymousAndUnknown(t *testing.T) {
	sink := &recordingSink{}
	d := New(sink, nil)

	require.True(t, d.Dispatch(analytics.SubjectLessonStarted, envelope(t, "lesson_started", "", nil)))
	require.Equal(t, "anonymous", sink.got[0].DistinctID)

	require.False(t, d.Dispatch("analytics.unknown", envelope(t, "x", "u1", nil)))
	require.False(t, d.Dispatch(analytics.SubjectLessonStarted, []byte("{")))
	require.Len(t, sink.got, 1)
}

func TestMetricsSink(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := NewMetricsSink(reg, nil)
	d := New(s, nil)

	d.Dispatch(analytics.SubjectLessonCompleted, envelope(t, "lesson_completed", "u1", map[string]any{"module_id": "m1", "percentage": 100}))
	d.Dispatch(analytics.SubjectLessonCompleted, envelope(t, "lesson_completed", "u2", map[string]any{"module_id": "m1", "percentage": 92}))
	d.Dispatch(analytics.SubjectLessonRated, envelope(t, "lesson_rated", "u1", map[string]any{"rating": 5}))

	require.Equal(t, 2.0, testutil.ToFloat64(s.events.WithLabelValues("lesson_completed")))
	require.Equal(t, 2.0, testutil.ToFloat64(s.completed.WithLabelValues("m1")))
	require.Equal(t, 1, testutil.CollectAndCount(s.ratings))
}
