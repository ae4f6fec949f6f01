package render_test

import (
	"errors"
	"testing"

	"github.com/bobuhiro11/gosvga/render"
)

func TestPlanQuerySave(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		live render.QueryState
		want render.QuerySave
	}{
		{render.QueryBuilding, render.QuerySave{End: true, Wait: true, Saved: render.QuerySignaled, Restore: render.QueryIssued}},
		{render.QueryIssued, render.QuerySave{Wait: true, Saved: render.QuerySignaled, Restore: render.QueryIssued}},
		{render.QuerySignaled, render.QuerySave{Saved: render.QuerySignaled, Restore: render.QuerySignaled}},
		{render.QueryNull, render.QuerySave{Saved: render.QueryNull, Restore: render.QueryNull}},
		{render.QueryState(42), render.QuerySave{Saved: render.QueryNull, Restore: render.QueryNull}},
	} {
		if got := render.PlanQuerySave(tc.live); got != tc.want {
			t.Errorf("PlanQuerySave(%v) = %+v, want %+v", tc.live, got, tc.want)
		}
	}
}

func TestQueryLifecycle(t *testing.T) {
	t.Parallel()

	c := newContext(t)

	if err := c.EndQuery(); !errors.Is(err, render.ErrQueryState) {
		t.Fatalf("end before begin = %v", err)
	}

	c.BeginQuery()

	if err := c.SignalQuery(1); !errors.Is(err, render.ErrQueryState) {
		t.Fatalf("signal while building = %v", err)
	}

	if err := c.EndQuery(); err != nil {
		t.Fatal(err)
	}

	if err := c.SignalQuery(77); err != nil {
		t.Fatal(err)
	}

	if c.Query != (render.Query{State: render.QuerySignaled, Result: 77}) {
		t.Fatalf("query = %+v", c.Query)
	}
}
