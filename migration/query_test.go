package migration_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/bobuhiro11/gosvga/backend"
	"github.com/bobuhiro11/gosvga/migration"
	"github.com/bobuhiro11/gosvga/render"
)

// queryState returns a state with context 1 whose query is in live, and a
// recorder that knows about it.
func queryState(t *testing.T, live render.QueryState) (migration.State, *backend.Recorder) {
	t.Helper()

	st := newState()

	c, err := st.Contexts.Define(1)
	if err != nil {
		t.Fatal(err)
	}

	rec := backend.NewRecorder()
	rec.Samples = 42
	mustOK(t, rec.DefineContext(1))

	switch live {
	case render.QueryBuilding:
		c.BeginQuery()
		mustOK(t, rec.QueryBegin(1))
	case render.QueryIssued:
		c.BeginQuery()
		mustOK(t, c.EndQuery())
		mustOK(t, rec.QueryBegin(1))
		mustOK(t, rec.QueryEnd(1))
	case render.QuerySignaled:
		c.BeginQuery()
		mustOK(t, c.EndQuery())
		mustOK(t, c.SignalQuery(5))
	}

	return st, rec
}

func TestSaveFinalizesQuery(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		live      render.QueryState
		ops       []backend.Op
		saved     render.Query
		afterSave render.QueryState
	}{
		{
			render.QueryBuilding,
			[]backend.Op{backend.OpQueryEnd, backend.OpQueryWait},
			render.Query{State: render.QuerySignaled, Result: 42},
			render.QueryIssued,
		},
		{
			render.QueryIssued,
			[]backend.Op{backend.OpQueryWait},
			render.Query{State: render.QuerySignaled, Result: 42},
			render.QueryIssued,
		},
		{
			render.QuerySignaled,
			nil,
			render.Query{State: render.QuerySignaled, Result: 5},
			render.QuerySignaled,
		},
		{
			render.QueryNull,
			nil,
			render.Query{},
			render.QueryNull,
		},
	} {
		st, rec := queryState(t, tc.live)
		before := len(rec.Calls())

		var buf bytes.Buffer
		if err := migration.Save(&buf, st, rec); err != nil {
			t.Fatalf("%v: Save: %v", tc.live, err)
		}

		calls := rec.Calls()[before:]
		if len(calls) != len(tc.ops) {
			t.Fatalf("%v: backend calls = %v, want %v", tc.live, calls, tc.ops)
		}

		for i, op := range tc.ops {
			if calls[i].Op != op {
				t.Fatalf("%v: backend calls = %v, want %v", tc.live, calls, tc.ops)
			}
		}

		if got := mustContext(t, st, 1).Query.State; got != tc.afterSave {
			t.Errorf("%v: live state after save = %v, want %v", tc.live, got, tc.afterSave)
		}

		dst := newState()
		if _, err := migration.Load(&buf, dst); err != nil {
			t.Fatalf("%v: Load: %v", tc.live, err)
		}

		if got := mustContext(t, dst, 1).Query; got != tc.saved {
			t.Errorf("%v: loaded query = %+v, want %+v", tc.live, got, tc.saved)
		}
	}
}

func TestSavePendingQueryNeedsBackend(t *testing.T) {
	t.Parallel()

	st, _ := queryState(t, render.QueryIssued)

	if err := migration.Save(&bytes.Buffer{}, st, nil); err == nil {
		t.Fatal("Save without backend succeeded")
	}

	// Layouts without a query section leave the query alone.
	if err := migration.SaveVersion(&bytes.Buffer{}, st, nil, migration.VersionContextLayout); err != nil {
		t.Fatal(err)
	}
}

func TestSaveQueryBackendError(t *testing.T) {
	t.Parallel()

	st, _ := queryState(t, render.QueryIssued)

	// A recorder that never saw the query refuses to wait for it.
	rec := backend.NewRecorder()
	mustOK(t, rec.DefineContext(1))

	err := migration.Save(&bytes.Buffer{}, st, rec)
	if !errors.Is(err, render.ErrQueryState) {
		t.Fatalf("Save = %v", err)
	}
}

func TestSaveResetsUnknownQueryState(t *testing.T) {
	t.Parallel()

	st, rec := queryState(t, render.QueryNull)
	mustContext(t, st, 1).Query.State = render.QueryState(42)

	var buf bytes.Buffer
	if err := migration.Save(&buf, st, rec); err != nil {
		t.Fatal(err)
	}

	if got := mustContext(t, st, 1).Query.State; got != render.QueryNull {
		t.Fatalf("live state after save = %v", got)
	}

	dst := newState()
	if _, err := migration.Load(&buf, dst); err != nil {
		t.Fatal(err)
	}

	if got := mustContext(t, dst, 1).Query.State; got != render.QueryNull {
		t.Fatalf("loaded state = %v", got)
	}
}
