package render

import "fmt"

// QueryState is the life cycle of the occlusion query of a context.
type QueryState uint32

const (
	QueryNull QueryState = iota
	QuerySignaled
	QueryBuilding
	QueryIssued
)

func (s QueryState) String() string {
	switch s {
	case QueryNull:
		return "null"
	case QuerySignaled:
		return "signaled"
	case QueryBuilding:
		return "building"
	case QueryIssued:
		return "issued"
	default:
		return fmt.Sprintf("query(%d)", uint32(s))
	}
}

// Query is the occlusion query of a context. Result is the sample count
// and is meaningful in QuerySignaled only.
type Query struct {
	State  QueryState
	Result uint32
}

// QuerySave tells a snapshot writer how to bring a query into a state that
// can be written.
type QuerySave struct {
	// End is set when collection must be stopped first.
	End bool
	// Wait is set when the result must be waited for.
	Wait bool
	// Saved is the state written to the snapshot.
	Saved QueryState
	// Restore is the state the live query is left in afterwards.
	Restore QueryState
}

// PlanQuerySave maps a live query state onto what is written and what the
// live query ends up as. Ending a building query is permanent; waiting for
// an issued one is not visible in the live state. Unknown states are reset
// to null.
func PlanQuerySave(live QueryState) QuerySave {
	switch live {
	case QueryBuilding:
		return QuerySave{End: true, Wait: true, Saved: QuerySignaled, Restore: QueryIssued}
	case QueryIssued:
		return QuerySave{Wait: true, Saved: QuerySignaled, Restore: QueryIssued}
	case QuerySignaled:
		return QuerySave{Saved: QuerySignaled, Restore: QuerySignaled}
	default:
		return QuerySave{Saved: QueryNull, Restore: QueryNull}
	}
}

// BeginQuery starts collecting samples.
func (c *Context) BeginQuery() {
	c.Query = Query{State: QueryBuilding}
}

// EndQuery stops collecting samples. Ending a query that is not building
// is a guest error.
func (c *Context) EndQuery() error {
	if c.Query.State != QueryBuilding {
		return fmt.Errorf("end query in state %v: %w", c.Query.State, ErrQueryState)
	}

	c.Query.State = QueryIssued

	return nil
}

// SignalQuery records the result of an issued query.
func (c *Context) SignalQuery(result uint32) error {
	if c.Query.State != QueryIssued && c.Query.State != QuerySignaled {
		return fmt.Errorf("signal query in state %v: %w", c.Query.State, ErrQueryState)
	}

	c.Query = Query{State: QuerySignaled, Result: result}

	return nil
}
