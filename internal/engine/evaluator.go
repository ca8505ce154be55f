package engine

import (
	"context"
	"fmt"
	"runtime"

	"github.com/sourcegraph/conc/iter"

	"github.com/MentalSpaceTherapy/mentalspace-ehr/internal/rules"
)

// Evaluator decides membership of client records in condition sets.
// It is safe for concurrent use and never mutates its inputs.
type Evaluator struct {
	fields  *rules.FieldCatalog
	workers int
}

// NewEvaluator returns an evaluator bound to a field catalog. workers bounds
// the parallelism of Match; values below 1 use GOMAXPROCS.
func NewEvaluator(fields *rules.FieldCatalog, workers int) *Evaluator {
	if workers < 1 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Evaluator{fields: fields, workers: workers}
}

// Fields returns the catalog the evaluator resolves descriptors from.
func (e *Evaluator) Fields() *rules.FieldCatalog { return e.fields }

// Evaluate reports whether rec satisfies set.
func (e *Evaluator) Evaluate(rec Record, set rules.ConditionSet) bool {
	ok, _ := e.evaluate(rec, set, false)
	return ok
}

// EvaluateDetailed is Evaluate plus the type mismatches encountered. Mismatched
// conditions count as unsatisfied. Short-circuiting still applies, so only
// conditions that were actually evaluated can report a mismatch.
func (e *Evaluator) EvaluateDetailed(rec Record, set rules.ConditionSet) (bool, []Mismatch) {
	return e.evaluate(rec, set, true)
}

func (e *Evaluator) evaluate(rec Record, set rules.ConditionSet, collect bool) (bool, []Mismatch) {
	if len(set.Conditions) == 0 {
		return false, nil
	}

	var mismatches []Mismatch
	for _, cond := range set.Conditions {
		ok, mm := e.check(rec, cond)
		if mm != nil && collect {
			mismatches = append(mismatches, *mm)
		}
		switch set.MatchType {
		case rules.MatchAny:
			if ok {
				return true, mismatches
			}
		default:
			if !ok {
				return false, mismatches
			}
		}
	}
	return set.MatchType != rules.MatchAny, mismatches
}

func (e *Evaluator) check(rec Record, cond rules.Condition) (bool, *Mismatch) {
	field, ok := e.fields.Lookup(cond.Field)
	if !ok {
		return false, nil
	}
	raw, present := rec[cond.Field]
	if !present || raw == nil {
		return false, nil
	}

	value, ok := coerce(raw, field)
	if !ok {
		return false, &Mismatch{
			RecordID:    rec.ID(),
			ConditionID: cond.ID,
			Field:       field.ID,
			Expected:    field.Type,
			Got:         fmt.Sprintf("%T", raw),
		}
	}

	handler, ok := getOperatorHandler(cond.Operator)
	if !ok {
		return false, nil
	}
	return handler.Check(value, cond.Value), nil
}

// Match evaluates every record against set using a bounded worker pool.
// Members keep population order.
func (e *Evaluator) Match(ctx context.Context, records []Record, set rules.ConditionSet) (MatchResult, error) {
	type outcome struct {
		id         string
		ok         bool
		mismatches []Mismatch
	}

	mapper := iter.Mapper[Record, outcome]{MaxGoroutines: e.workers}
	outcomes := mapper.Map(records, func(rec *Record) outcome {
		if ctx.Err() != nil {
			return outcome{}
		}
		ok, mm := e.evaluate(*rec, set, true)
		return outcome{id: rec.ID(), ok: ok, mismatches: mm}
	})
	if err := ctx.Err(); err != nil {
		return MatchResult{}, err
	}

	result := MatchResult{Members: make([]string, 0), Total: len(records)}
	for _, o := range outcomes {
		if o.ok {
			result.Members = append(result.Members, o.id)
		}
		result.Mismatches = append(result.Mismatches, o.mismatches...)
	}
	return result, nil
}
