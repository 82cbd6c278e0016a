// Package persistence reconciles in-memory inspection drafts with the
// last-persisted baseline: it computes the minimal create/update/delete set
// for damage points, executes it against the ERP API and merges the
// server-assigned identities back into the draft.
package persistence

import (
	"sort"

	"github.com/autoerp-inspection/backend/internal/models"
)

// Plan is the set of operations that brings the server in line with a draft.
// The three sets are disjoint.
type Plan struct {
	// Creates holds non-empty draft points without a server id, in draft order.
	Creates []models.DamagePoint
	// Updates holds persisted draft points whose content differs from the baseline.
	Updates []models.DamagePoint
	// Deletes holds baseline ids missing from the pruned draft.
	Deletes []int64
	// Pruned is the draft with empty points removed, in draft order.
	Pruned []models.DamagePoint
}

// Empty reports whether the plan has nothing to send.
func (p Plan) Empty() bool {
	return len(p.Creates) == 0 && len(p.Updates) == 0 && len(p.Deletes) == 0
}

// Compute derives the operations that turn baseline into draft.
//
// Empty points are pruned first, so a persisted point the user emptied is
// deleted rather than updated. A persisted draft point missing from the
// baseline is sent as an update: the server owns it even if this session
// never saw it.
func Compute(draft, baseline []models.DamagePoint) Plan {
	plan := Plan{Pruned: make([]models.DamagePoint, 0, len(draft))}

	byID := make(map[int64]models.DamagePoint, len(baseline))
	for _, b := range baseline {
		if b.ServerID != nil {
			byID[*b.ServerID] = b
		}
	}

	kept := make(map[int64]struct{}, len(draft))
	for _, d := range draft {
		if d.IsEmpty() {
			continue
		}
		plan.Pruned = append(plan.Pruned, d.Clone())

		if d.ServerID == nil {
			plan.Creates = append(plan.Creates, d.Clone())
			continue
		}

		id := *d.ServerID
		if _, dup := kept[id]; dup {
			continue
		}
		kept[id] = struct{}{}

		// An id unknown to the baseline comes from a create whose sibling
		// operations failed; patching it is the only way to avoid a
		// duplicate create.
		if b, ok := byID[id]; !ok || !d.SameContent(b) {
			plan.Updates = append(plan.Updates, d.Clone())
		}
	}

	for _, b := range baseline {
		if b.ServerID == nil {
			continue
		}
		if _, ok := kept[*b.ServerID]; !ok {
			plan.Deletes = append(plan.Deletes, *b.ServerID)
		}
	}
	sort.Slice(plan.Deletes, func(i, j int) bool { return plan.Deletes[i] < plan.Deletes[j] })
	plan.Deletes = dedupe(plan.Deletes)

	return plan
}

func dedupe(ids []int64) []int64 {
	if len(ids) < 2 {
		return ids
	}
	out := ids[:1]
	for _, id := range ids[1:] {
		if id != out[len(out)-1] {
			out = append(out, id)
		}
	}
	return out
}

// AnswerPlan is the upsert batch for a generic checklist.
type AnswerPlan struct {
	// Batch holds every non-empty answer keyed by item id.
	Batch map[int64]models.ItemAnswer
	// Changed reports whether Batch differs from the persisted baseline.
	Changed bool
}

// PlanAnswers filters empty answers out of draft and compares the result
// with the equally-filtered baseline.
func PlanAnswers(draft, baseline map[int64]models.ItemAnswer) AnswerPlan {
	batch := nonEmpty(draft)
	persisted := nonEmpty(baseline)

	changed := len(batch) != len(persisted)
	if !changed {
		for id, a := range batch {
			b, ok := persisted[id]
			if !ok || !a.Equal(b) {
				changed = true
				break
			}
		}
	}
	return AnswerPlan{Batch: batch, Changed: changed}
}

func nonEmpty(answers map[int64]models.ItemAnswer) map[int64]models.ItemAnswer {
	out := make(map[int64]models.ItemAnswer, len(answers))
	for id, a := range answers {
		if a.IsEmpty() {
			continue
		}
		out[id] = a.Clone()
	}
	return out
}
