package execution

import (
	"context"

	pkgerrors "iris/pkg/errors"
)

// Subject is one customer record presented to the evaluator.
type Subject struct {
	ID     string
	Record map[string]interface{}
}

// PopulationSource supplies the customer records a batch execution scans.
// How they are sourced (CRM database, CSV import, upstream API) is the
// caller's concern.
type PopulationSource interface {
	Lookup(ctx context.Context, id string) (*Subject, error)
	All(ctx context.Context) ([]Subject, error)
}

type staticPopulation struct {
	subjects []Subject
}

// NewStaticPopulation wraps a fixed slice of subjects. Used by tests and by
// callers that already hold the records in memory.
func NewStaticPopulation(subjects []Subject) PopulationSource {
	return &staticPopulation{subjects: subjects}
}

func (p *staticPopulation) Lookup(ctx context.Context, id string) (*Subject, error) {
	for i := range p.subjects {
		if p.subjects[i].ID == id {
			return &p.subjects[i], nil
		}
	}
	return nil, pkgerrors.ErrNotFound.WithDetail("subject_id", id)
}

func (p *staticPopulation) All(ctx context.Context) ([]Subject, error) {
	out := make([]Subject, len(p.subjects))
	copy(out, p.subjects)
	return out, nil
}
