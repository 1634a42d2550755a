package reflections

import "context"

// Repository persists absorbed reflection failures.
type Repository interface {
	Save(ctx context.Context, f *Failure) error
	ListByTenant(ctx context.Context, tenant string, limit int) ([]*Failure, error)
}
