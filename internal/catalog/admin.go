package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tea-storefront/internal/entity"
	"tea-storefront/internal/reconcile"
)

// Writer is the remote half of the admin write path.
type Writer interface {
	CreateProduct(ctx context.Context, p entity.Product) (entity.Product, error)
	UpdateProduct(ctx context.Context, p entity.Product) (entity.Product, error)
	DeleteProduct(ctx context.Context, id string) error
}

// Admin applies product writes to the local list immediately and confirms
// them with the server afterwards, rolling back when the server refuses.
type Admin struct {
	remote Writer
	list   *reconcile.Reconciler
	now    func() time.Time
}

func NewAdmin(remote Writer, list *reconcile.Reconciler) *Admin {
	return &Admin{remote: remote, list: list, now: time.Now}
}

// Create shows p under a placeholder id at once and swaps in the server
// entry when the create is confirmed. When the server cannot be reached the
// placeholder stays listed and is returned; a later snapshot carrying the
// same name and price promotes it. Any other failure removes it.
func (a *Admin) Create(ctx context.Context, p entity.Product) (entity.Product, error) {
	if err := p.Validate(); err != nil {
		return entity.Product{}, err
	}
	p.SortTiers()
	p.ID = entity.NewLocalID(a.now())
	a.list.Upsert(ctx, p)

	created, err := a.remote.CreateProduct(ctx, p)
	if errors.Is(err, entity.ErrRemoteUnavailable) {
		logger.Warn().Err(err).Str("local_id", p.ID).Msg("Product create not confirmed, keeping placeholder")
		return p, nil
	}
	if err != nil {
		a.list.Remove(ctx, p.ID)
		return entity.Product{}, err
	}

	a.list.Promote(ctx, p.ID, created)
	logger.Info().Str("local_id", p.ID).Str("id", created.ID).Msg("Product created")
	return created, nil
}

func (a *Admin) Update(ctx context.Context, p entity.Product) (entity.Product, error) {
	if err := p.Validate(); err != nil {
		return entity.Product{}, err
	}
	previous, ok := a.list.Product(p.ID)
	if !ok {
		return entity.Product{}, fmt.Errorf("update product %s: %w", p.ID, entity.ErrProductNotFound)
	}
	p.SortTiers()
	a.list.Upsert(ctx, p)

	updated, err := a.remote.UpdateProduct(ctx, p)
	if err != nil {
		a.list.Upsert(ctx, previous)
		return entity.Product{}, err
	}
	a.list.Upsert(ctx, updated)
	return updated, nil
}

// Delete hides id at once and records a tombstone so that in-flight
// snapshots cannot bring it back. A refused delete restores the product.
func (a *Admin) Delete(ctx context.Context, id string) error {
	previous, ok := a.list.Product(id)
	a.list.Remove(ctx, id)
	if entity.IsLocalID(id) {
		return nil
	}

	if err := a.remote.DeleteProduct(ctx, id); err != nil {
		if ok {
			a.list.Restore(ctx, previous)
		}
		return err
	}
	logger.Info().Str("id", id).Msg("Product deleted")
	return nil
}
