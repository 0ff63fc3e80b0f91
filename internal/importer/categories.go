package importer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"spendwise/internal/core"
	"spendwise/internal/ports"
)

var errInvalidCategory = errors.New("invalid category")

// categoryResolver maps category names to ids, creating missing categories
// once per import.
type categoryResolver struct {
	store  ports.CategoryStore
	dryRun bool
	byName map[string]string
}

func newCategoryResolver(store ports.CategoryStore, dryRun bool) *categoryResolver {
	return &categoryResolver{store: store, dryRun: dryRun, byName: map[string]string{}}
}

// resolve returns the id for name. created is the normalized name when this
// call created the category.
func (r *categoryResolver) resolve(ctx context.Context, name string) (id, created string, err error) {
	name, err = core.NormalizeCategoryName(name)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", errInvalidCategory, err)
	}
	key := strings.ToLower(name)
	if id, ok := r.byName[key]; ok {
		return id, "", nil
	}

	cat, err := r.store.FindCategoryByName(ctx, name)
	switch {
	case err == nil:
		r.byName[key] = cat.ID
		return cat.ID, "", nil
	case !errors.Is(err, core.ErrNotFound):
		return "", "", err
	}

	if r.dryRun {
		id = "dry-run:" + key
		r.byName[key] = id
		return id, name, nil
	}

	cat, err = r.store.CreateCategory(ctx, name)
	if errors.Is(err, core.ErrCategoryExists) {
		// created concurrently
		if cat, err = r.store.FindCategoryByName(ctx, name); err != nil {
			return "", "", err
		}
		r.byName[key] = cat.ID
		return cat.ID, "", nil
	}
	if err != nil {
		return "", "", err
	}
	r.byName[key] = cat.ID
	return cat.ID, cat.Name, nil
}
