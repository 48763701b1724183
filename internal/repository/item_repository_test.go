package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/weighbridge-ops/internal/model"
)

func TestItemRepo_CRUD(t *testing.T) {
	db := testDB(t)
	repo := NewItemRepo(db)
	ctx := context.Background()

	it := &model.Item{Name: "Load cell", Description: "Spare load cell", Quantity: 3}
	require.NoError(t, repo.Create(ctx, it))
	require.NotEmpty(t, it.ID)

	got, err := repo.GetByID(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, "Load cell", got.Name)
	assert.Equal(t, 3, got.Quantity)

	it.Quantity = 0
	it.Description = "Out of stock"
	require.NoError(t, repo.Update(ctx, it))
	assert.Equal(t, 0, it.Quantity)
	assert.False(t, it.UpdatedAt.Before(it.CreatedAt))

	require.NoError(t, repo.Delete(ctx, it.ID))
	_, err = repo.GetByID(ctx, it.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, it.ID), ErrNotFound)
	assert.ErrorIs(t, repo.Update(ctx, it), ErrNotFound)
}

func TestItemRepo_ListNewestFirstWithSearch(t *testing.T) {
	db := testDB(t)
	repo := NewItemRepo(db)
	ctx := context.Background()

	for _, name := range []string{"Printer paper", "Load cell", "Ticket printer"} {
		require.NoError(t, repo.Create(ctx, &model.Item{Name: name, Description: "stock", Quantity: 1}))
		time.Sleep(5 * time.Millisecond)
	}

	all, total, err := repo.List(ctx, "", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, all, 3)
	assert.Equal(t, "Ticket printer", all[0].Name)

	printers, total, err := repo.List(ctx, "printer", 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, printers, 1)
	assert.Equal(t, "Printer paper", printers[0].Name)
}

func TestItemRepo_SearchTreatsWildcardsLiterally(t *testing.T) {
	db := testDB(t)
	repo := NewItemRepo(db)
	ctx := context.Background()

	for _, name := range []string{"100% steel", "Load_cell", "Loadxcell", "Urgent!"} {
		require.NoError(t, repo.Create(ctx, &model.Item{Name: name, Description: "stock", Quantity: 1}))
	}

	cases := map[string][]string{
		"%":      {"100% steel"},
		"_":      {"Load_cell"},
		"load_c": {"Load_cell"},
		"!":      {"Urgent!"},
		"cell":   {"Load_cell", "Loadxcell"},
	}
	for search, want := range cases {
		got, total, err := repo.List(ctx, search, 10, 0)
		require.NoError(t, err, search)
		assert.Equal(t, len(want), total, search)
		names := make([]string, 0, len(got))
		for _, it := range got {
			names = append(names, it.Name)
		}
		assert.ElementsMatch(t, want, names, search)
	}
}
