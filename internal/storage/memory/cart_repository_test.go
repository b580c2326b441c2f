package memory_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront-sync/internal/domain"
	"github.com/vladislavdragonenkov/storefront-sync/internal/storage/memory"
)

func requireItemCountMatchesLines(t *testing.T, repo domain.CartRepository) {
	t.Helper()

	ctx := context.Background()
	lines, err := repo.Lines(ctx)
	require.NoError(t, err)
	count, err := repo.ItemCount(ctx)
	require.NoError(t, err)
	require.Equal(t, domain.ItemCount(lines), count)
}

func TestCartRepository_AddMergesSameProduct(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewCartRepository()

	first, err := repo.Add(ctx, domain.CartLine{ProductID: "A", Quantity: 2, UnitPriceMinor: 100})
	require.NoError(t, err)
	requireItemCountMatchesLines(t, repo)

	merged, err := repo.Add(ctx, domain.CartLine{ProductID: "A", Quantity: 3, UnitPriceMinor: 100})
	require.NoError(t, err)
	requireItemCountMatchesLines(t, repo)

	require.Equal(t, first.ID, merged.ID)
	require.Equal(t, 5, merged.Quantity)

	lines, err := repo.Lines(ctx)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	require.Equal(t, 5, lines[0].Quantity)
}

func TestCartRepository_AddSequenceSumsQuantities(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewCartRepository()

	quantities := []int{1, 4, 2, 7, 3}
	want := 0
	for _, qty := range quantities {
		want += qty
		_, err := repo.Add(ctx, domain.CartLine{ProductID: "A", Quantity: qty})
		require.NoError(t, err)
		requireItemCountMatchesLines(t, repo)
	}

	lines, err := repo.Lines(ctx)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	require.Equal(t, want, lines[0].Quantity)
}

func TestCartRepository_ConcurrentAddsAreNotLost(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewCartRepository()

	const workers = 32
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			_, err := repo.Add(ctx, domain.CartLine{ProductID: "A", Quantity: 1})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	lines, err := repo.Lines(ctx)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	require.Equal(t, workers, lines[0].Quantity)
}

func TestCartRepository_UpdateRemoveClear(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewCartRepository()

	a, err := repo.Add(ctx, domain.CartLine{ProductID: "A", Quantity: 2, AvailableQty: 3})
	require.NoError(t, err)
	_, err = repo.Add(ctx, domain.CartLine{ProductID: "B", Quantity: 1})
	require.NoError(t, err)

	// Остаток каталога не ограничивает количество на уровне хранилища.
	updated, err := repo.UpdateQuantity(ctx, a.ID, 10)
	require.NoError(t, err)
	require.True(t, updated)
	requireItemCountMatchesLines(t, repo)

	count, err := repo.ItemCount(ctx)
	require.NoError(t, err)
	require.Equal(t, 11, count)

	updated, err = repo.UpdateQuantity(ctx, "missing", 4)
	require.NoError(t, err)
	require.False(t, updated)

	_, err = repo.UpdateQuantity(ctx, a.ID, 0)
	require.True(t, errors.Is(err, domain.ErrCartQtyInvalid))

	removed, err := repo.Remove(ctx, "missing")
	require.NoError(t, err)
	require.False(t, removed)
	requireItemCountMatchesLines(t, repo)

	removed, err = repo.Remove(ctx, a.ID)
	require.NoError(t, err)
	require.True(t, removed)
	requireItemCountMatchesLines(t, repo)

	contains, err := repo.Contains(ctx, "A")
	require.NoError(t, err)
	require.False(t, contains)
	contains, err = repo.Contains(ctx, "B")
	require.NoError(t, err)
	require.True(t, contains)

	require.NoError(t, repo.Clear(ctx))
	requireItemCountMatchesLines(t, repo)
	lines, err := repo.Lines(ctx)
	require.NoError(t, err)
	require.Empty(t, lines)
}

func TestCartRepository_AddValidates(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewCartRepository()

	_, err := repo.Add(ctx, domain.CartLine{Quantity: 1})
	require.ErrorIs(t, err, domain.ErrCartProductRequired)

	_, err = repo.Add(ctx, domain.CartLine{ProductID: "A"})
	require.ErrorIs(t, err, domain.ErrCartQtyInvalid)

	count, err := repo.ItemCount(ctx)
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestCartRepository_AddRejectsLineIDOfAnotherProduct(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewCartRepository()

	_, err := repo.Add(ctx, domain.CartLine{ID: "L1", ProductID: "A", Quantity: 2})
	require.NoError(t, err)

	_, err = repo.Add(ctx, domain.CartLine{ID: "L1", ProductID: "B", Quantity: 3})
	require.ErrorIs(t, err, domain.ErrCartLineConflict)

	_, err = repo.Add(ctx, domain.CartLine{ProductID: "A", Quantity: 1})
	require.NoError(t, err)

	lines, err := repo.Lines(ctx)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, "L1", lines[0].ID)
	assert.Equal(t, "A", lines[0].ProductID)
	assert.Equal(t, 3, lines[0].Quantity)

	hasB, err := repo.Contains(ctx, "B")
	require.NoError(t, err)
	assert.False(t, hasB)
}

func TestCartRepository_AddWithOwnLineIDMerges(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewCartRepository()

	_, err := repo.Add(ctx, domain.CartLine{ID: "L1", ProductID: "A", Quantity: 2})
	require.NoError(t, err)
	merged, err := repo.Add(ctx, domain.CartLine{ID: "L1", ProductID: "A", Quantity: 1})
	require.NoError(t, err)
	assert.Equal(t, "L1", merged.ID)
	assert.Equal(t, 3, merged.Quantity)
	requireItemCountMatchesLines(t, repo)
}

func TestCartRepository_QuantityLimit(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewCartRepository()

	line, err := repo.Add(ctx, domain.CartLine{ProductID: "A", Quantity: domain.MaxLineQuantity})
	require.NoError(t, err)

	_, err = repo.Add(ctx, domain.CartLine{ProductID: "A", Quantity: 1})
	require.ErrorIs(t, err, domain.ErrCartQtyInvalid)

	_, err = repo.UpdateQuantity(ctx, line.ID, domain.MaxLineQuantity+1)
	require.ErrorIs(t, err, domain.ErrCartQtyInvalid)

	count, err := repo.ItemCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.MaxLineQuantity, count)
}

func TestCartRepository_DeductKeepsLaterChanges(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewCartRepository()

	_, err := repo.Add(ctx, domain.CartLine{ProductID: "A", Quantity: 2})
	require.NoError(t, err)
	b, err := repo.Add(ctx, domain.CartLine{ProductID: "B", Quantity: 1})
	require.NoError(t, err)
	d, err := repo.Add(ctx, domain.CartLine{ProductID: "D", Quantity: 5})
	require.NoError(t, err)

	snapshot, err := repo.Lines(ctx)
	require.NoError(t, err)

	// Изменения после снапшота: новый товар, докупка и уменьшение.
	_, err = repo.Add(ctx, domain.CartLine{ProductID: "C", Quantity: 4})
	require.NoError(t, err)
	_, err = repo.Add(ctx, domain.CartLine{ProductID: "B", Quantity: 3})
	require.NoError(t, err)
	_, err = repo.UpdateQuantity(ctx, d.ID, 1)
	require.NoError(t, err)

	require.NoError(t, repo.Deduct(ctx, snapshot))

	lines, err := repo.Lines(ctx)
	require.NoError(t, err)
	left := map[string]int{}
	for _, line := range lines {
		left[line.ProductID] = line.Quantity
	}
	assert.Equal(t, map[string]int{"B": 3, "C": 4}, left)

	hasA, err := repo.Contains(ctx, "A")
	require.NoError(t, err)
	assert.False(t, hasA)

	// Списание всего количества удаляет строку.
	require.NoError(t, repo.Deduct(ctx, []domain.CartLine{{ID: b.ID, ProductID: "B", Quantity: 3}}))
	lines, err = repo.Lines(ctx)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, "C", lines[0].ProductID)
	requireItemCountMatchesLines(t, repo)
}
