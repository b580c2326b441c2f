package lifecycle

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront-sync/internal/domain"
)

func TestMachineMatchesTransitionTable(t *testing.T) {
	t.Parallel()

	for _, from := range domain.OrderStatuses() {
		for _, to := range domain.OrderStatuses() {
			order := domain.Order{ID: "o-1", Status: from}
			err := validateTransition(context.Background(), order, to)
			if domain.CanTransition(from, to) {
				assert.NoErrorf(t, err, "%s -> %s", from, to)
			} else {
				assert.Truef(t, domain.IsInvalidTransition(err), "%s -> %s: %v", from, to, err)
			}
		}
	}
}

func TestAvailableFromKeepsLifecycleOrder(t *testing.T) {
	t.Parallel()

	for _, status := range domain.OrderStatuses() {
		require.Equal(t, domain.AvailableTransitions(status), availableFrom(status), status)
	}
}

func TestMachineRejectsUnknownStatus(t *testing.T) {
	t.Parallel()

	err := validateTransition(context.Background(), domain.Order{ID: "o-1", Status: "lost"}, domain.OrderStatusProcessing)
	require.Error(t, err)

	var transitionErr *domain.TransitionError
	require.ErrorAs(t, err, &transitionErr)
	require.Equal(t, domain.OrderStatus("lost"), transitionErr.From)
	require.Empty(t, availableFrom("lost"))
}
