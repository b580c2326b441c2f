package lifecycle

import (
	"context"
	"sort"

	"github.com/looplab/fsm"

	"github.com/vladislavdragonenkov/storefront-sync/internal/domain"
)

// machineEvents строится один раз из таблицы переходов domain.
// Имя события совпадает с целевым статусом.
var machineEvents = buildEvents()

func buildEvents() fsm.Events {
	sources := make(map[domain.OrderStatus][]string)
	for _, from := range domain.OrderStatuses() {
		for _, to := range domain.AvailableTransitions(from) {
			sources[to] = append(sources[to], string(from))
		}
	}

	events := make(fsm.Events, 0, len(sources))
	for _, to := range domain.OrderStatuses() {
		src, ok := sources[to]
		if !ok {
			continue
		}
		events = append(events, fsm.EventDesc{Name: string(to), Src: src, Dst: string(to)})
	}
	return events
}

// newMachine возвращает автомат, стоящий в текущем статусе заказа.
// Автомат одноразовый: FSM из looplab хранит состояние внутри.
func newMachine(current domain.OrderStatus) *fsm.FSM {
	return fsm.NewFSM(string(current), machineEvents, fsm.Callbacks{})
}

// validateTransition прогоняет переход через автомат.
func validateTransition(ctx context.Context, order domain.Order, target domain.OrderStatus) error {
	machine := newMachine(order.Status)
	if err := machine.Event(ctx, string(target)); err != nil {
		return &domain.TransitionError{OrderID: order.ID, From: order.Status, To: target}
	}
	return nil
}

// availableFrom возвращает допустимые цели в порядке жизненного цикла.
func availableFrom(current domain.OrderStatus) []domain.OrderStatus {
	machine := newMachine(current)
	names := machine.AvailableTransitions()

	rank := make(map[domain.OrderStatus]int, len(domain.OrderStatuses()))
	for i, status := range domain.OrderStatuses() {
		rank[status] = i
	}

	result := make([]domain.OrderStatus, 0, len(names))
	for _, name := range names {
		result = append(result, domain.OrderStatus(name))
	}
	sort.Slice(result, func(i, j int) bool {
		return rank[result[i]] < rank[result[j]]
	})
	return result
}
