// Package cart — фасад локальной корзины: мутации с логированием и метриками,
// наблюдение за содержимым через оркестратор синхронизации.
package cart

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront-sync/internal/domain"
	"github.com/vladislavdragonenkov/storefront-sync/internal/metrics"
	"github.com/vladislavdragonenkov/storefront-sync/internal/resource"
	"github.com/vladislavdragonenkov/storefront-sync/internal/service/syncer"
)

// Kind используется как вид ресурса в метриках и логах оркестратора.
const Kind = "cart"

// Операции корзины для метрик.
const (
	opAdd    = "add"
	opUpdate = "update"
	opRemove = "remove"
	opClear  = "clear"
)

// Totals — агрегаты по текущему снапшоту корзины.
type Totals struct {
	ItemCount int
	// Сумма по базовым ценам.
	SubtotalMinor int64
	// Сумма по ценам с учётом скидок.
	TotalMinor int64
	// SubtotalMinor - TotalMinor.
	DiscountMinor int64
}

// Service оборачивает CartRepository.
type Service struct {
	repo         domain.CartRepository
	orchestrator *syncer.Orchestrator
	metrics      *metrics.SyncMetrics
	logger       *log.Entry
}

// NewService создаёт фасад корзины. Если orchestrator nil, создаётся собственный.
func NewService(repo domain.CartRepository, orchestrator *syncer.Orchestrator, m *metrics.SyncMetrics, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.WithField("component", "cart")
	}
	if orchestrator == nil {
		orchestrator = syncer.New(syncer.WithLogger(logger), syncer.WithMetrics(m))
	}
	return &Service{
		repo:         repo,
		orchestrator: orchestrator,
		metrics:      m,
		logger:       logger,
	}
}

// Add добавляет товар; повторное добавление того же товара увеличивает количество.
func (s *Service) Add(ctx context.Context, line domain.CartLine) (domain.CartLine, error) {
	saved, err := s.repo.Add(ctx, line)
	if err != nil {
		s.logger.WithError(err).WithField("product_id", line.ProductID).Warn("add to cart failed")
		return domain.CartLine{}, err
	}
	s.logger.WithFields(log.Fields{
		"product_id": saved.ProductID,
		"line_id":    saved.ID,
		"quantity":   saved.Quantity,
	}).Debug("cart line added")
	s.recordMutation(ctx, opAdd)
	return saved, nil
}

// UpdateQuantity заменяет количество строки. Возвращает false, если строки нет.
func (s *Service) UpdateQuantity(ctx context.Context, lineID string, qty int) (bool, error) {
	updated, err := s.repo.UpdateQuantity(ctx, lineID, qty)
	if err != nil {
		s.logger.WithError(err).WithField("line_id", lineID).Warn("update cart quantity failed")
		return false, err
	}
	if updated {
		s.recordMutation(ctx, opUpdate)
	}
	return updated, nil
}

// Remove удаляет строку. Возвращает false, если строки не было.
func (s *Service) Remove(ctx context.Context, lineID string) (bool, error) {
	removed, err := s.repo.Remove(ctx, lineID)
	if err != nil {
		s.logger.WithError(err).WithField("line_id", lineID).Warn("remove cart line failed")
		return false, err
	}
	if removed {
		s.recordMutation(ctx, opRemove)
	}
	return removed, nil
}

// Clear очищает корзину.
func (s *Service) Clear(ctx context.Context) error {
	if err := s.repo.Clear(ctx); err != nil {
		s.logger.WithError(err).Warn("clear cart failed")
		return err
	}
	s.recordMutation(ctx, opClear)
	return nil
}

// Lines возвращает снапшот строк.
func (s *Service) Lines(ctx context.Context) ([]domain.CartLine, error) {
	return s.repo.Lines(ctx)
}

// ItemCount возвращает суммарное количество единиц.
func (s *Service) ItemCount(ctx context.Context) (int, error) {
	return s.repo.ItemCount(ctx)
}

// Contains проверяет наличие товара.
func (s *Service) Contains(ctx context.Context, productID string) (bool, error) {
	return s.repo.Contains(ctx, productID)
}

// Totals считает агрегаты по одному снапшоту.
func (s *Service) Totals(ctx context.Context) (Totals, error) {
	lines, err := s.repo.Lines(ctx)
	if err != nil {
		return Totals{}, err
	}
	return ComputeTotals(lines), nil
}

// ComputeTotals считает агрегаты по строкам.
func ComputeTotals(lines []domain.CartLine) Totals {
	var totals Totals
	for _, line := range lines {
		totals.ItemCount += line.Quantity
		totals.SubtotalMinor += int64(line.Quantity) * line.UnitPriceMinor
		totals.TotalMinor += line.SubtotalMinor()
	}
	totals.DiscountMinor = totals.SubtotalMinor - totals.TotalMinor
	return totals
}

// Resource возвращает корзину как ресурс оркестратора: только локальное хранилище, без сети.
func (s *Service) Resource() syncer.Resource[[]domain.CartLine, []domain.CartLine] {
	return syncer.Funcs[[]domain.CartLine, []domain.CartLine]{
		KindName: Kind,
		Cache: func(ctx context.Context) ([]domain.CartLine, bool, error) {
			lines, err := s.repo.Lines(ctx)
			if err != nil {
				return nil, false, err
			}
			return lines, true, nil
		},
		Refresh: syncer.Never[[]domain.CartLine](),
	}
}

// Observe загружает корзину через оркестратор: Loading, затем Success со снапшотом.
func (s *Service) Observe(ctx context.Context) <-chan resource.State[[]domain.CartLine] {
	return syncer.Load(ctx, s.orchestrator, s.Resource())
}

func (s *Service) recordMutation(ctx context.Context, op string) {
	if s.metrics == nil {
		return
	}
	count, err := s.repo.ItemCount(ctx)
	if err != nil {
		s.logger.WithError(err).Debug("item count unavailable for metrics")
		return
	}
	s.metrics.RecordCartMutation(op, count)
}
