package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/vladislavdragonenkov/storefront-sync/internal/domain"
)

const cartColumns = `id, product_id, quantity, unit_price_minor, discount_price_minor, available_qty, created_at, updated_at`

// CartRepository — корзина в SQLite. Слияние по product_id выполняется одним UPSERT.
type CartRepository struct {
	store *Store
}

// NewCartRepository создаёт корзину поверх store.
func NewCartRepository(store *Store) *CartRepository {
	return &CartRepository{store: store}
}

// Add вставляет строку или прибавляет количество к строке того же товара.
// Проверка ID и UPSERT выполняются в одной транзакции.
func (r *CartRepository) Add(ctx context.Context, line domain.CartLine) (domain.CartLine, error) {
	if errs := line.Validate(); len(errs) > 0 {
		return domain.CartLine{}, errors.Join(errs...)
	}
	now := toUnix(r.store.now())

	var discount sql.NullInt64
	if line.DiscountPriceMinor != nil {
		discount = sql.NullInt64{Int64: *line.DiscountPriceMinor, Valid: true}
	}

	var stored domain.CartLine
	err := r.store.inTx(ctx, func(tx *sql.Tx) error {
		id, err := claimLineID(ctx, tx, line)
		if err != nil {
			return err
		}

		row := tx.QueryRowContext(ctx, `
			INSERT INTO cart_lines (`+cartColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(product_id) DO UPDATE SET
				quantity = cart_lines.quantity + excluded.quantity,
				updated_at = excluded.updated_at
			WHERE cart_lines.quantity + excluded.quantity <= ?
			RETURNING `+cartColumns,
			id, line.ProductID, line.Quantity, line.UnitPriceMinor, discount, line.AvailableQty, now, now,
			domain.MaxLineQuantity,
		)
		stored, err = scanCartLine(row)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			// Условие DO UPDATE не выполнено: сумма вышла за предел.
			return domain.ErrCartQtyInvalid
		case isPrimaryKeyViolation(err):
			return fmt.Errorf("%w: line %s", domain.ErrCartLineConflict, id)
		case err != nil:
			return persistErr("upsert cart line", err)
		}
		return nil
	})
	if err != nil {
		return domain.CartLine{}, err
	}
	return stored, nil
}

// claimLineID возвращает ID для вставки. Чужой ID отклоняется; ID строки того же товара
// заменяется новым, и слияние идёт через конфликт по product_id.
func claimLineID(ctx context.Context, tx *sql.Tx, line domain.CartLine) (string, error) {
	if line.ID == "" {
		return uuid.NewString(), nil
	}
	var owner string
	err := tx.QueryRowContext(ctx, `SELECT product_id FROM cart_lines WHERE id = ?`, line.ID).Scan(&owner)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return line.ID, nil
	case err != nil:
		return "", persistErr("lookup cart line", err)
	case owner != line.ProductID:
		return "", fmt.Errorf("%w: line %s holds %s", domain.ErrCartLineConflict, line.ID, owner)
	default:
		return uuid.NewString(), nil
	}
}

// UpdateQuantity заменяет количество строки lineID.
func (r *CartRepository) UpdateQuantity(ctx context.Context, lineID string, qty int) (bool, error) {
	if err := domain.ValidateQuantity(qty); err != nil {
		return false, err
	}

	res, err := r.store.db.ExecContext(ctx,
		`UPDATE cart_lines SET quantity = ?, updated_at = ? WHERE id = ?`,
		qty, toUnix(r.store.now()), lineID,
	)
	if err != nil {
		return false, persistErr("update cart line", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, persistErr("update cart line", err)
	}
	return affected > 0, nil
}

// Remove удаляет строку; отсутствие строки не ошибка.
func (r *CartRepository) Remove(ctx context.Context, lineID string) (bool, error) {
	res, err := r.store.db.ExecContext(ctx, `DELETE FROM cart_lines WHERE id = ?`, lineID)
	if err != nil {
		return false, persistErr("delete cart line", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, persistErr("delete cart line", err)
	}
	return affected > 0, nil
}

// Clear очищает корзину.
func (r *CartRepository) Clear(ctx context.Context) error {
	if _, err := r.store.db.ExecContext(ctx, `DELETE FROM cart_lines`); err != nil {
		return persistErr("clear cart", err)
	}
	return nil
}

// Deduct списывает снапшот в одной транзакции.
func (r *CartRepository) Deduct(ctx context.Context, snapshot []domain.CartLine) error {
	now := toUnix(r.store.now())
	return r.store.inTx(ctx, func(tx *sql.Tx) error {
		for _, taken := range snapshot {
			res, err := tx.ExecContext(ctx,
				`DELETE FROM cart_lines WHERE id = ? AND product_id = ? AND quantity <= ?`,
				taken.ID, taken.ProductID, taken.Quantity,
			)
			if err != nil {
				return persistErr("deduct cart line", err)
			}
			if affected, err := res.RowsAffected(); err != nil {
				return persistErr("deduct cart line", err)
			} else if affected > 0 {
				continue
			}
			if _, err := tx.ExecContext(ctx,
				`UPDATE cart_lines SET quantity = quantity - ?, updated_at = ? WHERE id = ? AND product_id = ? AND quantity > ?`,
				taken.Quantity, now, taken.ID, taken.ProductID, taken.Quantity,
			); err != nil {
				return persistErr("deduct cart line", err)
			}
		}
		return nil
	})
}

// Lines возвращает строки по created_at, затем по id.
func (r *CartRepository) Lines(ctx context.Context) ([]domain.CartLine, error) {
	rows, err := r.store.db.QueryContext(ctx, `SELECT `+cartColumns+` FROM cart_lines ORDER BY created_at, id`)
	if err != nil {
		return nil, persistErr("list cart lines", err)
	}
	defer func() { _ = rows.Close() }()

	lines := make([]domain.CartLine, 0)
	for rows.Next() {
		line, err := scanCartLine(rows)
		if err != nil {
			return nil, persistErr("scan cart line", err)
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("iterate cart lines", err)
	}
	return lines, nil
}

// ItemCount суммирует количество одним запросом по текущему снапшоту таблицы.
func (r *CartRepository) ItemCount(ctx context.Context) (int, error) {
	var total int
	if err := r.store.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(quantity), 0) FROM cart_lines`).Scan(&total); err != nil {
		return 0, persistErr("count cart items", err)
	}
	return total, nil
}

// Contains проверяет наличие товара.
func (r *CartRepository) Contains(ctx context.Context, productID string) (bool, error) {
	var exists bool
	err := r.store.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM cart_lines WHERE product_id = ?)`, productID).Scan(&exists)
	if err != nil {
		return false, persistErr("check cart product", err)
	}
	return exists, nil
}

func isPrimaryKeyViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCartLine(row rowScanner) (domain.CartLine, error) {
	var (
		line      domain.CartLine
		discount  sql.NullInt64
		createdAt int64
		updatedAt int64
	)
	if err := row.Scan(
		&line.ID,
		&line.ProductID,
		&line.Quantity,
		&line.UnitPriceMinor,
		&discount,
		&line.AvailableQty,
		&createdAt,
		&updatedAt,
	); err != nil {
		return domain.CartLine{}, err
	}
	if discount.Valid {
		value := discount.Int64
		line.DiscountPriceMinor = &value
	}
	line.CreatedAt = fromUnix(createdAt)
	line.UpdatedAt = fromUnix(updatedAt)
	return line, nil
}

var _ domain.CartRepository = (*CartRepository)(nil)
