package db

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/RodolfoDevApp/eventshop-stockledger-go/internal/domain"
	"github.com/RodolfoDevApp/eventshop-stockledger-go/internal/metrics"
)

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const stockColumns = `
        product_id, quantity_on_hand, quantity_reserved,
        min_stock_level, reorder_point, reorder_quantity,
        last_restock_at, created_at_utc, updated_at_utc`

// PgStockLedger keeps every check and mutation in a single conditional
// statement so the row lock is held only for that statement.
type PgStockLedger struct {
	db      dbtx
	metrics *metrics.Metrics
}

func NewPgStockLedger(db *sql.DB) *PgStockLedger {
	return &PgStockLedger{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanStockItem(row scanner) (*domain.StockItem, error) {
	var item domain.StockItem
	var restock sql.NullTime
	if err := row.Scan(
		&item.ProductID,
		&item.OnHand,
		&item.Reserved,
		&item.MinStockLevel,
		&item.ReorderPoint,
		&item.ReorderQuantity,
		&restock,
		&item.CreatedAtUtc,
		&item.UpdatedAtUtc,
	); err != nil {
		return nil, err
	}
	if restock.Valid {
		t := restock.Time.UTC()
		item.LastRestockAt = &t
	}
	return &item, nil
}

func (l *PgStockLedger) Get(ctx context.Context, productID string) (*domain.StockItem, error) {
	q := `select ` + stockColumns + `
        from inventory_stock_items
        where product_id = $1`
	item, err := scanStockItem(l.db.QueryRowContext(ctx, q, productID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(err, "get stock item")
	}
	return item, nil
}

func (l *PgStockLedger) GetAvailable(ctx context.Context, productID string) (int, bool, error) {
	q := `
        select quantity_on_hand - quantity_reserved
        from inventory_stock_items
        where product_id = $1
    `
	var available int
	err := l.db.QueryRowContext(ctx, q, productID).Scan(&available)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, classify(err, "get available")
	}
	return available, true, nil
}

func (l *PgStockLedger) TryReserve(ctx context.Context, productID string, qty int) (bool, error) {
	q := `
        update inventory_stock_items
        set quantity_reserved = quantity_reserved + $2,
            updated_at_utc = now()
        where product_id = $1
          and quantity_on_hand - quantity_reserved >= $2
    `
	res, err := l.db.ExecContext(ctx, q, productID, qty)
	if err != nil {
		return false, classify(err, "try reserve")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, classify(err, "try reserve")
	}
	return n == 1, nil
}

func (l *PgStockLedger) ReleaseHold(ctx context.Context, productID string, qty int) error {
	q := `
        with prev as (
            select product_id, quantity_reserved
            from inventory_stock_items
            where product_id = $1
            for update
        )
        update inventory_stock_items s
        set quantity_reserved = greatest(s.quantity_reserved - $2, 0),
            updated_at_utc = now()
        from prev
        where s.product_id = prev.product_id
        returning prev.quantity_reserved
    `
	var before int
	err := l.db.QueryRowContext(ctx, q, productID, qty).Scan(&before)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.UnknownProduct(productID)
	}
	if err != nil {
		return classify(err, "release hold")
	}
	if before < qty {
		log.Warn().Str("productId", productID).Int("reserved", before).Int("release", qty).
			Msg("ledger anomaly: release larger than reserved, floored at zero")
		l.metrics.ObserveAnomaly("release_floor")
	}
	return nil
}

func (l *PgStockLedger) Consume(ctx context.Context, productID string, qty int) error {
	q := `
        update inventory_stock_items
        set quantity_on_hand = quantity_on_hand - $2,
            quantity_reserved = quantity_reserved - $2,
            updated_at_utc = now()
        where product_id = $1
          and quantity_reserved >= $2
    `
	res, err := l.db.ExecContext(ctx, q, productID, qty)
	if err != nil {
		return classify(err, "consume")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return classify(err, "consume")
	}
	if n == 1 {
		return nil
	}
	item, err := l.Get(ctx, productID)
	if err != nil {
		return err
	}
	if item == nil {
		return domain.UnknownProduct(productID)
	}
	return errors.Wrapf(domain.ErrLedgerInconsistent, "consume %d of %s with %d reserved", qty, productID, item.Reserved)
}

func (l *PgStockLedger) Create(ctx context.Context, item *domain.StockItem) (bool, error) {
	if !item.Valid() {
		return false, errors.Wrapf(domain.ErrLedgerInconsistent, "create product %s", item.ProductID)
	}
	q := `
        insert into inventory_stock_items
        (product_id, quantity_on_hand, quantity_reserved, min_stock_level, reorder_point,
         reorder_quantity, last_restock_at, created_at_utc, updated_at_utc)
        values ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        on conflict (product_id) do nothing
    `
	res, err := l.db.ExecContext(
		ctx, q,
		item.ProductID,
		item.OnHand,
		item.Reserved,
		item.MinStockLevel,
		item.ReorderPoint,
		item.ReorderQuantity,
		item.LastRestockAt,
		item.CreatedAtUtc,
		item.UpdatedAtUtc,
	)
	if err != nil {
		return false, classify(err, "create stock item")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, classify(err, "create stock item")
	}
	return n == 1, nil
}

func (l *PgStockLedger) AdjustOnHand(ctx context.Context, productID string, delta int) (*domain.StockItem, error) {
	q := `
        update inventory_stock_items
        set quantity_on_hand = quantity_on_hand + $2,
            last_restock_at = case when $2 > 0 then now() else last_restock_at end,
            updated_at_utc = now()
        where product_id = $1
          and quantity_on_hand + $2 >= quantity_reserved
        returning ` + stockColumns
	item, err := scanStockItem(l.db.QueryRowContext(ctx, q, productID, delta))
	if err == nil {
		return item, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, classify(err, "adjust on hand")
	}
	current, err := l.Get(ctx, productID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, domain.UnknownProduct(productID)
	}
	return nil, &domain.InsufficientStockError{
		ProductID: productID,
		Requested: -delta,
		Available: current.Available(),
	}
}

func (l *PgStockLedger) ListReplenishmentCandidates(ctx context.Context) ([]domain.StockItem, error) {
	q := `select ` + stockColumns + `
        from inventory_stock_items
        where quantity_on_hand - quantity_reserved <= greatest(min_stock_level, reorder_point, 0)
        order by product_id`
	rows, err := l.db.QueryContext(ctx, q)
	if err != nil {
		return nil, classify(err, "list replenishment candidates")
	}
	defer rows.Close()

	var out []domain.StockItem
	for rows.Next() {
		item, err := scanStockItem(rows)
		if err != nil {
			return nil, classify(err, "list replenishment candidates")
		}
		out = append(out, *item)
	}
	return out, classify(rows.Err(), "list replenishment candidates")
}

func (l *PgStockLedger) List(ctx context.Context, limit, offset int) ([]domain.StockItem, error) {
	q := `select ` + stockColumns + `
        from inventory_stock_items
        order by product_id
        limit $1 offset $2`
	rows, err := l.db.QueryContext(ctx, q, limit, offset)
	if err != nil {
		return nil, classify(err, "list stock items")
	}
	defer rows.Close()

	var out []domain.StockItem
	for rows.Next() {
		item, err := scanStockItem(rows)
		if err != nil {
			return nil, classify(err, "list stock items")
		}
		out = append(out, *item)
	}
	return out, classify(rows.Err(), "list stock items")
}
