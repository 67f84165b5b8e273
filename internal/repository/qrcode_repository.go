package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fairyhunter13/qr-saas-entitlement/internal/model"
	"github.com/fairyhunter13/qr-saas-entitlement/internal/service"
)

const qrCodeColumns = `id, account_id, title, content, type, size, foreground_color, background_color,
	batch_id, source, is_active, version, created_at, updated_at`

const insertQRCode = `INSERT INTO qr_codes (` + qrCodeColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

// QRCodeRepository provides data access for stored QR codes using pgx.
type QRCodeRepository struct {
	pool PoolInterface
}

// NewQRCodeRepository creates a new QRCodeRepository with the given pool.
func NewQRCodeRepository(pool *pgxpool.Pool) *QRCodeRepository {
	return &QRCodeRepository{pool: pool}
}

// NewQRCodeRepositoryWithPool creates a new QRCodeRepository with a custom pool interface.
// This is primarily used for testing.
func NewQRCodeRepositoryWithPool(pool PoolInterface) *QRCodeRepository {
	return &QRCodeRepository{pool: pool}
}

func qrCodeArgs(q *model.QRCode) []any {
	return []any{
		q.ID, q.AccountID, q.Title, q.Content, q.Type, q.Styling.Size, q.Styling.ForegroundColor, q.Styling.BackgroundColor,
		q.BatchID, string(q.Source), q.IsActive, q.Version, q.CreatedAt, q.UpdatedAt,
	}
}

// Create inserts a new QR code.
func (r *QRCodeRepository) Create(ctx context.Context, q *model.QRCode) error {
	if _, err := r.pool.Exec(ctx, insertQRCode, qrCodeArgs(q)...); err != nil {
		return fmt.Errorf("insert qr code: %w", err)
	}
	return nil
}

// CreateMany inserts a batch of QR codes in one transaction. Either all rows are
// stored or none are.
func (r *QRCodeRepository) CreateMany(ctx context.Context, codes []model.QRCode) (err error) {
	if len(codes) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	for i := range codes {
		if _, err = tx.Exec(ctx, insertQRCode, qrCodeArgs(&codes[i])...); err != nil {
			return fmt.Errorf("insert qr code %s: %w", codes[i].ID, err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// GetByID retrieves a QR code by id, deleted or not.
// Returns nil, nil if the code is not found (service layer handles this).
func (r *QRCodeRepository) GetByID(ctx context.Context, id string) (*model.QRCode, error) {
	code, err := scanQRCode(r.pool.QueryRow(ctx, `SELECT `+qrCodeColumns+` FROM qr_codes WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get qr code by id: %w", err)
	}
	return code, nil
}

// Save writes the code's editable fields when the stored version still matches.
// Returns service.ErrConflict if another writer got there first.
func (r *QRCodeRepository) Save(ctx context.Context, q *model.QRCode) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE qr_codes SET
			title = $3, content = $4, size = $5, foreground_color = $6, background_color = $7,
			is_active = $8, updated_at = $9, version = version + 1
		WHERE id = $1 AND version = $2`,
		q.ID, q.Version, q.Title, q.Content, q.Styling.Size, q.Styling.ForegroundColor, q.Styling.BackgroundColor,
		q.IsActive, q.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update qr code %s: %w", q.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return service.ErrConflict
	}
	q.Version++
	return nil
}

const qrCodeListWhere = ` WHERE account_id = $1 AND is_active
	AND ($2 = '' OR title ILIKE $2 OR content ILIKE $2) AND ($3 = '' OR type = $3) AND ($4 = '' OR batch_id = $4)`

// List returns an account's active codes newest first and the total matching count.
func (r *QRCodeRepository) List(ctx context.Context, filter model.QRCodeFilter) ([]model.QRCode, int64, error) {
	search := ""
	if filter.Search != "" {
		search = "%" + escapeLike(filter.Search) + "%"
	}

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM qr_codes`+qrCodeListWhere,
		filter.AccountID, search, filter.Type, filter.BatchID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count qr codes: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+qrCodeColumns+` FROM qr_codes`+qrCodeListWhere+`
		ORDER BY created_at DESC LIMIT $5 OFFSET $6`,
		filter.AccountID, search, filter.Type, filter.BatchID, filter.Limit, filter.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list qr codes: %w", err)
	}
	defer rows.Close()

	codes := []model.QRCode{}
	for rows.Next() {
		code, err := scanQRCode(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan qr code: %w", err)
		}
		codes = append(codes, *code)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate qr code rows: %w", err)
	}
	return codes, total, nil
}

// Stats counts an account's active codes per type.
func (r *QRCodeRepository) Stats(ctx context.Context, accountID string) (model.QRCodeStats, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT type, COUNT(*) FROM qr_codes WHERE account_id = $1 AND is_active
		GROUP BY type ORDER BY COUNT(*) DESC, type`, accountID)
	if err != nil {
		return model.QRCodeStats{}, fmt.Errorf("qr code stats: %w", err)
	}
	defer rows.Close()

	stats := model.QRCodeStats{ByType: []model.QRTypeCount{}}
	for rows.Next() {
		var c model.QRTypeCount
		if err := rows.Scan(&c.Type, &c.Count); err != nil {
			return model.QRCodeStats{}, fmt.Errorf("scan qr code stats: %w", err)
		}
		stats.Total += c.Count
		stats.ByType = append(stats.ByType, c)
	}
	if err := rows.Err(); err != nil {
		return model.QRCodeStats{}, fmt.Errorf("iterate qr code stats: %w", err)
	}
	return stats, nil
}

func scanQRCode(row pgx.Row) (*model.QRCode, error) {
	var (
		q      model.QRCode
		source string
	)
	err := row.Scan(
		&q.ID, &q.AccountID, &q.Title, &q.Content, &q.Type, &q.Styling.Size, &q.Styling.ForegroundColor, &q.Styling.BackgroundColor,
		&q.BatchID, &source, &q.IsActive, &q.Version, &q.CreatedAt, &q.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	q.Source = model.QRSource(source)
	return &q, nil
}
