package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/marifah/voucher-engine/internal/domain"
)

// Store is the persistence surface of the voucher engine. All mutations to
// the claim ledger and the voucher usage counter go through ExecTx.
type Store interface {
	ExecTx(ctx context.Context, fn func(Querier) error) error

	GetVoucherByCode(ctx context.Context, code string) (domain.Voucher, error)
	GetVoucherByID(ctx context.Context, id int64) (domain.Voucher, error)
	CreateVoucher(ctx context.Context, arg CreateVoucherParams) (domain.Voucher, error)
	UpdateVoucher(ctx context.Context, id int64, arg UpdateVoucherParams) (domain.Voucher, error)
	DeleteVoucher(ctx context.Context, id int64) (bool, error)
	ListVouchers(ctx context.Context) ([]domain.Voucher, error)
	ClaimCounts(ctx context.Context, voucherID int64) (ClaimCounts, error)

	FindOrCreateCustomer(ctx context.Context, phone string, name, email *string) (domain.Customer, error)
	GetCustomerByPhone(ctx context.Context, phone string) (domain.Customer, error)

	GetClaim(ctx context.Context, voucherID, customerID int64) (domain.Claim, error)
	GetClaimByID(ctx context.Context, id int64) (domain.Claim, error)
	ListClaimsByVoucher(ctx context.Context, voucherID int64) ([]ClaimWithCustomer, error)
	ListClaimsByPhone(ctx context.Context, phone string) ([]ClaimWithVoucher, error)
	MarkClaimUsed(ctx context.Context, claimID int64) (int64, error)
}

// Querier is the subset of operations available inside a claim transaction.
type Querier interface {
	InsertClaim(ctx context.Context, voucherID, customerID int64) (domain.Claim, bool, error)
	IncrementUses(ctx context.Context, voucherID int64) (int64, error)
	GetClaim(ctx context.Context, voucherID, customerID int64) (domain.Claim, error)
}

type CreateVoucherParams struct {
	Code            string
	DiscountType    string
	DiscountValue   float64
	Title           *string
	Description     *string
	BackgroundImage *string
	ExpiryDate      *time.Time
	MaxUses         *int32
	IsActive        bool
}

// UpdateVoucherParams applies a partial update. Nil fields are left
// untouched; a non-nil empty string, zero time, or zero MaxUses clears the
// column to NULL.
type UpdateVoucherParams struct {
	Code            *string
	DiscountType    *string
	DiscountValue   *float64
	Title           *string
	Description     *string
	BackgroundImage *string
	ExpiryDate      *time.Time
	MaxUses         *int32
	IsActive        *bool
}

type ClaimCounts struct {
	Claimed int64
	Used    int64
}

type ClaimWithCustomer struct {
	domain.Claim
	Phone         string
	CustomerName  *string
	CustomerEmail *string
}

type ClaimWithVoucher struct {
	domain.Claim
	Code            string
	Title           *string
	Description     *string
	DiscountType    string
	DiscountValue   float64
	ExpiryDate      *time.Time
	IsActive        bool
	BackgroundImage *string
}

// IsUniqueViolation reports whether err is a Postgres unique-constraint
// violation (SQLSTATE 23505).
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) Store {
	return &store{pool: pool}
}

func (s *store) ExecTx(ctx context.Context, fn func(Querier) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(txQuerier{tx: tx}); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("tx err: %v, rollback err: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type txQuerier struct {
	tx pgx.Tx
}

func (q txQuerier) InsertClaim(ctx context.Context, voucherID, customerID int64) (domain.Claim, bool, error) {
	return insertClaim(ctx, q.tx, voucherID, customerID)
}

func (q txQuerier) IncrementUses(ctx context.Context, voucherID int64) (int64, error) {
	return incrementUses(ctx, q.tx, voucherID)
}

func (q txQuerier) GetClaim(ctx context.Context, voucherID, customerID int64) (domain.Claim, error) {
	return getClaim(ctx, q.tx, voucherID, customerID)
}

const voucherCols = `id, code, discount_type, discount_value, title, description,
background_image, expiry_date, max_uses, current_uses, is_active, created_at`

func scanVoucher(row pgx.Row) (domain.Voucher, error) {
	var v domain.Voucher
	err := row.Scan(
		&v.ID, &v.Code, &v.DiscountType, &v.DiscountValue, &v.Title,
		&v.Description, &v.BackgroundImage, &v.ExpiryDate, &v.MaxUses,
		&v.CurrentUses, &v.IsActive, &v.CreatedAt,
	)
	return v, err
}

func (s *store) GetVoucherByCode(ctx context.Context, code string) (domain.Voucher, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+voucherCols+` FROM vouchers WHERE code = upper($1)`, code)
	return scanVoucher(row)
}

func (s *store) GetVoucherByID(ctx context.Context, id int64) (domain.Voucher, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+voucherCols+` FROM vouchers WHERE id = $1`, id)
	return scanVoucher(row)
}

func (s *store) CreateVoucher(ctx context.Context, arg CreateVoucherParams) (domain.Voucher, error) {
	row := s.pool.QueryRow(ctx, `INSERT INTO vouchers
(code, discount_type, discount_value, title, description, background_image, expiry_date, max_uses, is_active)
VALUES (upper($1), $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING `+voucherCols,
		arg.Code, arg.DiscountType, arg.DiscountValue, arg.Title,
		arg.Description, arg.BackgroundImage, arg.ExpiryDate, arg.MaxUses,
		arg.IsActive)
	return scanVoucher(row)
}

func (s *store) UpdateVoucher(ctx context.Context, id int64, arg UpdateVoucherParams) (domain.Voucher, error) {
	var sets []string
	var args []any
	add := func(col string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if arg.Code != nil {
		add("code", strings.ToUpper(*arg.Code))
	}
	if arg.DiscountType != nil {
		add("discount_type", *arg.DiscountType)
	}
	if arg.DiscountValue != nil {
		add("discount_value", *arg.DiscountValue)
	}
	if arg.Title != nil {
		add("title", textOrNull(*arg.Title))
	}
	if arg.Description != nil {
		add("description", textOrNull(*arg.Description))
	}
	if arg.BackgroundImage != nil {
		add("background_image", textOrNull(*arg.BackgroundImage))
	}
	if arg.ExpiryDate != nil {
		if arg.ExpiryDate.IsZero() {
			add("expiry_date", nil)
		} else {
			add("expiry_date", *arg.ExpiryDate)
		}
	}
	if arg.MaxUses != nil {
		if *arg.MaxUses == 0 {
			add("max_uses", nil)
		} else {
			add("max_uses", *arg.MaxUses)
		}
	}
	if arg.IsActive != nil {
		add("is_active", *arg.IsActive)
	}

	if len(sets) == 0 {
		return s.GetVoucherByID(ctx, id)
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE vouchers SET %s WHERE id = $%d RETURNING %s",
		strings.Join(sets, ", "), len(args), voucherCols)
	return scanVoucher(s.pool.QueryRow(ctx, query, args...))
}

func textOrNull(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func (s *store) DeleteVoucher(ctx context.Context, id int64) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM vouchers WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *store) ListVouchers(ctx context.Context) ([]domain.Voucher, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+voucherCols+` FROM vouchers ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var vouchers []domain.Voucher
	for rows.Next() {
		v, err := scanVoucher(rows)
		if err != nil {
			return nil, err
		}
		vouchers = append(vouchers, v)
	}
	return vouchers, rows.Err()
}

func (s *store) ClaimCounts(ctx context.Context, voucherID int64) (ClaimCounts, error) {
	var counts ClaimCounts
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*),
COUNT(*) FILTER (WHERE used_at IS NOT NULL)
FROM voucher_claims WHERE voucher_id = $1`, voucherID).
		Scan(&counts.Claimed, &counts.Used)
	return counts, err
}

// FindOrCreateCustomer upserts by phone. Name and email only backfill
// columns that are still NULL; existing values are never overwritten.
func (s *store) FindOrCreateCustomer(ctx context.Context, phone string, name, email *string) (domain.Customer, error) {
	var c domain.Customer
	err := s.pool.QueryRow(ctx, `INSERT INTO customers (phone, name, email)
VALUES ($1, $2, $3)
ON CONFLICT (phone) DO UPDATE SET
    name  = COALESCE(customers.name, EXCLUDED.name),
    email = COALESCE(customers.email, EXCLUDED.email)
RETURNING id, phone, name, email, created_at`, phone, name, email).
		Scan(&c.ID, &c.Phone, &c.Name, &c.Email, &c.CreatedAt)
	return c, err
}

func (s *store) GetCustomerByPhone(ctx context.Context, phone string) (domain.Customer, error) {
	var c domain.Customer
	err := s.pool.QueryRow(ctx,
		`SELECT id, phone, name, email, created_at FROM customers WHERE phone = $1`, phone).
		Scan(&c.ID, &c.Phone, &c.Name, &c.Email, &c.CreatedAt)
	return c, err
}

const claimCols = `id, voucher_id, customer_id, claimed_at, used_at`

func scanClaim(row pgx.Row) (domain.Claim, error) {
	var c domain.Claim
	err := row.Scan(&c.ID, &c.VoucherID, &c.CustomerID, &c.ClaimedAt, &c.UsedAt)
	return c, err
}

func getClaim(ctx context.Context, db dbtx, voucherID, customerID int64) (domain.Claim, error) {
	row := db.QueryRow(ctx, `SELECT `+claimCols+` FROM voucher_claims
WHERE voucher_id = $1 AND customer_id = $2`, voucherID, customerID)
	return scanClaim(row)
}

// insertClaim reports inserted=false when the (voucher, customer) pair
// already exists; the caller folds back to the existing claim.
func insertClaim(ctx context.Context, db dbtx, voucherID, customerID int64) (domain.Claim, bool, error) {
	row := db.QueryRow(ctx, `INSERT INTO voucher_claims (voucher_id, customer_id)
VALUES ($1, $2)
ON CONFLICT (voucher_id, customer_id) DO NOTHING
RETURNING `+claimCols, voucherID, customerID)
	claim, err := scanClaim(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Claim{}, false, nil
	}
	if err != nil {
		return domain.Claim{}, false, err
	}
	return claim, true, nil
}

// incrementUses bumps current_uses only while the cap allows it; zero rows
// affected means the cap was reached by a concurrent claimant.
func incrementUses(ctx context.Context, db dbtx, voucherID int64) (int64, error) {
	tag, err := db.Exec(ctx, `UPDATE vouchers SET current_uses = current_uses + 1
WHERE id = $1 AND (max_uses IS NULL OR current_uses < max_uses)`, voucherID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *store) GetClaim(ctx context.Context, voucherID, customerID int64) (domain.Claim, error) {
	return getClaim(ctx, s.pool, voucherID, customerID)
}

func (s *store) GetClaimByID(ctx context.Context, id int64) (domain.Claim, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+claimCols+` FROM voucher_claims WHERE id = $1`, id)
	return scanClaim(row)
}

func (s *store) ListClaimsByVoucher(ctx context.Context, voucherID int64) ([]ClaimWithCustomer, error) {
	rows, err := s.pool.Query(ctx, `SELECT vc.id, vc.voucher_id, vc.customer_id,
vc.claimed_at, vc.used_at, c.phone, c.name, c.email
FROM voucher_claims vc
JOIN customers c ON c.id = vc.customer_id
WHERE vc.voucher_id = $1
ORDER BY vc.claimed_at DESC`, voucherID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var claims []ClaimWithCustomer
	for rows.Next() {
		var c ClaimWithCustomer
		if err := rows.Scan(&c.ID, &c.VoucherID, &c.CustomerID, &c.ClaimedAt,
			&c.UsedAt, &c.Phone, &c.CustomerName, &c.CustomerEmail); err != nil {
			return nil, err
		}
		claims = append(claims, c)
	}
	return claims, rows.Err()
}

func (s *store) ListClaimsByPhone(ctx context.Context, phone string) ([]ClaimWithVoucher, error) {
	rows, err := s.pool.Query(ctx, `SELECT vc.id, vc.voucher_id, vc.customer_id,
vc.claimed_at, vc.used_at, v.code, v.title, v.description, v.discount_type,
v.discount_value, v.expiry_date, v.is_active, v.background_image
FROM voucher_claims vc
JOIN vouchers v ON v.id = vc.voucher_id
JOIN customers c ON c.id = vc.customer_id
WHERE c.phone = $1
ORDER BY vc.claimed_at DESC`, phone)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var claims []ClaimWithVoucher
	for rows.Next() {
		var c ClaimWithVoucher
		if err := rows.Scan(&c.ID, &c.VoucherID, &c.CustomerID, &c.ClaimedAt,
			&c.UsedAt, &c.Code, &c.Title, &c.Description, &c.DiscountType,
			&c.DiscountValue, &c.ExpiryDate, &c.IsActive, &c.BackgroundImage); err != nil {
			return nil, err
		}
		claims = append(claims, c)
	}
	return claims, rows.Err()
}

// MarkClaimUsed sets used_at only while it is still NULL. Zero rows
// affected means the claim was already redeemed.
func (s *store) MarkClaimUsed(ctx context.Context, claimID int64) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE voucher_claims SET used_at = now() WHERE id = $1 AND used_at IS NULL`, claimID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
