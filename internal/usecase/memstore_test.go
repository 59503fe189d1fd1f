package usecase

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/marifah/voucher-engine/internal/domain"
	"github.com/marifah/voucher-engine/internal/repository"
)

// memStore is a mutex-guarded in-memory repository.Store. A single lock
// spans each ExecTx closure, giving the same all-or-nothing semantics as
// the real transactional store, which lets the tests drive genuinely
// concurrent claim and redeem calls.
type memStore struct {
	mu             sync.Mutex
	vouchers       map[int64]*domain.Voucher
	byCode         map[string]int64
	customers      map[string]*domain.Customer
	claims         map[[2]int64]*domain.Claim
	claimByID      map[int64]*domain.Claim
	nextVoucherID  int64
	nextCustomerID int64
	nextClaimID    int64
}

func newMemStore() *memStore {
	return &memStore{
		vouchers:  make(map[int64]*domain.Voucher),
		byCode:    make(map[string]int64),
		customers: make(map[string]*domain.Customer),
		claims:    make(map[[2]int64]*domain.Claim),
		claimByID: make(map[int64]*domain.Claim),
	}
}

var _ repository.Store = (*memStore)(nil)

func uniqueViolation() error {
	return &pgconn.PgError{Code: "23505", ConstraintName: "vouchers_code_key"}
}

type memTx struct {
	s              *memStore
	insertedClaims [][2]int64
	incremented    []int64
}

func (s *memStore) ExecTx(ctx context.Context, fn func(repository.Querier) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{s: s}
	if err := fn(tx); err != nil {
		for _, key := range tx.insertedClaims {
			if claim, ok := s.claims[key]; ok {
				delete(s.claimByID, claim.ID)
				delete(s.claims, key)
			}
		}
		for _, voucherID := range tx.incremented {
			s.vouchers[voucherID].CurrentUses--
		}
		return err
	}
	return nil
}

func (t *memTx) InsertClaim(ctx context.Context, voucherID, customerID int64) (domain.Claim, bool, error) {
	key := [2]int64{voucherID, customerID}
	if existing, ok := t.s.claims[key]; ok {
		return *existing, false, nil
	}

	t.s.nextClaimID++
	claim := &domain.Claim{
		ID:         t.s.nextClaimID,
		VoucherID:  voucherID,
		CustomerID: customerID,
		ClaimedAt:  time.Now(),
	}
	t.s.claims[key] = claim
	t.s.claimByID[claim.ID] = claim
	t.insertedClaims = append(t.insertedClaims, key)
	return *claim, true, nil
}

func (t *memTx) IncrementUses(ctx context.Context, voucherID int64) (int64, error) {
	v, ok := t.s.vouchers[voucherID]
	if !ok {
		return 0, nil
	}
	if v.MaxUses != nil && v.CurrentUses >= *v.MaxUses {
		return 0, nil
	}
	v.CurrentUses++
	t.incremented = append(t.incremented, voucherID)
	return 1, nil
}

func (t *memTx) GetClaim(ctx context.Context, voucherID, customerID int64) (domain.Claim, error) {
	claim, ok := t.s.claims[[2]int64{voucherID, customerID}]
	if !ok {
		return domain.Claim{}, pgx.ErrNoRows
	}
	return *claim, nil
}

func (s *memStore) GetVoucherByCode(ctx context.Context, code string) (domain.Voucher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byCode[strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		return domain.Voucher{}, pgx.ErrNoRows
	}
	return *s.vouchers[id], nil
}

func (s *memStore) GetVoucherByID(ctx context.Context, id int64) (domain.Voucher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vouchers[id]
	if !ok {
		return domain.Voucher{}, pgx.ErrNoRows
	}
	return *v, nil
}

func (s *memStore) CreateVoucher(ctx context.Context, arg repository.CreateVoucherParams) (domain.Voucher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	code := strings.ToUpper(arg.Code)
	if _, exists := s.byCode[code]; exists {
		return domain.Voucher{}, uniqueViolation()
	}

	s.nextVoucherID++
	v := &domain.Voucher{
		ID:              s.nextVoucherID,
		Code:            code,
		DiscountType:    arg.DiscountType,
		DiscountValue:   arg.DiscountValue,
		Title:           arg.Title,
		Description:     arg.Description,
		BackgroundImage: arg.BackgroundImage,
		ExpiryDate:      arg.ExpiryDate,
		MaxUses:         arg.MaxUses,
		IsActive:        arg.IsActive,
		CreatedAt:       time.Now(),
	}
	s.vouchers[v.ID] = v
	s.byCode[code] = v.ID
	return *v, nil
}

func (s *memStore) UpdateVoucher(ctx context.Context, id int64, arg repository.UpdateVoucherParams) (domain.Voucher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.vouchers[id]
	if !ok {
		return domain.Voucher{}, pgx.ErrNoRows
	}

	if arg.Code != nil {
		code := strings.ToUpper(*arg.Code)
		if existing, exists := s.byCode[code]; exists && existing != id {
			return domain.Voucher{}, uniqueViolation()
		}
		delete(s.byCode, v.Code)
		v.Code = code
		s.byCode[code] = id
	}
	if arg.DiscountType != nil {
		v.DiscountType = *arg.DiscountType
	}
	if arg.DiscountValue != nil {
		v.DiscountValue = *arg.DiscountValue
	}
	if arg.Title != nil {
		v.Title = clearable(*arg.Title)
	}
	if arg.Description != nil {
		v.Description = clearable(*arg.Description)
	}
	if arg.BackgroundImage != nil {
		v.BackgroundImage = clearable(*arg.BackgroundImage)
	}
	if arg.ExpiryDate != nil {
		if arg.ExpiryDate.IsZero() {
			v.ExpiryDate = nil
		} else {
			expiry := *arg.ExpiryDate
			v.ExpiryDate = &expiry
		}
	}
	if arg.MaxUses != nil {
		if *arg.MaxUses == 0 {
			v.MaxUses = nil
		} else {
			max := *arg.MaxUses
			v.MaxUses = &max
		}
	}
	if arg.IsActive != nil {
		v.IsActive = *arg.IsActive
	}
	return *v, nil
}

func clearable(value string) *string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return &value
}

func (s *memStore) DeleteVoucher(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.vouchers[id]
	if !ok {
		return false, nil
	}
	delete(s.byCode, v.Code)
	delete(s.vouchers, id)
	for key, claim := range s.claims {
		if claim.VoucherID == id {
			delete(s.claimByID, claim.ID)
			delete(s.claims, key)
		}
	}
	return true, nil
}

func (s *memStore) ListVouchers(ctx context.Context) ([]domain.Voucher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var vouchers []domain.Voucher
	for _, v := range s.vouchers {
		vouchers = append(vouchers, *v)
	}
	return vouchers, nil
}

func (s *memStore) ClaimCounts(ctx context.Context, voucherID int64) (repository.ClaimCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var counts repository.ClaimCounts
	for _, claim := range s.claims {
		if claim.VoucherID != voucherID {
			continue
		}
		counts.Claimed++
		if claim.UsedAt != nil {
			counts.Used++
		}
	}
	return counts, nil
}

func (s *memStore) FindOrCreateCustomer(ctx context.Context, phone string, name, email *string) (domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.customers[phone]; ok {
		if c.Name == nil && name != nil {
			c.Name = name
		}
		if c.Email == nil && email != nil {
			c.Email = email
		}
		return *c, nil
	}

	s.nextCustomerID++
	c := &domain.Customer{
		ID:        s.nextCustomerID,
		Phone:     phone,
		Name:      name,
		Email:     email,
		CreatedAt: time.Now(),
	}
	s.customers[phone] = c
	return *c, nil
}

func (s *memStore) GetCustomerByPhone(ctx context.Context, phone string) (domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.customers[phone]
	if !ok {
		return domain.Customer{}, pgx.ErrNoRows
	}
	return *c, nil
}

func (s *memStore) GetClaim(ctx context.Context, voucherID, customerID int64) (domain.Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	claim, ok := s.claims[[2]int64{voucherID, customerID}]
	if !ok {
		return domain.Claim{}, pgx.ErrNoRows
	}
	return *claim, nil
}

func (s *memStore) GetClaimByID(ctx context.Context, id int64) (domain.Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	claim, ok := s.claimByID[id]
	if !ok {
		return domain.Claim{}, pgx.ErrNoRows
	}
	return *claim, nil
}

func (s *memStore) ListClaimsByVoucher(ctx context.Context, voucherID int64) ([]repository.ClaimWithCustomer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []repository.ClaimWithCustomer
	for _, claim := range s.claims {
		if claim.VoucherID != voucherID {
			continue
		}
		row := repository.ClaimWithCustomer{Claim: *claim}
		for _, c := range s.customers {
			if c.ID == claim.CustomerID {
				row.Phone = c.Phone
				row.CustomerName = c.Name
				row.CustomerEmail = c.Email
			}
		}
		result = append(result, row)
	}
	return result, nil
}

func (s *memStore) ListClaimsByPhone(ctx context.Context, phone string) ([]repository.ClaimWithVoucher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	customer, ok := s.customers[phone]
	if !ok {
		return nil, nil
	}
	var result []repository.ClaimWithVoucher
	for _, claim := range s.claims {
		if claim.CustomerID != customer.ID {
			continue
		}
		v := s.vouchers[claim.VoucherID]
		result = append(result, repository.ClaimWithVoucher{
			Claim:           *claim,
			Code:            v.Code,
			Title:           v.Title,
			Description:     v.Description,
			DiscountType:    v.DiscountType,
			DiscountValue:   v.DiscountValue,
			ExpiryDate:      v.ExpiryDate,
			IsActive:        v.IsActive,
			BackgroundImage: v.BackgroundImage,
		})
	}
	return result, nil
}

func (s *memStore) MarkClaimUsed(ctx context.Context, claimID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	claim, ok := s.claimByID[claimID]
	if !ok || claim.UsedAt != nil {
		return 0, nil
	}
	now := time.Now()
	claim.UsedAt = &now
	return 1, nil
}
