package usecase

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/marifah/voucher-engine/internal/domain"
	"github.com/marifah/voucher-engine/internal/phone"
	"github.com/marifah/voucher-engine/internal/repository"
)

// VoucherService orchestrates the claim/redeem lifecycle. All cross-entity
// invariants (claim uniqueness, cap enforcement, exactly-once redemption)
// are enforced here through the store's transactional primitives.
type VoucherService struct {
	store repository.Store
	pin   string
	now   func() time.Time
}

func NewVoucherService(store repository.Store, redemptionPIN string) *VoucherService {
	return &VoucherService{
		store: store,
		pin:   redemptionPIN,
		now:   time.Now,
	}
}

// VoucherDisplay is what the public voucher page renders: the voucher terms
// plus the requesting customer's claim, if any.
type VoucherDisplay struct {
	Voucher domain.Voucher
	Claim   *domain.Claim
}

type ClaimResult struct {
	Claim    domain.Claim
	Customer domain.Customer
}

type ValidationResult struct {
	Valid         bool
	Code          string
	DiscountType  string
	DiscountValue float64
	Reason        error
}

type VoucherWithCounts struct {
	domain.Voucher
	ClaimsCount int64
	UsedCount   int64
}

func (s *VoucherService) getVoucher(ctx context.Context, code string) (domain.Voucher, error) {
	voucher, err := s.store.GetVoucherByCode(ctx, strings.TrimSpace(code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Voucher{}, domain.ErrVoucherNotFound
		}
		return domain.Voucher{}, err
	}
	return voucher, nil
}

// Validate answers the legacy validation endpoint: is the code claimable in
// principle, and on what terms. Precondition failures are reported in the
// result, not as errors.
func (s *VoucherService) Validate(ctx context.Context, code string) (ValidationResult, error) {
	voucher, err := s.getVoucher(ctx, code)
	if err != nil {
		if errors.Is(err, domain.ErrVoucherNotFound) {
			return ValidationResult{Reason: err}, nil
		}
		return ValidationResult{}, err
	}
	if err := voucher.Usable(s.now()); err != nil {
		return ValidationResult{Reason: err}, nil
	}
	return ValidationResult{
		Valid:         true,
		Code:          voucher.Code,
		DiscountType:  voucher.DiscountType,
		DiscountValue: voucher.DiscountValue,
	}, nil
}

// GetVoucherDisplay loads the voucher for the public page. A customer who
// already holds a claim sees the voucher regardless of its current
// usability; everyone else is gated the same way as claim.
func (s *VoucherService) GetVoucherDisplay(ctx context.Context, code, rawPhone string) (*VoucherDisplay, error) {
	voucher, err := s.getVoucher(ctx, code)
	if err != nil {
		return nil, err
	}

	var claim *domain.Claim
	if rawPhone != "" {
		// An unparseable phone just means no claim to report.
		if normalized, err := phone.Normalize(rawPhone); err == nil {
			claim, err = s.findClaim(ctx, voucher.ID, normalized)
			if err != nil {
				return nil, err
			}
		}
	}

	if claim == nil {
		if err := voucher.Usable(s.now()); err != nil {
			return nil, err
		}
	}
	return &VoucherDisplay{Voucher: voucher, Claim: claim}, nil
}

func (s *VoucherService) findClaim(ctx context.Context, voucherID int64, normalizedPhone string) (*domain.Claim, error) {
	customer, err := s.store.GetCustomerByPhone(ctx, normalizedPhone)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	claim, err := s.store.GetClaim(ctx, voucherID, customer.ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &claim, nil
}

// ClaimVoucher gives the customer their personal instance of the voucher.
// Repeat claims by the same customer return the existing claim unchanged.
// The claim insert, the cap re-check and the counter increment commit as
// one transaction, so current_uses can neither exceed max_uses nor drift
// from the ledger.
func (s *VoucherService) ClaimVoucher(ctx context.Context, code, rawPhone string, name, email *string) (*ClaimResult, error) {
	voucher, err := s.getVoucher(ctx, code)
	if err != nil {
		return nil, err
	}
	if err := voucher.Usable(s.now()); err != nil {
		return nil, err
	}

	normalized, err := phone.Normalize(rawPhone)
	if err != nil {
		return nil, err
	}

	customer, err := s.store.FindOrCreateCustomer(ctx, normalized, trimmed(name), trimmed(email))
	if err != nil {
		return nil, err
	}

	if existing, err := s.store.GetClaim(ctx, voucher.ID, customer.ID); err == nil {
		return &ClaimResult{Claim: existing, Customer: customer}, nil
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	var claim domain.Claim
	err = s.store.ExecTx(ctx, func(q repository.Querier) error {
		inserted := false
		claim, inserted, err = q.InsertClaim(ctx, voucher.ID, customer.ID)
		if err != nil {
			return err
		}
		if !inserted {
			// A concurrent request from the same customer won the race;
			// fold back to its claim and leave the counter alone.
			claim, err = q.GetClaim(ctx, voucher.ID, customer.ID)
			return err
		}

		rows, err := q.IncrementUses(ctx, voucher.ID)
		if err != nil {
			return err
		}
		if rows == 0 {
			return domain.ErrCapReached
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &ClaimResult{Claim: claim, Customer: customer}, nil
}

// RedeemVoucher marks the customer's claim as used, exactly once, guarded
// by the staff PIN. Usability is deliberately not re-checked: an earned
// claim stays redeemable after deactivation or expiry.
func (s *VoucherService) RedeemVoucher(ctx context.Context, code, rawPhone, pin string) error {
	if !validPinShape(pin) {
		return domain.ErrInvalidPin
	}
	if subtle.ConstantTimeCompare([]byte(pin), []byte(s.pin)) != 1 {
		return domain.ErrBadPin
	}

	voucher, err := s.getVoucher(ctx, code)
	if err != nil {
		return err
	}

	normalized, err := phone.Normalize(rawPhone)
	if err != nil {
		return err
	}

	customer, err := s.store.GetCustomerByPhone(ctx, normalized)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrClaimNotFound
		}
		return err
	}

	claim, err := s.store.GetClaim(ctx, voucher.ID, customer.ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrClaimNotFound
		}
		return err
	}

	rows, err := s.store.MarkClaimUsed(ctx, claim.ID)
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrAlreadyUsed
	}
	return nil
}

// ClaimState reports the display state for a (code, phone) pair.
func (s *VoucherService) ClaimState(ctx context.Context, code, rawPhone string) (domain.ClaimState, error) {
	voucher, err := s.getVoucher(ctx, code)
	if err != nil {
		return "", err
	}
	normalized, err := phone.Normalize(rawPhone)
	if err != nil {
		return "", err
	}
	claim, err := s.findClaim(ctx, voucher.ID, normalized)
	if err != nil {
		return "", err
	}
	if claim == nil {
		return domain.ClaimStateUnclaimed, nil
	}
	return claim.State(), nil
}

// MyClaims lists every claim held by the phone's customer, joined with
// voucher display data.
func (s *VoucherService) MyClaims(ctx context.Context, rawPhone string) ([]repository.ClaimWithVoucher, error) {
	normalized, err := phone.Normalize(rawPhone)
	if err != nil {
		return nil, err
	}
	return s.store.ListClaimsByPhone(ctx, normalized)
}

// --- administrative surface ---

func (s *VoucherService) CreateVoucher(ctx context.Context, arg repository.CreateVoucherParams) (domain.Voucher, error) {
	if arg.DiscountType != domain.DiscountPercent && arg.DiscountType != domain.DiscountFixed {
		return domain.Voucher{}, domain.ErrInvalidDiscount
	}
	voucher, err := s.store.CreateVoucher(ctx, arg)
	if err != nil {
		if repository.IsUniqueViolation(err) {
			return domain.Voucher{}, domain.ErrDuplicateCode
		}
		return domain.Voucher{}, err
	}
	return voucher, nil
}

func (s *VoucherService) UpdateVoucher(ctx context.Context, id int64, arg repository.UpdateVoucherParams) (domain.Voucher, error) {
	if arg.DiscountType != nil &&
		*arg.DiscountType != domain.DiscountPercent && *arg.DiscountType != domain.DiscountFixed {
		return domain.Voucher{}, domain.ErrInvalidDiscount
	}
	voucher, err := s.store.UpdateVoucher(ctx, id, arg)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Voucher{}, domain.ErrVoucherNotFound
		}
		if repository.IsUniqueViolation(err) {
			return domain.Voucher{}, domain.ErrDuplicateCode
		}
		return domain.Voucher{}, err
	}
	return voucher, nil
}

func (s *VoucherService) DeleteVoucher(ctx context.Context, id int64) error {
	deleted, err := s.store.DeleteVoucher(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return domain.ErrVoucherNotFound
	}
	return nil
}

func (s *VoucherService) ListVouchers(ctx context.Context) ([]VoucherWithCounts, error) {
	vouchers, err := s.store.ListVouchers(ctx)
	if err != nil {
		return nil, err
	}
	result := make([]VoucherWithCounts, 0, len(vouchers))
	for _, v := range vouchers {
		counts, err := s.store.ClaimCounts(ctx, v.ID)
		if err != nil {
			return nil, err
		}
		result = append(result, VoucherWithCounts{
			Voucher:     v,
			ClaimsCount: counts.Claimed,
			UsedCount:   counts.Used,
		})
	}
	return result, nil
}

func (s *VoucherService) VoucherClaims(ctx context.Context, voucherID int64) (domain.Voucher, []repository.ClaimWithCustomer, error) {
	voucher, err := s.store.GetVoucherByID(ctx, voucherID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Voucher{}, nil, domain.ErrVoucherNotFound
		}
		return domain.Voucher{}, nil, err
	}
	claims, err := s.store.ListClaimsByVoucher(ctx, voucherID)
	if err != nil {
		return domain.Voucher{}, nil, err
	}
	return voucher, claims, nil
}

// MarkClaimUsed is the PIN-less admin path to the same conditional update
// redeem uses, so exactly-once holds across both.
func (s *VoucherService) MarkClaimUsed(ctx context.Context, claimID int64) error {
	if _, err := s.store.GetClaimByID(ctx, claimID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrClaimNotFound
		}
		return err
	}
	rows, err := s.store.MarkClaimUsed(ctx, claimID)
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrAlreadyUsed
	}
	return nil
}

func validPinShape(pin string) bool {
	if len(pin) != 4 {
		return false
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func trimmed(value *string) *string {
	if value == nil {
		return nil
	}
	t := strings.TrimSpace(*value)
	if t == "" {
		return nil
	}
	return &t
}
