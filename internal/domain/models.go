package domain

import (
	"errors"
	"time"
)

var (
	ErrVoucherNotFound  = errors.New("voucher not found")
	ErrClaimNotFound    = errors.New("claim not found")
	ErrVoucherInactive  = errors.New("voucher is not active")
	ErrVoucherExpired   = errors.New("voucher has expired")
	ErrCapReached       = errors.New("voucher usage cap reached")
	ErrAlreadyUsed      = errors.New("claim already used")
	ErrBadPin           = errors.New("wrong redemption pin")
	ErrInvalidPin       = errors.New("pin must be 4 digits")
	ErrInvalidPhone     = errors.New("invalid phone number")
	ErrDuplicateCode    = errors.New("voucher code already exists")
	ErrInvalidDiscount  = errors.New("discount type must be percent or fixed")
)

const (
	DiscountPercent = "percent"
	DiscountFixed   = "fixed"
)

// ClaimState is the public display state of a (voucher, customer) pair.
type ClaimState string

const (
	ClaimStateUnclaimed ClaimState = "unclaimed"
	ClaimStateActive    ClaimState = "active"
	ClaimStateUsed      ClaimState = "used"
)

type Voucher struct {
	ID              int64
	Code            string
	DiscountType    string
	DiscountValue   float64
	Title           *string
	Description     *string
	BackgroundImage *string
	ExpiryDate      *time.Time
	MaxUses         *int32
	CurrentUses     int32
	IsActive        bool
	CreatedAt       time.Time
}

// Usable reports whether the voucher can still be claimed at the given
// instant. It gates claim only; an earned claim stays redeemable even if
// the voucher is later deactivated or expires.
func (v Voucher) Usable(now time.Time) error {
	if !v.IsActive {
		return ErrVoucherInactive
	}
	if v.ExpiryDate != nil && v.ExpiryDate.Before(now) {
		return ErrVoucherExpired
	}
	if v.MaxUses != nil && v.CurrentUses >= *v.MaxUses {
		return ErrCapReached
	}
	return nil
}

type Customer struct {
	ID        int64
	Phone     string
	Name      *string
	Email     *string
	CreatedAt time.Time
}

type Claim struct {
	ID         int64
	VoucherID  int64
	CustomerID int64
	ClaimedAt  time.Time
	UsedAt     *time.Time
}

// State derives the display state from the claim's redemption timestamp.
func (c Claim) State() ClaimState {
	if c.UsedAt != nil {
		return ClaimStateUsed
	}
	return ClaimStateActive
}
