package usecase

import "context"

// VoucherGateway is the public-facing entry point for the lifecycle
// operations. The HTTP layer talks to it so requests can be served either
// directly or through the event-driven pipeline.
type VoucherGateway interface {
	GetVoucherDisplay(ctx context.Context, code, phone string) (*VoucherDisplay, error)
	ClaimVoucher(ctx context.Context, code, phone string, name, email *string) (*ClaimResult, error)
	RedeemVoucher(ctx context.Context, code, phone, pin string) error
}
