package kafka

import (
	"context"

	"github.com/marifah/voucher-engine/internal/usecase"
)

// DirectGateway serves lifecycle operations in-process, bypassing the
// event pipeline. Used when EVENT_DRIVEN_ENABLED is off and in tests.
type DirectGateway struct {
	service *usecase.VoucherService
}

func NewDirectGateway(service *usecase.VoucherService) usecase.VoucherGateway {
	return &DirectGateway{service: service}
}

func (g *DirectGateway) GetVoucherDisplay(ctx context.Context, code, phone string) (*usecase.VoucherDisplay, error) {
	return g.service.GetVoucherDisplay(ctx, code, phone)
}

func (g *DirectGateway) ClaimVoucher(ctx context.Context, code, phone string, name, email *string) (*usecase.ClaimResult, error) {
	return g.service.ClaimVoucher(ctx, code, phone, name, email)
}

func (g *DirectGateway) RedeemVoucher(ctx context.Context, code, phone, pin string) error {
	return g.service.RedeemVoucher(ctx, code, phone, pin)
}
