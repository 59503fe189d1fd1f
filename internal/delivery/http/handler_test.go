package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/marifah/voucher-engine/internal/domain"
	"github.com/marifah/voucher-engine/internal/usecase"
)

type stubGateway struct {
	getFn    func(ctx context.Context, code, phone string) (*usecase.VoucherDisplay, error)
	claimFn  func(ctx context.Context, code, phone string, name, email *string) (*usecase.ClaimResult, error)
	redeemFn func(ctx context.Context, code, phone, pin string) error
}

func (s *stubGateway) GetVoucherDisplay(ctx context.Context, code, phone string) (*usecase.VoucherDisplay, error) {
	if s.getFn != nil {
		return s.getFn(ctx, code, phone)
	}
	return &usecase.VoucherDisplay{}, nil
}

func (s *stubGateway) ClaimVoucher(ctx context.Context, code, phone string, name, email *string) (*usecase.ClaimResult, error) {
	if s.claimFn != nil {
		return s.claimFn(ctx, code, phone, name, email)
	}
	return &usecase.ClaimResult{}, nil
}

func (s *stubGateway) RedeemVoucher(ctx context.Context, code, phone, pin string) error {
	if s.redeemFn != nil {
		return s.redeemFn(ctx, code, phone, pin)
	}
	return nil
}

func newTestRouter(gateway usecase.VoucherGateway) *chi.Mux {
	r := chi.NewRouter()
	NewHandler(gateway, nil).Routes(r)
	return r
}

func TestGetVoucherSuccess(t *testing.T) {
	title := "Welcome offer"
	gateway := &stubGateway{
		getFn: func(ctx context.Context, code, phone string) (*usecase.VoucherDisplay, error) {
			require.Equal(t, "WELCOME10", code)
			require.Equal(t, "+41791112233", phone)
			return &usecase.VoucherDisplay{
				Voucher: domain.Voucher{
					ID:            1,
					Code:          "WELCOME10",
					DiscountType:  domain.DiscountPercent,
					DiscountValue: 10,
					Title:         &title,
					IsActive:      true,
				},
				Claim: &domain.Claim{ID: 7, VoucherID: 1, ClaimedAt: time.Now()},
			}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/vouchers/WELCOME10", nil)
	req.Header.Set(customerPhoneHeader, "+41791112233")
	rec := httptest.NewRecorder()
	newTestRouter(gateway).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body VoucherResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "WELCOME10", body.Code)
	require.NotNil(t, body.Claim)
	require.Equal(t, "active", body.Claim.State)
	require.Nil(t, body.CurrentUses, "usage counters are admin-only")
}

func TestGetVoucherErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{domain.ErrVoucherNotFound, http.StatusNotFound},
		{domain.ErrVoucherInactive, http.StatusGone},
		{domain.ErrVoucherExpired, http.StatusGone},
		{domain.ErrCapReached, http.StatusGone},
	}

	for _, tc := range cases {
		gateway := &stubGateway{
			getFn: func(ctx context.Context, code, phone string) (*usecase.VoucherDisplay, error) {
				return nil, tc.err
			},
		}
		req := httptest.NewRequest(http.MethodGet, "/api/vouchers/ANY", nil)
		rec := httptest.NewRecorder()
		newTestRouter(gateway).ServeHTTP(rec, req)
		require.Equal(t, tc.status, rec.Code, "error %v", tc.err)
	}
}

func TestClaimVoucherSuccess(t *testing.T) {
	gateway := &stubGateway{
		claimFn: func(ctx context.Context, code, phone string, name, email *string) (*usecase.ClaimResult, error) {
			require.Equal(t, "WELCOME10", code)
			require.Equal(t, "079 111 22 33", phone)
			require.NotNil(t, name)
			require.Equal(t, "Mina", *name)
			return &usecase.ClaimResult{
				Claim:    domain.Claim{ID: 3, VoucherID: 1, ClaimedAt: time.Now()},
				Customer: domain.Customer{ID: 9, Phone: "+41791112233"},
			}, nil
		},
	}

	body := `{"phone":"079 111 22 33","name":"Mina"}`
	req := httptest.NewRequest(http.MethodPost, "/api/vouchers/WELCOME10/claim", strings.NewReader(body))
	rec := httptest.NewRecorder()
	newTestRouter(gateway).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Success bool           `json:"success"`
		Claim   *ClaimResponse `json:"claim"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	require.EqualValues(t, 3, resp.Claim.ID)
}

func TestClaimVoucherRejectsMissingPhone(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/vouchers/WELCOME10/claim", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	newTestRouter(&stubGateway{}).ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestClaimVoucherCapReached(t *testing.T) {
	gateway := &stubGateway{
		claimFn: func(ctx context.Context, code, phone string, name, email *string) (*usecase.ClaimResult, error) {
			return nil, domain.ErrCapReached
		},
	}
	body := `{"phone":"+41791112233"}`
	req := httptest.NewRequest(http.MethodPost, "/api/vouchers/FULL/claim", strings.NewReader(body))
	rec := httptest.NewRecorder()
	newTestRouter(gateway).ServeHTTP(rec, req)
	require.Equal(t, http.StatusGone, rec.Code)
}

func TestRedeemVoucherStatusMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{nil, http.StatusOK},
		{domain.ErrBadPin, http.StatusUnauthorized},
		{domain.ErrAlreadyUsed, http.StatusConflict},
		{domain.ErrClaimNotFound, http.StatusNotFound},
		{domain.ErrVoucherNotFound, http.StatusNotFound},
		{domain.ErrInvalidPhone, http.StatusBadRequest},
	}

	for _, tc := range cases {
		gateway := &stubGateway{
			redeemFn: func(ctx context.Context, code, phone, pin string) error {
				return tc.err
			},
		}
		body := `{"phone":"+41791112233","pin":"1217"}`
		req := httptest.NewRequest(http.MethodPost, "/api/vouchers/WELCOME10/redeem", strings.NewReader(body))
		rec := httptest.NewRecorder()
		newTestRouter(gateway).ServeHTTP(rec, req)
		require.Equal(t, tc.status, rec.Code, "error %v", tc.err)
	}
}

func TestRedeemVoucherRejectsMalformedPin(t *testing.T) {
	for _, body := range []string{
		`{"phone":"+41791112233"}`,
		`{"phone":"+41791112233","pin":"12"}`,
		`{"phone":"+41791112233","pin":"abcd"}`,
	} {
		req := httptest.NewRequest(http.MethodPost, "/api/vouchers/WELCOME10/redeem", strings.NewReader(body))
		rec := httptest.NewRecorder()
		newTestRouter(&stubGateway{}).ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code, "body %s", body)
	}
}

func TestMyVouchersRequiresPhoneHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/vouchers/my-vouchers", nil)
	rec := httptest.NewRecorder()
	newTestRouter(&stubGateway{}).ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
