package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/marifah/voucher-engine/internal/domain"
	"github.com/marifah/voucher-engine/internal/repository"
	"github.com/marifah/voucher-engine/internal/usecase"
)

const customerPhoneHeader = "X-Customer-Phone"

type ClaimRequest struct {
	Phone string `json:"phone" validate:"required,min=6"`
	Name  string `json:"name"`
	Email string `json:"email" validate:"omitempty,email"`
}

type RedeemRequest struct {
	Phone string `json:"phone" validate:"required,min=6"`
	Pin   string `json:"pin" validate:"required,len=4,number"`
}

type CreateVoucherRequest struct {
	Code            string     `json:"code" validate:"required"`
	DiscountType    string     `json:"discount_type" validate:"required,oneof=percent fixed"`
	DiscountValue   float64    `json:"discount_value" validate:"required,gt=0"`
	Title           *string    `json:"title"`
	Description     *string    `json:"description"`
	BackgroundImage *string    `json:"background_image"`
	ExpiryDate      *time.Time `json:"expiry_date"`
	MaxUses         *int32     `json:"max_uses" validate:"omitempty,gt=0"`
	IsActive        *bool      `json:"is_active"`
}

type UpdateVoucherRequest struct {
	Code            *string    `json:"code"`
	DiscountType    *string    `json:"discount_type" validate:"omitempty,oneof=percent fixed"`
	DiscountValue   *float64   `json:"discount_value" validate:"omitempty,gt=0"`
	Title           *string    `json:"title"`
	Description     *string    `json:"description"`
	BackgroundImage *string    `json:"background_image"`
	ExpiryDate      *time.Time `json:"expiry_date"`
	MaxUses         *int32     `json:"max_uses"`
	IsActive        *bool      `json:"is_active"`
}

type ClaimResponse struct {
	ID        int64      `json:"id"`
	VoucherID int64      `json:"voucher_id"`
	ClaimedAt time.Time  `json:"claimed_at"`
	UsedAt    *time.Time `json:"used_at"`
	State     string     `json:"state"`
}

type VoucherResponse struct {
	ID              int64          `json:"id"`
	Code            string         `json:"code"`
	DiscountType    string         `json:"discount_type"`
	DiscountValue   float64        `json:"discount_value"`
	Title           *string        `json:"title"`
	Description     *string        `json:"description"`
	BackgroundImage *string        `json:"background_image"`
	ExpiryDate      *time.Time     `json:"expiry_date"`
	MaxUses         *int32         `json:"max_uses,omitempty"`
	CurrentUses     *int32         `json:"current_uses,omitempty"`
	IsActive        bool           `json:"is_active"`
	Claim           *ClaimResponse `json:"claim,omitempty"`
	ClaimsCount     *int64         `json:"claims_count,omitempty"`
	UsedCount       *int64         `json:"used_count,omitempty"`
}

type Handler struct {
	gateway  usecase.VoucherGateway
	service  *usecase.VoucherService
	validate *validator.Validate
}

// NewHandler wires the public routes through the gateway (direct or
// event-driven) and the admin routes straight to the service.
func NewHandler(gateway usecase.VoucherGateway, service *usecase.VoucherService) *Handler {
	return &Handler{
		gateway:  gateway,
		service:  service,
		validate: validator.New(),
	}
}

func (h *Handler) Routes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Route("/vouchers", func(r chi.Router) {
			r.Get("/validate/{code}", h.ValidateVoucher)
			r.Get("/my-vouchers", h.MyVouchers)
			r.Get("/{code}", h.GetVoucher)
			r.Post("/{code}/claim", h.ClaimVoucher)
			r.Post("/{code}/redeem", h.RedeemVoucher)
		})
		r.Route("/admin/vouchers", func(r chi.Router) {
			r.Get("/", h.ListVouchers)
			r.Post("/", h.CreateVoucher)
			r.Put("/{id}", h.UpdateVoucher)
			r.Delete("/{id}", h.DeleteVoucher)
			r.Get("/{id}/claims", h.VoucherClaims)
			r.Put("/claims/{claimID}/use", h.MarkClaimUsed)
		})
	})
}

func (h *Handler) ValidateVoucher(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Validate(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		respondError(w, err)
		return
	}

	if !result.Valid {
		respondJSON(w, http.StatusOK, map[string]any{
			"valid": false,
			"error": result.Reason.Error(),
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"valid":          true,
		"code":           result.Code,
		"discount_type":  result.DiscountType,
		"discount_value": result.DiscountValue,
	})
}

func (h *Handler) GetVoucher(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	phone := r.Header.Get(customerPhoneHeader)

	display, err := h.gateway.GetVoucherDisplay(r.Context(), code, phone)
	if err != nil {
		respondError(w, err)
		return
	}

	resp := publicVoucher(display.Voucher)
	if display.Claim != nil {
		resp.Claim = claimResponse(*display.Claim)
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *Handler) ClaimVoucher(w http.ResponseWriter, r *http.Request) {
	var req ClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondMessage(w, http.StatusBadRequest, "valid phone number required")
		return
	}

	result, err := h.gateway.ClaimVoucher(r.Context(), chi.URLParam(r, "code"),
		req.Phone, optional(req.Name), optional(req.Email))
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"claim":   claimResponse(result.Claim),
		"customer": map[string]any{
			"id":    result.Customer.ID,
			"phone": result.Customer.Phone,
			"name":  result.Customer.Name,
		},
	})
}

func (h *Handler) RedeemVoucher(w http.ResponseWriter, r *http.Request) {
	var req RedeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondMessage(w, http.StatusBadRequest, "phone and 4-digit pin required")
		return
	}

	if err := h.gateway.RedeemVoucher(r.Context(), chi.URLParam(r, "code"), req.Phone, req.Pin); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) MyVouchers(w http.ResponseWriter, r *http.Request) {
	phone := r.Header.Get(customerPhoneHeader)
	if phone == "" {
		respondMessage(w, http.StatusBadRequest, "phone number required")
		return
	}

	claims, err := h.service.MyClaims(r.Context(), phone)
	if err != nil {
		respondError(w, err)
		return
	}
	if claims == nil {
		claims = []repository.ClaimWithVoucher{}
	}

	items := make([]map[string]any, 0, len(claims))
	for _, c := range claims {
		items = append(items, map[string]any{
			"id":               c.ID,
			"voucher_id":       c.VoucherID,
			"claimed_at":       c.ClaimedAt,
			"used_at":          c.UsedAt,
			"state":            string(c.State()),
			"code":             c.Code,
			"title":            c.Title,
			"description":      c.Description,
			"discount_type":    c.DiscountType,
			"discount_value":   c.DiscountValue,
			"expiry_date":      c.ExpiryDate,
			"is_active":        c.IsActive,
			"background_image": c.BackgroundImage,
		})
	}
	respondJSON(w, http.StatusOK, items)
}

func (h *Handler) ListVouchers(w http.ResponseWriter, r *http.Request) {
	vouchers, err := h.service.ListVouchers(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}

	items := make([]VoucherResponse, 0, len(vouchers))
	for _, v := range vouchers {
		resp := adminVoucher(v.Voucher)
		claimed, used := v.ClaimsCount, v.UsedCount
		resp.ClaimsCount = &claimed
		resp.UsedCount = &used
		items = append(items, resp)
	}
	respondJSON(w, http.StatusOK, items)
}

func (h *Handler) CreateVoucher(w http.ResponseWriter, r *http.Request) {
	var req CreateVoucherRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondMessage(w, http.StatusBadRequest, "code, discount type and value required")
		return
	}

	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	voucher, err := h.service.CreateVoucher(r.Context(), repository.CreateVoucherParams{
		Code:            req.Code,
		DiscountType:    req.DiscountType,
		DiscountValue:   req.DiscountValue,
		Title:           req.Title,
		Description:     req.Description,
		BackgroundImage: req.BackgroundImage,
		ExpiryDate:      req.ExpiryDate,
		MaxUses:         req.MaxUses,
		IsActive:        isActive,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, adminVoucher(voucher))
}

func (h *Handler) UpdateVoucher(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondMessage(w, http.StatusBadRequest, "invalid voucher id")
		return
	}

	var req UpdateVoucherRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondMessage(w, http.StatusBadRequest, "invalid voucher fields")
		return
	}

	voucher, err := h.service.UpdateVoucher(r.Context(), id, repository.UpdateVoucherParams{
		Code:            req.Code,
		DiscountType:    req.DiscountType,
		DiscountValue:   req.DiscountValue,
		Title:           req.Title,
		Description:     req.Description,
		BackgroundImage: req.BackgroundImage,
		ExpiryDate:      req.ExpiryDate,
		MaxUses:         req.MaxUses,
		IsActive:        req.IsActive,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, adminVoucher(voucher))
}

func (h *Handler) DeleteVoucher(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondMessage(w, http.StatusBadRequest, "invalid voucher id")
		return
	}

	if err := h.service.DeleteVoucher(r.Context(), id); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) VoucherClaims(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondMessage(w, http.StatusBadRequest, "invalid voucher id")
		return
	}

	voucher, claims, err := h.service.VoucherClaims(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}

	items := make([]map[string]any, 0, len(claims))
	for _, c := range claims {
		items = append(items, map[string]any{
			"id":            c.ID,
			"claimed_at":    c.ClaimedAt,
			"used_at":       c.UsedAt,
			"state":         string(c.State()),
			"phone":         c.Phone,
			"customer_name": c.CustomerName,
			"email":         c.CustomerEmail,
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"voucher": adminVoucher(voucher),
		"claims":  items,
	})
}

func (h *Handler) MarkClaimUsed(w http.ResponseWriter, r *http.Request) {
	claimID, err := strconv.ParseInt(chi.URLParam(r, "claimID"), 10, 64)
	if err != nil {
		respondMessage(w, http.StatusBadRequest, "invalid claim id")
		return
	}

	if err := h.service.MarkClaimUsed(r.Context(), claimID); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true})
}

// publicVoucher omits the usage counters; they are admin-only.
func publicVoucher(v domain.Voucher) VoucherResponse {
	return VoucherResponse{
		ID:              v.ID,
		Code:            v.Code,
		DiscountType:    v.DiscountType,
		DiscountValue:   v.DiscountValue,
		Title:           v.Title,
		Description:     v.Description,
		BackgroundImage: v.BackgroundImage,
		ExpiryDate:      v.ExpiryDate,
		IsActive:        v.IsActive,
	}
}

func adminVoucher(v domain.Voucher) VoucherResponse {
	resp := publicVoucher(v)
	resp.MaxUses = v.MaxUses
	currentUses := v.CurrentUses
	resp.CurrentUses = &currentUses
	return resp
}

func claimResponse(c domain.Claim) *ClaimResponse {
	return &ClaimResponse{
		ID:        c.ID,
		VoucherID: c.VoucherID,
		ClaimedAt: c.ClaimedAt,
		UsedAt:    c.UsedAt,
		State:     string(c.State()),
	}
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respondMessage(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrVoucherNotFound), errors.Is(err, domain.ErrClaimNotFound):
		respondMessage(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrVoucherInactive),
		errors.Is(err, domain.ErrVoucherExpired),
		errors.Is(err, domain.ErrCapReached):
		respondMessage(w, http.StatusGone, err.Error())
	case errors.Is(err, domain.ErrAlreadyUsed), errors.Is(err, domain.ErrDuplicateCode):
		respondMessage(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrBadPin):
		respondMessage(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, domain.ErrInvalidPhone),
		errors.Is(err, domain.ErrInvalidPin),
		errors.Is(err, domain.ErrInvalidDiscount):
		respondMessage(w, http.StatusBadRequest, err.Error())
	default:
		respondMessage(w, http.StatusInternalServerError, "internal server error")
	}
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
