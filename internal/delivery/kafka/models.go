package kafka

import "github.com/marifah/voucher-engine/internal/usecase"

const (
	StatusSuccess = "SUCCESS"
	StatusError   = "ERROR"
)

const (
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeNoClaim       = "NO_CLAIM"
	ErrCodeInactive      = "INACTIVE"
	ErrCodeExpired       = "EXPIRED"
	ErrCodeCapReached    = "CAP_REACHED"
	ErrCodeAlreadyUsed   = "ALREADY_USED"
	ErrCodeBadPin        = "BAD_PIN"
	ErrCodeInvalidPhone  = "INVALID_PHONE"
	ErrCodeInvalidPin    = "INVALID_PIN"
	ErrCodeInvalidInput  = "INVALID_REQUEST"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

type RequestPayload struct {
	SchemaVersion int    `json:"schema_version"`
	CorrelationID string `json:"correlation_id"`
	ReplyTo       string `json:"reply_to"`
	Code          string `json:"code,omitempty"`
	Phone         string `json:"phone,omitempty"`
	Name          string `json:"name,omitempty"`
	Email         string `json:"email,omitempty"`
	Pin           string `json:"pin,omitempty"`
}

type ResponsePayload struct {
	SchemaVersion int                     `json:"schema_version"`
	CorrelationID string                  `json:"correlation_id"`
	Status        string                  `json:"status"`
	ErrorCode     string                  `json:"error_code,omitempty"`
	ErrorMessage  string                  `json:"error_message,omitempty"`
	Display       *usecase.VoucherDisplay `json:"display,omitempty"`
	Claim         *usecase.ClaimResult    `json:"claim,omitempty"`
}
