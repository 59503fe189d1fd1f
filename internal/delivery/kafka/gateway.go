package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/marifah/voucher-engine/internal/config"
	"github.com/marifah/voucher-engine/internal/domain"
	"github.com/marifah/voucher-engine/internal/usecase"
)

// Gateway forwards lifecycle operations over Kafka using correlation-id
// request/reply and waits for the response on this instance's reply topic.
type Gateway struct {
	client      *kgo.Client
	cfg         *config.Config
	log         zerolog.Logger
	pendingResp sync.Map
}

func NewGateway(cfg *config.Config, client *kgo.Client, log zerolog.Logger) *Gateway {
	return &Gateway{
		client: client,
		cfg:    cfg,
		log:    log,
	}
}

func (g *Gateway) GetVoucherDisplay(ctx context.Context, code, phone string) (*usecase.VoucherDisplay, error) {
	req := RequestPayload{
		SchemaVersion: 1,
		CorrelationID: uuid.New().String(),
		ReplyTo:       fmt.Sprintf("%s%s", TopicReplyPrefix, g.cfg.KafkaInstanceID),
		Code:          code,
		Phone:         phone,
	}

	resp, err := g.requestReply(ctx, TopicGetRequest, []byte(code), req)
	if err != nil {
		return nil, err
	}
	if resp.Status == StatusError {
		return nil, mapError(resp.ErrorCode, resp.ErrorMessage)
	}
	return resp.Display, nil
}

func (g *Gateway) ClaimVoucher(ctx context.Context, code, phone string, name, email *string) (*usecase.ClaimResult, error) {
	req := RequestPayload{
		SchemaVersion: 1,
		CorrelationID: uuid.New().String(),
		ReplyTo:       fmt.Sprintf("%s%s", TopicReplyPrefix, g.cfg.KafkaInstanceID),
		Code:          code,
		Phone:         phone,
	}
	if name != nil {
		req.Name = *name
	}
	if email != nil {
		req.Email = *email
	}

	// Key by (code, phone) so racing claims for one pair land in order.
	key := fmt.Sprintf("%s:%s", code, phone)
	resp, err := g.requestReply(ctx, TopicClaimRequest, []byte(key), req)
	if err != nil {
		return nil, err
	}
	if resp.Status == StatusError {
		return nil, mapError(resp.ErrorCode, resp.ErrorMessage)
	}
	return resp.Claim, nil
}

func (g *Gateway) RedeemVoucher(ctx context.Context, code, phone, pin string) error {
	req := RequestPayload{
		SchemaVersion: 1,
		CorrelationID: uuid.New().String(),
		ReplyTo:       fmt.Sprintf("%s%s", TopicReplyPrefix, g.cfg.KafkaInstanceID),
		Code:          code,
		Phone:         phone,
		Pin:           pin,
	}

	key := fmt.Sprintf("%s:%s", code, phone)
	resp, err := g.requestReply(ctx, TopicRedeemRequest, []byte(key), req)
	if err != nil {
		return err
	}
	if resp.Status == StatusError {
		return mapError(resp.ErrorCode, resp.ErrorMessage)
	}
	return nil
}

func (g *Gateway) requestReply(ctx context.Context, topic string, key []byte, req RequestPayload) (*ResponsePayload, error) {
	respChan := make(chan *ResponsePayload, 1)
	g.pendingResp.Store(req.CorrelationID, respChan)
	defer g.pendingResp.Delete(req.CorrelationID)

	payload, _ := json.Marshal(req)
	record := &kgo.Record{
		Topic: topic,
		Key:   key,
		Value: payload,
	}

	if err := g.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return nil, err
	}

	select {
	case resp := <-respChan:
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(RequestTimeout):
		return nil, errors.New("timeout waiting for response")
	}
}

// HandleResponse routes a reply-topic record to the waiting request.
func (g *Gateway) HandleResponse(payload []byte) {
	var resp ResponsePayload
	if err := json.Unmarshal(payload, &resp); err != nil {
		g.log.Error().Err(err).Msg("failed to decode response payload")
		return
	}

	if ch, ok := g.pendingResp.Load(resp.CorrelationID); ok {
		ch.(chan *ResponsePayload) <- &resp
		return
	}

	g.log.Warn().Str("correlation_id", resp.CorrelationID).Msg("no pending response")
}

func mapError(code, message string) error {
	switch code {
	case ErrCodeNotFound:
		return domain.ErrVoucherNotFound
	case ErrCodeNoClaim:
		return domain.ErrClaimNotFound
	case ErrCodeInactive:
		return domain.ErrVoucherInactive
	case ErrCodeExpired:
		return domain.ErrVoucherExpired
	case ErrCodeCapReached:
		return domain.ErrCapReached
	case ErrCodeAlreadyUsed:
		return domain.ErrAlreadyUsed
	case ErrCodeBadPin:
		return domain.ErrBadPin
	case ErrCodeInvalidPin:
		return domain.ErrInvalidPin
	case ErrCodeInvalidPhone:
		return domain.ErrInvalidPhone
	default:
		return errors.New(message)
	}
}

var _ usecase.VoucherGateway = (*Gateway)(nil)
