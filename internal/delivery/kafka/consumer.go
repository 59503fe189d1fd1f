package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/marifah/voucher-engine/internal/config"
	"github.com/marifah/voucher-engine/internal/domain"
	"github.com/marifah/voucher-engine/internal/usecase"
)

// Consumer executes lifecycle requests from the request topics and
// publishes replies to the requester's reply topic.
type Consumer struct {
	client  *kgo.Client
	cfg     *config.Config
	service *usecase.VoucherService
	log     zerolog.Logger
	ready   chan struct{}
}

func NewConsumer(cfg *config.Config, client *kgo.Client, service *usecase.VoucherService, log zerolog.Logger) *Consumer {
	return &Consumer{
		client:  client,
		cfg:     cfg,
		service: service,
		log:     log,
		ready:   make(chan struct{}),
	}
}

func (c *Consumer) Start(ctx context.Context) {
	close(c.ready)
	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return
		}
		if errs := fetches.Errors(); len(errs) > 0 {
			c.log.Error().Interface("errors", errs).Msg("consumer poll errors")
		}

		iter := fetches.RecordIter()
		for !iter.Done() {
			record := iter.Next()
			c.processRecord(ctx, record)
		}

		if err := c.client.CommitRecords(ctx, fetches.Records()...); err != nil {
			c.log.Error().Err(err).Msg("failed to commit records")
		}
	}
}

// StartRetry requeues records from the retry topics onto their main topics
// once their scheduled time arrives.
func (c *Consumer) StartRetry(ctx context.Context) {
	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return
		}
		iter := fetches.RecordIter()
		for !iter.Done() {
			record := iter.Next()

			if nextAt, ok := retryNextAt(record); ok && time.Now().Before(nextAt) {
				time.Sleep(time.Until(nextAt))
			}

			mainTopic := strings.TrimSuffix(record.Topic, TopicRetrySuffix) + TopicRequestSuffix
			newRecord := &kgo.Record{
				Topic:   mainTopic,
				Key:     record.Key,
				Value:   record.Value,
				Headers: record.Headers,
			}
			if err := c.client.ProduceSync(ctx, newRecord).FirstErr(); err != nil {
				c.log.Error().Err(err).Msg("failed to requeue retry record")
			}
		}
		if err := c.client.CommitRecords(ctx, fetches.Records()...); err != nil {
			c.log.Error().Err(err).Msg("failed to commit retry records")
		}
	}
}

func (c *Consumer) Ready() <-chan struct{} {
	return c.ready
}

func (c *Consumer) processRecord(ctx context.Context, record *kgo.Record) {
	switch record.Topic {
	case TopicGetRequest:
		c.handleGet(ctx, record)
	case TopicClaimRequest:
		c.handleClaim(ctx, record)
	case TopicRedeemRequest:
		c.handleRedeem(ctx, record)
	}
}

func (c *Consumer) handleGet(ctx context.Context, record *kgo.Record) {
	var req RequestPayload
	if err := json.Unmarshal(record.Value, &req); err != nil {
		c.sendInvalid(ctx, record)
		return
	}

	display, err := c.service.GetVoucherDisplay(ctx, req.Code, req.Phone)
	var resp *ResponsePayload
	if err != nil {
		resp = errorResponse(req.CorrelationID, err)
	} else {
		resp = successResponse(req.CorrelationID)
		resp.Display = display
	}

	c.sendResponse(ctx, req.ReplyTo, resp)
}

func (c *Consumer) handleClaim(ctx context.Context, record *kgo.Record) {
	var req RequestPayload
	if err := json.Unmarshal(record.Value, &req); err != nil {
		c.sendInvalid(ctx, record)
		return
	}

	result, err := c.service.ClaimVoucher(ctx, req.Code, req.Phone, optional(req.Name), optional(req.Email))
	var resp *ResponsePayload
	if err != nil {
		resp = errorResponse(req.CorrelationID, err)
	} else {
		resp = successResponse(req.CorrelationID)
		resp.Claim = result
	}

	c.sendResponse(ctx, req.ReplyTo, resp)
}

func (c *Consumer) handleRedeem(ctx context.Context, record *kgo.Record) {
	var req RequestPayload
	if err := json.Unmarshal(record.Value, &req); err != nil {
		c.sendInvalid(ctx, record)
		return
	}

	err := c.service.RedeemVoucher(ctx, req.Code, req.Phone, req.Pin)
	var resp *ResponsePayload
	if err != nil {
		resp = errorResponse(req.CorrelationID, err)
	} else {
		resp = successResponse(req.CorrelationID)
	}

	c.sendResponse(ctx, req.ReplyTo, resp)
}

func (c *Consumer) sendResponse(ctx context.Context, topic string, resp *ResponsePayload) {
	payload, _ := json.Marshal(resp)
	record := &kgo.Record{
		Topic: topic,
		Value: payload,
	}
	if err := c.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		c.log.Error().Err(err).Str("topic", topic).Msg("failed to send response")
	}
}

// sendInvalid replies with INVALID_REQUEST where possible and parks the
// undecodable record on the DLQ topic.
func (c *Consumer) sendInvalid(ctx context.Context, record *kgo.Record) {
	var req RequestPayload
	_ = json.Unmarshal(record.Value, &req)

	if req.ReplyTo != "" {
		resp := &ResponsePayload{
			SchemaVersion: 1,
			CorrelationID: req.CorrelationID,
			Status:        StatusError,
			ErrorCode:     ErrCodeInvalidInput,
			ErrorMessage:  "invalid request payload",
		}
		c.sendResponse(ctx, req.ReplyTo, resp)
	}

	dlqRecord := &kgo.Record{
		Topic: record.Topic + TopicDLQSuffix,
		Value: record.Value,
		Headers: []kgo.RecordHeader{
			{Key: ErrorHeaderKey, Value: []byte("invalid request payload")},
		},
	}
	_ = c.client.ProduceSync(ctx, dlqRecord).FirstErr()
}

func retryNextAt(record *kgo.Record) (time.Time, bool) {
	for _, header := range record.Headers {
		if header.Key != RetryHeaderNextAt {
			continue
		}
		nextAt, err := time.Parse(time.RFC3339, string(header.Value))
		if err != nil {
			return time.Time{}, false
		}
		return nextAt, true
	}

	return time.Time{}, false
}

func successResponse(correlationID string) *ResponsePayload {
	return &ResponsePayload{
		SchemaVersion: 1,
		CorrelationID: correlationID,
		Status:        StatusSuccess,
	}
}

func errorResponse(correlationID string, err error) *ResponsePayload {
	return &ResponsePayload{
		SchemaVersion: 1,
		CorrelationID: correlationID,
		Status:        StatusError,
		ErrorCode:     errorCode(err),
		ErrorMessage:  err.Error(),
	}
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrVoucherNotFound):
		return ErrCodeNotFound
	case errors.Is(err, domain.ErrClaimNotFound):
		return ErrCodeNoClaim
	case errors.Is(err, domain.ErrVoucherInactive):
		return ErrCodeInactive
	case errors.Is(err, domain.ErrVoucherExpired):
		return ErrCodeExpired
	case errors.Is(err, domain.ErrCapReached):
		return ErrCodeCapReached
	case errors.Is(err, domain.ErrAlreadyUsed):
		return ErrCodeAlreadyUsed
	case errors.Is(err, domain.ErrBadPin):
		return ErrCodeBadPin
	case errors.Is(err, domain.ErrInvalidPin):
		return ErrCodeInvalidPin
	case errors.Is(err, domain.ErrInvalidPhone):
		return ErrCodeInvalidPhone
	default:
		return ErrCodeInternalError
	}
}

func optional(value string) *string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return &value
}
