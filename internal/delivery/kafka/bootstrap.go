package kafka

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/marifah/voucher-engine/internal/config"
)

// EnsureTopics creates every request, retry, DLQ and reply topic this
// instance needs. Safe to call on every startup.
func EnsureTopics(ctx context.Context, client *kgo.Client, cfg *config.Config, log zerolog.Logger) error {
	adm := kadm.NewClient(client)

	topics := []string{
		TopicGetRequest,
		TopicClaimRequest,
		TopicRedeemRequest,
		TopicGetRetry,
		TopicClaimRetry,
		TopicRedeemRetry,
		TopicGetRequest + TopicDLQSuffix,
		TopicClaimRequest + TopicDLQSuffix,
		TopicRedeemRequest + TopicDLQSuffix,
		fmt.Sprintf("%s%s", TopicReplyPrefix, cfg.KafkaInstanceID),
	}

	partitions := cfg.TopicPartitions()
	retryPartitions := cfg.RetryPartitions()
	replicationFactor := cfg.ReplicationFactor()

	for _, topic := range topics {
		p := partitions
		if strings.HasSuffix(topic, TopicRetrySuffix) || strings.HasSuffix(topic, TopicDLQSuffix) {
			p = retryPartitions
		}

		resp, err := adm.CreateTopics(ctx, int32(p), replicationFactor, nil, topic)
		if err != nil {
			return fmt.Errorf("failed to create topic %s: %w", topic, err)
		}
		for _, detail := range resp {
			if detail.Err != nil && !strings.Contains(detail.Err.Error(), "already exists") {
				return fmt.Errorf("failed to create topic %s: %w", detail.Topic, detail.Err)
			}
		}
	}

	log.Info().Msg("all topics ensured")
	return nil
}
