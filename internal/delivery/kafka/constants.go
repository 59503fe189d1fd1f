package kafka

import "time"

const (
	TopicGetRequest    = "voucher.get.req"
	TopicClaimRequest  = "voucher.claim.req"
	TopicRedeemRequest = "voucher.redeem.req"
	TopicGetRetry      = "voucher.get.retry"
	TopicClaimRetry    = "voucher.claim.retry"
	TopicRedeemRetry   = "voucher.redeem.retry"
	TopicReplyPrefix   = "voucher.reply."
	TopicRequestSuffix = ".req"
	TopicRetrySuffix   = ".retry"
	TopicDLQSuffix     = ".dlq"

	RequestTimeout = 3 * time.Second

	RetryHeaderNextAt = "x-next-at"
	ErrorHeaderKey    = "x-error"
)
