package ratelimit

// ReasonCode identifies which tier rejected a request. Codes are part of the
// public API response contract and must stay stable.
type ReasonCode string

const (
	ReasonIPBlocked             ReasonCode = "IP_BLOCKED"
	ReasonBurstLimitExceeded    ReasonCode = "BURST_LIMIT_EXCEEDED"
	ReasonIPRateLimitExceeded   ReasonCode = "IP_RATE_LIMIT_EXCEEDED"
	ReasonUserRateLimitExceeded ReasonCode = "USER_RATE_LIMIT_EXCEEDED"
)

// Message returns the human-readable explanation sent to clients alongside
// the code.
func (c ReasonCode) Message() string {
	switch c {
	case ReasonIPBlocked:
		return "Your IP address has been temporarily blocked due to repeated rate limit violations. Please try again later."
	case ReasonBurstLimitExceeded:
		return "Too many requests in a short time. Please slow down and try again."
	case ReasonIPRateLimitExceeded:
		return "Rate limit exceeded for this endpoint. Please try again later."
	case ReasonUserRateLimitExceeded:
		return "You have reached your monthly question limit. Your quota will reset at the start of next month."
	default:
		return "Rate limit exceeded. Please try again later."
	}
}
