package airtable

import "errors"

// ErrUpstreamUnavailable marks transient failures: transport errors and
// 5xx responses. The whole dispatch cycle may be retried on the next
// notification.
var ErrUpstreamUnavailable = errors.New("airtable unavailable")

// ErrUpstreamRejected marks non-retryable 4xx responses, typically a bad
// or expired token. Callers treat it as the offered credential failing.
var ErrUpstreamRejected = errors.New("airtable rejected request")
