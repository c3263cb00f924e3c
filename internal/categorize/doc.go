// Package categorize is the client for the web application's batch
// categorization endpoint.
//
// A call either reaches the server or it does not. Calls that never got an
// answer (DNS, refused connection, reset, timeout) are returned as a
// *errors.TransportError. Every answer, including error bodies and non-2xx
// statuses, is converted into a pacing.Signal for the controller.
//
// # Rate-limit Classification
//
// Structured data wins over text. A response is rate-limited when the status
// is 429, when the body's code is "rate_limited", or, as a compatibility
// fallback, when the error text contains "rate limit" or "Rate limit". The
// retry hint comes from metrics.rateLimitInfo.resetIn, then the Retry-After
// header, then a number of seconds mentioned in the error text. Quota
// telemetry comes from the body's rateLimit object, then the X-RateLimit-*
// headers.
//
// # Thread Safety
//
// Client is safe for concurrent use, though the worker only ever has one
// request in flight.
package categorize
