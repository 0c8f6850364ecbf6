// Package webhook validates and ingests signed webhook deliveries from
// the commerce platform.
//
// [Validator] checks an HMAC-SHA256 signature over the exact raw request
// bytes and a unix-seconds timestamp against a skew window. The signature
// header may carry multiple `scheme=hexdigest` entries and any match
// against any configured secret accepts the request, which keeps both
// header schemes and shared secrets rotatable.
//
// [Handler] is the HTTP endpoint: it validates, records the event exactly
// once via an [Ingestor], and answers 200 for both first deliveries and
// duplicates so the platform never retries what was already taken.
// Rejections answer 401 and are never enqueued.
package webhook
