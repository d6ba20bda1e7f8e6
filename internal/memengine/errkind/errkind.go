// Package errkind defines the six error kinds the engine distinguishes by
// behaviour (spec §7), implemented as sentinel errors wrapped with fmt.Errorf.
package errkind

import "errors"

var (
	// InvalidArgument: empty userId, importance out of range, invalid regex
	// in rule creation. Policy: fail the call immediately.
	InvalidArgument = errors.New("invalid argument")

	// ConfigurationError: missing apiKey, unknown provider. Policy: fail
	// extractor construction.
	ConfigurationError = errors.New("configuration error")

	// Transient: LLM timeout, network glitch, storage unavailable. Policy:
	// retry per policy; on exhaustion surface as ExtractionFailed.
	Transient = errors.New("transient error")

	// ExtractionFailed: parse error, schema mismatch, pattern timeout.
	// Policy: return empty list for that message/rule, log, batch continues.
	ExtractionFailed = errors.New("extraction failed")

	// SecurityReject: unsafe decay expression, ReDoS timeout. Policy: log
	// once, treat as "did not match", never propagate upward.
	SecurityReject = errors.New("security reject")

	// Fatal: storage corruption detected during write-back. Policy: surface
	// to caller, abort current pipeline.
	Fatal = errors.New("fatal error")
)

// Is reports whether err wraps kind anywhere in its chain.
func Is(err, kind error) bool {
	return errors.Is(err, kind)
}
