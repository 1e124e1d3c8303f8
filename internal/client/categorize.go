package client

import (
	"context"
	"errors"
	"strings"

	"github.com/kjstillabower/atmo/internal/models"
)

// ErrorKind is a stable label for error classification in metrics and status messages.
type ErrorKind string

const (
	KindLocationDenied        ErrorKind = "location_denied"
	KindLocationTimeout       ErrorKind = "location_timeout"
	KindLocationNotFound      ErrorKind = "location_not_found"
	KindNetworkUnavailable    ErrorKind = "network_unavailable"
	KindUpstreamMalformed     ErrorKind = "upstream_malformed"
	KindUpstreamQuotaExceeded ErrorKind = "upstream_quota_exceeded"
	KindConfigurationMissing  ErrorKind = "configuration_missing"
	KindUnknown               ErrorKind = "unknown"
)

// CategorizeError maps an error to a stable ErrorKind.
// Sentinels win; message heuristics cover errors from libraries that do not wrap them.
func CategorizeError(err error) ErrorKind {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, models.ErrConfigurationMissing):
		return KindConfigurationMissing
	case errors.Is(err, models.ErrUpstreamQuotaExceeded):
		return KindUpstreamQuotaExceeded
	case errors.Is(err, models.ErrUpstreamMalformed):
		return KindUpstreamMalformed
	case errors.Is(err, models.ErrLocationDenied), errors.Is(err, models.ErrLocationUnsupported):
		return KindLocationDenied
	case errors.Is(err, models.ErrLocationTimeout):
		return KindLocationTimeout
	case errors.Is(err, models.ErrLocationNotFound):
		return KindLocationNotFound
	case errors.Is(err, models.ErrNetworkUnavailable):
		return KindNetworkUnavailable
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return KindNetworkUnavailable
	}

	errStr := strings.ToLower(err.Error())
	if strings.Contains(errStr, "timeout") || strings.Contains(errStr, "connection") ||
		strings.Contains(errStr, "network") || strings.Contains(errStr, "no such host") {
		return KindNetworkUnavailable
	}
	if strings.Contains(errStr, "parse") || strings.Contains(errStr, "unmarshal") {
		return KindUpstreamMalformed
	}
	if strings.Contains(errStr, "quota") || strings.Contains(errStr, "rate limit") {
		return KindUpstreamQuotaExceeded
	}

	return KindUnknown
}
