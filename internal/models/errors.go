package models

import "errors"

var (
	ErrLocationDenied        = errors.New("location permission denied")
	ErrLocationTimeout       = errors.New("location request timed out")
	ErrLocationUnsupported   = errors.New("location unavailable")
	ErrLocationNotFound      = errors.New("location not found")
	ErrNetworkUnavailable    = errors.New("network unavailable")
	ErrUpstreamMalformed     = errors.New("upstream response malformed")
	ErrUpstreamQuotaExceeded = errors.New("upstream quota exceeded")
	ErrConfigurationMissing  = errors.New("configuration missing")
)
