package feed

import "errors"

var (
	ErrTimeout    = errors.New("feed source timed out")
	ErrHTTPStatus = errors.New("unexpected HTTP status")
	ErrParse      = errors.New("failed to parse feed")
	ErrScript     = errors.New("feed script failed")
	ErrNoSource   = errors.New("feed has neither URL nor script")
	ErrTooLarge   = errors.New("document too large")
)
