package svc

import "errors"

var (
	// ErrNoFeedsEnabled means no streaming feed could be built from the config.
	ErrNoFeedsEnabled = errors.New("no price feed enabled")

	ErrRelayInitFailed = errors.New("quote relay initialization failed")
)
