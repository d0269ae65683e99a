package domain

import "errors"

var (
	// ErrInsufficientCash rejects a buy whose notional plus commission exceeds
	// available cash. Raised before any state mutation.
	ErrInsufficientCash = errors.New("insufficient cash")

	// ErrInsufficientPosition rejects a sell larger than the current long
	// position. Raised before any state mutation.
	ErrInsufficientPosition = errors.New("insufficient position")

	// ErrRealTradingLocked is a configuration error: a non-paper broker was
	// requested without the explicit environment unlock.
	ErrRealTradingLocked = errors.New("real trading is locked; set REAL_TRADING_ENABLED=1 to unlock")
)
