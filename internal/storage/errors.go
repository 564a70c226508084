package storage

import "errors"

// ErrNoAnalysis is returned when a trade has no stored P/L analysis.
var ErrNoAnalysis = errors.New("no P/L analysis found")

// ErrTradeNotFound is returned when a trade id does not exist.
var ErrTradeNotFound = errors.New("trade not found")
