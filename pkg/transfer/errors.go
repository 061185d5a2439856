package transfer

import "github.com/pkg/errors"

// ErrSourceUnavailable marks a structural failure: the source database
// cannot be reached or does not exist, so no unit was ever attempted.
// Callers map it to a distinct exit status.
var ErrSourceUnavailable = errors.New("source database unavailable")
