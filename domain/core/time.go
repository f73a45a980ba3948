package core

import "time"

// Now returns the current UTC time. Centralized so the pipeline and the run
// ledger stamp timestamps consistently.
func Now() time.Time {
	return time.Now().UTC()
}
