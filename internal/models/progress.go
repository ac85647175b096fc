package models

// ProgressFunc receives a normalized progress value in [0,1] and a short
// status string. It is optional, synchronous and fire-and-forget, and may be
// called from a goroutine other than the one that started the operation.
type ProgressFunc func(progress float64, status string)

// Report calls f if it is set.
func (f ProgressFunc) Report(progress float64, status string) {
	if f != nil {
		f(progress, status)
	}
}
