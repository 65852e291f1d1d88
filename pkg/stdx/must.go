package stdx

// Must0 panics when err is not nil. Use it at setup time for operations
// that are not expected to fail.
func Must0(err error) {
	if err != nil {
		panic(err)
	}
}

// Must1 returns v when err is nil and panics otherwise. It collapses the
// common (value, error) return shape at call sites where an error indicates
// a programming mistake rather than a runtime condition.
func Must1[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}
