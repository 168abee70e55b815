package scheduler

// Future is a single-shot completion flag with an outcome.
// It is resolved from scheduler callbacks and awaited with DoEventLoop.
type Future struct {
	done bool
	err  error
}

// Resolve resolves the future. Only the first call has effect.
func (f *Future) Resolve(err error) {
	if f.done {
		return
	}
	f.done = true
	f.err = err
}

// Done reports whether the future has been resolved.
func (f *Future) Done() bool {
	return f.done
}

// Err returns the outcome of a resolved future.
func (f *Future) Err() error {
	return f.err
}
