package ftsboot

// retry runs fn until it succeeds or has been called attempts times.
// The attempt number passed to fn starts at 0. If every attempt fails the
// returned *RetryError wraps the error of the last one.
func retry(attempts int, fn func(attempt int) error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(i); err == nil {
			return nil
		}
	}
	return &RetryError{Attempts: attempts, Err: err}
}
