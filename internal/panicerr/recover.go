// Package panicerr turns a goroutine's panic or runtime.Goexit into an
// ordinary error return, so a corrupted arena or a primitive bug surfaces
// through VM.Interpret's error return like any other interpretation
// failure, never as a crash of the embedding process.
package panicerr

// Recover runs f in a new goroutine, turning any panic or runtime.Goexit
// escaping it into a non-nil error return instead. VM.Interpret wraps the
// outer interpreter loop in this on every call.
func Recover(name string, f func() error) error {
	errch := make(chan error, 1)
	go func() {
		defer close(errch)
		defer recoverExitError(name, errch)
		defer recoverPanicError(name, errch)
		errch <- f()
	}()
	return <-errch
}
