// Package hook provides a small Try/Catch/Finally wrapper used around a
// coordinator run: the run is attempted, any error it returns is handled,
// and cleanup (such as dumping failed steps' logs) runs afterward,
// regardless of outcome.
package hook

import "fmt"

// Interface is implemented by anything that wants Try/Catch/Finally
// semantics around a guarded block of work.
type Interface interface {
	// Try performs the guarded work and returns any error it encountered.
	Try() error
	// Catch is invoked with Try's error when it returns non-nil; its
	// return value becomes Call's return value.
	Catch(err error) error
	// Finally always runs, after Try/Catch, success or failure.
	Finally()
}

// Call runs hook.Try, routes any error through hook.Catch, and always runs
// hook.Finally, converting a panic inside Try into an error rather than
// propagating it.
func Call(hook Interface) (err error) {
	if hook == nil {
		return fmt.Errorf("hook cannot be nil")
	}

	defer hook.Finally()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic occurred during hook execution: %v", r)
		}
	}()

	tryErr := hook.Try()
	if tryErr != nil {
		err = hook.Catch(tryErr)
		return err
	}

	return nil
}
