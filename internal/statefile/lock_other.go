//go:build !unix

package statefile

import "os"

// Advisory locking is only implemented on unix; elsewhere runs are not
// serialized.
func tryLock(*os.File) (bool, error) { return true, nil }

func unlock(*os.File) error { return nil }
