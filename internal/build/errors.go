package build

import "errors"

// ErrBuildInProgress is returned when a build is requested while another
// one is still running on the same Engine.
var ErrBuildInProgress = errors.New("build already in progress")
