// Copyright 2025 The neocore Authors
package consensus

import "errors"

// ErrNoValidators is returned by New when Config.Validators is empty.
var ErrNoValidators = errors.New("consensus: no validators configured")
