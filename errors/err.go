package errors

import (
	"fmt"
)

var (
	ErrInvalidConfig = fmt.Errorf("memengine: invalid config")
	ErrValidation    = fmt.Errorf("memengine: validation failed")
	ErrNotFound      = fmt.Errorf("memengine: not found")
	ErrDuplicate     = fmt.Errorf("memengine: duplicate id")
	ErrPersistence   = fmt.Errorf("memengine: persistence failed")
	ErrProvider      = fmt.Errorf("memengine: provider failed")
)
