package wasmplugin

import "errors"

var (
	ErrPathRequired                = errors.New("path is required")
	ErrRequiredFunctionNotExported = errors.New("required function not exported")
	ErrSignatureMismatch           = errors.New("export signature mismatch")
	ErrABINotDetected              = errors.New("guest ABI not detected")
	ErrInputTooLarge               = errors.New("input too large")
)
