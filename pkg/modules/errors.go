package modules

import "errors"

var (
	ErrUnknownModule = errors.New("unknown module")

	ErrDocumentsRequired = errors.New("document store is required")
)
