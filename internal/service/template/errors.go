package template

import "errors"

// Sentinel errors for the template service layer.
var (
	ErrNotFound         = errors.New("template not found")
	ErrPermissionDenied = errors.New("template is not owned by this company")
	ErrTemplateInUse    = errors.New("template is referenced by an active campaign")
)
