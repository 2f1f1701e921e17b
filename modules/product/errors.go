package product

import "errors"

// Errors reported by the controller.
var (
	ErrMissingImage   = errors.New("no image selected")
	ErrInvalidProduct = errors.New("product name is required")
	ErrUploadFailed   = errors.New("image upload failed")
)

// Messages shown to users for the client-side failures.
const (
	MsgMissingImage   = "Please select an image first"
	MsgInvalidProduct = "Product name is required"
)
