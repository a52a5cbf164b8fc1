package entity

import "errors"

// Sentinel errors shared by the server and the client-side core. Wrap them with
// fmt.Errorf("...: %w", err) and compare with errors.Is.
var (
	// Quantity errors
	ErrInvalidQuantity       = errors.New("invalid quantity")
	ErrQuantityOutOfBounds   = errors.New("quantity out of bounds")
	ErrQuantityStepViolation = errors.New("quantity is not a multiple of the product step")

	// Catalog errors
	ErrProductNotFound = errors.New("product not found")
	ErrOutOfStock      = errors.New("product out of stock")
	ErrInvalidProduct  = errors.New("invalid product")

	// Cart and order errors
	ErrCartLineNotFound    = errors.New("cart line not found")
	ErrEmptyCart           = errors.New("cart is empty")
	ErrOrderNotFound       = errors.New("order not found")
	ErrIdempotentKeyExists = errors.New("idempotent key already exists")

	// Transport and persistence errors
	ErrUnauthorized            = errors.New("unauthorized")
	ErrRemoteUnavailable       = errors.New("remote unavailable")
	ErrMalformedPersistedState = errors.New("malformed persisted state")
)

// Error codes carried in API error bodies so clients can map a response back
// to the sentinel that produced it.
const (
	CodeInvalidQuantity       = "invalid_quantity"
	CodeQuantityOutOfBounds   = "quantity_out_of_bounds"
	CodeQuantityStepViolation = "quantity_step_violation"
	CodeProductNotFound       = "product_not_found"
	CodeOutOfStock            = "out_of_stock"
	CodeInvalidProduct        = "invalid_product"
	CodeCartLineNotFound      = "cart_line_not_found"
	CodeEmptyCart             = "empty_cart"
	CodeOrderNotFound         = "order_not_found"
	CodeIdempotentKeyExists   = "idempotent_key_exists"
	CodeUnauthorized          = "unauthorized"
	CodeInternal              = "internal"
	CodeInvalidRequest        = "invalid_request"
)

var codeErrors = map[string]error{
	CodeInvalidQuantity:       ErrInvalidQuantity,
	CodeQuantityOutOfBounds:   ErrQuantityOutOfBounds,
	CodeQuantityStepViolation: ErrQuantityStepViolation,
	CodeProductNotFound:       ErrProductNotFound,
	CodeOutOfStock:            ErrOutOfStock,
	CodeInvalidProduct:        ErrInvalidProduct,
	CodeCartLineNotFound:      ErrCartLineNotFound,
	CodeEmptyCart:             ErrEmptyCart,
	CodeOrderNotFound:         ErrOrderNotFound,
	CodeIdempotentKeyExists:   ErrIdempotentKeyExists,
	CodeUnauthorized:          ErrUnauthorized,
}

// ErrorForCode returns the sentinel for an API error code, or nil if the code is unknown.
func ErrorForCode(code string) error {
	return codeErrors[code]
}

// CodeForError returns the API error code for err, falling back to CodeInternal.
func CodeForError(err error) string {
	for code, sentinel := range codeErrors {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return CodeInternal
}
