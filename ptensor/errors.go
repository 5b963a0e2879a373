package ptensor

import (
	"errors"
	"fmt"

	"github.com/IanQS/pTensor/core/ckkswrapper"
)

var (
	ErrNotEncrypted     = errors.New("ptensor: operation requires an encrypted tensor")
	ErrAlreadyEncrypted = errors.New("ptensor: tensor is already encrypted")
	ErrUnencrypted      = errors.New("ptensor: unsupported on unencrypted data")
	ErrInvalidAxis      = errors.New("ptensor: invalid axis")
	ErrInvalidOp        = errors.New("ptensor: invalid op")
	ErrInvalidOperand   = errors.New("ptensor: invalid operand")
	ErrNotVector        = errors.New("ptensor: operand is not a vector")
	ErrEmptyTensor      = errors.New("ptensor: empty tensor")
	ErrShapeMismatch    = errors.New("ptensor: shape mismatch")
	ErrMixedForms       = errors.New("ptensor: cannot combine plaintext and ciphertext tensors")

	ErrWindowOverflow = ckkswrapper.ErrWindowOverflow
	ErrNoSecretKey    = ckkswrapper.ErrNoSecretKey
)

// BroadcastError reports two shapes whose rows cannot be stretched onto each
// other.
type BroadcastError struct {
	Left, Right Shape
}

func (e *BroadcastError) Error() string {
	return fmt.Sprintf("Broadcasting error. The given tensors have incompatible shapes. "+
		"Tensor1: (%d, %d) Tensor 2: (%d, %d)", e.Left.Rows, e.Left.Cols, e.Right.Rows, e.Right.Cols)
}
