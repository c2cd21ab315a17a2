package store

import "fmt"

// ErrType is a small closed set of store error kinds.
type ErrType uint32

const (
	// KeyNotFound means the requested entry does not exist.
	KeyNotFound ErrType = iota
	// BrokenChain means a parent link referenced by path walking is
	// missing: an unrecoverable storage corruption condition.
	BrokenChain
)

// Err is a typed store error carrying the offending key.
type Err struct {
	Type ErrType
	Key  string
}

// NewErr constructs an Err.
func NewErr(t ErrType, key string) Err {
	return Err{Type: t, Key: key}
}

func (e Err) Error() string {
	switch e.Type {
	case KeyNotFound:
		return fmt.Sprintf("%s: not found", e.Key)
	case BrokenChain:
		return fmt.Sprintf("%s: broken parent chain", e.Key)
	default:
		return fmt.Sprintf("%s: store error", e.Key)
	}
}

// Is reports whether err is an Err of the given type.
func Is(err error, t ErrType) bool {
	se, ok := err.(Err)
	return ok && se.Type == t
}
