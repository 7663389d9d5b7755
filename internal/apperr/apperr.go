// internal/apperr/apperr.go

package apperr

import "fmt"

type ErrorType int

const (
	ConfigNotFound ErrorType = iota
	ConfigNoMatch
	IdentityUnavailable
	NetworkUnavailable
	SocketError
	ProtocolError
	WriteStalled

	// Overflow oznacza przycięcie bufora: polityka, nie awaria
	Overflow
)

// AppError niesie typ błędu razem z komunikatem i przyczyną
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(errType ErrorType, message string, err error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Err:     err,
	}
}

// Is pozwala na errors.Is z wzorcem o tym samym typie
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Type == e.Type
}

// IsType sprawdza czy błąd (lub jego przyczyna) jest danym typem
func IsType(err error, errType ErrorType) bool {
	for err != nil {
		if ae, ok := err.(*AppError); ok {
			return ae.Type == errType
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
