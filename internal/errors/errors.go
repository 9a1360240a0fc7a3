// Package errors is the project-wide errors package. It re-exports the
// standard helpers so call sites import a single package, and adds a
// categorized error used at component boundaries.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Is reports whether any error in err's tree matches target.
func Is(err, target error) bool { return stderrors.Is(err, target) }

// As finds the first error in err's tree that matches target.
func As(err error, target any) bool { return stderrors.As(err, target) }

// New returns an error with the given text.
func New(text string) error { return stderrors.New(text) }

// Join wraps the given errors, discarding nils.
func Join(errs ...error) error { return stderrors.Join(errs...) }

// Unwrap returns the result of calling Unwrap on err, if any.
func Unwrap(err error) error { return stderrors.Unwrap(err) }

// Category groups errors by the subsystem that produced them.
type Category string

const (
	CategoryNetwork    Category = "network"
	CategoryStorage    Category = "storage"
	CategoryConfig     Category = "configuration"
	CategoryLifecycle  Category = "lifecycle"
	CategoryValidation Category = "validation"
)

// CategorizedError tags an underlying error with a category and component.
type CategorizedError struct {
	Category  Category
	Component string
	Err       error
}

func (e *CategorizedError) Error() string {
	if e.Component == "" {
		return fmt.Sprintf("%s: %v", e.Category, e.Err)
	}
	return fmt.Sprintf("%s (%s): %v", e.Component, e.Category, e.Err)
}

func (e *CategorizedError) Unwrap() error { return e.Err }

// Categorize wraps err with a category. A nil err returns nil.
func Categorize(err error, category Category, component string) error {
	if err == nil {
		return nil
	}
	return &CategorizedError{Category: category, Component: component, Err: err}
}

// CategoryOf returns the category of the first CategorizedError in err's tree.
func CategoryOf(err error) (Category, bool) {
	var ce *CategorizedError
	if As(err, &ce) {
		return ce.Category, true
	}
	return "", false
}
