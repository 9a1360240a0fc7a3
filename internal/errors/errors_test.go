package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCategorize(t *testing.T) {
	t.Parallel()

	base := New("disk full")
	err := Categorize(base, CategoryStorage, "datastore")

	assert.True(t, Is(err, base), "categorized error must unwrap to its cause")
	assert.Equal(t, "datastore (storage): disk full", err.Error())

	cat, ok := CategoryOf(fmt.Errorf("put entry: %w", err))
	assert.True(t, ok)
	assert.Equal(t, CategoryStorage, cat)
}

func TestCategorize_Nil(t *testing.T) {
	t.Parallel()
	assert.NoError(t, Categorize(nil, CategoryNetwork, "fetch"))

	_, ok := CategoryOf(New("plain"))
	assert.False(t, ok)
}
