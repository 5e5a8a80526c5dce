package supervisor

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTeardownReleasesInReverseOrder(t *testing.T) {
	td := NewTeardown(time.Second)
	var order []string
	for _, name := range []string{"a", "b", "c"} {
		name := name
		td.AddFunc(name, func() error {
			order = append(order, name)
			return nil
		})
	}

	assert.Equal(t, []string{"a", "b", "c"}, td.Names())
	assert.Empty(t, td.Release())
	assert.Equal(t, []string{"c", "b", "a"}, order)
	assert.Empty(t, td.Names())
	assert.Empty(t, td.Release())
}

func TestTeardownCollectsErrors(t *testing.T) {
	td := NewTeardown(time.Second)
	td.AddFunc("ok", func() error { return nil })
	td.AddFunc("bad", func() error { return errors.New("busy") })
	td.AddFunc("panics", func() error { panic("boom") })

	errs := td.Release()
	require.Len(t, errs, 2)
	assert.Contains(t, errs[0].Error(), "panic releasing panics")
	assert.EqualError(t, errs[1], "release bad: busy")
}

func TestTeardownTimeout(t *testing.T) {
	td := NewTeardown(50 * time.Millisecond)
	block := make(chan struct{})
	defer close(block)
	td.AddFunc("stuck", func() error {
		<-block
		return nil
	})

	errs := td.Release()
	require.NotEmpty(t, errs)
	assert.ErrorIs(t, errs[len(errs)-1], ErrTeardownTimeout)
}

func TestTeardownDefaultTimeout(t *testing.T) {
	assert.Equal(t, DefaultTeardownTimeout, NewTeardown(0).timeout)
}
