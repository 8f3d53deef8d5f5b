package rdm

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func Test_Namespace_Register_and_Lookup(t *testing.T) {
	ns := NewNamespace()
	_, ok := ns.Lookup("echo")
	assert.False(t, ok)

	ns.RegisterFunc("echo", func(args []interface{}) (interface{}, error) { return args, nil })
	ns.Register("zero", func(args []interface{}) Result { return Value(0) })
	assert.Equal(t, []string{"echo", "zero"}, ns.Names())

	m, ok := ns.Lookup("echo")
	assert.True(t, ok)
	assert.Equal(t, Value([]interface{}{1}), invoke(m, []interface{}{1}))

	ns.Unregister("echo")
	_, ok = ns.Lookup("echo")
	assert.False(t, ok)

	var nilNS *Namespace
	_, ok = nilNS.Lookup("echo")
	assert.False(t, ok)
}

func Test_Namespace_Register_nil_panics(t *testing.T) {
	assert.Panics(t, func() { NewNamespace().Register("x", nil) })
}

func Test_invoke_recovers_error_panic(t *testing.T) {
	boom := errors.New("boom")
	r := invoke(func(args []interface{}) Result { panic(boom) }, nil)
	im, ok := r.(Immediate)
	assert.True(t, ok)
	assert.Equal(t, boom, errors.Cause(im.Err))
}
