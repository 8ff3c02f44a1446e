package secret

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewCopiesAndZeroWipes(t *testing.T) {
	src := []byte("hunter2")
	s := New(src)
	assert.Equal(t, "hunter2", string(s.Bytes()))

	// Mutating the original does not affect the copy.
	src[0] = 'X'
	assert.Equal(t, "hunter2", string(s.Bytes()))

	s.Zero()
	for _, b := range s.Bytes() {
		assert.Equal(t, byte(0), b)
	}
}

func TestFromString(t *testing.T) {
	s := FromString("correct horse battery staple")
	assert.Equal(t, "correct horse battery staple", string(s.Bytes()))
}

func TestEqual(t *testing.T) {
	a := FromString("same")
	b := FromString("same")
	c := FromString("different")

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}

func TestNilSecretIsSafe(t *testing.T) {
	var s *Secret
	assert.Equal(t, 0, s.Len())
	assert.Nil(t, s.Bytes())
	assert.NotPanics(t, s.Zero)
}

func TestRandomProducesDistinctOutput(t *testing.T) {
	a, err := Random(16)
	assert.NoError(t, err)
	b, err := Random(16)
	assert.NoError(t, err)
	assert.Len(t, a, 16)
	assert.NotEqual(t, a, b)
}

func TestWipe(t *testing.T) {
	b := []byte{1, 2, 3, 4}
	Wipe(b)
	assert.Equal(t, []byte{0, 0, 0, 0}, b)
}
