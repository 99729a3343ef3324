package semver

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromBitcoindVersion(t *testing.T) {
	assert.Equal(t, NewSemver(0, 17, 1), FromBitcoindVersion(170100))
	assert.Equal(t, NewSemver(0, 21, 2), FromBitcoindVersion(210200))
	assert.Equal(t, NewSemver(25, 1, 0), FromBitcoindVersion(250100))
	assert.Equal(t, "27.0.0", FromBitcoindVersion(270000).String())
}

func TestAtLeast(t *testing.T) {
	min := NewSemver(0, 17, 0)
	assert.True(t, NewSemver(0, 17, 0).AtLeast(min))
	assert.True(t, NewSemver(0, 21, 0).AtLeast(min))
	assert.True(t, NewSemver(25, 0, 0).AtLeast(min))
	assert.False(t, NewSemver(0, 16, 3).AtLeast(min))
}

func TestAnyCompatible(t *testing.T) {
	compatible := []Semver{NewSemver(9, 0, 0), NewSemver(10, 0, 0)}
	assert.True(t, AnyCompatible(compatible, NewSemver(10, 4, 1)))
	assert.False(t, AnyCompatible(compatible, NewSemver(8, 9, 9)))
}
