package checksum

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompute_SHA256(t *testing.T) {
	got, err := Compute("sha256", []byte("hello\n"))
	require.NoError(t, err)

	want := fmt.Sprintf("%x", sha256.Sum256([]byte("hello\n")))
	assert.Equal(t, want, got)
}

func TestCompute_AllRegisteredAlgorithms(t *testing.T) {
	for _, alg := range []string{"md5", "sha1", "sha256", "sha512"} {
		got, err := Compute(alg, []byte("content"))
		require.NoError(t, err, alg)
		assert.NotEmpty(t, got, alg)
		assert.True(t, Supported(alg))
	}
}

func TestCompute_UnknownAlgorithm(t *testing.T) {
	_, err := Compute("keccak1337", []byte("content"))
	require.Error(t, err)

	var missing *MissingAlgorithmError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "keccak1337", missing.Algorithm)
	assert.False(t, Supported("keccak1337"))
}

func TestCompute_EmptyInput(t *testing.T) {
	got, err := Compute("sha256", nil)
	require.NoError(t, err)

	want := fmt.Sprintf("%x", sha256.Sum256(nil))
	assert.Equal(t, want, got)
}
