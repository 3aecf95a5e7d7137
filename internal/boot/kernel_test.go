package boot_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/starforth/starforth/internal/boot"
)

func TestKernelNamed(t *testing.T) {
	nom, ok := interface{}(boot.Kernel).(interface{ Name() string })
	require.True(t, ok)
	require.Equal(t, "kernel.fs", nom.Name())
}

func TestKernelWritesDefinitions(t *testing.T) {
	var buf bytes.Buffer
	n, err := boot.Kernel.WriteTo(&buf)
	require.NoError(t, err)
	require.Equal(t, int64(buf.Len()), n)

	src := buf.String()
	for _, word := range []string{": ?DUP", ": 2DUP", ": CELLS", ": SPACES"} {
		require.True(t, strings.Contains(src, word), "kernel source must define %s", word)
	}
}
