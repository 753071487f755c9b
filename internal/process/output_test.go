package process

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readCumulative(t *testing.T, r *outputRecord) string {
	t.Helper()
	b, err := r.cumulative()
	require.NoError(t, err)
	return string(b)
}

func readIncremental(t *testing.T, r *outputRecord) string {
	t.Helper()
	b, err := r.incremental()
	require.NoError(t, err)
	return string(b)
}

func TestOutputRecord_Memory(t *testing.T) {
	r := newOutputRecord(&memBacking{})

	r.observe([]byte("ab"))
	assert.Equal(t, "ab", readIncremental(t, r))
	r.observe([]byte("cd"))
	assert.Equal(t, "cd", readIncremental(t, r))
	assert.Equal(t, "", readIncremental(t, r))
	assert.Equal(t, "abcd", readCumulative(t, r))

	r.observe([]byte("ef"))
	r.clear()
	assert.Equal(t, "", readCumulative(t, r))
	r.observe([]byte("gh"))
	assert.Equal(t, "gh", readCumulative(t, r))
	assert.Equal(t, "", readIncremental(t, r))
	r.observe([]byte("ij"))
	assert.Equal(t, "ij", readIncremental(t, r))
	assert.Equal(t, "ghij", readCumulative(t, r))

	mb := r.store.(*memBacking)
	assert.Equal(t, int64(6), mb.base)
	assert.Equal(t, "ghij", string(mb.buf))
}

func TestOutputRecord_CursorsMonotonic(t *testing.T) {
	r := newOutputRecord(&memBacking{})
	r.observe([]byte("one"))
	r.reset()
	startAfterFirst := r.start
	r.observe([]byte("two"))
	r.clear()
	r.reset()

	assert.GreaterOrEqual(t, r.start, startAfterFirst)
	assert.Equal(t, r.end, r.read)
	assert.Equal(t, "", readCumulative(t, r))
	r.observe([]byte("three"))
	assert.Equal(t, "three", readCumulative(t, r))
}

func TestOutputRecord_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stdout")
	w, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	require.NoError(t, err)
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	r := newOutputRecord(&fileBacking{f: f})
	write := func(s string) {
		_, err := w.WriteString(s)
		require.NoError(t, err)
		r.observe([]byte(s))
	}

	write("hello\n")
	assert.Equal(t, "hello\n", readCumulative(t, r))
	write("world\n")
	assert.Equal(t, "world\n", readIncremental(t, r))
	r.clear()
	write("again\n")
	assert.Equal(t, "again\n", readCumulative(t, r))
	require.NoError(t, w.Close())

	// A new run truncates the file in place; the tail handle stays valid.
	r.reset()
	w, err = os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0o600)
	require.NoError(t, err)
	defer w.Close()
	write("second\n")
	assert.Equal(t, "second\n", readCumulative(t, r))
	assert.Equal(t, "", readIncremental(t, r))
}

func TestTrimLineTerminator(t *testing.T) {
	lt := "\n"
	if runtime.GOOS == "windows" {
		lt = "\r\n"
	}
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"hello", "hello"},
		{"hello" + lt, "hello"},
		{"hello" + lt + lt, "hello" + lt},
		{lt, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, trimLineTerminator(tt.in), "input %q", tt.in)
	}
}
