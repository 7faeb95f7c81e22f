package secrets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandString(t *testing.T) {
	t.Setenv("SIGSCOPE_TEST_TOKEN", "s3cret")
	t.Setenv("SIGSCOPE_TEST_EMPTY", "")

	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"empty", "", "", false},
		{"literal", "plain", "plain", false},
		{"variable", "${SIGSCOPE_TEST_TOKEN}", "s3cret", false},
		{"embedded", "pre-${SIGSCOPE_TEST_TOKEN}-post", "pre-s3cret-post", false},
		{"default used", "${SIGSCOPE_TEST_UNSET:-fallback}", "fallback", false},
		{"empty default", "${SIGSCOPE_TEST_EMPTY:-}", "", false},
		{"missing", "${SIGSCOPE_TEST_UNSET}", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExpandString(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "SIGSCOPE_TEST_UNSET")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReadFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	write := func(name, content string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
		return p
	}

	got, err := ReadFile(write("pw", " pass word \n"))
	require.NoError(t, err)
	assert.Equal(t, " pass word ", got)

	_, err = ReadFile(write("empty", "\n"))
	require.Error(t, err)

	_, err = ReadFile(filepath.Join(dir, "missing"))
	require.Error(t, err)

	_, err = ReadFile(dir)
	require.Error(t, err)

	_, err = ReadFile("")
	require.Error(t, err)

	big := make([]byte, maxSecretFileSize+1)
	_, err = ReadFile(write("big", string(big)))
	require.Error(t, err)
}

func TestResolvePrefersFile(t *testing.T) {
	t.Setenv("SIGSCOPE_TEST_PW", "from-env")

	p := filepath.Join(t.TempDir(), "pw")
	require.NoError(t, os.WriteFile(p, []byte("from-file\n"), 0o600))

	got, err := Resolve(p, "${SIGSCOPE_TEST_PW}")
	require.NoError(t, err)
	assert.Equal(t, "from-file", got)

	got, err = Resolve("", "${SIGSCOPE_TEST_PW}")
	require.NoError(t, err)
	assert.Equal(t, "from-env", got)

	got, err = Resolve("", "")
	require.NoError(t, err)
	assert.Empty(t, got)
}
