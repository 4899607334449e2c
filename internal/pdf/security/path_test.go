package security

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPathValidator(t *testing.T) {
	_, err := NewPathValidator("")
	assert.Error(t, err)

	v, err := NewPathValidator("relative/forms")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(v.Root()))
	assert.Equal(t, "forms", filepath.Base(v.Root()))
}

func TestPathValidator_Resolve(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(root, "form.pdf"), []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(outside, "secret.pdf"), []byte("x"), 0o600))

	v, err := NewPathValidator(root)
	require.NoError(t, err)

	tests := []struct {
		name    string
		path    string
		want    string
		wantErr bool
	}{
		{name: "absolute inside", path: filepath.Join(root, "form.pdf"), want: filepath.Join(root, "form.pdf")},
		{name: "relative joins root", path: "form.pdf", want: filepath.Join(root, "form.pdf")},
		{name: "not yet existing output", path: "sub/new/filled.pdf", want: filepath.Join(root, "sub", "new", "filled.pdf")},
		{name: "root itself", path: root, want: root},
		{name: "dot dot escape", path: "../" + filepath.Base(outside) + "/secret.pdf", wantErr: true},
		{name: "absolute outside", path: filepath.Join(outside, "secret.pdf"), wantErr: true},
		{name: "sibling prefix", path: root + "-other/form.pdf", wantErr: true},
		{name: "empty", path: "", wantErr: true},
		{name: "nul byte", path: "form\x00.pdf", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := v.Resolve(tt.path)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPathValidator_SymlinkEscape(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	target := filepath.Join(outside, "secret.pdf")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0o600))

	link := filepath.Join(root, "link.pdf")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	dirLink := filepath.Join(root, "out")
	require.NoError(t, os.Symlink(outside, dirLink))

	v, err := NewPathValidator(root)
	require.NoError(t, err)

	err = v.ValidatePath(link)
	assert.True(t, errors.Is(err, ErrOutsideRoot), "file link: %v", err)

	err = v.ValidatePath(filepath.Join(dirLink, "new.pdf"))
	assert.True(t, errors.Is(err, ErrOutsideRoot), "directory link: %v", err)
}

func TestPathValidator_MissingRootAllowsAll(t *testing.T) {
	v, err := NewPathValidator(filepath.Join(t.TempDir(), "not-created"))
	require.NoError(t, err)
	assert.NoError(t, v.ValidatePath("/etc/hosts"))
}

func TestPathValidator_ErrorMessage(t *testing.T) {
	v, err := NewPathValidator(t.TempDir())
	require.NoError(t, err)

	err = v.ValidatePath("/etc/hosts")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "path is outside configured directory")
}
