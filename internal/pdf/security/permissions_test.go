package security

import (
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromP(t *testing.T) {
	tests := []struct {
		name string
		p    int32
		want Permissions
	}{
		{name: "all bits", p: -1, want: FullPermissions},
		{name: "none", p: -4096, want: Permissions{}},
		{name: "reserved bits only", p: -3904, want: Permissions{}},
		{name: "print only", p: -4092, want: Permissions{Print: true}},
		{name: "fill forms only", p: -3840, want: Permissions{FillForms: true}},
		{name: "print and fill forms", p: -3836, want: Permissions{Print: true, FillForms: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FromP(tt.p))
		})
	}
}

func TestPermissions_AllowsFill(t *testing.T) {
	tests := []struct {
		name          string
		perms         Permissions
		native, drawn bool
	}{
		{name: "full", perms: FullPermissions, native: true, drawn: true},
		{name: "fill forms only", perms: Permissions{FillForms: true}, native: true, drawn: false},
		{name: "annotate only", perms: Permissions{Annotate: true}, native: true, drawn: false},
		{name: "modify only", perms: Permissions{Modify: true}, native: false, drawn: true},
		{name: "nothing", perms: Permissions{}, native: false, drawn: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.native, tt.perms.AllowsFill(true))
			assert.Equal(t, tt.drawn, tt.perms.AllowsFill(false))
		})
	}
}

func TestPermissions_String(t *testing.T) {
	assert.Equal(t, "none", Permissions{}.String())
	assert.Equal(t, "print, fill_forms", Permissions{Print: true, FillForms: true}.String())
}

func TestReadPermissions_Unencrypted(t *testing.T) {
	perms, encrypted, err := ReadPermissions(nil)
	require.NoError(t, err)
	assert.False(t, encrypted)
	assert.Equal(t, FullPermissions, perms)

	perms, encrypted, err = ReadPermissions(&model.Context{XRefTable: &model.XRefTable{}})
	require.NoError(t, err)
	assert.False(t, encrypted)
	assert.Equal(t, FullPermissions, perms)
}
