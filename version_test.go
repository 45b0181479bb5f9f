package ivbridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVersion(t *testing.T) {
	tests := []struct {
		in   string
		want Version
	}{
		{"1.2.3", Version{1, 2, 3}},
		{"1.2", Version{1, 2, -1}},
		{"1", Version{1, -1, -1}},
		{"2.1.0-beta", Version{2, 1, 0}},
		{"0.0.0", Version{0, 0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseVersion(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, MustParseVersion(got.String()))
		})
	}

	for _, bad := range []string{"", "v1", "abc", "-1", "1.-2"} {
		_, err := ParseVersion(bad)
		assert.Error(t, err, bad)
	}
	assert.Panics(t, func() { MustParseVersion("x.y") })
}

func TestVersionCompare(t *testing.T) {
	v := MustParseVersion("1.4.2")
	assert.Equal(t, 0, v.Compare(Version{1, 4, 2}))
	assert.Equal(t, -1, v.Compare(Version{1, 5, 0}))
	assert.Equal(t, 1, v.Compare(Version{1, 4, 1}))
	assert.Equal(t, -1, v.Compare(Version{2, 0, 0}))
	assert.Equal(t, 1, v.Compare(Version{1, 4, -1}))
}

func TestVersionCompatibleWith(t *testing.T) {
	assert.True(t, MustParseVersion("1.9.3").CompatibleWith(ContractVersion))
	assert.True(t, ContractVersion.CompatibleWith(ContractVersion))
	assert.False(t, MustParseVersion("2.0").CompatibleWith(ContractVersion))
	assert.False(t, MustParseVersion("0.9").CompatibleWith(ContractVersion))
}

func TestVersionString(t *testing.T) {
	assert.Equal(t, "1.2.3", Version{1, 2, 3}.String())
	assert.Equal(t, "1.2", Version{1, 2, -1}.String())
	assert.Equal(t, "1", Version{1, -1, -1}.String())
	assert.Equal(t, "1.0", ContractVersion.String())
}
