package idl

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDir_RegistersEachSchemaFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/idls/token.json", []byte(`{
		"version": "0.1.0",
		"address": "Token1111111111111111111111111111111111111",
		"events": [{"name": "Transfer", "fields": [{"name": "amount", "type": "u64"}]}]
	}`), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/idls/vault.json", []byte(`{
		"version": "0.1.0",
		"address": "Vault1111111111111111111111111111111111111",
		"events": [{"name": "Deposit", "fields": [{"name": "amount", "type": "u64"}]}]
	}`), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/idls/README.md", []byte("ignore me"), 0o644))

	reg, err := LoadDir(fs, "/idls")
	require.NoError(t, err)
	assert.Equal(t, 2, reg.Len())

	_, ok := reg.Get("Token1111111111111111111111111111111111111")
	assert.True(t, ok)
	_, ok = reg.Get("Vault1111111111111111111111111111111111111")
	assert.True(t, ok)
}

func TestLoadDir_ErrorsOnMalformedSchema(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/idls/broken.json", []byte(`{not json`), 0o644))

	_, err := LoadDir(fs, "/idls")
	assert.Error(t, err)
}
