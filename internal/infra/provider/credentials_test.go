package provider

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/domain"
)

func TestSecretEncryption_RoundTrip(t *testing.T) {
	sealed, err := EncryptSecret("sk-live-secret", "correct horse battery staple")
	require.NoError(t, err)
	require.True(t, IsEncryptedSecret(sealed))

	plaintext, err := DecryptSecret(sealed, "correct horse battery staple")
	require.NoError(t, err)
	require.Equal(t, "sk-live-secret", plaintext)

	_, err = DecryptSecret(sealed, "wrong passphrase")
	require.Error(t, err)

	_, err = DecryptSecret(SecretCipherPrefix+"not base64!!", "x")
	require.Error(t, err)
}

func TestCredentialResolution_PrecedenceOrder(t *testing.T) {
	ctx := context.Background()
	secretFile := writeSecretFile(t, `
[tensorrack]
project_id = "proj-from-file"
secret_key = "sk-from-file"
`)

	settings := &fakeSettings{values: map[string]string{
		domain.ProviderSettingKey(TensorRackCode, FieldProjectID): "proj-from-settings",
	}}
	r := credentialResolver{
		settings: settings,
		cfg: CredentialConfig{
			Env: map[string]map[string]string{
				TensorRackCode: {
					FieldProjectID: "proj-from-env",
					FieldSecretKey: "sk-from-env",
				},
			},
			SecretFile: secretFile,
		},
	}

	// Settings beat the environment, the environment beats the file.
	value, err := r.resolve(ctx, TensorRackCode, FieldProjectID)
	require.NoError(t, err)
	require.Equal(t, "proj-from-settings", value)

	value, err = r.resolve(ctx, TensorRackCode, FieldSecretKey)
	require.NoError(t, err)
	require.Equal(t, "sk-from-env", value)

	r.cfg.Env = nil
	value, err = r.resolve(ctx, TensorRackCode, FieldSecretKey)
	require.NoError(t, err)
	require.Equal(t, "sk-from-file", value)
}

func TestCredentialResolution_MissingNamesEverySource(t *testing.T) {
	secretFile := writeSecretFile(t, "[tensorrack]\nproject_id = \"p\"\n")
	r := credentialResolver{
		settings: &fakeSettings{},
		cfg:      CredentialConfig{SecretFile: secretFile},
	}

	_, err := r.resolve(context.Background(), TensorRackCode, FieldSecretKey)
	require.Error(t, err)
	require.Equal(t, domain.CodeConfiguration, domain.CodeOf(err))
	require.Contains(t, err.Error(), "settings key provider.tensorrack.secret_key")
	require.Contains(t, err.Error(), "INVENTIV_PROVIDERS_TENSORRACK_SECRET_KEY")
	require.Contains(t, err.Error(), secretFile)
}

func TestCredentialResolution_DecryptsSettingsValue(t *testing.T) {
	ctx := context.Background()
	sealed, err := EncryptSecret("sk-live-secret", "passphrase-1")
	require.NoError(t, err)

	passphraseFile := filepath.Join(t.TempDir(), "passphrase")
	require.NoError(t, os.WriteFile(passphraseFile, []byte("passphrase-1\n"), 0o600))

	settings := &fakeSettings{values: map[string]string{
		domain.ProviderSettingKey(TensorRackCode, FieldSecretKey): sealed,
	}}

	r := credentialResolver{
		settings: settings,
		cfg:      CredentialConfig{PassphraseFile: passphraseFile},
	}
	value, err := r.resolve(ctx, TensorRackCode, FieldSecretKey)
	require.NoError(t, err)
	require.Equal(t, "sk-live-secret", value)

	// Without a passphrase source the encrypted value is unusable and the
	// error says what to configure.
	r.cfg.PassphraseFile = ""
	_, err = r.resolve(ctx, TensorRackCode, FieldSecretKey)
	require.Error(t, err)
	require.Equal(t, domain.CodeConfiguration, domain.CodeOf(err))
	require.Contains(t, err.Error(), "passphrase")
}

func writeSecretFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "providers.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

type fakeSettings struct {
	values map[string]string
}

func (f *fakeSettings) GetSetting(_ context.Context, key string) (string, bool, error) {
	value, ok := f.values[key]
	return value, ok, nil
}

func (f *fakeSettings) set(key, value string) {
	if f.values == nil {
		f.values = map[string]string{}
	}
	f.values[key] = value
}
