package provider

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"golang.org/x/crypto/scrypt"

	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/domain"
)

// SecretCipherPrefix marks a credential value encrypted at rest. The
// payload is base64(salt[16] | nonce[12] | AES-256-GCM ciphertext) with the
// key derived from a passphrase by scrypt.
const SecretCipherPrefix = "enc:v1:"

const (
	secretSaltLen  = 16
	secretNonceLen = 12

	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
)

// Credential field names shared by settings keys, environment keys and
// secret-file tables.
const (
	FieldProjectID = "project_id"
	FieldSecretKey = "secret_key"
	FieldBaseURL   = "base_url"
)

// CredentialConfig is the non-datastore side of credential resolution,
// produced by the configuration layer.
type CredentialConfig struct {
	// Env holds environment-sourced values per provider code and field.
	Env map[string]map[string]string
	// SecretFile is a TOML file of per-provider credential tables,
	// consulted after the environment.
	SecretFile string
	// PassphraseFile holds the passphrase unlocking enc:v1: values.
	PassphraseFile string
}

func (c CredentialConfig) env(providerCode, field string) string {
	return c.Env[providerCode][field]
}

// IsEncryptedSecret reports whether value carries the at-rest cipher
// prefix.
func IsEncryptedSecret(value string) bool {
	return strings.HasPrefix(value, SecretCipherPrefix)
}

// EncryptSecret seals plaintext under the passphrase. agentsctl uses this
// to prepare values safe to store in the shared settings table.
func EncryptSecret(plaintext, passphrase string) (string, error) {
	salt := make([]byte, secretSaltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	aead, err := secretAEAD(passphrase, salt)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, secretNonceLen)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := aead.Seal(nil, nonce, []byte(plaintext), nil)

	payload := make([]byte, 0, len(salt)+len(nonce)+len(sealed))
	payload = append(payload, salt...)
	payload = append(payload, nonce...)
	payload = append(payload, sealed...)
	return SecretCipherPrefix + base64.StdEncoding.EncodeToString(payload), nil
}

// DecryptSecret opens an enc:v1: value.
func DecryptSecret(value, passphrase string) (string, error) {
	payload, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, SecretCipherPrefix))
	if err != nil {
		return "", fmt.Errorf("decode encrypted secret: %w", err)
	}
	if len(payload) < secretSaltLen+secretNonceLen+1 {
		return "", fmt.Errorf("encrypted secret too short (%d bytes)", len(payload))
	}
	salt := payload[:secretSaltLen]
	nonce := payload[secretSaltLen : secretSaltLen+secretNonceLen]
	sealed := payload[secretSaltLen+secretNonceLen:]

	aead, err := secretAEAD(passphrase, salt)
	if err != nil {
		return "", err
	}
	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("open encrypted secret: %w", err)
	}
	return string(plaintext), nil
}

func secretAEAD(passphrase string, salt []byte) (cipher.AEAD, error) {
	key, err := scrypt.Key([]byte(passphrase), salt, scryptN, scryptR, scryptP, 32)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("build cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// credentialResolver walks the precedence chain for one provider field:
// datastore settings, then environment, then the secret file. Whatever
// source wins, an enc:v1: value is decrypted with the mounted passphrase.
type credentialResolver struct {
	settings domain.SettingsReader
	cfg      CredentialConfig
}

func (r credentialResolver) resolve(ctx context.Context, providerCode, field string) (string, error) {
	value, checked, err := r.lookup(ctx, providerCode, field)
	if err != nil {
		return "", err
	}
	if value == "" {
		return "", domain.E(domain.CodeConfiguration, "provider.credentials",
			fmt.Sprintf("provider %s: no %s found (checked %s)",
				providerCode, field, strings.Join(checked, ", ")), nil)
	}
	return r.decode(providerCode, field, value)
}

// resolveOptional is resolve without the missing-source error, for fields
// with a built-in default.
func (r credentialResolver) resolveOptional(ctx context.Context, providerCode, field string) (string, error) {
	value, _, err := r.lookup(ctx, providerCode, field)
	if err != nil || value == "" {
		return "", err
	}
	return r.decode(providerCode, field, value)
}

func (r credentialResolver) lookup(ctx context.Context, providerCode, field string) (string, []string, error) {
	var checked []string

	settingKey := domain.ProviderSettingKey(providerCode, field)
	if r.settings != nil {
		value, ok, err := r.settings.GetSetting(ctx, settingKey)
		if err != nil {
			return "", nil, domain.E(domain.CodeConfiguration, "provider.credentials",
				fmt.Sprintf("read setting %s", settingKey), err)
		}
		if ok && value != "" {
			return value, nil, nil
		}
	}
	checked = append(checked, fmt.Sprintf("settings key %s", settingKey))

	if value := r.cfg.env(providerCode, field); value != "" {
		return value, nil, nil
	}
	checked = append(checked, fmt.Sprintf("environment %s", envKey(providerCode, field)))

	if r.cfg.SecretFile == "" {
		checked = append(checked, "secret file (none configured)")
		return "", checked, nil
	}
	value, err := r.secretFileField(providerCode, field)
	if err != nil {
		return "", nil, err
	}
	if value != "" {
		return value, nil, nil
	}
	checked = append(checked, fmt.Sprintf("secret file %s", r.cfg.SecretFile))
	return "", checked, nil
}

func (r credentialResolver) secretFileField(providerCode, field string) (string, error) {
	raw, err := os.ReadFile(r.cfg.SecretFile)
	if err != nil {
		return "", domain.E(domain.CodeConfiguration, "provider.credentials",
			fmt.Sprintf("read secret file %s", r.cfg.SecretFile), err)
	}
	var tables map[string]map[string]string
	if err := toml.Unmarshal(raw, &tables); err != nil {
		return "", domain.E(domain.CodeConfiguration, "provider.credentials",
			fmt.Sprintf("parse secret file %s", r.cfg.SecretFile), err)
	}
	return tables[providerCode][field], nil
}

func (r credentialResolver) decode(providerCode, field, value string) (string, error) {
	if !IsEncryptedSecret(value) {
		return value, nil
	}
	if r.cfg.PassphraseFile == "" {
		return "", domain.E(domain.CodeConfiguration, "provider.credentials",
			fmt.Sprintf("provider %s: %s is encrypted but no passphrase file is configured (providers.passphrase_file)",
				providerCode, field), nil)
	}
	raw, err := os.ReadFile(r.cfg.PassphraseFile)
	if err != nil {
		return "", domain.E(domain.CodeConfiguration, "provider.credentials",
			fmt.Sprintf("read passphrase file %s", r.cfg.PassphraseFile), err)
	}
	plaintext, err := DecryptSecret(value, strings.TrimSpace(string(raw)))
	if err != nil {
		return "", domain.E(domain.CodeConfiguration, "provider.credentials",
			fmt.Sprintf("provider %s: decrypt %s", providerCode, field), err)
	}
	return plaintext, nil
}

// envKey names the environment variable the configuration layer maps to a
// provider credential field, for missing-source diagnostics.
func envKey(providerCode, field string) string {
	return "INVENTIV_PROVIDERS_" + strings.ToUpper(providerCode) + "_" + strings.ToUpper(field)
}
