package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/domain"
)

func TestManager_UnknownCode(t *testing.T) {
	m := NewManager(ManagerOptions{Settings: &fakeSettings{}})
	_, err := m.Provider(context.Background(), "aws")
	require.Error(t, err)
	require.Equal(t, domain.CodeConfiguration, domain.CodeOf(err))
	require.Contains(t, err.Error(), "aws")
}

func TestManager_MockIsSingleton(t *testing.T) {
	m := NewManager(ManagerOptions{Settings: &fakeSettings{}})
	ctx := context.Background()

	first, err := m.Provider(ctx, domain.MockProviderCode)
	require.NoError(t, err)
	second, err := m.Provider(ctx, domain.MockProviderCode)
	require.NoError(t, err)
	require.Same(t, first, second)
	require.Equal(t, domain.MockProviderCode, first.Code())
}

func TestManager_TensorRackRebuildsOnCredentialChange(t *testing.T) {
	ctx := context.Background()
	settings := &fakeSettings{values: map[string]string{
		domain.ProviderSettingKey(TensorRackCode, FieldProjectID): "proj-1",
		domain.ProviderSettingKey(TensorRackCode, FieldSecretKey): "sk-1",
	}}
	m := NewManager(ManagerOptions{Settings: settings})

	first, err := m.Provider(ctx, TensorRackCode)
	require.NoError(t, err)
	require.Equal(t, TensorRackCode, first.Code())

	second, err := m.Provider(ctx, TensorRackCode)
	require.NoError(t, err)
	require.Same(t, first, second)

	// Rotation: the next resolution sees the new key and rebuilds.
	settings.set(domain.ProviderSettingKey(TensorRackCode, FieldSecretKey), "sk-2")
	third, err := m.Provider(ctx, TensorRackCode)
	require.NoError(t, err)
	require.NotSame(t, first, third)
}

func TestManager_TensorRackMissingCredentialIsConfigurationError(t *testing.T) {
	m := NewManager(ManagerOptions{Settings: &fakeSettings{}})
	_, err := m.Provider(context.Background(), TensorRackCode)
	require.Error(t, err)
	require.Equal(t, domain.CodeConfiguration, domain.CodeOf(err))
}
