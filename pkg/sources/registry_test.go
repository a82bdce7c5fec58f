package sources

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StrathCole/pyth-publisher/pkg/logging"
)

func TestRegistry_CreateUnknown(t *testing.T) {
	_, err := Create("cex", "does-not-exist", nil, nil)
	assert.ErrorIs(t, err, ErrUnknownSource)
}

func TestRegistry_RegisterAndCreate(t *testing.T) {
	var gotName string
	var gotConfig map[string]interface{}
	Register("test.registry", func(name string, config map[string]interface{}, logger *logging.Logger) (Source, error) {
		gotName = name
		gotConfig = config
		require.NotNil(t, logger)
		return nil, nil
	})

	assert.True(t, IsRegistered("test", "registry"))
	assert.Contains(t, List(), "test.registry")

	_, err := Create("test", "registry", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "registry", gotName)
	assert.NotNil(t, gotConfig)
}
