package dbfactory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haka-quant/optionengine/apperr"
	"github.com/haka-quant/optionengine/config"
)

func TestValidateAndConnect_MissingEnvVars(t *testing.T) {
	t.Setenv("VNPY_DATABASE_DRIVER", "")
	t.Setenv("VNPY_DATABASE_DATABASE", "")
	t.Setenv("VNPY_DATABASE_USER", "")
	t.Setenv("VNPY_DATABASE_PASSWORD", "")

	_, err := ValidateAndConnect(&config.Config{}, 0)
	require.Error(t, err)

	var cfgErr *apperr.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Missing, "VNPY_DATABASE_DRIVER")
}

func TestGet_EmptyBeforeConnect(t *testing.T) {
	Reset()
	_, ok := Get()
	assert.False(t, ok)
}
