package config

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// TestDuration_Decode verifies the environment form of a duration.
func TestDuration_Decode(t *testing.T) {
	var d Duration
	require.NoError(t, d.Decode("1m30s"))
	assert.Equal(t, 90*time.Second, d.Std())

	require.NoError(t, d.Decode("0"))
	assert.Zero(t, d)

	assert.Error(t, d.Decode("forever"))
}

// TestDuration_JSON verifies strings and seconds are accepted in JSON.
func TestDuration_JSON(t *testing.T) {
	var v struct {
		Timeout Duration `json:"timeout"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"timeout": "250ms"}`), &v))
	assert.Equal(t, 250*time.Millisecond, v.Timeout.Std())

	require.NoError(t, json.Unmarshal([]byte(`{"timeout": 1.5}`), &v))
	assert.Equal(t, 1500*time.Millisecond, v.Timeout.Std())

	assert.Error(t, json.Unmarshal([]byte(`{"timeout": true}`), &v))

	out, err := json.Marshal(v)
	require.NoError(t, err)
	assert.JSONEq(t, `{"timeout": "1.5s"}`, string(out))
}

// TestDuration_YAML verifies durations decode from YAML scalars only.
func TestDuration_YAML(t *testing.T) {
	var v struct {
		Timeout Duration `yaml:"timeout"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("timeout: 5s\n"), &v))
	assert.Equal(t, 5*time.Second, v.Timeout.Std())

	assert.Error(t, yaml.Unmarshal([]byte("timeout: [1, 2]\n"), &v))
}
