package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClone_NilReceiver(t *testing.T) {
	var c *EndpointConfig
	out := c.Clone()

	require.NotNil(t, out)
	assert.Equal(t, &EndpointConfig{}, out)
}

func TestClone_DeepCopiesExtra(t *testing.T) {
	c := &EndpointConfig{Extra: map[string]any{"mem": "64GB"}}
	out := c.Clone()
	out.Extra["mem"] = "128GB"

	assert.Equal(t, "64GB", c.Extra["mem"])
}

func TestMerge_OverlayWins(t *testing.T) {
	base := &EndpointConfig{Endpoint: "aaa", Account: "alloc-1", Partition: "cpu"}
	overlay := &EndpointConfig{Account: "alloc-2"}

	out := Merge(base, overlay)

	assert.Equal(t, "aaa", out.Endpoint)
	assert.Equal(t, "alloc-2", out.Account)
	assert.Equal(t, "cpu", out.Partition)
}

func TestMerge_WorkerInitAccumulates(t *testing.T) {
	base := &EndpointConfig{WorkerInit: "module load gcc"}
	overlay := &EndpointConfig{WorkerInit: "module load cuda"}

	out := Merge(base, overlay)

	assert.Equal(t, "module load gcc\nmodule load cuda", out.WorkerInit)
}

func TestMerge_WorkerInitSkipsEmptyLayers(t *testing.T) {
	assert.Equal(t, "a", JoinWorkerInit("a", ""))
	assert.Equal(t, "b", JoinWorkerInit("", "b"))
	assert.Equal(t, "", JoinWorkerInit("", ""))
}

func TestMerge_DoesNotMutateInputs(t *testing.T) {
	base := &EndpointConfig{WorkerInit: "a", Extra: map[string]any{"k": 1}}
	overlay := &EndpointConfig{WorkerInit: "b", Extra: map[string]any{"k": 2}}

	Merge(base, overlay)

	assert.Equal(t, "a", base.WorkerInit)
	assert.Equal(t, 1, base.Extra["k"])
	assert.Equal(t, "b", overlay.WorkerInit)
}

func TestMerge_ExtraOverlayWins(t *testing.T) {
	base := &EndpointConfig{Extra: map[string]any{"mem": "64GB", "gpus": 1}}
	overlay := &EndpointConfig{Extra: map[string]any{"mem": "128GB"}}

	out := Merge(base, overlay)

	assert.Equal(t, "128GB", out.Extra["mem"])
	assert.Equal(t, 1, out.Extra["gpus"])
}

func TestConfigFromMap_TypedAndExtraKeys(t *testing.T) {
	cfg, err := ConfigFromMap(map[string]any{
		"endpoint":    "3f2c1a9e-7d4b-4c52-9b6a-1e8f0d2c5a71",
		"walltime":    120,
		"worker_init": "module load gcc",
		"account":     "alloc-1",
		"mem":         "64GB",
	})
	require.NoError(t, err)

	assert.Equal(t, "3f2c1a9e-7d4b-4c52-9b6a-1e8f0d2c5a71", cfg.Endpoint)
	assert.Equal(t, 2*time.Minute, cfg.Walltime)
	assert.Equal(t, "module load gcc", cfg.WorkerInit)
	assert.Equal(t, "alloc-1", cfg.Account)
	assert.Equal(t, "64GB", cfg.Extra["mem"])
}

func TestConfigFromMap_SkipsVariantTables(t *testing.T) {
	cfg, err := ConfigFromMap(map[string]any{
		"account": "alloc-1",
		"gpu":     map[string]any{"partition": "gpu"},
	})
	require.NoError(t, err)

	assert.Equal(t, "alloc-1", cfg.Account)
	assert.NotContains(t, cfg.Extra, "gpu")
}

func TestConfigFromMap_WalltimeValidation(t *testing.T) {
	_, err := ConfigFromMap(map[string]any{"walltime": "soon"})
	var cve *ConfigValueError
	require.ErrorAs(t, err, &cve)
	assert.Equal(t, KeyWalltime, cve.Field)

	_, err = ConfigFromMap(map[string]any{"walltime": -5})
	require.ErrorAs(t, err, &cve)

	_, err = ConfigFromMap(map[string]any{"walltime": 0})
	require.ErrorAs(t, err, &cve)
}

func TestConfigFromMap_EndpointMustBeString(t *testing.T) {
	_, err := ConfigFromMap(map[string]any{"endpoint": 42})

	var cve *ConfigValueError
	require.ErrorAs(t, err, &cve)
	assert.Equal(t, KeyEndpoint, cve.Field)
}

func TestUserConfig_ExcludesEndpointAndWalltime(t *testing.T) {
	cfg := &EndpointConfig{
		Endpoint:   "aaa",
		Walltime:   time.Minute,
		WorkerInit: "module load gcc",
		Account:    "alloc-1",
		Extra:      map[string]any{"mem": "64GB"},
	}

	out := cfg.UserConfig()

	assert.NotContains(t, out, KeyEndpoint)
	assert.NotContains(t, out, KeyWalltime)
	assert.Equal(t, "module load gcc", out[KeyWorkerInit])
	assert.Equal(t, "alloc-1", out[KeyAccount])
	assert.Equal(t, "64GB", out["mem"])
}

func TestUserConfig_OmitsZeroFields(t *testing.T) {
	out := (&EndpointConfig{Account: "alloc-1"}).UserConfig()

	assert.Equal(t, map[string]any{KeyAccount: "alloc-1"}, out)
}

func TestFilterKeys(t *testing.T) {
	m := map[string]any{"account": "a", "mem": "64GB", "qos": "debug"}

	out := FilterKeys(m, []string{"account", "qos"})

	assert.Equal(t, map[string]any{"account": "a", "qos": "debug"}, out)
	assert.Contains(t, m, "mem")
}
