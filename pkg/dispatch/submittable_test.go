package dispatch

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/offloadlab/offload/pkg/core"
)

func TestShellBuilder_RendersRunnerInvocation(t *testing.T) {
	script := writeTestScript(t, "some script contents")

	sub, err := ShellBuilder{}.Build(script, "sim.run", 2*time.Minute)
	require.NoError(t, err)

	assert.Equal(t, "sim.run", sub.FunctionName)
	assert.Equal(t, 2*time.Minute, sub.Walltime)
	assert.Len(t, sub.ScriptHash, 8)
	assert.Contains(t, sub.Cmd, PayloadPlaceholder)
	assert.Contains(t, sub.Cmd, core.RunnerArg+" sim run")
	assert.Contains(t, sub.Cmd, core.EnvNoSizeLimit+"=1")
}

func TestShellBuilder_HashTracksScriptContents(t *testing.T) {
	a, err := ShellBuilder{}.Build(writeTestScript(t, "version one"), "sim.run", time.Minute)
	require.NoError(t, err)
	b, err := ShellBuilder{}.Build(writeTestScript(t, "version two"), "sim.run", time.Minute)
	require.NoError(t, err)
	c, err := ShellBuilder{}.Build(writeTestScript(t, "version one"), "sim.run", time.Minute)
	require.NoError(t, err)

	assert.NotEqual(t, a.ScriptHash, b.ScriptHash)
	assert.Equal(t, a.ScriptHash, c.ScriptHash)
}

func TestShellBuilder_MissingScript(t *testing.T) {
	_, err := ShellBuilder{}.Build("/does/not/exist", "sim.run", time.Minute)

	assert.Error(t, err)
}

func TestShellBuilder_UnqualifiedName(t *testing.T) {
	_, err := ShellBuilder{}.Build(writeTestScript(t, "x"), "run", time.Minute)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "qualified")
}

func TestShellBuilder_PayloadSubstitution(t *testing.T) {
	sub, err := ShellBuilder{}.Build(writeTestScript(t, "x"), "sim.run", time.Minute)
	require.NoError(t, err)

	cmd := strings.Replace(sub.Cmd, PayloadPlaceholder, "__CBOR__:abc", 1)

	assert.NotContains(t, cmd, PayloadPlaceholder)
	assert.Contains(t, cmd, "__CBOR__:abc")
}
