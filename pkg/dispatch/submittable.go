package dispatch

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/offloadlab/offload/pkg/core"
)

// PayloadPlaceholder marks where the per-call encoded payload is substituted
// into a submittable's command.
const PayloadPlaceholder = "{payload}"

const heredocTag = "OFFLOAD_PAYLOAD_EOF"

// ShellBuilder renders the default submittable: a POSIX shell command that
// parks the payload in a temp file, invokes the execution binary in runner
// mode, and relays its output. The binary is looked up as OFFLOAD_BIN on the
// remote side, falling back to the script's base name.
type ShellBuilder struct{}

func (ShellBuilder) Build(scriptPath, functionName string, walltime time.Duration) (*core.Submittable, error) {
	src, err := os.ReadFile(scriptPath)
	if err != nil {
		return nil, fmt.Errorf("offload: reading %s: %w", scriptPath, err)
	}
	sum := sha1.Sum(src)
	hash := hex.EncodeToString(sum[:])[:8]

	unit, fn, ok := strings.Cut(functionName, ".")
	if !ok {
		return nil, fmt.Errorf("offload: %q is not a qualified function name", functionName)
	}

	bin := strings.TrimSuffix(filepath.Base(scriptPath), filepath.Ext(scriptPath))
	cmd := fmt.Sprintf(`set -e
workdir="$(mktemp -d)"
trap 'rm -rf "$workdir"' EXIT
cat > "$workdir/payload" <<'%[1]s'
%[2]s
%[1]s
export %[3]s=1
status=0
"${OFFLOAD_BIN:-%[4]s}" %[5]s %[6]s %[7]s "$workdir/payload" > "$workdir/out" || status=$?
cat "$workdir/out"
exit $status
`, heredocTag, PayloadPlaceholder, core.EnvNoSizeLimit, bin, core.RunnerArg, unit, fn)

	return &core.Submittable{
		Cmd:          cmd,
		FunctionName: functionName,
		ScriptHash:   hash,
		Walltime:     walltime,
	}, nil
}
