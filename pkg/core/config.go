package core

import (
	"fmt"
	"time"
)

// Well-known configuration keys recognized in endpoint config mappings.
const (
	KeyEndpoint         = "endpoint"
	KeyWalltime         = "walltime"
	KeyWorkerInit       = "worker_init"
	KeyAccount          = "account"
	KeyPartition        = "partition"
	KeyQOS              = "qos"
	KeySchedulerOptions = "scheduler_options"
)

// EndpointConfig holds the execution settings for a named target.
//
// Known fields are typed; anything else found in an embedded config block or
// a call-site override is preserved in Extra and only filtered against the
// endpoint schema at the submission boundary.
type EndpointConfig struct {
	// Endpoint is the target UUID, or a friendly name that an embedded
	// config block maps to a UUID. Variants may not set it.
	Endpoint string

	// Walltime bounds remote execution time. Zero means unset.
	Walltime time.Duration

	// WorkerInit holds shell commands run during worker startup. It is the
	// accumulator field: values from every layer are concatenated in layer
	// order rather than replaced.
	WorkerInit string

	Account          string
	Partition        string
	QOS              string
	SchedulerOptions string

	// Extra carries unrecognized keys through merges untouched.
	Extra map[string]any
}

// Clone returns a deep copy. The zero receiver clones to an empty config.
func (c *EndpointConfig) Clone() *EndpointConfig {
	out := &EndpointConfig{}
	if c == nil {
		return out
	}
	*out = *c
	out.Extra = nil
	if c.Extra != nil {
		out.Extra = make(map[string]any, len(c.Extra))
		for k, v := range c.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

// Merge layers overlay on top of base and returns a fresh config. Neither
// input is mutated. Non-zero overlay fields win, except WorkerInit: when both
// sides define it, the base's commands run first and the overlay's are
// appended on a new line.
func Merge(base, overlay *EndpointConfig) *EndpointConfig {
	out := base.Clone()
	if overlay == nil {
		return out
	}
	if overlay.Endpoint != "" {
		out.Endpoint = overlay.Endpoint
	}
	if overlay.Walltime != 0 {
		out.Walltime = overlay.Walltime
	}
	out.WorkerInit = JoinWorkerInit(out.WorkerInit, overlay.WorkerInit)
	if overlay.Account != "" {
		out.Account = overlay.Account
	}
	if overlay.Partition != "" {
		out.Partition = overlay.Partition
	}
	if overlay.QOS != "" {
		out.QOS = overlay.QOS
	}
	if overlay.SchedulerOptions != "" {
		out.SchedulerOptions = overlay.SchedulerOptions
	}
	if len(overlay.Extra) > 0 {
		if out.Extra == nil {
			out.Extra = make(map[string]any, len(overlay.Extra))
		}
		for k, v := range overlay.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

// JoinWorkerInit concatenates worker init command blocks in layer order,
// skipping empty segments.
func JoinWorkerInit(earlier, later string) string {
	switch {
	case earlier == "":
		return later
	case later == "":
		return earlier
	default:
		return earlier + "\n" + later
	}
}

// ConfigFromMap builds a typed config from a raw mapping, routing
// unrecognized scalar keys into Extra. Mapping-valued entries are skipped:
// in embedded config blocks those are variant tables, not fields.
func ConfigFromMap(m map[string]any) (*EndpointConfig, error) {
	cfg := &EndpointConfig{}
	for k, v := range m {
		if _, isMap := v.(map[string]any); isMap {
			continue
		}
		switch k {
		case KeyEndpoint:
			s, ok := v.(string)
			if !ok {
				return nil, &ConfigValueError{Field: KeyEndpoint, Value: v, Reason: "must be a string"}
			}
			cfg.Endpoint = s
		case KeyWalltime:
			d, err := walltimeFromValue(v)
			if err != nil {
				return nil, err
			}
			cfg.Walltime = d
		case KeyWorkerInit:
			s, ok := v.(string)
			if !ok {
				return nil, &ConfigValueError{Field: KeyWorkerInit, Value: v, Reason: "must be a string"}
			}
			cfg.WorkerInit = s
		case KeyAccount:
			cfg.Account = fmt.Sprint(v)
		case KeyPartition:
			cfg.Partition = fmt.Sprint(v)
		case KeyQOS:
			cfg.QOS = fmt.Sprint(v)
		case KeySchedulerOptions:
			cfg.SchedulerOptions = fmt.Sprint(v)
		default:
			if cfg.Extra == nil {
				cfg.Extra = make(map[string]any)
			}
			cfg.Extra[k] = v
		}
	}
	return cfg, nil
}

func walltimeFromValue(v any) (time.Duration, error) {
	var secs int64
	switch n := v.(type) {
	case int:
		secs = int64(n)
	case int64:
		secs = n
	case float64:
		secs = int64(n)
	default:
		return 0, &ConfigValueError{Field: KeyWalltime, Value: v, Reason: "must be a number of seconds"}
	}
	if secs <= 0 {
		return 0, &ConfigValueError{Field: KeyWalltime, Value: v, Reason: "must be positive"}
	}
	return time.Duration(secs) * time.Second, nil
}

// UserConfig flattens the config into the mapping handed to the submission
// interface. Endpoint and Walltime are excluded: the dispatcher extracts
// those before submission. Zero-valued fields are omitted.
func (c *EndpointConfig) UserConfig() map[string]any {
	out := make(map[string]any)
	if c == nil {
		return out
	}
	if c.WorkerInit != "" {
		out[KeyWorkerInit] = c.WorkerInit
	}
	if c.Account != "" {
		out[KeyAccount] = c.Account
	}
	if c.Partition != "" {
		out[KeyPartition] = c.Partition
	}
	if c.QOS != "" {
		out[KeyQOS] = c.QOS
	}
	if c.SchedulerOptions != "" {
		out[KeySchedulerOptions] = c.SchedulerOptions
	}
	for k, v := range c.Extra {
		out[k] = v
	}
	return out
}

// FilterKeys removes entries from m whose keys are not in the allow list.
// The input is not mutated.
func FilterKeys(m map[string]any, allowed []string) map[string]any {
	set := make(map[string]struct{}, len(allowed))
	for _, k := range allowed {
		set[k] = struct{}{}
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if _, ok := set[k]; ok {
			out[k] = v
		}
	}
	return out
}
