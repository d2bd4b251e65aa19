// Package config resolves layered endpoint configuration for a target path.
//
// Layers merge lowest to highest precedence: built-in defaults, the embedded
// base config, one embedded variant per dotted path segment, decoration-time
// overrides, then call-time overrides. Every key is replaced by the highest
// layer that defines it except worker_init, which accumulates across layers
// in layer order.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/offloadlab/offload/pkg/core"
)

// Resolver merges endpoint configuration layers for one script. Embedded
// metadata is read and parsed at most once per Resolver.
type Resolver struct {
	scriptPath string
	reader     core.MetadataReader
	defaults   *core.EndpointConfig

	once    sync.Once
	meta    map[string]any
	metaErr error
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithDefaults replaces the built-in defaults layer.
func WithDefaults(cfg *core.EndpointConfig) Option {
	return func(r *Resolver) { r.defaults = cfg.Clone() }
}

// NewResolver creates a resolver for the script at scriptPath. An empty path
// means no embedded configuration. A nil reader falls back to the standard
// comment-block reader.
func NewResolver(scriptPath string, reader core.MetadataReader, opts ...Option) *Resolver {
	r := &Resolver{
		scriptPath: scriptPath,
		reader:     reader,
		defaults:   Defaults(),
	}
	if r.reader == nil {
		r.reader = BlockReader{}
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve merges all configuration layers for target, a dotted path like
// "anvil" or "anvil.gpu.debug". The first segment names the embedded base
// config; each further segment selects a nested variant table. A base absent
// from the embedded metadata is not an error for bare-base targets: the
// embedded layers are simply skipped. Requesting a variant under a base that
// has no embedded config is an error.
//
// No input is mutated; the result is freshly allocated per call.
func (r *Resolver) Resolve(target string, override, callTime *core.EndpointConfig) (*core.EndpointConfig, error) {
	cfg := r.defaults.Clone()

	segs := strings.Split(target, ".")
	meta, err := r.metadata()
	if err != nil {
		return nil, err
	}

	raw, found := meta[segs[0]]
	switch {
	case found:
		base, ok := raw.(map[string]any)
		if !ok {
			return nil, &core.ConfigValueError{
				Field:  segs[0],
				Value:  raw,
				Reason: "embedded target config must be a table",
			}
		}
		cfg, err = r.mergeEmbedded(cfg, base, segs)
		if err != nil {
			return nil, err
		}
	case len(segs) > 1:
		// A variant path needs a base table to search under.
		return nil, &core.VariantNotFoundError{Segment: segs[0]}
	}

	cfg = core.Merge(cfg, override)
	cfg = core.Merge(cfg, callTime)
	return cfg, nil
}

// mergeEmbedded merges the base table's scalar fields, then walks the
// remaining path segments through nested variant tables.
func (r *Resolver) mergeEmbedded(cfg *core.EndpointConfig, base map[string]any, segs []string) (*core.EndpointConfig, error) {
	baseCfg, err := core.ConfigFromMap(base)
	if err != nil {
		return nil, err
	}
	cfg = core.Merge(cfg, baseCfg)

	cur := base
	path := segs[0]
	for _, seg := range segs[1:] {
		raw, ok := cur[seg]
		if !ok {
			return nil, &core.VariantNotFoundError{Segment: seg, Path: path}
		}
		table, ok := raw.(map[string]any)
		if !ok {
			return nil, &core.InvalidVariantError{Segment: seg, Path: path}
		}
		variant, err := core.ConfigFromMap(table)
		if err != nil {
			return nil, err
		}
		if variant.Endpoint != "" {
			return nil, &core.ConfigValueError{
				Field:  core.KeyEndpoint,
				Value:  variant.Endpoint,
				Reason: fmt.Sprintf("variant %s.%s must inherit the endpoint from its base config", path, seg),
			}
		}
		cfg = core.Merge(cfg, variant)
		cur = table
		path += "." + seg
	}
	return cfg, nil
}

// Targets lists the target names defined in the embedded metadata, sorted.
// Used for actionable "no endpoint" errors.
func (r *Resolver) Targets() []string {
	meta, err := r.metadata()
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(meta))
	for name := range meta {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// metadata loads and caches the embedded config mapping. A missing script
// file or absent config block yields an empty mapping, not an error.
func (r *Resolver) metadata() (map[string]any, error) {
	r.once.Do(func() {
		if r.scriptPath == "" {
			return
		}
		script, err := os.ReadFile(r.scriptPath)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return
			}
			r.metaErr = fmt.Errorf("offload: reading script %s: %w", r.scriptPath, err)
			return
		}
		r.meta, r.metaErr = r.reader.Read(string(script))
	})
	return r.meta, r.metaErr
}
