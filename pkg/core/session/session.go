// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package session holds the options of the session a replicated graph is built and compiled for:
// the global replication factor and the options handed over to the collective runtime.
//
// Options are created from a configuration string, formatted as a comma-separated list of
// "key=value" pairs. E.g.: "replicas=4,collective.method=ring".
//
// Known keys:
//
//   - "replicas": the global replication factor (number of replicas), defaults to 1.
//   - "collective.<name>": an option passed verbatim (as "<name>") to the collective runtime.
package session

import (
	"fmt"
	"maps"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// ConfigEnv is the environment variable with the default session configuration.
const ConfigEnv = "COLLECTIVES_CONFIG"

// DefaultConfig is used by New if ConfigEnv is not set.
var DefaultConfig string

// collectivePrefix marks keys passed on to the collective runtime.
const collectivePrefix = "collective."

// Options of a session.
type Options struct {
	// NumReplicas is the global replication factor: the total number of replicas running the program.
	NumReplicas int

	// CollectiveOptions are passed verbatim to the collective runtime during lowering.
	CollectiveOptions map[string]string
}

// New returns the default session Options.
//
// The default is:
//
//  1. The environment variable COLLECTIVES_CONFIG, if defined.
//  2. The variable DefaultConfig, if not empty.
//  3. An empty configuration: 1 replica and no collective options.
func New() (*Options, error) {
	if config, found := os.LookupEnv(ConfigEnv); found {
		return NewWithConfig(config)
	}
	return NewWithConfig(DefaultConfig)
}

// NewWithConfig parses the configuration string. See package documentation for the format.
func NewWithConfig(config string) (*Options, error) {
	opts := &Options{
		NumReplicas:       1,
		CollectiveOptions: make(map[string]string),
	}
	for _, part := range strings.Split(config, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, found := strings.Cut(part, "=")
		if !found {
			return nil, errors.Errorf("invalid session configuration %q: %q is not in the \"key=value\" format",
				config, part)
		}
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		switch {
		case key == "replicas":
			n, err := strconv.Atoi(value)
			if err != nil {
				return nil, errors.Wrapf(err, "invalid session configuration %q: replicas=%q", config, value)
			}
			if n <= 0 {
				return nil, errors.Errorf("invalid session configuration %q: replicas must be positive, got %d",
					config, n)
			}
			opts.NumReplicas = n
		case strings.HasPrefix(key, collectivePrefix) && len(key) > len(collectivePrefix):
			opts.CollectiveOptions[key[len(collectivePrefix):]] = value
		default:
			return nil, errors.Errorf("invalid session configuration %q: unknown key %q", config, key)
		}
	}
	klog.V(1).Infof("Session options: %s", opts)
	return opts, nil
}

// WithReplicas returns a copy of the options with a different replication factor.
func (o *Options) WithReplicas(numReplicas int) *Options {
	o2 := &Options{NumReplicas: numReplicas, CollectiveOptions: maps.Clone(o.CollectiveOptions)}
	return o2
}

// GlobalReplicationFactor returns the total number of replicas.
func (o *Options) GlobalReplicationFactor() int {
	if o == nil || o.NumReplicas <= 0 {
		return 1
	}
	return o.NumReplicas
}

// String implements fmt.Stringer, in the same format accepted by NewWithConfig.
func (o *Options) String() string {
	parts := []string{fmt.Sprintf("replicas=%d", o.GlobalReplicationFactor())}
	for _, key := range slices.Sorted(maps.Keys(o.CollectiveOptions)) {
		parts = append(parts, fmt.Sprintf("%s%s=%s", collectivePrefix, key, o.CollectiveOptions[key]))
	}
	return strings.Join(parts, ",")
}
