package store

import (
	"fmt"
	"os"
	"sort"

	"github.com/cuemby/burrow/pkg/ttl"
	"github.com/cuemby/burrow/pkg/types"
	"gopkg.in/yaml.v3"
)

// ManifestBucket is one bucket in a YAML manifest. TTL takes a duration
// string ("30s", "5m", "1.5h", "2d") and overrides TTLMs when set.
type ManifestBucket struct {
	types.BucketDefinition `yaml:",inline"`

	TTL string `yaml:"ttl,omitempty"`
}

// Manifest declares buckets for ApplyManifest
type Manifest struct {
	Buckets map[string]ManifestBucket `yaml:"buckets"`
}

// ApplyManifest defines every bucket declared in YAML manifest data.
// Buckets register in name order so transaction commit order is stable
// across runs. Already-defined buckets fail the whole apply.
func (s *Store) ApplyManifest(data []byte) error {
	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return fmt.Errorf("parse manifest: %w", err)
	}

	names := make([]string, 0, len(manifest.Buckets))
	for name := range manifest.Buckets {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		mb := manifest.Buckets[name]
		def := mb.BucketDefinition
		if mb.TTL != "" {
			ms, err := ttl.ParseDuration(mb.TTL)
			if err != nil {
				return fmt.Errorf("bucket %q: %w", name, err)
			}
			def.TTLMs = ms
		}
		if err := s.DefineBucket(name, def); err != nil {
			return err
		}
	}
	return nil
}

// ApplyManifestFile loads and applies a manifest from disk
func (s *Store) ApplyManifestFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read manifest: %w", err)
	}
	return s.ApplyManifest(data)
}
