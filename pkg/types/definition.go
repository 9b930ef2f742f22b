package types

// FieldType defines the allowed value type for a schema field
type FieldType string

const (
	FieldTypeString  FieldType = "string"
	FieldTypeNumber  FieldType = "number"
	FieldTypeBoolean FieldType = "boolean"
	FieldTypeObject  FieldType = "object"
	FieldTypeArray   FieldType = "array"
	FieldTypeDate    FieldType = "date"
)

// GeneratedStrategy produces a value for an absent field on insert
type GeneratedStrategy string

const (
	GeneratedUUID          GeneratedStrategy = "uuid"
	GeneratedCUID          GeneratedStrategy = "cuid"
	GeneratedAutoincrement GeneratedStrategy = "autoincrement"
	GeneratedTimestamp     GeneratedStrategy = "timestamp"
)

// Format names a structural string validator
type Format string

const (
	FormatEmail   Format = "email"
	FormatURL     Format = "url"
	FormatISODate Format = "iso-date"
)

// Ordering is the storage-ordering hint for a bucket
type Ordering string

const (
	OrderingUnordered Ordering = "unordered"
	OrderingByKey     Ordering = "ordered-by-key"
)

// FieldSpec constrains a single record field
type FieldSpec struct {
	Type      FieldType         `yaml:"type"`
	Required  bool              `yaml:"required,omitempty"`
	Unique    bool              `yaml:"unique,omitempty"`
	Enum      []any             `yaml:"enum,omitempty"`
	Min       *float64          `yaml:"min,omitempty"`
	Max       *float64          `yaml:"max,omitempty"`
	MinLength *int              `yaml:"minLength,omitempty"`
	MaxLength *int              `yaml:"maxLength,omitempty"`
	Pattern   string            `yaml:"pattern,omitempty"`
	Format    Format            `yaml:"format,omitempty"`
	Default   any               `yaml:"default,omitempty"`
	DefaultFn func() any        `yaml:"-"`
	Generated GeneratedStrategy `yaml:"generated,omitempty"`

	// Reference names the bucket this field points at. Documentation only,
	// never enforced.
	Reference string `yaml:"reference,omitempty"`
}

// Schema maps field names to their specs
type Schema map[string]FieldSpec

// BucketDefinition describes a bucket. Immutable after registration.
type BucketDefinition struct {
	Key     string   `yaml:"key"`
	Schema  Schema   `yaml:"schema"`
	Indexes []string `yaml:"indexes,omitempty"`

	// TTLMs expires records TTLMs after creation; 0 disables
	TTLMs int64 `yaml:"ttlMs,omitempty"`

	// MaxSize caps the record count; the oldest record is evicted to admit
	// a new one. 0 means unbounded.
	MaxSize int `yaml:"maxSize,omitempty"`

	// Persistent opts the bucket in or out of snapshots. nil defaults to on
	// when the store has persistence configured.
	Persistent *bool `yaml:"persistent,omitempty"`

	Ordering Ordering `yaml:"ordering,omitempty"`
}

// IndexedFields returns the secondary-index fields plus every unique field
func (d *BucketDefinition) IndexedFields() []string {
	seen := make(map[string]bool, len(d.Indexes))
	fields := make([]string, 0, len(d.Indexes))
	for _, f := range d.Indexes {
		if !seen[f] {
			seen[f] = true
			fields = append(fields, f)
		}
	}
	for name, spec := range d.Schema {
		if spec.Unique && !seen[name] {
			seen[name] = true
			fields = append(fields, name)
		}
	}
	return fields
}

// UniqueFields returns the fields marked unique in the schema
func (d *BucketDefinition) UniqueFields() []string {
	var fields []string
	for name, spec := range d.Schema {
		if spec.Unique {
			fields = append(fields, name)
		}
	}
	return fields
}
