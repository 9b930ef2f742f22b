package schema

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"time"

	"github.com/cuemby/burrow/pkg/idgen"
	"github.com/cuemby/burrow/pkg/types"
)

// Validator prepares and validates records against one bucket's schema
type Validator struct {
	bucket   string
	keyField string
	schema   types.Schema
	fields   []string // schema field names, sorted for stable issue order
	patterns map[string]*regexp.Regexp
}

// New compiles a validator for a bucket definition. Fails if a field's
// pattern does not compile.
func New(bucket string, def *types.BucketDefinition) (*Validator, error) {
	v := &Validator{
		bucket:   bucket,
		keyField: def.Key,
		schema:   def.Schema,
		patterns: make(map[string]*regexp.Regexp),
	}
	for name, spec := range def.Schema {
		v.fields = append(v.fields, name)
		if spec.Pattern != "" {
			re, err := regexp.Compile(spec.Pattern)
			if err != nil {
				return nil, fmt.Errorf("field %q pattern: %w", name, err)
			}
			v.patterns[name] = re
		}
	}
	sort.Strings(v.fields)
	return v, nil
}

// KeyField returns the bucket's primary-key field name
func (v *Validator) KeyField() string {
	return v.keyField
}

// PrepareInsert fills generated fields and defaults, stamps metadata, and
// validates. nextAutoincrement is called once per autoincrement field that
// needs a value.
func (v *Validator) PrepareInsert(input types.Record, nextAutoincrement func() int64) (types.Record, error) {
	out := input.Clone()
	if out == nil {
		out = types.Record{}
	}

	for _, name := range v.fields {
		spec := v.schema[name]
		if _, present := out[name]; present {
			continue
		}
		switch spec.Generated {
		case types.GeneratedUUID:
			out[name] = idgen.UUID()
		case types.GeneratedCUID:
			out[name] = idgen.CUID()
		case types.GeneratedAutoincrement:
			out[name] = nextAutoincrement()
		case types.GeneratedTimestamp:
			out[name] = idgen.Timestamp()
		}
	}

	for _, name := range v.fields {
		spec := v.schema[name]
		if _, present := out[name]; present {
			continue
		}
		if spec.DefaultFn != nil {
			out[name] = spec.DefaultFn()
		} else if spec.Default != nil {
			out[name] = cloneValue(spec.Default)
		}
	}

	now := types.NowMs()
	out[types.FieldVersion] = int64(1)
	out[types.FieldCreatedAt] = now
	out[types.FieldUpdatedAt] = now

	if err := v.Validate(out); err != nil {
		return nil, err
	}
	return out, nil
}

// PrepareUpdate merges sanitized changes over the existing record, bumps
// the version, and validates. The primary key, generated fields,
// _version, _createdAt and _updatedAt cannot be changed.
func (v *Validator) PrepareUpdate(existing types.Record, changes types.Record) (types.Record, error) {
	out := existing.Clone()
	for field, value := range changes {
		if v.immutableField(field) {
			continue
		}
		out[field] = value
	}

	out[types.FieldUpdatedAt] = types.NowMs()
	out[types.FieldVersion] = existing.Version() + 1
	out[types.FieldCreatedAt] = existing[types.FieldCreatedAt]

	if err := v.Validate(out); err != nil {
		return nil, err
	}
	return out, nil
}

func (v *Validator) immutableField(field string) bool {
	switch field {
	case v.keyField, types.FieldVersion, types.FieldCreatedAt, types.FieldUpdatedAt:
		return true
	}
	return v.schema[field].Generated != ""
}

// Validate checks every schema constraint, collecting all failures
func (v *Validator) Validate(record types.Record) error {
	var issues []types.ValidationIssue

	for _, name := range v.fields {
		spec := v.schema[name]
		value, present := record[name]

		if !present || value == nil {
			if spec.Required {
				issues = append(issues, types.ValidationIssue{
					Field:   name,
					Message: "field is required",
					Code:    types.IssueRequired,
				})
			}
			continue
		}

		if issue, ok := checkType(name, spec.Type, value); !ok {
			issues = append(issues, issue)
			continue
		}

		issues = append(issues, v.checkConstraints(name, spec, value)...)
	}

	if len(issues) > 0 {
		return &types.ValidationError{Bucket: v.bucket, Issues: issues}
	}
	return nil
}

func checkType(field string, ft types.FieldType, value any) (types.ValidationIssue, bool) {
	ok := true
	switch ft {
	case types.FieldTypeString:
		_, ok = value.(string)
	case types.FieldTypeNumber:
		f, isNum := types.ToNumber(value)
		ok = isNum && !math.IsNaN(f)
	case types.FieldTypeBoolean:
		_, ok = value.(bool)
	case types.FieldTypeObject:
		_, ok = value.(map[string]any)
		if !ok {
			_, ok = value.(types.Record)
		}
	case types.FieldTypeArray:
		ok = isSequence(value)
	case types.FieldTypeDate:
		ok = isDateValue(value)
	case "":
		// untyped schema entry, only constraints apply
	default:
		ok = false
	}
	if ok {
		return types.ValidationIssue{}, true
	}
	return types.ValidationIssue{
		Field:   field,
		Message: fmt.Sprintf("expected %s, got %T", ft, value),
		Code:    types.IssueType,
	}, false
}

func (v *Validator) checkConstraints(name string, spec types.FieldSpec, value any) []types.ValidationIssue {
	var issues []types.ValidationIssue
	add := func(message, code string) {
		issues = append(issues, types.ValidationIssue{Field: name, Message: message, Code: code})
	}

	if len(spec.Enum) > 0 {
		found := false
		for _, allowed := range spec.Enum {
			if types.ValueEqual(value, allowed) {
				found = true
				break
			}
		}
		if !found {
			add(fmt.Sprintf("value %v not in enum", value), types.IssueEnum)
		}
	}

	if f, isNum := types.ToNumber(value); isNum {
		if spec.Min != nil && f < *spec.Min {
			add(fmt.Sprintf("value %v below minimum %v", f, *spec.Min), types.IssueMin)
		}
		if spec.Max != nil && f > *spec.Max {
			add(fmt.Sprintf("value %v above maximum %v", f, *spec.Max), types.IssueMax)
		}
	}

	if s, isStr := value.(string); isStr {
		if spec.MinLength != nil && len(s) < *spec.MinLength {
			add(fmt.Sprintf("length %d below minimum %d", len(s), *spec.MinLength), types.IssueMinLength)
		}
		if spec.MaxLength != nil && len(s) > *spec.MaxLength {
			add(fmt.Sprintf("length %d above maximum %d", len(s), *spec.MaxLength), types.IssueMaxLength)
		}
		if re := v.patterns[name]; re != nil && !re.MatchString(s) {
			add(fmt.Sprintf("value does not match pattern %s", spec.Pattern), types.IssuePattern)
		}
		if spec.Format != "" && !checkFormat(spec.Format, s) {
			add(fmt.Sprintf("value is not a valid %s", spec.Format), types.IssueFormat)
		}
	}

	return issues
}

func checkFormat(format types.Format, s string) bool {
	switch format {
	case types.FormatEmail:
		return IsEmail(s)
	case types.FormatURL:
		return IsURL(s)
	case types.FormatISODate:
		return IsISODate(s)
	}
	return true
}

func isSequence(value any) bool {
	switch value.(type) {
	case []any, []string, []int, []int64, []float64, []bool, []types.Record, []map[string]any:
		return true
	}
	return false
}

func isDateValue(value any) bool {
	switch d := value.(type) {
	case time.Time:
		return !d.IsZero()
	case string:
		return true
	default:
		_, isNum := types.ToNumber(value)
		return isNum
	}
}

// cloneValue deep-copies map and []any defaults so records never share
// those mutable default values; other slice types are returned as is
func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = cloneValue(item)
		}
		return out
	case types.Record:
		out := make(types.Record, len(val))
		for k, item := range val {
			out[k] = cloneValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
