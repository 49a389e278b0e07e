package dataprocessing

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v2"

	apperrors "dtpanel/internal/errors"
	"dtpanel/internal/files"
	"dtpanel/pkg/contracts/domain"
)

//go:embed sources.yaml
var defaultRegistryYAML []byte

// Scope selects the directory tree a source file is searched in.
type Scope string

const (
	ScopeControl Scope = "control"
	ScopeBase    Scope = "base"
	ScopeTFP     Scope = "tfp"
)

// Role says how a source takes part in the pipeline.
type Role string

const (
	RoleBase      Role = "base"
	RoleSecondary Role = "secondary"
	RoleRegion    Role = "region"
	RoleFactor    Role = "factor"
)

// ColumnKind controls how a source cell is converted.
type ColumnKind string

const (
	KindNumber ColumnKind = "number"
	KindLabel  ColumnKind = "label"
	KindYear   ColumnKind = "year"
)

// ColumnSpec renames one source column to its canonical name.
type ColumnSpec struct {
	From string     `yaml:"from" validate:"required"`
	To   string     `yaml:"to" validate:"required"`
	Kind ColumnKind `yaml:"kind" validate:"omitempty,oneof=number label year"`
}

// SourceSpec describes one dataset: where its file lives, how rows are
// keyed, which columns are kept and what role it plays.
type SourceSpec struct {
	Name         string       `yaml:"name" validate:"required"`
	File         string       `yaml:"file" validate:"required"`
	Scope        Scope        `yaml:"scope" validate:"oneof=control base tfp"`
	Role         Role         `yaml:"role" validate:"oneof=base secondary region factor"`
	IDColumn     string       `yaml:"id_column" validate:"required"`
	PeriodColumn string       `yaml:"period_column" validate:"required"`
	PeriodKind   string       `yaml:"period_kind" validate:"omitempty,oneof=date year"`
	JoinLabel    string       `yaml:"join_label" validate:"required_if=Role region"`
	Columns      []ColumnSpec `yaml:"columns" validate:"min=1,dive"`
	Required     []string     `yaml:"required"`
}

// Period kinds: a date-valued period column or one holding plain years.
const (
	PeriodDate = "date"
	PeriodYear = "year"
)

// ParsePeriod extracts the fiscal year from a period cell according to
// PeriodKind.
func (s SourceSpec) ParsePeriod(raw string) (int, bool) {
	if s.PeriodKind == PeriodYear {
		return ParseYearValue(raw)
	}
	return ParseYear(raw)
}

// IsRegion reports whether rows are keyed by a region name rather than a
// security code.
func (s SourceSpec) IsRegion() bool {
	return s.Role == RoleRegion
}

// Registry is the ordered list of known sources.
type Registry struct {
	Sources []SourceSpec `yaml:"sources" validate:"min=1,dive"`
}

// DefaultRegistry returns the embedded registry.
func DefaultRegistry() (*Registry, error) {
	return ParseRegistry(defaultRegistryYAML)
}

// LoadRegistry reads a registry file, or the embedded default when path is
// empty.
func LoadRegistry(path string) (*Registry, error) {
	if path == "" {
		return DefaultRegistry()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.NewConfigError("failed to read registry file "+path, err)
	}
	return ParseRegistry(data)
}

// ParseRegistry decodes and validates a YAML registry.
func ParseRegistry(data []byte) (*Registry, error) {
	var r Registry
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, apperrors.NewConfigError("failed to parse registry", err)
	}
	for i := range r.Sources {
		for j := range r.Sources[i].Columns {
			if r.Sources[i].Columns[j].Kind == "" {
				r.Sources[i].Columns[j].Kind = KindNumber
			}
		}
		if r.Sources[i].PeriodKind == "" {
			r.Sources[i].PeriodKind = PeriodDate
		}
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

var registryValidator = validator.New()

// Validate rejects registries the pipeline cannot run: duplicate names,
// not exactly one base source, factor roles missing or repeated, and
// unknown scopes, roles or kinds.
func (r *Registry) Validate() error {
	if err := registryValidator.Struct(r); err != nil {
		return apperrors.NewConfigError("invalid source registry", err)
	}

	names := make(map[string]bool)
	bases := 0
	factors := make(map[string]string)
	for _, s := range r.Sources {
		if names[s.Name] {
			return apperrors.NewConfigError(fmt.Sprintf("duplicate source name %q", s.Name), nil)
		}
		names[s.Name] = true

		switch s.Role {
		case RoleBase:
			bases++
		case RoleRegion:
			if s.JoinLabel != domain.ColCity && s.JoinLabel != domain.ColProvince {
				return apperrors.NewConfigError(fmt.Sprintf("source %q: join_label must be %s or %s", s.Name, domain.ColCity, domain.ColProvince), nil)
			}
		case RoleFactor:
			for _, c := range s.Columns {
				if prev, dup := factors[c.To]; dup {
					return apperrors.NewConfigError(fmt.Sprintf("factor %s provided by both %q and %q", c.To, prev, s.Name), nil)
				}
				factors[c.To] = s.Name
			}
		}

		targets := make(map[string]bool)
		for _, c := range s.Columns {
			if c.To == domain.ColStkcd || c.To == domain.ColYear {
				return apperrors.NewConfigError(fmt.Sprintf("source %q: column %s is reserved", s.Name, c.To), nil)
			}
			targets[c.To] = true
		}
		for _, req := range s.Required {
			if !targets[req] {
				return apperrors.NewConfigError(fmt.Sprintf("source %q: required column %s is not mapped", s.Name, req), nil)
			}
		}
	}

	if bases != 1 {
		return apperrors.NewConfigError(fmt.Sprintf("registry needs exactly one base source, found %d", bases), nil)
	}
	if len(factors) > 0 {
		for _, f := range domain.FactorColumns {
			if _, ok := factors[f]; !ok {
				return apperrors.NewConfigError("factor sources do not provide "+f, nil)
			}
		}
	}
	return nil
}

// Base returns the base source.
func (r *Registry) Base() SourceSpec {
	for _, s := range r.Sources {
		if s.Role == RoleBase {
			return s
		}
	}
	return SourceSpec{}
}

// ByRole returns the sources with role, in registry order.
func (r *Registry) ByRole(role Role) []SourceSpec {
	var out []SourceSpec
	for _, s := range r.Sources {
		if s.Role == role {
			out = append(out, s)
		}
	}
	return out
}

// Lookup returns the named source.
func (r *Registry) Lookup(name string) (SourceSpec, bool) {
	for _, s := range r.Sources {
		if s.Name == name {
			return s, true
		}
	}
	return SourceSpec{}, false
}

// ScopeDirs maps every scope to the directory it searches.
type ScopeDirs struct {
	Control string
	Base    string
	TFP     string
}

func (d ScopeDirs) dir(s Scope) string {
	switch s {
	case ScopeControl:
		return d.Control
	case ScopeTFP:
		return d.TFP
	default:
		return d.Base
	}
}

// Resolution is the lookup outcome for one source.
type Resolution struct {
	Spec  SourceSpec
	Dir   string
	Path  string
	Found bool
}

// Resolve locates every source file once. Absent files are reported with
// Found == false; only I/O failures return an error.
func (r *Registry) Resolve(discovery *files.Discovery, dirs ScopeDirs) ([]Resolution, error) {
	out := make([]Resolution, 0, len(r.Sources))
	for _, s := range r.Sources {
		dir := dirs.dir(s.Scope)
		path, ok, err := discovery.FindFile(dir, s.File)
		if err != nil {
			return nil, fmt.Errorf("resolve source %s: %w", s.Name, err)
		}
		out = append(out, Resolution{Spec: s, Dir: dir, Path: path, Found: ok})
	}
	return out, nil
}
