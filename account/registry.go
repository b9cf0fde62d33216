package account

import (
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

// Registry provides the accounts known to a host.
type Registry interface {
	// Account returns the account with the id or ErrNotFound.
	Account(id string) (*Account, error)

	// Accounts returns every account ordered by id.
	Accounts() []*Account
}

// StaticRegistry is a Registry of a fixed set of accounts.
type StaticRegistry struct {
	byID map[string]*Account
}

var _ Registry = (*StaticRegistry)(nil)

// registryFile is the registry's file format.
type registryFile struct {
	Accounts []*Account `yaml:"accounts"`
}

// NewStaticRegistry creates a registry of the accounts.  Every account is
// validated and all the validation problems are returned together.
func NewStaticRegistry(accounts ...*Account) (*StaticRegistry, error) {
	const op = "account.NewStaticRegistry"
	v := newValidator()
	r := &StaticRegistry{byID: make(map[string]*Account, len(accounts))}
	var result *multierror.Error
	for i, a := range accounts {
		if a == nil {
			result = multierror.Append(result, fmt.Errorf("account %d is nil: %w", i, ErrInvalidAccount))
			continue
		}
		if err := v.Struct(a); err != nil {
			result = multierror.Append(result, fmt.Errorf("account %d (%q): %s: %w", i, a.ID, describe(err), ErrInvalidAccount))
			continue
		}
		if _, ok := r.byID[a.ID]; ok {
			result = multierror.Append(result, fmt.Errorf("account %d: id %q: %w", i, a.ID, ErrDuplicateAccount))
			continue
		}
		r.byID[a.ID] = a
	}
	if err := result.ErrorOrNil(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return r, nil
}

// LoadRegistry reads a registry file.  See ParseRegistry.
func LoadRegistry(path string, opt ...Option) (*StaticRegistry, error) {
	const op = "account.LoadRegistry"
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer f.Close()
	r, err := ParseRegistry(f, opt...)
	if err != nil {
		return nil, fmt.Errorf("%s: %s: %w", op, path, err)
	}
	return r, nil
}

// ParseRegistry decodes a YAML registry with an "accounts" list.  Environment
// variables ($VAR or ${VAR}) are expanded before decoding.  Supports the
// WithLogger option.
func ParseRegistry(in io.Reader, opt ...Option) (*StaticRegistry, error) {
	const op = "account.ParseRegistry"
	if in == nil {
		return nil, fmt.Errorf("%s: reader is nil: %w", op, ErrInvalidParameter)
	}
	opts := getRegistryOpts(opt...)
	content, err := io.ReadAll(in)
	if err != nil {
		return nil, fmt.Errorf("%s: read registry: %w", op, err)
	}
	var f registryFile
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(content))), &f); err != nil {
		return nil, fmt.Errorf("%s: decode registry: %w", op, err)
	}
	r, err := NewStaticRegistry(f.Accounts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	opts.withLogger.Debug("loaded account registry", "accounts", len(r.byID))
	return r, nil
}

// Account returns the account with the id or ErrNotFound.
func (r *StaticRegistry) Account(id string) (*Account, error) {
	const op = "account.(StaticRegistry).Account"
	a, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("%s: %q: %w", op, id, ErrNotFound)
	}
	return a, nil
}

// Accounts returns every account ordered by id.
func (r *StaticRegistry) Accounts() []*Account {
	out := make([]*Account, 0, len(r.byID))
	for _, a := range r.byID {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// describe flattens validator errors into "field: tag" pairs.
func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(parts, ", ")
}

type registryOptions struct {
	withLogger hclog.Logger
}

func registryDefaults() registryOptions {
	return registryOptions{
		withLogger: hclog.NewNullLogger(),
	}
}

func getRegistryOpts(opt ...Option) registryOptions {
	opts := registryDefaults()
	ApplyOpts(&opts, opt...)
	if opts.withLogger == nil {
		opts.withLogger = hclog.NewNullLogger()
	}
	return opts
}
