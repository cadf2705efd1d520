package idl

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// Registry holds every loaded Program keyed by on-chain address.
type Registry struct {
	programs map[string]*Program
}

func NewRegistry() *Registry {
	return &Registry{programs: make(map[string]*Program)}
}

// Add registers a parsed Program, keyed by its address, overwriting any
// program previously registered at that address.
func (r *Registry) Add(p *Program) {
	r.programs[p.Address] = p
}

func (r *Registry) Get(address string) (*Program, bool) {
	p, ok := r.programs[address]
	return p, ok
}

func (r *Registry) Len() int { return len(r.programs) }

// Programs returns every registered program, in no particular order.
func (r *Registry) Programs() []*Program {
	out := make([]*Program, 0, len(r.programs))
	for _, p := range r.programs {
		out = append(out, p)
	}
	return out
}

// LoadDir walks every *.json file directly under dir on the given
// filesystem and registers each as a Program. Using afero.Fs rather than
// the os package directly keeps directory loading testable against an
// in-memory filesystem.
func LoadDir(fs afero.Fs, dir string) (*Registry, error) {
	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil, fmt.Errorf("idl: reading schema directory %q: %w", dir, err)
	}

	reg := NewRegistry()
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := afero.ReadFile(fs, path)
		if err != nil {
			return nil, fmt.Errorf("idl: reading %q: %w", path, err)
		}
		program, err := ParseProgram(data)
		if err != nil {
			return nil, fmt.Errorf("idl: parsing %q: %w", path, err)
		}
		reg.Add(program)
	}
	return reg, nil
}
