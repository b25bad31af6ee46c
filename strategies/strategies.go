// Package strategies ships seed strategies. They double as smoke tests for the sandbox
// and as starting points for generated code.
package strategies

import (
	"embed"
	"errors"
	"fmt"
	"path"
	"slices"
	"strings"

	"atlas/types"
)

var ErrUnknownStrategy = errors.New("unknown strategy")

//go:embed *.star
var sources embed.FS

const ext = ".star"

// Names lists the seeds in lexical order.
func Names() []string {
	entries, _ := sources.ReadDir(".")
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ext))
	}
	slices.Sort(names)
	return names
}

func Get(name string) (types.CandidateCode, error) {
	raw, err := sources.ReadFile(path.Clean(name) + ext)
	if err != nil {
		return types.CandidateCode{}, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
	return types.NewCandidateCode(name, string(raw)), nil
}

func All() []types.CandidateCode {
	names := Names()
	out := make([]types.CandidateCode, 0, len(names))
	for _, name := range names {
		code, _ := Get(name)
		out = append(out, code)
	}
	return out
}
