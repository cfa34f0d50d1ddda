package oracle

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

//go:embed prompts/*.md
var builtinPrompts embed.FS

// Prompt names.
const (
	PromptVariables  = "variables"
	PromptExtract    = "extract"
	PromptReidentify = "reidentify"
	PromptAgent      = "agent"
)

// Prompts loads system prompts by name. A file <name>.md in Directory
// overrides the built-in prompt of the same name.
type Prompts struct {
	Directory string
}

func NewPrompts(dir string) *Prompts {
	return &Prompts{Directory: dir}
}

func (p *Prompts) Get(name string) (string, error) {
	file := name + ".md"
	if p != nil && p.Directory != "" {
		data, err := os.ReadFile(filepath.Join(p.Directory, file))
		switch {
		case err == nil:
			return strings.TrimSpace(string(data)), nil
		case !errors.Is(err, fs.ErrNotExist):
			return "", fmt.Errorf("read prompt %s: %w", name, err)
		}
	}
	data, err := builtinPrompts.ReadFile("prompts/" + file)
	if err != nil {
		return "", fmt.Errorf("unknown prompt %q", name)
	}
	return strings.TrimSpace(string(data)), nil
}
