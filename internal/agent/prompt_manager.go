package agent

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rahul/delver/internal/engine"
)

//go:embed prompts/planner.md
var defaultPrompts embed.FS

const (
	plannerFile = "planner.md"
	reportFile  = "report.md"

	// contentPlaceholder marks where a custom report.md receives the
	// joined source text.
	contentPlaceholder = "{{content}}"
)

// PromptManager loads prompt files from a directory, falling back to the
// built-in planner prompt and report template when a file is absent.
type PromptManager struct {
	Directory string
}

func NewPromptManager(dir string) *PromptManager {
	return &PromptManager{Directory: dir}
}

// GetContextPrompt joins the persona files (identity, soul, capabilities,
// user, then any other .md) that give the planner extra context. The
// planner and report prompts are excluded.
func (pm *PromptManager) GetContextPrompt() (string, error) {
	files, err := os.ReadDir(pm.Directory)
	if err != nil {
		return "", fmt.Errorf("failed to read prompts directory: %w", err)
	}

	var contents []string

	order := map[string]int{
		"identity.md":     1,
		"soul.md":         2,
		"capabilities.md": 3,
		"user.md":         4,
	}

	sort.Slice(files, func(i, j int) bool {
		oi, okI := order[files[i].Name()]
		oj, okJ := order[files[j].Name()]
		if okI && okJ {
			return oi < oj
		}
		if okI {
			return true
		}
		if okJ {
			return false
		}
		return files[i].Name() < files[j].Name()
	})

	for _, f := range files {
		name := f.Name()
		if f.IsDir() || !strings.HasSuffix(name, ".md") || name == plannerFile || name == reportFile {
			continue
		}
		path := filepath.Join(pm.Directory, name)
		data, err := os.ReadFile(path)
		if err != nil {
			log.Printf("Warning: Failed to read prompt file %s: %v", path, err)
			continue
		}
		contents = append(contents, string(data))
	}

	return strings.Join(contents, "\n\n---\n\n"), nil
}

// GetPlannerPrompt returns planner.md from the directory, or the built-in
// prompt when the file does not exist.
func (pm *PromptManager) GetPlannerPrompt() (string, error) {
	data, err := os.ReadFile(filepath.Join(pm.Directory, plannerFile))
	if errors.Is(err, fs.ErrNotExist) {
		data, err = defaultPrompts.ReadFile("prompts/" + plannerFile)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read planner prompt: %w", err)
	}
	return string(data), nil
}

// GetReportPrompt returns the summarize prompt builder. A report.md in the
// directory replaces the built-in analyst template; its {{content}}
// placeholder receives the source text, which is appended when the
// placeholder is missing.
func (pm *PromptManager) GetReportPrompt() func(string) string {
	data, err := os.ReadFile(filepath.Join(pm.Directory, reportFile))
	if err != nil || strings.TrimSpace(string(data)) == "" {
		return engine.DefaultReportPrompt
	}
	tmpl := string(data)
	return func(content string) string {
		if strings.Contains(tmpl, contentPlaceholder) {
			return strings.ReplaceAll(tmpl, contentPlaceholder, content)
		}
		return tmpl + "\n\n" + content
	}
}
