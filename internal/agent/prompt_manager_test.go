package agent

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rahul/delver/internal/engine"
)

func TestPromptManager_GetContextPrompt(t *testing.T) {
	tempDir := t.TempDir()

	files := map[string]string{
		"identity.md":     "Identity Content",
		"soul.md":         "Soul Content",
		"capabilities.md": "Capabilities Content",
		"user.md":         "User Content",
		"extra.md":        "Extra Content",
		"planner.md":      "Planner Content",
		"report.md":       "Report Content",
	}

	for name, content := range files {
		err := os.WriteFile(filepath.Join(tempDir, name), []byte(content), 0644)
		if err != nil {
			t.Fatal(err)
		}
	}

	pm := NewPromptManager(tempDir)
	prompt, err := pm.GetContextPrompt()
	if err != nil {
		t.Fatal(err)
	}

	expectedParts := []string{
		"Identity Content",
		"Soul Content",
		"Capabilities Content",
		"User Content",
		"Extra Content",
	}

	for _, part := range expectedParts {
		if !strings.Contains(prompt, part) {
			t.Errorf("Prompt missing expected part: %s", part)
		}
	}
	if strings.Contains(prompt, "Planner Content") || strings.Contains(prompt, "Report Content") {
		t.Error("planner and report prompts must not be part of the context prompt")
	}

	// Verify order
	if strings.Index(prompt, "Identity Content") >= strings.Index(prompt, "Soul Content") {
		t.Error("Identity should be before Soul")
	}
	if strings.Index(prompt, "Soul Content") >= strings.Index(prompt, "Capabilities Content") {
		t.Error("Soul should be before Capabilities")
	}
	if strings.Index(prompt, "Capabilities Content") >= strings.Index(prompt, "User Content") {
		t.Error("Capabilities should be before User")
	}
	if strings.Index(prompt, "User Content") >= strings.Index(prompt, "Extra Content") {
		t.Error("User should be before unlisted files")
	}
}

func TestPromptManager_PlannerPromptFallback(t *testing.T) {
	pm := NewPromptManager(filepath.Join(t.TempDir(), "missing"))
	prompt, err := pm.GetPlannerPrompt()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(prompt, "propose_plan") {
		t.Errorf("expected built-in planner prompt, got %q", prompt)
	}

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "planner.md"), []byte("custom planner"), 0644); err != nil {
		t.Fatal(err)
	}
	prompt, err = NewPromptManager(dir).GetPlannerPrompt()
	if err != nil {
		t.Fatal(err)
	}
	if prompt != "custom planner" {
		t.Errorf("expected custom planner prompt, got %q", prompt)
	}
}

func TestPromptManager_ReportPrompt(t *testing.T) {
	build := NewPromptManager(t.TempDir()).GetReportPrompt()
	if got, want := build("page text"), engine.DefaultReportPrompt("page text"); got != want {
		t.Errorf("expected default report template")
	}

	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "report.md"), []byte("Brief on:\n{{content}}\nEnd."), 0644)
	build = NewPromptManager(dir).GetReportPrompt()
	if got := build("page text"); got != "Brief on:\npage text\nEnd." {
		t.Errorf("unexpected templated prompt %q", got)
	}

	os.WriteFile(filepath.Join(dir, "report.md"), []byte("Write a brief."), 0644)
	build = NewPromptManager(dir).GetReportPrompt()
	if got := build("page text"); got != "Write a brief.\n\npage text" {
		t.Errorf("unexpected appended prompt %q", got)
	}
}
