package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// builtinAgents are the core-op dispatches §6 names that this binary can
// actually run without a web-search/external-provider dependency this
// module's scope never wires in (researcher, auto-researcher, consultant,
// and proactive need a search provider per §6's "Configuration" note on web
// search credentials — none is configured here, so `agent run` reports them
// as unconfigured rather than pretending to execute).
var builtinAgents = []string{"librarian", "consolidator", "deleter"}

// agentSkills is the persisted skills.json for one custom agent definition
// under agents/<name>/.
type agentSkills struct {
	Skills []string `json:"skills"`
}

func runAgent(a *app, args []string) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: ultramemory agent <run|create|list|skills|add-skill> ...")
		os.Exit(1)
	}

	switch args[0] {
	case "run":
		agentRun(a, args[1:])
	case "create":
		agentCreate(a, args[1:])
	case "list":
		agentList(a)
	case "skills":
		agentShowSkills(a, args[1:])
	case "add-skill":
		agentAddSkill(a, args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown agent verb: %s\n", args[0])
		os.Exit(1)
	}
}

func agentRun(a *app, args []string) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: ultramemory agent run <name> [args...]")
		os.Exit(1)
	}
	name, rest := args[0], args[1:]

	if err := a.connectCore(context.Background()); err != nil {
		fatal(a, err)
	}
	defer a.close()

	switch name {
	case "librarian":
		agentRunLibrarian(a, rest)
	case "consolidator":
		memoryConsolidate(a, nil)
	case "deleter":
		memoryDelete(a, rest)
	default:
		if isCustomAgent(name) {
			fmt.Printf("agent %q has no built-in dispatch; its skills.json is advisory only — run one of %s directly\n", name, strings.Join(builtinAgents, ", "))
			return
		}
		fmt.Printf("agent %q requires an external provider this deployment has no credentials for (researcher/auto-researcher/consultant/proactive need a configured web-search provider)\n", name)
	}
}

// agentRunLibrarian walks a directory, chunking and adding every matched file
// through the Store Coordinator via the Document Processor's directory
// ingestion operation.
func agentRunLibrarian(a *app, args []string) {
	fs := flag.NewFlagSet("agent run librarian", flag.ExitOnError)
	var extensions multiFlag
	fs.Var(&extensions, "e", "extension to include, repeatable (default: txt/pdf/md/html/xlsx/csv)")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: ultramemory agent run librarian <directory> [-e ext ...]")
		os.Exit(1)
	}

	summary, err := a.processor.IngestDirectory(context.Background(), coordAdder{a.coord}, fs.Arg(0), extensions, map[string]any{"source_type": "directory"})
	if err != nil {
		fatal(a, fmt.Errorf("directory ingestion failed: %w", err))
	}
	fmt.Printf("files=%d chunks=%d\n", summary.FilesProcessed, summary.ChunksCreated)
	for _, r := range summary.Results {
		if r.Err != nil {
			fmt.Printf("  error: %s: %v\n", r.Path, r.Err)
		}
	}
}

func agentCreate(a *app, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: ultramemory agent create <name>")
		os.Exit(1)
	}
	name := args[0]
	root, err := ensureStateDir(a)
	if err != nil {
		fatal(a, err)
	}
	dir := filepath.Join(root, "agents", name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		fatal(a, fmt.Errorf("creating agent directory: %w", err))
	}
	readme := filepath.Join(dir, "README.md")
	if _, err := os.Stat(readme); os.IsNotExist(err) {
		if err := os.WriteFile(readme, []byte(fmt.Sprintf("# %s\n\nCustom agent definition.\n", name)), 0o644); err != nil {
			fatal(a, fmt.Errorf("writing README.md: %w", err))
		}
	}
	skillsPath := filepath.Join(dir, "skills.json")
	if _, err := os.Stat(skillsPath); os.IsNotExist(err) {
		if err := writeAgentSkills(skillsPath, agentSkills{}); err != nil {
			fatal(a, err)
		}
	}
	fmt.Printf("created agent %q at %s\n", name, dir)
}

func agentList(a *app) {
	fmt.Println("built-in:")
	for _, name := range builtinAgents {
		fmt.Printf("  %s\n", name)
	}
	fmt.Println("unconfigured (no web-search provider):")
	for _, name := range []string{"researcher", "auto-researcher", "consultant", "proactive"} {
		fmt.Printf("  %s\n", name)
	}

	root, err := ensureStateDir(a)
	if err != nil {
		return
	}
	entries, err := os.ReadDir(filepath.Join(root, "agents"))
	if err != nil {
		return
	}
	if len(entries) == 0 {
		return
	}
	fmt.Println("custom:")
	for _, e := range entries {
		if e.IsDir() {
			fmt.Printf("  %s\n", e.Name())
		}
	}
}

func agentShowSkills(a *app, args []string) {
	if len(args) == 0 {
		agentList(a)
		return
	}
	root, err := ensureStateDir(a)
	if err != nil {
		fatal(a, err)
	}
	skills, err := readAgentSkills(filepath.Join(root, "agents", args[0], "skills.json"))
	if err != nil {
		fatal(a, fmt.Errorf("reading skills for %s: %w", args[0], err))
	}
	if len(skills.Skills) == 0 {
		fmt.Printf("%s has no skills recorded\n", args[0])
		return
	}
	for _, s := range skills.Skills {
		fmt.Println(s)
	}
}

func agentAddSkill(a *app, args []string) {
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: ultramemory agent add-skill <agent> <skill>")
		os.Exit(1)
	}
	name, skill := args[0], args[1]

	root, err := ensureStateDir(a)
	if err != nil {
		fatal(a, err)
	}
	dir := filepath.Join(root, "agents", name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		fatal(a, fmt.Errorf("creating agent directory: %w", err))
	}
	path := filepath.Join(dir, "skills.json")
	skills, err := readAgentSkills(path)
	if err != nil {
		fatal(a, err)
	}
	skills.Skills = append(skills.Skills, skill)
	if err := writeAgentSkills(path, skills); err != nil {
		fatal(a, err)
	}
	fmt.Printf("added skill %q to agent %q\n", skill, name)
}

func isCustomAgent(name string) bool {
	root, err := statedirRootNoEnsure()
	if err != nil {
		return false
	}
	info, err := os.Stat(filepath.Join(root, "agents", name))
	return err == nil && info.IsDir()
}

func readAgentSkills(path string) (agentSkills, error) {
	var s agentSkills
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return s, fmt.Errorf("reading %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("parsing %s: %w", path, err)
	}
	return s, nil
}

func writeAgentSkills(path string, s agentSkills) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding skills.json: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
