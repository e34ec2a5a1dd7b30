package tool

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
)

// SpawnFunc runs a delegated sub-task and returns its final text. Supplied by
// the agent loop; nil when sub-task spawning is unavailable (subagents).
type SpawnFunc func(ctx context.Context, description, prompt string) (string, error)

// Options configures built-in tool registration.
type Options struct {
	WorkingDir string
	Timeout    time.Duration
	Todos      *TodoList
	Spawner    SpawnFunc
}

const (
	defaultShellTimeout = 30 * time.Second
	maxGrepResults      = 200
	maxTreeEntries      = 500
	maxFetchBytes       = 50_000
)

// RegisterBuiltins registers the built-in tool set on the registry.
func RegisterBuiltins(registry *Registry, opts Options) error {
	if opts.WorkingDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to resolve working directory: %w", err)
		}
		opts.WorkingDir = wd
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultShellTimeout
	}
	if opts.Todos == nil {
		opts.Todos = NewTodoList()
	}

	defs := []Definition{
		shellTool(opts),
		readFileTool(opts),
		writeFileTool(opts),
		editFileTool(opts),
		listFilesTool(opts),
		globTool(opts),
		grepTool(opts),
		treeTool(opts),
		webFetchTool(),
		webSearchTool(),
		todoTool(opts),
		taskTool(opts),
	}

	for _, def := range defs {
		if err := registry.Register(def); err != nil {
			return fmt.Errorf("failed to register tool %s: %w", def.Name, err)
		}
	}
	return nil
}

// resolvePath joins path against the working directory and rejects escapes.
func resolvePath(workingDir, path string) (string, error) {
	resolved := filepath.Clean(filepath.Join(workingDir, path))
	if resolved != workingDir && !strings.HasPrefix(resolved, workingDir+string(filepath.Separator)) {
		return "", fmt.Errorf("path %s is outside working directory", path)
	}
	return resolved, nil
}

func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

func intArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return def
}

func shellTool(opts Options) Definition {
	return Definition{
		Name:        "shell",
		Description: "Execute a shell command in the working directory.",
		Parameters: []Parameter{
			{Name: "command", Type: "string", Description: "The shell command to execute", Required: true},
			{Name: "timeout", Type: "integer", Description: "Timeout in seconds (default 30)"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			command := stringArg(args, "command")
			if command == "" {
				return "", fmt.Errorf("no command provided")
			}

			timeout := opts.Timeout
			if secs := intArg(args, "timeout", 0); secs > 0 {
				timeout = time.Duration(secs) * time.Second
			}
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			cmd := exec.CommandContext(ctx, "sh", "-c", command)
			cmd.Dir = opts.WorkingDir

			var stdout, stderr bytes.Buffer
			cmd.Stdout = &stdout
			cmd.Stderr = &stderr

			err := cmd.Run()

			output := stdout.String()
			if stderr.Len() > 0 {
				output += "\n[stderr]\n" + stderr.String()
			}
			output = strings.TrimSpace(output)

			if ctx.Err() == context.DeadlineExceeded {
				return "", fmt.Errorf("command timed out after %v", timeout)
			}
			if err != nil {
				if exitErr, ok := err.(*exec.ExitError); ok {
					return "", fmt.Errorf("exit code %d\n%s", exitErr.ExitCode(), output)
				}
				return "", err
			}
			return output, nil
		},
	}
}

func readFileTool(opts Options) Definition {
	return Definition{
		Name:        "read_file",
		Description: "Read a file's contents. Supports optional offset and limit for large files.",
		Parameters: []Parameter{
			{Name: "path", Type: "string", Description: "Path to the file (relative to working directory)", Required: true},
			{Name: "offset", Type: "integer", Description: "Line number to start reading from (1-based)"},
			{Name: "limit", Type: "integer", Description: "Maximum number of lines to read"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			path := stringArg(args, "path")
			resolved, err := resolvePath(opts.WorkingDir, path)
			if err != nil {
				return "", err
			}

			data, err := os.ReadFile(resolved)
			if err != nil {
				if os.IsNotExist(err) {
					return "", fmt.Errorf("file not found: %s", path)
				}
				return "", err
			}

			lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
			offset := intArg(args, "offset", 1)
			if offset < 1 {
				offset = 1
			}
			if offset-1 < len(lines) {
				lines = lines[offset-1:]
			} else {
				lines = nil
			}
			if limit := intArg(args, "limit", 0); limit > 0 && limit < len(lines) {
				lines = lines[:limit]
			}

			var b strings.Builder
			for i, line := range lines {
				fmt.Fprintf(&b, "%6d\t%s", offset+i, line)
				if i < len(lines)-1 {
					b.WriteByte('\n')
				}
			}
			return b.String(), nil
		},
	}
}

func writeFileTool(opts Options) Definition {
	return Definition{
		Name:        "write_file",
		Description: "Write content to a file. Creates parent directories as needed.",
		Parameters: []Parameter{
			{Name: "path", Type: "string", Description: "Path to the file", Required: true},
			{Name: "content", Type: "string", Description: "Content to write", Required: true},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			path := stringArg(args, "path")
			content := stringArg(args, "content")
			resolved, err := resolvePath(opts.WorkingDir, path)
			if err != nil {
				return "", err
			}
			if err := os.MkdirAll(filepath.Dir(resolved), 0755); err != nil {
				return "", err
			}
			if err := os.WriteFile(resolved, []byte(content), 0644); err != nil {
				return "", err
			}
			return fmt.Sprintf("Wrote %d bytes to %s", len(content), path), nil
		},
	}
}

func editFileTool(opts Options) Definition {
	return Definition{
		Name:        "edit_file",
		Description: "Perform a search-and-replace edit on a file. old_string must match exactly.",
		Parameters: []Parameter{
			{Name: "path", Type: "string", Description: "Path to the file", Required: true},
			{Name: "old_string", Type: "string", Description: "Exact text to find", Required: true},
			{Name: "new_string", Type: "string", Description: "Replacement text", Required: true},
			{Name: "replace_all", Type: "boolean", Description: "Replace all occurrences (default false)"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			path := stringArg(args, "path")
			oldString := stringArg(args, "old_string")
			newString := stringArg(args, "new_string")
			replaceAll, _ := args["replace_all"].(bool)

			resolved, err := resolvePath(opts.WorkingDir, path)
			if err != nil {
				return "", err
			}
			data, err := os.ReadFile(resolved)
			if err != nil {
				if os.IsNotExist(err) {
					return "", fmt.Errorf("file not found: %s", path)
				}
				return "", err
			}

			content := string(data)
			count := strings.Count(content, oldString)
			if count == 0 {
				return "", fmt.Errorf("old_string not found in file")
			}
			if !replaceAll && count > 1 {
				return "", fmt.Errorf("old_string found %d times; use replace_all or provide more context", count)
			}

			var updated string
			if replaceAll {
				updated = strings.ReplaceAll(content, oldString, newString)
			} else {
				updated = strings.Replace(content, oldString, newString, 1)
			}
			if err := os.WriteFile(resolved, []byte(updated), 0644); err != nil {
				return "", err
			}
			return fmt.Sprintf("Edited %s", path), nil
		},
	}
}

func listFilesTool(opts Options) Definition {
	return Definition{
		Name:        "list_files",
		Description: "List files and directories at the given path.",
		Parameters: []Parameter{
			{Name: "path", Type: "string", Description: "Path to list (default '.')"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			path := stringArg(args, "path")
			if path == "" {
				path = "."
			}
			resolved, err := resolvePath(opts.WorkingDir, path)
			if err != nil {
				return "", err
			}

			info, err := os.Stat(resolved)
			if err != nil {
				return "", fmt.Errorf("path not found: %s", path)
			}
			if !info.IsDir() {
				return path, nil
			}

			entries, err := os.ReadDir(resolved)
			if err != nil {
				return "", err
			}
			names := make([]string, 0, len(entries))
			for _, entry := range entries {
				name := entry.Name()
				if entry.IsDir() {
					name += "/"
				}
				names = append(names, name)
			}
			sort.Strings(names)
			return strings.Join(names, "\n"), nil
		},
	}
}

func globTool(opts Options) Definition {
	return Definition{
		Name:        "glob",
		Description: "Find files matching a glob pattern (e.g. '**/*.go').",
		Parameters: []Parameter{
			{Name: "pattern", Type: "string", Description: "Glob pattern", Required: true},
			{Name: "path", Type: "string", Description: "Base directory (default '.')"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			pattern := stringArg(args, "pattern")
			if pattern == "" {
				return "", fmt.Errorf("no pattern provided")
			}
			base := stringArg(args, "path")
			if base == "" {
				base = "."
			}
			resolved, err := resolvePath(opts.WorkingDir, base)
			if err != nil {
				return "", err
			}

			var matches []string
			err = filepath.WalkDir(resolved, func(p string, d fs.DirEntry, walkErr error) error {
				if walkErr != nil {
					return nil
				}
				if d.IsDir() {
					return nil
				}
				rel, relErr := filepath.Rel(resolved, p)
				if relErr != nil {
					return nil
				}
				if matchGlob(pattern, rel) {
					matches = append(matches, rel)
				}
				return nil
			})
			if err != nil {
				return "", err
			}

			sort.Strings(matches)
			if len(matches) == 0 {
				return "(no matches)", nil
			}
			if len(matches) > 500 {
				matches = matches[:500]
			}
			return strings.Join(matches, "\n"), nil
		},
	}
}

// matchGlob matches a relative path against a glob pattern, treating a
// leading "**/" as "any directory prefix, including none".
func matchGlob(pattern, rel string) bool {
	rel = filepath.ToSlash(rel)
	if ok, _ := filepath.Match(pattern, rel); ok {
		return true
	}
	if after, found := strings.CutPrefix(pattern, "**/"); found {
		if ok, _ := filepath.Match(after, rel); ok {
			return true
		}
		if ok, _ := filepath.Match(after, filepath.Base(rel)); ok {
			return true
		}
	}
	return false
}

func grepTool(opts Options) Definition {
	return Definition{
		Name:        "grep",
		Description: "Search file contents for a regex pattern.",
		Parameters: []Parameter{
			{Name: "pattern", Type: "string", Description: "Regex pattern to search for", Required: true},
			{Name: "path", Type: "string", Description: "File or directory to search in (default '.')"},
			{Name: "include", Type: "string", Description: "Glob to filter files (e.g. '*.go')"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			pattern := stringArg(args, "pattern")
			if pattern == "" {
				return "", fmt.Errorf("no pattern provided")
			}
			regex, err := regexp.Compile(pattern)
			if err != nil {
				return "", fmt.Errorf("invalid regex: %v", err)
			}

			path := stringArg(args, "path")
			if path == "" {
				path = "."
			}
			include := stringArg(args, "include")
			resolved, err := resolvePath(opts.WorkingDir, path)
			if err != nil {
				return "", err
			}

			var results []string
			searchFile := func(fpath, rel string) {
				data, readErr := os.ReadFile(fpath)
				if readErr != nil {
					return
				}
				for i, line := range strings.Split(string(data), "\n") {
					if len(results) >= maxGrepResults {
						return
					}
					if regex.MatchString(line) {
						results = append(results, fmt.Sprintf("%s:%d: %s", rel, i+1, strings.TrimRight(line, "\r")))
					}
				}
			}

			info, err := os.Stat(resolved)
			if err != nil {
				return "", fmt.Errorf("path not found: %s", path)
			}
			if !info.IsDir() {
				searchFile(resolved, path)
			} else {
				filepath.WalkDir(resolved, func(p string, d fs.DirEntry, walkErr error) error {
					if walkErr != nil || d.IsDir() {
						return nil
					}
					if len(results) >= maxGrepResults {
						return fs.SkipAll
					}
					if include != "" {
						if ok, _ := filepath.Match(include, d.Name()); !ok {
							return nil
						}
					}
					rel, relErr := filepath.Rel(opts.WorkingDir, p)
					if relErr != nil {
						rel = p
					}
					searchFile(p, rel)
					return nil
				})
			}

			if len(results) == 0 {
				return "(no matches)", nil
			}
			output := strings.Join(results, "\n")
			if len(results) >= maxGrepResults {
				output += fmt.Sprintf("\n... (truncated at %d results)", maxGrepResults)
			}
			return output, nil
		},
	}
}

func treeTool(opts Options) Definition {
	return Definition{
		Name:        "tree",
		Description: "Show a recursive directory tree view.",
		Parameters: []Parameter{
			{Name: "path", Type: "string", Description: "Root directory (default '.')"},
			{Name: "max_depth", Type: "integer", Description: "Maximum depth (default 3)"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			path := stringArg(args, "path")
			if path == "" {
				path = "."
			}
			maxDepth := intArg(args, "max_depth", 3)
			resolved, err := resolvePath(opts.WorkingDir, path)
			if err != nil {
				return "", err
			}
			if _, err := os.Stat(resolved); err != nil {
				return "", fmt.Errorf("path not found: %s", path)
			}

			lines := []string{filepath.Base(resolved) + "/"}
			var walk func(dir, prefix string, depth int)
			walk = func(dir, prefix string, depth int) {
				if depth > maxDepth || len(lines) >= maxTreeEntries {
					return
				}
				entries, readErr := os.ReadDir(dir)
				if readErr != nil {
					return
				}
				var visible []fs.DirEntry
				for _, entry := range entries {
					if !strings.HasPrefix(entry.Name(), ".") {
						visible = append(visible, entry)
					}
				}
				sort.Slice(visible, func(i, j int) bool {
					if visible[i].IsDir() != visible[j].IsDir() {
						return visible[i].IsDir()
					}
					return visible[i].Name() < visible[j].Name()
				})
				for i, entry := range visible {
					if len(lines) >= maxTreeEntries {
						lines = append(lines, prefix+"... (truncated)")
						return
					}
					connector := "├── "
					extension := "│   "
					if i == len(visible)-1 {
						connector = "└── "
						extension = "    "
					}
					name := entry.Name()
					if entry.IsDir() {
						name += "/"
					}
					lines = append(lines, prefix+connector+name)
					if entry.IsDir() {
						walk(filepath.Join(dir, entry.Name()), prefix+extension, depth+1)
					}
				}
			}
			walk(resolved, "", 1)
			return strings.Join(lines, "\n"), nil
		},
	}
}

func webFetchTool() Definition {
	return Definition{
		Name:        "web_fetch",
		Description: "Fetch content from a URL and return it as text.",
		Parameters: []Parameter{
			{Name: "url", Type: "string", Description: "URL to fetch", Required: true},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			url := stringArg(args, "url")
			if url == "" {
				return "", fmt.Errorf("no URL provided")
			}

			ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
			defer cancel()

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return "", err
			}
			req.Header.Set("User-Agent", "rune/0.2")

			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return "", err
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes+1))
			if err != nil {
				return "", err
			}
			text := string(body)
			if len(text) > maxFetchBytes {
				text = text[:maxFetchBytes] + "\n... (truncated)"
			}
			return text, nil
		},
	}
}

func webSearchTool() Definition {
	return Definition{
		Name:        "web_search",
		Description: "Search the web for a query. Returns snippets and URLs.",
		Parameters: []Parameter{
			{Name: "query", Type: "string", Description: "Search query", Required: true},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			if stringArg(args, "query") == "" {
				return "", fmt.Errorf("no query provided")
			}
			return "", fmt.Errorf("web_search requires a SEARCH_API_KEY environment variable; " +
				"set it to use a search provider, or use web_fetch with a known URL")
		},
	}
}

func todoTool(opts Options) Definition {
	return Definition{
		Name:        "todo",
		Description: "Replace the shared task list with the given items and show it.",
		Parameters: []Parameter{
			{Name: "items", Type: "array", Description: "List of {content, status} items", Required: true},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			raw, _ := args["items"].([]any)
			items := make([]TodoItem, 0, len(raw))
			for _, entry := range raw {
				m, ok := entry.(map[string]any)
				if !ok {
					continue
				}
				item := TodoItem{Content: stringArg(m, "content"), Status: stringArg(m, "status")}
				if item.Content != "" {
					items = append(items, item)
				}
			}
			return opts.Todos.Set(items), nil
		},
	}
}

func taskTool(opts Options) Definition {
	return Definition{
		Name:        "task",
		Description: "Spawn a subagent to handle an independent subtask and return its summary.",
		Parameters: []Parameter{
			{Name: "description", Type: "string", Description: "Short description of the subtask"},
			{Name: "prompt", Type: "string", Description: "Detailed prompt for the subagent", Required: true},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			prompt := stringArg(args, "prompt")
			if prompt == "" {
				return "", fmt.Errorf("no prompt provided")
			}
			if opts.Spawner == nil {
				return "", fmt.Errorf("subagent spawning not available")
			}
			output, err := opts.Spawner(ctx, stringArg(args, "description"), prompt)
			if err != nil {
				return "", fmt.Errorf("subagent failed: %v", err)
			}
			return output, nil
		},
	}
}
