package transport

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
)

// Quote single-quotes s for a POSIX shell.
func Quote(s string) string {
	if s == "" {
		return "''"
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

// File is the outcome of reading a file on the target
type File struct {
	Path    string
	Content string

	// Complaint is the diagnostic printed instead of the content; empty
	// when the file was read
	Complaint string
	Missing   bool
	Denied    bool
}

// OK reports whether Content holds the file
func (f File) OK() bool {
	return f.Complaint == ""
}

// ReadFile returns path via cat. A missing or unreadable file is not an
// error: the reason is recorded on the returned File.
func ReadFile(ctx context.Context, r Runner, path string, elevated bool) (File, error) {
	res, err := r.Run(ctx, "cat "+Quote(path)+" 2>&1", ElevatedIf(elevated))
	if err != nil {
		return File{Path: path}, err
	}
	return Classify(path, res, "cat"), nil
}

// Classify turns the result of a file tool such as cat or tail into a File.
// Only the tool's own diagnostic is inspected, never the file content: a
// first line from the tool or from sudo counts even with exit status 0, and
// any other output counts only when the exit status is nonzero.
func Classify(path string, res CommandResult, tool string) File {
	if d := Diagnostic(res, tool); d != "" {
		return File{Path: path, Complaint: d, Missing: IsMissing(d), Denied: IsPermissionDenied(d)}
	}
	return File{Path: path, Content: res.Output}
}

// Diagnostic returns the complaint tool printed instead of a file, or ""
func Diagnostic(res CommandResult, tool string) string {
	lines := res.Lines()
	if len(lines) > 0 && fromTool(lines[0], tool) {
		return strings.TrimSpace(lines[0])
	}
	if res.OK() {
		return ""
	}
	for _, l := range lines {
		if fromTool(l, tool) {
			return strings.TrimSpace(l)
		}
	}
	if out := res.Trimmed(); out != "" {
		return out
	}
	return fmt.Sprintf("%s exited with status %d", tool, res.ExitCode)
}

func fromTool(line, tool string) bool {
	return strings.HasPrefix(line, tool+": ") || strings.HasPrefix(line, "sudo: ")
}

// IsMissing reports whether a diagnostic is a "no such file" complaint
func IsMissing(diagnostic string) bool {
	return strings.Contains(diagnostic, "No such file") || strings.Contains(diagnostic, "cannot access")
}

// IsPermissionDenied reports whether a diagnostic is a permission complaint
func IsPermissionDenied(diagnostic string) bool {
	return strings.Contains(diagnostic, "Permission denied") ||
		strings.Contains(diagnostic, "Operation not permitted") ||
		strings.Contains(diagnostic, "a password is required")
}

// WriteFile writes content to path on the target, optionally elevated. It
// reports false for an expected failure (permission, missing directory) and
// returns an error only when the transport itself is unavailable.
func WriteFile(ctx context.Context, r Runner, path, content string, elevated bool) (bool, error) {
	type writer interface {
		WriteFile(ctx context.Context, path, content string, elevated bool) (bool, error)
	}
	if w, ok := r.(writer); ok {
		return w.WriteFile(ctx, path, content, elevated)
	}
	return writeFileCommand(ctx, r, path, content, elevated)
}

func writeFileCommand(ctx context.Context, r Runner, path, content string, elevated bool) (bool, error) {
	encoded := base64.StdEncoding.EncodeToString([]byte(content))
	cmd := fmt.Sprintf("printf '%%s' %s | base64 -d > %s", Quote(encoded), Quote(path))
	res, err := r.Run(ctx, cmd, ElevatedIf(elevated))
	if err != nil {
		return false, err
	}
	return res.OK(), nil
}

// Exists reports whether path exists on the target
func Exists(ctx context.Context, r Runner, path string) bool {
	res, err := r.Run(ctx, "test -e "+Quote(path), WithTimeout(ShortTimeout))
	return err == nil && res.OK()
}

// DirExists reports whether path is a directory on the target
func DirExists(ctx context.Context, r Runner, path string) bool {
	res, err := r.Run(ctx, "test -d "+Quote(path), WithTimeout(ShortTimeout))
	return err == nil && res.OK()
}

// Which returns the path of the first of names found in PATH
func Which(ctx context.Context, r Runner, names ...string) (string, bool) {
	for _, name := range names {
		res, err := r.Run(ctx, "command -v "+Quote(name)+" 2>/dev/null", WithTimeout(ShortTimeout))
		if err != nil {
			return "", false
		}
		if out := res.Trimmed(); res.OK() && out != "" {
			return out, true
		}
	}
	return "", false
}
