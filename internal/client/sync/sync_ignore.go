package sync

import (
	"bufio"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/AzPepoze/gdrive-bisync/internal/utils"
	gitignore "github.com/sabhiram/go-gitignore"
)

const (
	IgnoreFileName = ".bisyncignore"

	// downloads land in a temp file next to the target before the rename
	tempFilePrefix = ".bisync-tmp-"
)

// SyncIgnoreList decides which relative paths are invisible to scanning,
// diffing and watching. It combines the configured regular expressions,
// gitignore-style rules from an optional .bisyncignore file in the root, and
// reserved root-level files such as the metadata file.
type SyncIgnoreList struct {
	baseDir  string
	patterns []*regexp.Regexp
	reserved []string
	rules    *gitignore.GitIgnore
}

func NewSyncIgnoreList(baseDir string, patterns []*regexp.Regexp, reserved ...string) *SyncIgnoreList {
	return &SyncIgnoreList{
		baseDir:  baseDir,
		patterns: patterns,
		reserved: reserved,
	}
}

// Load reads the ignore file, if present. Safe to call again to pick up edits.
func (s *SyncIgnoreList) Load() {
	ignorePath := filepath.Join(s.baseDir, IgnoreFileName)
	if !utils.FileExists(ignorePath) {
		s.rules = nil
		return
	}

	file, err := os.Open(ignorePath)
	if err != nil {
		slog.Warn("ignore file open", "path", ignorePath, "error", err)
		return
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" && !strings.HasPrefix(line, "#") {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		slog.Warn("ignore file read", "path", ignorePath, "error", err)
		return
	}

	s.rules = gitignore.CompileIgnoreLines(lines...)
	slog.Info("ignore file loaded", "path", ignorePath, "rules", len(lines))
}

// ShouldIgnore expects a slash-separated path relative to the root
func (s *SyncIgnoreList) ShouldIgnore(relPath string) bool {
	if relPath == "" || relPath == rootPath {
		return false
	}

	for _, name := range s.reserved {
		if relPath == name || strings.HasPrefix(relPath, "."+name+".tmp-") {
			return true
		}
	}

	if strings.HasPrefix(path.Base(relPath), tempFilePrefix) {
		return true
	}

	for _, re := range s.patterns {
		if re.MatchString(relPath) {
			return true
		}
	}

	// "dir/" rules only match with the trailing slash
	return s.rules != nil && (s.rules.MatchesPath(relPath) || s.rules.MatchesPath(relPath+"/"))
}
