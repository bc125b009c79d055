// Package input loads wikitext pages from local files and streams.
package input

import (
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/gobwas/glob"
)

type Source int

const (
	SourceFile Source = iota
	SourceStdin
	SourceWiki
)

func (s Source) String() string {
	switch s {
	case SourceFile:
		return "file"
	case SourceStdin:
		return "stdin"
	case SourceWiki:
		return "wiki"
	}
	return "unknown"
}

// Page is one loaded page with its title.
type Page struct {
	Title  string
	Path   string
	Text   string
	Source Source
}

// DefaultInclude matches file names picked up when walking a directory.
const DefaultInclude = "*.{wiki,mediawiki,txt}"

type Handler struct {
	include glob.Glob
}

// NewHandler compiles include, a glob on base names used by ReadDirectory.
// An empty pattern means DefaultInclude.
func NewHandler(include string) (*Handler, error) {
	if include == "" {
		include = DefaultInclude
	}
	g, err := glob.Compile(include)
	if err != nil {
		return nil, fmt.Errorf("compiling include pattern %q: %w", include, err)
	}
	return &Handler{include: g}, nil
}

// TitleFromPath derives a page title from a file name: the extension is
// dropped, underscores become spaces and percent escapes are decoded so
// that subpages can be stored as "Foo%2FBar.wiki".
func TitleFromPath(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if unescaped, err := url.PathUnescape(base); err == nil {
		base = unescaped
	}
	return strings.TrimSpace(strings.ReplaceAll(base, "_", " "))
}

func (h *Handler) ReadFiles(paths []string) ([]Page, error) {
	var pages []Page
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		if !utf8.Valid(data) {
			slog.Warn("skipping file with invalid UTF-8", "path", p)
			continue
		}
		pages = append(pages, Page{
			Title:  TitleFromPath(p),
			Path:   p,
			Text:   string(data),
			Source: SourceFile,
		})
	}
	return pages, nil
}

// ReadStream reads a single page, typically stdin, under the given title.
func (h *Handler) ReadStream(r io.Reader, title string) (Page, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Page{}, fmt.Errorf("reading page text: %w", err)
	}
	if !utf8.Valid(data) {
		return Page{}, fmt.Errorf("page %q is not valid UTF-8", title)
	}
	return Page{Title: title, Text: string(data), Source: SourceStdin}, nil
}

// ReadDirectory walks dir, skipping hidden directories, and loads every
// file whose base name matches the include pattern.
func (h *Handler) ReadDirectory(dir string) ([]Page, error) {
	var pages []Page
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if strings.HasPrefix(info.Name(), ".") && path != dir {
				return filepath.SkipDir
			}
			return nil
		}
		if !h.include.Match(info.Name()) {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if !utf8.Valid(data) {
			slog.Warn("skipping file with invalid UTF-8", "path", path)
			return nil
		}
		pages = append(pages, Page{
			Title:  TitleFromPath(path),
			Path:   path,
			Text:   string(data),
			Source: SourceFile,
		})
		return nil
	})
	return pages, err
}

// Read loads each path, walking directories.
func (h *Handler) Read(paths []string) ([]Page, error) {
	var pages []Page
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		var got []Page
		if info.IsDir() {
			got, err = h.ReadDirectory(p)
		} else {
			got, err = h.ReadFiles([]string{p})
		}
		if err != nil {
			return nil, err
		}
		pages = append(pages, got...)
	}
	return pages, nil
}
