// Package site renders a collection document into a static website.
package site

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/bcx/internal/models"
	"github.com/desertthunder/bcx/internal/shared"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

//go:embed assets
var assetFS embed.FS

const (
	IndexFile     = "index.html"
	SyncToolsFile = "sync_tools.html"
)

var templates = template.Must(template.New("site").Funcs(template.FuncMap{
	"plural": func(n int, one, many string) string {
		if n == 1 {
			return one
		}
		return many
	},
	"seq": func(n int) []int {
		out := make([]int, n)
		for i := range out {
			out[i] = i + 1
		}
		return out
	},
}).ParseFS(templateFS, "templates/*.tmpl"))

// Page describes one generated genre page.
type Page struct {
	Genre      string
	File       string
	StorageKey string
	Count      int
	Duplicates int
}

// Report lists what [Generator.Generate] wrote.
type Report struct {
	OutputDir string
	Pages     []Page
	Skipped   []string // genres without records
	Files     []string
}

// Total counts the records across all pages.
func (r *Report) Total() int {
	n := 0
	for _, p := range r.Pages {
		n += p.Count
	}
	return n
}

type item struct {
	ID      string
	URL     string
	Embed   template.HTML
	Subject string
	Date    string
	Page    int
}

// Generator writes genre pages, the index, the sync tools page and shared assets.
type Generator struct {
	outDir       string
	title        string
	prefix       string
	perPage      int
	snapshotFile string
	logger       *log.Logger
	now          func() time.Time
}

// NewGenerator creates a Generator from the site section of the config. prefix is the
// local-storage key prefix; snapshotFile is the download name offered by the sync tools page.
func NewGenerator(cfg shared.SiteConfig, prefix, snapshotFile string, logger *log.Logger) *Generator {
	perPage := cfg.ItemsPerPage
	if perPage <= 0 {
		perPage = 10
	}
	outDir := cfg.OutputDir
	if outDir == "" {
		outDir = "docs"
	}
	if snapshotFile == "" {
		snapshotFile = "browser_data.json"
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Generator{
		outDir:       outDir,
		title:        cfg.Title,
		prefix:       prefix,
		perPage:      perPage,
		snapshotFile: filepath.Base(snapshotFile),
		logger:       logger,
		now:          time.Now,
	}
}

// Generate renders c into the output directory. Two genres sharing a page name, a genre
// named like the index or sync tools page, or one whose name sanitizes to nothing abort
// generation before any file is written.
func (g *Generator) Generate(c models.Collection) (*Report, error) {
	report := &Report{OutputDir: g.outDir}

	owners := map[string]string{}
	for _, genre := range c.Genres() {
		if len(c[genre]) == 0 {
			report.Skipped = append(report.Skipped, genre)
			continue
		}
		safe := shared.SanitizeGenre(genre)
		if safe == "" {
			return nil, fmt.Errorf("%w: genre %q has no usable page name", shared.ErrInvalidArgument, genre)
		}
		if reservedPage(safe) {
			return nil, fmt.Errorf("%w: genre %q would overwrite %s.html", shared.ErrInvalidArgument, genre, safe)
		}
		if other, taken := owners[safe]; taken {
			return nil, fmt.Errorf("%w: genres %q and %q both map to %s.html", shared.ErrInvalidArgument, other, genre, safe)
		}
		owners[safe] = genre

		report.Pages = append(report.Pages, Page{
			Genre:      genre,
			File:       safe + ".html",
			StorageKey: g.prefix + safe,
		})
	}

	for i := range report.Pages {
		p := &report.Pages[i]
		items, dups := g.items(c[p.Genre])
		p.Count, p.Duplicates = len(items), dups

		pages := (len(items) + g.perPage - 1) / g.perPage
		data := map[string]any{
			"Title":      g.title,
			"Genre":      p.Genre,
			"StorageKey": p.StorageKey,
			"Items":      items,
			"Pages":      pages,
		}
		if err := g.render("genre.html.tmpl", p.File, data, report); err != nil {
			return nil, err
		}
		g.logger.Debug("wrote genre page", "genre", p.Genre, "file", p.File, "records", p.Count, "pages", pages)
	}

	index := map[string]any{
		"Title":     g.title,
		"Prefix":    g.prefix,
		"Genres":    report.Pages,
		"Total":     report.Total(),
		"Generated": g.now().Format("2006-01-02 15:04"),
	}
	if err := g.render("index.html.tmpl", IndexFile, index, report); err != nil {
		return nil, err
	}

	tools := map[string]any{"Title": g.title, "Prefix": g.prefix, "SnapshotFile": g.snapshotFile}
	if err := g.render("sync_tools.html.tmpl", SyncToolsFile, tools, report); err != nil {
		return nil, err
	}

	if err := g.copyAssets(report); err != nil {
		return nil, err
	}
	if err := g.write(".nojekyll", nil, report); err != nil {
		return nil, err
	}
	return report, nil
}

// reservedPage reports whether a page name belongs to a generated non-genre page. Case is
// ignored so the check holds on case-insensitive filesystems.
func reservedPage(name string) bool {
	for _, file := range []string{IndexFile, SyncToolsFile} {
		if strings.EqualFold(name, strings.TrimSuffix(file, ".html")) {
			return true
		}
	}
	return false
}

// items sorts newest first and drops repeated releases, keeping the first occurrence.
func (g *Generator) items(albums []models.Album) ([]item, int) {
	sorted := append([]models.Album(nil), albums...)
	models.SortNewestFirst(sorted)

	seen := map[string]struct{}{}
	out := make([]item, 0, len(sorted))
	dups := 0
	for _, a := range sorted {
		id, ok := a.Identifier()
		key := id
		if !ok {
			key = "url:" + a.URL
		}
		if _, dup := seen[key]; dup {
			dups++
			continue
		}
		seen[key] = struct{}{}

		subject := a.Subject
		if subject == "" {
			subject = "Untitled"
		}
		date := a.Date
		if date == "" {
			date = "Unknown date"
		}
		out = append(out, item{
			ID:      id,
			URL:     a.URL,
			Embed:   template.HTML(a.Embed),
			Subject: subject,
			Date:    date,
			Page:    len(out)/g.perPage + 1,
		})
	}
	return out, dups
}

func (g *Generator) render(name, file string, data any, report *Report) error {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return fmt.Errorf("failed to render %s: %w", file, err)
	}
	return g.write(file, buf.Bytes(), report)
}

func (g *Generator) write(file string, data []byte, report *Report) error {
	target := filepath.Join(g.outDir, filepath.FromSlash(file))
	if err := shared.WriteFileAtomic(target, data, 0644); err != nil {
		return err
	}
	report.Files = append(report.Files, file)
	return nil
}

func (g *Generator) copyAssets(report *Report) error {
	return fs.WalkDir(assetFS, "assets", func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, err := assetFS.ReadFile(p)
		if err != nil {
			return fmt.Errorf("failed to read embedded %s: %w", p, err)
		}
		return g.write(path.Clean(p), data, report)
	})
}

// Clean removes generated HTML pages that are no longer part of report, leaving other files alone.
func Clean(report *Report) ([]string, error) {
	keep := map[string]struct{}{}
	for _, f := range report.Files {
		keep[f] = struct{}{}
	}

	entries, err := os.ReadDir(report.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", report.OutputDir, err)
	}

	var removed []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || filepath.Ext(name) != ".html" {
			continue
		}
		if _, ok := keep[name]; ok {
			continue
		}
		if err := os.Remove(filepath.Join(report.OutputDir, name)); err != nil {
			return removed, fmt.Errorf("failed to remove stale page %s: %w", name, err)
		}
		removed = append(removed, name)
	}
	return removed, nil
}
