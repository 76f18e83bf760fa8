package main

import (
	"context"

	"github.com/desertthunder/bcx/internal/formatter"
	"github.com/desertthunder/bcx/internal/store"
	"github.com/urfave/cli/v3"
)

type genreCount struct {
	Genre      string `json:"genre"`
	Albums     int    `json:"albums"`
	Identified int    `json:"identified"`
}

type collectionStats struct {
	Path   string       `json:"path"`
	Total  int          `json:"total"`
	Genres []genreCount `json:"genres"`
}

func (r *Runner) collectionInput(cmd *cli.Command) string {
	if input := cmd.String("input"); input != "" {
		return input
	}
	return r.config.Collection.Path
}

// CollectionStats prints per-genre record counts.
func (r *Runner) CollectionStats(ctx context.Context, cmd *cli.Command) error {
	input := r.collectionInput(cmd)
	c, err := store.LoadCollection(input)
	if err != nil {
		return err
	}

	stats := collectionStats{Path: input, Total: c.Total(), Genres: []genreCount{}}
	for _, genre := range c.Genres() {
		gc := genreCount{Genre: genre, Albums: len(c[genre])}
		for _, a := range c[genre] {
			if _, ok := a.Identifier(); ok {
				gc.Identified++
			}
		}
		stats.Genres = append(stats.Genres, gc)
	}

	if cmd.Bool("json") {
		return r.writeJSON(stats, true)
	}

	r.writePlainHeader(input)
	for _, gc := range stats.Genres {
		r.writePlain("  %-24s %5d", gc.Genre, gc.Albums)
		if missing := gc.Albums - gc.Identified; missing > 0 {
			r.writePlain("  (%d without player id)", missing)
		}
		r.writePlain("\n")
	}
	return r.writePlain("\n%d releases in %d genres\n", stats.Total, len(stats.Genres))
}

// CollectionExport writes the collection in another format.
func (r *Runner) CollectionExport(ctx context.Context, cmd *cli.Command) error {
	input := r.collectionInput(cmd)
	c, err := store.LoadCollection(input)
	if err != nil {
		return err
	}

	var format formatter.Format
	if f := cmd.String("format"); f != "" {
		if format, err = formatter.ParseFormat(f); err != nil {
			return err
		}
	}

	output := cmd.String("output")
	written, err := formatter.WriteExport(c, output, format, r.config.Site.Title)
	if err != nil {
		return err
	}
	r.logger.Info("collection exported", "path", output, "format", written)
	return r.writePlain("✓ Exported %d releases to %s (%s)\n", c.Total(), output, written)
}
