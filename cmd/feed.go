package main

import (
	"context"
	"strings"
	"sync"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/amalgam/internal/formatter"
	"github.com/desertthunder/amalgam/internal/tasks"
)

// Feed builds the merged feed of --user and prints it, or writes it to --output.
func (r *Runner) Feed(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	s, err := r.open(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	user, err := r.lookupUser(ctx, s, cmd)
	if err != nil {
		return err
	}

	progress := make(chan tasks.ProgressUpdate, 16)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for update := range progress {
			r.logger.Debug("feed progress", "phase", update.Phase, "step", update.Step, "total", update.Total, "domain", update.Domain)
		}
	}()

	result, err := s.feed.Build(ctx, progress, user.ID())
	close(progress)
	wg.Wait()
	if err != nil {
		return err
	}

	if limit := cmd.Int("limit"); limit > 0 && len(result.Posts) > limit {
		result.Posts = result.Posts[:limit]
	}
	if failed := result.FailedDomains(); len(failed) > 0 {
		r.logger.Warn("some servers could not be loaded", "servers", strings.Join(failed, ", "))
	}

	output := cmd.String("output")
	if output == "" {
		return formatter.Render(r.output, result, format)
	}
	return r.exportFeed(ctx, result, format, output, cmd.Bool("media"))
}

func (r *Runner) exportFeed(ctx context.Context, result *tasks.FeedResult, format formatter.Format, output string, media bool) error {
	switch format {
	case formatter.CSV:
		files, err := formatter.WriteCSVExport(result, output)
		if err != nil {
			return err
		}
		r.writePlain("✓ Wrote %s\n✓ Wrote %s\n", files.PostsFile, files.MetadataFile)
	case formatter.Markdown:
		export, err := formatter.WriteMarkdownExport(ctx, result, output, formatter.MarkdownOptions{
			DownloadMedia: media,
			Client:        r.httpClient,
			Logger:        r.logger,
		})
		if err != nil {
			return err
		}
		for _, f := range export.Files {
			r.writePlain("✓ Wrote %s\n", f)
		}
		if len(export.Media) > 0 {
			r.writePlain("✓ Saved %d images to %s/media\n", len(export.Media), export.Directory)
		}
	case formatter.JSON:
		file, err := formatter.WriteJSONExport(result, output)
		if err != nil {
			return err
		}
		r.writePlain("✓ Wrote %s\n", file)
	default:
		file, err := formatter.WriteTextExport(result, output)
		if err != nil {
			return err
		}
		r.writePlain("✓ Wrote %s\n", file)
	}
	return nil
}
