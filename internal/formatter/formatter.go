// package formatter renders a merged feed as plain text, JSON, CSV or Markdown, to a writer or to files
package formatter

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/microcosm-cc/bluemonday"

	"github.com/desertthunder/amalgam/internal/models"
	"github.com/desertthunder/amalgam/internal/tasks"
)

// Format names an output format.
type Format string

const (
	Text     Format = "text"
	JSON     Format = "json"
	CSV      Format = "csv"
	Markdown Format = "markdown"
)

// ParseFormat accepts a format name or its common alias ("txt", "md").
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "text", "txt":
		return Text, nil
	case "json":
		return JSON, nil
	case "csv":
		return CSV, nil
	case "markdown", "md":
		return Markdown, nil
	default:
		return "", fmt.Errorf("unknown format %q (want text, json, csv or markdown)", name)
	}
}

var strict = bluemonday.StrictPolicy()

// PlainText strips the markup from post HTML. Paragraph and line breaks become newlines.
func PlainText(content string) string {
	r := strings.NewReplacer("</p><p>", "\n\n", "<br>", "\n", "<br/>", "\n", "<br />", "\n")
	text := html.UnescapeString(strict.Sanitize(r.Replace(content)))
	return strings.TrimSpace(text)
}

// Metadata summarizes a feed without its posts.
type Metadata struct {
	GeneratedAt time.Time `json:"generated_at"`
	Servers     int       `json:"servers"`
	Posts       int       `json:"posts"`
	Failed      []string  `json:"failed,omitempty"`
}

func metadataOf(result *tasks.FeedResult) Metadata {
	return Metadata{
		GeneratedAt: time.Now().UTC(),
		Servers:     result.Servers,
		Posts:       len(result.Posts),
		Failed:      result.FailedDomains(),
	}
}

// Render writes result to w in format.
func Render(w io.Writer, result *tasks.FeedResult, format Format) error {
	var (
		data []byte
		err  error
	)
	switch format {
	case JSON:
		data, err = ExportToJSON(result)
	case CSV:
		data, err = ExportToCSV(result)
	case Markdown:
		data, err = ExportToMarkdown(result, nil)
	default:
		data, err = ExportToText(result)
	}
	if err != nil {
		return err
	}

	_, err = w.Write(data)
	return err
}

// ExportToJSON writes the posts with a metadata header:
//
//	{"metadata": {...}, "posts": [...]}
func ExportToJSON(result *tasks.FeedResult) ([]byte, error) {
	posts := result.Posts
	if posts == nil {
		posts = []models.Post{}
	}
	doc := struct {
		Metadata Metadata      `json:"metadata"`
		Posts    []models.Post `json:"posts"`
	}{metadataOf(result), posts}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal feed: %w", err)
	}
	return append(data, '\n'), nil
}

// ExportToCSV converts posts to CSV with columns: ID, Server, Author, Created, Favourites, Reblogs, Replies, URL, Text
func ExportToCSV(result *tasks.FeedResult) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"ID", "Server", "Author", "Created", "Favourites", "Reblogs", "Replies", "URL", "Text"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, post := range result.Posts {
		record := []string{
			post.ID,
			post.Domain,
			post.Account.Acct,
			post.CreatedAt.UTC().Format(time.RFC3339),
			strconv.Itoa(post.FavouritesCount),
			strconv.Itoa(post.ReblogsCount),
			strconv.Itoa(post.RepliesCount),
			post.URL,
			PlainText(post.Content),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown converts the feed to Markdown. media maps a post ID to local image paths
// that replace the remote previews; it may be nil.
func ExportToMarkdown(result *tasks.FeedResult, media map[string][]string) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString("# Feed\n\n")
	fmt.Fprintf(&buf, "**Servers**: %d\n", result.Servers)
	fmt.Fprintf(&buf, "**Posts**: %d\n", len(result.Posts))
	if failed := result.FailedDomains(); len(failed) > 0 {
		fmt.Fprintf(&buf, "**Unreachable**: %s\n", strings.Join(failed, ", "))
	}
	buf.WriteString("\n")

	for _, post := range result.Posts {
		fmt.Fprintf(&buf, "## %s (@%s) via %s\n\n", post.Account.Name(), post.Account.Acct, post.Domain)
		if post.SpoilerText != "" {
			fmt.Fprintf(&buf, "> CW: %s\n\n", post.SpoilerText)
		}
		if text := PlainText(post.Content); text != "" {
			buf.WriteString(text + "\n\n")
		}

		if local, ok := media[post.ID]; ok {
			for _, p := range local {
				fmt.Fprintf(&buf, "![](%s)\n", p)
			}
			buf.WriteString("\n")
		} else {
			for _, m := range post.Media {
				fmt.Fprintf(&buf, "- [%s](%s)\n", m.Type, m.URL)
			}
			if len(post.Media) > 0 {
				buf.WriteString("\n")
			}
		}

		fmt.Fprintf(&buf, "★ %d · ↻ %d · ↩ %d · [%s](%s)\n\n",
			post.FavouritesCount, post.ReblogsCount, post.RepliesCount,
			post.CreatedAt.UTC().Format("2006-01-02 15:04"), post.URL)
	}

	return buf.Bytes(), nil
}

// ExportToText converts the feed to plain text, one block per post.
func ExportToText(result *tasks.FeedResult) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Servers: %d\n", result.Servers)
	fmt.Fprintf(&buf, "Posts: %d\n", len(result.Posts))
	for _, f := range result.Failures {
		fmt.Fprintf(&buf, "Unreachable: %s\n", f.Domain)
	}
	buf.WriteString("\n")

	for i, post := range result.Posts {
		fmt.Fprintf(&buf, "%d. %s (@%s) [%s] ★%d\n", i+1, post.Account.Name(), post.Account.Acct, post.Domain, post.FavouritesCount)
		if text := PlainText(post.Content); text != "" {
			for line := range strings.SplitSeq(text, "\n") {
				buf.WriteString("   " + line + "\n")
			}
		}
		buf.WriteString("   " + post.URL + "\n\n")
	}

	return buf.Bytes(), nil
}

// DownloadImage fetches an image and returns the raw bytes.
func DownloadImage(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	if url == "" {
		return nil, fmt.Errorf("empty URL provided")
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: status %d", resp.StatusCode)
	}

	imageData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}

	return imageData, nil
}

// ToMetadataJSON generates the JSON summary written next to file exports.
func ToMetadataJSON(result *tasks.FeedResult) ([]byte, error) {
	data, err := json.MarshalIndent(metadataOf(result), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return data, nil
}

// CSVExportResult contains the paths of files created by WriteCSVExport
type CSVExportResult struct {
	PostsFile    string
	MetadataFile string
}

// WriteCSVExport writes {base}_posts.csv and {base}_metadata.json. base defaults to "feed".
func WriteCSVExport(result *tasks.FeedResult, base string) (*CSVExportResult, error) {
	if base == "" {
		base = "feed"
	}

	csvData, err := ExportToCSV(result)
	if err != nil {
		return nil, fmt.Errorf("failed to generate CSV: %w", err)
	}

	postsFile := base + "_posts.csv"
	if err := os.WriteFile(postsFile, csvData, 0644); err != nil {
		return nil, fmt.Errorf("failed to write CSV file: %w", err)
	}

	metadataJSON, err := ToMetadataJSON(result)
	if err != nil {
		return nil, fmt.Errorf("failed to generate metadata JSON: %w", err)
	}

	metadataFile := base + "_metadata.json"
	if err := os.WriteFile(metadataFile, metadataJSON, 0644); err != nil {
		return nil, fmt.Errorf("failed to write metadata file: %w", err)
	}

	return &CSVExportResult{PostsFile: postsFile, MetadataFile: metadataFile}, nil
}

// MarkdownExportResult contains information about files created by WriteMarkdownExport
type MarkdownExportResult struct {
	Directory string
	Files     []string
	Media     []string
}

// MarkdownOptions controls [WriteMarkdownExport].
type MarkdownOptions struct {
	DownloadMedia bool         // Save image previews under {dir}/media and link them locally
	Client        *http.Client // Used for media downloads
	Logger        *log.Logger  // Receives warnings for media that could not be saved
}

// WriteMarkdownExport writes {dir}/README.md, defaulting dir to "feed".
//
// With DownloadMedia set, image previews are saved to {dir}/media. A failed download is logged and
// the post keeps its remote links.
func WriteMarkdownExport(ctx context.Context, result *tasks.FeedResult, outputDir string, opts MarkdownOptions) (*MarkdownExportResult, error) {
	if outputDir == "" {
		outputDir = "feed"
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	export := &MarkdownExportResult{Directory: outputDir, Files: []string{}}

	var media map[string][]string
	if opts.DownloadMedia {
		media = saveMedia(ctx, result.Posts, outputDir, opts, export)
	}

	mdData, err := ExportToMarkdown(result, media)
	if err != nil {
		return nil, fmt.Errorf("failed to generate Markdown: %w", err)
	}

	mdFile := filepath.Join(outputDir, "README.md")
	if err := os.WriteFile(mdFile, mdData, 0644); err != nil {
		return nil, fmt.Errorf("failed to write Markdown file: %w", err)
	}
	export.Files = append(export.Files, mdFile)

	return export, nil
}

func saveMedia(ctx context.Context, posts []models.Post, dir string, opts MarkdownOptions, export *MarkdownExportResult) map[string][]string {
	mediaDir := filepath.Join(dir, "media")
	saved := make(map[string][]string)

	for _, post := range posts {
		var local []string
		for i, m := range post.Media {
			if m.Type != "image" || m.PreviewURL == "" {
				continue
			}
			data, err := DownloadImage(ctx, opts.Client, m.PreviewURL)
			if err == nil {
				err = os.MkdirAll(mediaDir, 0755)
			}
			name := fmt.Sprintf("%s-%d%s", post.ID, i, imageExt(m.PreviewURL))
			if err == nil {
				err = os.WriteFile(filepath.Join(mediaDir, name), data, 0644)
			}
			if err != nil {
				if opts.Logger != nil {
					opts.Logger.Warn("failed to save media", "post", post.ID, "url", m.PreviewURL, "error", err)
				}
				local = nil
				break
			}
			local = append(local, "media/"+name)
			export.Media = append(export.Media, filepath.Join(mediaDir, name))
		}
		if len(local) > 0 {
			saved[post.ID] = local
		}
	}
	return saved
}

func imageExt(rawURL string) string {
	if i := strings.IndexAny(rawURL, "?#"); i >= 0 {
		rawURL = rawURL[:i]
	}
	switch ext := strings.ToLower(path.Ext(rawURL)); ext {
	case ".png", ".gif", ".webp", ".jpeg", ".jpg":
		return ext
	default:
		return ".jpg"
	}
}

// WriteTextExport writes the text rendering to file, defaulting to feed.txt.
func WriteTextExport(result *tasks.FeedResult, file string) (string, error) {
	if file == "" {
		file = "feed.txt"
	}

	textData, err := ExportToText(result)
	if err != nil {
		return "", fmt.Errorf("failed to generate text: %w", err)
	}

	if err := os.WriteFile(file, textData, 0644); err != nil {
		return "", fmt.Errorf("failed to write text file: %w", err)
	}

	return file, nil
}

// WriteJSONExport writes the JSON rendering to file, defaulting to feed.json.
func WriteJSONExport(result *tasks.FeedResult, file string) (string, error) {
	if file == "" {
		file = "feed.json"
	}

	data, err := ExportToJSON(result)
	if err != nil {
		return "", fmt.Errorf("failed to generate JSON: %w", err)
	}

	if err := os.WriteFile(file, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write JSON file: %w", err)
	}

	return file, nil
}
