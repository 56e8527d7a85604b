package formatter

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/amalgam/internal/models"
	"github.com/desertthunder/amalgam/internal/shared"
	"github.com/desertthunder/amalgam/internal/tasks"
	th "github.com/desertthunder/amalgam/internal/testing"
)

func sampleFeed() *tasks.FeedResult {
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return &tasks.FeedResult{
		Servers: 3,
		Posts: []models.Post{
			{
				ID:              "101",
				Domain:          "mastodon.social",
				CreatedAt:       created,
				URL:             "https://mastodon.social/@alice/101",
				Content:         "<p>Hello &amp; welcome</p><p>second line</p>",
				Account:         models.Account{Acct: "alice", DisplayName: "Alice"},
				FavouritesCount: 12,
				ReblogsCount:    3,
				Media:           []models.Media{{Type: "image", URL: "https://files.example/a.png", PreviewURL: "https://files.example/a_small.png"}},
			},
			{
				ID:              "7",
				Domain:          "fosstodon.org",
				CreatedAt:       created.Add(time.Hour),
				URL:             "https://fosstodon.org/@bob/7",
				Content:         `<p>quoted "text", with comma</p>`,
				SpoilerText:     "spoilers",
				Account:         models.Account{Acct: "bob@fosstodon.org"},
				FavouritesCount: 2,
			},
		},
		Failures: []tasks.FeedFailure{{Domain: "down.example", Err: errors.New("503")}},
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want Format
	}{
		{"", Text},
		{"txt", Text},
		{"JSON", JSON},
		{"csv", CSV},
		{"md", Markdown},
		{" markdown ", Markdown},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if err != nil {
			t.Errorf("ParseFormat(%q) returned error: %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	if _, err := ParseFormat("yaml"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestPlainText(t *testing.T) {
	got := PlainText(`<p>Hi <a href="https://x.example">@x</a> &amp; co</p><p>bye<br>now</p><script>alert(1)</script>`)
	want := "Hi @x & co\n\nbye\nnow"
	if got != want {
		t.Errorf("PlainText = %q, want %q", got, want)
	}
}

func TestExporters(t *testing.T) {
	t.Run("ExportToCSV", func(t *testing.T) {
		data, err := ExportToCSV(sampleFeed())
		if err != nil {
			t.Fatalf("ExportToCSV failed: %v", err)
		}

		records, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
		if err != nil {
			t.Fatalf("output is not valid CSV: %v", err)
		}
		if len(records) != 3 {
			t.Fatalf("expected header and 2 rows, got %d", len(records))
		}
		if strings.Join(records[0], ",") != "ID,Server,Author,Created,Favourites,Reblogs,Replies,URL,Text" {
			t.Errorf("CSV headers = %v", records[0])
		}
		if records[1][0] != "101" || records[1][1] != "mastodon.social" || records[1][4] != "12" {
			t.Errorf("unexpected first row %v", records[1])
		}
		if records[1][3] != "2024-05-01T12:00:00Z" {
			t.Errorf("created = %q", records[1][3])
		}
		if records[2][8] != `quoted "text", with comma` {
			t.Errorf("text column = %q", records[2][8])
		}
	})

	t.Run("ExportToJSON", func(t *testing.T) {
		data, err := ExportToJSON(sampleFeed())
		if err != nil {
			t.Fatalf("ExportToJSON failed: %v", err)
		}

		var doc struct {
			Metadata Metadata         `json:"metadata"`
			Posts    []map[string]any `json:"posts"`
		}
		if err := json.Unmarshal(data, &doc); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if doc.Metadata.Servers != 3 || doc.Metadata.Posts != 2 {
			t.Errorf("metadata = %+v", doc.Metadata)
		}
		if len(doc.Metadata.Failed) != 1 || doc.Metadata.Failed[0] != "down.example" {
			t.Errorf("failed = %v", doc.Metadata.Failed)
		}
		if doc.Posts[0]["original_server"] != "mastodon.social" {
			t.Errorf("expected original_server tag, got %v", doc.Posts[0]["original_server"])
		}
	})

	t.Run("ExportToJSON empty feed", func(t *testing.T) {
		data, err := ExportToJSON(&tasks.FeedResult{})
		if err != nil {
			t.Fatalf("ExportToJSON failed: %v", err)
		}
		if !strings.Contains(string(data), `"posts": []`) {
			t.Errorf("expected empty posts array, got %s", data)
		}
	})

	t.Run("ExportToMarkdown", func(t *testing.T) {
		t.Run("remote media", func(t *testing.T) {
			data, err := ExportToMarkdown(sampleFeed(), nil)
			if err != nil {
				t.Fatalf("ExportToMarkdown failed: %v", err)
			}
			output := string(data)

			for _, want := range []string{
				"# Feed",
				"**Servers**: 3",
				"**Posts**: 2",
				"**Unreachable**: down.example",
				"## Alice (@alice) via mastodon.social",
				"Hello & welcome",
				"- [image](https://files.example/a.png)",
				"> CW: spoilers",
				"★ 12 · ↻ 3 · ↩ 0",
			} {
				if !strings.Contains(output, want) {
					t.Errorf("Markdown missing %q", want)
				}
			}
			if strings.Index(output, "@alice") > strings.Index(output, "@bob") {
				t.Error("posts should keep feed order")
			}
		})

		t.Run("local media", func(t *testing.T) {
			data, err := ExportToMarkdown(sampleFeed(), map[string][]string{"101": {"media/101-0.png"}})
			if err != nil {
				t.Fatalf("ExportToMarkdown failed: %v", err)
			}
			if !strings.Contains(string(data), "![](media/101-0.png)") {
				t.Error("expected local image link")
			}
			if strings.Contains(string(data), "https://files.example/a.png") {
				t.Error("remote link should be replaced")
			}
		})
	})

	t.Run("ExportToText", func(t *testing.T) {
		data, err := ExportToText(sampleFeed())
		if err != nil {
			t.Fatalf("ExportToText failed: %v", err)
		}
		output := string(data)

		for _, want := range []string{
			"Servers: 3",
			"Unreachable: down.example",
			"1. Alice (@alice) [mastodon.social] ★12",
			"   Hello & welcome",
			"   second line",
			"2. bob@fosstodon.org (@bob@fosstodon.org) [fosstodon.org] ★2",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("text output missing %q", want)
			}
		}
	})

	t.Run("Render", func(t *testing.T) {
		for _, format := range []Format{Text, JSON, CSV, Markdown} {
			var buf strings.Builder
			if err := Render(&buf, sampleFeed(), format); err != nil {
				t.Errorf("Render(%s) failed: %v", format, err)
			}
			if buf.Len() == 0 {
				t.Errorf("Render(%s) wrote nothing", format)
			}
		}

		if err := Render(&th.FWriter{}, sampleFeed(), Text); err == nil {
			t.Error("expected write error")
		}
	})
}

func TestDownloadImage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.png" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("PNGDATA"))
	}))
	defer server.Close()

	t.Run("EmptyURL", func(t *testing.T) {
		if _, err := DownloadImage(context.Background(), nil, ""); err == nil {
			t.Error("expected error for empty URL")
		}
	})

	t.Run("Success", func(t *testing.T) {
		data, err := DownloadImage(context.Background(), server.Client(), server.URL+"/a.png")
		if err != nil {
			t.Fatalf("DownloadImage failed: %v", err)
		}
		if string(data) != "PNGDATA" {
			t.Errorf("data = %q", data)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := DownloadImage(context.Background(), server.Client(), server.URL+"/missing.png")
		if err == nil || !strings.Contains(err.Error(), "status 404") {
			t.Errorf("expected status error, got %v", err)
		}
	})

	t.Run("TransportError", func(t *testing.T) {
		client := &http.Client{Transport: th.NewMockRoundTripper(nil, errors.New("boom"))}
		if _, err := DownloadImage(context.Background(), client, "https://files.example/a.png"); err == nil {
			t.Error("expected transport error")
		}
	})
}

func TestFileExports(t *testing.T) {
	t.Run("WriteCSVExport", func(t *testing.T) {
		base := filepath.Join(t.TempDir(), "today")
		result, err := WriteCSVExport(sampleFeed(), base)
		if err != nil {
			t.Fatalf("WriteCSVExport failed: %v", err)
		}

		th.AssertFileExists(t, result.PostsFile)
		th.AssertFileExists(t, result.MetadataFile)
		if result.PostsFile != base+"_posts.csv" {
			t.Errorf("posts file = %s", result.PostsFile)
		}

		content := th.MustReadFile(t, result.MetadataFile)
		if !strings.Contains(content, `"servers": 3`) {
			t.Errorf("metadata missing servers count: %s", content)
		}
	})

	t.Run("WriteTextExport", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "feed.txt")
		got, err := WriteTextExport(sampleFeed(), file)
		if err != nil {
			t.Fatalf("WriteTextExport failed: %v", err)
		}
		if got != file {
			t.Errorf("path = %s, want %s", got, file)
		}
		if !strings.Contains(th.MustReadFile(t, file), "Servers: 3") {
			t.Error("text file missing header")
		}
	})

	t.Run("WriteJSONExport", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "feed.json")
		if _, err := WriteJSONExport(sampleFeed(), file); err != nil {
			t.Fatalf("WriteJSONExport failed: %v", err)
		}
		var doc map[string]any
		if err := json.Unmarshal([]byte(th.MustReadFile(t, file)), &doc); err != nil {
			t.Errorf("file is not JSON: %v", err)
		}
	})

	t.Run("WriteTextExport unwritable", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "missing", "feed.txt")
		if _, err := WriteTextExport(sampleFeed(), file); err == nil {
			t.Error("expected error writing into a missing directory")
		}
	})

	t.Run("WriteMarkdownExport", func(t *testing.T) {
		var hits int
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits++
			w.Write([]byte("IMG"))
		}))
		defer server.Close()

		feed := sampleFeed()
		feed.Posts[0].Media[0].PreviewURL = server.URL + "/small.png?v=1"

		t.Run("WithoutMedia", func(t *testing.T) {
			dir := filepath.Join(t.TempDir(), "out")
			result, err := WriteMarkdownExport(context.Background(), feed, dir, MarkdownOptions{})
			if err != nil {
				t.Fatalf("WriteMarkdownExport failed: %v", err)
			}
			th.AssertFileExists(t, filepath.Join(dir, "README.md"))
			if len(result.Media) != 0 || hits != 0 {
				t.Error("media should not be downloaded")
			}
		})

		t.Run("WithMedia", func(t *testing.T) {
			dir := filepath.Join(t.TempDir(), "out")
			result, err := WriteMarkdownExport(context.Background(), feed, dir, MarkdownOptions{
				DownloadMedia: true,
				Client:        server.Client(),
				Logger:        shared.NewLogger(io.Discard),
			})
			if err != nil {
				t.Fatalf("WriteMarkdownExport failed: %v", err)
			}

			want := filepath.Join(dir, "media", "101-0.png")
			if len(result.Media) != 1 || result.Media[0] != want {
				t.Fatalf("media = %v, want [%s]", result.Media, want)
			}
			data, err := os.ReadFile(want)
			if err != nil || string(data) != "IMG" {
				t.Errorf("saved media = %q, %v", data, err)
			}
			if !strings.Contains(th.MustReadFile(t, filepath.Join(dir, "README.md")), "![](media/101-0.png)") {
				t.Error("README should link the local image")
			}
		})

		t.Run("FailedMediaKeepsRemoteLinks", func(t *testing.T) {
			broken := sampleFeed()
			broken.Posts[0].Media[0].PreviewURL = server.URL + "/x.png"
			client := &http.Client{Transport: th.NewMockRoundTripper(nil, errors.New("offline"))}

			dir := filepath.Join(t.TempDir(), "out")
			result, err := WriteMarkdownExport(context.Background(), broken, dir, MarkdownOptions{DownloadMedia: true, Client: client})
			if err != nil {
				t.Fatalf("WriteMarkdownExport failed: %v", err)
			}
			if len(result.Media) != 0 {
				t.Errorf("expected no media, got %v", result.Media)
			}
			if !strings.Contains(th.MustReadFile(t, filepath.Join(dir, "README.md")), "https://files.example/a.png") {
				t.Error("README should keep the remote link")
			}
		})
	})
}
