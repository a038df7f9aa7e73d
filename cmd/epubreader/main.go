package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/segmentio/encoding/json"
	"github.com/spf13/cobra"
	"github.com/yuanying/epubreader/internal/cfi"
	"github.com/yuanying/epubreader/internal/engine"
	"github.com/yuanying/epubreader/internal/epub"
)

type cliOptions struct {
	JSON   bool
	Engine engine.Options
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "epubreader",
		Short: "Inspect, read and search EPUB files",
		Long: `epubreader opens EPUB ebooks and prints their metadata, table of
contents, sanitized chapters and search results.

Books with a broken package document are still opened through a reduced
reader that works directly from the archive contents.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.Bool("json", false, "Print results as JSON")
	flags.Int64("max-entry-size", 0, "Maximum decompressed size of one archive entry in bytes (default 256 MiB)")
	flags.Int("search-context", 0, "Characters of context kept on each side of a search hit (default 100)")
	flags.Int("search-limit", 0, "Maximum number of search results, 0 for no limit")
	flags.Int("thumbnail-width", 0, "Cover thumbnail width in pixels (default 300)")

	root.AddCommand(
		newInfoCmd(),
		newTOCCmd(),
		newChapterCmd(),
		newSearchCmd(),
		newCoverCmd(),
		newCFICmd(),
		newFormatsCmd(),
	)
	return root
}

func readCLIOptions(cmd *cobra.Command) (cliOptions, error) {
	flags := cmd.Flags()
	var opts cliOptions
	var err error

	if opts.JSON, err = flags.GetBool("json"); err != nil {
		return opts, err
	}
	if opts.Engine.MaxEntrySize, err = flags.GetInt64("max-entry-size"); err != nil {
		return opts, err
	}
	if opts.Engine.SearchContext, err = flags.GetInt("search-context"); err != nil {
		return opts, err
	}
	if opts.Engine.SearchLimit, err = flags.GetInt("search-limit"); err != nil {
		return opts, err
	}
	if opts.Engine.ThumbnailWidth, err = flags.GetInt("thumbnail-width"); err != nil {
		return opts, err
	}
	return opts, opts.Engine.Validate()
}

// openBook reads the CLI options and opens the book named by path.
func openBook(cmd *cobra.Command, path string) (*engine.Book, cliOptions, error) {
	opts, err := readCLIOptions(cmd)
	if err != nil {
		return nil, opts, err
	}
	b, err := engine.OpenFile(cmd.Context(), path, opts.Engine)
	if err != nil {
		return nil, opts, errors.Wrapf(err, "open %s", path)
	}
	return b, opts, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return errors.WithStack(enc.Encode(v))
}

type bookInfo struct {
	Title           string              `json:"title"`
	Authors         []string            `json:"authors"`
	Publisher       string              `json:"publisher,omitempty"`
	Language        string              `json:"language,omitempty"`
	Date            string              `json:"date,omitempty"`
	Identifier      string              `json:"identifier,omitempty"`
	Description     string              `json:"description,omitempty"`
	Version         string              `json:"version,omitempty"`
	Format          engine.Format       `json:"format"`
	Capabilities    []engine.Capability `json:"capabilities"`
	Chapters        int                 `json:"chapters"`
	NavSource       epub.NavSource      `json:"nav_source"`
	Encryption      epub.Encryption     `json:"encryption"`
	HasDRM          bool                `json:"has_drm"`
	FixedLayout     bool                `json:"fixed_layout"`
	MediaOverlays   bool                `json:"media_overlays"`
	PageProgression string              `json:"page_progression,omitempty"`
	Cover           *coverInfo          `json:"cover,omitempty"`
	Degraded        bool                `json:"degraded"`
}

type coverInfo struct {
	Href      string `json:"href"`
	MediaType string `json:"media_type"`
	Method    string `json:"method"`
	Size      int    `json:"size"`
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
}

func newBookInfo(b *engine.Book) bookInfo {
	doc := b.Document()
	info := bookInfo{
		Title:           doc.Title,
		Authors:         doc.Authors,
		Publisher:       doc.Publisher,
		Language:        doc.Language,
		Date:            doc.Date,
		Identifier:      doc.Identifier,
		Description:     doc.Description,
		Version:         doc.Version,
		Format:          b.Format().Format,
		Chapters:        doc.ChapterCount(),
		NavSource:       doc.NavSource,
		Encryption:      doc.Encryption,
		HasDRM:          doc.Encryption.HasDRM(),
		FixedLayout:     doc.FixedLayout,
		MediaOverlays:   doc.MediaOverlays,
		PageProgression: doc.PageProgression,
		Degraded:        doc.Degraded,
		Capabilities:    b.Format().Capabilities,
	}
	if doc.Cover != nil {
		info.Cover = &coverInfo{
			Href:      doc.Cover.Href,
			MediaType: doc.Cover.MediaType,
			Method:    doc.Cover.Method,
			Size:      len(doc.Cover.Data),
			Width:     doc.Cover.Width,
			Height:    doc.Cover.Height,
		}
	}
	return info
}

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <book.epub>",
		Short: "Print book metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, opts, err := openBook(cmd, args[0])
			if err != nil {
				return err
			}
			info := newBookInfo(b)
			w := cmd.OutOrStdout()
			if opts.JSON {
				return writeJSON(w, info)
			}

			fmt.Fprintf(w, "Title:       %s\n", info.Title)
			fmt.Fprintf(w, "Authors:     %s\n", strings.Join(info.Authors, ", "))
			if info.Publisher != "" {
				fmt.Fprintf(w, "Publisher:   %s\n", info.Publisher)
			}
			if info.Language != "" {
				fmt.Fprintf(w, "Language:    %s\n", info.Language)
			}
			if info.Identifier != "" {
				fmt.Fprintf(w, "Identifier:  %s\n", info.Identifier)
			}
			fmt.Fprintf(w, "Format:      %s\n", info.Format)
			fmt.Fprintf(w, "Chapters:    %d\n", info.Chapters)
			fmt.Fprintf(w, "TOC source:  %s\n", info.NavSource)
			if b.Format().Supports(engine.CapabilityEncryption) {
				fmt.Fprintf(w, "Encryption:  %s\n", info.Encryption)
			}
			if info.Cover != nil {
				fmt.Fprintf(w, "Cover:       %s (%s, found by %s)\n", info.Cover.Href, info.Cover.MediaType, info.Cover.Method)
			}
			if info.Degraded {
				fmt.Fprintln(w, "Note:        package document unusable, read in fallback mode")
			}
			return nil
		},
	}
}

type tocEntry struct {
	Title    string     `json:"title"`
	Href     string     `json:"href"`
	Children []tocEntry `json:"children"`
}

func toTOCEntries(nodes []epub.NavigationNode) []tocEntry {
	out := make([]tocEntry, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, tocEntry{Title: n.Title, Href: n.Href, Children: toTOCEntries(n.Children)})
	}
	return out
}

func printTOC(w io.Writer, nodes []epub.NavigationNode) {
	for _, n := range nodes {
		fmt.Fprintf(w, "%s%s  [%s]\n", strings.Repeat("  ", n.Level), n.Title, n.Href)
		printTOC(w, n.Children)
	}
}

func newTOCCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "toc <book.epub>",
		Short: "Print the table of contents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, opts, err := openBook(cmd, args[0])
			if err != nil {
				return err
			}
			toc := b.Document().TOC
			if opts.JSON {
				return writeJSON(cmd.OutOrStdout(), toTOCEntries(toc))
			}
			printTOC(cmd.OutOrStdout(), toc)
			return nil
		},
	}
}

func parseIndex(flag, s string) (int, error) {
	i, err := strconv.Atoi(s)
	if err != nil || i < 0 {
		return 0, errors.Errorf("%s must be a non-negative integer, got %q", flag, s)
	}
	return i, nil
}

func newChapterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chapter <book.epub> <index|cfi>",
		Short: "Print a sanitized chapter",
		Long: `Print a sanitized chapter, selected by spine index or by a saved CFI.
A CFI that does not address a chapter of the book selects the first one.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var i int
			var err error
			position := strings.HasPrefix(strings.TrimSpace(args[1]), "epubcfi(")
			if !position {
				if i, err = parseIndex("index", args[1]); err != nil {
					return err
				}
			}
			b, opts, err := openBook(cmd, args[0])
			if err != nil {
				return err
			}
			if position {
				loc, _, err := b.Resume(args[1])
				if err != nil {
					return err
				}
				i = loc.SpineIndex
			}
			c, err := b.Chapter(i)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if opts.JSON {
				images := make([]string, 0, len(c.Images))
				for name := range c.Images {
					images = append(images, name)
				}
				return writeJSON(w, map[string]any{
					"index":  c.Index,
					"id":     c.ID,
					"href":   c.Href,
					"title":  c.Title,
					"html":   c.HTML,
					"css":    c.CSS,
					"text":   c.Text,
					"images": images,
				})
			}
			if text, _ := cmd.Flags().GetBool("text"); text {
				fmt.Fprintln(w, c.Text)
				return nil
			}
			fmt.Fprintln(w, c.HTML)
			return nil
		},
	}
	cmd.Flags().Bool("text", false, "Print plain text instead of HTML")
	return cmd
}

func newSearchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search <book.epub> <query>",
		Short: "Search the text of every chapter",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, opts, err := openBook(cmd, args[0])
			if err != nil {
				return err
			}
			results, err := b.Search(cmd.Context(), args[1])
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if opts.JSON {
				return writeJSON(w, results)
			}
			for _, r := range results {
				fmt.Fprintf(w, "[%d] %s  %s\n    %s\n", r.ChapterIndex, r.ChapterTitle, r.CFI, r.Context)
			}
			fmt.Fprintf(w, "%d result(s)\n", len(results))
			return nil
		},
	}
}

func newCoverCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cover <book.epub>",
		Short: "Write the cover image to a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output, _ := cmd.Flags().GetString("output")
			if output == "" {
				return errors.New("--output is required")
			}
			thumb, _ := cmd.Flags().GetBool("thumbnail")

			b, _, err := openBook(cmd, args[0])
			if err != nil {
				return err
			}

			var data []byte
			var mediaType string
			if thumb {
				if data, mediaType, err = b.CoverThumbnail(0); err != nil {
					return err
				}
			} else {
				cover := b.Document().Cover
				if cover == nil {
					return errors.Wrap(epub.ErrNotFound, "book has no cover")
				}
				data, mediaType = cover.Data, cover.MediaType
			}

			if err := os.WriteFile(output, data, 0o644); err != nil {
				return errors.WithStack(err)
			}
			logger.FromContext(cmd.Context()).Info("cover written", logger.Data{
				"path":       output,
				"media_type": mediaType,
				"bytes":      len(data),
			})
			return nil
		},
	}
	cmd.Flags().StringP("output", "o", "", "Output file path")
	cmd.Flags().Bool("thumbnail", false, "Scale the cover down to --thumbnail-width")
	return cmd
}

func newCFICmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cfi",
		Short: "Encode and decode reading positions",
	}

	encode := &cobra.Command{
		Use:   "encode <spine-index>",
		Short: "Print the CFI for a spine index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			i, err := parseIndex("spine-index", args[0])
			if err != nil {
				return err
			}
			loc := cfi.New(i)
			loc.ElementPath, _ = cmd.Flags().GetString("path")
			if cmd.Flags().Changed("offset") {
				loc.Offset, _ = cmd.Flags().GetInt("offset")
				loc.HasOffset = true
			}
			fmt.Fprintln(cmd.OutOrStdout(), loc.String())
			return nil
		},
	}
	encode.Flags().String("path", cfi.DefaultElementPath, "Element path inside the content document")
	encode.Flags().Int("offset", 0, "Character offset")

	decode := &cobra.Command{
		Use:   "decode <cfi>",
		Short: "Print the position a CFI addresses",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := cfi.Decode(args[0])
			if err != nil {
				return err
			}
			asJSON, _ := cmd.Flags().GetBool("json")
			w := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(w, map[string]any{
					"spine_index":  loc.SpineIndex,
					"element_path": loc.ElementPath,
					"offset":       loc.Offset,
					"has_offset":   loc.HasOffset,
				})
			}
			fmt.Fprintf(w, "spine index: %d\nelement path: %s\n", loc.SpineIndex, loc.ElementPath)
			if loc.HasOffset {
				fmt.Fprintf(w, "offset: %d\n", loc.Offset)
			}
			return nil
		},
	}

	cmd.AddCommand(encode, decode)
	return cmd
}

func newFormatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "formats",
		Short: "List the container formats that can be opened",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			list := engine.Formats()
			w := cmd.OutOrStdout()
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				return writeJSON(w, list)
			}
			for _, f := range list {
				caps := make([]string, 0, len(f.Capabilities))
				for _, c := range f.Capabilities {
					caps = append(caps, string(c))
				}
				fmt.Fprintf(w, "%-6s %s  [%s]\n", f.Format, strings.Join(f.MediaTypes, ", "), strings.Join(caps, ", "))
			}
			return nil
		},
	}
}

func main() {
	log := logger.New()
	ctx := log.WithContext(context.Background())

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		log.Err(err).Fatal("command failed")
	}
}
