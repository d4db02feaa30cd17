package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/hpungsan/arag/internal/config"
	"github.com/hpungsan/arag/internal/embed"
	"github.com/hpungsan/arag/internal/errors"
	"github.com/hpungsan/arag/internal/logger"
	"github.com/hpungsan/arag/internal/mcp"
	"github.com/hpungsan/arag/internal/ops"
	"github.com/hpungsan/arag/internal/storage"
	"github.com/hpungsan/arag/internal/telemetry"
	"github.com/hpungsan/arag/internal/web"
)

// newCLIApp creates the CLI application with all commands.
func newCLIApp(cfg *config.Config) *cli.App {
	app := &cli.App{
		Name:    "arag",
		Usage:   "Build, index, package and query portable retrieval corpora",
		Version: Version,
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "verbose", Usage: "Print progress to stderr"},
		},
		Before: func(c *cli.Context) error {
			logger.SetVerbose(c.Bool("verbose"))
			return nil
		},
		Commands: []*cli.Command{
			createCmd(),
			addCmd(),
			specCmd(cfg),
			fromSpecCmd(cfg),
			buildCmd(cfg),
			indexCmd(cfg),
			queryCmd(cfg),
			statusCmd(),
			cleanCmd(),
			packCmd(),
			unpackCmd(),
			lsCmd(),
			watchCmd(cfg),
			publishCmd(cfg),
			fetchCmd(cfg),
			serveCmd(cfg),
			webCmd(cfg),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// createCmd creates the create command.
func createCmd() *cli.Command {
	return &cli.Command{
		Name:      "create",
		Usage:     "Create an empty corpus directory <name>-arag",
		ArgsUsage: "<name>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "parent", Aliases: []string{"p"}, Value: ".", Usage: "Directory to create the corpus in"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return outputError(c, errors.NewInvalidRequest("create takes exactly one corpus name"))
			}
			output, err := ops.Create(ops.CreateInput{Parent: c.String("parent"), Name: c.Args().First()})
			if err != nil {
				return outputError(c, err)
			}
			return outputJSON(output)
		},
	}
}

// addCmd creates the add command.
func addCmd() *cli.Command {
	return &cli.Command{
		Name:      "add",
		Usage:     "Copy files or directories into a corpus's content tree",
		ArgsUsage: "<corpus> <source>...",
		Action: func(c *cli.Context) error {
			if c.NArg() < 2 {
				return outputError(c, errors.NewInvalidRequest("add takes a corpus and at least one source"))
			}
			root := c.Args().First()
			added := make([]string, 0)
			for _, src := range c.Args().Tail() {
				output, err := ops.AddContent(ops.AddInput{Root: root, Source: src})
				if err != nil {
					return outputError(c, err)
				}
				added = append(added, output.Added...)
			}
			return outputJSON(ops.AddOutput{Added: added})
		},
	}
}

// specCmd creates the spec command.
func specCmd(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "spec",
		Usage:     "Write a build spec template",
		ArgsUsage: "[dest]",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "overwrite", Usage: "Replace an existing spec file"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.WriteSpecTemplate(cfg, ops.SpecTemplateInput{
				Dest:      c.Args().First(),
				Overwrite: c.Bool("overwrite"),
			})
			if err != nil {
				return outputError(c, err)
			}
			return outputJSON(output)
		},
	}
}

// fromSpecCmd creates the from-spec command.
func fromSpecCmd(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "from-spec",
		Usage:     "Create, build, index and package a corpus from a spec file",
		ArgsUsage: "<spec>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return outputError(c, errors.NewInvalidRequest("from-spec takes exactly one spec file"))
			}
			output, err := ops.CreateFromSpec(c.Context, cfg, ops.FromSpecInput{SpecPath: c.Args().First()})
			if err != nil {
				return outputError(c, err)
			}
			return outputJSON(output)
		},
	}
}

// buildCmd creates the build command.
func buildCmd(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "build",
		Usage:     "Split content into chunks and write corpus.db",
		ArgsUsage: "<corpus>",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "chunk-size", Usage: "Maximum chunk size in UTF-8 bytes (default from config)"},
			&cli.BoolFlag{Name: "overwrite", Usage: "Replace an existing chunk store"},
			&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "Discard existing embeddings without asking"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.Build(c.Context, cfg, ops.BuildInput{
				Root:      c.Args().First(),
				ChunkSize: c.Int("chunk-size"),
				Overwrite: c.Bool("overwrite"),
				Confirm:   c.Bool("yes"),
			})
			if err != nil {
				return outputError(c, err)
			}
			return outputJSON(output)
		},
	}
}

// indexCmd creates the index command.
func indexCmd(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "index",
		Usage:     "Embed every chunk without a vector and write index.json",
		ArgsUsage: "<corpus>",
		Flags: append(providerFlags(),
			&cli.BoolFlag{Name: "force", Usage: "Clear and recompute every embedding"},
		),
		Action: func(c *cli.Context) error {
			provider, err := newProvider(c, cfg)
			if err != nil {
				return outputError(c, err)
			}
			output, err := ops.AttachEmbeddings(c.Context, cfg, embed.NewCached(provider), ops.IndexInput{
				Root:  c.Args().First(),
				Force: c.Bool("force"),
			})
			if err != nil {
				return outputError(c, err)
			}
			return outputJSON(output)
		},
	}
}

// queryCmd creates the query command.
func queryCmd(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "query",
		Usage:     "Retrieve the chunks most similar to a query",
		ArgsUsage: "<corpus> [text...]",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "top-k", Aliases: []string{"k"}, Usage: "Number of results (default from config)"},
			&cli.StringFlag{Name: "vector", Usage: "Comma-separated query embedding instead of text"},
		},
		Action: func(c *cli.Context) error {
			input := ops.QueryInput{
				Path: c.Args().First(),
				Text: strings.Join(c.Args().Tail(), " "),
				TopK: c.Int("top-k"),
			}
			if v := c.String("vector"); v != "" {
				vec, err := parseVector(v)
				if err != nil {
					return outputError(c, err)
				}
				input.Vector = vec
			}
			output, err := ops.Query(c.Context, cfg, input)
			if err != nil {
				return outputError(c, err)
			}
			return outputJSON(output)
		},
	}
}

// statusCmd creates the status command.
func statusCmd() *cli.Command {
	return &cli.Command{
		Name:      "status",
		Usage:     "Report whether the chunk store and index are up to date",
		ArgsUsage: "<corpus>",
		Action: func(c *cli.Context) error {
			output, err := ops.Status(c.Context, ops.StatusInput{Path: c.Args().First()})
			if err != nil {
				return outputError(c, err)
			}
			return outputJSON(output)
		},
	}
}

// cleanCmd creates the clean command.
func cleanCmd() *cli.Command {
	return &cli.Command{
		Name:      "clean",
		Usage:     "Delete content files that have no chunks in the store",
		ArgsUsage: "<corpus>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "keep-skipped", Usage: "Keep files build skipped (not UTF-8, unsupported, empty)"},
			&cli.BoolFlag{Name: "dry-run", Usage: "Report without deleting"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.Clean(c.Context, ops.CleanInput{
				Root:        c.Args().First(),
				KeepSkipped: c.Bool("keep-skipped"),
				DryRun:      c.Bool("dry-run"),
			})
			if err != nil {
				return outputError(c, err)
			}
			return outputJSON(output)
		},
	}
}

// packCmd creates the pack command.
func packCmd() *cli.Command {
	return &cli.Command{
		Name:      "pack",
		Usage:     "Package a corpus directory into a .arag archive",
		ArgsUsage: "<corpus>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "dest", Aliases: []string{"o"}, Usage: "Archive path (default <name>.arag)"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.Pack(c.Context, ops.PackInput{Root: c.Args().First(), Dest: c.String("dest")})
			if err != nil {
				return outputError(c, err)
			}
			return outputJSON(output)
		},
	}
}

// unpackCmd creates the unpack command.
func unpackCmd() *cli.Command {
	return &cli.Command{
		Name:      "unpack",
		Usage:     "Extract a .arag archive into a corpus directory",
		ArgsUsage: "<archive>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "dest", Aliases: []string{"o"}, Usage: "Directory path (default <name>-arag)"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.Unpack(ops.UnpackInput{Archive: c.Args().First(), Dest: c.String("dest")})
			if err != nil {
				return outputError(c, err)
			}
			return outputJSON(output)
		},
	}
}

// lsCmd creates the ls command.
func lsCmd() *cli.Command {
	return &cli.Command{
		Name:      "ls",
		Usage:     "List a corpus's content files",
		ArgsUsage: "<corpus>",
		Action: func(c *cli.Context) error {
			output, err := ops.List(ops.ListInput{Path: c.Args().First()})
			if err != nil {
				return outputError(c, err)
			}
			return outputJSON(output)
		},
	}
}

// watchCmd creates the watch command.
func watchCmd(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "watch",
		Usage:     "Rebuild (and optionally re-index) whenever content changes",
		ArgsUsage: "<corpus>",
		Flags: append(providerFlags(),
			&cli.DurationFlag{Name: "debounce", Value: ops.DefaultWatchDebounce, Usage: "Quiet period before a rebuild"},
			&cli.BoolFlag{Name: "index", Usage: "Re-embed after each rebuild"},
		),
		Action: func(c *cli.Context) error {
			var provider embed.Provider
			if c.Bool("index") {
				p, err := newProvider(c, cfg)
				if err != nil {
					return outputError(c, err)
				}
				provider = embed.NewCached(p)
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			err := ops.Watch(ctx, cfg, provider, ops.WatchInput{
				Root:     c.Args().First(),
				Debounce: c.Duration("debounce"),
				Index:    c.Bool("index"),
			}, func(ev ops.WatchEvent) {
				_ = outputJSON(ev)
			})
			if err != nil {
				return outputError(c, err)
			}
			return nil
		},
	}
}

// publishCmd creates the publish command.
func publishCmd(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "publish",
		Usage:     "Upload a .arag archive to the configured S3 bucket",
		ArgsUsage: "<archive>",
		Flags: append(s3Flags(),
			&cli.StringFlag{Name: "key", Usage: "Object key (default prefix + file name)"},
		),
		Action: func(c *cli.Context) error {
			client, err := newS3Client(c, cfg)
			if err != nil {
				return outputError(c, err)
			}
			output, err := ops.Publish(c.Context, client, ops.PublishInput{
				Archive: c.Args().First(),
				Key:     c.String("key"),
			})
			if err != nil {
				return outputError(c, err)
			}
			return outputJSON(output)
		},
	}
}

// fetchCmd creates the fetch command.
func fetchCmd(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "fetch",
		Usage:     "Download a .arag archive from the configured S3 bucket",
		ArgsUsage: "<name>",
		Flags: append(s3Flags(),
			&cli.StringFlag{Name: "dest", Aliases: []string{"o"}, Usage: "Local path (default file name in the current directory)"},
			&cli.BoolFlag{Name: "raw", Usage: "Treat name as a full object key"},
		),
		Action: func(c *cli.Context) error {
			client, err := newS3Client(c, cfg)
			if err != nil {
				return outputError(c, err)
			}
			output, err := ops.Fetch(c.Context, client, ops.FetchInput{
				Name: c.Args().First(),
				Dest: c.String("dest"),
				Raw:  c.Bool("raw"),
			})
			if err != nil {
				return outputError(c, err)
			}
			return outputJSON(output)
		},
	}
}

// serveCmd creates the serve command.
func serveCmd(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the MCP server on stdio",
		Action: func(c *cli.Context) error {
			if err := mcp.Run(cfg, Version); err != nil {
				return outputError(c, err)
			}
			return nil
		},
	}
}

// webCmd creates the web command.
func webCmd(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "web",
		Usage:     "Browse a corpus or archive in the browser (read-only)",
		ArgsUsage: "<corpus>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Value: "127.0.0.1", Usage: "Address to listen on"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Value: 7474, Usage: "Port to listen on"},
		},
		Action: func(c *cli.Context) error {
			path := c.Args().First()
			if path == "" {
				return outputError(c, errors.NewInvalidRequest("corpus path is required"))
			}
			if _, err := ops.Status(c.Context, ops.StatusInput{Path: path}); err != nil {
				return outputError(c, err)
			}
			srv, err := web.NewServer(cfg, path, Version, c.String("bind"), c.Int("port"))
			if err != nil {
				return outputError(c, errors.NewInternal(err))
			}
			if err := web.Run(c.Context, srv); err != nil && err != http.ErrServerClosed {
				return outputError(c, errors.NewInternal(err))
			}
			return nil
		},
	}
}

// Helper functions

// providerFlags override the configured embedding provider.
func providerFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "method", Usage: "Embedding method: ollama|openai|hash (default from config)"},
		&cli.StringFlag{Name: "model", Usage: "Embedding model (default per method)"},
		&cli.StringFlag{Name: "endpoint", Usage: "Provider base URL"},
	}
}

// newProvider builds the embedding provider from config and flags.
func newProvider(c *cli.Context, cfg *config.Config) (embed.Provider, error) {
	opts := embed.OptionsFromConfig(cfg)
	if m := c.String("method"); m != "" && !strings.EqualFold(m, opts.Method) {
		opts.Method = m
		opts.Model, opts.Endpoint, opts.Dimensions = "", "", 0
	}
	if m := c.String("model"); m != "" {
		opts.Model = m
	}
	if e := c.String("endpoint"); e != "" {
		opts.Endpoint = e
	}
	return embed.New(opts)
}

// s3Flags override the configured bucket settings.
func s3Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "bucket", Usage: "S3 bucket (default from config)"},
		&cli.StringFlag{Name: "prefix", Usage: "Key prefix (default from config)"},
	}
}

func newS3Client(c *cli.Context, cfg *config.Config) (*storage.S3Client, error) {
	s3cfg := storage.ConfigFromApp(cfg)
	if b := c.String("bucket"); b != "" {
		s3cfg.Bucket = b
	}
	if c.IsSet("prefix") {
		s3cfg.Prefix = c.String("prefix")
	}
	return storage.NewS3Client(c.Context, s3cfg)
}

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError reports err to telemetry and formats it for the CLI.
func outputError(c *cli.Context, err error) error {
	name := ""
	if c != nil && c.Command != nil {
		name = c.Command.Name
	}
	telemetry.CaptureError(name, err)

	if aErr, ok := errors.As(err); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", aErr.Code, aErr.Message), exitCode(aErr.Code))
	}
	return cli.Exit(err.Error(), 1)
}

// exitCode maps expected refusals to 2 so scripts can tell them from failures.
func exitCode(code errors.ErrorCode) int {
	switch code {
	case errors.ErrConfirmationRequired, errors.ErrAlreadyExists, errors.ErrDestinationExists:
		return 2
	case errors.ErrCancelled:
		return 130
	}
	return 1
}

// parseVector parses "0.1,0.2,0.3" into a query embedding.
func parseVector(s string) ([]float32, error) {
	parts := strings.Split(s, ",")
	vec := make([]float32, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		f, err := strconv.ParseFloat(p, 32)
		if err != nil {
			return nil, errors.NewInvalidRequest(fmt.Sprintf("invalid vector component %q", p))
		}
		vec = append(vec, float32(f))
	}
	if len(vec) == 0 {
		return nil, errors.NewInvalidRequest("vector is empty")
	}
	return vec, nil
}
