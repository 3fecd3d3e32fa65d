package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/schemabounce/waterfall-bridge/exporter"
	"github.com/schemabounce/waterfall-bridge/formats"
	"github.com/schemabounce/waterfall-bridge/helpers/logging"
	"github.com/schemabounce/waterfall-bridge/importer"
	"github.com/schemabounce/waterfall-bridge/service"
	"github.com/schemabounce/waterfall-bridge/types"
	"github.com/schemabounce/waterfall-bridge/waterfall"
)

// tokenEnv is read when --token is not given.
const tokenEnv = "WATERFALL_TOKEN"

var (
	token string

	exportOpts   = exporter.DefaultOptions()
	exportOutput string

	importOpts   = importer.DefaultOptions()
	importFile   string
	importSource string
	onAmbiguous  string
	onMissing    string

	exportCmd = &cobra.Command{
		Use:   "export",
		Short: "Export a collection to a file",
		Example: `  waterfall-bridge export --url http://localhost:8000/api/tasks --type csv
  waterfall-bridge export --url http://localhost:8000/api/tasks --tree -o tasks.json`,
		Args: cobra.NoArgs,
		RunE: runExport,
	}

	importCmd = &cobra.Command{
		Use:   "import",
		Short: "Import a file into a collection",
		Example: `  waterfall-bridge import --url http://target:8000/api/tasks --file tasks_export.json
  waterfall-bridge import --url http://target:8000/api/tasks --source exports/tasks.csv --on-missing fail`,
		Args: cobra.NoArgs,
		RunE: runImport,
	}
)

func init() {
	for _, cmd := range []*cobra.Command{exportCmd, importCmd} {
		cmd.Flags().StringVar(&token, "token", "", "access token forwarded to the Waterfall service (default $"+tokenEnv+")")
	}

	f := exportCmd.Flags()
	f.StringVar(&exportOpts.URL, "url", "", "source collection URL")
	f.StringVarP(&exportOpts.Format, "type", "t", exportOpts.Format, "output format: json, csv or mermaid")
	f.BoolVar(&exportOpts.Tree, "tree", false, "nest records under their parents (json only)")
	f.BoolVar(&exportOpts.Enrich, "enrich", exportOpts.Enrich, "attach _references metadata to foreign keys")
	f.StringVar(&exportOpts.LookupConfig, "lookup-config", "", `per-resource lookup fields as JSON, e.g. {"projects":"code"}`)
	f.StringVar(&exportOpts.DiagramType, "diagram-type", "", "mermaid diagram: flowchart, graph or mindmap")
	f.StringVar(&exportOpts.Destination, "destination", "", "store the file under this artifact key instead of writing it locally")
	f.StringVarP(&exportOutput, "output", "o", "", `output path, "-" for stdout (default <resource>_export.<ext>)`)
	_ = exportCmd.MarkFlagRequired("url")

	f = importCmd.Flags()
	f.StringVar(&importOpts.URL, "url", "", "target collection URL")
	f.StringVarP(&importFile, "file", "f", "", "file to import")
	f.StringVar(&importSource, "source", "", "artifact key to import instead of a local file")
	f.StringVarP(&importOpts.Format, "type", "t", "", "input format (default inferred from the file extension)")
	f.BoolVar(&importOpts.ResolveRefs, "resolve-refs", importOpts.ResolveRefs, "resolve _references against the target")
	f.StringVar(&onAmbiguous, "on-ambiguous", string(types.PolicySkip), "policy for ambiguous references: skip or fail")
	f.StringVar(&onMissing, "on-missing", string(types.PolicySkip), "policy for missing references: skip or fail")
	_ = importCmd.MarkFlagRequired("url")
	importCmd.MarkFlagsMutuallyExclusive("file", "source")
	importCmd.MarkFlagsOneRequired("file", "source")
}

// openBridge builds an in-process bridge and a cancellable context carrying
// the credential.
func openBridge(cmd *cobra.Command) (context.Context, context.CancelFunc, *service.Bridge, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)

	b, err := service.FromConfig(ctx, cfg, logging.NewLogger(cmd.Name()), nil)
	if err != nil {
		cancel()
		return nil, nil, nil, err
	}

	if token == "" {
		token = os.Getenv(tokenEnv)
	}
	if token != "" {
		ctx = waterfall.WithCredential(ctx, token)
	}
	return ctx, cancel, b, nil
}

func runExport(cmd *cobra.Command, _ []string) error {
	ctx, cancel, b, err := openBridge(cmd)
	if err != nil {
		return err
	}
	defer cancel()
	defer b.Close()

	result, err := b.Export(ctx, exportOpts)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if result.Artifact != nil {
		fmt.Fprintf(out, "stored %d records as %s (%d bytes)\n", result.Count, result.Artifact.Key, result.Artifact.Size)
		return nil
	}

	switch exportOutput {
	case "-":
		_, err = out.Write(result.Data)
		return err
	case "":
		exportOutput = result.Filename
	}
	if err := os.WriteFile(exportOutput, result.Data, 0o644); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "exported %d records (%d enriched) to %s\n", result.Count, result.Enriched, exportOutput)
	return nil
}

func runImport(cmd *cobra.Command, _ []string) error {
	ctx, cancel, b, err := openBridge(cmd)
	if err != nil {
		return err
	}
	defer cancel()
	defer b.Close()

	opts := importOpts
	opts.OnAmbiguous = types.Policy(onAmbiguous)
	opts.OnMissing = types.Policy(onMissing)

	name := importFile
	if name == "" {
		name = importSource
	}
	if opts.Format == "" {
		opts.Format = inferFormat(name)
	}

	var result *importer.Result
	if importFile != "" {
		payload, readErr := os.ReadFile(importFile)
		if readErr != nil {
			return fmt.Errorf("read import file: %w", readErr)
		}
		opts.Filename = filepath.Base(importFile)
		result, err = b.Import(ctx, opts, payload)
	} else {
		result, err = b.ImportArtifact(ctx, opts, importSource)
	}
	if err != nil {
		var abortErr *importer.AbortError
		if errors.As(err, &abortErr) && abortErr.Resolution != nil {
			_ = printJSON(cmd, abortErr.Resolution)
		}
		return err
	}

	if err := printJSON(cmd, result); err != nil {
		return err
	}
	if result.Import.Failed > 0 {
		return fmt.Errorf("%d of %d records failed", result.Import.Failed, result.Import.Total)
	}
	return nil
}

// inferFormat picks the codec whose extension name carries, defaulting to
// json.
func inferFormat(name string) string {
	registry := formats.DefaultRegistry()
	for _, format := range registry.Names() {
		codec, err := registry.Lookup(format)
		if err != nil {
			continue
		}
		if formats.CheckFilename(codec, filepath.Base(name)) == nil {
			return format
		}
	}
	return "json"
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
