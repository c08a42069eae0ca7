package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"studyrag/backend/features/query"
	"studyrag/backend/internal/app"
	"studyrag/backend/internal/embedding"
	"studyrag/backend/internal/extract"
	"studyrag/backend/internal/worker"
)

// --- index ---

func newIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Index a local file synchronously, bypassing the queue",
		Long: `Index a local file synchronously, bypassing the queue.

Examples:
  studyrag index --owner 42 --document 7 --file ./lecture.pdf
  studyrag index --owner 42 --document 8 --file notes.txt --title "Week 1"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ownerID, _ := cmd.Flags().GetInt64("owner")
			documentID, _ := cmd.Flags().GetInt64("document")
			file, _ := cmd.Flags().GetString("file")
			title, _ := cmd.Flags().GetString("title")

			if ownerID <= 0 || documentID <= 0 {
				return errors.New("--owner and --document are required")
			}
			if file == "" {
				return errors.New("--file is required")
			}
			mediaType := extract.DetectMediaType(file)
			if mediaType == "" {
				return fmt.Errorf("%w: %s", extract.ErrUnsupportedMediaType, filepath.Ext(file))
			}
			if title == "" {
				title = filepath.Base(file)
			}

			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			emb, err := embedding.New(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer emb.Close()

			idx, err := app.NewIndex(cfg)
			if err != nil {
				return err
			}

			f, err := os.Open(file) // #nosec G304 -- path supplied by the operator
			if err != nil {
				return fmt.Errorf("opening file: %w", err)
			}
			defer f.Close()

			doc := worker.DocumentMeta{ID: documentID, OwnerID: ownerID, Title: title, MediaType: mediaType}
			summary := app.NewIndexer(cfg, nil, emb, idx).Index(ctx, doc, f)

			if err := printSummary(cmd.OutOrStdout(), summary); err != nil {
				return err
			}
			if summary.Status == worker.StatusFailed {
				return summary.Err
			}
			return nil
		},
	}
	cmd.Flags().Int64("owner", 0, "owner id")
	cmd.Flags().Int64("document", 0, "document id")
	cmd.Flags().String("file", "", "path to a .pdf, .docx, .txt or .md file")
	cmd.Flags().String("title", "", "document title (defaults to the file name)")
	return cmd
}

func printSummary(w io.Writer, s worker.JobSummary) error {
	out := map[string]any{
		"document_id":    s.DocumentID,
		"owner_id":       s.OwnerID,
		"status":         s.Status,
		"chunks_total":   s.ChunksTotal,
		"chunks_indexed": s.ChunksIndexed,
		"chunks_skipped": len(s.Skipped),
		"duration":       s.Duration.String(),
	}
	if s.Err != nil {
		out["error"] = s.Err.Error()
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// --- query ---

func newQueryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query QUESTION",
		Short: "Retrieve context for a question and print the prompt (and answer when generation is enabled)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ownerID, _ := cmd.Flags().GetInt64("owner")
			documentID, _ := cmd.Flags().GetInt64("document")

			if ownerID <= 0 {
				return errors.New("--owner is required")
			}
			question := strings.TrimSpace(args[0])
			if question == "" {
				return embedding.ErrEmptyInput
			}

			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			emb, err := embedding.New(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer emb.Close()

			idx, err := app.NewIndex(cfg)
			if err != nil {
				return err
			}

			svc, closeSvc, err := app.NewQueryService(ctx, cfg, emb, idx)
			if err != nil {
				return err
			}
			defer closeSvc()

			req := query.Request{OwnerID: ownerID, Query: question}
			if documentID > 0 {
				req.DocumentID = &documentID
			}
			ans, err := svc.Ask(ctx, req)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(ans)
		},
	}
	cmd.Flags().Int64("owner", 0, "owner id")
	cmd.Flags().Int64("document", 0, "restrict the search to one document")
	return cmd
}
