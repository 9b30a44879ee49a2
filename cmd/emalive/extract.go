package main

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func newExtractCmd(flags *rootFlags) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "extract <file>",
		Short: "Extract fields from a document",
		Long:  "Reads an image, PDF or text document and prints the fields found in it.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExtract(cmd, flags, args[0], timeout)
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "max wait for extraction")
	return cmd
}

func runExtract(cmd *cobra.Command, flags *rootFlags, path string, timeout time.Duration) error {
	cfg, err := flags.loadConfig()
	if err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	c, err := newCollaborators(ctx, cfg)
	if err != nil {
		return err
	}

	fields, err := c.documents.ExtractDocument(ctx, data, documentMIMEType(path, data))
	if err != nil {
		return err
	}

	fmt.Fprint(cmd.OutOrStdout(), formatFields(fields))
	return nil
}

func documentMIMEType(path string, data []byte) string {
	if mimeType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); mimeType != "" {
		mimeType, _, _ = strings.Cut(mimeType, ";")
		return mimeType
	}
	mimeType, _, _ := strings.Cut(http.DetectContentType(data), ";")
	return mimeType
}

// formatFields prints one "key: value" line per field, sorted by key.
func formatFields(fields map[string]string) string {
	if len(fields) == 0 {
		return "no fields found\n"
	}

	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	var b strings.Builder
	for _, key := range keys {
		fmt.Fprintf(&b, "%s: %s\n", key, fields[key])
	}
	return b.String()
}
