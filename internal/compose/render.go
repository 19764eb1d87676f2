package compose

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"sharespace/config"
	"sharespace/internal/check"

	"gopkg.in/yaml.v3"
)

const header = "# Generated by share-space. Rewritten on every install; edit the installer settings instead.\n"

// ServiceCount is the number of services every rendering contains.
const ServiceCount = 5

// Render returns the descriptor bytes for settings and apiVersion.
func Render(s config.Settings, apiVersion string) ([]byte, error) {
	apiVersion = strings.TrimSpace(apiVersion)
	if apiVersion == "" {
		return nil, fmt.Errorf("render compose file: empty docker API version")
	}

	doc := Topology(s, apiVersion)
	check.Assertf(len(doc.Services) == ServiceCount, "compose topology has %d services", len(doc.Services))

	var buf bytes.Buffer
	buf.WriteString(header)
	if err := encodeDocument(&buf, doc); err != nil {
		return nil, fmt.Errorf("render compose file: %w", err)
	}
	return buf.Bytes(), nil
}

func encodeDocument(w io.Writer, doc Document) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Close()
}

// Parse decodes a rendered descriptor back into a Document.
func Parse(data []byte) (Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("parse compose file: %w", err)
	}
	return doc, nil
}

// Previous is what a descriptor path held before Write replaced it.
type Previous struct {
	Existed bool
	Data    []byte
}

// Write replaces the descriptor at path unconditionally and returns the
// content it overwrote.
func Write(path string, data []byte) (Previous, error) {
	var prev Previous
	old, err := os.ReadFile(path)
	switch {
	case err == nil:
		prev = Previous{Existed: true, Data: old}
	case !errors.Is(err, fs.ErrNotExist):
		return prev, fmt.Errorf("read existing compose file: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return prev, fmt.Errorf("write compose file: %w", err)
	}
	return prev, nil
}

// Restore puts back what Write replaced.
func Restore(path string, prev Previous) error {
	if !prev.Existed {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove compose file: %w", err)
		}
		return nil
	}
	if err := os.WriteFile(path, prev.Data, 0o644); err != nil {
		return fmt.Errorf("restore compose file: %w", err)
	}
	return nil
}

// Versioner reports the Docker Engine API version.
type Versioner interface {
	APIVersion(ctx context.Context) (string, error)
}

// DetectAPIVersion asks the daemon for its API version, falling back when
// the daemon cannot be queried.
func DetectAPIVersion(ctx context.Context, v Versioner, fallback string) string {
	log := slog.With("component", "compose")
	if v == nil {
		return fallback
	}
	version, err := v.APIVersion(ctx)
	if err != nil {
		log.Warn("docker API version query failed, using fallback", "fallback", fallback, "err", err)
		return fallback
	}
	version = strings.TrimSpace(version)
	if version == "" {
		return fallback
	}
	return version
}
