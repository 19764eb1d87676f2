// Package identity derives and records the installation identifier.
package identity

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"sharespace/internal/hostenv"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"
)

// Source yields a candidate identifier. An empty string or an error makes
// Derive move on to the next source.
type Source struct {
	Name string
	Read func() (string, error)
}

// MachineIDFile reads a systemd/dbus machine-id file.
func MachineIDFile(path string) Source {
	return Source{Name: path, Read: func() (string, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}}
}

// RandomUUID generates a fresh random identifier.
func RandomUUID() Source {
	return Source{Name: "uuid", Read: func() (string, error) {
		id, err := uuid.NewRandom()
		if err != nil {
			return "", err
		}
		return id.String(), nil
	}}
}

// HostnameHash hashes the hostname reported by hostname().
func HostnameHash(hostname func() (string, error)) Source {
	return Source{Name: "hostname", Read: func() (string, error) {
		name, err := hostname()
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(name) == "" {
			return "", errors.New("empty hostname")
		}
		sum := blake3.Sum256([]byte(name))
		return hex.EncodeToString(sum[:16]), nil
	}}
}

// DefaultSources is the production source chain.
func DefaultSources() []Source {
	return []Source{
		MachineIDFile("/etc/machine-id"),
		MachineIDFile("/var/lib/dbus/machine-id"),
		RandomUUID(),
		HostnameHash(os.Hostname),
	}
}

// Derive returns the first usable identifier from sources.
func Derive(sources ...Source) (string, error) {
	log := slog.With("component", "identity")
	for _, src := range sources {
		raw, err := src.Read()
		if err != nil {
			log.Debug("identity source unavailable", "source", src.Name, "err", err)
			continue
		}
		if id := normalize(raw); id != "" {
			log.Debug("identity derived", "source", src.Name)
			return id, nil
		}
	}
	return "", errors.New("no identity source produced an identifier")
}

func normalize(raw string) string {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// Policy decides what happens to an identifier that already exists.
type Policy int

const (
	// PolicyPreserve keeps an existing non-empty identifier.
	PolicyPreserve Policy = iota
	// PolicyOverwrite always writes a freshly derived identifier.
	PolicyOverwrite
)

// Record is the outcome of writing the identifier file. Previous holds the
// replaced file content when an existing identifier was overwritten.
type Record struct {
	ID        string
	Preserved bool
	Created   bool
	Previous  []byte
}

// Write stores an identifier at path according to policy and hands the file
// to owner. derive is only called when a new identifier is needed.
func Write(path string, owner hostenv.Owner, policy Policy, derive func() (string, error)) (Record, error) {
	old, err := os.ReadFile(path)
	existed := err == nil
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Record{}, fmt.Errorf("read installation id: %w", err)
	}

	if existed && policy == PolicyPreserve {
		if id := normalize(string(old)); id != "" {
			if err := os.Lchown(path, owner.UID, owner.GID); err != nil {
				return Record{}, fmt.Errorf("set owner of installation id: %w", err)
			}
			return Record{ID: id, Preserved: true}, nil
		}
	}

	id, err := derive()
	if err != nil {
		return Record{}, fmt.Errorf("derive installation id: %w", err)
	}
	if err := os.WriteFile(path, []byte(id+"\n"), 0o644); err != nil {
		return Record{}, fmt.Errorf("write installation id: %w", err)
	}
	if err := os.Lchown(path, owner.UID, owner.GID); err != nil {
		return Record{}, fmt.Errorf("set owner of installation id: %w", err)
	}

	rec := Record{ID: id, Created: !existed}
	if existed && !bytes.Equal(old, []byte(id+"\n")) {
		rec.Previous = old
	}
	return rec, nil
}

// Undo reverts what Write did: a created file is removed, an overwritten
// one gets its previous content back.
func Undo(path string, rec Record) error {
	switch {
	case rec.Created:
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove installation id: %w", err)
		}
	case rec.Previous != nil:
		if err := os.WriteFile(path, rec.Previous, 0o644); err != nil {
			return fmt.Errorf("restore installation id: %w", err)
		}
	}
	return nil
}

// Read returns the recorded identifier.
func Read(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read installation id: %w", err)
	}
	id := normalize(string(data))
	if id == "" {
		return "", fmt.Errorf("installation id file %s is empty", path)
	}
	return id, nil
}
