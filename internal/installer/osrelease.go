package installer

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
)

// Release is the subset of os-release(5) the repository setup needs.
type Release struct {
	ID       string
	IDLike   []string
	Codename string
}

// ReadRelease parses an os-release file.
func ReadRelease(path string) (Release, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Release{}, fmt.Errorf("read os release: %w", err)
	}
	return ParseRelease(data), nil
}

// ParseRelease parses os-release content. Ubuntu derivatives report their
// base release in UBUNTU_CODENAME, which wins over VERSION_CODENAME.
func ParseRelease(data []byte) Release {
	fields := map[string]string{}
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		if unquoted, err := strconv.Unquote(value); err == nil {
			value = unquoted
		} else {
			value = strings.Trim(value, `'"`)
		}
		fields[key] = value
	}

	rel := Release{
		ID:       fields["ID"],
		IDLike:   strings.Fields(fields["ID_LIKE"]),
		Codename: fields["VERSION_CODENAME"],
	}
	if c := fields["UBUNTU_CODENAME"]; c != "" {
		rel.Codename = c
	}
	return rel
}

// Distro is the path segment of the vendor repository for this release.
func (r Release) Distro() (string, error) {
	switch r.ID {
	case "ubuntu", "debian", "raspbian":
		return r.ID, nil
	}
	for _, base := range []string{"ubuntu", "debian"} {
		if slices.Contains(r.IDLike, base) {
			return base, nil
		}
	}
	return "", fmt.Errorf("unsupported distribution %q", r.ID)
}
