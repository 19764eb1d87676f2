// Package hostenv resolves who the installation is for.
//
// The installer runs elevated but provisions files for the person who
// invoked it. Env captures that identity once at startup; every component
// receives it explicitly instead of reading the process environment.
package hostenv

import (
	"errors"
	"fmt"
	"os"
	"os/user"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// ErrNotRoot is returned by Guard when the process is not running as root.
var ErrNotRoot = errors.New("share-space must be run as root (try: sudo share-space)")

// Env is the resolved, immutable identity of the installing user.
type Env struct {
	User string
	UID  int
	GID  int
	Home string
	EUID int
	// Delegated is set when root privileges came from sudo on behalf of a
	// regular user, so created files must be handed back to that user.
	Delegated bool
}

// Lookup is the set of host queries Resolve needs.
type Lookup struct {
	Getenv  func(string) string
	Geteuid func() int
	Current func() (*user.User, error)
	ByName  func(string) (*user.User, error)
}

// SystemLookup queries the running host.
func SystemLookup() Lookup {
	return Lookup{
		Getenv:  os.Getenv,
		Geteuid: unix.Geteuid,
		Current: user.Current,
		ByName:  user.Lookup,
	}
}

// Resolve determines the real user. SUDO_USER wins when it names someone
// other than root; otherwise the current user is used.
func Resolve(l Lookup) (Env, error) {
	env := Env{EUID: l.Geteuid()}

	var (
		u   *user.User
		err error
	)
	if name := strings.TrimSpace(l.Getenv("SUDO_USER")); name != "" && name != "root" {
		u, err = l.ByName(name)
		if err != nil {
			return Env{}, fmt.Errorf("look up sudo user %q: %w", name, err)
		}
		env.Delegated = true
	} else {
		u, err = l.Current()
		if err != nil {
			return Env{}, fmt.Errorf("look up current user: %w", err)
		}
	}

	env.User = u.Username
	env.Home = u.HomeDir
	if env.UID, err = strconv.Atoi(u.Uid); err != nil {
		return Env{}, fmt.Errorf("parse uid for %q: %w", u.Username, err)
	}
	if env.GID, err = strconv.Atoi(u.Gid); err != nil {
		return Env{}, fmt.Errorf("parse gid for %q: %w", u.Username, err)
	}
	if strings.TrimSpace(env.Home) == "" {
		return Env{}, fmt.Errorf("user %q has no home directory", u.Username)
	}
	return env, nil
}

// Guard fails unless the process runs with effective UID 0.
func Guard(env Env) error {
	if env.EUID != 0 {
		return ErrNotRoot
	}
	return nil
}

// Owner is the uid/gid pair files are handed to.
type Owner struct {
	UID int
	GID int
}

// Owner returns the real user's numeric identity.
func (e Env) Owner() Owner {
	return Owner{UID: e.UID, GID: e.GID}
}
