// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package fsutil contains utilities to write compiler reports (dumps, schedules) to the file system.
package fsutil

import (
	"bufio"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// ExpandHome replaces a leading "~" or "~user" in path by the corresponding home directory.
// Paths not starting with "~" are returned unchanged.
func ExpandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	userName, rest, _ := strings.Cut(path[1:], "/")
	var usr *user.User
	var err error
	if userName == "" {
		usr, err = user.Current()
	} else {
		usr, err = user.Lookup(userName)
	}
	if err != nil {
		return "", errors.Wrapf(err, "failed to lookup home directory for user in path %q", path)
	}
	return filepath.Join(usr.HomeDir, rest), nil
}

// Section is a titled list of lines of a report.
type Section struct {
	Title string
	Lines []string
}

// WriteReport writes the sections to the file at path, creating its parent directory if needed.
// The path may start with "~" (see ExpandHome). It returns the expanded path.
func WriteReport(path string, sections ...Section) (string, error) {
	path, err := ExpandHome(path)
	if err != nil {
		return "", err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", errors.Wrapf(err, "failed to create directory %q", dir)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return "", errors.Wrapf(err, "failed to create report %q", path)
	}
	w := bufio.NewWriter(f)
	for i, section := range sections {
		if i > 0 {
			_, _ = w.WriteString("\n")
		}
		if section.Title != "" {
			_, _ = w.WriteString(section.Title + ":\n")
		}
		for _, line := range section.Lines {
			_, _ = w.WriteString(line)
			_, _ = w.WriteString("\n")
		}
	}
	if err = w.Flush(); err != nil {
		_ = f.Close()
		return "", errors.Wrapf(err, "failed to write report %q", path)
	}
	if err = f.Close(); err != nil {
		return "", errors.Wrapf(err, "failed to close report %q", path)
	}
	return path, nil
}
