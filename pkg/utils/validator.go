// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package utils

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// MaxUploadBytes caps a single knowledge-base upload.
const MaxUploadBytes = 50 * 1024 * 1024

var allowedUploadExtensions = map[string]bool{
	".pdf":  true,
	".txt":  true,
	".md":   true,
	".docx": true,
	".doc":  true,
}

var (
	unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)
	endpointPathPattern = regexp.MustCompile(`^/[\w{}/-]*$`)
)

// SanitizeFilename strips path components and unsafe characters from an
// uploaded filename and bounds its length.
func SanitizeFilename(name string) string {
	name = filepath.Base(name)
	name = unsafeFilenameChars.ReplaceAllString(name, "_")
	if len(name) > 255 {
		ext := filepath.Ext(name)
		name = name[:255-len(ext)] + ext
	}
	return name
}

// ValidateUpload checks an upload's filename and declared size against the
// extension allowlist and size cap.
func ValidateUpload(filename string, size int64) error {
	if filename == "" {
		return fmt.Errorf("filename is required")
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedUploadExtensions[ext] {
		return fmt.Errorf("file type %s not allowed", ext)
	}
	if size > MaxUploadBytes {
		return fmt.Errorf("file exceeds maximum size of %d bytes", MaxUploadBytes)
	}
	return nil
}

// ValidateEndpointPath checks a configured API endpoint path. Paths must be
// absolute and may contain {param} placeholders.
func ValidateEndpointPath(path string) error {
	if path == "" {
		return fmt.Errorf("path is required")
	}
	if !strings.HasPrefix(path, "/") {
		return fmt.Errorf("path must start with '/'")
	}
	if !endpointPathPattern.MatchString(path) {
		return fmt.Errorf("path contains invalid characters")
	}
	return nil
}
