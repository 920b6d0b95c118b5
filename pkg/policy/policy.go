// Package policy maps requests to scenario storage paths.
package policy

import (
	"path"
	"strings"

	"github.com/sophialabs/httpmocker/pkg/scenario"
)

// DefaultExtension is the scenario file extension used by the built-in policies.
const DefaultExtension = "json"

// FilingPolicy deterministically maps a request to a slash-separated scenario
// path relative to the scenario root.
type FilingPolicy interface {
	Path(req *scenario.Request) string
}

// Func adapts a plain function to FilingPolicy.
type Func func(req *scenario.Request) string

// Path calls f(req).
func (f Func) Path(req *scenario.Request) string { return f(req) }

// MirrorPath mirrors the URL path: /test/with/path becomes test/with/path.json
// and a trailing slash selects index.json inside the last segment.
type MirrorPath struct {
	Extension string
}

// Path implements FilingPolicy.
func (p MirrorPath) Path(req *scenario.Request) string {
	return segmentsPath(nil, req.Path, ext(p.Extension))
}

// ServerSpecific prefixes the mirrored path with the request host.
type ServerSpecific struct {
	Extension string
}

// Path implements FilingPolicy.
func (p ServerSpecific) Path(req *scenario.Request) string {
	return segmentsPath([]string{req.Host}, req.Path, ext(p.Extension))
}

// SingleFolder stores every scenario in one folder, joining path segments with "_".
type SingleFolder struct {
	Folder    string
	Extension string
}

// Path implements FilingPolicy.
func (p SingleFolder) Path(req *scenario.Request) string {
	name := strings.Join(req.Segments(), "_")
	if name == "" {
		name = "index"
	}
	return path.Join(p.Folder, name+"."+ext(p.Extension))
}

func segmentsPath(prefix []string, urlPath, extension string) string {
	parts := append(prefix, strings.Split(strings.TrimPrefix(urlPath, "/"), "/")...)
	last := len(parts) - 1
	if parts[last] == "" {
		parts[last] = "index"
	}
	parts[last] += "." + extension
	return path.Join(parts...)
}

func ext(e string) string {
	if e == "" {
		return DefaultExtension
	}
	return strings.TrimPrefix(e, ".")
}
