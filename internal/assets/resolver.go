// Package assets turns loosely specified image references stored in
// templates (absolute paths, /uploads paths, bare filenames, inline data
// URLs) into files the renderer can open.
package assets

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no candidate location holds the asset.
// Callers fall back to a default asset; it is never fatal to a render.
var ErrNotFound = errors.New("asset not found")

// Resolver tries an ordered list of candidate locations per reference.
//
//	InstallRoot – directory the service was deployed to
//	WorkDir     – process working directory
//	AssetRoot   – directory holding template backgrounds and logos
//	TempDir     – where inline data URLs are materialized
type Resolver struct {
	InstallRoot string
	WorkDir     string
	AssetRoot   string
	TempDir     string

	mu   sync.Mutex
	data map[string]string
}

// NewResolver builds a resolver. Empty WorkDir means the current
// directory; empty TempDir means os.TempDir().
func NewResolver(installRoot, assetRoot, tempDir string) *Resolver {
	wd, _ := os.Getwd()
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &Resolver{
		InstallRoot: installRoot,
		WorkDir:     wd,
		AssetRoot:   assetRoot,
		TempDir:     tempDir,
		data:        map[string]string{},
	}
}

// Candidates returns the ordered absolute paths tried for ref. Data URLs
// have no candidates; they are handled by Resolve.
func (r *Resolver) Candidates(ref string) []string {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "data:") {
		return nil
	}
	if u, err := url.Parse(ref); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		if !strings.HasPrefix(u.Path, "/uploads/") {
			return nil
		}
		ref = u.Path
	}
	ref = filepath.FromSlash(ref)
	uploadsPrefix := string(filepath.Separator) + "uploads" + string(filepath.Separator)

	var out []string
	switch {
	case strings.HasPrefix(ref, uploadsPrefix):
		out = append(out,
			join(r.InstallRoot, ref),
			join(r.InstallRoot, "public", ref),
			join(r.WorkDir, ref),
			join(r.WorkDir, "public", ref),
			join(r.AssetRoot, filepath.Base(ref)),
		)
	case filepath.IsAbs(ref):
		out = append(out, ref, join(r.InstallRoot, ref))
	case strings.ContainsRune(ref, filepath.Separator):
		out = append(out,
			join(r.InstallRoot, ref),
			join(r.WorkDir, ref),
			join(r.AssetRoot, filepath.Base(ref)),
		)
	default:
		out = append(out,
			join(r.AssetRoot, ref),
			join(r.InstallRoot, "uploads", "certificados", ref),
			join(r.WorkDir, "uploads", "certificados", ref),
			join(r.WorkDir, ref),
		)
	}
	return dedupe(out)
}

// Resolve returns the first readable candidate for ref.
func (r *Resolver) Resolve(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", ErrNotFound
	}
	if strings.HasPrefix(ref, "data:") {
		return r.materialize(ref)
	}
	for _, p := range r.Candidates(ref) {
		if isFile(p) {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, ref)
}

// ResolveFirst resolves the first reference in refs that exists.
func (r *Resolver) ResolveFirst(refs ...string) (string, error) {
	for _, ref := range refs {
		if p, err := r.Resolve(ref); err == nil {
			return p, nil
		}
	}
	return "", ErrNotFound
}

// materialize writes a base64 data URL to a temp file once per resolver.
// The files are left for the OS temp cleaner.
func (r *Resolver) materialize(ref string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.data == nil {
		r.data = map[string]string{}
	}
	if p, ok := r.data[ref]; ok && isFile(p) {
		return p, nil
	}
	meta, payload, ok := strings.Cut(strings.TrimPrefix(ref, "data:"), ",")
	if !ok || !strings.HasSuffix(meta, ";base64") {
		return "", fmt.Errorf("%w: unsupported data url", ErrNotFound)
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		raw, err = base64.RawStdEncoding.DecodeString(payload)
		if err != nil {
			return "", fmt.Errorf("%w: bad base64 payload", ErrNotFound)
		}
	}
	ext := ".png"
	switch strings.TrimSuffix(meta, ";base64") {
	case "image/jpeg", "image/jpg":
		ext = ".jpg"
	case "image/webp":
		ext = ".webp"
	}
	if err := os.MkdirAll(r.TempDir, 0o755); err != nil {
		return "", err
	}
	p := filepath.Join(r.TempDir, "cert-asset-"+uuid.NewString()+ext)
	if err := os.WriteFile(p, raw, 0o600); err != nil {
		return "", err
	}
	r.data[ref] = p
	return p, nil
}

func join(root string, parts ...string) string {
	if root == "" {
		return ""
	}
	return filepath.Join(append([]string{root}, parts...)...)
}

func dedupe(in []string) []string {
	seen := map[string]bool{}
	out := in[:0]
	for _, p := range in {
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

func isFile(p string) bool {
	st, err := os.Stat(p)
	return err == nil && !st.IsDir()
}
