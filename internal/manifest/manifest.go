// Package manifest rewrites unit manifests (NMF documents) so that every
// program and file url is fully qualified before launch.
package manifest

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"github.com/zeebo/blake3"
)

// DefaultMountPoint is the path prefix that maps onto persistent storage.
const DefaultMountPoint = "/mnt/html5"

// ErrInvalid is returned for manifests that are not a JSON object.
var ErrInvalid = errors.New("manifest is not a JSON object")

// Rewriter qualifies manifest urls.
type Rewriter struct {
	// MountPoint prefixes are replaced by StorageURL.
	MountPoint string
	StorageURL string
	// BaseURL is prepended to every other url.
	BaseURL string
}

// Rewrite qualifies program.<arch>.url and files.<key>.<arch>.url in raw
// and returns the new document. Other fields are left untouched.
func (r Rewriter) Rewrite(raw []byte) ([]byte, error) {
	if !gjson.ValidBytes(raw) || !gjson.ParseBytes(raw).IsObject() {
		return nil, ErrInvalid
	}

	out := raw
	var err error
	out, err = r.rewriteEntry(out, "program")
	if err != nil {
		return nil, err
	}

	gjson.GetBytes(out, "files").ForEach(func(key, _ gjson.Result) bool {
		out, err = r.rewriteEntry(out, "files."+escape(key.String()))
		return err == nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// rewriteEntry rewrites the url of every arch under path.
func (r Rewriter) rewriteEntry(doc []byte, path string) ([]byte, error) {
	entry := gjson.GetBytes(doc, path)
	if !entry.IsObject() {
		return doc, nil
	}

	var err error
	entry.ForEach(func(arch, v gjson.Result) bool {
		u := v.Get("url")
		if u.Type != gjson.String {
			return true
		}
		doc, err = sjson.SetBytes(doc, path+"."+escape(arch.String())+".url", r.qualify(u.String()))
		if err != nil {
			err = fmt.Errorf("rewrite %s.%s: %w", path, arch.String(), err)
			return false
		}
		return true
	})
	return doc, err
}

func (r Rewriter) qualify(u string) string {
	mount := r.MountPoint
	if mount == "" {
		mount = DefaultMountPoint
	}
	if strings.HasPrefix(u, mount) {
		return r.StorageURL + strings.TrimPrefix(u, mount)
	}
	return r.BaseURL + u
}

// BaseOf returns href up to and including its last '/'.
func BaseOf(href string) string {
	i := strings.LastIndex(href, "/")
	if i < 0 {
		return ""
	}
	return href[:i+1]
}

// DefaultName is the manifest a unit is launched from when the spawn
// request carries none.
func DefaultName(executable string) string {
	return executable + ".nmf"
}

// ProgramURL returns program.<arch>.url, or "" if absent.
func ProgramURL(raw []byte, arch string) string {
	return gjson.GetBytes(raw, "program."+escape(arch)+".url").String()
}

// Digest fingerprints a manifest for the journal.
func Digest(raw []byte) string {
	sum := blake3.Sum256(raw)
	return "blake3:" + hex.EncodeToString(sum[:])
}

// escape quotes gjson path metacharacters in a single key.
func escape(key string) string {
	var b strings.Builder
	for _, c := range key {
		switch c {
		case '.', '*', '?', '|', '#', '@', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(c)
	}
	return b.String()
}
