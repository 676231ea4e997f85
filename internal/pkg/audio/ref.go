package audio

import (
	"fmt"
	"net/url"
	"strings"
)

// RefKind marks how the stored file reference was expressed
type RefKind int

const (
	// RefPath - bare object path inside the default bucket
	RefPath RefKind = iota + 1
	// RefPublicURL - previously generated public URL embedding bucket and path
	RefPublicURL
)

// FileRef is a stored file reference resolved to a canonical bucket/path pair
type FileRef struct {
	Kind   RefKind
	Bucket string
	Path   string
}

// ParseFileRef resolves a stored reference, either a bare object path or a
// public URL of form http(s)://host/bucket/path, to a FileRef
func ParseFileRef(s, defaultBucket string) (FileRef, error) {
	if s == "" {
		return FileRef{}, fmt.Errorf("empty file reference")
	}
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return FileRef{}, fmt.Errorf("can't parse file URL: %w", err)
		}
		p := strings.TrimPrefix(u.Path, "/")
		bucket, path, found := strings.Cut(p, "/")
		if !found || path == "" {
			return FileRef{}, fmt.Errorf("no object path in URL '%s'", s)
		}
		return FileRef{Kind: RefPublicURL, Bucket: bucket, Path: path}, nil
	}
	return FileRef{Kind: RefPath, Bucket: defaultBucket, Path: strings.TrimPrefix(s, "/")}, nil
}
