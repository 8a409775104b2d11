package source

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"tcm-go/internal/catalog"
)

// KindS3 identifies a source read from an S3 bucket prefix.
const KindS3 = "s3"

// ObjectAPI is the subset of the S3 client used to read a content tree.
type ObjectAPI interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Source reads a content tree stored under an S3 prefix. Object keys are
// treated as slash-separated paths; directories are implied by key prefixes.
type S3Source struct {
	api    ObjectAPI
	bucket string
	prefix string
	layout Layout
	ignore *IgnoreMatcher
}

// NewS3Source creates a source for locator, which has the form s3://bucket/prefix.
func NewS3Source(api ObjectAPI, locator string, layout Layout, ignore *IgnoreMatcher) (*S3Source, error) {
	bucket, prefix, err := parseS3Locator(locator)
	if err != nil {
		return nil, err
	}
	return &S3Source{api: api, bucket: bucket, prefix: prefix, layout: layout, ignore: ignore}, nil
}

func parseS3Locator(locator string) (bucket, prefix string, err error) {
	u, err := url.Parse(locator)
	if err != nil {
		return "", "", fmt.Errorf("parsing s3 locator: %w", err)
	}
	if u.Scheme != "s3" || u.Host == "" {
		return "", "", fmt.Errorf("invalid s3 locator %q: want s3://bucket/prefix", locator)
	}
	prefix = strings.Trim(u.Path, "/")
	if prefix != "" {
		prefix += "/"
	}
	return u.Host, prefix, nil
}

// isS3Locator reports whether locator uses the s3 scheme.
func isS3Locator(locator string) bool {
	return strings.HasPrefix(strings.ToLower(locator), "s3://")
}

func (s *S3Source) Kind() string { return KindS3 }

func (s *S3Source) Locator() string {
	return "s3://" + s.bucket + "/" + strings.TrimSuffix(s.prefix, "/")
}

// Walk lists the prefix once, then walks the listing. A listing failure is
// fatal; a failed object read is a warning for that entry only.
func (s *S3Source) Walk(ctx context.Context, visit func(catalog.Candidate) error, warn func(catalog.EntryWarning)) error {
	fsys, err := s.list(ctx)
	if err != nil {
		return err
	}
	return NewWalker(fsys, s.layout, s.ignore).Walk(ctx, visit, warn)
}

func (s *S3Source) Close() error { return nil }

func (s *S3Source) list(ctx context.Context) (*objectFS, error) {
	fsys := newObjectFS(ctx, s.api, s.bucket, s.prefix)

	p := s3.NewListObjectsV2Paginator(s.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing s3://%s/%s: %w", s.bucket, s.prefix, err)
		}
		for _, obj := range page.Contents {
			rel := strings.TrimPrefix(aws.ToString(obj.Key), s.prefix)
			fsys.add(rel, aws.ToInt64(obj.Size), aws.ToTime(obj.LastModified))
		}
	}
	fsys.sort()
	return fsys, nil
}

var _ catalog.Source = (*S3Source)(nil)

// objectFS is a read-only fs.FS over one bucket listing.
type objectFS struct {
	ctx    context.Context
	api    ObjectAPI
	bucket string
	prefix string
	files  map[string]*objectInfo
	dirs   map[string][]fs.DirEntry
}

func newObjectFS(ctx context.Context, api ObjectAPI, bucket, prefix string) *objectFS {
	return &objectFS{
		ctx:    ctx,
		api:    api,
		bucket: bucket,
		prefix: prefix,
		files:  make(map[string]*objectInfo),
		dirs:   map[string][]fs.DirEntry{".": nil},
	}
}

// add records an object at rel and every implied parent directory. Keys
// ending in "/" are folder markers and only create the directory.
func (f *objectFS) add(rel string, size int64, modTime time.Time) {
	isMarker := strings.HasSuffix(rel, "/")
	rel = strings.Trim(rel, "/")
	if rel == "" || !fs.ValidPath(rel) {
		return
	}

	if isMarker {
		f.addDir(rel)
		return
	}
	if _, ok := f.files[rel]; ok {
		return
	}

	info := &objectInfo{name: path.Base(rel), size: size, modTime: modTime}
	f.files[rel] = info
	parent := path.Dir(rel)
	f.addDir(parent)
	f.dirs[parent] = append(f.dirs[parent], info)
}

func (f *objectFS) addDir(dir string) {
	if _, ok := f.dirs[dir]; ok {
		return
	}
	parent := path.Dir(dir)
	f.addDir(parent)
	f.dirs[dir] = nil
	f.dirs[parent] = append(f.dirs[parent], &objectInfo{name: path.Base(dir), dir: true})
}

func (f *objectFS) sort() {
	for _, entries := range f.dirs {
		slices.SortFunc(entries, func(a, b fs.DirEntry) int {
			return strings.Compare(a.Name(), b.Name())
		})
	}
}

func (f *objectFS) ReadDir(name string) ([]fs.DirEntry, error) {
	entries, ok := f.dirs[name]
	if !ok {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: fs.ErrNotExist}
	}
	return slices.Clone(entries), nil
}

func (f *objectFS) Stat(name string) (fs.FileInfo, error) {
	if info, ok := f.files[name]; ok {
		return info, nil
	}
	if _, ok := f.dirs[name]; ok {
		return &objectInfo{name: path.Base(name), dir: true}, nil
	}
	return nil, &fs.PathError{Op: "stat", Path: name, Err: fs.ErrNotExist}
}

func (f *objectFS) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}
	if entries, ok := f.dirs[name]; ok {
		return &objectDir{info: &objectInfo{name: path.Base(name), dir: true}, entries: entries}, nil
	}

	info, ok := f.files[name]
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}

	out, err := f.api.GetObject(f.ctx, &s3.GetObjectInput{
		Bucket: aws.String(f.bucket),
		Key:    aws.String(f.prefix + name),
	})
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	return &objectFile{info: info, body: out.Body}, nil
}

func (f *objectFS) ReadFile(name string) ([]byte, error) {
	file, err := f.Open(name)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	if _, ok := file.(*objectDir); ok {
		return nil, &fs.PathError{Op: "read", Path: name, Err: fs.ErrInvalid}
	}
	return io.ReadAll(file)
}

var (
	_ fs.ReadDirFS  = (*objectFS)(nil)
	_ fs.ReadFileFS = (*objectFS)(nil)
	_ fs.StatFS     = (*objectFS)(nil)
)

// objectInfo describes an object or implied directory.
type objectInfo struct {
	name    string
	size    int64
	modTime time.Time
	dir     bool
}

func (i *objectInfo) Name() string       { return i.name }
func (i *objectInfo) Size() int64        { return i.size }
func (i *objectInfo) ModTime() time.Time { return i.modTime }
func (i *objectInfo) IsDir() bool        { return i.dir }
func (i *objectInfo) Sys() any           { return nil }

func (i *objectInfo) Mode() fs.FileMode {
	if i.dir {
		return fs.ModeDir | 0555
	}
	return 0444
}

func (i *objectInfo) Type() fs.FileMode          { return i.Mode().Type() }
func (i *objectInfo) Info() (fs.FileInfo, error) { return i, nil }

type objectFile struct {
	info *objectInfo
	body io.ReadCloser
}

func (f *objectFile) Stat() (fs.FileInfo, error) { return f.info, nil }
func (f *objectFile) Read(p []byte) (int, error) { return f.body.Read(p) }
func (f *objectFile) Close() error               { return f.body.Close() }

type objectDir struct {
	info    *objectInfo
	entries []fs.DirEntry
	offset  int
}

func (d *objectDir) Stat() (fs.FileInfo, error) { return d.info, nil }
func (d *objectDir) Close() error               { return nil }

func (d *objectDir) Read([]byte) (int, error) {
	return 0, &fs.PathError{Op: "read", Path: d.info.name, Err: fs.ErrInvalid}
}

func (d *objectDir) ReadDir(n int) ([]fs.DirEntry, error) {
	rest := d.entries[d.offset:]
	if n <= 0 {
		d.offset = len(d.entries)
		return slices.Clone(rest), nil
	}
	if len(rest) == 0 {
		return nil, io.EOF
	}
	n = min(n, len(rest))
	d.offset += n
	return slices.Clone(rest[:n]), nil
}
