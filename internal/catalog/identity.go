package catalog

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// linkHashLen is the number of hex characters of the URL digest kept in a link key.
const linkHashLen = 16

// folderMarker terminates folder keys so a folder can never collide with a
// file of the same name.
const folderMarker = "/"

// NormalizePath converts a source-relative path into the form used for keys:
// forward slashes, NFC, no leading or trailing separators, no "." or ".."
// segments. Case is preserved.
func NormalizePath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = norm.NFC.String(p)
	p = path.Clean("/" + p)
	return strings.TrimPrefix(p, "/")
}

// Derive computes the identity of a candidate. It performs no I/O and has no
// hidden state: the same candidate always yields the same identity.
func Derive(c Candidate) (Identity, error) {
	p := NormalizePath(c.Path)
	if p == "" {
		return Identity{}, fmt.Errorf("empty path for %s candidate", c.Type)
	}

	id := Identity{Type: c.Type, Path: p, Name: path.Base(p)}

	switch c.Type {
	case TypeFile:
		id.Key = p
		id.Classification = Classify(path.Dir(p))
	case TypeFolder:
		id.Key = p + folderMarker
		id.Classification = Classify(p)
	case TypeLink:
		url := strings.TrimSpace(c.URL)
		if url == "" {
			return Identity{}, fmt.Errorf("link candidate without url: %s", p)
		}
		id.Key = LinkKey(p, url)
		id.Name = url
		id.URL = url
		id.Classification = Classify(path.Dir(p))
	default:
		return Identity{}, fmt.Errorf("unknown resource type: %q", c.Type)
	}

	return id, nil
}

// LinkKey returns the key of the link with the given URL inside the link file
// at linkFilePath.
func LinkKey(linkFilePath, url string) string {
	sum := sha256.Sum256([]byte(url))
	return linkFilePath + "#" + hex.EncodeToString(sum[:])[:linkHashLen]
}

// Classify derives department, sub-department, bucket and training type from
// the leading segments of a directory path. Missing segments leave the
// corresponding fields empty.
func Classify(dir string) Classification {
	dir = NormalizePath(dir)
	if dir == "" {
		return Classification{}
	}
	segs := strings.Split(dir, "/")

	var c Classification
	if len(segs) > 0 {
		c.Department = segs[0]
	}
	if len(segs) > 1 {
		c.SubDepartment = segs[1]
	}
	if len(segs) > 2 {
		c.Bucket = NormalizeBucket(segs[2])
	}
	if len(segs) > 3 {
		c.TrainingType = NormalizeTrainingType(segs[3])
	}
	return c
}

var knownBuckets = []string{"onboarding", "upskilling", "not_sure"}

var knownTrainingTypes = []string{
	"instructor_led_in_person",
	"instructor_led_virtual",
	"self_directed",
	"video_on_demand",
	"job_aids",
	"resources",
}

// NormalizeBucket maps a bucket folder name such as "03_Not Sure (drop here)"
// to its stable key ("not_sure"). Unknown names fall back to their slug.
func NormalizeBucket(name string) string {
	return matchKnown(slug(name), knownBuckets)
}

// NormalizeTrainingType maps a training-type folder name such as
// "01_Instructor Led – In Person" to its stable key. Unknown names fall back
// to their slug.
func NormalizeTrainingType(name string) string {
	return matchKnown(slug(name), knownTrainingTypes)
}

func matchKnown(s string, known []string) string {
	for _, k := range known {
		if s == k || strings.HasPrefix(s, k+"_") {
			return k
		}
	}
	return s
}

var orderPrefix = regexp.MustCompile(`^\d+[\s._-]*`)

// slug lowercases name, drops a leading ordering number and collapses every
// run of non-alphanumerics to a single underscore.
func slug(name string) string {
	s := orderPrefix.ReplaceAllString(strings.TrimSpace(name), "")
	s = strings.ToLower(s)

	var b strings.Builder
	sep := true
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			sep = false
			continue
		}
		if !sep {
			b.WriteByte('_')
			sep = true
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}
