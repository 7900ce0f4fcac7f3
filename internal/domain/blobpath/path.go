// Package blobpath defines the versioned key schema for attachment blobs.
//
// Keys have the form
//
//	v1/{collection}/{recordID}/{category}/{unixMillis}_{filename}
//
// and are validated when constructed, so readers never need to reverse
// engineer metadata from URLs.
package blobpath

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ieeeucsd/dashboard-finance/internal/domain/entity"
)

// Version is the current schema version prefix
const Version = "v1"

const maxFilenameLength = 100

// ErrInvalidPath is wrapped by every construction or parse failure
var ErrInvalidPath = errors.New("invalid blob path")

var (
	segmentPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	unsafeChars    = regexp.MustCompile(`[^A-Za-z0-9._-]+`)
)

var collections = map[entity.Kind]string{
	entity.KindReimbursement: "reimbursements",
	entity.KindDeposit:       "deposits",
}

var categories = map[string]bool{
	entity.AttachmentCategoryReceipt:      true,
	entity.AttachmentCategoryDepositProof: true,
	entity.AttachmentCategoryOther:        true,
}

// Path is a validated blob key
type Path struct {
	Kind       entity.Kind
	RecordID   string
	Category   string
	UploadedAt time.Time
	Filename   string
}

// New builds a path, sanitizing the filename and validating every segment
func New(kind entity.Kind, recordID, category string, uploadedAt time.Time, filename string) (Path, error) {
	p := Path{
		Kind:       kind,
		RecordID:   recordID,
		Category:   category,
		UploadedAt: uploadedAt.UTC().Truncate(time.Millisecond),
		Filename:   SanitizeFilename(filename),
	}
	if err := p.Validate(); err != nil {
		return Path{}, err
	}
	return p, nil
}

// Validate checks every segment of the path
func (p Path) Validate() error {
	if _, ok := collections[p.Kind]; !ok {
		return fmt.Errorf("%w: unknown record kind %q", ErrInvalidPath, p.Kind)
	}
	if !segmentPattern.MatchString(p.RecordID) {
		return fmt.Errorf("%w: record id %q", ErrInvalidPath, p.RecordID)
	}
	if !categories[p.Category] {
		return fmt.Errorf("%w: unknown category %q", ErrInvalidPath, p.Category)
	}
	if p.UploadedAt.IsZero() {
		return fmt.Errorf("%w: missing upload time", ErrInvalidPath)
	}
	if p.Filename == "" {
		return fmt.Errorf("%w: empty filename", ErrInvalidPath)
	}
	return nil
}

// String renders the storage key
func (p Path) String() string {
	return strings.Join([]string{
		Version,
		collections[p.Kind],
		p.RecordID,
		p.Category,
		strconv.FormatInt(p.UploadedAt.UnixMilli(), 10) + "_" + p.Filename,
	}, "/")
}

// RecordPrefix is the key prefix shared by all blobs of one record
func RecordPrefix(kind entity.Kind, recordID string) string {
	return strings.Join([]string{Version, collections[kind], recordID}, "/") + "/"
}

// Parse validates a key produced by String
func Parse(key string) (Path, error) {
	parts := strings.Split(key, "/")
	if len(parts) != 5 {
		return Path{}, fmt.Errorf("%w: expected 5 segments, got %d", ErrInvalidPath, len(parts))
	}
	if parts[0] != Version {
		return Path{}, fmt.Errorf("%w: unsupported version %q", ErrInvalidPath, parts[0])
	}

	var kind entity.Kind
	for k, c := range collections {
		if c == parts[1] {
			kind = k
		}
	}

	uploadedAt, filename, err := splitStampedName(parts[4])
	if err != nil {
		return Path{}, err
	}

	p := Path{
		Kind:       kind,
		RecordID:   parts[2],
		Category:   parts[3],
		UploadedAt: uploadedAt,
		Filename:   filename,
	}
	if err := p.Validate(); err != nil {
		return Path{}, err
	}
	if SanitizeFilename(filename) != filename {
		return Path{}, fmt.Errorf("%w: filename %q is not sanitized", ErrInvalidPath, filename)
	}
	return p, nil
}

// SanitizeFilename replaces characters outside [A-Za-z0-9._-] with
// underscores, strips leading dots and caps the length
func SanitizeFilename(name string) string {
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	name = unsafeChars.ReplaceAllString(strings.TrimSpace(name), "_")
	name = strings.TrimLeft(name, "._")
	if len(name) > maxFilenameLength {
		name = name[len(name)-maxFilenameLength:]
	}
	return name
}

// splitStampedName splits "{unixMillis}_{filename}"
func splitStampedName(segment string) (time.Time, string, error) {
	stamp, filename, ok := strings.Cut(segment, "_")
	if !ok {
		return time.Time{}, "", fmt.Errorf("%w: missing timestamp prefix in %q", ErrInvalidPath, segment)
	}
	millis, err := strconv.ParseInt(stamp, 10, 64)
	if err != nil || millis <= 0 {
		return time.Time{}, "", fmt.Errorf("%w: bad timestamp %q", ErrInvalidPath, stamp)
	}
	return time.UnixMilli(millis).UTC(), filename, nil
}
