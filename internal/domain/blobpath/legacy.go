package blobpath

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/ieeeucsd/dashboard-finance/internal/domain/entity"
)

// LegacyPath is a key written before the versioned schema existed:
// {recordID}/{category}/{timestamp}_{filename}, possibly embedded in a
// download URL.
type LegacyPath struct {
	Raw      string
	RecordID string
	Category string
	Path     Path
}

var legacyCategories = map[string]string{
	"receipt":       entity.AttachmentCategoryReceipt,
	"receipts":      entity.AttachmentCategoryReceipt,
	"deposit":       entity.AttachmentCategoryDepositProof,
	"deposits":      entity.AttachmentCategoryDepositProof,
	"deposit-proof": entity.AttachmentCategoryDepositProof,
	"proof":         entity.AttachmentCategoryDepositProof,
	"other":         entity.AttachmentCategoryOther,
	"attachments":   entity.AttachmentCategoryOther,
}

// IsVersioned reports whether key already follows the current schema
func IsVersioned(key string) bool {
	return strings.HasPrefix(key, Version+"/")
}

// ParseLegacy classifies a legacy key or URL. The record kind is not part of
// legacy keys, so the returned Path has no Kind until Upgrade is called.
func ParseLegacy(raw string) (LegacyPath, error) {
	key := raw
	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return LegacyPath{}, fmt.Errorf("%w: %v", ErrInvalidPath, err)
		}
		key = u.Path
		// hosted object URLs carry the object name escaped after /o/
		if i := strings.Index(key, "/o/"); i >= 0 {
			key = key[i+3:]
		}
	}
	if unescaped, err := url.PathUnescape(key); err == nil {
		key = unescaped
	}
	key = strings.Trim(key, "/")

	parts := strings.Split(key, "/")
	if len(parts) < 3 {
		return LegacyPath{}, fmt.Errorf("%w: legacy key %q has fewer than 3 segments", ErrInvalidPath, raw)
	}
	parts = parts[len(parts)-3:]

	uploadedAt, filename, err := splitStampedName(parts[2])
	if err != nil {
		return LegacyPath{}, err
	}

	category, ok := legacyCategories[strings.ToLower(parts[1])]
	if !ok {
		return LegacyPath{}, fmt.Errorf("%w: unknown legacy category %q", ErrInvalidPath, parts[1])
	}

	if !segmentPattern.MatchString(parts[0]) {
		return LegacyPath{}, fmt.Errorf("%w: record id %q", ErrInvalidPath, parts[0])
	}

	return LegacyPath{
		Raw:      raw,
		RecordID: parts[0],
		Category: category,
		Path: Path{
			RecordID:   parts[0],
			Category:   category,
			UploadedAt: uploadedAt,
			Filename:   SanitizeFilename(filename),
		},
	}, nil
}

// Upgrade assigns the owning record kind and validates the result
func (l LegacyPath) Upgrade(kind entity.Kind) (Path, error) {
	p := l.Path
	p.Kind = kind
	if err := p.Validate(); err != nil {
		return Path{}, err
	}
	return p, nil
}
