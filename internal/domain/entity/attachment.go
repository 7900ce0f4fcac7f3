package entity

import "time"

// Attachment categories
const (
	AttachmentCategoryReceipt      = "receipts"
	AttachmentCategoryDepositProof = "deposit-proof"
	AttachmentCategoryOther        = "other"
)

// Attachment is a blob uploaded against a record
type Attachment struct {
	ID         string    `json:"id"`
	RecordKind Kind      `json:"record_kind"`
	RecordID   string    `json:"record_id"`
	Category   string    `json:"category"`
	FileName   string    `json:"file_name"`
	Path       string    `json:"path"`
	URL        string    `json:"url"`
	Size       int64     `json:"size"`
	MimeType   string    `json:"mime_type"`
	UploadedBy string    `json:"uploaded_by"`
	CreatedAt  time.Time `json:"created_at"`
}
