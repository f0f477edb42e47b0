package model

// Attachment fields stored on the host record, each prefixed with the
// attachment name: an attachment "avatar" keeps its status in
// "avatar_status".
const (
	FieldStatus      = "status"
	FieldContentType = "content_type"
	FieldFileSize    = "file_size"
	FieldUpdatedAt   = "updated_at"
)

// Fields lists every attachment field in storage order.
var Fields = []string{FieldStatus, FieldContentType, FieldFileSize, FieldUpdatedAt}

// AttributeName returns the host attribute holding field for attachment.
func AttributeName(attachment, field string) string {
	return attachment + "_" + field
}
