package filetype

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"
)

const mimePDF = "application/pdf"

// FileTypeInfo contains detected file type information
type FileTypeInfo struct {
	MIMEType    string
	Extension   string
	Supported   bool
	Description string
}

// Detector handles file type detection using magic bytes
type Detector struct{}

// New creates a new file type detector
func New() *Detector {
	return &Detector{}
}

// Detect sniffs the content, not the filename. The name is only used for
// log context and the mismatch warning.
func (d *Detector) Detect(data []byte, name string) *FileTypeInfo {
	mtype := mimetype.Detect(data)
	info := &FileTypeInfo{
		MIMEType:  mtype.String(),
		Extension: mtype.Extension(),
	}
	d.classify(info)

	log.Debug().Str("mime", info.MIMEType).Str("ext", info.Extension).Str("file", name).Msg("detected file type")
	if ext := strings.ToLower(filepath.Ext(name)); info.Supported && ext != "" && ext != ".pdf" {
		log.Warn().Str("file", name).Str("ext", ext).Msg("PDF content with unexpected extension")
	}
	return info
}

// classify marks which inputs can be reordered. Only PDF is accepted.
func (d *Detector) classify(info *FileTypeInfo) {
	switch {
	case mimetype.EqualsAny(info.MIMEType, mimePDF):
		info.Supported = true
		info.Description = "PDF document"
	case strings.HasPrefix(info.MIMEType, "image/"):
		info.Description = "Image file (scan must be assembled into a PDF first)"
	case strings.HasPrefix(info.MIMEType, "text/"):
		info.Description = "Plain text file"
	default:
		info.Description = fmt.Sprintf("Unsupported file type: %s", info.MIMEType)
	}
}

// RequirePDF returns an error describing the detected type when data is not a PDF.
func (d *Detector) RequirePDF(data []byte, name string) error {
	info := d.Detect(data, name)
	if !info.Supported {
		return fmt.Errorf("not a PDF: %s", info.Description)
	}
	return nil
}
