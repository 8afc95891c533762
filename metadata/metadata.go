// Package metadata reads what can be learned from a working copy without the
// external tools: its sniffed MIME type and the PDF document information.
package metadata

import (
	"io"
	"os"
	"strconv"

	"github.com/h2non/filetype"
	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// MIMEPDF is the type every eligible file is expected to sniff as.
const MIMEPDF = "application/pdf"

// SniffMIME matches the file header against known signatures. Unrecognized
// content yields "unknown".
func SniffMIME(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	buf := make([]byte, 261)
	n, err := file.Read(buf)
	if err != nil && err != io.EOF {
		return "", err
	}
	if n == 0 {
		return "unknown", nil
	}
	kind, err := filetype.Match(buf[:n])
	if err != nil {
		return "", err
	}
	if kind == filetype.Unknown || kind.MIME.Value == "" {
		return "unknown", nil
	}
	return kind.MIME.Value, nil
}

// PDFInfo returns the non-empty document information fields of a PDF.
// Files larger than maxBytes (when positive) and files pdfcpu can't parse
// yield an empty map.
func PDFInfo(path string, maxBytes int64) map[string]string {
	meta := make(map[string]string)
	if maxBytes > 0 {
		st, err := os.Stat(path)
		if err != nil || st.Size() > maxBytes {
			return meta
		}
	}
	f, err := os.Open(path)
	if err != nil {
		return meta
	}
	defer f.Close()

	info, err := api.PDFInfo(f, path, nil, false, nil)
	if err != nil || info == nil {
		return meta
	}
	put := func(k, v string) {
		if v != "" {
			meta[k] = v
		}
	}
	put("title", info.Title)
	put("author", info.Author)
	put("creator", info.Creator)
	put("producer", info.Producer)
	if info.PageCount > 0 {
		meta["pages"] = strconv.Itoa(info.PageCount)
	}
	return meta
}
