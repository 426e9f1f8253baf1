package service

import (
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"
	"unicode/utf8"
)

// AttachmentField is one database column holding attachment URLs
type AttachmentField struct {
	Table     string `json:"table"`
	Column    string `json:"column"`
	Subfolder string `json:"subfolder"`
	IsArray   bool   `json:"is_array"`
}

// AttachmentFields lists every attachment column. Both file jobs read it.
var AttachmentFields = []AttachmentField{
	{Table: "payments", Column: "attachment", Subfolder: "payments", IsArray: true},
	{Table: "submitted_payments", Column: "attachment", Subfolder: "submitted-payments", IsArray: true},
	{Table: "seda_registrations", Column: "ic_copy_front", Subfolder: "seda"},
	{Table: "seda_registrations", Column: "ic_copy_back", Subfolder: "seda"},
	{Table: "seda_registrations", Column: "tnb_bill", Subfolder: "seda"},
	{Table: "seda_registrations", Column: "property_proof", Subfolder: "seda"},
	{Table: "seda_registrations", Column: "roof_images", Subfolder: "seda", IsArray: true},
	{Table: "seda_registrations", Column: "site_images", Subfolder: "seda", IsArray: true},
	{Table: "customers", Column: "profile_picture", Subfolder: "customers"},
	{Table: "agents", Column: "profile_picture", Subfolder: "agents"},
	{Table: "users", Column: "profile_picture", Subfolder: "users"},
	{Table: "invoice_templates", Column: "logo_url", Subfolder: "templates"},
}

// maxSanitizedBase is the length budget for the original name inside generated filenames
const maxSanitizedBase = 30

const filesRoute = "/api/files/"

func safeFilenameByte(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') ||
		c == ' ' || c == '.' || c == '_' || c == '-'
}

// SanitizeFilename percent-encodes every byte outside [A-Za-z0-9 ._-]. Unescaping the result
// gives back the original bytes.
func SanitizeFilename(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		if safeFilenameByte(c) {
			b.WriteByte(c)
			continue
		}
		fmt.Fprintf(&b, "%%%02X", c)
	}
	return b.String()
}

// truncateEscaped cuts s to at most n bytes without splitting a %XX sequence
func truncateEscaped(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	switch {
	case cut >= 1 && s[cut-1] == '%':
		cut--
	case cut >= 2 && s[cut-2] == '%':
		cut -= 2
	}
	return s[:cut]
}

// BuildAttachmentFilename returns {localID}_{sanitized base}_{unix millis}[_{index}]{ext}
func BuildAttachmentFilename(localID uint, original string, now time.Time, index int) string {
	ext := path.Ext(original)
	base := strings.TrimSuffix(original, ext)
	if base == "" {
		base = "file"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d_%s_%d", localID, truncateEscaped(SanitizeFilename(base), maxSanitizedBase), now.UnixMilli())
	if index > 0 {
		fmt.Fprintf(&b, "_%d", index)
	}
	b.WriteString(SanitizeFilename(ext))
	return b.String()
}

// LocalFileURL is the public URL of a stored attachment
func LocalFileURL(publicBase, subfolder, filename string) string {
	return strings.TrimRight(publicBase, "/") + filesRoute + subfolder + "/" + url.PathEscape(filename)
}

// normalizeScheme turns protocol-relative URLs into https ones
func normalizeScheme(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "//") {
		return "https:" + raw
	}
	return raw
}

// isLegacyURL reports whether raw is an absolute URL whose host or path names a legacy host
func isLegacyURL(raw string, legacyHosts []string) bool {
	u, err := url.Parse(normalizeScheme(raw))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return false
	}
	target := strings.ToLower(u.Host + u.Path)
	for _, h := range legacyHosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" && strings.Contains(target, h) {
			return true
		}
	}
	return false
}

// originalName is the decoded last path segment of a remote file URL
func originalName(raw string) string {
	u, err := url.Parse(normalizeScheme(raw))
	if err != nil {
		return "file"
	}
	name := path.Base(u.Path)
	if decoded, err := url.PathUnescape(name); err == nil {
		name = decoded
	}
	if name == "" || name == "." || name == "/" {
		return "file"
	}
	return name
}

// splitLocalURL returns the subfolder and decoded filename of a URL served by this application
func splitLocalURL(raw string) (prefix, subfolder, filename string, ok bool) {
	idx := strings.Index(raw, filesRoute)
	if idx < 0 {
		return "", "", "", false
	}
	rest := raw[idx+len(filesRoute):]
	slash := strings.IndexByte(rest, '/')
	if slash <= 0 || slash == len(rest)-1 {
		return "", "", "", false
	}
	escaped := rest[slash+1:]
	if strings.ContainsAny(escaped, "/?#") {
		return "", "", "", false
	}
	decoded, err := url.PathUnescape(escaped)
	if err != nil {
		return "", "", "", false
	}
	return raw[:idx+len(filesRoute)+slash+1], rest[:slash], decoded, true
}

func hasNonASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return true
		}
	}
	return false
}
