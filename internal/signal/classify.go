// Package signal flags recovered strings and called functions that point at
// behavior worth a reviewer's attention: startup-file persistence, registry
// and shell access, COM automation, runtime code loading.
package signal

import (
	"math"
	"regexp"
	"strings"
)

// Categories for signal classification.
const (
	CatURL      = "url"
	CatHost     = "host"
	CatPersist  = "persist"  // acad.lsp, acaddoc.lsp, s::startup
	CatRegistry = "registry" // HKEY_*, vl-registry-*
	CatShell    = "shell"    // startapp, cmd.exe, WScript.Shell
	CatFile     = "file"     // file copy, delete, write
	CatCOM      = "com"      // vlax-create-object and ActiveX progids
	CatEval     = "eval"     // load, eval, read of computed text
	CatReactor  = "reactor"  // vlr-* callbacks
	CatHidden   = "hidden"   // attribute or visibility tampering
	CatBase64   = "base64"
	CatExt      = "ext" // references to .lsp .fas .vlx .dll .exe files
)

var (
	reURL       = regexp.MustCompile(`(?i)(https?|ftp)://`)
	reIPLiteral = regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)
	reBase64    = regexp.MustCompile(`^[A-Za-z0-9+/=]{24,}$`)
	reRegistry  = regexp.MustCompile(`(?i)\b(HKEY_[A-Z_]+|HKLM|HKCU)\b`)
	reExt       = regexp.MustCompile(`(?i)\.(lsp|fas|vlx|mnl|scr|dll|exe|vbs|js|bat|cmd)\b`)

	// Files AutoCAD loads on its own at startup or drawing open.
	persistKeywords = []string{
		"acad.lsp", "acaddoc.lsp", "acad.fas", "acaddoc.fas",
		"acad.vlx", "acaddoc.vlx", "acad.mnl", "acadapq.lsp",
		"s::startup",
	}

	shellKeywords = []string{
		"cmd.exe", "command.com", "wscript.shell", "shell.application",
		"powershell", "rundll32", "regsvr32", "attrib ",
	}

	comKeywords = []string{
		"scripting.filesystemobject", "adodb.stream", "msxml2.xmlhttp",
		"microsoft.xmlhttp", "winhttp.winhttprequest",
	}

	// Builtins by category. Names are compared case-insensitively.
	callCategories = map[string]string{
		"vl-registry-write":         CatRegistry,
		"vl-registry-read":          CatRegistry,
		"vl-registry-delete":        CatRegistry,
		"vl-registry-descendents":   CatRegistry,
		"setenv":                    CatRegistry,
		"startapp":                  CatShell,
		"vlax-create-object":        CatCOM,
		"vlax-get-object":           CatCOM,
		"vlax-get-or-create-object": CatCOM,
		"vlax-invoke-method":        CatCOM,
		"vl-file-copy":              CatFile,
		"vl-file-delete":            CatFile,
		"vl-file-rename":            CatFile,
		"vl-mkdir":                  CatFile,
		"write-line":                CatFile,
		"write-char":                CatFile,
		"load":                      CatEval,
		"eval":                      CatEval,
		"read":                      CatEval,
		"vl-load-all":               CatEval,
		"arxload":                   CatEval,
		"vl-vbaload":                CatEval,
		"vl-acad-defun":             CatEval,
		"s::startup":                CatPersist,
		"acet-file-attr":            CatHidden,
		"vla-put-visible":           CatHidden,
	}
)

// ClassifyString returns the signal categories of a string value, or nil.
func ClassifyString(value string) []string {
	if len(value) < 3 {
		return nil
	}
	var cats []string
	lower := strings.ToLower(value)

	if reURL.MatchString(value) {
		cats = append(cats, CatURL)
	}
	if reIPLiteral.MatchString(value) {
		cats = append(cats, CatHost)
	}
	if containsKeyword(lower, persistKeywords) {
		cats = append(cats, CatPersist)
	}
	if reRegistry.MatchString(value) {
		cats = append(cats, CatRegistry)
	}
	if containsKeyword(lower, shellKeywords) {
		cats = append(cats, CatShell)
	}
	if containsKeyword(lower, comKeywords) {
		cats = append(cats, CatCOM)
	}
	if !containsCat(cats, CatPersist) && reExt.MatchString(value) {
		cats = append(cats, CatExt)
	}
	// Long runs with no spaces and high entropy look like encoded payloads.
	if reBase64.MatchString(value) && entropy(value) > 4.0 {
		cats = append(cats, CatBase64)
	}
	return cats
}

// ClassifyCall returns the categories of a call to the named function.
func ClassifyCall(name string) []string {
	lower := strings.ToLower(name)
	if c, ok := callCategories[lower]; ok {
		return []string{c}
	}
	if strings.HasPrefix(lower, "vlr-") {
		return []string{CatReactor}
	}
	return nil
}

// Severity levels for signal categories.
const (
	SeverityHigh   = "high"
	SeverityMedium = "medium"
	SeverityLow    = "low"
)

// CategorySeverity returns the severity level for a category.
func CategorySeverity(cat string) string {
	switch cat {
	case CatPersist, CatRegistry, CatShell, CatHidden:
		return SeverityHigh
	case CatURL, CatHost, CatCOM, CatEval, CatBase64, CatFile:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// MaxSeverity returns the highest severity from a list of categories.
func MaxSeverity(categories []string) string {
	best := ""
	for _, c := range categories {
		s := CategorySeverity(c)
		if s == SeverityHigh {
			return SeverityHigh
		}
		if s == SeverityMedium {
			best = SeverityMedium
		} else if best == "" {
			best = SeverityLow
		}
	}
	if best == "" {
		return SeverityLow
	}
	return best
}

func containsKeyword(lower string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func containsCat(cats []string, cat string) bool {
	for _, c := range cats {
		if c == cat {
			return true
		}
	}
	return false
}

// entropy computes Shannon entropy of a string in bits per character.
func entropy(s string) float64 {
	if len(s) == 0 {
		return 0
	}
	var freq [256]int
	for i := 0; i < len(s); i++ {
		freq[s[i]]++
	}
	n := float64(len(s))
	var ent float64
	for _, count := range freq {
		if count == 0 {
			continue
		}
		p := float64(count) / n
		ent -= p * math.Log2(p)
	}
	return ent
}
