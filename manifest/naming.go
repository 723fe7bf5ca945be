package manifest

import (
	"path/filepath"
	"strings"
)

// ToPascalCase converts a string to PascalCase.
// "my-app" -> "MyApp", "models" -> "Models", "myApp" -> "MyApp"
func ToPascalCase(s string) string {
	var words []string
	current := ""
	for i, r := range s {
		if r == '-' || r == '_' || r == '.' || r == ' ' {
			if current != "" {
				words = append(words, current)
				current = ""
			}
			continue
		}
		if i > 0 && r >= 'A' && r <= 'Z' {
			prev := rune(s[i-1])
			if prev >= 'a' && prev <= 'z' {
				words = append(words, current)
				current = ""
			}
		}
		current += string(r)
	}
	if current != "" {
		words = append(words, current)
	}

	var sb strings.Builder
	for _, w := range words {
		if w == "" {
			continue
		}
		sb.WriteString(strings.ToUpper(w[:1]) + strings.ToLower(w[1:]))
	}
	return sb.String()
}

// UnitName derives a compilation unit name from a script path relative to
// the project directory: "src/util/string-helpers.js" -> "Util_StringHelpers".
// The source directory prefix is dropped.
func (m *Manifest) UnitName(path string) string {
	rel := path
	for _, root := range m.SourceDirPaths() {
		if r, err := filepath.Rel(root, path); err == nil && !strings.HasPrefix(r, "..") {
			rel = r
			break
		}
	}
	rel = strings.TrimSuffix(rel, filepath.Ext(rel))
	var parts []string
	for _, seg := range strings.Split(filepath.ToSlash(rel), "/") {
		if p := ToPascalCase(seg); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return "Script"
	}
	return strings.Join(parts, "_")
}
