package reminder

import "strings"

// Placeholders recognized in reminder message templates.
var placeholders = []string{"name", "location", "date", "time", "shift"}

// Render substitutes {{name}}-style placeholders against the supplied
// values. Placeholders without a value, and braces that aren't a
// recognized placeholder, are left untouched.
func Render(tmpl string, values map[string]string) string {
	out := tmpl
	for _, key := range placeholders {
		if v, ok := values[key]; ok {
			out = strings.ReplaceAll(out, "{{"+key+"}}", v)
		}
	}
	return out
}
