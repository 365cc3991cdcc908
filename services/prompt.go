package services

import (
	"regexp"

	"lead_engine/config"
)

var placeholderRegex = regexp.MustCompile(`\{\{([A-Za-z0-9_]+)\}\}`)

// BuildPrompt joins the system section and task body of a template and
// substitutes {{KEY}} placeholders.
func BuildPrompt(tpl config.PromptTemplate, vars map[string]string) string {
	return Substitute(tpl.System+"\n\n"+tpl.Body(), vars)
}

// Substitute replaces every {{KEY}} with vars[KEY]. Placeholders without a
// value are left as written.
func Substitute(text string, vars map[string]string) string {
	return placeholderRegex.ReplaceAllStringFunc(text, func(m string) string {
		key := placeholderRegex.FindStringSubmatch(m)[1]
		if v, ok := vars[key]; ok {
			return v
		}
		return m
	})
}
