package services

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var textPolicy = bluemonday.StrictPolicy()

// sanitizeText strips markup from free-form user input such as notes and
// descriptions before it is persisted or echoed back.
func sanitizeText(s string) string {
	return strings.TrimSpace(textPolicy.Sanitize(s))
}
