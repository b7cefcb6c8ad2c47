package schema

import (
	"strconv"
	"strings"

	"github.com/happyhackingspace/formflat/internal/textutil"
)

// MaxSheetName is the longest sheet name a workbook accepts.
const MaxSheetName = 31

var sheetNameReplacer = strings.NewReplacer(
	"/", "_", `\`, "_", "?", "_", "*", "_", "[", "_", "]", "_", ":", "_",
)

// SheetName turns desired into a valid workbook sheet name that does not clash
// (case-insensitively) with any name in existing. Clashing names get a numeric
// suffix and the base is shortened so the result never exceeds MaxSheetName.
func SheetName(desired string, existing []string) string {
	name := textutil.Truncate(sheetNameReplacer.Replace(desired), MaxSheetName)
	if strings.TrimSpace(name) == "" {
		name = "Sheet"
	}
	if !containsFold(existing, name) {
		return name
	}
	for i := 1; ; i++ {
		suffix := strconv.Itoa(i)
		candidate := textutil.Truncate(name, MaxSheetName-len(suffix)) + suffix
		if !containsFold(existing, candidate) {
			return candidate
		}
	}
}

func containsFold(names []string, name string) bool {
	for _, n := range names {
		if strings.EqualFold(n, name) {
			return true
		}
	}
	return false
}
