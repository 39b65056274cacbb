package symbol

import "strings"

var fileNameReplacer = strings.NewReplacer(
	"<", "_", ">", "_", ":", "_", `"`, "_", "/", "_",
	`\`, "_", "|", "_", "?", "_", "*", "_", " ", "_",
)

// FileName maps sym to a name safe on every filesystem:
// "NSE:NIFTY25N1824500CE" becomes "NSE_NIFTY25N1824500CE".
func FileName(sym string) string {
	return fileNameReplacer.Replace(strings.TrimSpace(sym))
}
