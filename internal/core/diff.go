package core

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// FormatRecord renders a record one field per line
func FormatRecord(rec EncryptedRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "owner:              %s\n", rec.Owner)
	fmt.Fprintf(&b, "encryptedAmount:    %s\n", rec.EncryptedAmount)
	fmt.Fprintf(&b, "encryptedShares:    %s\n", rec.EncryptedShares)
	fmt.Fprintf(&b, "encryptedRewards:   %s\n", rec.EncryptedRewards)
	fmt.Fprintf(&b, "encryptedStrategy:  %s\n", rec.EncryptedStrategy)
	fmt.Fprintf(&b, "encryptedTimestamp: %s\n", rec.EncryptedTimestamp)
	fmt.Fprintf(&b, "nonce:              %s\n", rec.Nonce)
	fmt.Fprintf(&b, "encryptionKey:      %s\n", rec.EncryptionKey)
	return b.String()
}

// DiffRecords returns a unified diff from current to proposed, or an
// empty string if they are identical.
func DiffRecords(label string, current, proposed EncryptedRecord) string {
	if current == proposed {
		return ""
	}

	dmp := diffmatchpatch.New()

	currentStr, proposedStr := FormatRecord(current), FormatRecord(proposed)
	a, b, lineArray := dmp.DiffLinesToChars(currentStr, proposedStr)
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	patches := dmp.PatchMake(currentStr, diffs)
	if len(patches) == 0 {
		return ""
	}

	var result strings.Builder
	result.WriteString(fmt.Sprintf("--- stored/%s\n", label))
	result.WriteString(fmt.Sprintf("+++ proposed/%s\n", label))
	result.WriteString(dmp.PatchToText(patches))
	return result.String()
}
