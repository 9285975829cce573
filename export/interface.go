/*
interface.go - Fixed-width bureau interface record

PURPOSE:
  Serializes per-account provisions for the downstream credit bureau
  interface. Every record is exactly 53 bytes followed by "\n"; there is
  no header or trailer.

LAYOUT (1-indexed):
  @01  10  account number      left-justified, space-padded
  @11   5  note number         zero-padded
  @16   5  branch              zero-padded
  @21  20  cap amount          2 decimals, right-justified
  @41  13  external reference  left-justified, space-padded

  A field that does not fit its width, or a missing account number, is a
  data anomaly. WriteInterface checks every record before writing any, so a
  bad record never leaves a truncated file behind.

SEE ALSO:
  - provision/types.go: AccountProvision
  - csv.go: The human-readable tables
*/
package export

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/warp/npl-provision/provision"
)

// Field widths of the interface record.
const (
	AccountWidth = 10
	NoteWidth    = 5
	BranchWidth  = 5
	CapWidth     = 20
	RefWidth     = 13

	RecordWidth = AccountWidth + NoteWidth + BranchWidth + CapWidth + RefWidth
)

const interfaceStage = "interface"

// FormatRecord renders one interface record without the trailing newline.
func FormatRecord(p provision.AccountProvision) (string, error) {
	key := p.Key()
	switch {
	case p.AccountNo == "":
		return "", provision.NewDataAnomaly(interfaceStage, "record without account number")
	case len(p.AccountNo) > AccountWidth:
		return "", provision.NewDataAnomaly(interfaceStage, "%s: account number longer than %d", key, AccountWidth)
	case p.NoteNo < 0 || p.NoteNo > 99999:
		return "", provision.NewDataAnomaly(interfaceStage, "%s: note number %d does not fit %d digits", key, p.NoteNo, NoteWidth)
	case p.Branch < 0 || p.Branch > 99999:
		return "", provision.NewDataAnomaly(interfaceStage, "%s: branch %d does not fit %d digits", key, p.Branch, BranchWidth)
	case len(p.ExternalRef) > RefWidth:
		return "", provision.NewDataAnomaly(interfaceStage, "%s: external reference longer than %d", key, RefWidth)
	}

	capText := p.Cap.StringFixed(2)
	if len(capText) > CapWidth {
		return "", provision.NewDataAnomaly(interfaceStage, "%s: cap %s wider than %d", key, capText, CapWidth)
	}

	var b strings.Builder
	b.Grow(RecordWidth)
	fmt.Fprintf(&b, "%-*s", AccountWidth, p.AccountNo)
	fmt.Fprintf(&b, "%0*d", NoteWidth, p.NoteNo)
	fmt.Fprintf(&b, "%0*d", BranchWidth, p.Branch)
	fmt.Fprintf(&b, "%*s", CapWidth, capText)
	fmt.Fprintf(&b, "%-*s", RefWidth, p.ExternalRef)
	return b.String(), nil
}

// WriteInterface writes one record per provision and returns the count.
func WriteInterface(w io.Writer, provs []provision.AccountProvision) (int, error) {
	lines := make([]string, 0, len(provs))
	for _, p := range provs {
		line, err := FormatRecord(p)
		if err != nil {
			return 0, err
		}
		lines = append(lines, line)
	}

	bw := bufio.NewWriter(w)
	for _, line := range lines {
		if _, err := bw.WriteString(line + "\n"); err != nil {
			return 0, err
		}
	}
	if err := bw.Flush(); err != nil {
		return 0, err
	}
	return len(lines), nil
}
