package export

import (
	"github.com/warp/npl-provision/feed"
	"github.com/warp/npl-provision/provision"
)

// WriteProvisionsParquet writes the account provision table in the layout
// feed.ReadProvisionsParquet reads as the next period's opening balances.
func WriteProvisionsParquet(path string, provs []provision.AccountProvision) error {
	rows := make([]feed.ProvisionRow, 0, len(provs))
	for _, p := range provs {
		rows = append(rows, feed.NewProvisionRow(p))
	}
	return feed.WriteParquet(path, rows)
}
