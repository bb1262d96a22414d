package format

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"

	"github.com/shopspring/decimal"

	"github.com/lumera-labs/near-lockup/pkg/types"
)

// NearDecimals is the number of yoctoNEAR decimal places in one NEAR.
const NearDecimals = 24

// CSVHeader matches the columns written by WriteCSV.
var CSVHeader = []string{"owner_account_id", "account_id", "initial_lockup_amount", "current_locked_amount"}

// Human converts a yoctoNEAR integer string into a NEAR decimal string with
// trailing zeros removed, e.g. "1500000000000000000000000" -> "1.5".
func Human(yocto string) (string, error) {
	d, err := decimal.NewFromString(yocto)
	if err != nil {
		return "", fmt.Errorf("amount %q: %w", yocto, err)
	}
	if !d.IsInteger() || d.IsNegative() {
		return "", fmt.Errorf("amount %q: not a yoctoNEAR amount", yocto)
	}
	return d.Shift(-NearDecimals).String(), nil
}

// WriteCSV writes reports as CSV rows with human-readable NEAR amounts.
func WriteCSV(w io.Writer, reports []*types.LockupReport, header bool) error {
	cw := csv.NewWriter(w)
	if header {
		if err := cw.Write(CSVHeader); err != nil {
			return err
		}
	}
	for _, r := range reports {
		lockup, err := Human(r.LockupAmount)
		if err != nil {
			return err
		}
		locked, err := Human(r.LockedAmount)
		if err != nil {
			return err
		}
		if err := cw.Write([]string{r.OwnerAccountID, r.AccountID, lockup, locked}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteJSON encodes a report, indenting when pretty is set.
func WriteJSON(w io.Writer, r *types.LockupReport, pretty bool) error {
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(r)
}
