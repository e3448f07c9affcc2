package admin

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"outbreak/internal/registration/models"
)

// RegistrationFee is the amount reported per team in exports.
const RegistrationFee = 1400

var exportHeader = []string{
	"Team Name", "Leader Name", "Leader RegNo", "Leader Email", "Leader Phone",
	"Members Count", "Transaction ID", "Amount",
}

// ExportFilename names the CSV download for the given day (UTC).
func ExportFilename(now time.Time) string {
	return "outbreak26_registrations_" + now.UTC().Format(time.DateOnly) + ".csv"
}

// WriteCSV writes one row per registration. Members Count includes the leader.
func WriteCSV(w io.Writer, regs []*models.Registration) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return err
	}
	for _, reg := range regs {
		row := []string{
			reg.TeamName,
			reg.TeamLeader.Name,
			reg.TeamLeader.RegNo,
			reg.TeamLeader.Email,
			reg.TeamLeader.Phone,
			strconv.Itoa(len(reg.Members) + 1),
			reg.Payment.TransactionID,
			strconv.Itoa(RegistrationFee),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
