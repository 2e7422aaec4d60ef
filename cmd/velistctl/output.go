package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/velist/velist/internal/models"
)

const timeLayout = "2006-01-02 15:04"

func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	table.SetNoWhiteSpace(true)
	return table
}

func writeUserTable(w io.Writer, users []*models.User) {
	if len(users) == 0 {
		fmt.Fprintln(w, "No users")
		return
	}

	table := newTable(w, []string{"id", "email", "name", "role", "two_factor", "created"})
	for _, u := range users {
		table.Append([]string{
			u.ID,
			u.Email,
			u.Name,
			u.Role,
			string(u.TwoFactorState()),
			u.CreatedAt.UTC().Format(timeLayout),
		})
	}
	table.Render()
}

func writeTwoFactorStatus(w io.Writer, user *models.User, status *models.TwoFactorStatus) {
	confirmed := "-"
	if status.ConfirmedAt != nil {
		confirmed = status.ConfirmedAt.UTC().Format(timeLayout)
	}

	table := newTable(w, []string{"property", "value"})
	table.AppendBulk([][]string{
		{"Email", user.Email},
		{"State", string(status.State)},
		{"Confirmed", confirmed},
		{"Backup codes left", strconv.Itoa(status.RemainingBackupCodes)},
	})
	table.Render()

	if status.State == models.TwoFactorEnabled && status.RemainingBackupCodes == 0 {
		printWarning(w, "No backup codes left; the user should regenerate them")
	}
}

func printSuccess(w io.Writer, format string, args ...any) {
	color.New(color.FgGreen).Fprintf(w, format+"\n", args...)
}

func printInfo(w io.Writer, format string, args ...any) {
	color.New(color.FgBlue).Fprintf(w, format+"\n", args...)
}

func printWarning(w io.Writer, format string, args ...any) {
	color.New(color.FgYellow).Fprintf(w, format+"\n", args...)
}

func printError(w io.Writer, format string, args ...any) {
	color.New(color.FgRed).Fprintf(w, format+"\n", args...)
}
