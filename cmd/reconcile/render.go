package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/ManuelReschke/enrollbilling/internal/pkg/billing"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatCents(cents int64) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}

func renderOrphanReport(w io.Writer, report *billing.OrphanReport, asJSON bool) error {
	if asJSON {
		return writeJSON(w, report)
	}

	source := "fresh"
	if report.Cached {
		source = "cached"
	}
	fmt.Fprintf(w, "Orphan report %s (%s, generated %s)\n", report.ID, source, report.GeneratedAt.Format("2006-01-02 15:04"))
	if len(report.Subscriptions) == 0 {
		fmt.Fprintln(w, "No orphaned subscriptions.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PROGRAM\tSUBSCRIPTION\tSTATUS\tCUSTOMER\tEMAIL\tAMOUNT\tSUBS")
	for _, o := range report.Subscriptions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%d\n",
			o.Program, o.ID, o.Status, o.CustomerName, o.CustomerEmail, formatCents(o.Amount), o.SubscriptionCount)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "%d orphaned subscription(s)\n", len(report.Subscriptions))
	return nil
}

func renderMatches(w io.Writer, matches []billing.PotentialMatch, asJSON bool) error {
	if asJSON {
		return writeJSON(w, matches)
	}
	if len(matches) == 0 {
		fmt.Fprintln(w, "No matching profiles.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PROFILE\tNAME\tEMAIL\tPHONE\tSTATUS\tLINKED")
	for _, m := range matches {
		linked := "no"
		if m.HasSubscription {
			linked = "yes"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", m.ID, m.Name, m.Email, m.Phone, m.Status, linked)
	}
	return tw.Flush()
}
