// Package cli implements the terminal commands for managing
// medications without the HTTP API.
package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/avelar-dev/medikit/internal/app"
	"github.com/avelar-dev/medikit/internal/medication"
)

// HandleListCommand prints all medications.
func HandleListCommand(application *app.App) {
	meds, err := application.Repo.List()
	if err != nil {
		fmt.Printf("Error listing medications: %v\n", err)
		os.Exit(1)
	}
	if len(meds) == 0 {
		fmt.Println("No medications yet. Add one with: medikit add <name>")
		return
	}

	fmt.Println("Medications:")
	fmt.Println("============")
	for _, m := range meds {
		label := m.FrequencyLabel
		if label == "" {
			label = "no schedule yet"
		}
		fmt.Printf("• %s %s - %s\n", m.Name, m.Dose, label)
		if m.NeedsReschedule() {
			fmt.Printf("  ⚠ alerts missing, run: medikit repair\n")
		}
	}
}

// HandleAddCommand creates a medication, optionally prefilled from
// the drug registry when a package code is given.
func HandleAddCommand(args []string, application *app.App) {
	if len(args) == 0 {
		fmt.Println("Usage: medikit add <name> [dose]")
		fmt.Println("       medikit add --code <barcode>")
		os.Exit(1)
	}

	med := &medication.Medication{}
	if args[0] == "--code" {
		if len(args) < 2 {
			fmt.Println("Usage: medikit add --code <barcode>")
			os.Exit(1)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		res, err := application.Lookup.LookupByCode(ctx, args[1])
		if err != nil {
			fmt.Printf("Lookup failed: %v\n", err)
			os.Exit(1)
		}
		med.Name = res.Name
		med.Dose = res.Strength
		med.Form = res.Form
		med.Route = res.Routes
		med.Lab = res.Lab
		med.ActiveIngredient = res.ActiveIngredient
		med.LeafletURL = res.LeafletURL
		med.PhotoURL = res.PhotoURL
	} else {
		med.Name = args[0]
		if len(args) > 1 {
			med.Dose = strings.Join(args[1:], " ")
		}
	}

	if err := application.Repo.Add(med); err != nil {
		fmt.Printf("Error adding medication: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Added '%s'. Set its schedule with: medikit schedule\n", med.Name)
}

// HandleTodayCommand prints today's dose review.
func HandleTodayCommand(application *app.App) {
	today := time.Now().In(application.Location).Format(medication.DateLayout)
	entries, err := application.Ledger.ListForDate(today)
	if err != nil {
		fmt.Printf("Error listing doses: %v\n", err)
		os.Exit(1)
	}
	if len(entries) == 0 {
		fmt.Println("No doses scheduled today.")
		return
	}

	fmt.Printf("Doses for %s:\n", today)
	fmt.Println("====================")
	for i, e := range entries {
		mark := " "
		switch e.Occurrence.Status {
		case medication.StatusTaken:
			mark = "✓"
		case medication.StatusSkipped:
			mark = "✗"
		}
		fmt.Printf("%2d. [%s] %s  %s %s\n", i+1, mark, e.Occurrence.Time, e.Name, e.Dose)
	}
	fmt.Println()
	fmt.Println("Mark doses with: medikit take <n> | medikit skip <n> | medikit reset <n>")
}

// HandleDoseCommand marks one of today's doses by its position in
// the today listing.
func HandleDoseCommand(args []string, status medication.DoseStatus, application *app.App) {
	verb := "reset"
	switch status {
	case medication.StatusTaken:
		verb = "take"
	case medication.StatusSkipped:
		verb = "skip"
	}
	if len(args) == 0 {
		fmt.Printf("Usage: medikit %s <dose number from 'medikit today'>\n", verb)
		os.Exit(1)
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 {
		fmt.Printf("Usage: medikit %s <dose number from 'medikit today'>\n", verb)
		os.Exit(1)
	}

	today := time.Now().In(application.Location).Format(medication.DateLayout)
	entries, err := application.Ledger.ListForDate(today)
	if err != nil {
		fmt.Printf("Error listing doses: %v\n", err)
		os.Exit(1)
	}
	if n > len(entries) {
		fmt.Printf("There are only %d doses today.\n", len(entries))
		os.Exit(1)
	}

	entry := entries[n-1]
	if _, err := application.Ledger.SetStatus(entry.MedicationID, entry.Index, status); err != nil {
		fmt.Printf("Error updating dose: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ %s at %s marked %s\n", entry.Name, entry.Occurrence.Time, status)
}

// HandleSearchCommand queries the drug registry by name or code.
func HandleSearchCommand(args []string, application *app.App) {
	if len(args) == 0 {
		fmt.Println("Usage: medikit search <name or code>")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	results, err := application.Lookup.SearchByText(ctx, strings.Join(args, " "))
	if err != nil {
		fmt.Printf("Search failed: %v\n", err)
		os.Exit(1)
	}
	if len(results) == 0 {
		fmt.Println("No matches.")
		return
	}

	for _, r := range results {
		fmt.Printf("• %s (%s) - %s, %s\n", r.Name, r.CN, r.Form, r.Lab)
	}
}

// HandleExportCommand writes a YAML backup to the given path or
// stdout.
func HandleExportCommand(args []string, application *app.App) {
	if len(args) == 0 {
		if err := application.Backup.Export(os.Stdout); err != nil {
			fmt.Printf("Export failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	f, err := os.Create(args[0])
	if err != nil {
		fmt.Printf("Cannot create %s: %v\n", args[0], err)
		os.Exit(1)
	}
	defer f.Close()
	if err := application.Backup.Export(f); err != nil {
		fmt.Printf("Export failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Exported to %s\n", args[0])
}

// HandleImportCommand restores a YAML backup.
func HandleImportCommand(args []string, application *app.App) {
	if len(args) == 0 {
		fmt.Println("Usage: medikit import <backup.yaml>")
		os.Exit(1)
	}

	f, err := os.Open(args[0])
	if err != nil {
		fmt.Printf("Cannot open %s: %v\n", args[0], err)
		os.Exit(1)
	}
	defer f.Close()

	n, err := application.Backup.Import(f)
	if err != nil {
		fmt.Printf("Import failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Imported %d medications. Alerts will re-register when the server starts.\n", n)
}

// HandleRepairCommand re-registers alerts for records that lost them.
func HandleRepairCommand(application *app.App) {
	n, err := application.Reconciler.RepairAll()
	if err != nil {
		fmt.Printf("Repair failed: %v\n", err)
		os.Exit(1)
	}
	if n == 0 {
		fmt.Println("Nothing to repair.")
		return
	}
	fmt.Printf("✓ Repaired %d medications\n", n)
}

// PrintHelp prints the command overview.
func PrintHelp() {
	fmt.Println("medikit - medication reminders")
	fmt.Println()
	fmt.Println("Usage: medikit <command> [args]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve              Run the API server and alert engine")
	fmt.Println("  list               List medications")
	fmt.Println("  add <name> [dose]  Add a medication (or: add --code <barcode>)")
	fmt.Println("  today              Show today's doses")
	fmt.Println("  take <n>           Mark dose n taken")
	fmt.Println("  skip <n>           Mark dose n skipped")
	fmt.Println("  reset <n>          Mark dose n pending again")
	fmt.Println("  search <query>     Search the drug registry")
	fmt.Println("  export [file]      Export medications as YAML")
	fmt.Println("  import <file>      Restore a YAML backup")
	fmt.Println("  repair             Re-register missing alerts")
	fmt.Println("  version            Print the version")
}
