package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/vitos/lendflow/internal/infrastructure/storage"
)

func main() {
	dbPath := flag.String("db", "lendflow.db", "path to the sqlite database")
	account := flag.String("account", "", "only show records of this account")
	limit := flag.Int("limit", 50, "maximum number of records")
	flag.Parse()

	store, err := storage.NewSQLiteStore(*dbPath)
	if err != nil {
		fmt.Printf("Failed to init sqlite: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	records, err := store.ListTxRecords(context.Background(), *account, *limit)
	if err != nil {
		fmt.Printf("Failed to list tx records: %v\n", err)
		os.Exit(1)
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Time", "Chain", "Market", "Account", "Form", "Step", "Status", "Tx / Error"})
	for _, r := range records {
		detail := r.TxHash
		if r.Error != "" {
			detail = r.Error
		}
		t.AppendRow(table.Row{
			r.CreatedAt.Format("2006-01-02 15:04:05"),
			r.Chain, r.Market, r.Account, r.FormType, r.Step, r.Status, detail,
		})
	}
	t.AppendFooter(table.Row{"", "", "", "", "", "", "Total", len(records)})
	t.Render()
}
