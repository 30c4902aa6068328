package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jchantrell/tmodpack/internal/database"
)

var queryCmd = &cobra.Command{
	Use:   "query [sql]",
	Short: "Query the catalog database directly from command line",
	Long: `Query allows you to execute SQL queries against the archive catalog,
list available tables, or show table schemas.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		listTables, err := cmd.Flags().GetBool("tables")
		if err != nil {
			return fmt.Errorf("failed to get tables flag: %w", err)
		}
		schemaTable, err := cmd.Flags().GetString("schema")
		if err != nil {
			return fmt.Errorf("failed to get schema flag: %w", err)
		}

		slog.Debug("Query parameters",
			"catalog", cfg.Catalog,
			"list-tables", listTables,
			"schema", schemaTable)

		db, err := database.OpenCatalog(ctx, cfg.Catalog)
		if err != nil {
			return err
		}
		defer db.Close()

		if listTables {
			tables, err := db.ListTables(ctx)
			if err != nil {
				return err
			}
			fmt.Println("Available tables:")
			for _, t := range tables {
				fmt.Printf("  %s\n", t)
			}
			return nil
		}

		if schemaTable != "" {
			columns, err := db.TableInfo(ctx, schemaTable)
			if err != nil {
				return err
			}

			fmt.Printf("Schema for table '%s':\n", schemaTable)
			fmt.Printf("%-20s %-15s %-10s %-10s %-10s\n", "Column", "Type", "NotNull", "Default", "Primary")
			fmt.Println(strings.Repeat("-", 70))
			for _, c := range columns {
				def := "NULL"
				if c.Default != nil {
					def = fmt.Sprintf("%v", c.Default)
				}
				fmt.Printf("%-20s %-15s %-10s %-10s %-10s\n", c.Name, c.Type, yesNo(c.NotNull), def, yesNo(c.PrimaryKey))
			}
			return nil
		}

		if len(args) == 0 {
			return fmt.Errorf("no query provided, use --tables to list tables or --schema <table> to show schema")
		}
		return runQuery(ctx, db, args[0])
	},
}

func runQuery(ctx context.Context, db *database.Database, query string) error {
	slog.Debug("Executing SQL query", "query", query)

	rows, err := db.Query(ctx, query)
	if err != nil {
		return fmt.Errorf("executing query: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("getting column names: %w", err)
	}

	fmt.Println(strings.Join(columns, "\t"))
	sep := make([]string, len(columns))
	for i, col := range columns {
		sep[i] = strings.Repeat("-", len(col))
	}
	fmt.Println(strings.Join(sep, "\t"))

	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	cells := make([]string, len(columns))
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return fmt.Errorf("scanning row: %w", err)
		}
		for i, v := range values {
			switch v := v.(type) {
			case nil:
				cells[i] = "NULL"
			case []byte:
				cells[i] = string(v)
			default:
				cells[i] = fmt.Sprint(v)
			}
		}
		fmt.Println(strings.Join(cells, "\t"))
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating rows: %w", err)
	}
	return nil
}

func yesNo(b bool) string {
	if b {
		return "YES"
	}
	return "NO"
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().Bool("tables", false, "list available tables")
	queryCmd.Flags().String("schema", "", "show schema for the given table")
}
