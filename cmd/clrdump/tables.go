package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jtang613/goclr/pkg/clr/tables"
)

func (a *app) tablesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tables FILE",
		Short: "List the present tables",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.open(args[0])
			if err != nil {
				return err
			}
			summaries := m.TableSummaries()
			w := cmd.OutOrStdout()
			if !a.textOutput() {
				return a.printJSON(w, summaries)
			}
			t := &table{headers: []string{"INDEX", "TABLE", "ROWS", "ROW SIZE", "SORTED", "BIG"}}
			for _, s := range summaries {
				t.add(fmt.Sprintf("0x%02X", s.Index), s.Name, strconv.Itoa(s.Rows),
					strconv.Itoa(s.RowSize), yesNo(s.Sorted), yesNo(s.Big))
			}
			t.render(w)
			return nil
		},
	}
}

func (a *app) rowsCmd() *cobra.Command {
	var tableName string
	cmd := &cobra.Command{
		Use:   "rows FILE",
		Short: "Dump the rows of one table",
		Long:  "Dump the rows of one table. Tokens are printed in hex and heap references are resolved.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := lookupTable(tableName)
			if err != nil {
				return err
			}
			m, err := a.open(args[0])
			if err != nil {
				return err
			}
			rows, err := m.Rows(idx)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if !a.textOutput() {
				return a.printJSON(w, rows)
			}
			for _, r := range rows {
				cells := make([]string, len(r.Cells))
				for i, c := range r.Cells {
					cells[i] = fmt.Sprintf("%s=%v", c.Name, c.Value)
				}
				fmt.Fprintf(w, "%s %s\n", r.Token, strings.Join(cells, " "))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&tableName, "table", "t", "", "table name, e.g. TypeDef")
	_ = cmd.MarkFlagRequired("table")
	return cmd
}

type filterResult struct {
	Table   string   `json:"table"`
	Owner   string   `json:"owner"`
	Indexes []int    `json:"indexes"`
	Tokens  []string `json:"tokens"`
}

func (a *app) filterCmd() *cobra.Command {
	var tableName, token string
	cmd := &cobra.Command{
		Use:   "filter FILE",
		Short: "List the rows of a sorted table owned by a token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := lookupTable(tableName)
			if err != nil {
				return err
			}
			owner, err := strconv.ParseUint(token, 0, 32)
			if err != nil {
				return fmt.Errorf("invalid token %q: %w", token, err)
			}
			m, err := a.open(args[0])
			if err != nil {
				return err
			}
			tok := tables.Token(owner)
			indexes, err := m.Filter(idx, tok)
			if err != nil {
				return err
			}
			res := filterResult{Table: idx.String(), Owner: tok.String(), Indexes: indexes, Tokens: []string{}}
			if res.Indexes == nil {
				res.Indexes = []int{}
			}
			for _, i := range indexes {
				res.Tokens = append(res.Tokens, tables.MakeToken(idx, uint32(i+1)).String())
			}
			w := cmd.OutOrStdout()
			if !a.textOutput() {
				return a.printJSON(w, res)
			}
			fmt.Fprintf(w, "%s rows owned by %s: %s\n", res.Table, res.Owner, strings.Join(res.Tokens, " "))
			return nil
		},
	}
	cmd.Flags().StringVarP(&tableName, "table", "t", "", "sorted table name, e.g. CustomAttribute")
	cmd.Flags().StringVar(&token, "token", "", "owner token, e.g. 0x02000002")
	_ = cmd.MarkFlagRequired("table")
	_ = cmd.MarkFlagRequired("token")
	return cmd
}

func lookupTable(name string) (tables.Index, error) {
	idx, ok := tables.ByName(name)
	if !ok {
		return 0, fmt.Errorf("unknown table %q", name)
	}
	return idx, nil
}
