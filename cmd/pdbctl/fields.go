package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/pmezard/go-difflib/difflib"
	"github.com/spf13/cobra"

	"github.com/faciam-dev/gpdb/pkg/fielddef"
)

var exitFunc = os.Exit

func newFieldsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "fields", Short: "Manage field definitions"}
	cmd.AddCommand(newFieldsListCmd())
	cmd.AddCommand(newFieldsExportCmd())
	cmd.AddCommand(newFieldsApplyCmd())
	cmd.AddCommand(newFieldsDiffCmd())
	return cmd
}

func newFieldsListCmd() *cobra.Command {
	var f envFlags
	var group, output string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List field definitions",
		RunE: func(cmd *cobra.Command, args []string) error {
			src, _, err := f.source()
			if err != nil {
				return err
			}
			defer src.DB.Close()
			defs, err := src.LoadFields(cmd.Context())
			if err != nil {
				return err
			}
			if group != "" {
				kept := defs[:0]
				for _, d := range defs {
					if d.Group == group {
						kept = append(kept, d)
					}
				}
				defs = kept
			}
			return printFields(cmd.OutOrStdout(), output, defs)
		},
	}
	f.AddFlags(cmd)
	cmd.Flags().StringVar(&group, "group", "", "only fields of this group")
	cmd.Flags().StringVar(&output, "output", "table", "output format (table|json)")
	return cmd
}

func printFields(w io.Writer, format string, defs []*fielddef.Definition) error {
	if format == "json" {
		b, err := json.MarshalIndent(defs, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(b))
		return nil
	}
	tw := tablewriter.NewWriter(w)
	tw.SetHeader([]string{"Name", "Title", "Type", "Group", "Order", "Sortable", "Signup"})
	for _, d := range defs {
		tw.Append([]string{d.Name, d.Title, string(d.Type), d.Group, fmt.Sprint(d.Order), fmt.Sprint(d.Sortable), fmt.Sprint(d.Signup)})
	}
	tw.Render()
	return nil
}

func newFieldsExportCmd() *cobra.Command {
	var f envFlags
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write field definitions as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			src, _, err := f.source()
			if err != nil {
				return err
			}
			defer src.DB.Close()
			data, err := exportYAML(cmd, src)
			if err != nil {
				return err
			}
			if out == "" || out == "-" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			return os.WriteFile(out, data, 0o644)
		},
	}
	f.AddFlags(cmd)
	cmd.Flags().StringVar(&out, "file", "", "output file (default stdout)")
	return cmd
}

func exportYAML(cmd *cobra.Command, src *fielddef.SQLSource) ([]byte, error) {
	groups, err := src.LoadGroups(cmd.Context())
	if err != nil {
		return nil, err
	}
	defs, err := src.LoadFields(cmd.Context())
	if err != nil {
		return nil, err
	}
	return fielddef.EncodeYAML(groups, defs)
}

func readSchema(file string) (*fielddef.File, error) {
	if file == "" {
		return nil, errors.New("--file is required")
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	return fielddef.DecodeYAML(data)
}

func newFieldsApplyCmd() *cobra.Command {
	var f envFlags
	var file string
	var dryRun, prune bool
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply a YAML schema to the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, err := readSchema(file)
			if err != nil {
				return err
			}
			src, _, err := f.source()
			if err != nil {
				return err
			}
			defer src.DB.Close()
			ctx := cmd.Context()
			current, err := src.LoadFields(ctx)
			if err != nil {
				return err
			}
			changes := fielddef.Diff(current, schema.Fields)
			var added, deleted, updated int
			for _, c := range changes {
				switch c.Type {
				case fielddef.ChangeAdded:
					added++
				case fielddef.ChangeDeleted:
					if prune {
						deleted++
					}
				case fielddef.ChangeUpdated:
					updated++
				}
			}
			if dryRun {
				var b bytes.Buffer
				writeChanges(&b, changes)
				fmt.Fprint(cmd.OutOrStdout(), b.String())
				fmt.Fprintf(cmd.OutOrStdout(), "+%d/-%d/±%d (dry run)\n", added, deleted, updated)
				return nil
			}
			for _, c := range changes {
				if !c.ColumnChanged() {
					continue
				}
				switch c.Type {
				case fielddef.ChangeAdded:
					err = src.AddColumn(ctx, c.New)
				case fielddef.ChangeUpdated:
					if c.New.StoresData() {
						err = src.ModifyColumn(ctx, c.New)
					}
				case fielddef.ChangeDeleted:
					if prune {
						err = src.DropColumn(ctx, c.Old.Name)
					}
				}
				if err != nil {
					return err
				}
			}
			if err := src.SaveGroups(ctx, schema.Groups); err != nil {
				return err
			}
			if err := src.SaveFields(ctx, schema.Fields); err != nil {
				return err
			}
			if prune {
				for _, c := range changes {
					if c.Type == fielddef.ChangeDeleted {
						if err := src.DeleteField(ctx, c.Old.Name); err != nil {
							return err
						}
					}
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "+%d/-%d/±%d updated\n", added, deleted, updated)
			return nil
		},
	}
	f.AddFlags(cmd)
	cmd.Flags().StringVar(&file, "file", "fields.yaml", "schema file")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show changes without applying")
	cmd.Flags().BoolVar(&prune, "prune", false, "delete fields missing from the file")
	return cmd
}

func newFieldsDiffCmd() *cobra.Command {
	var f envFlags
	var file, format string
	var fail bool
	cmd := &cobra.Command{
		Use:   "diff",
		Short: "Show drift between a YAML schema and the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "text" && format != "unified" {
				return errors.New("--format must be text or unified")
			}
			schema, err := readSchema(file)
			if err != nil {
				return err
			}
			src, _, err := f.source()
			if err != nil {
				return err
			}
			defer src.DB.Close()
			current, err := src.LoadFields(cmd.Context())
			if err != nil {
				return err
			}
			changes := fielddef.Diff(current, schema.Fields)
			drift := false
			for _, c := range changes {
				if c.Type != fielddef.ChangeUnchanged {
					drift = true
					break
				}
			}
			if !drift {
				fmt.Fprintln(cmd.OutOrStdout(), "No schema drift detected.")
				return nil
			}
			var b bytes.Buffer
			if format == "unified" {
				if err := writeUnified(&b, current, schema.Fields, file); err != nil {
					return err
				}
			} else {
				writeChanges(&b, changes)
			}
			fmt.Fprint(cmd.OutOrStdout(), b.String())
			if fail {
				exitFunc(2)
			}
			return nil
		},
	}
	f.AddFlags(cmd)
	cmd.Flags().StringVar(&file, "file", "fields.yaml", "schema file")
	cmd.Flags().StringVar(&format, "format", "text", "output format (text|unified)")
	cmd.Flags().BoolVar(&fail, "fail-on-change", false, "exit 2 if drift detected")
	return cmd
}

func writeChanges(buf *bytes.Buffer, changes []fielddef.Change) {
	for _, c := range changes {
		switch c.Type {
		case fielddef.ChangeAdded:
			fmt.Fprintf(buf, "+ %s (%s)\n", c.New.Name, c.New.Type)
		case fielddef.ChangeDeleted:
			fmt.Fprintf(buf, "- %s (%s)\n", c.Old.Name, c.Old.Type)
		case fielddef.ChangeUpdated:
			fmt.Fprintf(buf, "± %s %s\n", c.New.Name, updatedDetail(c.Old, c.New))
		}
	}
}

func updatedDetail(old, new *fielddef.Definition) string {
	var parts []string
	if old.Type != new.Type {
		parts = append(parts, fmt.Sprintf("type: %s → %s", old.Type, new.Type))
	}
	if old.Group != new.Group {
		parts = append(parts, fmt.Sprintf("group: %s → %s", old.Group, new.Group))
	}
	if old.Validation != new.Validation {
		parts = append(parts, fmt.Sprintf("validation: %s → %s", orNone(old.Validation), orNone(new.Validation)))
	}
	if old.Default != new.Default {
		parts = append(parts, fmt.Sprintf("default: %s → %s", orNone(old.Default), orNone(new.Default)))
	}
	if len(parts) == 0 {
		return "(attributes)"
	}
	return strings.Join(parts, ", ")
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

func writeUnified(buf *bytes.Buffer, current, next []*fielddef.Definition, file string) error {
	a, err := fielddef.EncodeYAML(nil, stored(current))
	if err != nil {
		return err
	}
	b, err := fielddef.EncodeYAML(nil, stored(next))
	if err != nil {
		return err
	}
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(a)),
		B:        difflib.SplitLines(string(b)),
		FromFile: "database",
		ToFile:   file,
		Context:  3,
	})
	if err != nil {
		return err
	}
	buf.WriteString(diff)
	return nil
}

func stored(defs []*fielddef.Definition) []*fielddef.Definition {
	out := make([]*fielddef.Definition, 0, len(defs))
	for _, d := range defs {
		if !d.IsInternal() {
			out = append(out, d)
		}
	}
	return out
}
