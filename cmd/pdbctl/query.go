package main

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/faciam-dev/gpdb/pkg/fielddef"
	"github.com/faciam-dev/gpdb/pkg/listquery"
	"github.com/faciam-dev/gpdb/pkg/settings"
	"github.com/faciam-dev/gpdb/pkg/util"
)

func newQueryCmd() *cobra.Command {
	var f envFlags
	var list, filterExpr, orderBy, order, params string
	var searches []string
	var sortFlag string
	var count bool
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Print the SQL a list would run",
		RunE: func(cmd *cobra.Command, args []string) error {
			src, cfg, err := f.source()
			if err != nil {
				return err
			}
			defer src.DB.Close()
			get, err := url.ParseQuery(params)
			if err != nil {
				return fmt.Errorf("--params: %w", err)
			}
			for _, sv := range searches {
				parts := strings.SplitN(sv, ":", 3)
				if len(parts) != 3 {
					return fmt.Errorf("--search %q: want field:operator:value", sv)
				}
				get.Add("search_field[]", parts[0])
				get.Add("operator[]", parts[1])
				get.Add("value[]", parts[2])
				get.Add("logic[]", "AND")
			}
			if sortFlag != "" {
				field, dir, _ := strings.Cut(sortFlag, ":")
				get.Set("sortBy", field)
				if dir != "" {
					get.Set("ascdesc", dir)
				}
			}
			lc := cfg.List(list)
			if filterExpr != "" {
				lc.Filter = filterExpr
			}
			if orderBy != "" {
				lc.OrderBy = orderBy
			}
			if order != "" {
				lc.Order = order
			}
			ctx := cmd.Context()
			q := listquery.New(ctx, listquery.Deps{
				DB:          src.DB,
				Registry:    fielddef.NewRegistry(src, nil),
				Settings:    settings.Map{},
				Dialect:     util.DialectFromDriver(cfg.Driver),
				TablePrefix: cfg.TablePrefix,
			}, lc)
			if err := q.MergeFilters(ctx, lc.Filter, get, nil); err != nil {
				return err
			}
			render := q.SelectSQL
			if count {
				render = q.CountSQL
			}
			s, qargs, err := render(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), s)
			if len(qargs) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "-- args: %v\n", qargs)
			}
			return nil
		},
	}
	f.AddFlags(cmd)
	cmd.Flags().StringVar(&list, "list", "default", "list name from the configuration")
	cmd.Flags().StringVar(&filterExpr, "filter", "", "filter expression, e.g. last_name=Smith&city~York")
	cmd.Flags().StringVar(&orderBy, "orderby", "", "comma separated sort fields")
	cmd.Flags().StringVar(&order, "order", "", "comma separated sort directions")
	cmd.Flags().StringVar(&params, "params", "", "request query string, e.g. search_field=city&operator=LIKE&value=York")
	cmd.Flags().StringArrayVar(&searches, "search", nil, "search clause field:operator:value (repeatable)")
	cmd.Flags().StringVar(&sortFlag, "sort", "", "user sort field[:asc|desc]")
	cmd.Flags().BoolVar(&count, "count", false, "print the count query instead")
	return cmd
}
