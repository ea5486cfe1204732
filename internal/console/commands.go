package console

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"text/tabwriter"

	"bilancio/internal/core"
	"bilancio/internal/store"
	"bilancio/internal/validation"

	"github.com/shopspring/decimal"
)

func init() {
	register(command{name: "list", args: "[-category C] [-limit N]", summary: "show transactions, newest first", run: (*Console).list})
	register(command{name: "add", args: "-d DESC -a AMOUNT -c CAT [-date D]", summary: "record a transaction", run: (*Console).add})
	register(command{name: "edit", args: "<id> [field flags]", summary: "change a transaction", run: (*Console).edit})
	register(command{name: "delete", args: "<id>", summary: "remove a transaction", run: (*Console).delete})
	register(command{name: "stats", summary: "show the dashboard", run: (*Console).stats})
	register(command{name: "settings", args: "[-budget N|-clear-budget] [-rate CODE=R]", summary: "show or change settings", run: (*Console).settings})
	register(command{name: "export", args: "[-o FILE]", summary: "write transactions and settings as JSON", run: (*Console).export})
	register(command{name: "import", args: "[FILE|-]", summary: "replace everything with a JSON export", run: (*Console).importDoc})
	register(command{name: "flush", summary: "retry saving unsaved changes", run: (*Console).flush})
	register(command{name: "shell", summary: "read commands interactively", run: (*Console).shell})
}

func (c *Console) list(_ context.Context, args []string) error {
	fs := c.flagSet("list")
	category := fs.String("category", "", "only show this category")
	limit := fs.Int("limit", 0, "show at most N transactions (0 = all)")
	if err := parse(fs, args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return usagef("list: unexpected arguments %v", fs.Args())
	}
	if *limit < 0 {
		return usagef("list: -limit must not be negative")
	}

	txns := c.ctrl.Transactions()
	if *category != "" {
		txns = slices.DeleteFunc(txns, func(t core.Transaction) bool {
			return !strings.EqualFold(t.Category.String(), *category)
		})
	}
	if *limit > 0 && len(txns) > *limit {
		txns = txns[:*limit]
	}
	if len(txns) == 0 {
		fmt.Fprintln(c.out, "No transactions.")
		return nil
	}

	tw := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tDESCRIPTION\tCATEGORY\tAMOUNT")
	for _, t := range txns {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", t.ID, t.Date, t.Description, t.Category, core.FormatAmount(t.Amount))
	}
	return tw.Flush()
}

// fieldFlags binds one flag per transaction field, with a short alias.
func fieldFlags(fs *flag.FlagSet, in *core.TransactionInput) {
	fs.StringVar(&in.Description, "description", in.Description, "what the transaction was")
	fs.StringVar(&in.Description, "d", in.Description, "alias for -description")
	fs.StringVar(&in.Amount, "amount", in.Amount, "signed amount; negative for expenses")
	fs.StringVar(&in.Amount, "a", in.Amount, "alias for -amount")
	fs.StringVar(&in.Category, "category", in.Category, "one of the configured categories")
	fs.StringVar(&in.Category, "c", in.Category, "alias for -category")
	fs.StringVar(&in.Date, "date", in.Date, "YYYY-MM-DD")
}

func (c *Console) add(ctx context.Context, args []string) error {
	in := core.TransactionInput{Date: c.ctrl.Today().String()}
	fs := c.flagSet("add")
	fieldFlags(fs, &in)
	if err := parse(fs, args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return usagef("add: unexpected arguments %v", fs.Args())
	}

	c.ctrl.BeginAdd()
	return c.submit(ctx, in, "Added")
}

func (c *Console) edit(ctx context.Context, args []string) error {
	var in core.TransactionInput
	fs := c.flagSet("edit")
	fieldFlags(fs, &in)

	// The flags are bound before the record is known, so parse first and
	// fill in the untouched fields afterwards.
	id, err := splitID(fs, args)
	if err != nil {
		return err
	}
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if len(set) == 0 {
		return usagef("edit: nothing to change; pass at least one field flag")
	}

	existing, ok := c.ctrl.BeginEdit(core.TransactionID(id))
	if !ok {
		fmt.Fprintf(c.errOut, "transaction %s not found\n", id)
		return errReported
	}
	prev := existing.Input()
	if !set["description"] && !set["d"] {
		in.Description = prev.Description
	}
	if !set["amount"] && !set["a"] {
		in.Amount = prev.Amount
	}
	if !set["category"] && !set["c"] {
		in.Category = prev.Category
	}
	if !set["date"] {
		in.Date = prev.Date
	}
	return c.submit(ctx, in, "Updated")
}

func (c *Console) submit(ctx context.Context, in core.TransactionInput, verb string) error {
	t, errs, err := c.ctrl.Submit(ctx, in)
	if errs.HasErrors() {
		c.printFieldErrors(errs)
		return errReported
	}
	if errors.Is(err, core.ErrNotFound) {
		fmt.Fprintln(c.errOut, "the transaction being edited no longer exists")
		return errReported
	}
	if t.ID != "" {
		fmt.Fprintf(c.out, "%s %s\n", verb, t.ID)
	}
	return err
}

func (c *Console) printFieldErrors(errs validation.Errors) {
	for _, f := range errs.Fields() {
		fmt.Fprintf(c.errOut, "%s: %s\n", f, errs[f])
	}
}

func (c *Console) delete(ctx context.Context, args []string) error {
	fs := c.flagSet("delete")
	id, err := splitID(fs, args)
	if err != nil {
		return err
	}
	err = c.ctrl.Delete(ctx, core.TransactionID(id))
	if errors.Is(err, core.ErrNotFound) {
		fmt.Fprintf(c.errOut, "transaction %s not found\n", id)
		return errReported
	}
	if err == nil || errors.Is(err, store.ErrNotPersisted) {
		fmt.Fprintf(c.out, "Deleted %s\n", id)
	}
	return err
}

func (c *Console) stats(_ context.Context, args []string) error {
	if len(args) > 0 {
		return usagef("stats: unexpected arguments %v", args)
	}
	s := c.ctrl.Dashboard()

	tw := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Transactions\t%d\n", s.TotalCount)
	fmt.Fprintf(tw, "Total\t%s\n", core.FormatAmount(s.TotalAmount))
	fmt.Fprintf(tw, "Top category\t%s (%s)\n", s.TopCategory, core.FormatAmount(s.TopCategoryAmount))
	fmt.Fprintf(tw, "Last 7 days\t%s\n", core.FormatAmount(s.Last7Days))
	fmt.Fprintf(tw, "Budget\t%s\n", s.Budget)
	if err := tw.Flush(); err != nil {
		return err
	}
	if len(s.ByCategory) == 0 {
		return nil
	}

	fmt.Fprintln(c.out)
	tw = tabwriter.NewWriter(c.out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "CATEGORY\tCOUNT\tAMOUNT\t")
	for _, ca := range s.ByCategory {
		fmt.Fprintf(tw, "%s\t%d\t%s\t\n", ca.Category, ca.Count, core.FormatAmount(ca.Amount))
	}
	return tw.Flush()
}

// rateFlags collects repeated -rate CODE=RATE values.
type rateFlags map[string]decimal.Decimal

func (r rateFlags) String() string {
	parts := make([]string, 0, len(r))
	for code, rate := range r {
		parts = append(parts, code+"="+rate.String())
	}
	slices.Sort(parts)
	return strings.Join(parts, ",")
}

func (r rateFlags) Set(v string) error {
	code, raw, ok := strings.Cut(v, "=")
	if !ok {
		return fmt.Errorf("want CODE=RATE, got %q", v)
	}
	rate, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("rate for %s: %w", code, err)
	}
	r[strings.ToUpper(strings.TrimSpace(code))] = rate
	return nil
}

func (c *Console) settings(ctx context.Context, args []string) error {
	fs := c.flagSet("settings")
	budget := fs.String("budget", "", "set the budget cap")
	clearBudget := fs.Bool("clear-budget", false, "remove the budget cap")
	rates := rateFlags{}
	fs.Var(rates, "rate", "exchange rate CODE=RATE; repeat for several; replaces all rates")
	if err := parse(fs, args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return usagef("settings: unexpected arguments %v", fs.Args())
	}
	if *budget != "" && *clearBudget {
		return usagef("settings: -budget and -clear-budget are exclusive")
	}

	var patch core.SettingsPatch
	switch {
	case *clearBudget:
		patch = core.ClearBudgetCap()
	case *budget != "":
		v, err := core.ParseAmount(*budget)
		if err != nil {
			fmt.Fprintf(c.errOut, "budgetCap: %s\n", validation.MsgBudgetCapInvalid)
			return errReported
		}
		patch = core.SetBudgetCap(v)
	}
	if len(rates) > 0 {
		patch.CurrencyRates = rates
	}

	current := c.ctrl.Settings()
	if !patch.IsEmpty() {
		updated, errs, err := c.ctrl.UpdateSettings(ctx, patch)
		if errs.HasErrors() {
			keys := make([]string, 0, len(errs))
			for k := range errs {
				keys = append(keys, k)
			}
			slices.Sort(keys)
			for _, k := range keys {
				fmt.Fprintf(c.errOut, "%s: %s\n", k, errs[k])
			}
			return errReported
		}
		current = updated
		if err != nil {
			c.printSettings(current)
			return err
		}
	}
	c.printSettings(current)
	return nil
}

func (c *Console) printSettings(s core.Settings) {
	tw := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	if s.BudgetCap.Valid {
		fmt.Fprintf(tw, "Budget cap\t%s\n", core.FormatAmount(s.BudgetCap.Decimal))
	} else {
		fmt.Fprintln(tw, "Budget cap\tnot set")
	}
	codes := make([]string, 0, len(s.CurrencyRates))
	for code := range s.CurrencyRates {
		codes = append(codes, code)
	}
	slices.Sort(codes)
	for _, code := range codes {
		fmt.Fprintf(tw, "Rate %s\t%s\n", code, s.CurrencyRates[code].String())
	}
	_ = tw.Flush()
}

func (c *Console) export(_ context.Context, args []string) error {
	fs := c.flagSet("export")
	path := fs.String("o", "", "write to FILE instead of standard output")
	if err := parse(fs, args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return usagef("export: unexpected arguments %v", fs.Args())
	}
	if *path == "" || *path == "-" {
		return c.ctrl.Export(c.out)
	}

	f, err := os.Create(*path)
	if err != nil {
		return fmt.Errorf("create %s: %w", *path, err)
	}
	if err := c.ctrl.Export(f); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", *path, err)
	}
	fmt.Fprintf(c.errOut, "Exported to %s\n", *path)
	return nil
}

func (c *Console) importDoc(ctx context.Context, args []string) error {
	if len(args) > 1 {
		return usagef("import: expected at most one file, got %d", len(args))
	}
	var r io.Reader = c.in
	name := "standard input"
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open %s: %w", args[0], err)
		}
		defer f.Close()
		r, name = f, args[0]
	}

	n, err := c.ctrl.Import(ctx, r)
	if n > 0 || err == nil {
		fmt.Fprintf(c.out, "Imported %d transaction(s) from %s\n", n, name)
	}
	return err
}

func (c *Console) flush(ctx context.Context, args []string) error {
	if len(args) > 0 {
		return usagef("flush: unexpected arguments %v", args)
	}
	if !c.ctrl.Dirty() {
		fmt.Fprintln(c.out, "Nothing to flush.")
		return nil
	}
	if err := c.ctrl.Flush(ctx); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "Saved.")
	return nil
}
