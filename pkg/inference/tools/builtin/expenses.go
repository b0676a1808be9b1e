package builtin

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/go-go-golems/steward/pkg/inference/tools"
	"github.com/go-go-golems/steward/pkg/resolve"
	"github.com/go-go-golems/steward/pkg/store"
)

const defaultCurrency = "EUR"

type queryExpensesInput struct {
	From     string `json:"from,omitempty" jsonschema:"description=First day; defaults to 30 days ago"`
	To       string `json:"to,omitempty" jsonschema:"description=Last day; defaults to today"`
	Category string `json:"category,omitempty"`
}

type createExpenseInput struct {
	Amount      float64 `json:"amount" jsonschema:"required"`
	Currency    string  `json:"currency,omitempty" jsonschema:"description=ISO 4217 code"`
	Date        string  `json:"date,omitempty"`
	Category    string  `json:"category,omitempty"`
	Description string  `json:"description,omitempty"`
}

type deleteExpenseInput struct {
	ID                string `json:"id,omitempty" jsonschema:"description=Expense id; mutually exclusive with search_description"`
	SearchDescription string `json:"search_description,omitempty" jsonschema:"description=Part of the description or category"`
	Date              string `json:"date,omitempty" jsonschema:"description=Day the expense was recorded for; defaults to today"`
}

type expenseTools struct {
	deps Deps
	st   store.ExpenseStore
}

func expenseLine(e store.Expense) string {
	line := fmt.Sprintf("%s %s %s", e.Date, formatNumber(e.Amount), e.Currency)
	if e.Category != "" {
		line += " [" + e.Category + "]"
	}
	if e.Description != "" {
		line += " " + e.Description
	}
	return line + " (id: " + e.ID + ")"
}

func (s expenseTools) day(expr, fallback string) (string, error) {
	if strings.TrimSpace(expr) == "" {
		expr = fallback
	}
	d, err := resolve.ParseDate(expr, s.deps.now())
	if err != nil {
		return "", err
	}
	return resolve.FormatDate(d), nil
}

func (s expenseTools) query(ctx context.Context, in queryExpensesInput) tools.Result {
	from, err := s.day(in.From, "30 days ago")
	if err != nil {
		return tools.Errorf("%v", err)
	}
	to, err := s.day(in.To, "today")
	if err != nil {
		return tools.Errorf("%v", err)
	}
	if to < from {
		return tools.Errorf("to %s is before from %s", to, from)
	}
	expenses, err := s.st.Query(ctx, store.ExpenseQuery{From: from, To: to, Category: strings.TrimSpace(in.Category)})
	if err != nil {
		return tools.Errorf("could not load expenses: %v", err)
	}
	if len(expenses) == 0 {
		return tools.OKf("No expenses between %s and %s.", from, to).WithData(expenses)
	}

	totals := map[string]float64{}
	var b strings.Builder
	fmt.Fprintf(&b, "%s between %s and %s:", plural(len(expenses), "expense"), from, to)
	for _, e := range expenses {
		totals[e.Currency] += e.Amount
		b.WriteString("\n- ")
		b.WriteString(expenseLine(e))
	}
	currencies := make([]string, 0, len(totals))
	for c := range totals {
		currencies = append(currencies, c)
	}
	sort.Strings(currencies)
	parts := make([]string, 0, len(currencies))
	for _, c := range currencies {
		parts = append(parts, formatNumber(totals[c])+" "+c)
	}
	b.WriteString("\nTotal: " + strings.Join(parts, " + "))
	return tools.OK(b.String()).WithData(expenses)
}

func (s expenseTools) create(ctx context.Context, in createExpenseInput) tools.Result {
	if in.Amount <= 0 {
		return tools.Errorf("amount must be positive")
	}
	date, err := s.day(in.Date, "today")
	if err != nil {
		return tools.Errorf("%v", err)
	}
	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = defaultCurrency
	}
	if len(currency) != 3 {
		return tools.Errorf("currency %q must be a three letter code", in.Currency)
	}
	e, err := s.st.Create(ctx, store.Expense{
		Date:        date,
		Amount:      in.Amount,
		Currency:    currency,
		Category:    strings.TrimSpace(in.Category),
		Description: in.Description,
	})
	if err != nil {
		return tools.Errorf("could not record expense: %v", err)
	}
	return tools.OKf("Recorded expense %s.", expenseLine(e)).
		WithData(focus(EntityExpense, e.ID, expenseLabel(e), e.Date))
}

func expenseLabel(e store.Expense) string {
	if e.Description != "" {
		return e.Description
	}
	return e.Category
}

// resolveTarget finds the expense by id, or by description and category among the
// expenses of one day.
func (s expenseTools) resolveTarget(ctx context.Context, in deleteExpenseInput) (store.Expense, tools.Result, bool) {
	if res, ok := exclusiveTarget(in.ID, in.SearchDescription, "search_description"); !ok {
		return store.Expense{}, res, false
	}
	if id := strings.TrimSpace(in.ID); id != "" {
		e, err := s.st.Get(ctx, id)
		if err != nil {
			return e, lookupError("expense", id, err), false
		}
		return e, tools.Result{}, true
	}

	day, err := s.day(in.Date, "today")
	if err != nil {
		return store.Expense{}, tools.Errorf("%v", err), false
	}
	candidates, err := s.st.Query(ctx, store.ExpenseQuery{From: day, To: day})
	if err != nil {
		return store.Expense{}, tools.Errorf("could not load expenses: %v", err), false
	}
	r := resolve.MatchTitles(candidates, in.SearchDescription, func(e store.Expense) string {
		return strings.TrimSpace(e.Description + " " + e.Category)
	})
	switch r.Outcome {
	case resolve.OutcomeNone:
		return store.Expense{}, tools.Errorf("no expense matching %q on %s", in.SearchDescription, day), false
	case resolve.OutcomeAmbiguous:
		text := candidateList(fmt.Sprintf("Found %d expenses matching %q on %s:", len(r.Matches), in.SearchDescription, day), r.Matches, expenseLine)
		return store.Expense{}, tools.Ambiguous(text, r.Matches), false
	}
	e, _ := r.Unique()
	return e, tools.Result{}, true
}

func (s expenseTools) delete(ctx context.Context, in deleteExpenseInput) tools.Result {
	e, res, ok := s.resolveTarget(ctx, in)
	if !ok {
		return res
	}
	if err := s.st.Delete(ctx, e.ID); err != nil {
		return lookupError("expense", e.ID, err)
	}
	return tools.OKf("Deleted expense %s.", expenseLine(e)).
		WithData(deleted(EntityExpense, e.ID, expenseLabel(e), e.Date))
}

func expenseSpecs(deps Deps) []tools.ToolSpec {
	s := expenseTools{deps: deps, st: deps.Store.Expenses()}
	return []tools.ToolSpec{
		{
			Definition: tools.MustNewTool("query_expenses", "List expenses in a date range with totals per currency.", s.query),
			Metadata: tools.ToolMetadata{
				Category: tools.CategoryExpenses,
				Readonly: true,
				Enabled:  true,
				Parameters: []tools.ParameterMetadata{
					{Name: "from", Importance: tools.ImportanceMedium, HasDefault: true, DefaultDescription: "30 days ago", OnMissing: tools.OnMissingUseDefault},
					{Name: "to", Importance: tools.ImportanceMedium, HasDefault: true, DefaultDescription: "today", OnMissing: tools.OnMissingUseDefault},
					{Name: "category", Importance: tools.ImportanceLow, OnMissing: tools.OnMissingSkip},
				},
			},
		},
		{
			Definition: tools.MustNewTool("create_expense", "Record an expense.", s.create),
			Metadata: tools.ToolMetadata{
				Category:         tools.CategoryExpenses,
				Enabled:          true,
				PendingOperation: tools.PendingOperationCreate,
				Parameters: []tools.ParameterMetadata{
					{Name: "amount", Importance: tools.ImportanceCritical, Required: true, OnMissing: tools.OnMissingAskUser, ClarificationPrompt: "How much was it?"},
					{Name: "currency", Importance: tools.ImportanceMedium, HasDefault: true, DefaultDescription: defaultCurrency, OnMissing: tools.OnMissingUseDefault},
					{Name: "date", Importance: tools.ImportanceMedium, HasDefault: true, DefaultDescription: "today", OnMissing: tools.OnMissingUseDefault},
					{Name: "category", Importance: tools.ImportanceHigh, OnMissing: tools.OnMissingAskUser, ClarificationPrompt: "What kind of expense was it?"},
					{Name: "description", Importance: tools.ImportanceLow, OnMissing: tools.OnMissingSkip},
				},
			},
		},
		{
			Definition: tools.MustNewTool("delete_expense", "Delete an expense by id, or by its description on a given day.", s.delete),
			Metadata: tools.ToolMetadata{
				Category: tools.CategoryExpenses,
				Enabled:  true,
				Parameters: []tools.ParameterMetadata{
					{Name: "id", Importance: tools.ImportanceHigh, OnMissing: tools.OnMissingSkip, Explanation: "Do not combine with search_description."},
					{Name: "search_description", Importance: tools.ImportanceHigh, OnMissing: tools.OnMissingAskUser, ClarificationPrompt: "Which expense do you mean?"},
					{Name: "date", Importance: tools.ImportanceMedium, HasDefault: true, DefaultDescription: "today", OnMissing: tools.OnMissingUseDefault},
				},
			},
		},
	}
}
