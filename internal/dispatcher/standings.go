package dispatcher

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

type standing struct {
	label   string
	balance decimal.Decimal
}

// rank orders by balance descending, then label.
func rank(rows []standing) {
	sort.SliceStable(rows, func(i, j int) bool {
		if c := rows[i].balance.Cmp(rows[j].balance); c != 0 {
			return c > 0
		}
		return rows[i].label < rows[j].label
	})
}

func render(title, cheer string, rows []standing) string {
	var b strings.Builder
	b.WriteString(title + ":\n")
	for i, r := range rows {
		fmt.Fprintf(&b, "  %s: *%s* dubloons", r.label, r.balance.String())
		if i == 0 {
			b.WriteString(cheer)
		}
		if i < len(rows)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

// standings lists every user by balance and, when groups are configured,
// every group by the sum of its members' balances. Group sums are
// arbitrary-precision since they can exceed an int64.
func (d *Dispatcher) standings(ctx context.Context) (string, error) {
	users, err := d.directory.ListUsers(ctx)
	if err != nil {
		return "", err
	}
	entries, err := d.ledger.Balances(ctx)
	if err != nil {
		return "", err
	}

	byID := make(map[string]int64, len(entries))
	for _, e := range entries {
		byID[e.UserID] = e.Balance
	}
	byMention := make(map[string]int64, len(users))

	rows := make([]standing, 0, len(users)+len(entries))
	seen := make(map[string]bool, len(users))
	for _, u := range users {
		seen[u.ID] = true
		byMention[strings.ToLower(u.Mention)] = byID[u.ID]
		rows = append(rows, standing{label: u.Mention, balance: decimal.NewFromInt(byID[u.ID])})
	}
	// Ledger entries for users the directory no longer knows are still money.
	for _, e := range entries {
		if !seen[e.UserID] {
			rows = append(rows, standing{label: e.UserID, balance: decimal.NewFromInt(e.Balance)})
		}
	}
	if len(rows) == 0 {
		return "Nobody has any dubloons yet.", nil
	}
	rank(rows)
	text := render("Users", ", ripping!", rows)

	if len(d.cfg.Groups) == 0 {
		return text, nil
	}
	groups := make([]standing, 0, len(d.cfg.Groups))
	for name, members := range d.cfg.Groups {
		total := decimal.Zero
		for _, m := range members {
			total = total.Add(decimal.NewFromInt(byMention[strings.ToLower(m)]))
		}
		groups = append(groups, standing{label: name, balance: total})
	}
	rank(groups)
	return text + "\n\n" + render("Groups", ", shaka brah!", groups), nil
}
