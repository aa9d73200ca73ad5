package command

import (
	"regexp"
	"strconv"
)

var (
	reGive      = regexp.MustCompile(`(?i)^\s*give\s+(\d+)\s+to\s+(@[a-z]+)\s*$`)
	rePay       = regexp.MustCompile(`(?i)^\s*pay\s+(\d+)\s+to\s+(@[a-z]+)\s*$`)
	reBalances  = regexp.MustCompile(`(?i)^\s*balances\s*$`)
	reBalance   = regexp.MustCompile(`(?i)^\s*balance\s*$`)
	reBalanceOf = regexp.MustCompile(`(?i)^\s*balance\s+of\s+(@[a-z]+)\s*$`)
	reHelp      = regexp.MustCompile(`(?i)^\s*(?:usage|help)\s*$`)
)

// Parse never fails: text that matches no command, including amounts that do
// not fit in an int64, yields Unrecognized.
func Parse(text string) Command {
	if m := reGive.FindStringSubmatch(text); m != nil {
		return transfer(Give, m[1], m[2])
	}
	if m := rePay.FindStringSubmatch(text); m != nil {
		return transfer(Pay, m[1], m[2])
	}
	if reBalances.MatchString(text) {
		return Command{Kind: Balances}
	}
	if reBalance.MatchString(text) {
		return Command{Kind: Balance}
	}
	if m := reBalanceOf.FindStringSubmatch(text); m != nil {
		return Command{Kind: BalanceOf, Target: m[1]}
	}
	if reHelp.MatchString(text) {
		return Command{Kind: Help}
	}
	return Command{Kind: Unrecognized}
}

func transfer(kind Kind, amount, target string) Command {
	n, err := strconv.ParseInt(amount, 10, 64)
	if err != nil {
		return Command{Kind: Unrecognized}
	}
	return Command{Kind: kind, Amount: n, Target: target}
}
