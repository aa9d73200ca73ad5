// Package command turns free-text chat messages into typed commands.
package command

// Kind identifies a command.
type Kind int

const (
	Unrecognized Kind = iota
	Give
	Pay
	Balance
	BalanceOf
	Balances
	Help
)

func (k Kind) String() string {
	switch k {
	case Give:
		return "give"
	case Pay:
		return "pay"
	case Balance:
		return "balance"
	case BalanceOf:
		return "balance_of"
	case Balances:
		return "balances"
	case Help:
		return "help"
	default:
		return "unrecognized"
	}
}

// Command is a parsed chat command. Amount is set for Give and Pay; Target
// holds the mention for Give, Pay and BalanceOf.
type Command struct {
	Kind   Kind
	Amount int64
	Target string
}
