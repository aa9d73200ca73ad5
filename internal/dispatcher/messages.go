package dispatcher

import (
	"fmt"

	"github.com/sheikh-saqib/dubloons/internal/models"
)

// Messages are the configurable texts the bot speaks.
type Messages struct {
	Welcome string
	Usage   string
	Error   string
	Unknown string
}

// DefaultMessages returns the built-in texts.
func DefaultMessages() Messages {
	return Messages{
		Welcome: "Aloha and welcome to Dubloons!",
		Usage: "Usage:\n\n" +
			"  `give <amount> to @user` - mint dubloons for someone\n" +
			"  `pay <amount> to @user` - pay someone from your balance\n" +
			"  `balance` - your balance\n" +
			"  `balance of @user` - someone else's balance\n" +
			"  `balances` - display balances\n" +
			"  `help` - display this message\n",
		Error:   "What's it all about boy, elucidate!",
		Unknown: "What I say what in tarnation?",
	}
}

const (
	insufficientFundsText = "You don't have enough dubloons!"
	notBankerText         = "Only bankers can give dubloons."
)

// Reply is a message to post. The zero Reply means stay silent.
type Reply struct {
	To   models.Destination
	Text string
}

func (r Reply) Empty() bool { return r.Text == "" }

func (d *Dispatcher) toSender(msg models.Message, text string) Reply {
	return Reply{To: models.Destination{Kind: models.ToSender, ID: msg.Sender.ID}, Text: text}
}

func (d *Dispatcher) toChannel(text string) Reply {
	return Reply{To: models.Destination{Kind: models.ToChannel, ID: d.cfg.Announcements}, Text: text}
}

// usage prefixes the usage text with a bold notice when one is given.
func (d *Dispatcher) usage(msg models.Message, notice string) Reply {
	text := d.cfg.Messages.Usage
	if notice != "" {
		text = fmt.Sprintf("*%s*\n\n%s", notice, text)
	}
	return d.toSender(msg, text)
}

// Welcome is announced once when the bot starts.
func (d *Dispatcher) Welcome() Reply {
	return d.toChannel(d.cfg.Messages.Welcome)
}
