package models

// User is a chat participant as known by the user directory.
type User struct {
	ID      string
	Mention string // e.g. "@alice"
}

// DestinationKind says where a reply goes.
type DestinationKind int

const (
	ToSender DestinationKind = iota
	ToChannel
)

// Destination is either a user (direct reply) or a channel.
type Destination struct {
	Kind DestinationKind
	ID   string
}

// Message is an inbound chat message that mentioned the bot.
type Message struct {
	ID      string // unique per delivery source, used as idempotency key
	Sender  User
	Text    string // with the bot mention already stripped
	Channel string
}
