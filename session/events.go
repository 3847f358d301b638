package session

import (
	"context"
	"time"
)

// EventKind names one of the notifications a Client emits.
type EventKind string

const (
	EventQR            EventKind = "qr"
	EventReady         EventKind = "ready"
	EventAuthenticated EventKind = "authenticated"
	EventAuthFailure   EventKind = "auth_failure"
	EventDisconnected  EventKind = "disconnected"
	EventMessage       EventKind = "message"
	EventMessageCreate EventKind = "message_create"
	EventMessageAck    EventKind = "message_ack"
	// EventQRTimeout is emitted when every issued code expired without a scan.
	EventQRTimeout EventKind = "qr_timeout"
)

// Identity is the account the session is logged in as.
type Identity struct {
	DisplayName string
	PhoneNumber string
}

// Contact is the sender information a client exposes alongside a message.
type Contact struct {
	ID         string
	Name       string
	PushName   string
	ShortName  string
	Number     string
	IsBusiness bool
}

// Message is a chat message as reported by the client, before any mapping.
// From and To follow the network's addressing (e.g. "15551234@s.whatsapp.net").
type Message struct {
	ID        string
	From      string
	To        string
	Body      string
	Type      string
	Timestamp time.Time
	FromMe    bool
	Sender    *Contact
}

// AckLevel is the delivery progress reported by a receipt.
type AckLevel string

const (
	AckDelivered AckLevel = "delivered"
	AckRead      AckLevel = "read"
)

// Ack reports receipts for one or more previously seen messages.
type Ack struct {
	MessageIDs []string
	Level      AckLevel
}

// Event is a single notification from a Client. Only the fields relevant to
// Kind are populated.
type Event struct {
	Kind     EventKind
	QRCode   string
	Identity *Identity
	Reason   string
	Message  *Message
	Ack      *Ack
}

// Client is the capability surface of an external chat-network session.
// Implementations deliver events to subscribers in transport order.
type Client interface {
	// Subscribe registers fn for every event. It is called before Connect.
	Subscribe(fn func(Event))
	// Connect begins the handshake and returns once it is under way; progress
	// is reported through events.
	Connect(ctx context.Context) error
	// Destroy releases the session and any OS resources it holds.
	Destroy(ctx context.Context) error
}

// ClientOptions configures a new Client.
type ClientOptions struct {
	// ClientID keys the persisted credentials so a restart does not require a new scan.
	ClientID string
	// AuthDir is the directory holding the credential store.
	AuthDir string
}

// Factory allocates Clients.
type Factory interface {
	New(ctx context.Context, opts ClientOptions) (Client, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(ctx context.Context, opts ClientOptions) (Client, error)

func (f FactoryFunc) New(ctx context.Context, opts ClientOptions) (Client, error) {
	return f(ctx, opts)
}

// Handler consumes events on behalf of the supervisor.
type Handler interface {
	Handle(ctx context.Context, ev Event)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, ev Event)

func (f HandlerFunc) Handle(ctx context.Context, ev Event) { f(ctx, ev) }
