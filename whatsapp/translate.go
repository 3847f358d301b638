package whatsapp

import (
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"

	"github.com/onnwee/wa-tender/backend/session"
)

// self is what the adapter knows about the logged-in account when an event arrives.
type self struct {
	jid      *types.JID
	pushName string
}

func (s self) identity() *session.Identity {
	id := &session.Identity{DisplayName: s.pushName}
	if s.jid != nil {
		id.PhoneNumber = s.jid.User
	}
	return id
}

func (s self) address() string {
	if s.jid == nil {
		return ""
	}
	return s.jid.ToNonAD().String()
}

// translate maps a whatsmeow event to a session event. ok is false for
// events the session does not care about.
func translate(evt any, me self) (ev session.Event, ok bool) {
	switch e := evt.(type) {
	case *events.Connected:
		return session.Event{Kind: session.EventReady, Identity: me.identity()}, true
	case *events.PairSuccess:
		return session.Event{Kind: session.EventAuthenticated}, true
	case *events.LoggedOut:
		return session.Event{Kind: session.EventAuthFailure, Reason: "logged out: " + e.Reason.String()}, true
	case *events.TemporaryBan:
		return session.Event{Kind: session.EventAuthFailure, Reason: "temporary ban: " + e.String()}, true
	case *events.ConnectFailure:
		if e.Reason.IsLoggedOut() {
			return session.Event{Kind: session.EventAuthFailure, Reason: e.Reason.String()}, true
		}
		return session.Event{Kind: session.EventDisconnected, Reason: e.Reason.String()}, true
	case *events.Disconnected:
		return session.Event{Kind: session.EventDisconnected, Reason: "connection lost"}, true
	case *events.StreamReplaced:
		return session.Event{Kind: session.EventDisconnected, Reason: "stream replaced"}, true
	case *events.Message:
		return translateMessage(e, me), true
	case *events.Receipt:
		return translateReceipt(e)
	}
	return session.Event{}, false
}

func translateMessage(e *events.Message, me self) session.Event {
	info := e.Info
	msg := &session.Message{
		ID:        info.ID,
		Body:      messageBody(e),
		Type:      messageType(info),
		Timestamp: info.Timestamp,
		FromMe:    info.IsFromMe,
	}
	if info.IsFromMe {
		// Authored by us: from is our own address, to is the chat.
		msg.From = me.address()
		msg.To = info.Chat.String()
		return session.Event{Kind: session.EventMessageCreate, Message: msg}
	}
	msg.From = info.Chat.String()
	msg.To = me.address()
	sender := info.Sender.ToNonAD()
	msg.Sender = &session.Contact{
		ID:         sender.String(),
		PushName:   info.PushName,
		Number:     sender.User,
		IsBusiness: info.VerifiedName != nil,
	}
	if info.VerifiedName != nil && info.VerifiedName.Details != nil {
		msg.Sender.Name = info.VerifiedName.Details.GetVerifiedName()
	}
	return session.Event{Kind: session.EventMessage, Message: msg}
}

func messageBody(e *events.Message) string {
	if e.Message == nil {
		return ""
	}
	if body := e.Message.GetConversation(); body != "" {
		return body
	}
	if body := e.Message.GetExtendedTextMessage().GetText(); body != "" {
		return body
	}
	if caption := e.Message.GetImageMessage().GetCaption(); caption != "" {
		return caption
	}
	return e.Message.GetVideoMessage().GetCaption()
}

func messageType(info types.MessageInfo) string {
	if info.MediaType != "" {
		return info.MediaType
	}
	return info.Type
}

func translateReceipt(e *events.Receipt) (session.Event, bool) {
	var level session.AckLevel
	switch e.Type {
	case types.ReceiptTypeDelivered:
		level = session.AckDelivered
	case types.ReceiptTypeRead, types.ReceiptTypeReadSelf:
		level = session.AckRead
	default:
		return session.Event{}, false
	}
	ids := make([]string, 0, len(e.MessageIDs))
	for _, id := range e.MessageIDs {
		ids = append(ids, string(id))
	}
	return session.Event{Kind: session.EventMessageAck, Ack: &session.Ack{MessageIDs: ids, Level: level}}, true
}
