// Package chat is the event ingestion pipeline for the WhatsApp session.
//
// Pipeline.Handle receives every event from the live session handle, in
// delivery order, and performs one side effect per event:
//   - qr: cache the login code, mark the session awaiting scan and mirror the
//     code to the configured sinks (file, log).
//   - ready: record the identity, mark the session ready and drop the code.
//   - authenticated: log only.
//   - auth_failure: mark the session disconnected. No restart is scheduled,
//     since the stored credentials are no longer valid.
//   - disconnected / qr_timeout: mark the session disconnected and schedule a
//     restart after the configured delay.
//   - message: persist the message (status delivered) and its sender contact.
//   - message_create: persist self-originated messages (status sent), never
//     their contact; echoes of inbound messages are ignored.
//   - message_ack: raise the stored status of the acknowledged messages.
//
// Messages and contacts from the status@broadcast pseudo-contact are never
// persisted. Persistence failures are logged and swallowed: the network is
// the source of truth and redelivers.
package chat
