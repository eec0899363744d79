// Package inapp implements the in-app notification channel: a per-recipient
// inbox with read state and expiry, plus live fan-out to connected clients.
//
// Inbox wraps a Store. Deliver persists first and then publishes to the
// recipient's subscribers; a subscriber that falls behind is dropped rather
// than slowing delivery. Adapter plugs the inbox into the dispatcher and
// derives entry ids from message ids, so a retried attempt is stored once.
//
//	inbox := inapp.NewInbox(inapp.NewMemoryStore(), inapp.WithConfig(cfg))
//	registry.Register(channel.Channel{Name: channel.InApp, Adapter: inapp.NewAdapter(inbox)})
//
//	sub := inbox.Subscribe(ctx, "usr_123")
//	for msg := range sub.Receive() {
//		render(msg.Data)
//	}
package inapp
