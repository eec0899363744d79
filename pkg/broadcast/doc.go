// Package broadcast provides type-safe, topic-filtered fan-out of messages to
// in-process subscribers.
//
//	b := broadcast.NewMemoryBroadcaster[tracker.Event](64)
//	defer b.Close()
//
//	sub := b.Subscribe(ctx, requestID)
//	defer sub.Close()
//
//	_ = b.Broadcast(ctx, broadcast.Message[tracker.Event]{Topic: requestID, Data: ev})
//
//	for msg := range sub.Receive() {
//		fmt.Println(msg.Data)
//	}
//
// Subscribers are removed when their context ends, when their buffer is full
// at publish time, or when the broadcaster closes. In every case the receive
// channel is closed.
package broadcast
