// Package signaling relays presence and call-setup events between browser
// peers over WebSocket.
//
// Every accepted connection is tracked by a Hub. A connection joins the
// presence list by sending user:register; every registry change is broadcast
// to all tracked connections as users:update. call:request and call:end are
// routed by peer ID to the first connection registered under that ID, and
// are silently dropped when no such connection exists.
//
// Wire format: one JSON object per text frame, discriminated by "type".
//
//	-> {"type":"user:register","peerId":"a","username":"Alice"}
//	-> {"type":"call:request","to":"b","from":"a"}
//	-> {"type":"call:end","to":"b"}
//	<- {"type":"users:update","users":[{"peerId":"a","username":"Alice"}]}
//	<- {"type":"call:incoming","from":"a","caller":"Alice"}
//	<- {"type":"call:ended"}
//	<- {"type":"error","code":"bad_message","message":"..."}
package signaling
