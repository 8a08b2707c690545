// Package sending gates every outbound message on the validation cache.
//
// Mailer is the entry point applications call. It splits a Message into one
// Envelope per recipient and runs each through the Interceptor's BeforeSend
// hook, the Transport, and the AfterSend hook. Blocked recipients never
// reach the transport; callers get a *BlockedRecipientError for them.
package sending
