// Package dedupe remembers which storage changes a process has already
// announced, so a committed write observed through more than one channel
// (the in-process hub and the revision poller) produces one notification.
package dedupe
