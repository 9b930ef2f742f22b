// Package events is burrow's topic publish/subscribe hub.
//
// Topics are dot-separated segments; bucket events use exactly three:
// bucket.<name>.<inserted|updated|deleted>. Subscription patterns match
// literally except for *, which matches exactly one segment — there is no
// recursive wildcard. Handlers run synchronously on the publisher's
// goroutine and are panic-isolated from each other and the publisher.
package events
