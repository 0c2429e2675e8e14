// Package remote is the owner-only chat console. It lets the schedule be
// listed and edited, plays sounds on request, shows the audit history and
// forwards missed bells and failed saves to the alert chat.
package remote
