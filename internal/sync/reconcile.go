// Package sync implements the optimistic message synchronization engine: the
// reconciliation matcher and the synchronizer façade that owns per-chat state.
package sync

import (
	"github.com/reena96/messageai/internal/chat"
)

// MergeResult is the outcome of one reconciliation pass.
type MergeResult struct {
	// Authoritative is the snapshot, in server order, to upsert as-is.
	Authoritative []chat.Message
	// Surviving holds the local entries retained, in insertion order.
	Surviving []chat.Message
	// Superseded lists client ids of local entries replaced by an
	// authoritative match; they must be removed, never rendered alongside.
	Superseded []string
}

// Merged returns the full timeline: authoritative first in server order, then
// surviving local entries in insertion order.
func (r MergeResult) Merged() []chat.Message {
	out := make([]chat.Message, 0, len(r.Authoritative)+len(r.Surviving))
	out = append(out, r.Authoritative...)
	out = append(out, r.Surviving...)
	return out
}

// Merge reconciles the latest authoritative snapshot (ascending server
// timestamp) against the locally held optimistic entries (insertion order).
//
// A local entry survives unless a snapshot message from the same sender with
// the same text sits strictly within windowMS of its client timestamp. The
// optimistic entry never carries the server id, so supersession has to be
// approximate: wide enough to absorb round-trip latency, narrow enough not to
// false-merge two distinct same-text messages sent in quick succession.
//
// Entries still in flight are kept regardless, since they have not yet
// had a chance to be superseded. Failed entries are kept because they
// represent user-visible state requiring action. Each snapshot message may be
// claimed by at most one local entry: locals claim in insertion order, each
// taking its nearest unclaimed candidate by timestamp proximity.
func Merge(snapshot []chat.Message, locals []chat.Message, windowMS int64) MergeResult {
	res := MergeResult{Authoritative: snapshot}
	claimed := make(map[int]bool, len(snapshot))

	for _, local := range locals {
		if local.RawStatus == chat.RawSending || local.Lifecycle == chat.Failed {
			res.Surviving = append(res.Surviving, local)
			continue
		}

		match := -1
		var best int64
		for i, auth := range snapshot {
			if claimed[i] || auth.SenderID != local.SenderID || auth.Text != local.Text {
				continue
			}
			delta := auth.Timestamp - local.Timestamp
			if delta < 0 {
				delta = -delta
			}
			if delta >= windowMS {
				continue
			}
			if match == -1 || delta < best {
				match = i
				best = delta
			}
		}

		if match >= 0 {
			claimed[match] = true
			res.Superseded = append(res.Superseded, local.ClientID)
		} else {
			res.Surviving = append(res.Surviving, local)
		}
	}

	return res
}
