// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// NotificationType represents the type of a notification message.
type NotificationType int

// NotificationCallback is used for a caller to provide a callback for
// notifications about various mempool events.
type NotificationCallback func(*Notification)

// Constants for the type of a notification message.
const (
	// NTTxAccepted indicates a transaction entered the pool.
	NTTxAccepted NotificationType = iota

	// NTTxRemoved indicates a transaction left the pool.
	NTTxRemoved

	// NTFeeDeltaChanged indicates the priority delta of a transaction
	// changed, whether or not it is in the pool.
	NTFeeDeltaChanged
)

// notificationTypeStrings is a map of notification types back to their constant
// names for pretty printing.
var notificationTypeStrings = map[NotificationType]string{
	NTTxAccepted:      "NTTxAccepted",
	NTTxRemoved:       "NTTxRemoved",
	NTFeeDeltaChanged: "NTFeeDeltaChanged",
}

// String returns the NotificationType in human-readable form.
func (n NotificationType) String() string {
	if s, ok := notificationTypeStrings[n]; ok {
		return s
	}
	return fmt.Sprintf("Unknown Notification Type (%d)", int(n))
}

// RemovalReason describes why a transaction left the pool.
type RemovalReason int

const (
	// RemovedConfirmed is used when the transaction was included in a
	// connected block.
	RemovedConfirmed RemovalReason = iota

	// RemovedConflict is used when a connected block spent one of the
	// transaction's inputs, or an input of one of its ancestors.
	RemovedConflict

	// RemovedReorg is used when a disconnected block left the transaction
	// spending an output that no longer exists.
	RemovedReorg

	// RemovedEvicted is used for explicit removal by the caller.
	RemovedEvicted
)

var removalReasonStrings = map[RemovalReason]string{
	RemovedConfirmed: "confirmed",
	RemovedConflict:  "conflict",
	RemovedReorg:     "reorg",
	RemovedEvicted:   "evicted",
}

// String returns the RemovalReason in human-readable form.
func (r RemovalReason) String() string {
	if s, ok := removalReasonStrings[r]; ok {
		return s
	}
	return fmt.Sprintf("Unknown RemovalReason (%d)", int(r))
}

// TxRemovedData is the data of an NTTxRemoved notification.
type TxRemovedData struct {
	Tx     *btcutil.Tx
	Reason RemovalReason
}

// FeeDeltaData is the data of an NTFeeDeltaChanged notification.
type FeeDeltaData struct {
	Hash chainhash.Hash
	Old  btcutil.Amount
	New  btcutil.Amount
}

// Notification defines notification that is sent to the caller via the
// callbacks registered with Subscribe and consists of a notification type as
// well as associated data that depends on the type as follows:
//   - NTTxAccepted:      *EntrySnapshot
//   - NTTxRemoved:       *TxRemovedData
//   - NTFeeDeltaChanged: *FeeDeltaData
type Notification struct {
	Type NotificationType
	Data interface{}
}

// Subscribe registers a callback for pool notifications.  Callbacks run while
// the pool lock is held, in the order the events happened, so they must not
// call back into the pool.
func (mp *TxPool) Subscribe(callback NotificationCallback) {
	mp.notificationsLock.Lock()
	mp.notifications = append(mp.notifications, callback)
	mp.notificationsLock.Unlock()
}

// sendNotification sends a notification with the passed type and data to
// every subscriber.
func (mp *TxPool) sendNotification(typ NotificationType, data interface{}) {
	n := Notification{Type: typ, Data: data}
	mp.notificationsLock.RLock()
	for _, callback := range mp.notifications {
		callback(&n)
	}
	mp.notificationsLock.RUnlock()
}
