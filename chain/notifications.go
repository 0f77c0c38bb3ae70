// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
)

// NotificationType represents the type of a notification message.
type NotificationType int

// NotificationCallback is used for a caller to provide a callback for
// notifications about various chain events.
type NotificationCallback func(*Notification)

// Constants for the type of a notification message.
const (
	// NTBlockConnected indicates the associated block was connected to the
	// main chain.
	NTBlockConnected NotificationType = iota

	// NTBlockDisconnected indicates the associated block was disconnected
	// from the main chain.
	NTBlockDisconnected

	// NTReorganization indicates the main chain switched branches, or
	// several blocks were disconnected at once.  The chain state already
	// reflects the new tip when it is sent.
	NTReorganization
)

// notificationTypeStrings is a map of notification types back to their constant
// names for pretty printing.
var notificationTypeStrings = map[NotificationType]string{
	NTBlockConnected:    "NTBlockConnected",
	NTBlockDisconnected: "NTBlockDisconnected",
	NTReorganization:    "NTReorganization",
}

// String returns the NotificationType in human-readable form.
func (n NotificationType) String() string {
	if s, ok := notificationTypeStrings[n]; ok {
		return s
	}
	return fmt.Sprintf("Unknown Notification Type (%d)", int(n))
}

// ReorganizationData is the data of an NTReorganization notification.
type ReorganizationData struct {
	// Detached lists the disconnected blocks, tip first.
	Detached []*btcutil.Block

	// Attached lists the connected blocks in connection order.
	Attached []*btcutil.Block
}

// Notification defines notification that is sent to the caller via the callback
// function provided during the call to Subscribe and consists of a
// notification type as well as associated data that depends on the type as
// follows:
//   - NTBlockConnected:     *btcutil.Block
//   - NTBlockDisconnected:  *btcutil.Block
//   - NTReorganization:     *ReorganizationData
type Notification struct {
	Type NotificationType
	Data interface{}
}

// Subscribe to block chain notifications.  Registers a callback to be executed
// when various events take place.  See the documentation on Notification and
// NotificationType for details on the types and contents of notifications.
// Callbacks run after the chain lock is released, so they may query the
// chain.
func (c *Chain) Subscribe(callback NotificationCallback) {
	c.notificationsLock.Lock()
	c.notifications = append(c.notifications, callback)
	c.notificationsLock.Unlock()
}

// sendNotifications sends the queued notifications to every subscriber in
// order.  It must be called without the chain lock held.
func (c *Chain) sendNotifications(ntfns []*Notification) {
	c.notificationsLock.RLock()
	defer c.notificationsLock.RUnlock()

	for _, n := range ntfns {
		for _, callback := range c.notifications {
			callback(n)
		}
	}
}
