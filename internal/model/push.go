package model

import "time"

// NotificationRecord is one proximity alert that was actually shown.
type NotificationRecord struct {
	ID       int64     `json:"id"`
	StoreKey string    `json:"store_key"`
	ListIDs  []string  `json:"list_ids"`
	FiredAt  time.Time `json:"fired_at"`
}

type PushSubscription struct {
	ID         int64     `json:"id"`
	Endpoint   string    `json:"endpoint"`
	P256dhKey  string    `json:"p256dh_key"`
	AuthKey    string    `json:"auth_key"`
	DeviceName string    `json:"device_name"`
	CreatedAt  time.Time `json:"created_at"`
}
