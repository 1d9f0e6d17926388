package models

import "time"

// RateType describes how a client is usually billed.
type RateType string

const (
	RateTypeHourly RateType = "hourly"
	RateTypeDay    RateType = "day"
	RateTypeFlat   RateType = "flat"
)

// Client is an entry of the client directory. Email is required for delivery.
type Client struct {
	ID          string    `json:"id" yaml:"id,omitempty"`
	Name        string    `json:"name" yaml:"name"`
	Email       string    `json:"email" yaml:"email"`
	Address     string    `json:"address,omitempty" yaml:"address,omitempty"`
	RateType    RateType  `json:"rate_type" yaml:"rate_type"`
	DefaultRate float64   `json:"default_rate" yaml:"default_rate"`
	Notes       string    `json:"notes,omitempty" yaml:"notes,omitempty"`
	CreatedAt   time.Time `json:"created_at" yaml:"-"`
}

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry in a session's conversation thread.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}
