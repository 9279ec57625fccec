package errors

import "fmt"

var (
	ErrUnauthorized       = fmt.Errorf("unauthorized")
	ErrConnectionExists   = fmt.Errorf("connection already registered")
	ErrConnectionNotFound = fmt.Errorf("connection not found")
	ErrUserOffline        = fmt.Errorf("user offline")
	ErrQueueFull          = fmt.Errorf("delivery queue full")
	ErrMessageExpired     = fmt.Errorf("message expired")
	ErrDeliveryFailed     = fmt.Errorf("delivery failed")
	ErrRetryExhausted     = fmt.Errorf("retry budget exhausted")
	ErrGroupNotSupported  = fmt.Errorf("transport has no group delivery")
	ErrInvalidPayload     = fmt.Errorf("invalid event payload")
	ErrWorkerPanic        = fmt.Errorf("worker panic")
	ErrClientExists       = fmt.Errorf("client already registered")
	ErrInvalidCredentials = fmt.Errorf("invalid credentials")
	ErrWeakSecret         = fmt.Errorf("secret too short")
	ErrTokenGeneration    = fmt.Errorf("token generation failed")
)
