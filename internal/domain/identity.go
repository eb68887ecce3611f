package domain

import "time"

// Identity representa uma pessoa cadastrada no quiosque.
// OTP is the only external lookup key; Vector holds the codec-encoded embedding.
type Identity struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	OTP       string    `json:"otp"`
	Vector    string    `json:"vector"`
	CreatedAt time.Time `json:"-"`
}

// IdentityUpdate carries a full or partial replacement. Nil fields are left as is.
type IdentityUpdate struct {
	Name   *string `json:"name,omitempty"`
	OTP    *string `json:"otp,omitempty"`
	Vector *string `json:"vector,omitempty"`
}

// Attempt representa um registro de tentativa (audit)
type Attempt struct {
	ID         int64     `json:"id"`
	Flow       string    `json:"flow"`
	IdentityID *int64    `json:"identity_id,omitempty"`
	Success    bool      `json:"success"`
	Reason     string    `json:"reason"`
	Score      float64   `json:"score"`
	LatencyMs  int64     `json:"latency_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// IdentityMatch is a nearest-neighbour hit. The OTP is deliberately absent.
type IdentityMatch struct {
	IdentityID int64   `json:"identity_id"`
	Name       string  `json:"name"`
	Similarity float64 `json:"similarity"`
}
