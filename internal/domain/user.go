package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

type Role string

const (
	RoleCustomer   Role = "customer"
	RolePharmacist Role = "pharmacist"
	RoleAdmin      Role = "admin"
)

// IsStaff reports whether the role may manage orders and the catalog.
func (r Role) IsStaff() bool {
	return r == RoleAdmin || r == RolePharmacist
}

type User struct {
	ID           string           `json:"id"`
	Email        string           `json:"email"`
	PasswordHash string           `json:"-"`
	FullName     string           `json:"fullName"`
	Phone        string           `json:"phone"`
	Role         Role             `json:"role"`
	Address      *ShippingAddress `json:"address,omitempty"`
	HealthData   *HealthData      `json:"healthData,omitempty"`
	CreatedAt    time.Time        `json:"createdAt"`
	UpdatedAt    time.Time        `json:"updatedAt"`
}

type UserSummary struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"fullName"`
}

// HealthData is what a customer shares with the pharmacist reviewing their
// orders. Stored as jsonb.
type HealthData struct {
	Allergies          []string `json:"allergies"`
	ChronicDiseases    []string `json:"chronicDiseases"`
	CurrentMedications []string `json:"currentMedications"`
}

func (h HealthData) Value() (driver.Value, error) {
	if h.Allergies == nil {
		h.Allergies = []string{}
	}
	if h.ChronicDiseases == nil {
		h.ChronicDiseases = []string{}
	}
	if h.CurrentMedications == nil {
		h.CurrentMedications = []string{}
	}
	b, err := json.Marshal(h)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (h *HealthData) Scan(src any) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, h)
	case string:
		return json.Unmarshal([]byte(v), h)
	default:
		return fmt.Errorf("cannot scan %T into HealthData", src)
	}
}
