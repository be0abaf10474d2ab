package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type SignUpRequest struct {
	Name     string `json:"name" validate:"required"`
	Username string `json:"username" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type ForgotPasswordRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Username    string `json:"username" validate:"required"`
	NewPassword string `json:"new_password" validate:"required"`
}

type ChangePasswordRequest struct {
	Username        string `json:"username" validate:"required"`
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type,omitempty"`
	Username    string `json:"username"`
	Name        string `json:"name"`
	Email       string `json:"email"`
}

type Ack struct {
	Message string `json:"message,omitempty"`
}

// CarbonInput is the /predict payload. Field names follow the backend model.
type CarbonInput struct {
	BodyType                  string  `json:"Body_Type" validate:"required"`
	Sex                       string  `json:"Sex" validate:"required"`
	Diet                      string  `json:"Diet" validate:"required"`
	HowOftenShower            string  `json:"How_Often_Shower" validate:"required"`
	HeatingEnergySource       string  `json:"Heating_Energy_Source" validate:"required"`
	Transport                 string  `json:"Transport" validate:"required"`
	VehicleType               *string `json:"Vehicle_Type"`
	SocialActivity            string  `json:"Social_Activity" validate:"required"`
	MonthlyGroceryBill        float64 `json:"Monthly_Grocery_Bill" validate:"gte=0"`
	FrequencyOfTravelingByAir string  `json:"Frequency_of_Traveling_by_Air" validate:"required"`
	VehicleMonthlyDistanceKm  float64 `json:"Vehicle_Monthly_Distance_Km" validate:"gte=0"`
	WasteBagSize              string  `json:"Waste_Bag_Size" validate:"required"`
	WasteBagWeeklyCount       int     `json:"Waste_Bag_Weekly_Count" validate:"gte=0"`
	HowLongTVPCDailyHour      float64 `json:"How_Long_TV_PC_Daily_Hour" validate:"gte=0,lte=24"`
	HowManyNewClothesMonthly  int     `json:"How_Many_New_Clothes_Monthly" validate:"gte=0"`
	HowLongInternetDailyHour  float64 `json:"How_Long_Internet_Daily_Hour" validate:"gte=0,lte=24"`
	EnergyEfficiency          string  `json:"Energy_efficiency" validate:"required"`
	RecyclePlastic            int     `json:"Recycle_Plastic" validate:"oneof=0 1"`
	RecycleGlass              int     `json:"Recycle_Glass" validate:"oneof=0 1"`
	RecyclePaper              int     `json:"Recycle_Paper" validate:"oneof=0 1"`
	RecycleMetal              int     `json:"Recycle_Metal" validate:"oneof=0 1"`
	CookOven                  int     `json:"Cook_Oven" validate:"oneof=0 1"`
	CookAirfryer              int     `json:"Cook_Airfryer" validate:"oneof=0 1"`
	CookGrill                 int     `json:"Cook_Grill" validate:"oneof=0 1"`
	CookMicrowave             int     `json:"Cook_Microwave" validate:"oneof=0 1"`
	CookStove                 int     `json:"Cook_Stove" validate:"oneof=0 1"`
	UserID                    string  `json:"user_id,omitempty"`
}

type Prediction struct {
	PredictedCarbonFootprint float64 `json:"predicted_carbon_footprint"`
}

type HistoryEntry struct {
	ID          EntryID   `json:"id"`
	CarbonValue float64   `json:"carbon_value"`
	Timestamp   Timestamp `json:"timestamp"`
	Details     *string   `json:"details,omitempty"`
}

// EntryID is opaque to the client. The backend may send a number or a string.
type EntryID string

func (id *EntryID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("decode entry id: %w", err)
		}
		*id = EntryID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("decode entry id: %w", err)
	}
	*id = EntryID(n.String())
	return nil
}

func (id EntryID) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(id))
}

// Timestamp accepts RFC 3339 and the zone-less ISO 8601 form the backend
// emits for UTC datetimes.
type Timestamp struct {
	time.Time
}

var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("decode timestamp: %w", err)
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Time.UTC().Format(time.RFC3339Nano))
}
