package httpapi

import (
	"strings"

	"github.com/BearBump/ParcelBox/internal/apperr"
	"github.com/BearBump/ParcelBox/internal/models"
)

// required takes name, value pairs and reports the first blank one.
func required(pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			return apperr.Validation("%s is required", pairs[i])
		}
	}
	return nil
}

type registerRequest struct {
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r *registerRequest) Validate() error {
	return required("name", r.Name, "phone", r.Phone, "email", r.Email, "password", r.Password)
}

type loginRequest struct {
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

func (r *loginRequest) Validate() error {
	return required("phone", r.Phone, "password", r.Password)
}

type addDeviceRequest struct {
	DeviceName    string `json:"deviceName"`
	InventoryFlag bool   `json:"inventoryFlag"`
}

func (r *addDeviceRequest) Validate() error {
	return required("deviceName", r.DeviceName)
}

type updateDeviceRequest struct {
	DeviceID      string  `json:"deviceId"`
	DeviceName    *string `json:"deviceName"`
	InventoryFlag *bool   `json:"inventoryFlag"`
	Status        *string `json:"status"`
	AgentID       *string `json:"agentId"`
	UserID        *string `json:"userId"`
}

func (r *updateDeviceRequest) Validate() error {
	if err := required("deviceId", r.DeviceID); err != nil {
		return err
	}
	if r.DeviceName == nil && r.InventoryFlag == nil && r.Status == nil && r.AgentID == nil && r.UserID == nil {
		return apperr.Validation("nothing to update")
	}
	return nil
}

type accessoryIDRequest struct {
	AccessoryID string `json:"accessoryId"`
}

func (r *accessoryIDRequest) Validate() error {
	return required("accessoryId", r.AccessoryID)
}

type addAccessoryRequest struct {
	Name     string                `json:"name"`
	Specs    models.AccessorySpecs `json:"specs"`
	Quantity *int                  `json:"quantity"`
}

func (r *addAccessoryRequest) Validate() error {
	if err := required("name", r.Name); err != nil {
		return err
	}
	if r.Quantity == nil {
		return apperr.Validation("quantity is required")
	}
	return nil
}

func validItems(items []models.AccessoryItem) error {
	for _, it := range items {
		if strings.TrimSpace(it.AccessoryID) == "" {
			return apperr.Validation("accessoryId is required")
		}
		if it.Quantity <= 0 {
			return apperr.Validation("accessory %s: quantity must be positive", it.AccessoryID)
		}
	}
	return nil
}

type addParcelRequest struct {
	PickupLocation string                 `json:"pickupLocation"`
	Destination    string                 `json:"destination"`
	AgentID        string                 `json:"agentId"`
	Devices        []string               `json:"devices"`
	Accessories    []models.AccessoryItem `json:"accessories"`
	Sender         string                 `json:"sender"`
	Receiver       string                 `json:"receiver"`
	IdempotencyKey string                 `json:"idempotencyKey"`
}

func (r *addParcelRequest) Validate() error {
	if err := required(
		"pickupLocation", r.PickupLocation,
		"destination", r.Destination,
		"agentId", r.AgentID,
	); err != nil {
		return err
	}
	if len(r.Devices) == 0 {
		return apperr.Validation("devices must not be empty")
	}
	return validItems(r.Accessories)
}

type updateParcelRequest struct {
	ParcelNumber   string                 `json:"parcelNumber"`
	AgentID        string                 `json:"agentId"`
	Devices        []string               `json:"devices"`
	Accessories    []models.AccessoryItem `json:"accessories"`
	IdempotencyKey string                 `json:"idempotencyKey"`
}

func (r *updateParcelRequest) Validate() error {
	if err := required("parcelNumber", r.ParcelNumber); err != nil {
		return err
	}
	if len(r.Devices) == 0 && len(r.Accessories) == 0 {
		return apperr.Validation("nothing to append")
	}
	return validItems(r.Accessories)
}

type parcelNumberRequest struct {
	ParcelNumber string `json:"parcelNumber"`
}

func (r *parcelNumberRequest) Validate() error {
	return required("parcelNumber", r.ParcelNumber)
}

type updateStatusRequest struct {
	ParcelNumber string `json:"parcelNumber"`
	Status       string `json:"status"`
}

func (r *updateStatusRequest) Validate() error {
	return required("parcelNumber", r.ParcelNumber, "status", r.Status)
}

type agentParcelsRequest struct {
	AgentID string `json:"agentId"`
	Status  string `json:"status"`
}

func (r *agentParcelsRequest) Validate() error {
	return required("agentId", r.AgentID)
}

type requestParcelRequest struct {
	Type             string                 `json:"type"`
	AgentID          string                 `json:"agentId"`
	DevicesRequested int                    `json:"devicesRequested"`
	Accessories      []models.AccessoryItem `json:"accessories"`
}

func (r *requestParcelRequest) Validate() error {
	if err := required("agentId", r.AgentID); err != nil {
		return err
	}
	if r.DevicesRequested < 0 {
		return apperr.Validation("devicesRequested must not be negative")
	}
	return validItems(r.Accessories)
}

type ticketNumberRequest struct {
	TicketNumber string `json:"ticketNumber"`
}

func (r *ticketNumberRequest) Validate() error {
	return required("ticketNumber", r.TicketNumber)
}

type chatRequest struct {
	TicketNumber string `json:"ticketNumber"`
	Message      string `json:"message"`
}

func (r *chatRequest) Validate() error {
	return required("ticketNumber", r.TicketNumber, "message", r.Message)
}
