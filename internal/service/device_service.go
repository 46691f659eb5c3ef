package service

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	"github.com/vbonduro/fridgecam/internal/domain"
)

// deviceRepository is the subset of store.DeviceStore that DeviceService requires.
type deviceRepository interface {
	Create(ctx context.Context, device *domain.Device) (*domain.Device, error)
	GetByID(ctx context.Context, id int64) (*domain.Device, error)
	List(ctx context.Context, activeOnly bool) ([]*domain.Device, error)
	Update(ctx context.Context, device *domain.Device) error
	Delete(ctx context.Context, id int64) error
}

type DeviceService struct {
	devices deviceRepository
	logger  *slog.Logger
}

func NewDeviceService(devices deviceRepository, logger *slog.Logger) *DeviceService {
	return &DeviceService{devices: devices, logger: logger}
}

// DeviceInput holds the editable fields of a device.
type DeviceInput struct {
	ExternalID          string
	Name                string
	APIURL              string
	LocationDescription string
	IsActive            bool
}

func (in DeviceInput) validate(op string) (*domain.Device, error) {
	d := &domain.Device{
		ExternalID:          strings.TrimSpace(in.ExternalID),
		Name:                strings.TrimSpace(in.Name),
		LocationDescription: strings.TrimSpace(in.LocationDescription),
		IsActive:            in.IsActive,
	}
	if d.ExternalID == "" {
		return nil, invalid(op, "device id is required")
	}
	if len(d.ExternalID) > 100 {
		return nil, invalid(op, "device id must be at most 100 characters")
	}
	if d.Name == "" {
		return nil, invalid(op, "device name is required")
	}
	if raw := strings.TrimSpace(in.APIURL); raw != "" {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, invalid(op, "api url %q must be an http(s) URL", raw)
		}
		d.APIURL = &raw
	}
	return d, nil
}

// ListDevices returns devices ordered by name. Non-staff users only see
// active devices.
func (s *DeviceService) ListDevices(ctx context.Context, actor Actor) ([]*domain.Device, error) {
	devices, err := s.devices.List(ctx, !actor.IsStaff)
	if err != nil {
		return nil, storeError("service.ListDevices", err)
	}
	return devices, nil
}

func (s *DeviceService) GetDevice(ctx context.Context, id int64) (*domain.Device, error) {
	const op = "service.GetDevice"
	d, err := s.devices.GetByID(ctx, id)
	if err != nil {
		return nil, storeError(op, err)
	}
	if d == nil {
		return nil, notFound(op, "device %d not found", id)
	}
	return d, nil
}

func (s *DeviceService) CreateDevice(ctx context.Context, actor Actor, in DeviceInput) (*domain.Device, error) {
	const op = "service.CreateDevice"
	if !actor.IsStaff {
		return nil, forbidden(op)
	}
	d, err := in.validate(op)
	if err != nil {
		return nil, err
	}
	created, err := s.devices.Create(ctx, d)
	if err != nil {
		return nil, storeError(op, err)
	}
	s.logger.Info("device created", "device_id", created.ID, "external_id", created.ExternalID)
	return created, nil
}

func (s *DeviceService) UpdateDevice(ctx context.Context, actor Actor, id int64, in DeviceInput) (*domain.Device, error) {
	const op = "service.UpdateDevice"
	if !actor.IsStaff {
		return nil, forbidden(op)
	}
	d, err := in.validate(op)
	if err != nil {
		return nil, err
	}
	d.ID = id
	if err := s.devices.Update(ctx, d); err != nil {
		return nil, storeError(op, err)
	}
	s.logger.Info("device updated", "device_id", id)
	return s.GetDevice(ctx, id)
}

func (s *DeviceService) DeleteDevice(ctx context.Context, actor Actor, id int64) error {
	const op = "service.DeleteDevice"
	if !actor.IsStaff {
		return forbidden(op)
	}
	if err := s.devices.Delete(ctx, id); err != nil {
		return storeError(op, err)
	}
	s.logger.Info("device deleted", "device_id", id)
	return nil
}
